package workflow

import (
	"context"
	"fmt"
	"sort"
)

// StateMachineBuilder collects the transition table of one document lifecycle
type StateMachineBuilder interface {
	// Configure starts the rules leaving state
	Configure(state State) StateConfiguration

	// Build starts a machine at initialState, usually the stored document status
	Build(initialState State) (StateMachine, error)
}

// StateConfiguration adds transitions leaving one state
type StateConfiguration interface {
	Permit(trigger Trigger, toState State) StateConfiguration
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

// rule is one row of a transition table. Rows for the same state and trigger
// are tried in the order they were configured.
type rule struct {
	from    State
	trigger Trigger
	to      State
	guard   GuardFunc
}

type ruleTable []rule

func (t ruleTable) matching(from State, trigger Trigger) []rule {
	var out []rule
	for _, r := range t {
		if r.from == from && r.trigger == trigger {
			out = append(out, r)
		}
	}
	return out
}

type tableBuilder struct {
	rules ruleTable
}

type stateRules struct {
	b    *tableBuilder
	from State
}

// NewBuilder creates an empty lifecycle table
func NewBuilder() StateMachineBuilder {
	return &tableBuilder{}
}

// Configure panics on an unknown state; lifecycle tables are static program text
func (b *tableBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	return &stateRules{b: b, from: state}
}

// Build snapshots the table so later configuration does not leak into built machines.
// An unknown initial state comes from storage and is reported as ErrInvalidState.
func (b *tableBuilder) Build(initialState State) (StateMachine, error) {
	if !initialState.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, initialState)
	}
	return &tableMachine{
		current: initialState,
		rules:   append(ruleTable(nil), b.rules...),
	}, nil
}

func (r *stateRules) Permit(trigger Trigger, toState State) StateConfiguration {
	return r.PermitIf(trigger, toState, nil)
}

func (r *stateRules) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	r.b.rules = append(r.b.rules, rule{from: r.from, trigger: trigger, to: toState, guard: guard})
	return r
}

type tableMachine struct {
	current State
	rules   ruleTable
}

func (m *tableMachine) State() State {
	return m.current
}

func (m *tableMachine) CanFire(trigger Trigger) bool {
	return len(m.rules.matching(m.current, trigger)) > 0
}

func (m *tableMachine) Fire(ctx context.Context, trigger Trigger) error {
	candidates := m.rules.matching(m.current, trigger)
	if len(candidates) == 0 {
		if m.current.IsTerminal() {
			return fmt.Errorf("%w: %s is final, cannot fire %s", ErrInvalidTransition, m.current, trigger)
		}
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.current)
	}

	var refusal error
	for _, r := range candidates {
		if r.guard != nil {
			if err := r.guard(ctx); err != nil {
				refusal = err
				continue
			}
		}
		m.current = r.to
		return nil
	}
	return fmt.Errorf("%w: trigger %s from state %s: %w", ErrGuardFailed, trigger, m.current, refusal)
}

func (m *tableMachine) PermittedTriggers() []Trigger {
	seen := make(map[Trigger]bool)
	triggers := []Trigger{}
	for _, r := range m.rules {
		if r.from == m.current && !seen[r.trigger] {
			seen[r.trigger] = true
			triggers = append(triggers, r.trigger)
		}
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
