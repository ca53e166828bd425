package workflow

import (
	"context"
	"errors"
)

var (
	// ErrInvalidTransition means the trigger is not configured for the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState means a status value is not one of the lifecycle states
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed means every guarded transition for the trigger refused
	ErrGuardFailed = errors.New("guard condition failed")
)

// GuardFunc decides whether a transition may proceed. A nil return permits it;
// the error of the last refusing guard is wrapped into ErrGuardFailed.
type GuardFunc func(ctx context.Context) error

// StateMachine tracks the status of a single document and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire reports whether the trigger is configured for the current state.
	// Guards are not evaluated.
	CanFire(trigger Trigger) bool

	// Fire moves to the target of the first configured transition whose guard passes
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers lists the triggers configured for the current state, sorted
	PermittedTriggers() []Trigger
}
