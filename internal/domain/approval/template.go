// Package approval holds the pure approval-line logic: template editing,
// approver resolution, instance confirmation and the step tracker.
package approval

import (
	"sort"
	"strings"

	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/entity"
)

// ValidateTemplate checks a template before it is persisted
func ValidateTemplate(t *entity.ApprovalLineTemplate) error {
	if strings.TrimSpace(t.Name) == "" {
		return apperr.Validation("template name is required")
	}
	if !t.DocumentType.IsValid() {
		return apperr.Validation("unknown document type %q", t.DocumentType)
	}
	if len(t.Steps) == 0 {
		return apperr.Validation("template needs at least one step")
	}

	seen := make(map[int]bool, len(t.Steps))
	for _, s := range t.Steps {
		if s.StepOrder <= 0 {
			return apperr.Validation("step order must be positive, got %d", s.StepOrder)
		}
		if seen[s.StepOrder] {
			return apperr.Validation("duplicate step order %d", s.StepOrder)
		}
		seen[s.StepOrder] = true

		if err := ValidateStep(s); err != nil {
			return err
		}
	}
	return nil
}

// ValidateStep checks a single step definition
func ValidateStep(s entity.StepDefinition) error {
	if !s.ApproverType.IsValid() {
		return apperr.Validation("step %d: unknown approver type %q", s.StepOrder, s.ApproverType)
	}
	if s.ApproverType != entity.ApproverSubstitute && s.ApproverID == "" {
		return apperr.Validation("step %d: approverId is required", s.StepOrder)
	}
	return nil
}

// Resequence returns a copy of steps sorted by StepOrder and renumbered 1..n
func Resequence(steps []entity.StepDefinition) []entity.StepDefinition {
	out := append([]entity.StepDefinition(nil), steps...)
	sortByOrder(out)
	for i := range out {
		out[i].StepOrder = i + 1
	}
	return out
}

// InsertStep places def at position `at` (1-based) and renumbers.
// A position past the end appends.
func InsertStep(steps []entity.StepDefinition, at int, def entity.StepDefinition) ([]entity.StepDefinition, error) {
	if at < 1 {
		return nil, apperr.Validation("insert position must be positive, got %d", at)
	}
	ordered := Resequence(steps)
	if at > len(ordered)+1 {
		at = len(ordered) + 1
	}

	out := make([]entity.StepDefinition, 0, len(ordered)+1)
	out = append(out, ordered[:at-1]...)
	out = append(out, def)
	out = append(out, ordered[at-1:]...)
	for i := range out {
		out[i].StepOrder = i + 1
	}
	return out, nil
}

// RemoveStep drops the step at `order` and renumbers
func RemoveStep(steps []entity.StepDefinition, order int) ([]entity.StepDefinition, error) {
	ordered := Resequence(steps)
	if order < 1 || order > len(ordered) {
		return nil, apperr.NotFound("step %d", order)
	}

	out := append(ordered[:order-1:order-1], ordered[order:]...)
	for i := range out {
		out[i].StepOrder = i + 1
	}
	return out, nil
}

// MoveStep moves the step at `from` to position `to` and renumbers
func MoveStep(steps []entity.StepDefinition, from, to int) ([]entity.StepDefinition, error) {
	ordered := Resequence(steps)
	if from < 1 || from > len(ordered) {
		return nil, apperr.NotFound("step %d", from)
	}
	if to < 1 || to > len(ordered) {
		return nil, apperr.Validation("target position %d out of range 1..%d", to, len(ordered))
	}

	moved := ordered[from-1]
	rest := append(ordered[:from-1:from-1], ordered[from:]...)

	out := make([]entity.StepDefinition, 0, len(ordered))
	out = append(out, rest[:to-1]...)
	out = append(out, moved)
	out = append(out, rest[to-1:]...)
	for i := range out {
		out[i].StepOrder = i + 1
	}
	return out, nil
}

func sortByOrder(steps []entity.StepDefinition) {
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].StepOrder < steps[j].StepOrder })
}
