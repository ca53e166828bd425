package approval

import (
	"context"
	"time"

	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/entity"
)

// ConfirmRequest carries the owner's choices at submission.
// Both maps are keyed by the template's stepOrder.
type ConfirmRequest struct {
	// Inclusion decides optional steps; an unset optional step is included
	Inclusion map[int]bool
	// Picks names the identity for steps that need a choice
	Picks map[int]string
}

// IncludedSteps filters the template steps for one submission, in stepOrder order.
// Required steps are always kept.
func IncludedSteps(steps []entity.StepDefinition, inclusion map[int]bool) []entity.StepDefinition {
	ordered := append([]entity.StepDefinition(nil), steps...)
	sortByOrder(ordered)

	out := make([]entity.StepDefinition, 0, len(ordered))
	for _, s := range ordered {
		if s.IsOptional {
			if include, set := inclusion[s.StepOrder]; set && !include {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// BuildSteps materializes step instances for the included definitions.
// approvers must hold an identity for each definition, keyed by its original stepOrder.
// Steps are renumbered by filtered position and the first one becomes current.
func BuildSteps(included []entity.StepDefinition, approvers map[int]entity.Identity) ([]entity.StepInstance, error) {
	if len(included) == 0 {
		return nil, apperr.ErrEmptyApprovalLine
	}

	out := make([]entity.StepInstance, 0, len(included))
	for i, def := range included {
		ident, ok := approvers[def.StepOrder]
		if !ok {
			return nil, apperr.Validation("no approver chosen for step %d", def.StepOrder)
		}
		name := def.StepName
		if name == "" {
			name = string(def.ApproverType)
		}
		out = append(out, entity.StepInstance{
			StepOrder:                i + 1,
			SourceStepOrder:          def.StepOrder,
			Name:                     name,
			ResolvedApproverID:       ident.ID,
			ApproverName:             ident.Name,
			IsCurrent:                i == 0,
			IsFinalApprovalAvailable: def.IsFinalApprovalAvailable,
		})
	}
	return out, nil
}

// Confirm expands a template into a new active instance for the document.
// Nothing is persisted here.
func (r *Resolver) Confirm(ctx context.Context, t *entity.ApprovalLineTemplate, doc DocumentContext, req ConfirmRequest, now time.Time) (*entity.ApprovalInstance, error) {
	if t.DocumentType != doc.DocumentType {
		return nil, apperr.Validation("template %d is for %s documents, not %s", t.ID, t.DocumentType, doc.DocumentType)
	}

	included := IncludedSteps(t.Steps, req.Inclusion)
	if len(included) == 0 {
		return nil, apperr.ErrEmptyApprovalLine
	}

	approvers := make(map[int]entity.Identity, len(included))
	for _, def := range included {
		res, err := r.Resolve(ctx, def, doc)
		if err != nil {
			return nil, err
		}
		ident, err := r.Pick(ctx, res, req.Picks[def.StepOrder])
		if err != nil {
			return nil, err
		}
		approvers[def.StepOrder] = ident
	}

	steps, err := BuildSteps(included, approvers)
	if err != nil {
		return nil, err
	}

	return &entity.ApprovalInstance{
		DocumentID:   doc.DocumentID,
		DocumentType: doc.DocumentType,
		TemplateID:   t.ID,
		Status:       entity.InstanceActive,
		Steps:        steps,
		CreatedAt:    now,
	}, nil
}
