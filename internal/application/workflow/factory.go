package workflow

import (
	"context"

	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/entity"
	domainwf "github.com/garyjia/docflow/internal/domain/workflow"
)

// BuildWorkScheduleStateMachine creates the work-schedule machine for doc.
// SUBMIT is guarded: only the creator may submit, and only once the creator signature is captured.
func BuildWorkScheduleStateMachine(doc *entity.Document, actorID string) (domainwf.StateMachine, error) {
	builder := domainwf.NewBuilder()
	submitGuard := creatorSubmitGuard(doc, actorID)

	builder.Configure(domainwf.StateDraft).
		PermitIf(domainwf.TriggerSubmit, domainwf.StateSubmitted, submitGuard)

	// A one-step line, or an override on the review step, completes straight from SUBMITTED
	builder.Configure(domainwf.StateSubmitted).
		Permit(domainwf.TriggerReview, domainwf.StateReviewed).
		Permit(domainwf.TriggerApprove, domainwf.StateApproved).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	builder.Configure(domainwf.StateReviewed).
		Permit(domainwf.TriggerApprove, domainwf.StateApproved).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	builder.Configure(domainwf.StateRejected).
		Permit(domainwf.TriggerRevise, domainwf.StateDraft).
		PermitIf(domainwf.TriggerSubmit, domainwf.StateSubmitted, submitGuard)

	// APPROVED is terminal

	return builder.Build(doc.Status)
}

// BuildContractStateMachine creates the contract machine for doc.
// Only the creator may send; the employee-facing states can always be returned to the admin.
func BuildContractStateMachine(doc *entity.Document, actorID string) (domainwf.StateMachine, error) {
	builder := domainwf.NewBuilder()
	sendGuard := func(ctx context.Context) error {
		if !doc.IsCreator(actorID) {
			return apperr.Unauthorized("only the creator can send document %d", doc.ID)
		}
		if doc.EmployeeID == "" {
			return apperr.Precondition("contract %d names no employee", doc.ID)
		}
		return nil
	}

	builder.Configure(domainwf.StateDraft).
		PermitIf(domainwf.TriggerSend, domainwf.StateSentToEmployee, sendGuard)

	builder.Configure(domainwf.StateSentToEmployee).
		Permit(domainwf.TriggerEmployeeSign, domainwf.StateSignedByEmployee).
		Permit(domainwf.TriggerReturn, domainwf.StateReturnedToAdmin)

	builder.Configure(domainwf.StateSignedByEmployee).
		Permit(domainwf.TriggerComplete, domainwf.StateCompleted).
		Permit(domainwf.TriggerReturn, domainwf.StateReturnedToAdmin)

	builder.Configure(domainwf.StateReturnedToAdmin).
		PermitIf(domainwf.TriggerSend, domainwf.StateSentToEmployee, sendGuard)

	// COMPLETED is terminal

	return builder.Build(doc.Status)
}

// BuildStateMachine picks the machine for the document's type
func BuildStateMachine(doc *entity.Document, actorID string) (domainwf.StateMachine, error) {
	switch doc.Type {
	case entity.DocumentTypeWorkSchedule:
		return BuildWorkScheduleStateMachine(doc, actorID)
	case entity.DocumentTypeContract:
		return BuildContractStateMachine(doc, actorID)
	default:
		return nil, apperr.Validation("unknown document type %q", doc.Type)
	}
}

func creatorSubmitGuard(doc *entity.Document, actorID string) domainwf.GuardFunc {
	return func(ctx context.Context) error {
		if !doc.IsCreator(actorID) {
			return apperr.Unauthorized("only the creator can submit document %d", doc.ID)
		}
		if !doc.HasCreatorSignature() {
			return apperr.Precondition("work schedule %d has no creator signature", doc.ID)
		}
		return nil
	}
}
