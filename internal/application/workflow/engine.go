package workflow

import (
	"context"

	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/event"
	domainwf "github.com/garyjia/docflow/internal/domain/workflow"
)

// LifecycleEngine maps approval events onto the coarse document status
type LifecycleEngine interface {
	// HandleEvent maps a domain event to a trigger for the event's document type
	// and fires it. Events that drive no transition are accepted and ignored.
	HandleEvent(ctx context.Context, evt *event.Event) error

	// GetStateMachine builds the document's machine at its stored status.
	// actorID is the identity the guards are evaluated for.
	GetStateMachine(ctx context.Context, doc *entity.Document, actorID string) (domainwf.StateMachine, error)

	// TransitionState fires trigger on the document and persists the new status.
	// On success doc.Status and doc.Version reflect the stored row.
	TransitionState(ctx context.Context, doc *entity.Document, actorID string, trigger domainwf.Trigger) error

	// GetCurrentState returns the stored status of a document
	GetCurrentState(ctx context.Context, documentID int64) (domainwf.State, error)
}
