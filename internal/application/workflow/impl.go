package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/docflow/internal/application/dispatcher"
	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/event"
	domainwf "github.com/garyjia/docflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// engineImpl is the concrete implementation of LifecycleEngine.
// Machines are rebuilt per call from the stored status, so no cache is kept.
type engineImpl struct {
	documentRepo port.DocumentRepository
	historyRepo  port.HistoryRepository
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher
	logger       Logger
	now          func() time.Time
}

// EngineOption configures the lifecycle engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting status changes
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock overrides the time source used for history records
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new lifecycle engine
func NewEngine(
	documentRepo port.DocumentRepository,
	historyRepo port.HistoryRepository,
	txManager port.TransactionManager,
	opts ...EngineOption,
) LifecycleEngine {
	e := &engineImpl{
		documentRepo: documentRepo,
		historyRepo:  historyRepo,
		txManager:    txManager,
		logger:       nopLogger{},
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// HandleEvent maps a domain event to a trigger and fires it on the event's document
func (e *engineImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	if evt == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if evt.DocumentID == 0 {
		return fmt.Errorf("event %s has no document ID", evt.Type)
	}

	doc, err := e.documentRepo.GetByID(ctx, evt.DocumentID)
	if err != nil {
		return err
	}

	trigger, err := mapEventToTrigger(doc, evt)
	if err != nil {
		return err
	}

	// Not every event drives a transition
	if trigger == "" {
		return nil
	}

	return e.TransitionState(ctx, doc, evt.ActorID, trigger)
}

// GetStateMachine builds the machine for the document's type at its current status
func (e *engineImpl) GetStateMachine(ctx context.Context, doc *entity.Document, actorID string) (domainwf.StateMachine, error) {
	machine, err := BuildStateMachine(doc, actorID)
	if errors.Is(err, domainwf.ErrInvalidState) {
		return nil, apperr.Corrupted("document %d has status %q: %v", doc.ID, doc.Status, err)
	}
	return machine, err
}

// TransitionState fires trigger and persists the result in one transaction.
// A nested call joins the caller's transaction.
func (e *engineImpl) TransitionState(ctx context.Context, doc *entity.Document, actorID string, trigger domainwf.Trigger) error {
	machine, err := e.GetStateMachine(ctx, doc, actorID)
	if err != nil {
		return err
	}

	previousState := machine.State()

	if !machine.CanFire(trigger) {
		return apperr.StateConflict("document %d: trigger %s not allowed from state %s", doc.ID, trigger, previousState)
	}

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := machine.Fire(txCtx, trigger); err != nil {
			return translateFireError(err)
		}

		newState := machine.State()

		if err := e.documentRepo.UpdateStatus(txCtx, doc.ID, previousState, newState); err != nil {
			return fmt.Errorf("failed to update document status: %w", err)
		}

		history := &entity.ApprovalHistory{
			DocumentID:     doc.ID,
			ActorID:        actorOrSystem(actorID),
			PreviousStatus: previousState.String(),
			NewStatus:      newState.String(),
			ActionType:     entity.ActionStatusChange,
			ActionData:     trigger.String(),
			Timestamp:      e.now(),
		}

		if err := e.historyRepo.Create(txCtx, history); err != nil {
			return fmt.Errorf("failed to create history record: %w", err)
		}

		return nil
	})
	if err != nil {
		e.logger.Info("Document transition refused",
			"document_id", doc.ID,
			"trigger", trigger.String(),
			"state", previousState.String(),
			"error", err.Error())
		return err
	}

	doc.Status = machine.State()
	doc.Version++

	e.logger.Info("Document status changed",
		"document_id", doc.ID,
		"document_type", string(doc.Type),
		"previous_status", previousState.String(),
		"new_status", doc.Status.String(),
		"trigger", trigger.String(),
		"actor_id", actorID)

	if e.dispatcher != nil {
		statusEvent := event.NewEvent(
			event.TypeStatusChanged,
			doc,
			actorID,
			map[string]interface{}{
				event.KeyPreviousStatus: previousState.String(),
				event.KeyNewStatus:      doc.Status.String(),
				event.KeyTrigger:        trigger.String(),
			},
		)
		e.dispatcher.DispatchAsync(ctx, statusEvent)
	}

	return nil
}

// GetCurrentState returns the stored status of a document
func (e *engineImpl) GetCurrentState(ctx context.Context, documentID int64) (domainwf.State, error) {
	doc, err := e.documentRepo.GetByID(ctx, documentID)
	if err != nil {
		return "", err
	}
	return doc.Status, nil
}

// mapEventToTrigger maps domain events to the document type's triggers.
// An empty trigger means the event is informational for that type.
func mapEventToTrigger(doc *entity.Document, evt *event.Event) (domainwf.Trigger, error) {
	if !evt.Type.IsValid() {
		return "", fmt.Errorf("unknown event type: %s", evt.Type)
	}

	switch doc.Type {
	case entity.DocumentTypeWorkSchedule:
		switch evt.Type {
		case event.TypeDocumentSubmitted:
			return domainwf.TriggerSubmit, nil
		case event.TypeStepApproved:
			// The review step is the first step of a line with at least two steps
			if evt.GetPayloadInt(event.KeyStep) == 1 && evt.GetPayloadInt(event.KeyTotalSteps) >= 2 &&
				doc.Status == domainwf.StateSubmitted {
				return domainwf.TriggerReview, nil
			}
			return "", nil
		case event.TypeInstanceCompleted:
			return domainwf.TriggerApprove, nil
		case event.TypeInstanceRejected:
			return domainwf.TriggerReject, nil
		case event.TypeScheduleRevised:
			return domainwf.TriggerRevise, nil
		}
		return "", nil

	case entity.DocumentTypeContract:
		switch evt.Type {
		case event.TypeDocumentSubmitted:
			return domainwf.TriggerSend, nil
		case event.TypeEmployeeSigned:
			return domainwf.TriggerEmployeeSign, nil
		case event.TypeInstanceCompleted:
			return domainwf.TriggerComplete, nil
		case event.TypeInstanceRejected, event.TypeReturnedToAdmin:
			return domainwf.TriggerReturn, nil
		}
		return "", nil
	}

	return "", apperr.Validation("unknown document type %q", doc.Type)
}

// translateFireError converts state machine errors into the application taxonomy.
// Guard refusals already carry an apperr sentinel.
func translateFireError(err error) error {
	if errors.Is(err, domainwf.ErrInvalidTransition) {
		return fmt.Errorf("%w: %w", apperr.ErrStateConflict, err)
	}
	return err
}

func actorOrSystem(actorID string) string {
	if actorID == "" {
		return "system"
	}
	return actorID
}
