package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/garyjia/docflow/internal/application/dispatcher"
	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/application/workflow"
	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/approval"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/event"
	domainwf "github.com/garyjia/docflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SubmitRequest is the owner's confirmation of an approval line
type SubmitRequest struct {
	DocumentID int64
	ActorID    string
	TemplateID int64
	// Inclusion and Picks are keyed by the template's stepOrder
	Inclusion map[int]bool
	Picks     map[int]string
}

// ApprovalService runs approval instances for documents
type ApprovalService interface {
	// PreviewLine resolves every step of a template for a document without writing anything
	PreviewLine(ctx context.Context, actorID string, templateID, documentID int64) ([]approval.Resolution, error)
	Submit(ctx context.Context, req SubmitRequest) (*entity.ApprovalInstance, error)
	SignStep(ctx context.Context, documentID int64, stepOrder int, actorID string) (*entity.ApprovalInstance, error)
	UnsignStep(ctx context.Context, documentID int64, stepOrder int, actorID string) (*entity.ApprovalInstance, error)
	ApproveStep(ctx context.Context, documentID int64, actorID string) (*entity.ApprovalInstance, error)
	RejectStep(ctx context.Context, documentID int64, actorID, reason string) (*entity.ApprovalInstance, error)
	FinalApprove(ctx context.Context, documentID int64, actorID string) (*entity.ApprovalInstance, error)
	GetCurrentStep(ctx context.Context, documentID int64) (*entity.StepInstance, error)
	GetActiveInstance(ctx context.Context, documentID int64) (*entity.ApprovalInstance, error)
	ListInstances(ctx context.Context, documentID int64) ([]*entity.ApprovalInstance, error)
}

type approvalServiceImpl struct {
	documentRepo port.DocumentRepository
	templateRepo port.TemplateRepository
	instanceRepo port.InstanceRepository
	historyRepo  port.HistoryRepository
	resolver     *approval.Resolver
	signatures   port.SignatureStore
	engine       workflow.LifecycleEngine
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher
	logger       Logger
	now          func() time.Time
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	documentRepo port.DocumentRepository,
	templateRepo port.TemplateRepository,
	instanceRepo port.InstanceRepository,
	historyRepo port.HistoryRepository,
	directory approval.Directory,
	signatures port.SignatureStore,
	engine workflow.LifecycleEngine,
	txManager port.TransactionManager,
	disp dispatcher.Dispatcher,
	logger Logger,
) ApprovalService {
	return &approvalServiceImpl{
		documentRepo: documentRepo,
		templateRepo: templateRepo,
		instanceRepo: instanceRepo,
		historyRepo:  historyRepo,
		resolver:     approval.NewResolver(directory),
		signatures:   signatures,
		engine:       engine,
		txManager:    txManager,
		dispatcher:   disp,
		logger:       logger,
		now:          time.Now,
	}
}

// PreviewLine resolves a template against a document the actor owns
func (s *approvalServiceImpl) PreviewLine(ctx context.Context, actorID string, templateID, documentID int64) ([]approval.Resolution, error) {
	doc, err := s.documentRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.IsCreator(actorID) {
		return nil, apperr.Unauthorized("only the creator can prepare document %d for submission", documentID)
	}
	t, err := s.templateRepo.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if t.DocumentType != doc.Type {
		return nil, apperr.Validation("template %d is for %s documents, not %s", t.ID, t.DocumentType, doc.Type)
	}
	return s.resolver.ResolveTemplate(ctx, t, documentContext(doc))
}

// Submit confirms an approval line for the document and moves it into review.
// Everything happens in one transaction; a refused submission leaves no instance behind.
func (s *approvalServiceImpl) Submit(ctx context.Context, req SubmitRequest) (*entity.ApprovalInstance, error) {
	var (
		inst   *entity.ApprovalInstance
		events []*event.Event
	)

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		doc, err := s.documentRepo.GetByID(txCtx, req.DocumentID)
		if err != nil {
			return err
		}
		if !doc.IsCreator(req.ActorID) {
			return apperr.Unauthorized("only the creator can submit document %d", doc.ID)
		}
		if !submittable(doc) {
			return apperr.StateConflict("document %d cannot be submitted from %s", doc.ID, doc.Status)
		}

		if _, err := s.instanceRepo.GetActiveByDocument(txCtx, doc.ID); err == nil {
			return apperr.StateConflict("document %d already has an active approval instance", doc.ID)
		} else if !errors.Is(err, apperr.ErrNotFound) {
			return err
		}

		if doc.Type == entity.DocumentTypeWorkSchedule && !doc.HasCreatorSignature() {
			return apperr.Precondition("work schedule %d has no creator signature", doc.ID)
		}

		t, err := s.templateRepo.GetByID(txCtx, req.TemplateID)
		if err != nil {
			return err
		}

		now := s.now()
		inst, err = s.resolver.Confirm(txCtx, t, documentContext(doc), approval.ConfirmRequest{
			Inclusion: req.Inclusion,
			Picks:     req.Picks,
		}, now)
		if err != nil {
			return err
		}

		// A resent contract needs a fresh employee signature
		if doc.Type == entity.DocumentTypeContract && doc.EmployeeSignatureRef != "" {
			doc.EmployeeSignatureRef = ""
			doc.EmployeeSignedAt = nil
			if err := s.documentRepo.Update(txCtx, doc); err != nil {
				return err
			}
		}

		if err := s.instanceRepo.Create(txCtx, inst); err != nil {
			return err
		}

		if err := s.recordHistory(txCtx, doc, inst.ID, req.ActorID, entity.ActionSubmit, "", now); err != nil {
			return err
		}

		submitted := event.NewEvent(event.TypeDocumentSubmitted, doc, req.ActorID, map[string]interface{}{
			event.KeyTotalSteps: len(inst.Steps),
		}).ForInstance(inst.ID)
		if err := s.engine.HandleEvent(txCtx, submitted); err != nil {
			return err
		}
		events = append(events, submitted)
		return nil
	})
	if err != nil {
		s.logger.Info("Submission refused", "document_id", req.DocumentID, "actor_id", req.ActorID, "error", err.Error())
		return nil, err
	}

	s.publish(ctx, events)
	s.logger.Info("Document submitted", "document_id", req.DocumentID, "instance_id", inst.ID, "steps", len(inst.Steps))
	return inst, nil
}

// SignStep signs the current step with the actor's stored signature image
func (s *approvalServiceImpl) SignStep(ctx context.Context, documentID int64, stepOrder int, actorID string) (*entity.ApprovalInstance, error) {
	return s.act(ctx, documentID, actorID, "sign", func(txCtx context.Context, doc *entity.Document, tr *approval.Tracker, now time.Time) ([]*event.Event, error) {
		sigRef, err := s.signatures.GetSignatureImage(txCtx, actorID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		if err := tr.Sign(stepOrder, actorID, sigRef, now); err != nil {
			return nil, err
		}
		if err := s.recordHistory(txCtx, doc, tr.Instance().ID, actorID, entity.ActionSign, stepData(stepOrder), now); err != nil {
			return nil, err
		}
		return []*event.Event{
			event.NewEvent(event.TypeStepSigned, doc, actorID, map[string]interface{}{event.KeyStep: stepOrder}).ForInstance(tr.Instance().ID),
		}, nil
	})
}

// UnsignStep retracts the actor's signature while the step is still current
func (s *approvalServiceImpl) UnsignStep(ctx context.Context, documentID int64, stepOrder int, actorID string) (*entity.ApprovalInstance, error) {
	return s.act(ctx, documentID, actorID, "unsign", func(txCtx context.Context, doc *entity.Document, tr *approval.Tracker, now time.Time) ([]*event.Event, error) {
		if err := tr.Unsign(stepOrder, actorID); err != nil {
			return nil, err
		}
		return nil, s.recordHistory(txCtx, doc, tr.Instance().ID, actorID, entity.ActionUnsign, stepData(stepOrder), now)
	})
}

// ApproveStep advances past the signed current step
func (s *approvalServiceImpl) ApproveStep(ctx context.Context, documentID int64, actorID string) (*entity.ApprovalInstance, error) {
	return s.act(ctx, documentID, actorID, "approve", func(txCtx context.Context, doc *entity.Document, tr *approval.Tracker, now time.Time) ([]*event.Event, error) {
		adv, err := tr.ApproveCurrent(actorID, now)
		if err != nil {
			return nil, err
		}
		if err := s.recordHistory(txCtx, doc, tr.Instance().ID, actorID, entity.ActionApprove, stepData(adv.ApprovedStep), now); err != nil {
			return nil, err
		}

		events := []*event.Event{
			event.NewEvent(event.TypeStepApproved, doc, actorID, map[string]interface{}{
				event.KeyStep:       adv.ApprovedStep,
				event.KeyTotalSteps: adv.TotalSteps,
			}).ForInstance(tr.Instance().ID),
		}
		if adv.Completed {
			events = append(events, event.NewEventWithCorrelation(event.TypeInstanceCompleted, doc, actorID, nil, events[0].CorrelationID).ForInstance(tr.Instance().ID))
		}
		return events, nil
	})
}

// RejectStep rejects the current step; the instance is retired for good
func (s *approvalServiceImpl) RejectStep(ctx context.Context, documentID int64, actorID, reason string) (*entity.ApprovalInstance, error) {
	return s.act(ctx, documentID, actorID, "reject", func(txCtx context.Context, doc *entity.Document, tr *approval.Tracker, now time.Time) ([]*event.Event, error) {
		cur, _ := tr.CurrentStep()
		if err := tr.RejectCurrent(actorID, reason, now); err != nil {
			return nil, err
		}
		reason = strings.TrimSpace(reason)
		if err := s.recordHistory(txCtx, doc, tr.Instance().ID, actorID, entity.ActionReject, reason, now); err != nil {
			return nil, err
		}
		return []*event.Event{
			event.NewEvent(event.TypeInstanceRejected, doc, actorID, map[string]interface{}{
				event.KeyStep:   cur.StepOrder,
				event.KeyReason: reason,
			}).ForInstance(tr.Instance().ID),
		}, nil
	})
}

// FinalApprove completes the instance from a step flagged for final approval,
// skipping every later step
func (s *approvalServiceImpl) FinalApprove(ctx context.Context, documentID int64, actorID string) (*entity.ApprovalInstance, error) {
	return s.act(ctx, documentID, actorID, "final-approve", func(txCtx context.Context, doc *entity.Document, tr *approval.Tracker, now time.Time) ([]*event.Event, error) {
		adv, err := tr.FinalApprove(actorID, now)
		if err != nil {
			return nil, err
		}

		s.logger.Warn("Final approval override",
			"override", true,
			"document_id", doc.ID,
			"instance_id", tr.Instance().ID,
			"step", adv.ApprovedStep,
			"skipped", adv.Skipped,
			"actor_id", actorID)

		if err := s.recordHistory(txCtx, doc, tr.Instance().ID, actorID, entity.ActionFinalApprovalOverride, skippedData(adv), now); err != nil {
			return nil, err
		}

		override := event.NewEvent(event.TypeFinalApprovalOverride, doc, actorID, map[string]interface{}{
			event.KeyStep:       adv.ApprovedStep,
			event.KeyTotalSteps: adv.TotalSteps,
			event.KeySkipped:    adv.Skipped,
		}).ForInstance(tr.Instance().ID)
		completed := event.NewEventWithCorrelation(event.TypeInstanceCompleted, doc, actorID, nil, override.CorrelationID).ForInstance(tr.Instance().ID)
		return []*event.Event{override, completed}, nil
	})
}

// GetCurrentStep returns the step awaiting action on the document's active instance
func (s *approvalServiceImpl) GetCurrentStep(ctx context.Context, documentID int64) (*entity.StepInstance, error) {
	inst, err := s.GetActiveInstance(ctx, documentID)
	if err != nil {
		return nil, err
	}
	tr, err := approval.NewTracker(inst)
	if err != nil {
		return nil, err
	}
	cur, ok := tr.CurrentStep()
	if !ok {
		return nil, apperr.NotFound("document %d has no current step", documentID)
	}
	return cur, nil
}

// GetActiveInstance returns the document's active instance
func (s *approvalServiceImpl) GetActiveInstance(ctx context.Context, documentID int64) (*entity.ApprovalInstance, error) {
	return s.instanceRepo.GetActiveByDocument(ctx, documentID)
}

// ListInstances returns every instance of a document, the retired ones included
func (s *approvalServiceImpl) ListInstances(ctx context.Context, documentID int64) ([]*entity.ApprovalInstance, error) {
	return s.instanceRepo.ListByDocument(ctx, documentID)
}

type stepAction func(txCtx context.Context, doc *entity.Document, tr *approval.Tracker, now time.Time) ([]*event.Event, error)

// act runs one step action on the document's active instance. The instance is
// saved with a version check, then the resulting events drive the lifecycle
// engine in the same transaction and are published after commit.
func (s *approvalServiceImpl) act(ctx context.Context, documentID int64, actorID, action string, fn stepAction) (*entity.ApprovalInstance, error) {
	var (
		inst   *entity.ApprovalInstance
		events []*event.Event
	)

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		doc, err := s.documentRepo.GetByID(txCtx, documentID)
		if err != nil {
			return err
		}
		if doc.Type == entity.DocumentTypeContract && doc.Status != domainwf.StateSignedByEmployee {
			return apperr.StateConflict("contract %d steps open once the employee has signed (status %s)", doc.ID, doc.Status)
		}

		inst, err = s.instanceRepo.GetActiveByDocument(txCtx, documentID)
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.StateConflict("document %d has no active approval instance", documentID)
		}
		if err != nil {
			return err
		}

		tr, err := approval.NewTracker(inst)
		if err != nil {
			s.logger.Error("Approval instance failed integrity check", "document_id", documentID, "instance_id", inst.ID, "error", err)
			return err
		}

		events, err = fn(txCtx, doc, tr, s.now())
		if err != nil {
			return err
		}

		if err := s.instanceRepo.Save(txCtx, inst); err != nil {
			return err
		}

		for _, evt := range events {
			if err := s.engine.HandleEvent(txCtx, evt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Info("Step action refused", "action", action, "document_id", documentID, "actor_id", actorID, "error", err.Error())
		return nil, err
	}

	s.publish(ctx, events)
	s.logger.Info("Step action applied", "action", action, "document_id", documentID, "instance_id", inst.ID, "status", string(inst.Status))
	return inst, nil
}

func (s *approvalServiceImpl) recordHistory(ctx context.Context, doc *entity.Document, instanceID int64, actorID, action, data string, now time.Time) error {
	return s.historyRepo.Create(ctx, &entity.ApprovalHistory{
		DocumentID:     doc.ID,
		InstanceID:     instanceID,
		ActorID:        actorID,
		PreviousStatus: doc.Status.String(),
		NewStatus:      doc.Status.String(),
		ActionType:     action,
		ActionData:     data,
		Timestamp:      now,
	})
}

func (s *approvalServiceImpl) publish(ctx context.Context, events []*event.Event) {
	if s.dispatcher == nil {
		return
	}
	for _, evt := range events {
		s.dispatcher.DispatchAsync(ctx, evt)
	}
}

func submittable(doc *entity.Document) bool {
	switch doc.Type {
	case entity.DocumentTypeWorkSchedule:
		return doc.Status == domainwf.StateDraft || doc.Status == domainwf.StateRejected
	case entity.DocumentTypeContract:
		return doc.Status == domainwf.StateDraft || doc.Status == domainwf.StateReturnedToAdmin
	default:
		return false
	}
}

func documentContext(doc *entity.Document) approval.DocumentContext {
	return approval.DocumentContext{
		DocumentID:    doc.ID,
		DocumentType:  doc.Type,
		OwnerID:       doc.CreatorID,
		OwnerDeptCode: doc.CreatorDeptCode,
	}
}
