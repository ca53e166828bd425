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

// CreateContractRequest holds the fields of a new contract draft
type CreateContractRequest struct {
	ActorID    string
	Title      string
	EmployeeID string
	Fields     map[string]string
}

// CreateScheduleRequest holds the fields of a new monthly schedule draft
type CreateScheduleRequest struct {
	ActorID string
	Title   string
	Year    int
	Month   int
}

// DocumentService manages documents outside the approval line itself
type DocumentService interface {
	CreateContract(ctx context.Context, req CreateContractRequest) (*entity.Document, error)
	CreateWorkSchedule(ctx context.Context, req CreateScheduleRequest) (*entity.Document, error)
	// Get returns the document when viewerID may see it
	Get(ctx context.Context, id int64, viewerID string) (*entity.Document, error)
	ListVisible(ctx context.Context, viewerID string, filter port.DocumentFilter) ([]*entity.Document, error)
	// UpdateContractFields merges fields into the contract; an empty value removes the field
	UpdateContractFields(ctx context.Context, id int64, actorID string, title *string, employeeID *string, fields map[string]string) (*entity.Document, error)
	Delete(ctx context.Context, id int64, actorID string) error
	EmployeeSign(ctx context.Context, id int64, actorID string) (*entity.Document, error)
	ReturnToAdmin(ctx context.Context, id int64, actorID, reason string) (*entity.Document, error)
	Revise(ctx context.Context, id int64, actorID string) (*entity.Document, error)
	History(ctx context.Context, id int64, viewerID string) ([]*entity.ApprovalHistory, error)
}

type documentServiceImpl struct {
	documentRepo port.DocumentRepository
	instanceRepo port.InstanceRepository
	shiftRepo    port.ShiftEntryRepository
	historyRepo  port.HistoryRepository
	directory    approval.Directory
	signatures   port.SignatureStore
	engine       workflow.LifecycleEngine
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher
	policy       workflow.VisibilityPolicy
	logger       Logger
	now          func() time.Time
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(
	documentRepo port.DocumentRepository,
	instanceRepo port.InstanceRepository,
	shiftRepo port.ShiftEntryRepository,
	historyRepo port.HistoryRepository,
	directory approval.Directory,
	signatures port.SignatureStore,
	engine workflow.LifecycleEngine,
	txManager port.TransactionManager,
	disp dispatcher.Dispatcher,
	policy workflow.VisibilityPolicy,
	logger Logger,
) DocumentService {
	return &documentServiceImpl{
		documentRepo: documentRepo,
		instanceRepo: instanceRepo,
		shiftRepo:    shiftRepo,
		historyRepo:  historyRepo,
		directory:    directory,
		signatures:   signatures,
		engine:       engine,
		txManager:    txManager,
		dispatcher:   disp,
		policy:       policy,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateContract creates a contract draft owned by the actor
func (s *documentServiceImpl) CreateContract(ctx context.Context, req CreateContractRequest) (*entity.Document, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, apperr.Validation("title is required")
	}
	creator, err := s.requireIdentity(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	if req.EmployeeID != "" {
		if _, err := s.requireIdentity(ctx, req.EmployeeID); err != nil {
			return nil, err
		}
	}

	doc := &entity.Document{
		Type:            entity.DocumentTypeContract,
		Title:           strings.TrimSpace(req.Title),
		CreatorID:       creator.ID,
		CreatorDeptCode: creator.DeptCode,
		Status:          domainwf.StateDraft,
		EmployeeID:      req.EmployeeID,
		FormData:        mergeFields(nil, req.Fields),
	}
	if err := s.documentRepo.Create(ctx, doc); err != nil {
		s.logger.Error("Failed to create contract", "error", err, "actor_id", req.ActorID)
		return nil, err
	}

	s.logger.Info("Contract created", "document_id", doc.ID, "creator_id", doc.CreatorID, "employee_id", doc.EmployeeID)
	return doc, nil
}

// CreateWorkSchedule creates an empty monthly schedule draft owned by the actor
func (s *documentServiceImpl) CreateWorkSchedule(ctx context.Context, req CreateScheduleRequest) (*entity.Document, error) {
	if req.Month < 1 || req.Month > 12 {
		return nil, apperr.Validation("month must be 1..12, got %d", req.Month)
	}
	if req.Year < 1900 || req.Year > 9999 {
		return nil, apperr.Validation("year %d is out of range", req.Year)
	}
	creator, err := s.requireIdentity(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = time.Date(req.Year, time.Month(req.Month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01") + " work schedule"
	}

	doc := &entity.Document{
		Type:            entity.DocumentTypeWorkSchedule,
		Title:           title,
		CreatorID:       creator.ID,
		CreatorDeptCode: creator.DeptCode,
		Status:          domainwf.StateDraft,
		Year:            req.Year,
		Month:           req.Month,
	}
	if err := s.documentRepo.Create(ctx, doc); err != nil {
		s.logger.Error("Failed to create work schedule", "error", err, "actor_id", req.ActorID)
		return nil, err
	}

	s.logger.Info("Work schedule created", "document_id", doc.ID, "creator_id", doc.CreatorID, "year", doc.Year, "month", doc.Month)
	return doc, nil
}

// Get returns a document visible to viewerID
func (s *documentServiceImpl) Get(ctx context.Context, id int64, viewerID string) (*entity.Document, error) {
	doc, err := s.documentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	viewer, err := s.viewer(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	approvers, err := s.approverIDs(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	if !workflow.CanView(doc, viewer, approvers, s.policy) {
		return nil, apperr.Unauthorized("%s may not view document %d", viewerID, id)
	}
	return doc, nil
}

// ListVisible lists the documents matching filter that viewerID may see
func (s *documentServiceImpl) ListVisible(ctx context.Context, viewerID string, filter port.DocumentFilter) ([]*entity.Document, error) {
	viewer, err := s.viewer(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	approverOf, err := s.instanceRepo.ListDocumentIDsByApprover(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	approving := make(map[int64]bool, len(approverOf))
	for _, id := range approverOf {
		approving[id] = true
	}

	docs, err := s.documentRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	visible := make([]*entity.Document, 0, len(docs))
	for _, doc := range docs {
		var approvers []string
		if approving[doc.ID] {
			approvers = []string{viewerID}
		}
		if workflow.CanView(doc, viewer, approvers, s.policy) {
			visible = append(visible, doc)
		}
	}
	return visible, nil
}

// UpdateContractFields edits an editable contract. Each field is last-write-wins.
func (s *documentServiceImpl) UpdateContractFields(ctx context.Context, id int64, actorID string, title *string, employeeID *string, fields map[string]string) (*entity.Document, error) {
	var doc *entity.Document
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		doc, err = s.documentRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if doc.Type != entity.DocumentTypeContract {
			return apperr.Validation("document %d is not a contract", id)
		}
		if !doc.IsCreator(actorID) {
			return apperr.Unauthorized("only the creator can edit document %d", id)
		}
		if !doc.Status.IsEditable() {
			return apperr.StateConflict("document %d is not editable in %s", id, doc.Status)
		}

		if title != nil {
			if strings.TrimSpace(*title) == "" {
				return apperr.Validation("title is required")
			}
			doc.Title = strings.TrimSpace(*title)
		}
		if employeeID != nil && *employeeID != doc.EmployeeID {
			if *employeeID != "" {
				if _, err := s.requireIdentity(txCtx, *employeeID); err != nil {
					return err
				}
			}
			doc.EmployeeID = *employeeID
		}
		doc.FormData = mergeFields(doc.FormData, fields)
		return s.documentRepo.Update(txCtx, doc)
	})
	if err != nil {
		s.logger.Info("Contract update refused", "document_id", id, "actor_id", actorID, "error", err.Error())
		return nil, err
	}
	return doc, nil
}

// Delete removes an early-stage document owned by the actor
func (s *documentServiceImpl) Delete(ctx context.Context, id int64, actorID string) error {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		doc, err := s.documentRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if !doc.IsCreator(actorID) {
			return apperr.Unauthorized("only the creator can delete document %d", id)
		}
		if !doc.Status.IsEditable() {
			return apperr.StateConflict("document %d cannot be deleted in %s", id, doc.Status)
		}
		if _, err := s.instanceRepo.GetActiveByDocument(txCtx, id); err == nil {
			return apperr.StateConflict("document %d has an active approval instance", id)
		} else if !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		if err := s.shiftRepo.DeleteByDocument(txCtx, id); err != nil {
			return err
		}
		return s.documentRepo.Delete(txCtx, id)
	})
	if err != nil {
		s.logger.Info("Document delete refused", "document_id", id, "actor_id", actorID, "error", err.Error())
		return err
	}

	s.logger.Info("Document deleted", "document_id", id, "actor_id", actorID)
	return nil
}

// EmployeeSign records the named employee's signature on a sent contract
func (s *documentServiceImpl) EmployeeSign(ctx context.Context, id int64, actorID string) (*entity.Document, error) {
	return s.contractAction(ctx, id, actorID, func(txCtx context.Context, doc *entity.Document, now time.Time) (*event.Event, error) {
		if doc.Status != domainwf.StateSentToEmployee {
			return nil, apperr.StateConflict("contract %d is not awaiting the employee (status %s)", id, doc.Status)
		}
		sigRef, err := s.signatures.GetSignatureImage(txCtx, actorID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		if sigRef == "" {
			return nil, apperr.Precondition("%s has no stored signature", actorID)
		}

		signedAt := now
		doc.EmployeeSignatureRef = sigRef
		doc.EmployeeSignedAt = &signedAt
		if err := s.documentRepo.Update(txCtx, doc); err != nil {
			return nil, err
		}
		if err := s.recordHistory(txCtx, doc, actorID, entity.ActionEmployeeSign, "", now); err != nil {
			return nil, err
		}
		return event.NewEvent(event.TypeEmployeeSigned, doc, actorID, nil), nil
	})
}

// ReturnToAdmin lets the employee send a contract back for changes.
// The active instance is withdrawn; resending confirms a new one.
func (s *documentServiceImpl) ReturnToAdmin(ctx context.Context, id int64, actorID, reason string) (*entity.Document, error) {
	return s.contractAction(ctx, id, actorID, func(txCtx context.Context, doc *entity.Document, now time.Time) (*event.Event, error) {
		if doc.Status != domainwf.StateSentToEmployee {
			return nil, apperr.StateConflict("contract %d cannot be returned from %s", id, doc.Status)
		}

		inst, err := s.instanceRepo.GetActiveByDocument(txCtx, id)
		switch {
		case err == nil:
			tr, err := approval.NewTracker(inst)
			if err != nil {
				return nil, err
			}
			if err := tr.Withdraw(now); err != nil {
				return nil, err
			}
			if err := s.instanceRepo.Save(txCtx, inst); err != nil {
				return nil, err
			}
		case !errors.Is(err, apperr.ErrNotFound):
			return nil, err
		}

		reason = strings.TrimSpace(reason)
		if err := s.recordHistory(txCtx, doc, actorID, entity.ActionReturn, reason, now); err != nil {
			return nil, err
		}
		return event.NewEvent(event.TypeReturnedToAdmin, doc, actorID, map[string]interface{}{
			event.KeyReason: reason,
		}), nil
	})
}

// Revise reopens a rejected work schedule as a draft
func (s *documentServiceImpl) Revise(ctx context.Context, id int64, actorID string) (*entity.Document, error) {
	var (
		doc *entity.Document
		evt *event.Event
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		doc, err = s.documentRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if doc.Type != entity.DocumentTypeWorkSchedule {
			return apperr.Validation("document %d is not a work schedule", id)
		}
		if !doc.IsCreator(actorID) {
			return apperr.Unauthorized("only the creator can revise document %d", id)
		}
		now := s.now()
		if err := s.recordHistory(txCtx, doc, actorID, entity.ActionRevise, "", now); err != nil {
			return err
		}
		evt = event.NewEvent(event.TypeScheduleRevised, doc, actorID, nil)
		if err := s.engine.HandleEvent(txCtx, evt); err != nil {
			return err
		}
		doc, err = s.documentRepo.GetByID(txCtx, id)
		return err
	})
	if err != nil {
		s.logger.Info("Revise refused", "document_id", id, "actor_id", actorID, "error", err.Error())
		return nil, err
	}

	s.publish(ctx, evt)
	return doc, nil
}

// History returns the audit trail of a document visible to viewerID
func (s *documentServiceImpl) History(ctx context.Context, id int64, viewerID string) ([]*entity.ApprovalHistory, error) {
	if _, err := s.Get(ctx, id, viewerID); err != nil {
		return nil, err
	}
	return s.historyRepo.ListByDocument(ctx, id)
}

type contractStep func(txCtx context.Context, doc *entity.Document, now time.Time) (*event.Event, error)

// contractAction runs an employee action on a contract and feeds the resulting event to the engine
func (s *documentServiceImpl) contractAction(ctx context.Context, id int64, actorID string, fn contractStep) (*entity.Document, error) {
	var (
		doc *entity.Document
		evt *event.Event
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		doc, err = s.documentRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if doc.Type != entity.DocumentTypeContract {
			return apperr.Validation("document %d is not a contract", id)
		}
		if actorID == "" || doc.EmployeeID != actorID {
			return apperr.Unauthorized("%s is not the employee named on contract %d", actorID, id)
		}

		if evt, err = fn(txCtx, doc, s.now()); err != nil {
			return err
		}
		if err := s.engine.HandleEvent(txCtx, evt); err != nil {
			return err
		}
		doc, err = s.documentRepo.GetByID(txCtx, id)
		return err
	})
	if err != nil {
		s.logger.Info("Contract action refused", "document_id", id, "actor_id", actorID, "error", err.Error())
		return nil, err
	}

	s.publish(ctx, evt)
	s.logger.Info("Contract action applied", "document_id", id, "actor_id", actorID, "status", doc.Status.String())
	return doc, nil
}

func (s *documentServiceImpl) recordHistory(ctx context.Context, doc *entity.Document, actorID, action, data string, now time.Time) error {
	return s.historyRepo.Create(ctx, &entity.ApprovalHistory{
		DocumentID:     doc.ID,
		ActorID:        actorID,
		PreviousStatus: doc.Status.String(),
		NewStatus:      doc.Status.String(),
		ActionType:     action,
		ActionData:     data,
		Timestamp:      now,
	})
}

func (s *documentServiceImpl) publish(ctx context.Context, evt *event.Event) {
	if s.dispatcher != nil && evt != nil {
		s.dispatcher.DispatchAsync(ctx, evt)
	}
}

// viewer resolves the viewing identity. Ids unknown to the directory still
// see what they created or are named on.
func (s *documentServiceImpl) viewer(ctx context.Context, viewerID string) (*entity.Identity, error) {
	if viewerID == "" {
		return nil, apperr.Unauthorized("an actor is required")
	}
	ident, err := s.directory.GetIdentity(ctx, viewerID)
	if errors.Is(err, apperr.ErrNotFound) {
		return &entity.Identity{ID: viewerID}, nil
	}
	return ident, err
}

func (s *documentServiceImpl) requireIdentity(ctx context.Context, id string) (*entity.Identity, error) {
	if id == "" {
		return nil, apperr.Unauthorized("an actor is required")
	}
	ident, err := s.directory.GetIdentity(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Validation("unknown identity %q", id)
	}
	return ident, err
}

func (s *documentServiceImpl) approverIDs(ctx context.Context, documentID int64) ([]string, error) {
	instances, err := s.instanceRepo.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, inst := range instances {
		for _, step := range inst.Steps {
			ids = append(ids, step.ResolvedApproverID)
		}
	}
	return ids, nil
}

func mergeFields(current, updates map[string]string) map[string]string {
	if len(updates) == 0 {
		return current
	}
	out := make(map[string]string, len(current)+len(updates))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range updates {
		if v == "" {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}
