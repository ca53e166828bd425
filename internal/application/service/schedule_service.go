package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/garyjia/docflow/internal/application/dispatcher"
	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/approval"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/event"
	"github.com/garyjia/docflow/internal/domain/shiftgrid"
	domainwf "github.com/garyjia/docflow/internal/domain/workflow"
)

// DocumentReader loads a document on behalf of a viewer
type DocumentReader interface {
	Get(ctx context.Context, id int64, viewerID string) (*entity.Document, error)
}

// Grid is the rendered state of a work schedule
type Grid struct {
	Document *entity.Document      `json:"document"`
	Entries  []entity.ShiftEntry   `json:"entries"`
	Columns  []shiftgrid.DayColumn `json:"columns"`
	Warnings []shiftgrid.Warning   `json:"warnings,omitempty"`
}

// AddEntryRequest adds one person to a schedule
type AddEntryRequest struct {
	PersonID          string
	PositionID        string
	NightDutyRequired *int
	VacationTotal     float64
	SortOrder         int
}

// ScheduleOptions holds defaults for new schedule rows
type ScheduleOptions struct {
	DefaultNightDutyRequired int
}

// ScheduleService edits and renders work schedule grids
type ScheduleService interface {
	Grid(ctx context.Context, documentID int64, viewerID string) (*Grid, error)
	AddEntry(ctx context.Context, documentID int64, actorID string, req AddEntryRequest) (*entity.ShiftEntry, error)
	RemoveEntry(ctx context.Context, documentID, entryID int64, actorID string) error
	// ApplyCode writes code into the selected cells of one row
	ApplyCode(ctx context.Context, documentID int64, actorID string, cells []shiftgrid.Cell, code string) (*entity.ShiftEntry, []shiftgrid.Warning, error)
	Recompute(ctx context.Context, documentID, entryID int64, actorID string) (*entity.ShiftEntry, error)
	ToggleRowMode(ctx context.Context, documentID, entryID int64, actorID, text string) (*entity.ShiftEntry, error)
	// SaveEntries commits buffered patches; each field is last-write-wins
	SaveEntries(ctx context.Context, documentID int64, actorID string, patches []shiftgrid.EntryPatch) ([]entity.ShiftEntry, []shiftgrid.Warning, error)
	SignAsCreator(ctx context.Context, documentID int64, actorID string) (*entity.Document, error)
	ClearCreatorSignature(ctx context.Context, documentID int64, actorID string) (*entity.Document, error)
	Export(ctx context.Context, documentID int64, viewerID string, w io.Writer) error
	ExportFormat() (contentType, extension string)
}

type scheduleServiceImpl struct {
	documents    DocumentReader
	documentRepo port.DocumentRepository
	shiftRepo    port.ShiftEntryRepository
	historyRepo  port.HistoryRepository
	directory    approval.Directory
	signatures   port.SignatureStore
	calendar     port.HolidayCalendar
	exporter     port.ScheduleExporter
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher
	options      ScheduleOptions
	logger       Logger
	now          func() time.Time
}

// NewScheduleService creates a new ScheduleService. calendar may be nil.
func NewScheduleService(
	documents DocumentReader,
	documentRepo port.DocumentRepository,
	shiftRepo port.ShiftEntryRepository,
	historyRepo port.HistoryRepository,
	directory approval.Directory,
	signatures port.SignatureStore,
	calendar port.HolidayCalendar,
	exporter port.ScheduleExporter,
	txManager port.TransactionManager,
	disp dispatcher.Dispatcher,
	options ScheduleOptions,
	logger Logger,
) ScheduleService {
	return &scheduleServiceImpl{
		documents:    documents,
		documentRepo: documentRepo,
		shiftRepo:    shiftRepo,
		historyRepo:  historyRepo,
		directory:    directory,
		signatures:   signatures,
		calendar:     calendar,
		exporter:     exporter,
		txManager:    txManager,
		dispatcher:   disp,
		options:      options,
		logger:       logger,
		now:          time.Now,
	}
}

// Grid returns the rows, day columns and advisories of a schedule
func (s *scheduleServiceImpl) Grid(ctx context.Context, documentID int64, viewerID string) (*Grid, error) {
	doc, err := s.documents.Get(ctx, documentID, viewerID)
	if err != nil {
		return nil, err
	}
	if doc.Type != entity.DocumentTypeWorkSchedule {
		return nil, apperr.Validation("document %d is not a work schedule", documentID)
	}

	entries, err := s.shiftRepo.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	shiftgrid.SortEntries(entries)

	grid := &Grid{
		Document: doc,
		Entries:  entries,
		Columns:  s.columns(ctx, doc),
	}
	for i := range entries {
		grid.Warnings = append(grid.Warnings, shiftgrid.CheckConsecutivePattern(&entries[i])...)
	}
	return grid, nil
}

// AddEntry appends a person to a draft schedule
func (s *scheduleServiceImpl) AddEntry(ctx context.Context, documentID int64, actorID string, req AddEntryRequest) (*entity.ShiftEntry, error) {
	if req.PersonID == "" {
		return nil, apperr.Validation("person is required")
	}
	if req.NightDutyRequired != nil && *req.NightDutyRequired < 0 {
		return nil, apperr.Validation("night duty required cannot be negative")
	}
	if req.VacationTotal < 0 {
		return nil, apperr.Validation("vacation total cannot be negative")
	}

	var entry *entity.ShiftEntry
	err := s.mutate(ctx, documentID, actorID, "add-entry", func(txCtx context.Context, doc *entity.Document, entries []entity.ShiftEntry) error {
		person, err := s.directory.GetIdentity(txCtx, req.PersonID)
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Validation("unknown person %q", req.PersonID)
		} else if err != nil {
			return err
		}

		sortOrder := req.SortOrder
		for _, e := range entries {
			if e.PersonID == req.PersonID {
				return apperr.Validation("%s is already on schedule %d", req.PersonID, documentID)
			}
			if req.SortOrder == 0 && e.SortOrder >= sortOrder {
				sortOrder = e.SortOrder + 1
			}
		}
		if sortOrder == 0 {
			sortOrder = 1
		}

		nightDuty := s.options.DefaultNightDutyRequired
		if req.NightDutyRequired != nil {
			nightDuty = *req.NightDutyRequired
		}

		entry = &entity.ShiftEntry{
			DocumentID:        documentID,
			PersonID:          person.ID,
			PersonName:        person.Name,
			PositionID:        req.PositionID,
			SortOrder:         sortOrder,
			Content:           entity.StructuredDays{Codes: entity.DayCodes{}},
			NightDutyRequired: nightDuty,
			VacationTotal:     req.VacationTotal,
		}
		shiftgrid.Refresh(entry)
		return s.shiftRepo.Create(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RemoveEntry drops a row from a draft schedule
func (s *scheduleServiceImpl) RemoveEntry(ctx context.Context, documentID, entryID int64, actorID string) error {
	return s.mutate(ctx, documentID, actorID, "remove-entry", func(txCtx context.Context, doc *entity.Document, entries []entity.ShiftEntry) error {
		if _, err := findEntry(entries, entryID); err != nil {
			return err
		}
		return s.shiftRepo.Delete(txCtx, entryID)
	})
}

// ApplyCode writes one code into a selection of cells
func (s *scheduleServiceImpl) ApplyCode(ctx context.Context, documentID int64, actorID string, cells []shiftgrid.Cell, code string) (*entity.ShiftEntry, []shiftgrid.Warning, error) {
	var (
		updated  entity.ShiftEntry
		warnings []shiftgrid.Warning
		doc      *entity.Document
	)
	err := s.mutate(ctx, documentID, actorID, "apply-code", func(txCtx context.Context, d *entity.Document, entries []entity.ShiftEntry) error {
		doc = d
		buf := shiftgrid.NewBuffer(entries, shiftgrid.DaysIn(d.Year, d.Month))
		var err error
		if updated, err = buf.ApplyCode(cells, code); err != nil {
			return err
		}
		if err := s.shiftRepo.Update(txCtx, &updated); err != nil {
			return err
		}
		warnings = shiftgrid.CheckConsecutivePattern(&updated)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.warn(ctx, doc, actorID, warnings)
	return &updated, warnings, nil
}

// Recompute re-derives the totals of one row from its codes
func (s *scheduleServiceImpl) Recompute(ctx context.Context, documentID, entryID int64, actorID string) (*entity.ShiftEntry, error) {
	var entry entity.ShiftEntry
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		doc, err := s.loadEditable(txCtx, documentID, actorID)
		if err != nil {
			return err
		}
		entries, err := s.shiftRepo.ListByDocument(txCtx, doc.ID)
		if err != nil {
			return err
		}
		if entry, err = findEntry(entries, entryID); err != nil {
			return err
		}
		shiftgrid.Refresh(&entry)
		return s.shiftRepo.Update(txCtx, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ToggleRowMode switches a row between day codes and free text
func (s *scheduleServiceImpl) ToggleRowMode(ctx context.Context, documentID, entryID int64, actorID, text string) (*entity.ShiftEntry, error) {
	var updated entity.ShiftEntry
	err := s.mutate(ctx, documentID, actorID, "toggle-mode", func(txCtx context.Context, doc *entity.Document, entries []entity.ShiftEntry) error {
		buf := shiftgrid.NewBuffer(entries, shiftgrid.DaysIn(doc.Year, doc.Month))
		var err error
		if updated, err = buf.ToggleFreeText(entryID, text); err != nil {
			return err
		}
		return s.shiftRepo.Update(txCtx, &updated)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// SaveEntries commits a batch of row patches in one transaction
func (s *scheduleServiceImpl) SaveEntries(ctx context.Context, documentID int64, actorID string, patches []shiftgrid.EntryPatch) ([]entity.ShiftEntry, []shiftgrid.Warning, error) {
	if len(patches) == 0 {
		return nil, nil, apperr.Validation("no changes to save")
	}

	var (
		saved    []entity.ShiftEntry
		warnings []shiftgrid.Warning
		doc      *entity.Document
	)
	err := s.mutate(ctx, documentID, actorID, "save-entries", func(txCtx context.Context, d *entity.Document, entries []entity.ShiftEntry) error {
		doc = d
		daysInMonth := shiftgrid.DaysIn(d.Year, d.Month)
		for _, p := range patches {
			if p.Empty() {
				continue
			}
			e, err := findEntry(entries, p.EntryID)
			if err != nil {
				return err
			}
			if e, err = shiftgrid.ApplyPatch(e, p, daysInMonth); err != nil {
				return err
			}
			if err := s.shiftRepo.Update(txCtx, &e); err != nil {
				return err
			}
			replaceEntry(entries, e)
			saved = append(saved, e)
		}
		for i := range saved {
			warnings = append(warnings, shiftgrid.CheckConsecutivePattern(&saved[i])...)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.warn(ctx, doc, actorID, warnings)
	return saved, warnings, nil
}

// SignAsCreator captures the creator's sign-off, the gate for submission
func (s *scheduleServiceImpl) SignAsCreator(ctx context.Context, documentID int64, actorID string) (*entity.Document, error) {
	var doc *entity.Document
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		if doc, err = s.loadEditable(txCtx, documentID, actorID); err != nil {
			return err
		}
		sigRef, err := s.signatures.GetSignatureImage(txCtx, actorID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		if sigRef == "" {
			return apperr.Precondition("%s has no stored signature", actorID)
		}

		now := s.now()
		doc.CreatorSignatureRef = sigRef
		doc.CreatorSignedAt = &now
		if err := s.documentRepo.Update(txCtx, doc); err != nil {
			return err
		}
		return s.recordHistory(txCtx, doc, actorID, entity.ActionCreatorSign, now)
	})
	if err != nil {
		s.logger.Info("Creator signature refused", "document_id", documentID, "actor_id", actorID, "error", err.Error())
		return nil, err
	}

	s.logger.Info("Creator signed schedule", "document_id", documentID, "actor_id", actorID)
	return doc, nil
}

// ClearCreatorSignature removes the creator's sign-off from a draft
func (s *scheduleServiceImpl) ClearCreatorSignature(ctx context.Context, documentID int64, actorID string) (*entity.Document, error) {
	var doc *entity.Document
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		if doc, err = s.loadEditable(txCtx, documentID, actorID); err != nil {
			return err
		}
		return s.clearSignature(txCtx, doc, actorID)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Export writes the schedule grid in the exporter's format
func (s *scheduleServiceImpl) Export(ctx context.Context, documentID int64, viewerID string, w io.Writer) error {
	if s.exporter == nil {
		return apperr.Precondition("no schedule exporter configured")
	}
	grid, err := s.Grid(ctx, documentID, viewerID)
	if err != nil {
		return err
	}
	if err := s.exporter.Export(ctx, grid.Document, grid.Entries, grid.Columns, w); err != nil {
		s.logger.Error("Failed to export schedule", "error", err, "document_id", documentID)
		return err
	}
	s.logger.Info("Schedule exported", "document_id", documentID, "viewer_id", viewerID, "rows", len(grid.Entries))
	return nil
}

// ExportFormat returns the content type and file extension of exports
func (s *scheduleServiceImpl) ExportFormat() (string, string) {
	if s.exporter == nil {
		return "application/octet-stream", ""
	}
	return s.exporter.ContentType(), s.exporter.Extension()
}

type gridMutation func(txCtx context.Context, doc *entity.Document, entries []entity.ShiftEntry) error

// mutate runs a grid edit on an editable schedule and drops a stale creator signature
func (s *scheduleServiceImpl) mutate(ctx context.Context, documentID int64, actorID, action string, fn gridMutation) error {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		doc, err := s.loadEditable(txCtx, documentID, actorID)
		if err != nil {
			return err
		}
		entries, err := s.shiftRepo.ListByDocument(txCtx, doc.ID)
		if err != nil {
			return err
		}
		if err := fn(txCtx, doc, entries); err != nil {
			return err
		}
		return s.clearSignature(txCtx, doc, actorID)
	})
	if err != nil {
		s.logger.Info("Schedule edit refused", "document_id", documentID, "actor_id", actorID, "action", action, "error", err.Error())
	}
	return err
}

func (s *scheduleServiceImpl) loadEditable(ctx context.Context, documentID int64, actorID string) (*entity.Document, error) {
	doc, err := s.documentRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Type != entity.DocumentTypeWorkSchedule {
		return nil, apperr.Validation("document %d is not a work schedule", documentID)
	}
	if !doc.IsCreator(actorID) {
		return nil, apperr.Unauthorized("only the creator can edit schedule %d", documentID)
	}
	if doc.Status != domainwf.StateDraft {
		return nil, apperr.StateConflict("schedule %d is not a draft (status %s)", documentID, doc.Status)
	}
	return doc, nil
}

func (s *scheduleServiceImpl) clearSignature(ctx context.Context, doc *entity.Document, actorID string) error {
	if !doc.HasCreatorSignature() {
		return nil
	}
	doc.CreatorSignatureRef = ""
	doc.CreatorSignedAt = nil
	if err := s.documentRepo.Update(ctx, doc); err != nil {
		return err
	}
	s.logger.Info("Creator signature cleared", "document_id", doc.ID, "actor_id", actorID)
	return s.recordHistory(ctx, doc, actorID, entity.ActionCreatorSignatureClear, s.now())
}

func (s *scheduleServiceImpl) recordHistory(ctx context.Context, doc *entity.Document, actorID, action string, now time.Time) error {
	return s.historyRepo.Create(ctx, &entity.ApprovalHistory{
		DocumentID:     doc.ID,
		ActorID:        actorID,
		PreviousStatus: doc.Status.String(),
		NewStatus:      doc.Status.String(),
		ActionType:     action,
		Timestamp:      now,
	})
}

func (s *scheduleServiceImpl) columns(ctx context.Context, doc *entity.Document) []shiftgrid.DayColumn {
	var holidays []shiftgrid.Holiday
	if s.calendar != nil {
		var err error
		holidays, err = s.calendar.ListHolidays(ctx, doc.Year)
		if err != nil {
			s.logger.Warn("Holiday calendar unavailable", "error", err, "year", doc.Year)
			holidays = nil
		}
	}
	return shiftgrid.Columns(doc.Year, doc.Month, holidays)
}

// warn logs and publishes pattern advisories. They never block the edit.
func (s *scheduleServiceImpl) warn(ctx context.Context, doc *entity.Document, actorID string, warnings []shiftgrid.Warning) {
	for _, w := range warnings {
		s.logger.Info("Shift pattern warning", "document_id", doc.ID, "person_id", w.PersonID, "start_day", w.StartDay, "message", w.Message)
		if s.dispatcher != nil {
			s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypePatternWarning, doc, actorID, map[string]interface{}{
				event.KeyMessage: w.Message,
			}))
		}
	}
}

func findEntry(entries []entity.ShiftEntry, id int64) (entity.ShiftEntry, error) {
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return entity.ShiftEntry{}, apperr.NotFound("shift entry %d", id)
}

func replaceEntry(entries []entity.ShiftEntry, e entity.ShiftEntry) {
	for i := range entries {
		if entries[i].ID == e.ID {
			entries[i] = e
			return
		}
	}
}
