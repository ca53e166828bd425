package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/approval"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/workflow"
	"github.com/garyjia/docflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/docflow/migrations"
	"github.com/garyjia/docflow/pkg/database"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	logger := zap.NewNop()
	db, err := database.New(database.Config{Path: database.MemoryPath}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).RunMigrations(migrations.FS))
	return db.DB
}

func createSchedule(t *testing.T, repo port.DocumentRepository) *entity.Document {
	t.Helper()
	doc := &entity.Document{
		Type:      entity.DocumentTypeWorkSchedule,
		Title:     "March",
		CreatorID: "admin",
		Status:    workflow.StateDraft,
		Year:      2026,
		Month:     3,
	}
	require.NoError(t, repo.Create(context.Background(), doc))
	return doc
}

func TestDocumentRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepository(db, zap.NewNop())
	ctx := context.Background()

	contract := &entity.Document{
		Type:            entity.DocumentTypeContract,
		Title:           "Contract",
		CreatorID:       "admin",
		CreatorDeptCode: "OPS",
		Status:          workflow.StateDraft,
		EmployeeID:      "emp",
		FormData:        map[string]string{"salary": "3000"},
	}
	require.NoError(t, repo.Create(ctx, contract))
	assert.Equal(t, 1, contract.Version)

	got, err := repo.GetByID(ctx, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, "emp", got.EmployeeID)
	assert.Equal(t, map[string]string{"salary": "3000"}, got.FormData)
	assert.Equal(t, "OPS", got.CreatorDeptCode)

	signedAt := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	got.EmployeeSignatureRef = "sig/emp"
	got.EmployeeSignedAt = &signedAt
	require.NoError(t, repo.Update(ctx, got))
	assert.Equal(t, 2, got.Version)

	stale := *contract
	stale.Title = "stale"
	assert.ErrorIs(t, repo.Update(ctx, &stale), apperr.ErrStateConflict)

	reloaded, err := repo.GetByID(ctx, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, "sig/emp", reloaded.EmployeeSignatureRef)
	require.NotNil(t, reloaded.EmployeeSignedAt)
	assert.True(t, signedAt.Equal(*reloaded.EmployeeSignedAt))

	_, err = repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDocumentRepository_UpdateStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepository(db, zap.NewNop())
	ctx := context.Background()
	doc := createSchedule(t, repo)

	require.NoError(t, repo.UpdateStatus(ctx, doc.ID, workflow.StateDraft, workflow.StateSubmitted))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, doc.ID, workflow.StateDraft, workflow.StateSubmitted), apperr.ErrStateConflict)

	got, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateSubmitted, got.Status)
	assert.Equal(t, 2, got.Version)

	// body updates never touch the status
	got.Status = workflow.StateDraft
	require.NoError(t, repo.Update(ctx, got))
	again, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateSubmitted, again.Status)
}

func TestDocumentRepository_ListAndDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepository(db, zap.NewNop())
	ctx := context.Background()

	first := createSchedule(t, repo)
	second := createSchedule(t, repo)
	require.NoError(t, repo.UpdateStatus(ctx, second.ID, workflow.StateDraft, workflow.StateSubmitted))

	all, err := repo.List(ctx, port.DocumentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")

	drafts, err := repo.List(ctx, port.DocumentFilter{Status: workflow.StateDraft})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, first.ID, drafts[0].ID)

	contracts, err := repo.List(ctx, port.DocumentFilter{Type: entity.DocumentTypeContract})
	require.NoError(t, err)
	assert.Empty(t, contracts)

	page, err := repo.List(ctx, port.DocumentFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first.ID, page[0].ID)

	require.NoError(t, repo.Delete(ctx, first.ID))
	assert.ErrorIs(t, repo.Delete(ctx, first.ID), apperr.ErrNotFound)
}

func TestTemplateRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewTemplateRepository(db, zap.NewNop())
	ctx := context.Background()

	tmpl := &entity.ApprovalLineTemplate{
		Name:         "standard",
		DocumentType: entity.DocumentTypeWorkSchedule,
		OwnerID:      "admin",
		Steps: []entity.StepDefinition{
			{StepOrder: 2, StepName: "Director", ApproverType: entity.ApproverCenterDirector, IsFinalApprovalAvailable: true},
			{StepOrder: 1, StepName: "Head", ApproverType: entity.ApproverDepartmentHead, IsOptional: true, DeptCode: "OPS"},
		},
	}
	require.NoError(t, repo.Create(ctx, tmpl))

	got, err := repo.GetByID(ctx, tmpl.ID)
	require.NoError(t, err)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "Head", got.Steps[0].StepName)
	assert.True(t, got.Steps[0].IsOptional)
	assert.Equal(t, "OPS", got.Steps[0].DeptCode)
	assert.True(t, got.Steps[1].IsFinalApprovalAvailable)

	got.Steps = got.Steps[:1]
	got.Name = "short"
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.GetByID(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "short", got.Name)
	assert.Len(t, got.Steps, 1)

	list, err := repo.ListByDocumentType(ctx, entity.DocumentTypeContract)
	require.NoError(t, err)
	assert.Empty(t, list)
	list, err = repo.ListByDocumentType(ctx, "")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, tmpl.ID))
	_, err = repo.GetByID(ctx, tmpl.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	var orphans int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM approval_template_steps`).Scan(&orphans))
	assert.Zero(t, orphans)
}

func newInstance(docID int64) *entity.ApprovalInstance {
	return &entity.ApprovalInstance{
		DocumentID:   docID,
		DocumentType: entity.DocumentTypeWorkSchedule,
		TemplateID:   1,
		Status:       entity.InstanceActive,
		Steps: []entity.StepInstance{
			{StepOrder: 1, SourceStepOrder: 1, Name: "Head", ResolvedApproverID: "head", IsCurrent: true},
			{StepOrder: 2, SourceStepOrder: 3, Name: "Director", ResolvedApproverID: "dir", IsFinalApprovalAvailable: true},
		},
	}
}

func TestInstanceRepository(t *testing.T) {
	db := newTestDB(t)
	docs := NewDocumentRepository(db, zap.NewNop())
	repo := NewInstanceRepository(db, zap.NewNop())
	ctx := context.Background()
	doc := createSchedule(t, docs)

	inst := newInstance(doc.ID)
	require.NoError(t, repo.Create(ctx, inst))
	assert.NotZero(t, inst.Steps[0].ID)

	// only one active instance per document
	assert.ErrorIs(t, repo.Create(ctx, newInstance(doc.ID)), apperr.ErrStateConflict)

	active, err := repo.GetActiveByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, inst.ID, active.ID)
	require.Len(t, active.Steps, 2)
	assert.Equal(t, 3, active.Steps[1].SourceStepOrder)
	assert.True(t, active.Steps[0].IsCurrent)

	stale, err := repo.GetByID(ctx, inst.ID)
	require.NoError(t, err)

	now := time.Now()
	tr, err := approval.NewTracker(active)
	require.NoError(t, err)
	require.NoError(t, tr.Sign(1, "head", "sig/head", now))
	require.NoError(t, repo.Save(ctx, active))
	assert.Equal(t, 2, active.Version)

	assert.ErrorIs(t, repo.Save(ctx, stale), apperr.ErrStateConflict)

	saved, err := repo.GetByID(ctx, inst.ID)
	require.NoError(t, err)
	assert.True(t, saved.Steps[0].IsSigned)
	assert.Equal(t, "sig/head", saved.Steps[0].SignatureRef)

	tr, err = approval.NewTracker(saved)
	require.NoError(t, err)
	require.NoError(t, tr.RejectCurrent("head", "no", now))
	require.NoError(t, repo.Save(ctx, saved))

	_, err = repo.GetActiveByDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	next := newInstance(doc.ID)
	require.NoError(t, repo.Create(ctx, next), "a retired instance frees the slot")

	list, err := repo.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, next.ID, list[0].ID)
	assert.Equal(t, entity.InstanceRejected, list[1].Status)
	assert.Equal(t, "no", list[1].Steps[0].RejectionReason)

	ids, err := repo.ListDocumentIDsByApprover(ctx, "dir")
	require.NoError(t, err)
	assert.Equal(t, []int64{doc.ID}, ids)
	ids, err = repo.ListDocumentIDsByApprover(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestShiftEntryRepository(t *testing.T) {
	db := newTestDB(t)
	docs := NewDocumentRepository(db, zap.NewNop())
	repo := NewShiftEntryRepository(db, zap.NewNop())
	ctx := context.Background()
	doc := createSchedule(t, docs)

	structured := &entity.ShiftEntry{
		DocumentID:        doc.ID,
		PersonID:          "emp",
		PersonName:        "Employee",
		SortOrder:         2,
		Content:           entity.StructuredDays{Codes: entity.DayCodes{1: "N", 2: "OFF"}},
		NightDutyRequired: 4,
		NightDutyActual:   1,
		OffCount:          1,
		VacationTotal:     15,
	}
	require.NoError(t, repo.Create(ctx, structured))

	free := &entity.ShiftEntry{
		DocumentID: doc.ID,
		PersonID:   "head",
		SortOrder:  1,
		Content:    entity.FreeText{Text: "training", Retained: entity.DayCodes{5: "D"}},
	}
	require.NoError(t, repo.Create(ctx, free))

	entries, err := repo.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "head", entries[0].PersonID, "ordered by sort order")

	ft, ok := entries[0].Content.(entity.FreeText)
	require.True(t, ok)
	assert.Equal(t, "training", ft.Text)
	assert.Equal(t, "D", ft.Retained[5])

	got, err := repo.GetByID(ctx, structured.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DayCodes{1: "N", 2: "OFF"}, got.ActiveCodes())
	assert.Equal(t, 4, got.NightDutyRequired)
	assert.Equal(t, 15.0, got.VacationTotal)

	got.Content = entity.StructuredDays{Codes: entity.DayCodes{}}
	got.Remarks = "cleared"
	require.NoError(t, repo.Update(ctx, got))
	got, err = repo.GetByID(ctx, structured.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ActiveCodes())
	assert.Equal(t, "cleared", got.Remarks)

	require.NoError(t, repo.Delete(ctx, structured.ID))
	assert.ErrorIs(t, repo.Delete(ctx, structured.ID), apperr.ErrNotFound)

	require.NoError(t, repo.DeleteByDocument(ctx, doc.ID))
	entries, err = repo.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIdentityRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewIdentityRepository(db, zap.NewNop())
	ctx := context.Background()

	for _, ident := range []entity.Identity{
		{ID: "head", Name: "Head", DeptCode: "OPS", JobLevel: "MANAGER", Roles: []string{"DEPARTMENT_HEAD"}, Active: true},
		{ID: "head2", Name: "Other Head", DeptCode: "WARD", Roles: []string{"DEPARTMENT_HEAD"}, Active: true},
		{ID: "emp", Name: "Employee", DeptCode: "OPS", Active: true},
	} {
		ident := ident
		require.NoError(t, repo.Upsert(ctx, &ident))
	}

	heads, err := repo.ListByRole(ctx, approval.RoleQuery{Role: "DEPARTMENT_HEAD"})
	require.NoError(t, err)
	assert.Len(t, heads, 2)

	opsHeads, err := repo.ListByRole(ctx, approval.RoleQuery{Role: "DEPARTMENT_HEAD", DeptCode: "OPS"})
	require.NoError(t, err)
	require.Len(t, opsHeads, 1)
	assert.Equal(t, "head", opsHeads[0].ID)

	managers, err := repo.ListByRole(ctx, approval.RoleQuery{JobLevel: "MANAGER"})
	require.NoError(t, err)
	assert.Len(t, managers, 1)

	require.NoError(t, repo.SetSignatureKey(ctx, "emp", "signatures/emp.png"))
	assert.ErrorIs(t, repo.SetSignatureKey(ctx, "ghost", "x"), apperr.ErrNotFound)

	require.NoError(t, repo.Upsert(ctx, &entity.Identity{ID: "emp", Name: "Renamed", Active: false}))
	emp, err := repo.GetIdentity(ctx, "emp")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", emp.Name)
	assert.False(t, emp.Active)
	assert.Equal(t, "signatures/emp.png", emp.SignatureKey)
	assert.Empty(t, emp.Roles)

	_, err = repo.GetIdentity(ctx, "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestHistoryRepository(t *testing.T) {
	db := newTestDB(t)
	docs := NewDocumentRepository(db, zap.NewNop())
	repo := NewHistoryRepository(db, zap.NewNop())
	ctx := context.Background()
	doc := createSchedule(t, docs)

	for _, action := range []string{entity.ActionSubmit, entity.ActionSign} {
		require.NoError(t, repo.Create(ctx, &entity.ApprovalHistory{
			DocumentID:     doc.ID,
			ActorID:        "admin",
			PreviousStatus: "DRAFT",
			NewStatus:      "DRAFT",
			ActionType:     action,
			Timestamp:      time.Now(),
		}))
	}

	history, err := repo.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entity.ActionSubmit, history[0].ActionType)
	assert.Zero(t, history[0].InstanceID)
}

func TestTransactionRollback(t *testing.T) {
	db := newTestDB(t)
	txm := sqlite.NewDB(db, zap.NewNop())
	docs := NewDocumentRepository(db, zap.NewNop())
	ctx := context.Background()

	boom := errors.New("boom")
	err := txm.WithTransaction(ctx, func(txCtx context.Context) error {
		doc := &entity.Document{
			Type:      entity.DocumentTypeWorkSchedule,
			Title:     "rolled back",
			CreatorID: "admin",
			Status:    workflow.StateDraft,
			Year:      2026,
			Month:     4,
		}
		if err := docs.Create(txCtx, doc); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	all, err := docs.List(ctx, port.DocumentFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTransactionNestedJoinsOuter(t *testing.T) {
	db := newTestDB(t)
	txm := sqlite.NewDB(db, zap.NewNop())
	docs := NewDocumentRepository(db, zap.NewNop())
	ctx := context.Background()

	boom := errors.New("boom")
	err := txm.WithTransaction(ctx, func(outer context.Context) error {
		inner := txm.WithTransaction(outer, func(txCtx context.Context) error {
			assert.Same(t, sqlite.TxFromContext(outer), sqlite.TxFromContext(txCtx))
			return docs.Create(txCtx, &entity.Document{
				Type:      entity.DocumentTypeWorkSchedule,
				Title:     "inner",
				CreatorID: "admin",
				Status:    workflow.StateDraft,
				Year:      2026,
				Month:     5,
			})
		})
		require.NoError(t, inner)
		return boom
	})
	require.ErrorIs(t, err, boom)

	all, err := docs.List(ctx, port.DocumentFilter{})
	require.NoError(t, err)
	assert.Empty(t, all, "the outer rollback discards the inner write")
}
