package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/entity"
)

var scheduleCtx = DocumentContext{
	DocumentID:    10,
	DocumentType:  entity.DocumentTypeWorkSchedule,
	OwnerID:       "nurse-1",
	OwnerDeptCode: "ICU",
}

func ids(idents []entity.Identity) []string {
	out := make([]string, len(idents))
	for i, ident := range idents {
		out[i] = ident.ID
	}
	return out
}

func TestApproverOf(t *testing.T) {
	tests := []struct {
		def  entity.StepDefinition
		want Approver
	}{
		{entity.StepDefinition{ApproverType: entity.ApproverSpecificUser, ApproverID: "u1"}, SpecificUser{ID: "u1"}},
		{entity.StepDefinition{ApproverType: entity.ApproverSubstitute}, Substitute{}},
		{entity.StepDefinition{ApproverType: entity.ApproverJobLevel, ApproverID: "u1", JobLevel: "L5"}, ByJobLevel{Level: "L5", PreferredID: "u1"}},
		{entity.StepDefinition{ApproverType: entity.ApproverDepartmentHead, ApproverID: "u1"}, ByRole{Role: "DEPARTMENT_HEAD", OwnerScoped: true, PreferredID: "u1"}},
		{entity.StepDefinition{ApproverType: entity.ApproverCEODirector, ApproverID: "u1"}, ByRole{Role: "CEO_DIRECTOR", PreferredID: "u1"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.def.ApproverType), func(t *testing.T) {
			got, err := ApproverOf(tt.def)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ApproverOf(entity.StepDefinition{ApproverType: "NOBODY"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(orgDirectory())

	t.Run("specific user", func(t *testing.T) {
		res, err := r.Resolve(ctx, entity.StepDefinition{StepOrder: 1, ApproverType: entity.ApproverSpecificUser, ApproverID: "ceo"}, scheduleCtx)
		require.NoError(t, err)
		ident, ok := res.Single()
		require.True(t, ok)
		assert.Equal(t, "ceo", ident.ID)
	})

	t.Run("specific user missing", func(t *testing.T) {
		_, err := r.Resolve(ctx, entity.StepDefinition{StepOrder: 1, ApproverType: entity.ApproverSpecificUser, ApproverID: "nobody"}, scheduleCtx)
		assert.ErrorIs(t, err, apperr.ErrUnresolvedApprover)
	})

	t.Run("specific user inactive", func(t *testing.T) {
		_, err := r.Resolve(ctx, entity.StepDefinition{StepOrder: 1, ApproverType: entity.ApproverSpecificUser, ApproverID: "gone"}, scheduleCtx)
		assert.ErrorIs(t, err, apperr.ErrUnresolvedApprover)
	})

	t.Run("substitute requires manual pick", func(t *testing.T) {
		res, err := r.Resolve(ctx, entity.StepDefinition{StepOrder: 2, ApproverType: entity.ApproverSubstitute}, scheduleCtx)
		require.NoError(t, err)
		assert.True(t, res.ManualPick)
		assert.Empty(t, res.Candidates)
		_, ok := res.Single()
		assert.False(t, ok)
	})

	t.Run("department head scoped to owner dept", func(t *testing.T) {
		res, err := r.Resolve(ctx, entity.StepDefinition{StepOrder: 1, ApproverType: entity.ApproverDepartmentHead, ApproverID: "someone"}, scheduleCtx)
		require.NoError(t, err)
		assert.Equal(t, []string{"head-icu"}, ids(res.Candidates))
	})

	t.Run("explicit dept overrides owner dept", func(t *testing.T) {
		res, err := r.Resolve(ctx, entity.StepDefinition{StepOrder: 1, ApproverType: entity.ApproverDepartmentHead, ApproverID: "x", DeptCode: "ER"}, scheduleCtx)
		require.NoError(t, err)
		assert.Equal(t, []string{"head-er"}, ids(res.Candidates))
	})

	t.Run("several candidates returned for selection", func(t *testing.T) {
		res, err := r.Resolve(ctx, entity.StepDefinition{StepOrder: 2, ApproverType: entity.ApproverHRStaff, ApproverID: "unknown"}, scheduleCtx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"hr-1", "hr-2"}, ids(res.Candidates))
		_, ok := res.Single()
		assert.False(t, ok)
	})

	t.Run("preferred approver narrows candidates", func(t *testing.T) {
		res, err := r.Resolve(ctx, entity.StepDefinition{StepOrder: 2, ApproverType: entity.ApproverHRStaff, ApproverID: "hr-2"}, scheduleCtx)
		require.NoError(t, err)
		assert.Equal(t, []string{"hr-2"}, ids(res.Candidates))
	})

	t.Run("job level", func(t *testing.T) {
		res, err := r.Resolve(ctx, entity.StepDefinition{StepOrder: 1, ApproverType: entity.ApproverJobLevel, ApproverID: "x", JobLevel: "L5"}, scheduleCtx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"lead-1", "lead-2"}, ids(res.Candidates))
	})

	t.Run("no candidates", func(t *testing.T) {
		_, err := r.Resolve(ctx, entity.StepDefinition{StepOrder: 3, ApproverType: entity.ApproverAdminDirector, ApproverID: "x"}, scheduleCtx)
		assert.ErrorIs(t, err, apperr.ErrNoCandidatesFound)
	})
}

func TestResolver_ResolveTemplateReportsProblemsPerStep(t *testing.T) {
	r := NewResolver(orgDirectory())
	tmpl := &entity.ApprovalLineTemplate{
		DocumentType: entity.DocumentTypeWorkSchedule,
		Steps: []entity.StepDefinition{
			{StepOrder: 2, ApproverType: entity.ApproverAdminDirector, ApproverID: "x"},
			{StepOrder: 1, ApproverType: entity.ApproverDepartmentHead, ApproverID: "head-icu"},
		},
	}

	out, err := r.ResolveTemplate(context.Background(), tmpl, scheduleCtx)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Empty(t, out[0].Problem)
	assert.Contains(t, out[1].Problem, "no candidates found")
}

func TestResolver_Pick(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(orgDirectory())
	multi := Resolution{StepOrder: 2, Candidates: []entity.Identity{person("hr-1", "HR"), person("hr-2", "HR")}}

	_, err := r.Pick(ctx, multi, "")
	assert.ErrorIs(t, err, apperr.ErrSelectionRequired)

	ident, err := r.Pick(ctx, multi, "hr-2")
	require.NoError(t, err)
	assert.Equal(t, "hr-2", ident.ID)

	_, err = r.Pick(ctx, multi, "ceo")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	manual := Resolution{StepOrder: 1, ManualPick: true}
	_, err = r.Pick(ctx, manual, "")
	assert.ErrorIs(t, err, apperr.ErrSelectionRequired)
	_, err = r.Pick(ctx, manual, "gone")
	assert.ErrorIs(t, err, apperr.ErrUnresolvedApprover)
	ident, err = r.Pick(ctx, manual, "nurse-1")
	require.NoError(t, err)
	assert.Equal(t, "nurse-1", ident.ID)
}

func TestConfirm_ExcludedOptionalStepIsDropped(t *testing.T) {
	r := NewResolver(orgDirectory())
	tmpl := &entity.ApprovalLineTemplate{
		ID:           3,
		DocumentType: entity.DocumentTypeWorkSchedule,
		Steps: []entity.StepDefinition{
			{StepOrder: 1, StepName: "Head", ApproverType: entity.ApproverDepartmentHead, ApproverID: "head-icu"},
			{StepOrder: 2, StepName: "HR", ApproverType: entity.ApproverHRStaff, ApproverID: "hr-1", IsOptional: true},
			{StepOrder: 3, StepName: "CEO", ApproverType: entity.ApproverCEODirector, ApproverID: "ceo"},
		},
	}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	inst, err := r.Confirm(context.Background(), tmpl, scheduleCtx, ConfirmRequest{Inclusion: map[int]bool{2: false}}, now)

	require.NoError(t, err)
	require.Len(t, inst.Steps, 2)
	assert.Equal(t, 1, inst.Steps[0].StepOrder)
	assert.Equal(t, "head-icu", inst.Steps[0].ResolvedApproverID)
	assert.True(t, inst.Steps[0].IsCurrent)
	assert.Equal(t, 2, inst.Steps[1].StepOrder)
	assert.Equal(t, 3, inst.Steps[1].SourceStepOrder)
	assert.Equal(t, "ceo", inst.Steps[1].ResolvedApproverID)
	assert.False(t, inst.Steps[1].IsCurrent)
	assert.False(t, inst.Steps[1].IsSigned)
	assert.Equal(t, entity.InstanceActive, inst.Status)
	assert.Equal(t, int64(3), inst.TemplateID)
	require.NoError(t, CheckIntegrity(inst))
}

func TestConfirm(t *testing.T) {
	optional := func(order int, approverID string) entity.StepDefinition {
		return entity.StepDefinition{StepOrder: order, ApproverType: entity.ApproverSpecificUser, ApproverID: approverID, IsOptional: true}
	}
	required := func(order int, approverID string) entity.StepDefinition {
		return entity.StepDefinition{StepOrder: order, ApproverType: entity.ApproverSpecificUser, ApproverID: approverID}
	}

	tests := []struct {
		name      string
		steps     []entity.StepDefinition
		req       ConfirmRequest
		wantSteps int
		wantErr   error
	}{
		{"optional included by default", []entity.StepDefinition{required(1, "ceo"), optional(2, "hr-1")}, ConfirmRequest{}, 2, nil},
		{"required cannot be excluded", []entity.StepDefinition{required(1, "ceo")}, ConfirmRequest{Inclusion: map[int]bool{1: false}}, 1, nil},
		{"every step excluded", []entity.StepDefinition{optional(1, "ceo"), optional(2, "hr-1")}, ConfirmRequest{Inclusion: map[int]bool{1: false, 2: false}}, 0, apperr.ErrEmptyApprovalLine},
		{"substitute without pick", []entity.StepDefinition{{StepOrder: 1, ApproverType: entity.ApproverSubstitute}}, ConfirmRequest{}, 0, apperr.ErrSelectionRequired},
		{"substitute with pick", []entity.StepDefinition{{StepOrder: 1, ApproverType: entity.ApproverSubstitute}}, ConfirmRequest{Picks: map[int]string{1: "hr-2"}}, 1, nil},
		{"ambiguous role without pick", []entity.StepDefinition{{StepOrder: 1, ApproverType: entity.ApproverHRStaff, ApproverID: "x"}}, ConfirmRequest{}, 0, apperr.ErrSelectionRequired},
		{"unresolvable", []entity.StepDefinition{required(1, "nobody")}, ConfirmRequest{}, 0, apperr.ErrUnresolvedApprover},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := &entity.ApprovalLineTemplate{DocumentType: entity.DocumentTypeWorkSchedule, Steps: tt.steps}
			inst, err := NewResolver(orgDirectory()).Confirm(context.Background(), tmpl, scheduleCtx, tt.req, time.Now())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, inst.Steps, tt.wantSteps)
		})
	}
}

func TestConfirm_RejectsTemplateForOtherDocumentType(t *testing.T) {
	tmpl := &entity.ApprovalLineTemplate{DocumentType: entity.DocumentTypeContract, Steps: []entity.StepDefinition{step(1, "a")}}
	_, err := NewResolver(orgDirectory()).Confirm(context.Background(), tmpl, scheduleCtx, ConfirmRequest{}, time.Now())
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
