package shiftgrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/entity"
)

func TestBuffer_ApplyCodeAndPatches(t *testing.T) {
	b := NewBuffer([]entity.ShiftEntry{row(1, entity.DayCodes{}), row(2, entity.DayCodes{})}, 30)
	assert.False(t, b.Dirty())

	updated, err := b.ApplyCode([]Cell{{EntryID: 1, Day: 10}, {EntryID: 1, Day: 11}}, " N ")
	require.NoError(t, err)
	assert.Equal(t, 2, updated.NightDutyActual)
	assert.True(t, b.Dirty())

	_, err = b.ApplyCode([]Cell{{EntryID: 1, Day: 12}}, "D")
	require.NoError(t, err)

	patches := b.Patches()
	require.Len(t, patches, 1)
	assert.Equal(t, int64(1), patches[0].EntryID)
	assert.Equal(t, map[int]string{10: "N", 11: "N", 12: "D"}, patches[0].Days)
	assert.Empty(t, b.Warnings(), "N→N→D is not the advisory pattern")
}

func TestBuffer_RejectsCrossRowSelection(t *testing.T) {
	b := NewBuffer([]entity.ShiftEntry{row(1, nil), row(2, nil)}, 30)

	_, err := b.ApplyCode([]Cell{{EntryID: 1, Day: 1}, {EntryID: 2, Day: 1}}, "N")

	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.False(t, b.Dirty())
}

func TestBuffer_UnknownRow(t *testing.T) {
	b := NewBuffer(nil, 30)
	_, err := b.ApplyCode([]Cell{{EntryID: 9, Day: 1}}, "N")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, b.SetRemarks(9, "x"), apperr.ErrNotFound)
}

func TestBuffer_WarningsSurfaceWithoutBlocking(t *testing.T) {
	b := NewBuffer([]entity.ShiftEntry{row(1, entity.DayCodes{10: "N", 11: "Off"})}, 30)

	_, err := b.ApplyCode([]Cell{{EntryID: 1, Day: 12}}, "D")

	require.NoError(t, err)
	w := b.Warnings()
	require.Len(t, w, 1)
	assert.Equal(t, 10, w[0].StartDay)
}

func TestBuffer_ToggleAndFields(t *testing.T) {
	b := NewBuffer([]entity.ShiftEntry{row(1, entity.DayCodes{3: "N"})}, 30)

	require.NoError(t, b.SetNightDutyRequired(1, 5))
	require.NoError(t, b.SetRemarks(1, "prefers nights"))
	assert.ErrorIs(t, b.SetNightDutyRequired(1, -1), apperr.ErrValidation)

	e, err := b.ToggleFreeText(1, "seconded to ER")
	require.NoError(t, err)
	assert.Equal(t, entity.RowModeFreeText, e.Mode())
	assert.Equal(t, -5, e.NightDutyAdditional)

	e, err = b.ToggleFreeText(1, "")
	require.NoError(t, err)
	assert.Equal(t, entity.RowModeStructured, e.Mode())
	assert.Equal(t, 1, e.NightDutyActual)
	assert.Equal(t, -4, e.NightDutyAdditional)

	rows := b.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "prefers nights", rows[0].Remarks)

	p := b.Patches()[0]
	require.NotNil(t, p.Mode)
	assert.Equal(t, entity.RowModeStructured, *p.Mode)
	assert.Equal(t, 5, *p.NightDutyRequired)
}

func TestApplyPatch_LastWriteWinsPerField(t *testing.T) {
	committed := row(1, entity.DayCodes{1: "N", 2: "D"})
	committed.Remarks = "original"
	committed.NightDutyRequired = 2

	remarks := "from tab A"
	first, err := ApplyPatch(committed, EntryPatch{EntryID: 1, Remarks: &remarks, Days: map[int]string{2: "Off"}}, 30)
	require.NoError(t, err)

	required := 6
	second, err := ApplyPatch(first, EntryPatch{EntryID: 1, NightDutyRequired: &required, Days: map[int]string{1: ""}}, 30)
	require.NoError(t, err)

	assert.Equal(t, "from tab A", second.Remarks)
	assert.Equal(t, 6, second.NightDutyRequired)
	assert.Equal(t, entity.DayCodes{2: "Off"}, second.ActiveCodes())
	assert.Equal(t, 0, second.NightDutyActual)
	assert.Equal(t, -6, second.NightDutyAdditional)
	assert.Equal(t, 1, second.OffCount)
}

func TestApplyPatch_Errors(t *testing.T) {
	bad := entity.RowMode("GRID")
	_, err := ApplyPatch(row(1, nil), EntryPatch{Mode: &bad}, 30)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	text := "x"
	_, err = ApplyPatch(row(1, nil), EntryPatch{FreeText: &text}, 30)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.True(t, EntryPatch{EntryID: 1}.Empty())
}

func TestBuffer_SetVacationTotals(t *testing.T) {
	b := NewBuffer([]entity.ShiftEntry{row(1, entity.DayCodes{3: "연"})}, 31)

	require.NoError(t, b.SetVacationTotals(1, 15, 4.5))
	assert.ErrorIs(t, b.SetVacationTotals(1, -1, 0), apperr.ErrValidation)

	patches := b.Patches()
	require.Len(t, patches, 1)
	require.NotNil(t, patches[0].VacationTotal)
	assert.Equal(t, 15.0, *patches[0].VacationTotal)
	assert.Equal(t, 4.5, *patches[0].VacationUsedTotal)
	assert.Equal(t, 15.0, b.Rows()[0].VacationTotal)
}

func TestApplyPatch_DaysEditedBeforeSwitchToFreeText(t *testing.T) {
	committed := row(1, entity.DayCodes{3: "D"})
	b := NewBuffer([]entity.ShiftEntry{committed}, 30)

	_, err := b.ApplyCode([]Cell{{EntryID: 1, Day: 5}}, "N")
	require.NoError(t, err)
	_, err = b.ToggleFreeText(1, "on leave")
	require.NoError(t, err)

	patches := b.Patches()
	require.Len(t, patches, 1)
	saved, err := ApplyPatch(committed, patches[0], 30)
	require.NoError(t, err)

	assert.Equal(t, entity.RowModeFreeText, saved.Mode())
	ft, ok := saved.Content.(entity.FreeText)
	require.True(t, ok)
	assert.Equal(t, "on leave", ft.Text)
	assert.Equal(t, entity.DayCodes{3: "D", 5: "N"}, ft.Retained)
	assert.Equal(t, b.Rows()[0].Content, saved.Content, "saving reproduces the buffered row")

	back, err := ApplyPatch(saved, EntryPatch{EntryID: 1, Mode: ptrMode(entity.RowModeStructured)}, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, back.NightDutyActual)
}

func TestApplyPatch_DaysEditedAfterReturnFromFreeText(t *testing.T) {
	committed := ToFreeText(row(1, entity.DayCodes{2: "N"}), "seconded")
	b := NewBuffer([]entity.ShiftEntry{committed}, 30)

	_, err := b.ToggleFreeText(1, "")
	require.NoError(t, err)
	_, err = b.ApplyCode([]Cell{{EntryID: 1, Day: 4}}, "N")
	require.NoError(t, err)
	_, err = b.ToggleFreeText(1, "seconded again")
	require.NoError(t, err)

	saved, err := ApplyPatch(committed, b.Patches()[0], 30)
	require.NoError(t, err)

	ft, ok := saved.Content.(entity.FreeText)
	require.True(t, ok)
	assert.Equal(t, "seconded again", ft.Text)
	assert.Equal(t, entity.DayCodes{2: "N", 4: "N"}, ft.Retained)
}

func ptrMode(m entity.RowMode) *entity.RowMode { return &m }
