package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/docflow/internal/application/service"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/shiftgrid"
	"github.com/garyjia/docflow/internal/domain/workflow"
)

func fixedGrid() *service.Grid {
	return &service.Grid{
		Document: &entity.Document{Title: "Ward 3", Year: 2026, Month: 2, Status: workflow.StateDraft},
		Columns: []shiftgrid.DayColumn{
			{Day: 1, Weekday: time.Sunday, IsWeekend: true},
			{Day: 2, Weekday: time.Monday},
			{Day: 3, Weekday: time.Tuesday, IsHoliday: true, Holiday: "founding day"},
		},
		Entries: []entity.ShiftEntry{
			{
				ID: 1, PersonID: "nurse01", PersonName: "Kim",
				Content:           entity.StructuredDays{Codes: entity.DayCodes{1: "N", 2: "Off"}},
				NightDutyRequired: 4, NightDutyActual: 1, NightDutyAdditional: -3, OffCount: 1,
			},
			{
				ID: 2, PersonID: "nurse02",
				Content: entity.FreeText{Text: "on leave", Retained: entity.DayCodes{2: "D"}},
			},
		},
		Warnings: []shiftgrid.Warning{{EntryID: 1, PersonID: "nurse01", StartDay: 1, Message: "night, off, day"}},
	}
}

func lineWith(t *testing.T, out, needle string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, needle) {
			return line
		}
	}
	t.Fatalf("no line contains %q in:\n%s", needle, out)
	return ""
}

func TestWriteGrid_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeGrid(&buf, fixedGrid(), false))
	out := buf.String()

	assert.Contains(t, out, "2026-02")
	assert.Contains(t, out, "1*", "weekend column is marked")
	assert.Contains(t, out, "3*", "holiday column is marked")
	assert.NotContains(t, out, "2*")

	kim := lineWith(t, out, "Kim")
	assert.Contains(t, kim, "N")
	assert.Contains(t, kim, "Off")
	assert.Contains(t, kim, "-3")

	leave := lineWith(t, out, "nurse02")
	assert.Contains(t, leave, "on leave")
	assert.NotContains(t, leave, " D ", "retained codes stay hidden behind the free text")

	assert.Contains(t, out, "warning: nurse01 day 1: night, off, day")
}

func TestWriteGrid_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeGrid(&buf, fixedGrid(), true))

	var decoded struct {
		Columns []shiftgrid.DayColumn `json:"columns"`
		Entries []json.RawMessage     `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded.Columns, 3)
	assert.Len(t, decoded.Entries, 2)
	assert.NotContains(t, buf.String(), "warning:")
}

func TestGridTable_NoColumns(t *testing.T) {
	grid := fixedGrid()
	grid.Columns = nil

	assert.NotPanics(t, func() { _ = gridTable(grid).Render() })
}
