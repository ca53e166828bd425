package http

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/docflow/internal/application/service"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/shiftgrid"
)

type addEntryRequest struct {
	PersonID          string  `json:"person_id"`
	PositionID        string  `json:"position_id"`
	NightDutyRequired *int    `json:"night_duty_required"`
	VacationTotal     float64 `json:"vacation_total"`
	SortOrder         int     `json:"sort_order"`
}

type applyCodeRequest struct {
	Cells []shiftgrid.Cell `json:"cells"`
	Code  string           `json:"code"`
}

type toggleModeRequest struct {
	Text string `json:"text"`
}

type saveEntriesRequest struct {
	Patches []shiftgrid.EntryPatch `json:"patches"`
}

// EntryResponse is one row plus the pattern advisories raised by the edit
type EntryResponse struct {
	Entry    *entity.ShiftEntry  `json:"entry"`
	Warnings []shiftgrid.Warning `json:"warnings,omitempty"`
}

// EntriesResponse is every row after a bulk save
type EntriesResponse struct {
	Entries  []entity.ShiftEntry `json:"entries"`
	Warnings []shiftgrid.Warning `json:"warnings,omitempty"`
}

// GetGrid handles GET /api/documents/:id/grid
func (h *Handlers) GetGrid(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	grid, err := h.schedules.Grid(c.Request.Context(), id, actorOf(c))
	if err != nil {
		h.fail(c, "Failed to load schedule grid", err)
		return
	}
	h.ok(c, grid)
}

// ExportSchedule handles GET /api/documents/:id/export
func (h *Handlers) ExportSchedule(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.schedules.Export(c.Request.Context(), id, actorOf(c), &buf); err != nil {
		h.fail(c, "Failed to export schedule", err)
		return
	}

	contentType, ext := h.schedules.ExportFormat()
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"schedule-%d%s\"", id, ext))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

// AddEntry handles POST /api/documents/:id/shifts
func (h *Handlers) AddEntry(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req addEntryRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.schedules.AddEntry(c.Request.Context(), id, actorOf(c), service.AddEntryRequest{
		PersonID:          req.PersonID,
		PositionID:        req.PositionID,
		NightDutyRequired: req.NightDutyRequired,
		VacationTotal:     req.VacationTotal,
		SortOrder:         req.SortOrder,
	})
	if err != nil {
		h.fail(c, "Failed to add shift entry", err)
		return
	}
	h.created(c, entry)
}

// RemoveEntry handles DELETE /api/documents/:id/shifts/:entryId
func (h *Handlers) RemoveEntry(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	entryID, ok := int64Param(c, "entryId")
	if !ok {
		return
	}
	if err := h.schedules.RemoveEntry(c.Request.Context(), id, entryID, actorOf(c)); err != nil {
		h.fail(c, "Failed to remove shift entry", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ApplyCode handles POST /api/documents/:id/shifts/apply
func (h *Handlers) ApplyCode(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req applyCodeRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, warnings, err := h.schedules.ApplyCode(c.Request.Context(), id, actorOf(c), req.Cells, req.Code)
	if err != nil {
		h.fail(c, "Failed to apply shift code", err)
		return
	}
	h.ok(c, EntryResponse{Entry: entry, Warnings: warnings})
}

// Recompute handles POST /api/documents/:id/shifts/:entryId/recompute
func (h *Handlers) Recompute(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	entryID, ok := int64Param(c, "entryId")
	if !ok {
		return
	}
	entry, err := h.schedules.Recompute(c.Request.Context(), id, entryID, actorOf(c))
	if err != nil {
		h.fail(c, "Failed to recompute shift entry", err)
		return
	}
	h.ok(c, EntryResponse{Entry: entry})
}

// ToggleRowMode handles POST /api/documents/:id/shifts/:entryId/mode
func (h *Handlers) ToggleRowMode(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	entryID, ok := int64Param(c, "entryId")
	if !ok {
		return
	}
	var req toggleModeRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	entry, err := h.schedules.ToggleRowMode(c.Request.Context(), id, entryID, actorOf(c), req.Text)
	if err != nil {
		h.fail(c, "Failed to toggle row mode", err)
		return
	}
	h.ok(c, EntryResponse{Entry: entry})
}

// SaveEntries handles PATCH /api/documents/:id/shifts
func (h *Handlers) SaveEntries(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req saveEntriesRequest
	if !bindJSON(c, &req) {
		return
	}
	entries, warnings, err := h.schedules.SaveEntries(c.Request.Context(), id, actorOf(c), req.Patches)
	if err != nil {
		h.fail(c, "Failed to save shift entries", err)
		return
	}
	h.ok(c, EntriesResponse{Entries: entries, Warnings: warnings})
}

// SignAsCreator handles POST /api/documents/:id/creator-signature
func (h *Handlers) SignAsCreator(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	doc, err := h.schedules.SignAsCreator(c.Request.Context(), id, actorOf(c))
	if err != nil {
		h.fail(c, "Failed to sign schedule", err)
		return
	}
	h.ok(c, doc)
}

// ClearCreatorSignature handles DELETE /api/documents/:id/creator-signature
func (h *Handlers) ClearCreatorSignature(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	doc, err := h.schedules.ClearCreatorSignature(c.Request.Context(), id, actorOf(c))
	if err != nil {
		h.fail(c, "Failed to clear creator signature", err)
		return
	}
	h.ok(c, doc)
}
