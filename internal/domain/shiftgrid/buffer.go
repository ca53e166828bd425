package shiftgrid

import (
	"strings"

	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/entity"
)

// Cell addresses one day of one row
type Cell struct {
	EntryID int64 `json:"entry_id"`
	Day     int   `json:"day"`
}

// EntryPatch is the set of fields changed on one row since the last save.
// Nil fields are untouched; Days maps a day to its new code, "" clearing it.
type EntryPatch struct {
	EntryID           int64           `json:"entry_id"`
	Days              map[int]string  `json:"days,omitempty"`
	NightDutyRequired *int            `json:"night_duty_required,omitempty"`
	VacationTotal     *float64        `json:"vacation_total,omitempty"`
	VacationUsedTotal *float64        `json:"vacation_used_total,omitempty"`
	Remarks           *string         `json:"remarks,omitempty"`
	Mode              *entity.RowMode `json:"mode,omitempty"`
	FreeText          *string         `json:"free_text,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p EntryPatch) Empty() bool {
	return len(p.Days) == 0 && p.NightDutyRequired == nil && p.VacationTotal == nil &&
		p.VacationUsedTotal == nil && p.Remarks == nil && p.Mode == nil && p.FreeText == nil
}

// ApplyPatch merges a patch into a committed entry, field by field.
// Later patches win for the fields they carry. Day codes land on the
// structured grid before any mode switch, so codes edited ahead of a switch
// to free text survive as the row's retained codes.
func ApplyPatch(e entity.ShiftEntry, p EntryPatch, daysInMonth int) (entity.ShiftEntry, error) {
	if p.Mode != nil && *p.Mode != entity.RowModeFreeText && *p.Mode != entity.RowModeStructured {
		return e, apperr.Validation("unknown row mode %q", *p.Mode)
	}

	priorText := ""
	if ft, ok := e.Content.(entity.FreeText); ok {
		priorText = ft.Text
	}

	if len(p.Days) > 0 {
		if p.Mode != nil && e.Mode() == entity.RowModeFreeText {
			e = ToStructured(e)
		}
		byCode := make(map[string][]int)
		for day, code := range p.Days {
			byCode[code] = append(byCode[code], day)
		}
		for code, days := range byCode {
			var err error
			if e, err = ApplyCode(e, days, code, daysInMonth); err != nil {
				return e, err
			}
		}
	}

	switch {
	case p.Mode != nil && *p.Mode == entity.RowModeFreeText:
		text := priorText
		if p.FreeText != nil {
			text = *p.FreeText
		}
		e = ToFreeText(e, text)
	case p.Mode != nil:
		e = ToStructured(e)
	case p.FreeText != nil:
		ft, ok := e.Content.(entity.FreeText)
		if !ok {
			return e, apperr.Validation("entry %d is not in free-text mode", e.ID)
		}
		ft.Text = *p.FreeText
		e.Content = ft
	}

	if p.NightDutyRequired != nil {
		if *p.NightDutyRequired < 0 {
			return e, apperr.Validation("night duty required cannot be negative")
		}
		e.NightDutyRequired = *p.NightDutyRequired
	}
	if p.VacationTotal != nil {
		e.VacationTotal = *p.VacationTotal
	}
	if p.VacationUsedTotal != nil {
		e.VacationUsedTotal = *p.VacationUsedTotal
	}
	if p.Remarks != nil {
		e.Remarks = *p.Remarks
	}

	Refresh(&e)
	return e, nil
}

// Buffer holds uncommitted edits over a snapshot of a schedule's rows.
// It is never consulted for authorization; the committed document is.
type Buffer struct {
	daysInMonth int
	order       []int64
	rows        map[int64]entity.ShiftEntry
	patches     map[int64]*EntryPatch
}

// NewBuffer snapshots the committed rows
func NewBuffer(entries []entity.ShiftEntry, daysInMonth int) *Buffer {
	b := &Buffer{
		daysInMonth: daysInMonth,
		rows:        make(map[int64]entity.ShiftEntry, len(entries)),
		patches:     make(map[int64]*EntryPatch),
	}
	for _, e := range entries {
		b.order = append(b.order, e.ID)
		b.rows[e.ID] = e
	}
	return b
}

func (b *Buffer) patch(id int64) *EntryPatch {
	p, ok := b.patches[id]
	if !ok {
		p = &EntryPatch{EntryID: id}
		b.patches[id] = p
	}
	return p
}

func (b *Buffer) row(id int64) (entity.ShiftEntry, error) {
	e, ok := b.rows[id]
	if !ok {
		return entity.ShiftEntry{}, apperr.NotFound("shift entry %d", id)
	}
	return e, nil
}

// ApplyCode assigns code to the selected cells, which must all belong to one row
func (b *Buffer) ApplyCode(cells []Cell, code string) (entity.ShiftEntry, error) {
	if len(cells) == 0 {
		return entity.ShiftEntry{}, apperr.Validation("no cells selected")
	}
	id := cells[0].EntryID
	days := make([]int, 0, len(cells))
	for _, c := range cells {
		if c.EntryID != id {
			return entity.ShiftEntry{}, apperr.Validation("selection spans more than one row")
		}
		days = append(days, c.Day)
	}

	e, err := b.row(id)
	if err != nil {
		return e, err
	}
	updated, err := ApplyCode(e, days, code, b.daysInMonth)
	if err != nil {
		return e, err
	}

	b.rows[id] = updated
	p := b.patch(id)
	if p.Days == nil {
		p.Days = make(map[int]string)
	}
	for _, d := range days {
		p.Days[d] = strings.TrimSpace(code)
	}
	return updated, nil
}

// SetNightDutyRequired edits the required night count of a row
func (b *Buffer) SetNightDutyRequired(id int64, n int) error {
	e, err := b.row(id)
	if err != nil {
		return err
	}
	updated, err := ApplyPatch(e, EntryPatch{EntryID: id, NightDutyRequired: &n}, b.daysInMonth)
	if err != nil {
		return err
	}
	b.rows[id] = updated
	b.patch(id).NightDutyRequired = &n
	return nil
}

// SetRemarks edits a row's remarks
func (b *Buffer) SetRemarks(id int64, remarks string) error {
	e, err := b.row(id)
	if err != nil {
		return err
	}
	e.Remarks = remarks
	b.rows[id] = e
	b.patch(id).Remarks = &remarks
	return nil
}

// SetVacationTotals edits the yearly vacation allowance and usage carried on a row
func (b *Buffer) SetVacationTotals(id int64, total, usedTotal float64) error {
	e, err := b.row(id)
	if err != nil {
		return err
	}
	if total < 0 || usedTotal < 0 {
		return apperr.Validation("vacation totals must not be negative")
	}
	e.VacationTotal = total
	e.VacationUsedTotal = usedTotal
	b.rows[id] = e
	p := b.patch(id)
	p.VacationTotal = &total
	p.VacationUsedTotal = &usedTotal
	return nil
}

// ToggleFreeText switches a row between modes. text is used when entering free-text mode.
func (b *Buffer) ToggleFreeText(id int64, text string) (entity.ShiftEntry, error) {
	e, err := b.row(id)
	if err != nil {
		return e, err
	}

	p := b.patch(id)
	mode := entity.RowModeFreeText
	if e.Mode() == entity.RowModeFreeText {
		mode = entity.RowModeStructured
		e = ToStructured(e)
		p.FreeText = nil
	} else {
		e = ToFreeText(e, text)
		p.FreeText = &text
	}
	p.Mode = &mode
	b.rows[id] = e
	return e, nil
}

// Dirty reports whether any row has uncommitted edits
func (b *Buffer) Dirty() bool {
	for _, p := range b.patches {
		if !p.Empty() {
			return true
		}
	}
	return false
}

// Patches returns the pending edits in row order
func (b *Buffer) Patches() []EntryPatch {
	out := make([]EntryPatch, 0, len(b.patches))
	for _, id := range b.order {
		if p, ok := b.patches[id]; ok && !p.Empty() {
			out = append(out, *p)
		}
	}
	return out
}

// Rows returns the buffered rows in their original order
func (b *Buffer) Rows() []entity.ShiftEntry {
	out := make([]entity.ShiftEntry, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.rows[id])
	}
	return out
}

// Warnings collects pattern advisories over the buffered rows
func (b *Buffer) Warnings() []Warning {
	var out []Warning
	for _, id := range b.order {
		e := b.rows[id]
		out = append(out, CheckConsecutivePattern(&e)...)
	}
	return out
}
