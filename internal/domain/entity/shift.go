package entity

import (
	"encoding/json"
	"sort"
	"time"
)

// DayCodes maps day-of-month (1..daysInMonth) to a shift code
type DayCodes map[int]string

// Clone returns an independent copy
func (d DayCodes) Clone() DayCodes {
	out := make(DayCodes, len(d))
	for day, code := range d {
		out[day] = code
	}
	return out
}

// Days returns the populated days in ascending order
func (d DayCodes) Days() []int {
	days := make([]int, 0, len(d))
	for day := range d {
		days = append(days, day)
	}
	sort.Ints(days)
	return days
}

// RowMode names the representation of a shift row
type RowMode string

const (
	RowModeStructured RowMode = "STRUCTURED"
	RowModeFreeText   RowMode = "FREE_TEXT"
)

// RowContent is either StructuredDays or FreeText
type RowContent interface {
	Mode() RowMode
	// StoredCodes returns the day codes kept in storage, including ones hidden by free-text mode
	StoredCodes() DayCodes
}

// StructuredDays is a row edited day by day
type StructuredDays struct {
	Codes DayCodes
}

func (StructuredDays) Mode() RowMode { return RowModeStructured }
func (s StructuredDays) StoredCodes() DayCodes { return s.Codes }

// FreeText replaces the whole row with one string. Retained keeps the day codes
// entered before the toggle so that switching back restores them.
type FreeText struct {
	Text     string
	Retained DayCodes
}

func (FreeText) Mode() RowMode { return RowModeFreeText }
func (f FreeText) StoredCodes() DayCodes { return f.Retained }

// ShiftEntry is one scheduled person's row in a work schedule
type ShiftEntry struct {
	ID         int64      `json:"id"`
	DocumentID int64      `json:"document_id"`
	PersonID   string     `json:"person_id"`
	PersonName string     `json:"person_name,omitempty"`
	PositionID string     `json:"position_id,omitempty"`
	SortOrder  int        `json:"sort_order"`
	Content    RowContent `json:"-"`

	NightDutyRequired   int `json:"night_duty_required"`
	NightDutyActual     int `json:"night_duty_actual"`
	NightDutyAdditional int `json:"night_duty_additional"`
	OffCount            int `json:"off_count"`

	VacationUsedThisMonth float64 `json:"vacation_used_this_month"`
	VacationTotal         float64 `json:"vacation_total"`
	VacationUsedTotal     float64 `json:"vacation_used_total"`

	Remarks   string    `json:"remarks,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Mode returns the row representation, defaulting to structured
func (e *ShiftEntry) Mode() RowMode {
	if e.Content == nil {
		return RowModeStructured
	}
	return e.Content.Mode()
}

// shiftEntryJSON is the wire form of a row. Free-text rows carry no days.
type shiftEntryJSON struct {
	shiftEntryFields
	Mode     RowMode  `json:"mode"`
	Days     DayCodes `json:"days,omitempty"`
	FreeText string   `json:"free_text,omitempty"`
}

type shiftEntryFields ShiftEntry

// MarshalJSON flattens the row content into mode, days and free_text
func (e ShiftEntry) MarshalJSON() ([]byte, error) {
	out := shiftEntryJSON{shiftEntryFields: shiftEntryFields(e), Mode: e.Mode(), Days: e.ActiveCodes()}
	if ft, ok := e.Content.(FreeText); ok {
		out.FreeText = ft.Text
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the row content written by MarshalJSON
func (e *ShiftEntry) UnmarshalJSON(data []byte) error {
	var in shiftEntryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = ShiftEntry(in.shiftEntryFields)
	if in.Mode == RowModeFreeText {
		e.Content = FreeText{Text: in.FreeText}
	} else {
		e.Content = StructuredDays{Codes: in.Days}
	}
	return nil
}

// ActiveCodes returns the codes that count for aggregation and display.
// Free-text rows have none.
func (e *ShiftEntry) ActiveCodes() DayCodes {
	s, ok := e.Content.(StructuredDays)
	if !ok {
		return nil
	}
	return s.Codes
}
