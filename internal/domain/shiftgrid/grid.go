package shiftgrid

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/garyjia/docflow/internal/domain/apperr"
	"github.com/garyjia/docflow/internal/domain/entity"
)

// MaxCodeLength bounds a single cell code, in runes
const MaxCodeLength = 12

// Totals are the derived counters of one row
type Totals struct {
	NightDutyActual       int     `json:"night_duty_actual"`
	NightDutyAdditional   int     `json:"night_duty_additional"`
	OffCount              int     `json:"off_count"`
	VacationUsedThisMonth float64 `json:"vacation_used_this_month"`
}

// Recompute derives the counters of a row. Free-text rows count nothing.
// NightDutyRequired, VacationTotal and VacationUsedTotal are inputs only.
func Recompute(e *entity.ShiftEntry) Totals {
	var t Totals
	for _, code := range e.ActiveCodes() {
		c := Classify(code)
		if c.Night {
			t.NightDutyActual++
		}
		if c.Off {
			t.OffCount++
		}
		t.VacationUsedThisMonth += c.Vacation
	}
	t.NightDutyAdditional = t.NightDutyActual - e.NightDutyRequired
	return t
}

// Refresh writes the derived counters back into the entry
func Refresh(e *entity.ShiftEntry) {
	t := Recompute(e)
	e.NightDutyActual = t.NightDutyActual
	e.NightDutyAdditional = t.NightDutyAdditional
	e.OffCount = t.OffCount
	e.VacationUsedThisMonth = t.VacationUsedThisMonth
}

// ApplyCode assigns code to every selected day of one row and recomputes it.
// An empty code clears the cells. The input entry is not modified.
func ApplyCode(e entity.ShiftEntry, days []int, code string, daysInMonth int) (entity.ShiftEntry, error) {
	structured, ok := e.Content.(entity.StructuredDays)
	if e.Content != nil && !ok {
		return e, apperr.Validation("entry %d is in free-text mode", e.ID)
	}
	if len(days) == 0 {
		return e, apperr.Validation("no days selected")
	}
	code = strings.TrimSpace(code)
	if utf8.RuneCountInString(code) > MaxCodeLength {
		return e, apperr.Validation("code %q is longer than %d characters", code, MaxCodeLength)
	}
	for _, d := range days {
		if d < 1 || d > daysInMonth {
			return e, apperr.Validation("day %d outside 1..%d", d, daysInMonth)
		}
	}

	codes := structured.Codes.Clone()
	for _, d := range days {
		if code == "" {
			delete(codes, d)
			continue
		}
		codes[d] = code
	}

	e.Content = entity.StructuredDays{Codes: codes}
	Refresh(&e)
	return e, nil
}

// Warning is a non-blocking advisory about a row
type Warning struct {
	EntryID  int64  `json:"entry_id"`
	PersonID string `json:"person_id"`
	StartDay int    `json:"start_day"`
	Message  string `json:"message"`
}

// CheckConsecutivePattern reports every night → off → day-shift run of three consecutive days
func CheckConsecutivePattern(e *entity.ShiftEntry) []Warning {
	codes := e.ActiveCodes()
	var out []Warning
	for _, d := range codes.Days() {
		next, ok1 := codes[d+1]
		after, ok2 := codes[d+2]
		if !ok1 || !ok2 {
			continue
		}
		if Classify(codes[d]).Night && Classify(next).Off && Classify(after).DayShift {
			out = append(out, Warning{
				EntryID:  e.ID,
				PersonID: e.PersonID,
				StartDay: d,
				Message:  fmt.Sprintf("N→Off→D discovered at %d..%d", d, d+2),
			})
		}
	}
	return out
}

// ToFreeText switches a row to free-text mode, keeping its day codes hidden in storage
func ToFreeText(e entity.ShiftEntry, text string) entity.ShiftEntry {
	var retained entity.DayCodes
	if e.Content != nil {
		retained = e.Content.StoredCodes().Clone()
	}
	e.Content = entity.FreeText{Text: text, Retained: retained}
	Refresh(&e)
	return e
}

// ToStructured switches a row back to structured editing with whatever codes were retained
func ToStructured(e entity.ShiftEntry) entity.ShiftEntry {
	codes := entity.DayCodes{}
	if e.Content != nil && e.Content.StoredCodes() != nil {
		codes = e.Content.StoredCodes().Clone()
	}
	e.Content = entity.StructuredDays{Codes: codes}
	Refresh(&e)
	return e
}

// DaysIn returns the number of days in a month
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Holiday is one calendar holiday
type Holiday struct {
	Month int    `json:"month" yaml:"month"`
	Day   int    `json:"day" yaml:"day"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
}

// DayColumn describes one day column of the grid, for styling only
type DayColumn struct {
	Day       int          `json:"day"`
	Weekday   time.Weekday `json:"weekday"`
	IsWeekend bool         `json:"is_weekend"`
	IsHoliday bool         `json:"is_holiday"`
	Holiday   string       `json:"holiday,omitempty"`
}

// Columns builds the day columns of a month
func Columns(year, month int, holidays []Holiday) []DayColumn {
	names := make(map[int]string)
	for _, h := range holidays {
		if h.Month == month {
			names[h.Day] = h.Name
		}
	}

	n := DaysIn(year, month)
	out := make([]DayColumn, n)
	for d := 1; d <= n; d++ {
		wd := time.Date(year, time.Month(month), d, 0, 0, 0, 0, time.UTC).Weekday()
		name, holiday := names[d]
		out[d-1] = DayColumn{
			Day:       d,
			Weekday:   wd,
			IsWeekend: wd == time.Saturday || wd == time.Sunday,
			IsHoliday: holiday,
			Holiday:   name,
		}
	}
	return out
}

// SortEntries orders rows for display
func SortEntries(entries []entity.ShiftEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].SortOrder != entries[j].SortOrder {
			return entries[i].SortOrder < entries[j].SortOrder
		}
		return entries[i].ID < entries[j].ID
	})
}
