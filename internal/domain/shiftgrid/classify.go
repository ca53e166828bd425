// Package shiftgrid derives per-person counters from a month of shift codes.
// Everything here is pure; persistence and authorization live in the service layer.
package shiftgrid

import (
	"strings"
)

// Class is the contribution of one shift code to the counters
type Class struct {
	Night    bool
	Off      bool
	Vacation float64
	// DayShift marks codes that start a day shift; used only for pattern warnings
	DayShift bool
}

// Normalize trims and upper-cases a code
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Classify maps a code to its counter contribution. Unknown and blank codes count for nothing.
func Classify(code string) Class {
	c := Normalize(code)
	switch {
	case c == "":
		return Class{}
	case c == "HN":
		return Class{Night: true, Vacation: 0.5}
	case c == "N" || strings.HasPrefix(c, "NIGHT"):
		return Class{Night: true}
	case strings.HasPrefix(c, "OFF"):
		return Class{Off: true}
	case strings.Contains(c, "연") || c == "AL" || c == "ANNUAL":
		return Class{Vacation: 1.0}
	case c == "반차" || c == "HD" || c == "HE":
		return Class{Vacation: 0.5}
	case strings.HasPrefix(c, "D"):
		return Class{DayShift: true}
	default:
		return Class{}
	}
}
