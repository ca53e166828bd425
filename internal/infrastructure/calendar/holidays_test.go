package calendar

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/domain/shiftgrid"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "holidays.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadHolidays(t *testing.T) {
	path := writeFile(t, `
recurring:
  - {month: 3, day: 1, name: Independence Movement Day}
  - {month: 1, day: 1, name: New Year}
years:
  2026:
    - {month: 2, day: 17, name: Lunar New Year}
`)
	cal, err := LoadHolidays(path, zap.NewNop())
	require.NoError(t, err)

	got, err := cal.ListHolidays(context.Background(), 2026)
	require.NoError(t, err)
	assert.Equal(t, []shiftgrid.Holiday{
		{Month: 1, Day: 1, Name: "New Year"},
		{Month: 2, Day: 17, Name: "Lunar New Year"},
		{Month: 3, Day: 1, Name: "Independence Movement Day"},
	}, got)

	got, err = cal.ListHolidays(context.Background(), 2027)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestLoadHolidays_MissingFile(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "none.yaml")} {
		cal, err := LoadHolidays(path, zap.NewNop())
		require.NoError(t, err)
		got, err := cal.ListHolidays(context.Background(), 2026)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}

func TestLoadHolidays_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad month", "recurring:\n  - {month: 13, day: 1}\n"},
		{"bad day", "years:\n  2026:\n    - {month: 1, day: 0}\n"},
		{"not yaml", "recurring: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadHolidays(writeFile(t, tt.content), zap.NewNop())
			assert.Error(t, err)
		})
	}
}
