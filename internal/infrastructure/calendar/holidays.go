package calendar

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/garyjia/docflow/internal/domain/shiftgrid"
)

// HolidayFile is the on-disk holiday list.
// Recurring holidays apply every year; Years adds dated ones per year.
type HolidayFile struct {
	Recurring []shiftgrid.Holiday         `yaml:"recurring"`
	Years     map[int][]shiftgrid.Holiday `yaml:"years"`
}

// FileCalendar implements port.HolidayCalendar from a YAML file loaded once
type FileCalendar struct {
	holidays HolidayFile
	logger   *zap.Logger
}

// LoadHolidays reads and validates a holiday file. An empty path or a missing
// file gives a calendar with no holidays.
func LoadHolidays(path string, logger *zap.Logger) (*FileCalendar, error) {
	cal := &FileCalendar{logger: logger}
	if path == "" {
		return cal, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Holiday file not found, no holidays will be marked", zap.String("path", path))
		return cal, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read holiday file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cal.holidays); err != nil {
		return nil, fmt.Errorf("failed to unmarshal holiday file: %w", err)
	}
	if err := cal.holidays.validate(); err != nil {
		return nil, err
	}

	logger.Info("Holiday calendar loaded",
		zap.String("path", path),
		zap.Int("recurring", len(cal.holidays.Recurring)),
		zap.Int("years", len(cal.holidays.Years)))
	return cal, nil
}

// ListHolidays returns the recurring and dated holidays of year, ordered by date
func (c *FileCalendar) ListHolidays(ctx context.Context, year int) ([]shiftgrid.Holiday, error) {
	out := make([]shiftgrid.Holiday, 0, len(c.holidays.Recurring)+len(c.holidays.Years[year]))
	out = append(out, c.holidays.Recurring...)
	out = append(out, c.holidays.Years[year]...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].Day < out[j].Day
	})
	return out, nil
}

func (f HolidayFile) validate() error {
	check := func(h shiftgrid.Holiday) error {
		if h.Month < 1 || h.Month > 12 || h.Day < 1 || h.Day > 31 {
			return fmt.Errorf("invalid holiday %q: month %d day %d", h.Name, h.Month, h.Day)
		}
		return nil
	}
	for _, h := range f.Recurring {
		if err := check(h); err != nil {
			return err
		}
	}
	for _, list := range f.Years {
		for _, h := range list {
			if err := check(h); err != nil {
				return err
			}
		}
	}
	return nil
}
