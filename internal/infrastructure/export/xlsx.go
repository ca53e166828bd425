package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/shiftgrid"
)

const (
	sheetName = "Schedule"

	rowTitle     = 1
	rowPeriod    = 2
	rowHeader    = 3
	rowWeekday   = 4
	dataRowStart = 5

	colName     = 1
	colPosition = 2
	colFirstDay = 3

	weekendColor = "#FDE9D9"
	holidayColor = "#F4B084"
)

var summaryHeaders = []string{
	"Night req.", "Night", "Night extra", "OFF",
	"Vacation (month)", "Vacation total", "Vacation used", "Remarks",
}

// XLSXExporter renders a schedule grid as an Excel workbook
type XLSXExporter struct {
	font   string
	logger *zap.Logger
}

// NewXLSXExporter creates an exporter. font is an optional default font name.
func NewXLSXExporter(font string, logger *zap.Logger) *XLSXExporter {
	return &XLSXExporter{font: font, logger: logger}
}

func (x *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (x *XLSXExporter) Extension() string {
	return ".xlsx"
}

// Export writes one sheet: a header block, one column per day and one row per entry
func (x *XLSXExporter) Export(ctx context.Context, doc *entity.Document, entries []entity.ShiftEntry, columns []shiftgrid.DayColumn, w io.Writer) error {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if x.font != "" {
		if err := file.SetDefaultFont(x.font); err != nil {
			x.logger.Warn("Failed to set default font for export",
				zap.String("font", x.font),
				zap.Error(err))
		}
	}

	styles, err := newStyles(file)
	if err != nil {
		return err
	}

	lastCol := colFirstDay + len(columns) + len(summaryHeaders) - 1
	if err := x.writeHeader(file, doc, columns, styles, lastCol); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, e := range entries {
		if err := x.writeEntry(file, dataRowStart+i, e, columns, styles); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", e.PersonID, err)
		}
	}

	if err := file.SetColWidth(sheetName, cellCol(colName), cellCol(colPosition), 14); err != nil {
		return err
	}
	if len(columns) > 0 {
		if err := file.SetColWidth(sheetName, cellCol(colFirstDay), cellCol(colFirstDay+len(columns)-1), 5); err != nil {
			return err
		}
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	x.logger.Info("Schedule exported",
		zap.Int64("document_id", doc.ID),
		zap.Int("rows", len(entries)),
		zap.Int("days", len(columns)))
	return nil
}

type styleSet struct {
	header  int
	weekend int
	holiday int
}

func newStyles(file *excelize.File) (styleSet, error) {
	var s styleSet
	var err error
	center := &excelize.Alignment{Horizontal: "center", Vertical: "center"}

	if s.header, err = file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: center,
	}); err != nil {
		return s, fmt.Errorf("failed to create header style: %w", err)
	}
	if s.weekend, err = file.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{weekendColor}},
		Alignment: center,
	}); err != nil {
		return s, fmt.Errorf("failed to create weekend style: %w", err)
	}
	if s.holiday, err = file.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{holidayColor}},
		Alignment: center,
	}); err != nil {
		return s, fmt.Errorf("failed to create holiday style: %w", err)
	}
	return s, nil
}

func (x *XLSXExporter) writeHeader(file *excelize.File, doc *entity.Document, columns []shiftgrid.DayColumn, styles styleSet, lastCol int) error {
	if err := file.SetCellValue(sheetName, cell(colName, rowTitle), doc.Title); err != nil {
		return err
	}
	if err := file.MergeCell(sheetName, cell(colName, rowTitle), cell(lastCol, rowTitle)); err != nil {
		return err
	}
	period := fmt.Sprintf("%04d-%02d", doc.Year, doc.Month)
	if err := file.SetCellValue(sheetName, cell(colName, rowPeriod), period); err != nil {
		return err
	}

	if err := file.SetCellValue(sheetName, cell(colName, rowHeader), "Name"); err != nil {
		return err
	}
	if err := file.SetCellValue(sheetName, cell(colPosition, rowHeader), "Position"); err != nil {
		return err
	}

	for i, c := range columns {
		col := colFirstDay + i
		if err := file.SetCellValue(sheetName, cell(col, rowHeader), c.Day); err != nil {
			return err
		}
		if err := file.SetCellValue(sheetName, cell(col, rowWeekday), weekdayLabel(c.Weekday)); err != nil {
			return err
		}
		if c.IsHoliday && c.Holiday != "" {
			if err := file.AddComment(sheetName, excelize.Comment{
				Cell:   cell(col, rowHeader),
				Author: "docflow",
				Text:   c.Holiday,
			}); err != nil {
				return err
			}
		}
	}

	for i, h := range summaryHeaders {
		if err := file.SetCellValue(sheetName, cell(colFirstDay+len(columns)+i, rowHeader), h); err != nil {
			return err
		}
	}

	if err := file.SetCellStyle(sheetName, cell(colName, rowTitle), cell(lastCol, rowHeader), styles.header); err != nil {
		return err
	}
	return styleDayColumns(file, columns, styles, rowHeader, rowWeekday)
}

func (x *XLSXExporter) writeEntry(file *excelize.File, row int, e entity.ShiftEntry, columns []shiftgrid.DayColumn, styles styleSet) error {
	name := e.PersonName
	if name == "" {
		name = e.PersonID
	}
	if err := file.SetCellValue(sheetName, cell(colName, row), name); err != nil {
		return err
	}
	if err := file.SetCellValue(sheetName, cell(colPosition, row), e.PositionID); err != nil {
		return err
	}

	if err := styleDayColumns(file, columns, styles, row, row); err != nil {
		return err
	}

	if ft, ok := e.Content.(entity.FreeText); ok && len(columns) > 0 {
		first, last := cell(colFirstDay, row), cell(colFirstDay+len(columns)-1, row)
		if err := file.MergeCell(sheetName, first, last); err != nil {
			return err
		}
		if err := file.SetCellValue(sheetName, first, ft.Text); err != nil {
			return err
		}
	} else {
		for day, code := range e.ActiveCodes() {
			if day < 1 || day > len(columns) {
				continue
			}
			if err := file.SetCellValue(sheetName, cell(colFirstDay+day-1, row), code); err != nil {
				return err
			}
		}
	}

	values := []interface{}{
		e.NightDutyRequired, e.NightDutyActual, e.NightDutyAdditional, e.OffCount,
		e.VacationUsedThisMonth, e.VacationTotal, e.VacationUsedTotal, e.Remarks,
	}
	for i, v := range values {
		if err := file.SetCellValue(sheetName, cell(colFirstDay+len(columns)+i, row), v); err != nil {
			return err
		}
	}
	return nil
}

// styleDayColumns shades weekend and holiday columns between two rows
func styleDayColumns(file *excelize.File, columns []shiftgrid.DayColumn, styles styleSet, fromRow, toRow int) error {
	for i, c := range columns {
		style := 0
		switch {
		case c.IsHoliday:
			style = styles.holiday
		case c.IsWeekend:
			style = styles.weekend
		default:
			continue
		}
		col := colFirstDay + i
		if err := file.SetCellStyle(sheetName, cell(col, fromRow), cell(col, toRow), style); err != nil {
			return err
		}
	}
	return nil
}

func weekdayLabel(d time.Weekday) string {
	return d.String()[:3]
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func cellCol(col int) string {
	name, _ := excelize.ColumnNumberToName(col)
	return name
}
