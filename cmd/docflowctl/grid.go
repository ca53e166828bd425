package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/garyjia/docflow/internal/application/service"
	"github.com/garyjia/docflow/internal/domain/entity"
)

// gridTable lays a schedule out one row per person. Weekend and holiday
// columns carry a "*" after the day number; free-text rows fill the first
// day column and leave the rest blank.
func gridTable(grid *service.Grid) table.Writer {
	header := table.Row{"Name"}
	for _, col := range grid.Columns {
		label := strconv.Itoa(col.Day)
		if col.IsHoliday || col.IsWeekend {
			label += "*"
		}
		header = append(header, label)
	}
	header = append(header, "Night", "Req.", "Extra", "OFF", "Vac.")

	tw := table.NewWriter()
	if doc := grid.Document; doc != nil {
		tw.SetTitle(fmt.Sprintf("%s %04d-%02d (%s)", doc.Title, doc.Year, doc.Month, doc.Status))
	}
	tw.AppendHeader(header)

	for i := range grid.Entries {
		e := &grid.Entries[i]
		name := e.PersonName
		if name == "" {
			name = e.PersonID
		}
		row := table.Row{name}
		if ft, ok := e.Content.(entity.FreeText); ok {
			for j := range grid.Columns {
				if j == 0 {
					row = append(row, ft.Text)
					continue
				}
				row = append(row, "")
			}
		} else {
			codes := e.ActiveCodes()
			for _, col := range grid.Columns {
				row = append(row, codes[col.Day])
			}
		}
		row = append(row, e.NightDutyActual, e.NightDutyRequired, e.NightDutyAdditional, e.OffCount, e.VacationUsedThisMonth)
		tw.AppendRow(row)
	}
	return tw
}

// writeGrid prints the grid as a table followed by its pattern warnings, or as JSON
func writeGrid(w io.Writer, grid *service.Grid, asJSON bool) error {
	if asJSON {
		return writeJSON(w, grid)
	}
	if _, err := fmt.Fprintln(w, gridTable(grid).Render()); err != nil {
		return err
	}
	for _, warn := range grid.Warnings {
		if _, err := fmt.Fprintf(w, "warning: %s day %d: %s\n", warn.PersonID, warn.StartDay, warn.Message); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
