package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

var sheetHeader = []any{"N°", "Nom", "Présences", "Signature"}

// WriteXLSX renders the sheet as a workbook with one worksheet per page
func WriteXLSX(w io.Writer, s *Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	pages := s.Pages()
	if len(pages) == 0 {
		pages = [][]Row{nil}
	}

	for i, page := range pages {
		name := fmt.Sprintf("Page %d", i+1)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %q: %w", name, err)
		}

		if s.Season != nil {
			if err := f.SetCellValue(name, "A1", s.Season.Name); err != nil {
				return fmt.Errorf("failed to write title: %w", err)
			}
		}
		if err := f.SetSheetRow(name, "A2", &sheetHeader); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}

		for j, row := range page {
			cell, err := excelize.CoordinatesToCellName(1, j+3)
			if err != nil {
				return err
			}
			values := []any{"", "", "", ""}
			if !row.Blank {
				values = []any{row.Code, row.DisplayName, row.Presences, ""}
			}
			if err := f.SetSheetRow(name, cell, &values); err != nil {
				return fmt.Errorf("failed to write row %d: %w", j+1, err)
			}
		}

		if err := f.SetColWidth(name, "B", "B", 32); err != nil {
			return fmt.Errorf("failed to size columns: %w", err)
		}
		if err := f.SetColWidth(name, "D", "D", 24); err != nil {
			return fmt.Errorf("failed to size columns: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
