package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"xeroexport/pkg/models"
)

// SheetName is the worksheet holding the proposal rows
const SheetName = "Proposal"

// WriteWorkbook saves the proposal rows as an XLSX workbook at path
func WriteWorkbook(path string, export *models.Export, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("workbook: rename sheet: %w", err)
	}

	header := make([]interface{}, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("workbook: write headers: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("workbook: header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(Headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
		return fmt.Errorf("workbook: header style: %w", err)
	}

	reference := export.Reference()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := row.Values(reference)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("workbook: write row %d: %w", i+1, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("workbook: save %s: %w", path, err)
	}
	return nil
}
