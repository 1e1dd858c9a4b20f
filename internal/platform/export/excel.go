package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Excel writes records to a single-sheet workbook with a bold header row.
func Excel(sheet string, columns []string, records []Record) ([]byte, error) {
	if len(columns) == 0 {
		columns = Columns(records)
	}

	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Export"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil && len(columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = f.SetCellStyle(sheet, "A1", last, style)
	}

	for r, rec := range records {
		row := make([]interface{}, len(columns))
		for i, col := range columns {
			row[i] = excelValue(rec[col])
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", r+1, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// excelValue keeps numbers, booleans and times native so the sheet sorts and
// sums correctly; everything else is rendered as text.
func excelValue(v interface{}) interface{} {
	switch v.(type) {
	case nil:
		return ""
	case float64, float32, int, int32, int64, bool:
		return v
	default:
		return Cell(v)
	}
}
