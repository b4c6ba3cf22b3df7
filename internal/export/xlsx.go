package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/abril-student/ranch-monitoring/internal/telemetry"
)

// SheetName is the worksheet holding the history rows.
const SheetName = "history"

// WriteXLSX writes every history sample to a single-sheet workbook with the
// same columns as the CSV export. Numbers are stored as numbers.
func WriteXLSX(w io.Writer, histories map[string][]telemetry.Record) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range Rows(histories) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := cells(row)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func cells(r Row) []interface{} {
	rec := r.Record
	strs := r.Values()
	out := []interface{}{r.ID, nil, strs[2], cell(rec.Lat), cell(rec.Lon), cell(rec.Batt), cell(rec.RSSI), cell(rec.SNR), nil}
	if rec.Timestamp != nil {
		out[1] = *rec.Timestamp
	}
	if rec.FixOK != nil {
		out[8] = *rec.FixOK
	}
	return out
}

func cell(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
