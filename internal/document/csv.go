package document

import (
	"encoding/csv"
	"os"
)

// CSV codec. A CSV file is a single-sheet workbook of values; formulas,
// styles and merges have no CSV representation and are dropped on save.

func loadCSV(path string) (*Workbook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows are common in the wild
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	sheet := newSheet("Sheet1")
	for i, record := range records {
		for j, raw := range record {
			if raw == "" {
				continue
			}
			sheet.cell(Ref{Row: i + 1, Col: j + 1}).Value = parseCellValue(raw)
		}
	}
	if len(records) > 0 {
		cols := 0
		for _, record := range records {
			if len(record) > cols {
				cols = len(record)
			}
		}
		sheet.ensure(Ref{Row: len(records), Col: cols})
	}

	wb := &Workbook{}
	wb.addSheet(sheet)
	return wb, nil
}

func saveCSV(sheet *Sheet, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, row := range sheet.Cells {
		record := make([]string, len(row))
		for j, cell := range row {
			record[j] = DisplayString(cell.Value)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
