package table

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

const resultSheet = "results"

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "table: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("table: xlsx has no sheets")
	}

	var records [][]string
	for _, row := range f.Sheets[0].Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	return records, nil
}

func writeXLSX(path string, records [][]string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(resultSheet)
	if err != nil {
		return eris.Wrap(err, "table: add sheet")
	}
	for _, rec := range records {
		row := sheet.AddRow()
		for _, v := range rec {
			row.AddCell().SetString(v)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".results-*.xlsx")
	if err != nil {
		return eris.Wrap(err, "table: create temp file")
	}
	tmpName := tmp.Name()
	tmp.Close() //nolint:errcheck

	if err := f.Save(tmpName); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrap(err, "table: save xlsx")
	}
	return replaceFile(tmpName, path)
}
