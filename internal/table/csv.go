package table

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "table: open csv")
	}
	defer f.Close() //nolint:errcheck

	// Spreadsheet exports often prepend a UTF-8 BOM, which would otherwise
	// end up in the first header name.
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	reader := csv.NewReader(transform.NewReader(f, dec))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "table: read csv")
	}
	return records, nil
}

func writeCSV(path string, records [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".results-*.csv")
	if err != nil {
		return eris.Wrap(err, "table: create temp file")
	}

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(records); err != nil {
		tmp.Close() //nolint:errcheck
		_ = os.Remove(tmp.Name())
		return eris.Wrap(err, "table: write csv")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return eris.Wrap(err, "table: close temp file")
	}
	return replaceFile(tmp.Name(), path)
}
