// Package table loads input rows from and writes result tables to CSV or
// XLSX files.
package table

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/minutes-cli/internal/model"
)

// Columns names the header cells used for input and output.
type Columns struct {
	ID         string
	Text       string
	Annotation string
	Error      string
}

// DefaultColumns matches the minutes dataset layout.
func DefaultColumns() Columns {
	return Columns{
		ID:         "date",
		Text:       "text",
		Annotation: "main_reason",
		Error:      "error",
	}
}

// outputHeader returns the result table header row.
func (c Columns) outputHeader() []string {
	return []string{c.ID, c.Annotation, c.Error}
}

// Load reads rows from path. Files ending in .xlsx are read from the first
// sheet; anything else is parsed as CSV.
func Load(path string, cols Columns) ([]model.Row, error) {
	var (
		records [][]string
		err     error
	)
	if isXLSX(path) {
		records, err = readXLSX(path)
	} else {
		records, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	return toRows(records, cols)
}

// Write persists the result table to path, replacing any existing file only
// once the new content is fully written.
func Write(path string, cols Columns, t model.Table) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "table: create output dir")
	}

	records := make([][]string, 0, len(t)+1)
	records = append(records, cols.outputHeader())
	for _, r := range t {
		records = append(records, []string{r.ID, deref(r.Annotation), deref(r.Error)})
	}

	if isXLSX(path) {
		return writeXLSX(path, records)
	}
	return writeCSV(path, records)
}

func toRows(records [][]string, cols Columns) ([]model.Row, error) {
	// Spreadsheets sometimes start with empty rows above the header.
	skipped := 0
	for len(records) > 0 && blank(records[0]) {
		records = records[1:]
		skipped++
	}
	if len(records) == 0 {
		return nil, eris.New("table: missing header row")
	}

	colIdx := make(map[string]int, len(records[0]))
	for i, col := range records[0] {
		colIdx[strings.TrimSpace(col)] = i
	}
	for _, col := range []string{cols.ID, cols.Text} {
		if _, ok := colIdx[col]; !ok {
			return nil, eris.Errorf("table: missing required column %q", col)
		}
	}

	rows := make([]model.Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		id := strings.TrimSpace(getCol(rec, colIdx, cols.ID))
		if id == "" {
			// Skipped leading rows, the header and 1-based numbering.
			return nil, eris.Errorf("table: row %d has an empty %q", skipped+i+2, cols.ID)
		}
		rows = append(rows, model.Row{
			ID:   id,
			Text: getCol(rec, colIdx, cols.Text),
		})
	}
	return rows, nil
}

// blank reports whether every cell of rec is empty or whitespace.
func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// getCol safely retrieves a column value from a record.
func getCol(rec []string, colIdx map[string]int, col string) string {
	idx, ok := colIdx[col]
	if !ok || idx >= len(rec) {
		return ""
	}
	return rec[idx]
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isXLSX(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

// outputMode is used for new output files. An existing file keeps its mode.
const outputMode os.FileMode = 0o644

// replaceFile moves tmp over path, removing tmp on failure. Temp files are
// created 0600, so the mode is fixed up before the rename.
func replaceFile(tmp, path string) error {
	mode := outputMode
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := os.Chmod(tmp, mode); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrap(err, "table: set output mode")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrap(err, "table: replace output")
	}
	return nil
}
