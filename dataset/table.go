// Package dataset loads claims and patient CSV files and prepares the
// training matrix plus the frozen feature schema.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Table is a column-named CSV in memory. Cell values stay strings until
// kinds are inferred; empty cells mean missing.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ReadCSV loads a table. Hospital claim exports are frequently Windows-1252
// rather than UTF-8; encoding selects the decode applied while reading.
func ReadCSV(path, encoding string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var source io.Reader = file
	switch strings.ToLower(encoding) {
	case "", "utf8", "utf-8":
	case "latin1", "windows-1252", "cp1252":
		source = transform.NewReader(file, charmap.Windows1252.NewDecoder())
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}

	reader := csv.NewReader(source)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	table := &Table{Columns: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}

// ColumnIndex returns the position of a column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Cell returns the value at (row, column name); ok is false when the column
// does not exist or the cell is empty.
func (t *Table) Cell(row int, name string) (string, bool) {
	idx := t.ColumnIndex(name)
	if idx < 0 || idx >= len(t.Rows[row]) {
		return "", false
	}
	value := strings.TrimSpace(t.Rows[row][idx])
	if value == "" || strings.EqualFold(value, "na") || strings.EqualFold(value, "null") {
		return "", false
	}
	return value, true
}
