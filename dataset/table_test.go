package dataset

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadCSV(t *testing.T) {
	path := writeCSV(t, "t.csv", "age, smoker\n72,Yes\n,No\n")
	table, err := ReadCSV(path, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.Columns) != 2 || table.Columns[1] != "smoker" {
		t.Fatalf("unexpected header: %v", table.Columns)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	if v, ok := table.Cell(0, "age"); !ok || v != "72" {
		t.Fatalf("unexpected cell: %q %v", v, ok)
	}
	if _, ok := table.Cell(1, "age"); ok {
		t.Fatal("empty cell must read as missing")
	}
	if _, ok := table.Cell(0, "absent"); ok {
		t.Fatal("missing column must read as missing")
	}
}

func TestReadCSVWindows1252(t *testing.T) {
	// 0xE9 is é in Windows-1252 and invalid as a standalone UTF-8 byte.
	raw := []byte("name,age\nRen\xe9e,41\n")
	path := filepath.Join(t.TempDir(), "latin1.csv")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	table, err := ReadCSV(path, "latin1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := table.Cell(0, "name"); v != "Renée" {
		t.Fatalf("expected decoded name, got %q", v)
	}
}

func TestReadCSVUnsupportedEncoding(t *testing.T) {
	path := writeCSV(t, "t.csv", "a\n1\n")
	if _, err := ReadCSV(path, "ebcdic"); err == nil {
		t.Fatal("expected error for unsupported encoding")
	}
}
