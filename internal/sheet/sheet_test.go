package sheet

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildXLSX(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf
}

func readAll(t *testing.T, r Reader) [][]string {
	t.Helper()
	var out [][]string
	for {
		row, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, row)
	}
}

func TestOpen_XLSX(t *testing.T) {
	buf := buildXLSX(t, [][]any{
		{"FOLIO1", "OBRA", "MUNICIPIO"},
		{101, "Escuela primaria", "Puebla"},
		{102, "Techado", "Atlixco"},
	})

	r, err := Open(FormatXLSX, buf, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	rows := readAll(t, r)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0][0] != "FOLIO1" || rows[0][2] != "MUNICIPIO" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][0] != "101" || rows[2][2] != "Atlixco" {
		t.Errorf("data rows = %v", rows[1:])
	}
}

func TestOpen_XLSXEmptySheet(t *testing.T) {
	buf := buildXLSX(t, nil)

	r, err := Open(FormatXLSX, buf, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Next() error = %v, want io.EOF", err)
	}
}

func TestOpen_CSV(t *testing.T) {
	src := "\uFEFFFOLIO1;OBRA\n1;\"Aula, anexo\"\n\n2;Barda\n"

	r, err := Open(FormatCSV, strings.NewReader(src), Options{CSVDelimiter: "semicolon"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	rows := readAll(t, r)
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4: %v", len(rows), rows)
	}
	if rows[0][0] != "FOLIO1" {
		t.Errorf("BOM not stripped: %q", rows[0][0])
	}
	if rows[1][1] != "Aula, anexo" {
		t.Errorf("quoted cell = %q", rows[1][1])
	}
	if !IsBlank(rows[2]) {
		t.Errorf("empty line = %q, want a blank row", rows[2])
	}
	if rows[3][1] != "Barda" {
		t.Errorf("row after empty line = %q", rows[3])
	}
}

func TestOpen_CSVKeepsLineNumbers(t *testing.T) {
	src := "FOLIO1,OBRA\n\n\n1,\"Aula\nanexo\"\n\n2,Barda\n"

	r, err := Open(FormatCSV, strings.NewReader(src), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	rows := readAll(t, r)
	// Header on line 1, two empty lines, a record spanning lines 4-5,
	// an empty line 6 and the last record on line 7.
	want := []bool{false, true, true, false, true, false}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d: %q", len(rows), len(want), rows)
	}
	for i, blank := range want {
		if IsBlank(rows[i]) != blank {
			t.Errorf("rows[%d] = %q, blank = %v", i, rows[i], blank)
		}
	}
	if rows[3][1] != "Aula\nanexo" {
		t.Errorf("multi-line cell = %q", rows[3][1])
	}
}

func TestOpen_Unsupported(t *testing.T) {
	_, err := Open(Format("ods"), strings.NewReader(""), Options{})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestReadChunk(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 5; i++ {
		b.WriteString("a,b\n")
	}
	r, _ := Open(FormatCSV, strings.NewReader(b.String()), Options{})

	rows, err := ReadChunk(r, 2)
	if err != nil || len(rows) != 2 {
		t.Fatalf("first chunk: %d rows, err %v", len(rows), err)
	}
	rows, err = ReadChunk(r, 2)
	if err != nil || len(rows) != 2 {
		t.Fatalf("second chunk: %d rows, err %v", len(rows), err)
	}
	rows, err = ReadChunk(r, 2)
	if err != io.EOF || len(rows) != 1 {
		t.Fatalf("last chunk: %d rows, err %v", len(rows), err)
	}
}

func TestFormatFromFilename(t *testing.T) {
	tests := map[string]Format{
		"OBRAS 2025.XLSX": FormatXLSX,
		"banorte.xls":     FormatXLS,
		"seguimiento.csv": FormatCSV,
	}
	for name, want := range tests {
		got, err := FormatFromFilename(name)
		if err != nil || got != want {
			t.Errorf("FormatFromFilename(%q) = %q, %v; want %q", name, got, err, want)
		}
	}
	if _, err := FormatFromFilename("notes.txt"); err == nil {
		t.Error("expected error for .txt")
	}
}

func TestIsBlank(t *testing.T) {
	if !IsBlank([]string{"", "  "}) {
		t.Error("IsBlank(whitespace) = false")
	}
	if IsBlank([]string{"", "x"}) {
		t.Error("IsBlank(x) = true")
	}
}
