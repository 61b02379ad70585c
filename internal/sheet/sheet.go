// =============================================================================
// CAPCEE Ingestion - Spreadsheet Reader Module
// =============================================================================
//
// This module streams rows out of uploaded spreadsheets. Three container
// formats are supported:
//   - XLSX (Office Open XML)   : excelize streaming row iterator
//   - XLS  (BIFF8 binary)      : extrame/xls
//   - CSV                      : encoding/csv
//
// Only the first sheet of a workbook is read. Rows are returned as raw cell
// text; typing and transformation happen later in the converter.
//
// USAGE:
//   r, err := sheet.Open(sheet.FormatXLSX, content, sheet.Options{})
//   if err != nil {
//       return err
//   }
//   defer r.Close()
//
//   for {
//       rows, err := sheet.ReadChunk(r, 1000)
//       // process rows...
//       if err == io.EOF {
//           break
//       }
//   }
//
// =============================================================================

package sheet

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// =============================================================================
// FORMATS
// =============================================================================

// Format is a supported spreadsheet container format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
)

// ErrUnsupportedFormat is returned for extensions outside xlsx/xls/csv.
var ErrUnsupportedFormat = fmt.Errorf("unsupported spreadsheet format")

// ParseFormat maps an extension (with or without the leading dot, any case)
// to a Format.
func ParseFormat(ext string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), ".")) {
	case "xlsx":
		return FormatXLSX, nil
	case "xls":
		return FormatXLS, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// FormatFromFilename returns the Format for a file name's extension.
func FormatFromFilename(name string) (Format, error) {
	return ParseFormat(filepath.Ext(name))
}

// =============================================================================
// READER
// =============================================================================

// Reader streams the rows of the first sheet, header row included.
type Reader interface {
	// Next returns the next row's cells. It returns io.EOF after the last row.
	// A row with no cells is returned as an empty slice, not skipped, so
	// callers can keep spreadsheet line numbers.
	Next() ([]string, error)

	// Close releases the underlying workbook.
	Close() error
}

// Options tunes the readers. Zero values are valid.
type Options struct {
	// CSVDelimiter is the field separator for CSV input.
	// Accepts "," ";" "|" "\t" or the names "tab", "pipe", "semicolon".
	// Default: ","
	CSVDelimiter string
}

// Open returns a Reader for the given format over r.
//
// PARAMETERS:
//   - format: The container format, usually from FormatFromFilename.
//   - r: The file content. XLSX and XLS are fully buffered because both
//     containers need random access; CSV is streamed.
//   - opts: Reader options.
//
// RETURNS:
//   - A Reader positioned before the header row.
//   - An error if the container cannot be opened.
func Open(format Format, r io.Reader, opts Options) (Reader, error) {
	switch format {
	case FormatXLSX:
		return newXLSXReader(r)
	case FormatXLS:
		return newXLSReader(r)
	case FormatCSV:
		return newCSVReader(r, opts), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// ReadChunk reads up to size rows from r.
//
// It follows io.Reader conventions: when the end of the sheet is reached the
// returned error is io.EOF and rows may still hold the last partial chunk.
func ReadChunk(r Reader, size int) ([][]string, error) {
	if size <= 0 {
		size = 1
	}
	rows := make([][]string, 0, size)
	for len(rows) < size {
		row, err := r.Next()
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// IsBlank reports whether every cell of the row is empty or whitespace.
func IsBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
