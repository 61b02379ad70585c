package sheet

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// xlsxReader iterates the first worksheet with excelize's streaming Rows
// iterator so the sheet XML is never expanded into a full [][]string.
type xlsxReader struct {
	file *excelize.File
	rows *excelize.Rows
}

func newXLSXReader(r io.Reader) (*xlsxReader, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx workbook: %w", err)
	}

	x := &xlsxReader{file: f}

	// An empty workbook has no rows at all; Next reports io.EOF straight away.
	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return x, nil
	}

	rows, err := f.Rows(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheetName, err)
	}
	x.rows = rows
	return x, nil
}

// Next returns raw cell values. Dates come back as Excel serial numbers,
// which the converter understands.
func (x *xlsxReader) Next() ([]string, error) {
	if x.rows == nil || !x.rows.Next() {
		if x.rows != nil {
			if err := x.rows.Error(); err != nil {
				return nil, fmt.Errorf("failed to read xlsx row: %w", err)
			}
		}
		return nil, io.EOF
	}

	cols, err := x.rows.Columns(excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read xlsx row: %w", err)
	}
	if cols == nil {
		cols = []string{}
	}
	return cols, nil
}

func (x *xlsxReader) Close() error {
	if x.rows != nil {
		if err := x.rows.Close(); err != nil {
			x.file.Close()
			return err
		}
	}
	return x.file.Close()
}
