package sheet

import (
	"bytes"
	"fmt"
	"io"

	"github.com/extrame/xls"
)

// xlsReader walks the first sheet of a legacy BIFF workbook.
type xlsReader struct {
	sheet *xls.WorkSheet
	next  int
	last  int
}

func newXLSReader(r io.Reader) (*xlsReader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read xls content: %w", err)
	}

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("failed to open xls workbook: %w", err)
	}

	x := &xlsReader{last: -1}
	if wb.NumSheets() == 0 {
		return x, nil
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return x, nil
	}
	x.sheet = sheet

	// MaxRow is zero both for a one-row sheet and for an empty one.
	if sheet.MaxRow == 0 && sheet.Row(0) == nil {
		return x, nil
	}
	x.last = int(sheet.MaxRow)
	return x, nil
}

func (x *xlsReader) Next() ([]string, error) {
	if x.sheet == nil || x.next > x.last {
		return nil, io.EOF
	}

	row := x.sheet.Row(x.next)
	x.next++
	if row == nil {
		return []string{}, nil
	}

	last := row.LastCol()
	if last <= 0 {
		return []string{}, nil
	}
	cells := make([]string, last)
	for c := row.FirstCol(); c < last; c++ {
		cells[c] = row.Col(c)
	}
	return cells, nil
}

func (x *xlsReader) Close() error { return nil }
