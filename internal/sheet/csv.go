package sheet

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

const utf8BOM = "\uFEFF"

// csvReader streams a delimited text export one record at a time.
//
// encoding/csv drops empty lines, so the reader tracks line positions and
// hands back an empty row for every line it skipped.
type csvReader struct {
	reader *csv.Reader
	first  bool

	line    int      // last line consumed
	blanks  int      // empty rows still owed before pending
	pending []string // record read ahead while emitting blanks
}

func newCSVReader(r io.Reader, opts Options) *csvReader {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.Comma = delimiterRune(opts.CSVDelimiter)

	// Exports from the legacy systems have ragged rows and stray quotes.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false

	return &csvReader{reader: reader, first: true}
}

func (c *csvReader) Next() ([]string, error) {
	if c.blanks > 0 {
		c.blanks--
		return []string{}, nil
	}
	if c.pending != nil {
		record := c.pending
		c.pending = nil
		return record, nil
	}

	record, err := c.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv record: %w", err)
	}

	// Spreadsheet tools prepend a BOM to UTF-8 exports.
	if c.first {
		c.first = false
		if len(record) > 0 {
			record[0] = strings.TrimPrefix(record[0], utf8BOM)
		}
	}

	start, _ := c.reader.FieldPos(0)
	gap := start - c.line - 1
	c.line = c.endLine(record)
	if gap > 0 {
		c.blanks = gap - 1
		c.pending = record
		return []string{}, nil
	}
	return record, nil
}

// endLine is the line the record just read ends on. Quoted cells may span
// several lines.
func (c *csvReader) endLine(record []string) int {
	last := len(record) - 1
	line, _ := c.reader.FieldPos(last)
	return line + strings.Count(record[last], "\n")
}

func (c *csvReader) Close() error { return nil }

// delimiterRune resolves the configured delimiter, defaulting to a comma.
func delimiterRune(d string) rune {
	switch d {
	case "\\t", "\t", "tab", "TAB":
		return '\t'
	case "|", "pipe", "PIPE":
		return '|'
	case ";", "semicolon":
		return ';'
	case "":
		return ','
	default:
		return []rune(d)[0]
	}
}
