package converter

import "fmt"

// errorList collects a file's error messages. Row-scoped messages are capped;
// file-level messages are always kept.
type errorList struct {
	max     int
	rows    []string
	dropped int
	file    []string
}

func newErrorList(max int) *errorList {
	return &errorList{max: max}
}

// addRow records "row {n}: {message}" unless the cap is reached.
func (l *errorList) addRow(line int, message string) {
	if len(l.rows) >= l.max {
		l.dropped++
		return
	}
	l.rows = append(l.rows, fmt.Sprintf("row %d: %s", line, message))
}

func (l *errorList) addFile(message string) {
	l.file = append(l.file, message)
}

// list returns row messages, the overflow summary, then file-level messages.
func (l *errorList) list() []string {
	out := make([]string, 0, len(l.rows)+len(l.file)+1)
	out = append(out, l.rows...)
	if l.dropped > 0 {
		out = append(out, fmt.Sprintf("... and %d more row errors", l.dropped))
	}
	out = append(out, l.file...)
	return out
}
