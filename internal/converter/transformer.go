// =============================================================================
// CAPCEE Ingestion - Value Converter
// =============================================================================
//
// This module turns raw cell text into typed values. It has two stages that
// always run in this order:
//
//   1. Transformation rules (per mapping, from configuration):
//        trim -> uppercase -> lowercase -> literal replacements
//      Replacements run in the order they were configured.
//
//   2. Type conversion by the mapping's declared data type:
//        number  : plain numeric text as is, otherwise strip everything
//                  but digits and dots, then parse
//        date    : Excel serial number or a permissive date parse
//        boolean : truthy word list, anything else is false
//        string  : trimmed text
//
// CONVERSION PHILOSOPHY:
//   Conversion never fails. Empty input is null for every type, and a value
//   that cannot be parsed as its declared type becomes null. Turning a null
//   into a reported problem is the row validator's job, through the required
//   flag. Making conversion strict changes observable row counts.
//
// =============================================================================

package converter

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/xuri/excelize/v2"

	"github.com/callrodry/capcee-proyecto/internal/types"
)

// =============================================================================
// TRANSFORMATION RULES
// =============================================================================

// ApplyTransformations applies a mapping's transformation rules to raw text.
//
// PARAMETERS:
//   - value: The raw cell text.
//   - rules: The mapping's transformation rules.
//
// RETURNS:
//   - The transformed text.
func ApplyTransformations(value string, rules types.TransformationRules) string {
	if rules.Trim {
		value = strings.TrimSpace(value)
	}
	if rules.Uppercase {
		value = strings.ToUpper(value)
	}
	if rules.Lowercase {
		value = strings.ToLower(value)
	}
	for _, r := range rules.Replace {
		if r.Find == "" {
			continue
		}
		value = strings.ReplaceAll(value, r.Find, r.With)
	}
	return value
}

// =============================================================================
// TYPE CONVERSION
// =============================================================================

var nonNumeric = regexp.MustCompile(`[^0-9.]`)

// excelSerial matches plain day serials as stored by spreadsheet programs.
var excelSerial = regexp.MustCompile(`^[0-9]{1,5}(\.[0-9]+)?$`)

// truthy lists the boolean spellings accepted as true.
var truthy = map[string]bool{
	"1": true, "true": true, "yes": true, "on": true,
	"y": true, "t": true, "si": true, "sí": true,
}

// ConvertValue converts transformed cell text to the declared data type.
//
// RETURNS:
//   - nil for empty input or for text that does not parse as the type.
//   - float64 for number, time.Time (UTC midnight) for date, bool for
//     boolean, trimmed string otherwise.
func ConvertValue(raw string, dataType types.DataType) any {
	if raw == "" {
		return nil
	}

	switch dataType {
	case types.DataTypeNumber:
		return convertNumber(raw)
	case types.DataTypeDate:
		return convertDate(raw)
	case types.DataTypeBoolean:
		return truthy[strings.ToLower(strings.TrimSpace(raw))]
	default:
		return strings.TrimSpace(raw)
	}
}

// TransformCell applies the mapping's rules and converts the result.
func TransformCell(raw string, m types.ColumnMapping) any {
	return ConvertValue(ApplyTransformations(raw, m.Transformation), m.DataType)
}

// convertNumber parses plain numeric text as is, including the E-notation
// XLSX uses for stored numbers. Anything else has currency symbols,
// separators and signs stripped before parsing: "$1,234.50" becomes 1234.5,
// "abc" becomes nil.
func convertNumber(raw string) any {
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err == nil || errors.Is(err, strconv.ErrRange) {
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return nil
		}
		return n
	}

	cleaned := nonNumeric.ReplaceAllString(raw, "")
	if cleaned == "" {
		return nil
	}
	n, err = strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return nil
	}
	return n
}

// convertDate accepts Excel day serials and any layout dateparse recognizes,
// preferring day-first for ambiguous numeric dates.
func convertDate(raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	if excelSerial.MatchString(s) {
		serial, err := strconv.ParseFloat(s, 64)
		if err == nil && serial > 0 {
			t, err := excelize.ExcelDateToTime(serial, false)
			if err == nil {
				return truncateDay(t)
			}
		}
		return nil
	}

	t, err := dateparse.ParseIn(s, time.UTC,
		dateparse.PreferMonthFirst(false),
		dateparse.RetryAmbiguousDateWithSwap(true),
	)
	if err != nil {
		return nil
	}
	return truncateDay(t)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
