// =============================================================================
// CAPCEE Ingestion - Row Validation Engine
// =============================================================================
//
// This module validates a single converted row against the column mappings
// that produced it. The checks are:
//   - Required field checks (null or empty string is missing)
//   - Numeric range checks (min / max)
//   - Pattern checks (regular expression match)
//
// VALIDATION STRATEGY:
//   Every mapping of the row is checked and every violation is collected;
//   validation never stops at the first problem. A row with one or more
//   violations is rejected as a whole by the pipeline.
//
//   Range and pattern rules are independent of the declared data type. A
//   string-typed column may carry a min rule; the value is then compared
//   numerically if it parses as a number.
//
//   Rule checks skip null values. Whether a value must be present is the
//   job of the required flag alone.
//
// =============================================================================

package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/callrodry/capcee-proyecto/internal/types"
)

// =============================================================================
// VIOLATION TYPES
// =============================================================================

// Rule names reported in Violation.Rule.
const (
	RuleRequired = "required"
	RuleMin      = "min"
	RuleMax      = "max"
	RulePattern  = "pattern"
)

// Violation is a single failed check on a row.
type Violation struct {
	// Field is the target field the rule is attached to.
	Field string

	// Rule is one of RuleRequired, RuleMin, RuleMax, RulePattern.
	Rule string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (v Violation) Error() string {
	return v.Message
}

// RowValidationFailure carries every violation found on a row. It is not a
// processing error: the row is counted as failed and processing continues.
type RowValidationFailure struct {
	Violations []Violation
}

// Error joins all violation messages.
func (f *RowValidationFailure) Error() string {
	msgs := make([]string, len(f.Violations))
	for i, v := range f.Violations {
		msgs[i] = v.Message
	}
	return strings.Join(msgs, "; ")
}

// =============================================================================
// ROW VALIDATION
// =============================================================================

// ValidateRow checks a converted row against its mappings.
//
// PARAMETERS:
//   - row: Converted values keyed by target field. A missing key and a nil
//     value are both treated as null.
//   - mappings: The active mappings for the row's department and file-type.
//
// RETURNS:
//   - nil if the row passes, otherwise a *RowValidationFailure listing every
//     violation in mapping order.
func ValidateRow(row map[string]any, mappings []types.ColumnMapping) *RowValidationFailure {
	var violations []Violation

	for i := range mappings {
		m := &mappings[i]
		if !m.Active {
			continue
		}
		value := row[m.TargetField]

		// =====================================================================
		// REQUIRED FIELD VALIDATION
		// =====================================================================

		if m.Required && isEmpty(value) {
			violations = append(violations, Violation{
				Field:   m.TargetField,
				Rule:    RuleRequired,
				Message: fmt.Sprintf("field %s is required", m.TargetField),
			})
			continue
		}

		if value == nil || m.Validation.IsZero() {
			continue
		}

		violations = append(violations, checkRules(m.TargetField, value, m.Validation)...)
	}

	if len(violations) == 0 {
		return nil
	}
	return &RowValidationFailure{Violations: violations}
}

// checkRules applies min, max and pattern to a non-null value.
func checkRules(field string, value any, rules types.ValidationRules) []Violation {
	var violations []Violation

	// =========================================================================
	// RANGE VALIDATION
	// =========================================================================

	if rules.Min != nil || rules.Max != nil {
		n, ok := numericValue(value)
		switch {
		case !ok:
			violations = append(violations, Violation{
				Field:   field,
				Rule:    RuleMin,
				Message: fmt.Sprintf("field %s must be numeric, got %q", field, stringValue(value)),
			})
		default:
			if rules.Min != nil && n < *rules.Min {
				violations = append(violations, Violation{
					Field:   field,
					Rule:    RuleMin,
					Message: fmt.Sprintf("field %s must be at least %s", field, formatFloat(*rules.Min)),
				})
			}
			if rules.Max != nil && n > *rules.Max {
				violations = append(violations, Violation{
					Field:   field,
					Rule:    RuleMax,
					Message: fmt.Sprintf("field %s must be at most %s", field, formatFloat(*rules.Max)),
				})
			}
		}
	}

	// =========================================================================
	// PATTERN VALIDATION
	// =========================================================================

	if rules.Pattern != "" {
		re, err := compilePattern(rules.Pattern)
		if err != nil {
			violations = append(violations, Violation{
				Field:   field,
				Rule:    RulePattern,
				Message: fmt.Sprintf("field %s has an invalid pattern %q", field, rules.Pattern),
			})
		} else if !re.MatchString(stringValue(value)) {
			violations = append(violations, Violation{
				Field:   field,
				Rule:    RulePattern,
				Message: fmt.Sprintf("field %s has an invalid format", field),
			})
		}
	}

	return violations
}

// =============================================================================
// VALUE HELPERS
// =============================================================================

// isEmpty reports null or empty-string. Zero and false are present values.
func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	}
	return false
}

// numericValue coerces a converted value for range comparison.
func numericValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// stringValue renders a converted value for pattern matching and messages.
func stringValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return formatFloat(v)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format("2006-01-02")
	case nil:
		return ""
	}
	return fmt.Sprint(value)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// =============================================================================
// PATTERN CACHE
// =============================================================================

var patternCache sync.Map // pattern string -> *regexp.Regexp

// compilePattern compiles and caches a configured pattern. Patterns written
// with slash delimiters ("/^[A-Z]{4}$/i") are accepted; the "i" flag maps to
// case-insensitive matching and other flags are ignored.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}

	expr := pattern
	if len(expr) >= 2 && expr[0] == '/' {
		if end := strings.LastIndex(expr, "/"); end > 0 {
			flags := expr[end+1:]
			expr = expr[1:end]
			if strings.Contains(flags, "i") {
				expr = "(?i)" + expr
			}
		}
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}
