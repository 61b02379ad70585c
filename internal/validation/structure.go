package validation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/callrodry/capcee-proyecto/internal/sheet"
	"github.com/callrodry/capcee-proyecto/internal/types"
)

// =============================================================================
// FILE TYPE DETECTION
// =============================================================================

// Known file types.
const (
	FileTypeSeguimientoPagos = "SEGUIMIENTO_PAGOS"
	FileTypeObrasPrefix      = "OBRAS_"
	FileTypePagosBanorte     = "PAGOS_BANORTE"
	FileTypeGeneral          = "GENERAL"
)

var yearToken = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)[0-9]{2})(?:[^0-9]|$)`)

// bankMarkers maps a bank name found in a file name to its file type.
var bankMarkers = []struct {
	marker   string
	fileType string
}{
	{"BANORTE", FileTypePagosBanorte},
}

// DetectFileType derives the file type from the uploaded file name.
//
// The rules are evaluated in this order and the first match wins:
//  1. "SEGUIMIENTO" and "PAGOS"  -> SEGUIMIENTO_PAGOS
//  2. "OBRAS" and a year token   -> OBRAS_<year>
//  3. a bank name                -> PAGOS_<bank>
//  4. anything else              -> GENERAL
//
// Matching is case-insensitive.
func DetectFileType(filename string) string {
	name := strings.ToUpper(filename)

	if strings.Contains(name, "SEGUIMIENTO") && strings.Contains(name, "PAGOS") {
		return FileTypeSeguimientoPagos
	}

	if strings.Contains(name, "OBRAS") {
		if m := yearToken.FindStringSubmatch(name); m != nil {
			return FileTypeObrasPrefix + m[1]
		}
	}

	for _, b := range bankMarkers {
		if strings.Contains(name, b.marker) {
			return b.fileType
		}
	}

	return FileTypeGeneral
}

// =============================================================================
// STRUCTURE ERRORS
// =============================================================================

// EmptyFileError is returned when the first sheet has no rows at all.
type EmptyFileError struct{}

func (*EmptyFileError) Error() string { return "file is empty" }

// StructureError lists the required header columns absent from the file.
type StructureError struct {
	FileType string
	Missing  []string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("missing required columns for %s: %s", e.FileType, strings.Join(e.Missing, ", "))
}

// IsStructural reports whether err aborts a file before any row is read.
func IsStructural(err error) bool {
	var se *StructureError
	var ee *EmptyFileError
	return errors.As(err, &se) || errors.As(err, &ee)
}

// =============================================================================
// STRUCTURE VALIDATOR
// =============================================================================

// MappingLookup returns the active mappings for a department and file type.
type MappingLookup interface {
	MappingsFor(ctx context.Context, departmentCode, fileType string) ([]types.ColumnMapping, error)
}

// Structure is the outcome of a successful structure check.
type Structure struct {
	FileType string

	// Columns is the normalized header row, index-aligned with data rows.
	Columns []string

	// Mappings is the active mapping set the header was checked against.
	Mappings []types.ColumnMapping
}

// StructureValidator checks a sheet's header row against the registry.
type StructureValidator struct {
	mappings MappingLookup
}

// NewStructureValidator creates a validator over a mapping registry.
func NewStructureValidator(mappings MappingLookup) *StructureValidator {
	return &StructureValidator{mappings: mappings}
}

// Validate reads the header row from r and checks it.
//
// PARAMETERS:
//   - filename: The uploaded file name, used for file type detection.
//   - departmentCode: The owning department's code.
//   - r: A reader positioned before the header row. On success it is left
//     positioned on the first data row.
//
// RETURNS:
//   - The detected structure.
//   - *EmptyFileError, *StructureError, or a wrapped read/lookup error.
func (v *StructureValidator) Validate(ctx context.Context, filename, departmentCode string, r sheet.Reader) (*Structure, error) {
	fileType := DetectFileType(filename)

	header, err := r.Next()
	if err == io.EOF {
		return nil, &EmptyFileError{}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}

	columns := NormalizeHeader(header)

	mappings, err := v.mappings.MappingsFor(ctx, departmentCode, fileType)
	if err != nil {
		return nil, fmt.Errorf("failed to load mappings for %s/%s: %w", departmentCode, fileType, err)
	}

	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		if c != "" {
			present[c] = true
		}
	}

	var missing []string
	for _, col := range RequiredColumns(mappings) {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &StructureError{FileType: fileType, Missing: missing}
	}

	return &Structure{FileType: fileType, Columns: columns, Mappings: mappings}, nil
}

// RequiredColumns returns the normalized source columns of the active
// required mappings, in mapping order and without repeats.
func RequiredColumns(mappings []types.ColumnMapping) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, m := range mappings {
		if !m.Active || !m.Required {
			continue
		}
		col := NormalizeColumn(m.SourceColumn)
		if col == "" || seen[col] {
			continue
		}
		seen[col] = true
		cols = append(cols, col)
	}
	return cols
}

// NormalizeHeader trims and upper-cases every header token.
func NormalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = NormalizeColumn(h)
	}
	return out
}

// NormalizeColumn is the canonical form used to match header tokens
// against configured source columns.
func NormalizeColumn(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
