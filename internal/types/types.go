// =============================================================================
// CAPCEE Ingestion - Shared Types
// =============================================================================
//
// This package contains the domain model shared across modules to avoid
// import cycles. Types defined here are used by:
//   - converter  (the ingestion pipeline)
//   - validation (structure and row checks)
//   - mapping    (column mapping registry)
//   - repository (Postgres persistence)
//   - ingest     (collaborator-facing service)
//
// =============================================================================

package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// FILE LIFECYCLE STATES
// =============================================================================

// FileState is the lifecycle state of an uploaded file.
//
// Transitions:
//
//	PENDING -> IN_PROGRESS -> {CONVERTED, VALIDATED, ERROR}
//	{VALIDATED, ERROR} -> PENDING (manual retry)
type FileState string

const (
	// StatePending means the file is stored and waiting for a worker.
	StatePending FileState = "PENDING"

	// StateInProgress means a worker owns the file and is processing rows.
	StateInProgress FileState = "IN_PROGRESS"

	// StateConverted means every row was consumed with zero row failures.
	// Duplicates do not prevent this state.
	StateConverted FileState = "CONVERTED"

	// StateValidated is the degraded-success state: the file was fully
	// consumed but at least one row failed.
	StateValidated FileState = "VALIDATED"

	// StateError means the run aborted (structure, empty file, timeout,
	// or any other file-level failure).
	StateError FileState = "ERROR"
)

// IsTerminal reports whether the state ends a processing attempt.
func (s FileState) IsTerminal() bool {
	return s == StateConverted || s == StateValidated || s == StateError
}

// IsRetryable reports whether a manual retry is accepted from this state.
func (s FileState) IsRetryable() bool {
	return s == StateError || s == StateValidated
}

// Valid reports whether s is one of the known states.
func (s FileState) Valid() bool {
	switch s {
	case StatePending, StateInProgress, StateConverted, StateValidated, StateError:
		return true
	}
	return false
}

// =============================================================================
// FILE RECORD
// =============================================================================

// RowStats holds the per-file row counters of one processing attempt.
type RowStats struct {
	Total      int `json:"total"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Duplicated int `json:"duplicated"`
}

// FileRecord is the persistent entity tracking a file's lifecycle and counters.
// It is mutated exclusively by the ingestion pipeline and the retry operation.
type FileRecord struct {
	// ID is a UUID assigned at upload time.
	ID string `json:"id"`

	// OriginalFilename is the name the file was uploaded with. File-type
	// detection runs against this name.
	OriginalFilename string `json:"original_filename"`

	// StoredPath is the content store key of the uploaded bytes.
	StoredPath string `json:"stored_path"`

	DepartmentID int64 `json:"department_id"`
	UserID       int64 `json:"user_id"`

	// Extension is the lower-cased extension without the dot ("xlsx", "xls", "csv").
	Extension string `json:"extension"`

	// FileType is the detected category (e.g. "OBRAS_2025"). Empty until
	// structure validation has run.
	FileType string `json:"file_type"`

	State FileState `json:"state"`
	Stats RowStats  `json:"stats"`

	// Errors holds file-level and row-scoped error messages.
	Errors []string `json:"errors"`

	UploadedAt time.Time  `json:"uploaded_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`

	// DurationSeconds is only set when a run completes row processing.
	DurationSeconds *int `json:"duration_seconds,omitempty"`

	// ContentHash is the hex sha-256 of the uploaded bytes.
	ContentHash string `json:"content_hash"`
	SizeBytes   int64  `json:"size_bytes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SuccessPercentage returns succeeded/total*100 rounded to two decimals,
// or 0 when no rows were processed.
func (f *FileRecord) SuccessPercentage() float64 {
	if f.Stats.Total == 0 {
		return 0
	}
	pct := float64(f.Stats.Succeeded) / float64(f.Stats.Total) * 100
	return math.Round(pct*100) / 100
}

// FormattedDuration renders the processing duration as "{m}m {s}s",
// or "N/A" when no duration was recorded.
func (f *FileRecord) FormattedDuration() string {
	if f.DurationSeconds == nil {
		return "N/A"
	}
	d := *f.DurationSeconds
	return fmt.Sprintf("%dm %ds", d/60, d%60)
}

// ResetForRetry clears counters, messages and timestamps and puts the record
// back into PENDING. Callers must check State.IsRetryable first.
func (f *FileRecord) ResetForRetry() {
	f.State = StatePending
	f.Stats = RowStats{}
	f.Errors = nil
	f.StartedAt = nil
	f.EndedAt = nil
	f.DurationSeconds = nil
}

// =============================================================================
// DEPARTMENT
// =============================================================================

// Department owns uploaded files and selects the column mapping set.
type Department struct {
	ID          int64  `json:"id"`
	Code        string `json:"code" yaml:"code"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`

	// DailyUploadLimit is the number of files the department may upload per day.
	DailyUploadLimit int `json:"daily_upload_limit" yaml:"daily_upload_limit"`

	// MaxFileSizeMB caps the size of a single upload.
	MaxFileSizeMB int  `json:"max_file_size_mb" yaml:"max_file_size_mb"`
	Active        bool `json:"active" yaml:"active"`
}

// =============================================================================
// COLUMN MAPPING
// =============================================================================

// DataType is the declared type of a mapped column.
type DataType string

const (
	DataTypeString  DataType = "string"
	DataTypeNumber  DataType = "number"
	DataTypeDate    DataType = "date"
	DataTypeBoolean DataType = "boolean"
)

// ParseDataType normalizes a configured data type. Unknown or empty values
// fall back to string.
func ParseDataType(s string) DataType {
	switch DataType(strings.ToLower(strings.TrimSpace(s))) {
	case DataTypeNumber:
		return DataTypeNumber
	case DataTypeDate:
		return DataTypeDate
	case DataTypeBoolean:
		return DataTypeBoolean
	default:
		return DataTypeString
	}
}

// ColumnMapping maps one source spreadsheet column to one target field.
// Identity is the (DepartmentCode, FileType, SourceColumn) triple.
type ColumnMapping struct {
	ID             int64               `json:"id,omitempty" yaml:"-"`
	DepartmentCode string              `json:"department_code" yaml:"-"`
	FileType       string              `json:"file_type" yaml:"-"`
	SourceColumn   string              `json:"source_column" yaml:"source_column"`
	TargetField    string              `json:"target_field" yaml:"target_field"`
	DataType       DataType            `json:"data_type" yaml:"data_type"`
	Required       bool                `json:"required" yaml:"required"`
	Validation     ValidationRules     `json:"validation_rules" yaml:"validation_rules"`
	Transformation TransformationRules `json:"transformation_rules" yaml:"transformation_rules"`
	Active         bool                `json:"active" yaml:"-"`

	// Position keeps the configured order when mappings are stored in a table.
	Position int `json:"position" yaml:"-"`
}

// ValidationRules are the optional per-column rule checks.
type ValidationRules struct {
	Min     *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Pattern string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// IsZero reports whether no rule is configured.
func (v ValidationRules) IsZero() bool {
	return v.Min == nil && v.Max == nil && v.Pattern == ""
}

// TransformationRules are applied to the raw cell text before type conversion,
// in the order trim, uppercase, lowercase, replacements.
type TransformationRules struct {
	Trim      bool         `json:"trim,omitempty" yaml:"trim,omitempty"`
	Uppercase bool         `json:"uppercase,omitempty" yaml:"uppercase,omitempty"`
	Lowercase bool         `json:"lowercase,omitempty" yaml:"lowercase,omitempty"`
	Replace   Replacements `json:"replace,omitempty" yaml:"replace,omitempty"`
}

// Replacement is a single literal substring replacement.
type Replacement struct {
	Find string `json:"find" yaml:"find"`
	With string `json:"with" yaml:"with"`
}

// Replacements is an ordered list of literal replacements.
//
// In JSON and YAML it is written as an object ({"$": "", ",": ""}) whose key
// order is preserved, or as a list of {find, with} pairs.
type Replacements []Replacement

// MarshalJSON writes the replacements as an object in configured order.
func (r Replacements) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, rep := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(rep.Find)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(rep.With)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object or a list, keeping object key order.
func (r *Replacements) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*r = nil
		return nil
	}

	if trimmed[0] == '[' {
		var list []Replacement
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*r = list
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("replace: expected object or array, got %v", tok)
	}

	out := Replacements{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("replace: unexpected key %v", keyTok)
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("replace %q: %w", key, err)
		}
		out = append(out, Replacement{Find: key, With: val})
	}
	*r = out
	return nil
}

// UnmarshalYAML reads a mapping node or a sequence node, keeping key order.
func (r *Replacements) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []Replacement
		if err := node.Decode(&list); err != nil {
			return err
		}
		*r = list
		return nil
	case yaml.MappingNode:
		out := make(Replacements, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			out = append(out, Replacement{
				Find: node.Content[i].Value,
				With: node.Content[i+1].Value,
			})
		}
		*r = out
		return nil
	default:
		return fmt.Errorf("replace: line %d: expected mapping or sequence", node.Line)
	}
}

// =============================================================================
// FINANCIAL RECORD
// =============================================================================

// FinancialRecord is the fixed-shape target row. Business fields are optional;
// provenance fields are stamped by the pipeline.
type FinancialRecord struct {
	ID int64 `json:"id"`

	// Identifiers. Folio1 together with DepartmentID is the duplicate key.
	Folio1             *float64 `json:"folio1,omitempty"`
	Folio2             *float64 `json:"folio2,omitempty"`
	Partida            *string  `json:"partida,omitempty"`
	CCT                *string  `json:"cct,omitempty"`
	Program            *string  `json:"programa,omitempty"`
	ContractNumber     *string  `json:"contrato,omitempty"`
	AuthorizationFolio *string  `json:"folio_autorizacion,omitempty"`
	RFC                *string  `json:"rfc,omitempty"`

	// Banking.
	Bank        *string `json:"banco,omitempty"`
	BankAccount *string `json:"cuenta_bancaria,omitempty"`
	CLABE       *string `json:"clabe,omitempty"`
	Beneficiary *string `json:"beneficiario,omitempty"`

	// Work / location.
	WorkName     *string `json:"obra,omitempty"`
	Municipality *string `json:"municipio,omitempty"`
	Locality     *string `json:"localidad,omitempty"`
	Contractor   *string `json:"empresa,omitempty"`

	// Amounts and progress.
	AuthorizedAmount  *float64 `json:"importe_autorizado,omitempty"`
	TotalPaid         *float64 `json:"total_pagado_por_obra,omitempty"`
	PhysicalProgress  *float64 `json:"avance_fisico,omitempty"`
	FinancialProgress *float64 `json:"avance_financiero,omitempty"`

	// Dates.
	Date              *time.Time `json:"fecha,omitempty"`
	AuthorizationDate *time.Time `json:"fecha_autorizacion,omitempty"`

	Status *string `json:"status,omitempty"`
	Month  *string `json:"mes,omitempty"`
	Notes  *string `json:"observaciones,omitempty"`

	// Provenance.
	FileID       string `json:"file_id"`
	DepartmentID int64  `json:"department_id"`
	UserID       int64  `json:"user_id"`
	SourceSystem string `json:"source_system"`
	SourceFile   string `json:"source_file"`
	Validated    bool   `json:"validated"`

	// Extra holds values mapped to target fields that have no column.
	Extra map[string]any `json:"extra,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// ACTIVITY LOG
// =============================================================================

// ActivityAction names an entry in the activity log.
type ActivityAction string

const (
	ActionUpload              ActivityAction = "upload"
	ActionProcessingStarted   ActivityAction = "processing_started"
	ActionProcessingCompleted ActivityAction = "processing_completed"
	ActionProcessingFailed    ActivityAction = "processing_failed"
	ActionRetry               ActivityAction = "retry"
	ActionDelete              ActivityAction = "delete"
)

// ActivityEntry is one audit log line about a file.
type ActivityEntry struct {
	ID          int64          `json:"id"`
	UserID      int64          `json:"user_id"`
	FileID      string         `json:"file_id"`
	Action      ActivityAction `json:"action"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
