package converter

import (
	"fmt"
	"strconv"
	"time"

	"github.com/callrodry/capcee-proyecto/internal/types"
	"github.com/callrodry/capcee-proyecto/internal/validation"
)

// =============================================================================
// ROW MAPPING ERRORS
// =============================================================================

// RowMappingError is raised while turning a row into a FinancialRecord. The
// row is counted as failed and processing continues.
type RowMappingError struct {
	Field string
	Err   error
}

func (e *RowMappingError) Error() string {
	return fmt.Sprintf("field %s: %v", e.Field, e.Err)
}

func (e *RowMappingError) Unwrap() error { return e.Err }

// =============================================================================
// ROW MAPPING
// =============================================================================

// ColumnIndex maps normalized header names to their cell position.
type ColumnIndex map[string]int

// NewColumnIndex indexes a normalized header row. When a header repeats, the
// first occurrence wins.
func NewColumnIndex(columns []string) ColumnIndex {
	idx := make(ColumnIndex, len(columns))
	for i, c := range columns {
		if c == "" {
			continue
		}
		if _, ok := idx[c]; !ok {
			idx[c] = i
		}
	}
	return idx
}

// MapRow applies every active mapping to the row's cells.
//
// RETURNS:
//   - Converted values keyed by target field. A mapping whose source column is
//     absent from the header yields nil.
func MapRow(cells []string, index ColumnIndex, mappings []types.ColumnMapping) map[string]any {
	values := make(map[string]any, len(mappings))
	for _, m := range mappings {
		if !m.Active {
			continue
		}
		raw := ""
		if pos, ok := index[validation.NormalizeColumn(m.SourceColumn)]; ok && pos < len(cells) {
			raw = cells[pos]
		}
		values[m.TargetField] = TransformCell(raw, m)
	}
	return values
}

// =============================================================================
// RECORD FIELD BINDING
// =============================================================================

// fieldKind is the Go type of a FinancialRecord column.
type fieldKind int

const (
	kindText fieldKind = iota
	kindNumber
	kindDate
)

type recordField struct {
	kind   fieldKind
	text   func(r *types.FinancialRecord) **string
	number func(r *types.FinancialRecord) **float64
	date   func(r *types.FinancialRecord) **time.Time
}

func textField(f func(r *types.FinancialRecord) **string) recordField {
	return recordField{kind: kindText, text: f}
}

func numberField(f func(r *types.FinancialRecord) **float64) recordField {
	return recordField{kind: kindNumber, number: f}
}

func dateField(f func(r *types.FinancialRecord) **time.Time) recordField {
	return recordField{kind: kindDate, date: f}
}

// recordFields is the set of target fields backed by a FinancialRecord column.
// Targets not listed here are kept in FinancialRecord.Extra.
var recordFields = map[string]recordField{
	"folio1":                numberField(func(r *types.FinancialRecord) **float64 { return &r.Folio1 }),
	"folio2":                numberField(func(r *types.FinancialRecord) **float64 { return &r.Folio2 }),
	"partida":               textField(func(r *types.FinancialRecord) **string { return &r.Partida }),
	"cct":                   textField(func(r *types.FinancialRecord) **string { return &r.CCT }),
	"programa":              textField(func(r *types.FinancialRecord) **string { return &r.Program }),
	"contrato":              textField(func(r *types.FinancialRecord) **string { return &r.ContractNumber }),
	"folio_autorizacion":    textField(func(r *types.FinancialRecord) **string { return &r.AuthorizationFolio }),
	"rfc":                   textField(func(r *types.FinancialRecord) **string { return &r.RFC }),
	"banco":                 textField(func(r *types.FinancialRecord) **string { return &r.Bank }),
	"cuenta_bancaria":       textField(func(r *types.FinancialRecord) **string { return &r.BankAccount }),
	"clabe":                 textField(func(r *types.FinancialRecord) **string { return &r.CLABE }),
	"beneficiario":          textField(func(r *types.FinancialRecord) **string { return &r.Beneficiary }),
	"obra":                  textField(func(r *types.FinancialRecord) **string { return &r.WorkName }),
	"municipio":             textField(func(r *types.FinancialRecord) **string { return &r.Municipality }),
	"localidad":             textField(func(r *types.FinancialRecord) **string { return &r.Locality }),
	"empresa":               textField(func(r *types.FinancialRecord) **string { return &r.Contractor }),
	"importe_autorizado":    numberField(func(r *types.FinancialRecord) **float64 { return &r.AuthorizedAmount }),
	"total_pagado_por_obra": numberField(func(r *types.FinancialRecord) **float64 { return &r.TotalPaid }),
	"avance_fisico":         numberField(func(r *types.FinancialRecord) **float64 { return &r.PhysicalProgress }),
	"avance_financiero":     numberField(func(r *types.FinancialRecord) **float64 { return &r.FinancialProgress }),
	"fecha":                 dateField(func(r *types.FinancialRecord) **time.Time { return &r.Date }),
	"fecha_autorizacion":    dateField(func(r *types.FinancialRecord) **time.Time { return &r.AuthorizationDate }),
	"status":                textField(func(r *types.FinancialRecord) **string { return &r.Status }),
	"mes":                   textField(func(r *types.FinancialRecord) **string { return &r.Month }),
	"observaciones":         textField(func(r *types.FinancialRecord) **string { return &r.Notes }),
}

// IsRecordField reports whether a target field has its own column.
func IsRecordField(target string) bool {
	_, ok := recordFields[target]
	return ok
}

// BindRecord builds a FinancialRecord from converted values.
//
// Null values leave the field unset. Text columns accept any converted
// value; numeric and date columns only accept their own type, otherwise a
// *RowMappingError is returned (a configuration that declares a numeric
// column as string, for example).
func BindRecord(values map[string]any) (*types.FinancialRecord, error) {
	rec := &types.FinancialRecord{}

	for target, value := range values {
		if value == nil {
			continue
		}

		field, ok := recordFields[target]
		if !ok {
			if rec.Extra == nil {
				rec.Extra = make(map[string]any)
			}
			rec.Extra[target] = extraValue(value)
			continue
		}

		switch field.kind {
		case kindText:
			s := textValue(value)
			*field.text(rec) = &s

		case kindNumber:
			n, ok := value.(float64)
			if !ok {
				return nil, &RowMappingError{Field: target, Err: fmt.Errorf("expected a number, got %T", value)}
			}
			*field.number(rec) = &n

		case kindDate:
			t, ok := value.(time.Time)
			if !ok {
				return nil, &RowMappingError{Field: target, Err: fmt.Errorf("expected a date, got %T", value)}
			}
			*field.date(rec) = &t
		}
	}

	return rec, nil
}

// textValue renders a converted value into a text column.
func textValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format("2006-01-02")
	}
	return fmt.Sprint(value)
}

// extraValue keeps JSON-friendly values; dates are stored as ISO days.
func extraValue(value any) any {
	if t, ok := value.(time.Time); ok {
		return t.Format("2006-01-02")
	}
	return value
}
