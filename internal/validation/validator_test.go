package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/callrodry/capcee-proyecto/internal/types"
)

func ptr(f float64) *float64 { return &f }

func TestValidateRow_Required(t *testing.T) {
	mappings := []types.ColumnMapping{
		{SourceColumn: "FOLIO1", TargetField: "folio1", DataType: types.DataTypeNumber, Required: true, Active: true},
		{SourceColumn: "MUNICIPIO", TargetField: "municipio", Required: true, Active: true},
		{SourceColumn: "OBRA", TargetField: "obra", Active: true},
	}

	tests := []struct {
		name   string
		row    map[string]any
		fields []string
	}{
		{"all present", map[string]any{"folio1": 1.0, "municipio": "Puebla"}, nil},
		{"nil value", map[string]any{"folio1": 1.0, "municipio": nil}, []string{"municipio"}},
		{"empty string", map[string]any{"folio1": 1.0, "municipio": ""}, []string{"municipio"}},
		{"missing key", map[string]any{"municipio": "Puebla"}, []string{"folio1"}},
		{"zero is present", map[string]any{"folio1": 0.0, "municipio": "x"}, nil},
		{"both missing", map[string]any{}, []string{"folio1", "municipio"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failure := ValidateRow(tt.row, mappings)
			if len(tt.fields) == 0 {
				if failure != nil {
					t.Fatalf("unexpected failure: %v", failure)
				}
				return
			}
			if failure == nil {
				t.Fatalf("expected violations on %v", tt.fields)
			}
			if len(failure.Violations) != len(tt.fields) {
				t.Fatalf("got %d violations, want %d: %v", len(failure.Violations), len(tt.fields), failure)
			}
			for i, f := range tt.fields {
				if failure.Violations[i].Field != f || failure.Violations[i].Rule != RuleRequired {
					t.Errorf("violation %d = %+v, want required on %s", i, failure.Violations[i], f)
				}
			}
		})
	}
}

func TestValidateRow_Rules(t *testing.T) {
	mappings := []types.ColumnMapping{
		{TargetField: "total_pagado_por_obra", DataType: types.DataTypeNumber, Active: true,
			Validation: types.ValidationRules{Min: ptr(0), Max: ptr(1000)}},
		{TargetField: "rfc", Active: true,
			Validation: types.ValidationRules{Pattern: "/^[A-Z&]{3,4}[0-9]{6}[A-Z0-9]{3}$/i"}},
		{TargetField: "partida", Active: true,
			Validation: types.ValidationRules{Min: ptr(10)}},
	}

	tests := []struct {
		name  string
		row   map[string]any
		rules []string
	}{
		{"valid", map[string]any{"total_pagado_por_obra": 500.0, "rfc": "abc010101xy9", "partida": "12"}, nil},
		{"below min", map[string]any{"total_pagado_por_obra": -1.0}, []string{RuleMin}},
		{"above max", map[string]any{"total_pagado_por_obra": 1000.5}, []string{RuleMax}},
		{"pattern mismatch", map[string]any{"rfc": "XYZ"}, []string{RulePattern}},
		{"string compared numerically", map[string]any{"partida": "5"}, []string{RuleMin}},
		{"non numeric string", map[string]any{"partida": "abc"}, []string{RuleMin}},
		{"null skips rules", map[string]any{"total_pagado_por_obra": nil, "rfc": nil}, nil},
		{"all at once", map[string]any{"total_pagado_por_obra": 2000.0, "rfc": "bad", "partida": "1"}, []string{RuleMax, RulePattern, RuleMin}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failure := ValidateRow(tt.row, mappings)
			var got []string
			if failure != nil {
				for _, v := range failure.Violations {
					got = append(got, v.Rule)
				}
			}
			if strings.Join(got, ",") != strings.Join(tt.rules, ",") {
				t.Errorf("rules = %v, want %v", got, tt.rules)
			}
		})
	}
}

func TestValidateRow_InactiveMappingIgnored(t *testing.T) {
	mappings := []types.ColumnMapping{
		{TargetField: "obra", Required: true, Active: false},
	}
	if failure := ValidateRow(map[string]any{}, mappings); failure != nil {
		t.Errorf("inactive mapping produced %v", failure)
	}
}

func TestValidateRow_PatternOnDate(t *testing.T) {
	mappings := []types.ColumnMapping{
		{TargetField: "fecha", DataType: types.DataTypeDate, Active: true,
			Validation: types.ValidationRules{Pattern: `^2025-`}},
	}
	row := map[string]any{"fecha": time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	if failure := ValidateRow(row, mappings); failure != nil {
		t.Errorf("unexpected failure: %v", failure)
	}
}

func TestRowValidationFailure_Error(t *testing.T) {
	f := &RowValidationFailure{Violations: []Violation{
		{Message: "field a is required"},
		{Message: "field b has an invalid format"},
	}}
	if got := f.Error(); got != "field a is required; field b has an invalid format" {
		t.Errorf("Error() = %q", got)
	}
}
