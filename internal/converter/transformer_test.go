package converter

import (
	"testing"
	"time"

	"github.com/callrodry/capcee-proyecto/internal/types"
)

func TestConvertValue_Number(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"$1,234.50", 1234.5},
		{"1234", 1234.0},
		{" 12 500 ", 12500.0},
		{"abc", nil},
		{"", nil},
		{"1.2.3", nil},
		{"-45.5", -45.5},
		{"$-45.50", 45.5},
		{"2.5000000000000001E-2", 0.025},
		{"1E+16", 1e16},
		{"1.5e3", 1500.0},
		{"NaN", nil},
		{"1e400", nil},
	}
	for _, tt := range tests {
		got := ConvertValue(tt.in, types.DataTypeNumber)
		if got != tt.want {
			t.Errorf("ConvertValue(%q, number) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestConvertValue_Date(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		in   string
		want any
	}{
		{"2025-03-15", day(2025, 3, 15)},
		{"15/03/2025", day(2025, 3, 15)},
		{"03/04/2025", day(2025, 4, 3)},
		{"45731", day(2025, 3, 15)},
		{"20250315", day(2025, 3, 15)},
		{"not a date", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := ConvertValue(tt.in, types.DataTypeDate)
		if tt.want == nil {
			if got != nil {
				t.Errorf("ConvertValue(%q, date) = %v, want nil", tt.in, got)
			}
			continue
		}
		gt, ok := got.(time.Time)
		if !ok || !gt.Equal(tt.want.(time.Time)) {
			t.Errorf("ConvertValue(%q, date) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConvertValue_Boolean(t *testing.T) {
	tests := map[string]any{
		"1":     true,
		"TRUE":  true,
		"yes":   true,
		"Sí":    true,
		"on":    true,
		"0":     false,
		"no":    false,
		"maybe": false,
		"":      nil,
	}
	for in, want := range tests {
		if got := ConvertValue(in, types.DataTypeBoolean); got != want {
			t.Errorf("ConvertValue(%q, boolean) = %v, want %v", in, got, want)
		}
	}
}

func TestConvertValue_String(t *testing.T) {
	if got := ConvertValue("  Puebla ", types.DataTypeString); got != "Puebla" {
		t.Errorf("got %q", got)
	}
	if got := ConvertValue("", types.DataTypeString); got != nil {
		t.Errorf("empty string must convert to nil, got %#v", got)
	}
}

func TestApplyTransformations_Order(t *testing.T) {
	rules := types.TransformationRules{
		Trim:      true,
		Uppercase: true,
		Lowercase: true,
		Replace: types.Replacements{
			{Find: "a", With: "b"},
			{Find: "b", With: "c"},
		},
	}
	// trim -> upper -> lower -> a=>b -> b=>c
	if got := ApplyTransformations("  Abba ", rules); got != "cccc" {
		t.Errorf("ApplyTransformations = %q, want %q", got, "cccc")
	}
}

func TestApplyTransformations_RunsBeforeConversion(t *testing.T) {
	m := types.ColumnMapping{
		DataType: types.DataTypeNumber,
		Transformation: types.TransformationRules{
			Replace: types.Replacements{{Find: ",", With: "."}},
		},
	}
	if got := TransformCell("12,5", m); got != 12.5 {
		t.Errorf("TransformCell = %#v, want 12.5", got)
	}

	m = types.ColumnMapping{
		DataType: types.DataTypeString,
		Transformation: types.TransformationRules{
			Replace: types.Replacements{{Find: "N/A", With: ""}},
		},
	}
	if got := TransformCell("N/A", m); got != nil {
		t.Errorf("TransformCell = %#v, want nil", got)
	}
}
