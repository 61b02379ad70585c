package types

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestFileState_Retryable(t *testing.T) {
	tests := []struct {
		state     FileState
		retryable bool
		terminal  bool
	}{
		{StatePending, false, false},
		{StateInProgress, false, false},
		{StateConverted, false, true},
		{StateValidated, true, true},
		{StateError, true, true},
	}
	for _, tt := range tests {
		if got := tt.state.IsRetryable(); got != tt.retryable {
			t.Errorf("%s.IsRetryable() = %v, want %v", tt.state, got, tt.retryable)
		}
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

func TestFileRecord_StatusHelpers(t *testing.T) {
	secs := 125
	f := &FileRecord{Stats: RowStats{Total: 3, Succeeded: 2}, DurationSeconds: &secs}

	if got := f.SuccessPercentage(); got != 66.67 {
		t.Errorf("SuccessPercentage() = %v, want 66.67", got)
	}
	if got := f.FormattedDuration(); got != "2m 5s" {
		t.Errorf("FormattedDuration() = %q, want %q", got, "2m 5s")
	}

	empty := &FileRecord{}
	if got := empty.SuccessPercentage(); got != 0 {
		t.Errorf("SuccessPercentage() on empty = %v, want 0", got)
	}
	if got := empty.FormattedDuration(); got != "N/A" {
		t.Errorf("FormattedDuration() on empty = %q, want N/A", got)
	}
}

func TestFileRecord_ResetForRetry(t *testing.T) {
	secs := 10
	f := &FileRecord{
		State:           StateError,
		Stats:           RowStats{Total: 5, Failed: 5},
		Errors:          []string{"boom"},
		DurationSeconds: &secs,
	}
	f.ResetForRetry()

	if f.State != StatePending {
		t.Errorf("State = %s, want PENDING", f.State)
	}
	if f.Stats != (RowStats{}) {
		t.Errorf("Stats = %+v, want zero", f.Stats)
	}
	if len(f.Errors) != 0 || f.DurationSeconds != nil || f.StartedAt != nil || f.EndedAt != nil {
		t.Errorf("record not fully reset: %+v", f)
	}
}

func TestReplacements_JSONKeepsOrder(t *testing.T) {
	var rules TransformationRules
	if err := json.Unmarshal([]byte(`{"trim":true,"replace":{"$":"","z":"a","a":"b"}}`), &rules); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := []string{"$", "z", "a"}
	if len(rules.Replace) != len(want) {
		t.Fatalf("len(Replace) = %d, want %d", len(rules.Replace), len(want))
	}
	for i, k := range want {
		if rules.Replace[i].Find != k {
			t.Errorf("Replace[%d].Find = %q, want %q", i, rules.Replace[i].Find, k)
		}
	}

	out, err := json.Marshal(rules.Replace)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != `{"$":"","z":"a","a":"b"}` {
		t.Errorf("Marshal = %s", out)
	}
}

func TestReplacements_JSONList(t *testing.T) {
	var r Replacements
	if err := json.Unmarshal([]byte(`[{"find":"-","with":"/"}]`), &r); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(r) != 1 || r[0].Find != "-" || r[0].With != "/" {
		t.Errorf("got %+v", r)
	}
}

func TestReplacements_YAMLKeepsOrder(t *testing.T) {
	src := `
trim: true
replace:
  "N/A": ""
  "$": ""
`
	var rules TransformationRules
	if err := yaml.Unmarshal([]byte(src), &rules); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !rules.Trim {
		t.Error("Trim = false, want true")
	}
	if len(rules.Replace) != 2 || rules.Replace[0].Find != "N/A" || rules.Replace[1].Find != "$" {
		t.Errorf("Replace = %+v", rules.Replace)
	}
}

func TestParseDataType(t *testing.T) {
	tests := map[string]DataType{
		"number":  DataTypeNumber,
		" DATE ":  DataTypeDate,
		"boolean": DataTypeBoolean,
		"":        DataTypeString,
		"decimal": DataTypeString,
	}
	for in, want := range tests {
		if got := ParseDataType(in); got != want {
			t.Errorf("ParseDataType(%q) = %s, want %s", in, got, want)
		}
	}
}
