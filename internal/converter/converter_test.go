package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/callrodry/capcee-proyecto/internal/notify"
	"github.com/callrodry/capcee-proyecto/internal/types"
	"github.com/callrodry/capcee-proyecto/internal/validation"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

var errNotPending = errors.New("file is not pending")

type memStore struct {
	mu       sync.Mutex
	files    map[string]types.FileRecord
	depts    map[int64]*types.Department
	records  []*types.FinancialRecord
	activity []*types.ActivityEntry

	insertHook   func(ctx context.Context, rec *types.FinancialRecord) error
	finishCtxErr error
}

func newMemStore() *memStore {
	return &memStore{
		files: make(map[string]types.FileRecord),
		depts: map[int64]*types.Department{
			3: {ID: 3, Code: "OBRAS", Name: "Obras", Active: true},
		},
	}
}

func (s *memStore) StartProcessing(_ context.Context, id string, at time.Time) (*types.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: not found", id)
	}
	if f.State != types.StatePending {
		return nil, errNotPending
	}
	f.State = types.StateInProgress
	f.StartedAt = &at
	s.files[id] = f
	out := f
	return &out, nil
}

func (s *memStore) FinishProcessing(ctx context.Context, f *types.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishCtxErr = ctx.Err()
	s.files[f.ID] = *f
	return nil
}

func (s *memStore) GetDepartment(_ context.Context, id int64) (*types.Department, error) {
	d, ok := s.depts[id]
	if !ok {
		return nil, fmt.Errorf("department %d not found", id)
	}
	return d, nil
}

func (s *memStore) RunInRowTx(ctx context.Context, fn func(tx RowTx) error) error {
	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	s.mu.Lock()
	s.records = append(s.records, tx.pending...)
	s.mu.Unlock()
	return nil
}

func (s *memStore) RecordActivity(_ context.Context, e *types.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, e)
	return nil
}

func (s *memStore) file(id string) types.FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[id]
}

type memTx struct {
	store   *memStore
	pending []*types.FinancialRecord
}

func (tx *memTx) FolioExists(_ context.Context, folio float64, dept int64) (bool, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for _, r := range append(tx.store.records, tx.pending...) {
		if r.Folio1 != nil && *r.Folio1 == folio && r.DepartmentID == dept {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memTx) InsertRecord(ctx context.Context, rec *types.FinancialRecord) error {
	if hook := tx.store.insertHook; hook != nil {
		if err := hook(ctx, rec); err != nil {
			return err
		}
	}
	tx.pending = append(tx.pending, rec)
	return nil
}

type memContent map[string][]byte

func (m memContent) Open(_ context.Context, key string) (io.ReadCloser, error) {
	b, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

type stubRegistry map[string][]types.ColumnMapping

func (s stubRegistry) MappingsFor(_ context.Context, dept, fileType string) ([]types.ColumnMapping, error) {
	return s[dept+"|"+fileType], nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

// =============================================================================
// FIXTURES
// =============================================================================

func obrasRegistry() stubRegistry {
	return stubRegistry{
		"OBRAS|OBRAS_2025": {
			{SourceColumn: "FOLIO1", TargetField: "folio1", DataType: types.DataTypeNumber, Required: true, Active: true},
			{SourceColumn: "PARTIDA", TargetField: "partida", DataType: types.DataTypeString, Required: true, Active: true},
			{SourceColumn: "OBRA", TargetField: "obra", DataType: types.DataTypeString, Required: true, Active: true,
				Transformation: types.TransformationRules{Trim: true, Uppercase: true}},
			{SourceColumn: "MUNICIPIO", TargetField: "municipio", DataType: types.DataTypeString, Required: true, Active: true},
			{SourceColumn: "TOTAL PAGADO", TargetField: "total_pagado_por_obra", DataType: types.DataTypeNumber, Active: true},
			{SourceColumn: "FECHA", TargetField: "fecha", DataType: types.DataTypeDate, Active: true},
			{SourceColumn: "AVANCE", TargetField: "avance_reportado", DataType: types.DataTypeString, Active: true},
		},
	}
}

var obrasHeader = []any{"FOLIO1", "PARTIDA", "OBRA", "MUNICIPIO", "TOTAL PAGADO", "FECHA", "AVANCE"}

func xlsxBytes(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

type harness struct {
	store    *memStore
	content  memContent
	notifier *recordingNotifier
	conv     *Converter
}

func newHarness(opts Options) *harness {
	h := &harness{
		store:    newMemStore(),
		content:  memContent{},
		notifier: &recordingNotifier{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.conv = New(h.store, h.content, obrasRegistry(), h.notifier, opts, logger)
	return h
}

func (h *harness) addFile(id, name string, content []byte) {
	h.content["uploads/"+id] = content
	h.store.files[id] = types.FileRecord{
		ID:               id,
		OriginalFilename: name,
		StoredPath:       "uploads/" + id,
		DepartmentID:     3,
		UserID:           7,
		Extension:        "xlsx",
		State:            types.StatePending,
	}
}

// =============================================================================
// TESTS
// =============================================================================

func TestProcess_EndToEndValidated(t *testing.T) {
	h := newHarness(Options{})
	h.addFile("f1", "OBRAS_2025.xlsx", xlsxBytes(t,
		obrasHeader,
		[]any{101, "P-01", "  escuela primaria ", "Puebla", "$1,200.50", "15/03/2025", "80%"},
		[]any{102, "P-02", "aula", "", "300", "", ""},
		[]any{103, "P-03", "barda", "Atlixco", "abc", "", ""},
	))

	res, err := h.conv.Process(context.Background(), "f1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if res.State != types.StateValidated {
		t.Fatalf("State = %s, want VALIDATED (errors: %v)", res.State, res.Errors)
	}
	want := types.RowStats{Total: 3, Succeeded: 2, Failed: 1, Duplicated: 0}
	if res.Stats != want {
		t.Errorf("Stats = %+v, want %+v", res.Stats, want)
	}

	stored := h.store.file("f1")
	if stored.State != types.StateValidated || stored.Stats != want {
		t.Errorf("stored record = %s %+v", stored.State, stored.Stats)
	}
	if stored.FileType != "OBRAS_2025" {
		t.Errorf("FileType = %q", stored.FileType)
	}
	if stored.EndedAt == nil || stored.DurationSeconds == nil {
		t.Error("end timestamp and duration must be set on completion")
	}
	if len(stored.Errors) != 1 || stored.Errors[0] != "row 3: field municipio is required" {
		t.Errorf("Errors = %v", stored.Errors)
	}

	if len(h.store.records) != 2 {
		t.Fatalf("persisted %d records, want 2", len(h.store.records))
	}
	first := h.store.records[0]
	if first.Folio1 == nil || *first.Folio1 != 101 {
		t.Errorf("Folio1 = %v", first.Folio1)
	}
	if first.WorkName == nil || *first.WorkName != "ESCUELA PRIMARIA" {
		t.Errorf("WorkName = %v", first.WorkName)
	}
	if first.TotalPaid == nil || *first.TotalPaid != 1200.5 {
		t.Errorf("TotalPaid = %v", first.TotalPaid)
	}
	if first.Date == nil || !first.Date.Equal(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", first.Date)
	}
	if first.SourceSystem != "EXCEL_OBRAS_2025" || first.SourceFile != "OBRAS_2025.xlsx" {
		t.Errorf("provenance = %q %q", first.SourceSystem, first.SourceFile)
	}
	if first.FileID != "f1" || first.DepartmentID != 3 || first.UserID != 7 || first.Validated {
		t.Errorf("ownership = %+v", first)
	}
	if first.Extra["avance_reportado"] != "80%" {
		t.Errorf("Extra = %v", first.Extra)
	}
	if h.store.records[1].TotalPaid != nil {
		t.Errorf("non numeric total should convert to nil, got %v", *h.store.records[1].TotalPaid)
	}

	if len(h.notifier.events) != 1 || !h.notifier.events[0].Success || h.notifier.events[0].FileID != "f1" {
		t.Errorf("events = %+v", h.notifier.events)
	}

	actions := make([]types.ActivityAction, 0, len(h.store.activity))
	for _, a := range h.store.activity {
		actions = append(actions, a.Action)
	}
	if len(actions) != 2 || actions[0] != types.ActionProcessingStarted || actions[1] != types.ActionProcessingCompleted {
		t.Errorf("activity = %v", actions)
	}
}

func TestProcess_AllRowsOKIsConverted(t *testing.T) {
	h := newHarness(Options{ChunkSize: 2})
	h.addFile("f1", "OBRAS_2025.xlsx", xlsxBytes(t,
		obrasHeader,
		[]any{1, "A", "x", "Puebla"},
		[]any{},
		[]any{2, "B", "y", "Puebla"},
		[]any{3, "C", "z", "Puebla"},
	))

	res, err := h.conv.Process(context.Background(), "f1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.State != types.StateConverted {
		t.Fatalf("State = %s, want CONVERTED", res.State)
	}
	if res.Stats.Total != 3 || res.Stats.Succeeded != 3 {
		t.Errorf("Stats = %+v, blank rows must not be counted", res.Stats)
	}
}

func TestProcess_StructureError(t *testing.T) {
	h := newHarness(Options{})
	h.addFile("f1", "OBRAS_2025.xlsx", xlsxBytes(t,
		[]any{"FOLIO1", "OBRA", "MUNICIPIO"},
		[]any{1, "x", "Puebla"},
	))

	res, err := h.conv.Process(context.Background(), "f1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.State != types.StateError {
		t.Fatalf("State = %s, want ERROR", res.State)
	}

	var se *validation.StructureError
	if !errors.As(res.Err, &se) {
		t.Fatalf("Err = %v, want *validation.StructureError", res.Err)
	}
	if strings.Join(se.Missing, ",") != "PARTIDA" {
		t.Errorf("Missing = %v, want [PARTIDA]", se.Missing)
	}

	if len(h.store.records) != 0 {
		t.Errorf("persisted %d records, want 0", len(h.store.records))
	}
	stored := h.store.file("f1")
	if stored.EndedAt == nil {
		t.Error("EndedAt must be set")
	}
	if stored.DurationSeconds != nil {
		t.Error("DurationSeconds must not be set on ERROR")
	}
	if len(stored.Errors) != 1 || !strings.Contains(stored.Errors[0], "PARTIDA") {
		t.Errorf("Errors = %v", stored.Errors)
	}
	if len(h.notifier.events) != 1 || h.notifier.events[0].Success {
		t.Errorf("events = %+v", h.notifier.events)
	}
}

func TestProcess_EmptyFile(t *testing.T) {
	h := newHarness(Options{})
	h.addFile("f1", "OBRAS_2025.xlsx", xlsxBytes(t))

	res, err := h.conv.Process(context.Background(), "f1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	var ee *validation.EmptyFileError
	if res.State != types.StateError || !errors.As(res.Err, &ee) {
		t.Fatalf("State = %s, Err = %v", res.State, res.Err)
	}
	if got := h.store.file("f1").Errors; len(got) != 1 || got[0] != "file is empty" {
		t.Errorf("Errors = %v", got)
	}
}

func TestProcess_DuplicateLaw(t *testing.T) {
	h := newHarness(Options{})
	folio := 500.0
	h.store.records = append(h.store.records, &types.FinancialRecord{Folio1: &folio, DepartmentID: 3})
	h.addFile("f1", "OBRAS_2025.xlsx", xlsxBytes(t,
		obrasHeader,
		[]any{7, "A", "x", "Puebla"},
		[]any{7, "B", "y", "Puebla"},
		[]any{500, "C", "z", "Puebla"},
	))

	res, err := h.conv.Process(context.Background(), "f1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	want := types.RowStats{Total: 3, Succeeded: 1, Duplicated: 2}
	if res.Stats != want {
		t.Errorf("Stats = %+v, want %+v", res.Stats, want)
	}
	if res.State != types.StateConverted {
		t.Errorf("State = %s, duplicates must not force VALIDATED", res.State)
	}
	if len(h.store.records) != 2 {
		t.Errorf("records = %d, want 2 (seeded + one new)", len(h.store.records))
	}
}

func TestProcess_OtherDepartmentIsNotDuplicate(t *testing.T) {
	h := newHarness(Options{})
	folio := 7.0
	h.store.records = append(h.store.records, &types.FinancialRecord{Folio1: &folio, DepartmentID: 99})
	h.addFile("f1", "OBRAS_2025.xlsx", xlsxBytes(t, obrasHeader, []any{7, "A", "x", "Puebla"}))

	res, _ := h.conv.Process(context.Background(), "f1")
	if res.Stats.Succeeded != 1 || res.Stats.Duplicated != 0 {
		t.Errorf("Stats = %+v", res.Stats)
	}
}

func TestProcess_RowPersistenceErrorContinues(t *testing.T) {
	h := newHarness(Options{})
	h.store.insertHook = func(_ context.Context, rec *types.FinancialRecord) error {
		if *rec.Folio1 == 2 {
			return errors.New("value too long for column partida")
		}
		return nil
	}
	h.addFile("f1", "OBRAS_2025.xlsx", xlsxBytes(t,
		obrasHeader,
		[]any{1, "A", "x", "Puebla"},
		[]any{2, "B", "y", "Puebla"},
		[]any{3, "C", "z", "Puebla"},
	))

	res, err := h.conv.Process(context.Background(), "f1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.State != types.StateValidated {
		t.Errorf("State = %s, want VALIDATED", res.State)
	}
	if res.Stats != (types.RowStats{Total: 3, Succeeded: 2, Failed: 1}) {
		t.Errorf("Stats = %+v", res.Stats)
	}
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "row 3: failed to save record") {
		t.Errorf("Errors = %v", res.Errors)
	}
	if len(h.store.records) != 2 {
		t.Errorf("records = %d, want 2", len(h.store.records))
	}
}

func TestProcess_ErrorMessagesAreCapped(t *testing.T) {
	h := newHarness(Options{MaxErrorMessages: 1})
	h.addFile("f1", "OBRAS_2025.xlsx", xlsxBytes(t,
		obrasHeader,
		[]any{1, "A", "x", ""},
		[]any{2, "B", "y", ""},
		[]any{3, "C", "z", ""},
	))

	res, _ := h.conv.Process(context.Background(), "f1")
	if res.Stats.Failed != 3 {
		t.Fatalf("Failed = %d, want 3", res.Stats.Failed)
	}
	want := []string{"row 2: field municipio is required", "... and 2 more row errors"}
	if strings.Join(res.Errors, "|") != strings.Join(want, "|") {
		t.Errorf("Errors = %v, want %v", res.Errors, want)
	}
}

func TestProcess_TimeoutForcesError(t *testing.T) {
	h := newHarness(Options{JobTimeout: 50 * time.Millisecond})
	h.store.insertHook = func(ctx context.Context, _ *types.FinancialRecord) error {
		<-ctx.Done()
		return ctx.Err()
	}
	h.addFile("f1", "OBRAS_2025.xlsx", xlsxBytes(t, obrasHeader, []any{1, "A", "x", "Puebla"}))

	res, err := h.conv.Process(context.Background(), "f1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.State != types.StateError {
		t.Fatalf("State = %s, want ERROR", res.State)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v", res.Err)
	}
	stored := h.store.file("f1")
	if len(stored.Errors) != 1 || stored.Errors[0] != "processing timed out after 50ms" {
		t.Errorf("Errors = %v", stored.Errors)
	}
	if h.store.finishCtxErr != nil {
		t.Errorf("final write ran on a cancelled context: %v", h.store.finishCtxErr)
	}
	if stored.Stats.Total != 0 {
		t.Errorf("interrupted row must not be counted, Stats = %+v", stored.Stats)
	}
}

func TestProcess_PanicForcesError(t *testing.T) {
	h := newHarness(Options{})
	h.store.insertHook = func(context.Context, *types.FinancialRecord) error {
		panic("driver exploded")
	}
	h.addFile("f1", "OBRAS_2025.xlsx", xlsxBytes(t, obrasHeader, []any{1, "A", "x", "Puebla"}))

	res, err := h.conv.Process(context.Background(), "f1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.State != types.StateError {
		t.Fatalf("State = %s, want ERROR", res.State)
	}
	if got := h.store.file("f1").Errors; len(got) != 1 || got[0] != "unexpected panic: driver exploded" {
		t.Errorf("Errors = %v", got)
	}
}

func TestProcess_RejectsFileNotPending(t *testing.T) {
	h := newHarness(Options{})
	h.addFile("f1", "OBRAS_2025.xlsx", xlsxBytes(t, obrasHeader))
	f := h.store.files["f1"]
	f.State = types.StateInProgress
	h.store.files["f1"] = f

	if _, err := h.conv.Process(context.Background(), "f1"); !errors.Is(err, errNotPending) {
		t.Fatalf("error = %v, want errNotPending", err)
	}
	if got := h.store.file("f1").State; got != types.StateInProgress {
		t.Errorf("State changed to %s", got)
	}
	if len(h.notifier.events) != 0 {
		t.Error("no event expected for a rejected run")
	}
}

func TestProcess_CSVRowNumbersCountEmptyLines(t *testing.T) {
	h := newHarness(Options{})
	h.content["uploads/c1"] = []byte("FOLIO1,PARTIDA,OBRA,MUNICIPIO\n10,A,x,Puebla\n\n11,B,y,\n")
	h.store.files["c1"] = types.FileRecord{
		ID: "c1", OriginalFilename: "obras 2025.csv", StoredPath: "uploads/c1",
		DepartmentID: 3, Extension: "csv", State: types.StatePending,
	}

	res, err := h.conv.Process(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Stats.Total != 2 || res.Stats.Failed != 1 {
		t.Fatalf("Stats = %+v, Errors = %v", res.Stats, res.Errors)
	}
	if len(res.Errors) == 0 || !strings.HasPrefix(res.Errors[0], "row 4:") {
		t.Errorf("Errors = %v, want the failure reported on row 4", res.Errors)
	}
}

func TestProcess_XLSXExponentNumber(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetRow("Sheet1", "A1", &obrasHeader); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}
	if err := f.SetSheetRow("Sheet1", "A2", &[]any{1, "A", "x", "Puebla"}); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}
	if err := f.SetCellDefault("Sheet1", "E2", "2.5000000000000001E-2"); err != nil {
		t.Fatalf("SetCellDefault: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	h := newHarness(Options{})
	h.addFile("f1", "OBRAS_2025.xlsx", buf.Bytes())

	res, err := h.conv.Process(context.Background(), "f1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.State != types.StateConverted {
		t.Fatalf("State = %s, Errors = %v", res.State, res.Errors)
	}
	if len(h.store.records) != 1 {
		t.Fatalf("records = %d, want 1", len(h.store.records))
	}
	got := h.store.records[0].TotalPaid
	if got == nil || *got != 0.025 {
		t.Errorf("TotalPaid = %v, want 0.025", got)
	}
}

func TestProcess_CSVInput(t *testing.T) {
	h := newHarness(Options{})
	h.content["uploads/c1"] = []byte("FOLIO1,PARTIDA,OBRA,MUNICIPIO\n10,A,x,Puebla\n")
	h.store.files["c1"] = types.FileRecord{
		ID: "c1", OriginalFilename: "obras 2025.csv", StoredPath: "uploads/c1",
		DepartmentID: 3, Extension: "csv", State: types.StatePending,
	}

	res, err := h.conv.Process(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.State != types.StateConverted || res.Stats.Succeeded != 1 {
		t.Errorf("State = %s, Stats = %+v, Errors = %v", res.State, res.Stats, res.Errors)
	}
}
