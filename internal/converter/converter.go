// =============================================================================
// CAPCEE Ingestion - Ingestion Pipeline
// =============================================================================
//
// This module drives one uploaded file through the ingestion pipeline, from
// the PENDING state to a terminal state.
//
// PROCESSING PIPELINE:
//   1. Claim the file (PENDING -> IN_PROGRESS)
//   2. Open the stored content with the reader for its format
//   3. Validate the structure (file type + required header columns)
//   4. Stream rows in fixed-size chunks
//   5. For each row, in its own transaction:
//        map -> validate -> duplicate check -> persist
//   6. Persist counters and the final state once, at the end of the run
//   7. Record activity, metrics and emit the completion event
//
// FAILURE MODEL:
//   Row problems are contained: a row that fails validation, mapping or
//   persistence is counted as failed and the next row is processed. File
//   problems (empty file, missing columns, unreadable content, timeout,
//   panics) abort the run and leave the file in ERROR.
//
//   The final write uses a context detached from the run's cancellation, so
//   a run killed by its timeout still lands in ERROR with a timeout message.
//
// CONCURRENCY:
//   A Converter is safe for concurrent use on different files. Two workers
//   cannot process the same file because claiming it is a conditional
//   PENDING -> IN_PROGRESS update.
//
// =============================================================================

package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/callrodry/capcee-proyecto/internal/notify"
	"github.com/callrodry/capcee-proyecto/internal/sheet"
	"github.com/callrodry/capcee-proyecto/internal/types"
	"github.com/callrodry/capcee-proyecto/internal/validation"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Store is the persistence the pipeline needs.
type Store interface {
	// StartProcessing moves a PENDING file to IN_PROGRESS, stamping the start
	// time, and returns the claimed record. It fails if the file is not PENDING.
	StartProcessing(ctx context.Context, fileID string, startedAt time.Time) (*types.FileRecord, error)

	// FinishProcessing persists the terminal state, counters, messages and
	// timestamps of a run.
	FinishProcessing(ctx context.Context, file *types.FileRecord) error

	GetDepartment(ctx context.Context, id int64) (*types.Department, error)

	// RunInRowTx runs fn in one transaction. The transaction is rolled back
	// when fn returns an error.
	RunInRowTx(ctx context.Context, fn func(tx RowTx) error) error

	RecordActivity(ctx context.Context, entry *types.ActivityEntry) error
}

// RowTx is the per-row transactional view of the store.
type RowTx interface {
	FolioChecker
	InsertRecord(ctx context.Context, rec *types.FinancialRecord) error
}

// ContentOpener returns the stored bytes of an uploaded file.
type ContentOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options tunes a Converter.
type Options struct {
	// ChunkSize is the number of rows read per batch.
	// Default: 1000
	ChunkSize int

	// JobTimeout is the hard wall-clock limit of one run. Zero disables it.
	// Default: 1h (set by config)
	JobTimeout time.Duration

	// MaxErrorMessages caps the row-scoped messages kept on the file.
	// Default: 500
	MaxErrorMessages int

	// Sheet holds reader options (CSV delimiter).
	Sheet sheet.Options
}

// DefaultChunkSize is used when Options.ChunkSize is not positive.
const DefaultChunkSize = 1000

// DefaultMaxErrorMessages is used when Options.MaxErrorMessages is not positive.
const DefaultMaxErrorMessages = 500

// finalizeTimeout bounds the final state write after the run context ended.
const finalizeTimeout = 30 * time.Second

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result is the outcome of one processing run.
type Result struct {
	FileID   string
	FileType string
	State    types.FileState
	Stats    types.RowStats
	Errors   []string

	// Err is the file-level error that forced ERROR, if any.
	Err error

	Duration time.Duration
}

// Success reports whether the file was fully consumed.
func (r *Result) Success() bool {
	return r.State == types.StateConverted || r.State == types.StateValidated
}

// =============================================================================
// CONVERTER STRUCTURE
// =============================================================================

// Converter runs the ingestion pipeline.
type Converter struct {
	store     Store
	content   ContentOpener
	structure *validation.StructureValidator
	notifier  notify.Notifier
	opts      Options
	logger    *slog.Logger

	now func() time.Time
}

// New creates a Converter.
//
// PARAMETERS:
//   - store: Files, departments, financial records and activity log.
//   - content: Access to uploaded bytes.
//   - mappings: The column mapping registry.
//   - notifier: Receives one event per finished run (may be nil).
//   - opts: Processing options; zero values get defaults.
//   - logger: Structured logger.
func New(store Store, content ContentOpener, mappings validation.MappingLookup, notifier notify.Notifier, opts Options, logger *slog.Logger) *Converter {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxErrorMessages <= 0 {
		opts.MaxErrorMessages = DefaultMaxErrorMessages
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Converter{
		store:     store,
		content:   content,
		structure: validation.NewStructureValidator(mappings),
		notifier:  notifier,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// run holds the mutable state of one processing attempt.
type run struct {
	file      *types.FileRecord
	startedAt time.Time
	stats     types.RowStats
	errors    *errorList
	logger    *slog.Logger
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Process runs the pipeline for one file.
//
// RETURNS:
//   - The run result. File-level failures are reported through
//     Result.State == ERROR, not through the error return.
//   - An error only when the file could not be claimed (unknown id, not
//     PENDING) or its final state could not be persisted.
func (c *Converter) Process(ctx context.Context, fileID string) (*Result, error) {
	if c.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.JobTimeout)
		defer cancel()
	}

	// =========================================================================
	// STEP 1: CLAIM THE FILE
	// =========================================================================

	startedAt := c.now()
	file, err := c.store.StartProcessing(ctx, fileID, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to start processing %s: %w", fileID, err)
	}

	r := &run{
		file:      file,
		startedAt: startedAt,
		errors:    newErrorList(c.opts.MaxErrorMessages),
		logger:    c.logger.With(slog.String("file_id", file.ID)),
	}

	c.recordActivity(ctx, r, types.ActionProcessingStarted, "Processing started", nil)

	runErr := c.execute(ctx, r)
	return c.finish(ctx, r, runErr)
}

// execute runs steps 2 to 5. A panic is turned into an error so the file
// still reaches ERROR.
func (c *Converter) execute(ctx context.Context, r *run) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("unexpected panic: %v", p)
		}
	}()

	// =========================================================================
	// STEP 2: OPEN CONTENT
	// =========================================================================

	dept, err := c.store.GetDepartment(ctx, r.file.DepartmentID)
	if err != nil {
		return fmt.Errorf("failed to load department %d: %w", r.file.DepartmentID, err)
	}

	format, err := fileFormat(r.file)
	if err != nil {
		return err
	}

	content, err := c.content.Open(ctx, r.file.StoredPath)
	if err != nil {
		return fmt.Errorf("failed to open stored file: %w", err)
	}
	defer content.Close()

	reader, err := sheet.Open(format, content, c.opts.Sheet)
	if err != nil {
		return err
	}
	defer reader.Close()

	// =========================================================================
	// STEP 3: VALIDATE STRUCTURE
	// =========================================================================

	structure, err := c.structure.Validate(ctx, r.file.OriginalFilename, dept.Code, reader)
	if err != nil {
		if validation.IsStructural(err) {
			r.logger.Warn("Structure validation failed", slog.String("error", err.Error()))
		}
		return err
	}
	r.file.FileType = structure.FileType

	r.logger.Info("Processing file",
		slog.String("file_type", structure.FileType),
		slog.String("department", dept.Code),
		slog.Int("mappings", len(structure.Mappings)),
	)

	// =========================================================================
	// STEP 4-5: STREAM AND PROCESS ROWS
	// =========================================================================

	index := NewColumnIndex(structure.Columns)
	line := 1 // the header row

	for chunk := 1; ; chunk++ {
		rows, readErr := sheet.ReadChunk(reader, c.opts.ChunkSize)

		for _, cells := range rows {
			line++
			if err := ctx.Err(); err != nil {
				return err
			}
			if sheet.IsBlank(cells) {
				continue
			}
			if err := c.processRow(ctx, r, line, cells, index, structure.Mappings); err != nil {
				return err
			}
		}

		r.logger.Debug("Chunk processed",
			slog.Int("chunk", chunk),
			slog.Int("rows", len(rows)),
			slog.Int("total", r.stats.Total),
		)

		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("failed to read rows: %w", readErr)
		}
	}
}

// processRow handles one data row inside its own transaction.
//
// RETURNS:
//   - nil after the row was counted, whatever its outcome.
//   - The context error when the run was cancelled mid-row. The row is then
//     not counted.
func (c *Converter) processRow(ctx context.Context, r *run, line int, cells []string, index ColumnIndex, mappings []types.ColumnMapping) error {
	var outcome, message string

	err := c.store.RunInRowTx(ctx, func(tx RowTx) error {
		values := MapRow(cells, index, mappings)

		rec, err := BindRecord(values)
		if err != nil {
			return err
		}

		if failure := validation.ValidateRow(values, mappings); failure != nil {
			outcome, message = outcomeFailed, failure.Error()
			return nil
		}

		dup, err := IsDuplicate(ctx, tx, rec, r.file.DepartmentID)
		if err != nil {
			return fmt.Errorf("duplicate check failed: %w", err)
		}
		if dup {
			outcome = outcomeDuplicated
			return nil
		}

		stampProvenance(rec, r.file)
		if err := tx.InsertRecord(ctx, rec); err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}
		outcome = outcomeSucceeded
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		outcome, message = outcomeFailed, err.Error()
	}

	r.stats.Total++
	switch outcome {
	case outcomeSucceeded:
		r.stats.Succeeded++
	case outcomeDuplicated:
		r.stats.Duplicated++
	default:
		r.stats.Failed++
	}
	rowsProcessedTotal.WithLabelValues(outcome).Inc()

	if message != "" {
		r.errors.addRow(line, message)
		r.logger.Warn("Row rejected", slog.Int("row", line), slog.String("error", message))
	}
	return nil
}

// =============================================================================
// FINALIZATION
// =============================================================================

// finish computes the terminal state and persists it with the counters.
func (c *Converter) finish(ctx context.Context, r *run, runErr error) (*Result, error) {
	f := r.file
	end := c.now()
	f.StartedAt = &r.startedAt
	f.EndedAt = &end
	f.Stats = r.stats
	f.DurationSeconds = nil

	switch {
	case runErr != nil:
		f.State = types.StateError
		r.errors.addFile(c.fatalMessage(runErr))
	case r.stats.Failed == 0:
		f.State = types.StateConverted
	default:
		f.State = types.StateValidated
	}

	if runErr == nil {
		secs := int(end.Sub(r.startedAt).Seconds())
		f.DurationSeconds = &secs
	}
	f.Errors = r.errors.list()

	// The run context may already be cancelled by its timeout.
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if err := c.store.FinishProcessing(finalCtx, f); err != nil {
		r.logger.Error("Failed to persist final state",
			slog.String("state", string(f.State)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to finish processing %s: %w", f.ID, err)
	}

	elapsed := end.Sub(r.startedAt)
	filesProcessedTotal.WithLabelValues(string(f.State)).Inc()
	processingDuration.WithLabelValues(fileTypeLabel(f.FileType)).Observe(elapsed.Seconds())

	result := &Result{
		FileID:   f.ID,
		FileType: f.FileType,
		State:    f.State,
		Stats:    f.Stats,
		Errors:   f.Errors,
		Err:      runErr,
		Duration: elapsed,
	}

	details := map[string]any{
		"state":      string(f.State),
		"total":      f.Stats.Total,
		"succeeded":  f.Stats.Succeeded,
		"failed":     f.Stats.Failed,
		"duplicated": f.Stats.Duplicated,
	}
	if runErr != nil {
		r.logger.Error("Processing failed", slog.String("error", runErr.Error()))
		c.recordActivity(finalCtx, r, types.ActionProcessingFailed, "Processing failed: "+runErr.Error(), details)
	} else {
		r.logger.Info("Processing completed",
			slog.String("state", string(f.State)),
			slog.Int("total", f.Stats.Total),
			slog.Int("succeeded", f.Stats.Succeeded),
			slog.Int("failed", f.Stats.Failed),
			slog.Int("duplicated", f.Stats.Duplicated),
			slog.Duration("elapsed", elapsed),
		)
		c.recordActivity(finalCtx, r, types.ActionProcessingCompleted, "Processing completed", details)
	}

	c.notifier.Notify(finalCtx, notify.Event{
		FileID:       f.ID,
		DepartmentID: f.DepartmentID,
		UserID:       f.UserID,
		Success:      result.Success(),
		State:        string(f.State),
		Total:        f.Stats.Total,
		Succeeded:    f.Stats.Succeeded,
		Failed:       f.Stats.Failed,
		Duplicated:   f.Stats.Duplicated,
		At:           end,
	})

	return result, nil
}

// fatalMessage renders a file-level error for the file's message list.
func (c *Converter) fatalMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		if c.opts.JobTimeout > 0 {
			return fmt.Sprintf("processing timed out after %s", c.opts.JobTimeout)
		}
		return "processing timed out"
	case errors.Is(err, context.Canceled):
		return "processing was cancelled"
	}
	return err.Error()
}

// recordActivity writes an activity entry. Failures are logged and ignored.
func (c *Converter) recordActivity(ctx context.Context, r *run, action types.ActivityAction, description string, details map[string]any) {
	entry := &types.ActivityEntry{
		UserID:      r.file.UserID,
		FileID:      r.file.ID,
		Action:      action,
		Description: description,
		Details:     details,
		CreatedAt:   c.now(),
	}
	if err := c.store.RecordActivity(ctx, entry); err != nil {
		r.logger.Warn("Failed to record activity",
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// SourceSystem is the provenance tag of records loaded from a file type.
func SourceSystem(fileType string) string {
	if fileType == "" {
		fileType = validation.FileTypeGeneral
	}
	return "EXCEL_" + fileType
}

// stampProvenance fills the provenance fields of a record about to be saved.
func stampProvenance(rec *types.FinancialRecord, f *types.FileRecord) {
	rec.FileID = f.ID
	rec.DepartmentID = f.DepartmentID
	rec.UserID = f.UserID
	rec.SourceSystem = SourceSystem(f.FileType)
	rec.SourceFile = f.OriginalFilename
	rec.Validated = false
}

// fileFormat picks the reader format from the stored extension, falling back
// to the original file name.
func fileFormat(f *types.FileRecord) (sheet.Format, error) {
	if f.Extension != "" {
		return sheet.ParseFormat(f.Extension)
	}
	return sheet.FormatFromFilename(f.OriginalFilename)
}

func fileTypeLabel(fileType string) string {
	if fileType == "" {
		return "unknown"
	}
	return fileType
}
