// =============================================================================
// CAPCEE Ingestion - Service
// =============================================================================
//
// The service is the collaborator-facing surface of the pipeline:
//
//   Submit  -> stores the bytes, creates the FileRecord in PENDING, enqueues it
//   Status  -> pure read of state, counters, messages and duration
//   Retry   -> ERROR/VALIDATED -> PENDING with cleared counters, re-enqueues
//
// and the operations built on top of them: upload checks, listing, preview,
// deletion, re-enqueueing pending files and cleanup of old files.
//
// =============================================================================

package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/callrodry/capcee-proyecto/internal/queue"
	"github.com/callrodry/capcee-proyecto/internal/repository"
	"github.com/callrodry/capcee-proyecto/internal/sheet"
	"github.com/callrodry/capcee-proyecto/internal/types"
	"github.com/callrodry/capcee-proyecto/pkg/utils"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Files       repository.FileRepository
	Records     repository.RecordRepository
	Departments repository.DepartmentRepository
	Activity    repository.ActivityRepository
	Content     utils.ContentStore
	Queue       queue.Queue
}

// Service implements the ingestion operations.
type Service struct {
	files       repository.FileRepository
	records     repository.RecordRepository
	departments repository.DepartmentRepository
	activity    repository.ActivityRepository
	content     utils.ContentStore
	queue       queue.Queue
	logger      *slog.Logger

	now func() time.Time
}

// NewService creates a Service.
func NewService(deps Deps, logger *slog.Logger) *Service {
	return &Service{
		files:       deps.Files,
		records:     deps.Records,
		departments: deps.Departments,
		activity:    deps.Activity,
		content:     deps.Content,
		queue:       deps.Queue,
		logger:      logger,
		now:         time.Now,
	}
}

// ContentHash returns the hex sha-256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// =============================================================================
// SUBMIT
// =============================================================================

// SubmitRequest is one file handed to the pipeline.
type SubmitRequest struct {
	Filename     string
	Data         []byte
	DepartmentID int64
	UserID       int64
}

// Submit stores the bytes, creates the FileRecord in PENDING and enqueues it.
// It does not check for upload-level duplicates; see Upload.
//
// A failed enqueue is logged, not returned: the file stays PENDING and is
// picked up by ProcessPending.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*types.FileRecord, error) {
	format, err := sheet.FormatFromFilename(req.Filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExtension, req.Filename)
	}

	key, err := s.content.Save(ctx, req.Filename, bytes.NewReader(req.Data), int64(len(req.Data)))
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	file := &types.FileRecord{
		ID:               uuid.New().String(),
		OriginalFilename: req.Filename,
		StoredPath:       key,
		DepartmentID:     req.DepartmentID,
		UserID:           req.UserID,
		Extension:        string(format),
		State:            types.StatePending,
		UploadedAt:       s.now(),
		ContentHash:      ContentHash(req.Data),
		SizeBytes:        int64(len(req.Data)),
	}
	if err := s.files.Create(ctx, file); err != nil {
		if delErr := s.content.Delete(ctx, key); delErr != nil {
			s.logger.Warn("failed to remove orphaned upload", slog.String("key", key), slog.String("error", delErr.Error()))
		}
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	s.record(ctx, &types.ActivityEntry{
		UserID:      req.UserID,
		FileID:      file.ID,
		Action:      types.ActionUpload,
		Description: "uploaded " + req.Filename,
		Details:     map[string]any{"size_bytes": file.SizeBytes, "content_hash": file.ContentHash},
	})

	s.enqueue(ctx, file.ID)

	s.logger.Info("file submitted",
		slog.String("file_id", file.ID),
		slog.String("filename", file.OriginalFilename),
		slog.Int64("department_id", file.DepartmentID),
	)
	return file, nil
}

// UploadRequest is a file arriving through the upload endpoint.
type UploadRequest = SubmitRequest

// Upload applies the upload checks and submits the file. Checks, in order:
// extension, department active, size limit, daily quota, duplicate content.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*types.FileRecord, error) {
	if _, err := sheet.FormatFromFilename(req.Filename); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExtension, req.Filename)
	}

	dept, err := s.departments.GetByID(ctx, req.DepartmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load department %d: %w", req.DepartmentID, err)
	}
	if !dept.Active {
		return nil, ErrDepartmentInactive
	}

	size := int64(len(req.Data))
	if dept.MaxFileSizeMB > 0 && size > int64(dept.MaxFileSizeMB)*1024*1024 {
		return nil, &FileTooLargeError{Size: size, LimitMB: dept.MaxFileSizeMB}
	}

	if dept.DailyUploadLimit > 0 {
		now := s.now()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		n, err := s.files.CountUploadedSince(ctx, dept.ID, midnight)
		if err != nil {
			return nil, err
		}
		if n >= dept.DailyUploadLimit {
			return nil, ErrQuotaExceeded
		}
	}

	existing, err := s.files.FindByHash(ctx, ContentHash(req.Data))
	switch {
	case err == nil:
		return nil, &DuplicateUploadError{ExistingID: existing.ID}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	return s.Submit(ctx, req)
}

// =============================================================================
// STATUS
// =============================================================================

// StatusReport is the read model of a file's processing state.
type StatusReport struct {
	FileID            string          `json:"file_id"`
	Filename          string          `json:"filename"`
	FileType          string          `json:"file_type,omitempty"`
	State             types.FileState `json:"state"`
	Stats             types.RowStats  `json:"stats"`
	SuccessPercentage float64         `json:"success_percentage"`
	Duration          string          `json:"duration"`
	DurationSeconds   *int            `json:"duration_seconds,omitempty"`
	Errors            []string        `json:"errors"`
	UploadedAt        time.Time       `json:"uploaded_at"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	EndedAt           *time.Time      `json:"ended_at,omitempty"`
}

// Status returns the current state of a file.
func (s *Service) Status(ctx context.Context, fileID string) (*StatusReport, error) {
	f, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return NewStatusReport(f), nil
}

// NewStatusReport builds the report of f.
func NewStatusReport(f *types.FileRecord) *StatusReport {
	errs := f.Errors
	if errs == nil {
		errs = []string{}
	}
	return &StatusReport{
		FileID:            f.ID,
		Filename:          f.OriginalFilename,
		FileType:          f.FileType,
		State:             f.State,
		Stats:             f.Stats,
		SuccessPercentage: f.SuccessPercentage(),
		Duration:          f.FormattedDuration(),
		DurationSeconds:   f.DurationSeconds,
		Errors:            errs,
		UploadedAt:        f.UploadedAt,
		StartedAt:         f.StartedAt,
		EndedAt:           f.EndedAt,
	}
}

// =============================================================================
// RETRY
// =============================================================================

// Retry resets a file in ERROR or VALIDATED to PENDING and enqueues it.
// Any other state fails with *InvalidStateError and changes nothing.
func (s *Service) Retry(ctx context.Context, fileID string, userID int64) (*types.FileRecord, error) {
	f, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !f.State.IsRetryable() {
		return nil, &InvalidStateError{FileID: fileID, State: f.State, Op: OpRetry}
	}

	reset, err := s.files.ResetForRetry(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			// Another caller moved the file between the read and the update.
			current, getErr := s.files.GetByID(ctx, fileID)
			if getErr != nil {
				return nil, getErr
			}
			return nil, &InvalidStateError{FileID: fileID, State: current.State, Op: OpRetry}
		}
		return nil, err
	}

	s.record(ctx, &types.ActivityEntry{
		UserID:      userID,
		FileID:      fileID,
		Action:      types.ActionRetry,
		Description: "retry requested from " + string(f.State),
	})
	s.enqueue(ctx, fileID)

	s.logger.Info("file reset for retry", slog.String("file_id", fileID), slog.String("from_state", string(f.State)))
	return reset, nil
}

// =============================================================================
// LISTING AND PREVIEW
// =============================================================================

// DefaultPerPage is the page size of List when none is given.
const DefaultPerPage = 15

// Page is one page of files.
type Page struct {
	Items   []*types.FileRecord `json:"items"`
	Total   int                 `json:"total"`
	Page    int                 `json:"page"`
	PerPage int                 `json:"per_page"`
}

// List returns one page of files matching filters, newest first.
func (s *Service) List(ctx context.Context, filters repository.FileListFilters, page, perPage int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	total, err := s.files.Count(ctx, filters)
	if err != nil {
		return nil, err
	}
	items, err := s.files.List(ctx, filters, perPage, (page-1)*perPage)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*types.FileRecord{}
	}
	return &Page{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}

// PreviewLimit is the number of records returned by Preview.
const PreviewLimit = 10

// Preview is the persisted output of a file.
type Preview struct {
	FileID  string                   `json:"file_id"`
	Total   int                      `json:"total"`
	Records []*types.FinancialRecord `json:"records"`
}

// Preview returns the number of persisted records of a file and the first
// PreviewLimit of them.
func (s *Service) Preview(ctx context.Context, fileID string) (*Preview, error) {
	if _, err := s.files.GetByID(ctx, fileID); err != nil {
		return nil, err
	}
	total, err := s.records.CountByFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	recs, err := s.records.ListByFile(ctx, fileID, PreviewLimit)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []*types.FinancialRecord{}
	}
	return &Preview{FileID: fileID, Total: total, Records: recs}, nil
}

// =============================================================================
// DELETION AND MAINTENANCE
// =============================================================================

// Delete removes a file with its content, records and activity entries.
// A file being processed cannot be deleted.
func (s *Service) Delete(ctx context.Context, fileID string, userID int64) error {
	f, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if f.State == types.StateInProgress {
		return &InvalidStateError{FileID: fileID, State: f.State, Op: OpDelete}
	}
	if err := s.remove(ctx, f); err != nil {
		return err
	}
	s.record(ctx, &types.ActivityEntry{
		UserID:      userID,
		FileID:      fileID,
		Action:      types.ActionDelete,
		Description: "deleted " + f.OriginalFilename,
		Details:     map[string]any{"file_id": fileID, "filename": f.OriginalFilename},
	})
	return nil
}

// ProcessPending enqueues up to limit PENDING files, optionally of one
// department. Returns the enqueued files.
func (s *Service) ProcessPending(ctx context.Context, departmentID *int64, limit int) ([]*types.FileRecord, error) {
	files, err := s.files.ListPending(ctx, departmentID, limit)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := s.queue.Enqueue(ctx, f.ID); err != nil {
			return nil, fmt.Errorf("failed to enqueue %s: %w", f.ID, err)
		}
	}
	return files, nil
}

// Cleanup deletes CONVERTED and VALIDATED files uploaded more than
// olderThan ago. With dryRun it only returns them.
func (s *Service) Cleanup(ctx context.Context, olderThan time.Duration, dryRun bool) ([]*types.FileRecord, error) {
	files, err := s.files.ListCompletedBefore(ctx, s.now().Add(-olderThan))
	if err != nil {
		return nil, err
	}
	if dryRun {
		return files, nil
	}
	for _, f := range files {
		if err := s.remove(ctx, f); err != nil {
			return nil, err
		}
		s.logger.Info("old file removed", slog.String("file_id", f.ID), slog.String("filename", f.OriginalFilename))
	}
	return files, nil
}

// remove deletes the stored bytes first so that a failure leaves a record
// that can be deleted again.
func (s *Service) remove(ctx context.Context, f *types.FileRecord) error {
	if err := s.content.Delete(ctx, f.StoredPath); err != nil {
		return fmt.Errorf("failed to delete content of %s: %w", f.ID, err)
	}
	if err := s.files.Delete(ctx, f.ID); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", f.ID, err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) enqueue(ctx context.Context, fileID string) {
	if err := s.queue.Enqueue(ctx, fileID); err != nil {
		s.logger.Warn("failed to enqueue file, it stays PENDING",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) record(ctx context.Context, e *types.ActivityEntry) {
	if err := s.activity.Insert(ctx, e); err != nil {
		s.logger.Warn("failed to write activity entry",
			slog.String("file_id", e.FileID),
			slog.String("action", string(e.Action)),
			slog.String("error", err.Error()),
		)
	}
}
