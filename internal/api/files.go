// =============================================================================
// CAPCEE Ingestion - Files API
// =============================================================================
//
// ROUTES:
//   POST   /api/v1/files              - multipart upload of up to N files
//   GET    /api/v1/files              - paginated list with filters
//   GET    /api/v1/files/{id}/status  - state, counters, duration, messages
//   POST   /api/v1/files/{id}/retry   - ERROR/VALIDATED -> PENDING
//   GET    /api/v1/files/{id}/preview - record count and first records
//   DELETE /api/v1/files/{id}         - file, content, records and activity
//
// =============================================================================

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/callrodry/capcee-proyecto/internal/config"
	"github.com/callrodry/capcee-proyecto/internal/ingest"
	"github.com/callrodry/capcee-proyecto/internal/repository"
	"github.com/callrodry/capcee-proyecto/internal/types"
)

// FileService is the part of the ingestion service the API calls.
type FileService interface {
	Upload(ctx context.Context, req ingest.UploadRequest) (*types.FileRecord, error)
	Status(ctx context.Context, fileID string) (*ingest.StatusReport, error)
	Retry(ctx context.Context, fileID string, userID int64) (*types.FileRecord, error)
	List(ctx context.Context, filters repository.FileListFilters, page, perPage int) (*ingest.Page, error)
	Preview(ctx context.Context, fileID string) (*ingest.Preview, error)
	Delete(ctx context.Context, fileID string, userID int64) error
}

// maxMultipartMemory is the part of a multipart body kept in memory; the
// rest spills to temporary files.
const maxMultipartMemory = 32 << 20

// FilesHandler serves the /api/v1/files routes.
type FilesHandler struct {
	svc         FileService
	maxFiles    int
	maxBody     int64
	allowedExts map[string]bool
	logger      *slog.Logger
}

// NewFilesHandler creates a FilesHandler. An empty extension list accepts
// every name and leaves the check to the service.
func NewFilesHandler(svc FileService, cfg config.UploadConfig, logger *slog.Logger) *FilesHandler {
	exts := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, e := range cfg.AllowedExtensions {
		exts[strings.ToLower(e)] = true
	}
	return &FilesHandler{
		svc:         svc,
		maxFiles:    cfg.MaxFilesPerRequest,
		maxBody:     cfg.MaxRequestBytes(),
		allowedExts: exts,
		logger:      logger.With(slog.String("component", "files_api")),
	}
}

// =============================================================================
// UPLOAD
// =============================================================================

type uploadError struct {
	Filename string `json:"filename"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

type uploadResponse struct {
	Files  []*types.FileRecord `json:"files"`
	Errors []uploadError       `json:"errors"`
}

// Upload handles POST /api/v1/files.
//
// Each file is checked and submitted on its own; rejected files are listed
// in errors. When the daily quota runs out the remaining files are not
// attempted and the response is 429. A body over the request cap is 413.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		validationError(w, "invalid multipart body: "+err.Error())
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	departmentID, err := strconv.ParseInt(r.FormValue("department_id"), 10, 64)
	if err != nil || departmentID <= 0 {
		validationError(w, "department_id is required")
		return
	}
	var userID int64
	if v := r.FormValue("user_id"); v != "" {
		if userID, err = strconv.ParseInt(v, 10, 64); err != nil {
			validationError(w, "user_id must be an integer")
			return
		}
	}

	headers := r.MultipartForm.File["files[]"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["files"]
	}
	if len(headers) == 0 {
		validationError(w, "at least one file is required in files[]")
		return
	}
	if h.maxFiles > 0 && len(headers) > h.maxFiles {
		validationError(w, fmt.Sprintf("at most %d files per request", h.maxFiles))
		return
	}

	resp := uploadResponse{Files: []*types.FileRecord{}, Errors: []uploadError{}}
	status := http.StatusCreated

	for _, fh := range headers {
		if len(h.allowedExts) > 0 && !h.allowedExts[strings.ToLower(filepath.Ext(fh.Filename))] {
			resp.Errors = append(resp.Errors, uploadError{Filename: fh.Filename, Code: CodeUnsupportedType, Message: "extension not accepted"})
			continue
		}
		data, err := readPart(fh)
		if err != nil {
			resp.Errors = append(resp.Errors, uploadError{Filename: fh.Filename, Code: CodeValidationError, Message: err.Error()})
			continue
		}

		file, err := h.svc.Upload(r.Context(), ingest.UploadRequest{
			Filename:     fh.Filename,
			Data:         data,
			DepartmentID: departmentID,
			UserID:       userID,
		})
		if err == nil {
			resp.Files = append(resp.Files, file)
			continue
		}

		code, msg := classifyUploadError(err)
		if code == CodeInternalError {
			h.logger.Error("upload failed", slog.String("filename", fh.Filename), slog.String("error", err.Error()))
		}
		resp.Errors = append(resp.Errors, uploadError{Filename: fh.Filename, Code: code, Message: msg})

		if errors.Is(err, ingest.ErrQuotaExceeded) {
			status = http.StatusTooManyRequests
			break
		}
	}

	if status != http.StatusTooManyRequests && len(resp.Files) == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func classifyUploadError(err error) (code, message string) {
	var tooLarge *ingest.FileTooLargeError
	var dup *ingest.DuplicateUploadError
	switch {
	case errors.Is(err, ingest.ErrUnsupportedExtension):
		return CodeUnsupportedType, "only xlsx, xls and csv files are accepted"
	case errors.Is(err, ingest.ErrQuotaExceeded):
		return CodeQuotaExceeded, err.Error()
	case errors.Is(err, ingest.ErrDepartmentInactive):
		return CodeDepartmentClosed, err.Error()
	case errors.Is(err, repository.ErrNotFound):
		return CodeNotFound, "department not found"
	case errors.As(err, &tooLarge):
		return CodeFileTooLarge, err.Error()
	case errors.As(err, &dup):
		return CodeDuplicateUpload, err.Error()
	default:
		return CodeInternalError, "failed to store upload"
	}
}

// =============================================================================
// READS
// =============================================================================

// List handles GET /api/v1/files.
// Query: state, department_id, uploaded_from, uploaded_to, page, per_page.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filters repository.FileListFilters

	if v := q.Get("state"); v != "" {
		st := types.FileState(v)
		if !st.Valid() {
			validationError(w, "unknown state "+v)
			return
		}
		filters.State = &st
	}
	if v := q.Get("department_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			validationError(w, "department_id must be an integer")
			return
		}
		filters.DepartmentID = &id
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"uploaded_from", &filters.UploadedFrom}, {"uploaded_to", &filters.UploadedTo}} {
		if v := q.Get(p.name); v != "" {
			t, err := parseDateParam(v)
			if err != nil {
				validationError(w, p.name+" must be YYYY-MM-DD or RFC 3339")
				return
			}
			*p.dst = &t
		}
	}

	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage > 100 {
		perPage = 100
	}

	result, err := h.svc.List(r.Context(), filters, page, perPage)
	if err != nil {
		h.logger.Error("list files failed", slog.String("error", err.Error()))
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseDateParam(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.DateOnly, v, time.Local)
}

// Status handles GET /api/v1/files/{id}/status.
func (h *FilesHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := fileID(w, r)
	if !ok {
		return
	}
	report, err := h.svc.Status(r.Context(), id)
	if err != nil {
		h.fileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Preview handles GET /api/v1/files/{id}/preview.
func (h *FilesHandler) Preview(w http.ResponseWriter, r *http.Request) {
	id, ok := fileID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Preview(r.Context(), id)
	if err != nil {
		h.fileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// =============================================================================
// WRITES
// =============================================================================

// Retry handles POST /api/v1/files/{id}/retry.
func (h *FilesHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := fileID(w, r)
	if !ok {
		return
	}
	f, err := h.svc.Retry(r.Context(), id, userIDFrom(r))
	if err != nil {
		h.fileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ingest.NewStatusReport(f))
}

// Delete handles DELETE /api/v1/files/{id}.
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := fileID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id, userIDFrom(r)); err != nil {
		h.fileError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fileID returns the {id} path parameter. Anything that is not a UUID
// cannot name a file and answers 404.
func fileID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		notFound(w, "file not found")
		return "", false
	}
	return id, true
}

// userIDFrom reads the acting user from the user_id query parameter.
func userIDFrom(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	return id
}

// fileError maps service errors of the single-file routes.
func (h *FilesHandler) fileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		notFound(w, "file not found")
	case errors.Is(err, ingest.ErrInvalidState):
		writeError(w, http.StatusUnprocessableEntity, CodeInvalidState, err.Error())
	default:
		h.logger.Error("file request failed", slog.String("error", err.Error()))
		internalError(w)
	}
}
