package ingest

import (
	"errors"
	"fmt"

	"github.com/callrodry/capcee-proyecto/internal/types"
)

// Sentinel errors of the ingestion service.
var (
	// ErrInvalidState is matched by every InvalidStateError.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrUnsupportedExtension rejects uploads that are not xlsx, xls or csv.
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	// ErrQuotaExceeded rejects uploads past the department's daily limit.
	ErrQuotaExceeded = errors.New("daily upload limit reached")
	// ErrDepartmentInactive rejects uploads to a disabled department.
	ErrDepartmentInactive = errors.New("department is inactive")
)

// Operations reported by InvalidStateError.
const (
	OpRetry  = "retry"
	OpDelete = "delete"
)

// InvalidStateError is returned when an operation is requested for a file
// in a state that does not allow it: retry outside ERROR or VALIDATED, or
// delete while IN_PROGRESS.
type InvalidStateError struct {
	FileID string
	State  types.FileState
	Op     string // "retry" or "delete"; empty means retry
}

func (e *InvalidStateError) Error() string {
	if e.Op == OpDelete {
		return fmt.Sprintf("file %s cannot be deleted while in state %s", e.FileID, e.State)
	}
	return fmt.Sprintf("file %s cannot be retried from state %s", e.FileID, e.State)
}

// Is makes errors.Is(err, ErrInvalidState) hold.
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// FileTooLargeError rejects an upload over the department size limit.
type FileTooLargeError struct {
	Size    int64
	LimitMB int
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file size %d bytes exceeds the %d MB limit", e.Size, e.LimitMB)
}

// DuplicateUploadError rejects content that was already uploaded.
type DuplicateUploadError struct {
	ExistingID string
}

func (e *DuplicateUploadError) Error() string {
	return fmt.Sprintf("this file was already uploaded (file %s)", e.ExistingID)
}
