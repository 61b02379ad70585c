// =============================================================================
// CAPCEE Ingestion - Content Storage
// =============================================================================
//
// This module stores the bytes of uploaded spreadsheets and gives the
// pipeline read access to them:
//   - Local directory storage with date-based subdirectories
//   - S3-compatible object storage through MinIO (minio.go)
//   - Stored object naming
//
// STORAGE LAYOUT:
//   - Every upload gets a fresh name: {uuid}{ext}
//   - With date subdirectories enabled the key is YYYY/MM/DD/{uuid}{ext}
//   - The key is what FileRecord.StoredPath holds; it never contains the
//     original filename
//
// =============================================================================

package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContentStore persists uploaded bytes.
type ContentStore interface {
	// Save stores r under a generated key derived from originalName and
	// returns the key.
	Save(ctx context.Context, originalName string, r io.Reader, size int64) (string, error)
	// Open returns the bytes stored under key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. A missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// ErrInvalidKey is returned for keys that escape the storage root.
var ErrInvalidKey = errors.New("invalid storage key")

// =============================================================================
// FILE MANAGER (LOCAL STORAGE)
// =============================================================================

// FileManager stores uploads in a local directory.
type FileManager struct {
	// Root is the directory holding every stored upload.
	Root string

	// UseTimestampSubdirs stores uploads under date-based subdirectories.
	// Example: uploads/2025/03/15/1f0c...e2.xlsx
	UseTimestampSubdirs bool

	now func() time.Time
}

// NewFileManager creates a FileManager rooted at root.
func NewFileManager(root string, useTimestampSubdirs bool) *FileManager {
	return &FileManager{
		Root:                root,
		UseTimestampSubdirs: useTimestampSubdirs,
		now:                 time.Now,
	}
}

// EnsureDirectories creates the root directory if it doesn't exist.
func (fm *FileManager) EnsureDirectories() error {
	if err := os.MkdirAll(fm.Root, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", fm.Root, err)
	}
	return nil
}

// Save writes r to a temporary file and renames it into place, so a
// partially written upload is never visible under its key.
func (fm *FileManager) Save(_ context.Context, originalName string, r io.Reader, _ int64) (string, error) {
	key := StorageKey(originalName, fm.UseTimestampSubdirs, fm.now())
	dst := filepath.Join(fm.Root, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to sync upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("failed to move upload into place: %w", err)
	}

	return key, nil
}

// Open opens the stored file.
func (fm *FileManager) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := fm.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open stored file: %w", err)
	}
	return f, nil
}

// Delete removes the stored file.
func (fm *FileManager) Delete(_ context.Context, key string) error {
	p, err := fm.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete stored file: %w", err)
	}
	return nil
}

// resolve maps a key to a path below Root.
func (fm *FileManager) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean != "/"+strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(fm.Root, filepath.FromSlash(clean[1:])), nil
}

// =============================================================================
// STORED FILE NAMING
// =============================================================================

// StorageKey generates a unique slash-separated key for an upload.
//
// PARAMETERS:
//   - originalName: The uploaded filename; only its lower-cased extension is kept.
//   - dated: Whether to prefix the key with YYYY/MM/DD.
//   - now: The upload time.
//
// EXAMPLE:
//
//	StorageKey("Obras 2025.XLSX", true, t) -> "2025/03/15/1f0c7a3e-....xlsx"
func StorageKey(originalName string, dated bool, now time.Time) string {
	name := uuid.New().String() + strings.ToLower(filepath.Ext(originalName))
	if !dated {
		return name
	}
	return path.Join(
		fmt.Sprintf("%d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()),
		name,
	)
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
