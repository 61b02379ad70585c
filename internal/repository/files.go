package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/callrodry/capcee-proyecto/internal/types"
)

// FileRepository stores FileRecords in the files table.
type FileRepository interface {
	// Create inserts a new file in PENDING.
	Create(ctx context.Context, f *types.FileRecord) error
	// GetByID returns a file by UUID.
	GetByID(ctx context.Context, id string) (*types.FileRecord, error)
	// FindByHash returns the most recent file with the given content hash.
	FindByHash(ctx context.Context, hash string) (*types.FileRecord, error)
	// List returns files matching filters, newest first.
	List(ctx context.Context, filters FileListFilters, limit, offset int) ([]*types.FileRecord, error)
	// Count returns the number of files matching filters.
	Count(ctx context.Context, filters FileListFilters) (int, error)
	// StartProcessing claims a PENDING file: state -> IN_PROGRESS.
	StartProcessing(ctx context.Context, id string, startedAt time.Time) (*types.FileRecord, error)
	// Finish writes the terminal state of a run.
	Finish(ctx context.Context, f *types.FileRecord) error
	// ResetForRetry moves an ERROR or VALIDATED file back to PENDING with
	// cleared counters, messages and timestamps.
	ResetForRetry(ctx context.Context, id string) (*types.FileRecord, error)
	// ListPending returns up to limit PENDING files, oldest first.
	ListPending(ctx context.Context, departmentID *int64, limit int) ([]*types.FileRecord, error)
	// ListCompletedBefore returns CONVERTED/VALIDATED files uploaded before t.
	ListCompletedBefore(ctx context.Context, t time.Time) ([]*types.FileRecord, error)
	// CountUploadedSince counts a department's uploads since t.
	CountUploadedSince(ctx context.Context, departmentID int64, t time.Time) (int, error)
	// Delete removes a file; records and activity entries cascade.
	Delete(ctx context.Context, id string) error
}

// FileListFilters narrows List and Count.
type FileListFilters struct {
	State        *types.FileState
	DepartmentID *int64
	UploadedFrom *time.Time
	UploadedTo   *time.Time
}

type fileRepo struct {
	db DBTX
}

// NewFileRepository creates the files repository.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

const fileColumns = `id, original_filename, stored_path, department_id, user_id, extension,
	file_type, state, total_rows, succeeded_rows, failed_rows, duplicated_rows, errors,
	uploaded_at, started_at, ended_at, duration_seconds, content_hash, size_bytes,
	created_at, updated_at`

func scanFile(row scanner) (*types.FileRecord, error) {
	f := &types.FileRecord{}
	var state string
	err := row.Scan(
		&f.ID, &f.OriginalFilename, &f.StoredPath, &f.DepartmentID, &f.UserID, &f.Extension,
		&f.FileType, &state, &f.Stats.Total, &f.Stats.Succeeded, &f.Stats.Failed, &f.Stats.Duplicated, &f.Errors,
		&f.UploadedAt, &f.StartedAt, &f.EndedAt, &f.DurationSeconds, &f.ContentHash, &f.SizeBytes,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.State = types.FileState(state)
	return f, nil
}

func (r *fileRepo) Create(ctx context.Context, f *types.FileRecord) error {
	query := `
		INSERT INTO files (id, original_filename, stored_path, department_id, user_id, extension,
			file_type, state, uploaded_at, content_hash, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	if f.State == "" {
		f.State = types.StatePending
	}
	err := r.db.QueryRow(ctx, query,
		f.ID, f.OriginalFilename, f.StoredPath, f.DepartmentID, f.UserID, f.Extension,
		f.FileType, string(f.State), f.UploadedAt, f.ContentHash, f.SizeBytes,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: file %s already exists", ErrConflict, f.ID)
		}
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

func (r *fileRepo) GetByID(ctx context.Context, id string) (*types.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`

	f, err := scanFile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

func (r *fileRepo) FindByHash(ctx context.Context, hash string) (*types.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE content_hash = $1 ORDER BY uploaded_at DESC LIMIT 1`

	f, err := scanFile(r.db.QueryRow(ctx, query, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find file by hash: %w", err)
	}
	return f, nil
}

// buildFileWhere builds the WHERE clause and arguments of a filtered query.
func buildFileWhere(filters FileListFilters, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filters.State != nil {
		conditions = append(conditions, fmt.Sprintf("state = $%d", argNum))
		args = append(args, string(*filters.State))
		argNum++
	}
	if filters.DepartmentID != nil {
		conditions = append(conditions, fmt.Sprintf("department_id = $%d", argNum))
		args = append(args, *filters.DepartmentID)
		argNum++
	}
	if filters.UploadedFrom != nil {
		conditions = append(conditions, fmt.Sprintf("uploaded_at >= $%d", argNum))
		args = append(args, *filters.UploadedFrom)
		argNum++
	}
	if filters.UploadedTo != nil {
		conditions = append(conditions, fmt.Sprintf("uploaded_at < $%d", argNum))
		args = append(args, *filters.UploadedTo)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

func (r *fileRepo) List(ctx context.Context, filters FileListFilters, limit, offset int) ([]*types.FileRecord, error) {
	where, args := buildFileWhere(filters, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s
		FROM files
		%s
		ORDER BY uploaded_at DESC
		LIMIT $%d OFFSET $%d`, fileColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)
	return r.queryFiles(ctx, query, args...)
}

func (r *fileRepo) Count(ctx context.Context, filters FileListFilters) (int, error) {
	where, args := buildFileWhere(filters, 1)
	query := `SELECT count(*) FROM files ` + where

	var n int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return n, nil
}

func (r *fileRepo) StartProcessing(ctx context.Context, id string, startedAt time.Time) (*types.FileRecord, error) {
	query := `
		UPDATE files
		SET state = 'IN_PROGRESS', started_at = $2, ended_at = NULL, updated_at = now()
		WHERE id = $1 AND state = 'PENDING'
		RETURNING ` + fileColumns

	f, err := scanFile(r.db.QueryRow(ctx, query, id, startedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.explainMiss(ctx, id)
		}
		return nil, fmt.Errorf("failed to start processing: %w", err)
	}
	return f, nil
}

func (r *fileRepo) Finish(ctx context.Context, f *types.FileRecord) error {
	query := `
		UPDATE files
		SET state = $2, file_type = $3,
			total_rows = $4, succeeded_rows = $5, failed_rows = $6, duplicated_rows = $7,
			errors = $8, started_at = $9, ended_at = $10, duration_seconds = $11,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	errs := f.Errors
	if errs == nil {
		errs = []string{}
	}
	err := r.db.QueryRow(ctx, query,
		f.ID, string(f.State), f.FileType,
		f.Stats.Total, f.Stats.Succeeded, f.Stats.Failed, f.Stats.Duplicated,
		errs, f.StartedAt, f.EndedAt, f.DurationSeconds,
	).Scan(&f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to finish file: %w", err)
	}
	return nil
}

func (r *fileRepo) ResetForRetry(ctx context.Context, id string) (*types.FileRecord, error) {
	query := `
		UPDATE files
		SET state = 'PENDING',
			total_rows = 0, succeeded_rows = 0, failed_rows = 0, duplicated_rows = 0,
			errors = '{}', started_at = NULL, ended_at = NULL, duration_seconds = NULL,
			updated_at = now()
		WHERE id = $1 AND state IN ('ERROR', 'VALIDATED')
		RETURNING ` + fileColumns

	f, err := scanFile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.explainMiss(ctx, id)
		}
		return nil, fmt.Errorf("failed to reset file: %w", err)
	}
	return f, nil
}

// explainMiss tells a missing file apart from one in another state after a
// conditional update matched nothing.
func (r *fileRepo) explainMiss(ctx context.Context, id string) error {
	var state string
	err := r.db.QueryRow(ctx, `SELECT state FROM files WHERE id = $1`, id).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read file state: %w", err)
	}
	return fmt.Errorf("%w: file %s is %s", ErrStateConflict, id, state)
}

func (r *fileRepo) ListPending(ctx context.Context, departmentID *int64, limit int) ([]*types.FileRecord, error) {
	pending := types.StatePending
	where, args := buildFileWhere(FileListFilters{State: &pending, DepartmentID: departmentID}, 1)

	query := fmt.Sprintf(`
		SELECT %s
		FROM files
		%s
		ORDER BY uploaded_at ASC
		LIMIT $%d`, fileColumns, where, len(args)+1)

	args = append(args, limit)
	return r.queryFiles(ctx, query, args...)
}

func (r *fileRepo) ListCompletedBefore(ctx context.Context, t time.Time) ([]*types.FileRecord, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files
		WHERE uploaded_at < $1 AND state IN ('CONVERTED', 'VALIDATED')
		ORDER BY uploaded_at ASC`

	return r.queryFiles(ctx, query, t)
}

func (r *fileRepo) CountUploadedSince(ctx context.Context, departmentID int64, t time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM files WHERE department_id = $1 AND uploaded_at >= $2`,
		departmentID, t,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count uploads: %w", err)
	}
	return n, nil
}

func (r *fileRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *fileRepo) queryFiles(ctx context.Context, query string, args ...any) ([]*types.FileRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var result []*types.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}
