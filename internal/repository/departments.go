package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/callrodry/capcee-proyecto/internal/types"
)

// DepartmentRepository reads and upserts departments.
type DepartmentRepository interface {
	GetByID(ctx context.Context, id int64) (*types.Department, error)
	GetByCode(ctx context.Context, code string) (*types.Department, error)
	List(ctx context.Context) ([]*types.Department, error)
	// Upsert creates or updates a department keyed by code and sets its ID.
	Upsert(ctx context.Context, d *types.Department) error
}

type departmentRepo struct {
	db DBTX
}

// NewDepartmentRepository creates the departments repository.
func NewDepartmentRepository(db DBTX) DepartmentRepository {
	return &departmentRepo{db: db}
}

const departmentColumns = `id, code, name, description, daily_upload_limit, max_file_size_mb, active`

func scanDepartment(row scanner) (*types.Department, error) {
	d := &types.Department{}
	err := row.Scan(&d.ID, &d.Code, &d.Name, &d.Description, &d.DailyUploadLimit, &d.MaxFileSizeMB, &d.Active)
	return d, err
}

func (r *departmentRepo) GetByID(ctx context.Context, id int64) (*types.Department, error) {
	d, err := scanDepartment(r.db.QueryRow(ctx, `SELECT `+departmentColumns+` FROM departments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	return d, nil
}

func (r *departmentRepo) GetByCode(ctx context.Context, code string) (*types.Department, error) {
	d, err := scanDepartment(r.db.QueryRow(ctx, `SELECT `+departmentColumns+` FROM departments WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	return d, nil
}

func (r *departmentRepo) List(ctx context.Context) ([]*types.Department, error) {
	rows, err := r.db.Query(ctx, `SELECT `+departmentColumns+` FROM departments ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	defer rows.Close()

	var result []*types.Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *departmentRepo) Upsert(ctx context.Context, d *types.Department) error {
	query := `
		INSERT INTO departments (code, name, description, daily_upload_limit, max_file_size_mb, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name, description = EXCLUDED.description,
			daily_upload_limit = EXCLUDED.daily_upload_limit,
			max_file_size_mb = EXCLUDED.max_file_size_mb,
			active = EXCLUDED.active, updated_at = now()
		RETURNING id`

	if err := r.db.QueryRow(ctx, query,
		d.Code, d.Name, d.Description, d.DailyUploadLimit, d.MaxFileSizeMB, d.Active,
	).Scan(&d.ID); err != nil {
		return fmt.Errorf("failed to upsert department: %w", err)
	}
	return nil
}
