package repository

import (
	"context"
	"fmt"

	"github.com/callrodry/capcee-proyecto/internal/types"
)

// MappingRepository stores column mappings. It also serves as the
// database-backed column mapping registry.
type MappingRepository interface {
	// MappingsFor returns the active mappings of a pair in configured order.
	MappingsFor(ctx context.Context, departmentCode, fileType string) ([]types.ColumnMapping, error)
	// List returns every mapping, inactive ones included.
	List(ctx context.Context) ([]types.ColumnMapping, error)
	// Upsert creates or updates a mapping keyed by
	// (department_code, file_type, source_column).
	Upsert(ctx context.Context, m *types.ColumnMapping) error
}

type mappingRepo struct {
	db DBTX
}

// NewMappingRepository creates the column mappings repository.
func NewMappingRepository(db DBTX) MappingRepository {
	return &mappingRepo{db: db}
}

const mappingColumns = `id, department_code, file_type, source_column, target_field, data_type,
	required, validation_rules, transformation_rules, active, position`

func (r *mappingRepo) MappingsFor(ctx context.Context, departmentCode, fileType string) ([]types.ColumnMapping, error) {
	query := `
		SELECT ` + mappingColumns + `
		FROM column_mappings
		WHERE department_code = upper($1) AND file_type = upper($2) AND active
		ORDER BY position, id`

	return r.query(ctx, query, departmentCode, fileType)
}

func (r *mappingRepo) List(ctx context.Context) ([]types.ColumnMapping, error) {
	query := `
		SELECT ` + mappingColumns + `
		FROM column_mappings
		ORDER BY department_code, file_type, position, id`

	return r.query(ctx, query)
}

func (r *mappingRepo) Upsert(ctx context.Context, m *types.ColumnMapping) error {
	query := `
		INSERT INTO column_mappings (department_code, file_type, source_column, target_field,
			data_type, required, validation_rules, transformation_rules, active, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (department_code, file_type, source_column) DO UPDATE
		SET target_field = EXCLUDED.target_field, data_type = EXCLUDED.data_type,
			required = EXCLUDED.required, validation_rules = EXCLUDED.validation_rules,
			transformation_rules = EXCLUDED.transformation_rules,
			active = EXCLUDED.active, position = EXCLUDED.position, updated_at = now()
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		m.DepartmentCode, m.FileType, m.SourceColumn, m.TargetField,
		string(types.ParseDataType(string(m.DataType))), m.Required,
		m.Validation, m.Transformation, m.Active, m.Position,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert mapping %s/%s/%s: %w", m.DepartmentCode, m.FileType, m.SourceColumn, err)
	}
	return nil
}

func (r *mappingRepo) query(ctx context.Context, query string, args ...any) ([]types.ColumnMapping, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer rows.Close()

	var result []types.ColumnMapping
	for rows.Next() {
		var m types.ColumnMapping
		var dataType string
		if err := rows.Scan(
			&m.ID, &m.DepartmentCode, &m.FileType, &m.SourceColumn, &m.TargetField, &dataType,
			&m.Required, &m.Validation, &m.Transformation, &m.Active, &m.Position,
		); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		m.DataType = types.ParseDataType(dataType)
		result = append(result, m)
	}
	return result, rows.Err()
}
