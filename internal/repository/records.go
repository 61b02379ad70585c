package repository

import (
	"context"
	"fmt"

	"github.com/callrodry/capcee-proyecto/internal/types"
)

// RecordRepository stores FinancialRecords.
type RecordRepository interface {
	// InsertRecord creates one record and sets its ID and CreatedAt.
	InsertRecord(ctx context.Context, rec *types.FinancialRecord) error
	// FolioExists reports whether a record with folio1 exists in the department.
	FolioExists(ctx context.Context, folio float64, departmentID int64) (bool, error)
	// ListByFile returns up to limit records of a file in insertion order.
	ListByFile(ctx context.Context, fileID string, limit int) ([]*types.FinancialRecord, error)
	// CountByFile returns the number of records of a file.
	CountByFile(ctx context.Context, fileID string) (int, error)
}

type recordRepo struct {
	db DBTX
}

// NewRecordRepository creates the financial records repository.
func NewRecordRepository(db DBTX) RecordRepository {
	return &recordRepo{db: db}
}

const recordColumns = `id, file_id, department_id, user_id,
	folio1, folio2, partida, cct, programa, contrato, folio_autorizacion, rfc,
	banco, cuenta_bancaria, clabe, beneficiario,
	obra, municipio, localidad, empresa,
	importe_autorizado, total_pagado_por_obra, avance_fisico, avance_financiero,
	fecha, fecha_autorizacion, status, mes, observaciones,
	source_system, source_file, validated, extra, created_at`

func (r *recordRepo) InsertRecord(ctx context.Context, rec *types.FinancialRecord) error {
	query := `
		INSERT INTO financial_records (file_id, department_id, user_id,
			folio1, folio2, partida, cct, programa, contrato, folio_autorizacion, rfc,
			banco, cuenta_bancaria, clabe, beneficiario,
			obra, municipio, localidad, empresa,
			importe_autorizado, total_pagado_por_obra, avance_fisico, avance_financiero,
			fecha, fecha_autorizacion, status, mes, observaciones,
			source_system, source_file, validated, extra)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32)
		RETURNING id, created_at`

	var extra any
	if len(rec.Extra) > 0 {
		extra = rec.Extra
	}

	err := r.db.QueryRow(ctx, query,
		rec.FileID, rec.DepartmentID, rec.UserID,
		rec.Folio1, rec.Folio2, rec.Partida, rec.CCT, rec.Program, rec.ContractNumber, rec.AuthorizationFolio, rec.RFC,
		rec.Bank, rec.BankAccount, rec.CLABE, rec.Beneficiary,
		rec.WorkName, rec.Municipality, rec.Locality, rec.Contractor,
		rec.AuthorizedAmount, rec.TotalPaid, rec.PhysicalProgress, rec.FinancialProgress,
		rec.Date, rec.AuthorizationDate, rec.Status, rec.Month, rec.Notes,
		rec.SourceSystem, rec.SourceFile, rec.Validated, extra,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert financial record: %w", err)
	}
	return nil
}

func (r *recordRepo) FolioExists(ctx context.Context, folio float64, departmentID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM financial_records WHERE folio1 = $1 AND department_id = $2)`,
		folio, departmentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check folio: %w", err)
	}
	return exists, nil
}

func (r *recordRepo) ListByFile(ctx context.Context, fileID string, limit int) ([]*types.FinancialRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM financial_records WHERE file_id = $1 ORDER BY id LIMIT $2`

	rows, err := r.db.Query(ctx, query, fileID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list financial records: %w", err)
	}
	defer rows.Close()

	var result []*types.FinancialRecord
	for rows.Next() {
		rec := &types.FinancialRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.FileID, &rec.DepartmentID, &rec.UserID,
			&rec.Folio1, &rec.Folio2, &rec.Partida, &rec.CCT, &rec.Program, &rec.ContractNumber, &rec.AuthorizationFolio, &rec.RFC,
			&rec.Bank, &rec.BankAccount, &rec.CLABE, &rec.Beneficiary,
			&rec.WorkName, &rec.Municipality, &rec.Locality, &rec.Contractor,
			&rec.AuthorizedAmount, &rec.TotalPaid, &rec.PhysicalProgress, &rec.FinancialProgress,
			&rec.Date, &rec.AuthorizationDate, &rec.Status, &rec.Month, &rec.Notes,
			&rec.SourceSystem, &rec.SourceFile, &rec.Validated, &rec.Extra, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan financial record: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *recordRepo) CountByFile(ctx context.Context, fileID string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM financial_records WHERE file_id = $1`, fileID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count financial records: %w", err)
	}
	return n, nil
}
