package converter

import (
	"context"

	"github.com/callrodry/capcee-proyecto/internal/types"
)

// FolioChecker answers whether a record with the given primary folio already
// exists for a department.
type FolioChecker interface {
	FolioExists(ctx context.Context, folio float64, departmentID int64) (bool, error)
}

// IsDuplicate reports whether rec collides with a stored record on
// (folio1, department). The key ignores folio2 and the file type, so folios
// are deduplicated across every file of a department. Records without a
// primary folio are never duplicates.
func IsDuplicate(ctx context.Context, checker FolioChecker, rec *types.FinancialRecord, departmentID int64) (bool, error) {
	if rec == nil || rec.Folio1 == nil {
		return false, nil
	}
	return checker.FolioExists(ctx, *rec.Folio1, departmentID)
}
