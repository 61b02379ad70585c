package repository

import (
	"context"
	"fmt"

	"github.com/callrodry/capcee-proyecto/internal/types"
)

// ActivityRepository writes and reads the activity log.
type ActivityRepository interface {
	Insert(ctx context.Context, e *types.ActivityEntry) error
	ListByFile(ctx context.Context, fileID string) ([]*types.ActivityEntry, error)
}

type activityRepo struct {
	db DBTX
}

// NewActivityRepository creates the activity log repository.
func NewActivityRepository(db DBTX) ActivityRepository {
	return &activityRepo{db: db}
}

func (r *activityRepo) Insert(ctx context.Context, e *types.ActivityEntry) error {
	query := `
		INSERT INTO activity_log (user_id, file_id, action, description, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	// Entries about a deleted file keep its id in details only.
	var fileID any
	if e.FileID != "" && e.Action != types.ActionDelete {
		fileID = e.FileID
	}
	var details any
	if len(e.Details) > 0 {
		details = e.Details
	}

	if err := r.db.QueryRow(ctx, query,
		e.UserID, fileID, string(e.Action), e.Description, details,
	).Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert activity entry: %w", err)
	}
	return nil
}

func (r *activityRepo) ListByFile(ctx context.Context, fileID string) ([]*types.ActivityEntry, error) {
	query := `
		SELECT id, user_id, file_id::text, action, description, details, created_at
		FROM activity_log
		WHERE file_id = $1
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var result []*types.ActivityEntry
	for rows.Next() {
		e := &types.ActivityEntry{}
		var action string
		if err := rows.Scan(&e.ID, &e.UserID, &e.FileID, &action, &e.Description, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}
		e.Action = types.ActivityAction(action)
		result = append(result, e)
	}
	return result, rows.Err()
}
