package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/callrodry/capcee-proyecto/internal/converter"
	"github.com/callrodry/capcee-proyecto/internal/types"
)

// Store groups the repositories over one pool and adapts them to the
// pipeline's persistence interface.
type Store struct {
	Files       FileRepository
	Records     RecordRepository
	Departments DepartmentRepository
	Mappings    MappingRepository
	Activity    ActivityRepository

	tx *TxRunner
}

// NewStore creates a Store over pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Files:       NewFileRepository(pool),
		Records:     NewRecordRepository(pool),
		Departments: NewDepartmentRepository(pool),
		Mappings:    NewMappingRepository(pool),
		Activity:    NewActivityRepository(pool),
		tx:          NewTxRunner(pool),
	}
}

var _ converter.Store = (*Store)(nil)

func (s *Store) StartProcessing(ctx context.Context, fileID string, startedAt time.Time) (*types.FileRecord, error) {
	return s.Files.StartProcessing(ctx, fileID, startedAt)
}

func (s *Store) FinishProcessing(ctx context.Context, file *types.FileRecord) error {
	return s.Files.Finish(ctx, file)
}

func (s *Store) GetDepartment(ctx context.Context, id int64) (*types.Department, error) {
	return s.Departments.GetByID(ctx, id)
}

// RunInRowTx gives fn a record repository bound to a fresh transaction.
func (s *Store) RunInRowTx(ctx context.Context, fn func(tx converter.RowTx) error) error {
	return s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		return fn(NewRecordRepository(tx))
	})
}

func (s *Store) RecordActivity(ctx context.Context, entry *types.ActivityEntry) error {
	return s.Activity.Insert(ctx, entry)
}

// SyncMappings upserts departments and their column mappings in one
// transaction. Returns the number of mappings written.
func (s *Store) SyncMappings(ctx context.Context, departments []types.Department, mappings []types.ColumnMapping) (int, error) {
	n := 0
	err := s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		depts := NewDepartmentRepository(tx)
		for i := range departments {
			if err := depts.Upsert(ctx, &departments[i]); err != nil {
				return err
			}
		}
		maps := NewMappingRepository(tx)
		for i := range mappings {
			if err := maps.Upsert(ctx, &mappings[i]); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
