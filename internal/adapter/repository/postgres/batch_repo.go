package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

const batchPrimaryKey = "allocation_batches_pkey"

// AllocationBatchRepository implements usecase.AllocationBatchRepository.
// The primary key on the parent id turns a concurrent second application
// into a unique violation.
type AllocationBatchRepository struct {
	db DBTX
}

// NewAllocationBatchRepository creates a new AllocationBatchRepository.
func NewAllocationBatchRepository(db DBTX) *AllocationBatchRepository {
	return &AllocationBatchRepository{db: db}
}

// Insert writes the marker row for batch.ParentTransactionID.
func (r *AllocationBatchRepository) Insert(ctx context.Context, tx usecase.Transaction, batch *domain.AllocationBatch) error {
	_, err := conn(r.db, tx).Exec(ctx, `
		INSERT INTO allocation_batches (parent_transaction_id, rule_id, child_count, total_allocated, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		batch.ParentTransactionID,
		batch.RuleID,
		batch.ChildCount,
		decimalToNumeric(batch.TotalAllocated),
		batch.CreatedBy,
		batch.CreatedAt,
	)
	if isUniqueViolation(err, batchPrimaryKey) {
		return domain.ErrAllocationAlreadyDone
	}

	return err
}

// Complete records the final child count and total on the marker.
func (r *AllocationBatchRepository) Complete(ctx context.Context, tx usecase.Transaction, parentID string, childCount int, total decimal.Decimal) error {
	tag, err := conn(r.db, tx).Exec(ctx, `
		UPDATE allocation_batches SET child_count = $2, total_allocated = $3
		WHERE parent_transaction_id = $1`,
		parentID, childCount, decimalToNumeric(total))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}

	return nil
}

// Get retrieves the marker for parentID.
func (r *AllocationBatchRepository) Get(ctx context.Context, parentID string) (*domain.AllocationBatch, error) {
	var b domain.AllocationBatch

	err := r.db.QueryRow(ctx, `
		SELECT parent_transaction_id, rule_id, child_count, total_allocated, created_by, created_at
		FROM allocation_batches WHERE parent_transaction_id = $1`, parentID).
		Scan(&b.ParentTransactionID, &b.RuleID, &b.ChildCount, &b.TotalAllocated, &b.CreatedBy, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}

	return &b, nil
}
