package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

const (
	transactionColumns = `id, type, from_account_id, to_account_id, amount, status, parent_transaction_id,
		COALESCE(external_reference, ''), description, metadata, performed_by, created_at, updated_at, completed_at`

	externalReferenceConstraint = "transactions_external_reference_key"
)

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	db DBTX
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a transaction row.
func (r *TransactionRepository) Create(ctx context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	metadata, err := marshalObject(t.Metadata)
	if err != nil {
		return err
	}

	_, err = conn(r.db, tx).Exec(ctx, `
		INSERT INTO transactions (id, type, from_account_id, to_account_id, amount, status,
			parent_transaction_id, external_reference, description, metadata, performed_by,
			created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		t.ID,
		string(t.Type),
		t.FromAccountID,
		t.ToAccountID,
		decimalToNumeric(t.Amount),
		string(t.Status),
		t.ParentTransactionID,
		domain.StringPtr(t.ExternalReference),
		t.Description,
		metadata,
		t.PerformedBy,
		t.CreatedAt,
		t.UpdatedAt,
		optionalTimestamptz(t.CompletedAt),
	)
	if isUniqueViolation(err, externalReferenceConstraint) {
		return domain.ErrDuplicateExternalReference
	}

	return err
}

// GetByID retrieves a transaction by ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	return transactionOrNotFound(scanTransaction(row))
}

// GetByIDForUpdate retrieves a transaction by ID with a FOR UPDATE lock.
func (r *TransactionRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Transaction, error) {
	row := conn(r.db, tx).QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
	return transactionOrNotFound(scanTransaction(row))
}

// UpdateStatus moves a transaction to status. A nil completedAt keeps the stored value.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx usecase.Transaction, id string, status domain.TransactionStatus, updatedAt time.Time, completedAt *time.Time) error {
	tag, err := conn(r.db, tx).Exec(ctx, `
		UPDATE transactions
		SET status = $2, updated_at = $3, completed_at = COALESCE($4, completed_at)
		WHERE id = $1`,
		id, string(status), updatedAt, optionalTimestamptz(completedAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}

	return nil
}

// List retrieves transactions newest first.
func (r *TransactionRepository) List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	var c conditions
	if filter.Type != "" {
		c.add("type = $%d", string(filter.Type))
	}
	if filter.Status != "" {
		c.add("status = $%d", string(filter.Status))
	}
	if filter.AccountID != "" {
		c.add("(from_account_id = $%[1]d OR to_account_id = $%[1]d)", filter.AccountID)
	}
	if filter.ParentTransactionID != "" {
		c.add("parent_transaction_id = $%d", filter.ParentTransactionID)
	}
	if filter.From != nil {
		c.add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		c.add("created_at < $%d", *filter.To)
	}
	where := c.where()
	page := c.page(filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions`+where+` ORDER BY created_at DESC, id DESC`+page, c.args...)
	if err != nil {
		return nil, err
	}

	return collect(rows, scanTransaction)
}

// ListChildren returns allocation children of parentID in creation order.
func (r *TransactionRepository) ListChildren(ctx context.Context, tx usecase.Transaction, parentID string) ([]*domain.Transaction, error) {
	rows, err := conn(r.db, tx).Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE parent_transaction_id = $1 ORDER BY created_at, id`, parentID)
	if err != nil {
		return nil, err
	}

	return collect(rows, scanTransaction)
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		t                domain.Transaction
		typ, status      string
		from, to, parent pgtype.Text
		metadata         []byte
		completedAt      pgtype.Timestamptz
	)

	err := row.Scan(&t.ID, &typ, &from, &to, &t.Amount, &status, &parent,
		&t.ExternalReference, &t.Description, &metadata, &t.PerformedBy,
		&t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.Type = domain.TransactionType(typ)
	t.Status = domain.TransactionStatus(status)
	t.FromAccountID = textPtr(from)
	t.ToAccountID = textPtr(to)
	t.ParentTransactionID = textPtr(parent)
	t.CompletedAt = timestamptzPtr(completedAt)
	if t.Metadata, err = unmarshalObject(metadata); err != nil {
		return nil, err
	}

	return &t, nil
}

func transactionOrNotFound(t *domain.Transaction, err error) (*domain.Transaction, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	return t, err
}
