package postgres

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

const (
	accountColumns = `id, name, type, balance, is_active, description, metadata, version, created_at, updated_at`

	accountNameConstraint    = "accounts_name_key"
	accountBalanceConstraint = "accounts_balance_non_negative"
	pgErrCheckViolation      = "23514"
)

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create creates a new account.
func (r *AccountRepository) Create(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	metadata, err := marshalObject(account.Metadata)
	if err != nil {
		return err
	}

	_, err = conn(r.db, tx).Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		account.ID,
		account.Name,
		string(account.Type),
		decimalToNumeric(account.Balance),
		account.IsActive,
		account.Description,
		metadata,
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if isUniqueViolation(err, accountNameConstraint) {
		return domain.ErrAccountExists
	}

	return err
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return accountOrNotFound(scanAccount(row))
}

// GetByName retrieves an account by its unique name.
func (r *AccountRepository) GetByName(ctx context.Context, name string) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE name = $1`, name)
	return accountOrNotFound(scanAccount(row))
}

// GetByIDForUpdate retrieves an account by ID with a FOR UPDATE lock.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Account, error) {
	row := conn(r.db, tx).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	return accountOrNotFound(scanAccount(row))
}

// GetByIDsForUpdate locks accounts in id order so concurrent callers cannot deadlock.
func (r *AccountRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Account, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	rows, err := conn(r.db, tx).Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, sorted)
	if err != nil {
		return nil, err
	}

	return collect(rows, scanAccount)
}

// UpdateBalance sets the balance and bumps the version.
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx usecase.Transaction, id string, balance decimal.Decimal, updatedAt time.Time) error {
	tag, err := conn(r.db, tx).Exec(ctx, `
		UPDATE accounts SET balance = $2, version = version + 1, updated_at = $3
		WHERE id = $1`,
		id, decimalToNumeric(balance), updatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrCheckViolation && pgErr.ConstraintName == accountBalanceConstraint {
			return domain.ErrNegativeBalance
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// SetActive toggles the active flag. Balances are left untouched.
func (r *AccountRepository) SetActive(ctx context.Context, tx usecase.Transaction, id string, active bool, updatedAt time.Time) error {
	tag, err := conn(r.db, tx).Exec(ctx, `
		UPDATE accounts SET is_active = $2, version = version + 1, updated_at = $3
		WHERE id = $1`,
		id, active, updatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// List retrieves accounts ordered by name.
func (r *AccountRepository) List(ctx context.Context, filter domain.AccountFilter) ([]*domain.Account, error) {
	var c conditions
	if !filter.IncludeInactive {
		c.add("is_active = $%d", true)
	}
	if filter.Type != "" {
		c.add("upper(type) = upper($%d)", string(filter.Type))
	}
	where := c.where()
	page := c.page(filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts`+where+` ORDER BY name`+page, c.args...)
	if err != nil {
		return nil, err
	}

	return collect(rows, scanAccount)
}

// SumActiveBalances returns the total balance and count of active accounts.
func (r *AccountRepository) SumActiveBalances(ctx context.Context, tx usecase.Transaction) (decimal.Decimal, int, error) {
	var (
		total decimal.Decimal
		count int64
	)

	err := conn(r.db, tx).QueryRow(ctx,
		`SELECT COALESCE(SUM(balance), 0), COUNT(*) FROM accounts WHERE is_active`).Scan(&total, &count)
	if err != nil {
		return decimal.Zero, 0, err
	}

	return total, int(count), nil
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		a        domain.Account
		typ      string
		metadata []byte
	)

	err := row.Scan(&a.ID, &a.Name, &typ, &a.Balance, &a.IsActive, &a.Description,
		&metadata, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.Type = domain.AccountType(typ)
	if a.Metadata, err = unmarshalObject(metadata); err != nil {
		return nil, err
	}

	return &a, nil
}

func accountOrNotFound(a *domain.Account, err error) (*domain.Account, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	return a, err
}
