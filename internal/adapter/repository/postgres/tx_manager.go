package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/treasury/internal/usecase"
)

type pgxPool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TxManager implements usecase.TransactionManager.
type TxManager struct {
	pool     pgxPool
	isoLevel pgx.TxIsoLevel
}

// NewTxManager creates a new TxManager opening transactions at isoLevel.
func NewTxManager(pool *pgxpool.Pool, isoLevel pgx.TxIsoLevel) *TxManager {
	return newTxManagerWithPool(pool, isoLevel)
}

func newTxManagerWithPool(pool pgxPool, isoLevel pgx.TxIsoLevel) *TxManager {
	if isoLevel == "" {
		isoLevel = pgx.ReadCommitted
	}
	return &TxManager{pool: pool, isoLevel: isoLevel}
}

// ParseIsoLevel maps a configuration value to a pgx isolation level.
func ParseIsoLevel(s string) (pgx.TxIsoLevel, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", " ")) {
	case "", "read committed":
		return pgx.ReadCommitted, nil
	case "repeatable read":
		return pgx.RepeatableRead, nil
	case "serializable":
		return pgx.Serializable, nil
	}
	return "", fmt.Errorf("unsupported isolation level %q", s)
}

// Begin starts a new transaction.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: m.isoLevel})
	if err != nil {
		return nil, err
	}

	return &Tx{tx: tx}, nil
}

// Tx wraps a pgx transaction.
type Tx struct {
	tx pgx.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback rolls back the transaction.
func (t *Tx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

// PgxTx returns the underlying pgx.Tx.
func (t *Tx) PgxTx() pgx.Tx {
	return t.tx
}
