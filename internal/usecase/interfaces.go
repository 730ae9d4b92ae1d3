package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
)

// AccountRepository defines data access for logical accounts.
type AccountRepository interface {
	Create(ctx context.Context, tx Transaction, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByName(ctx context.Context, name string) (*domain.Account, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Account, error)
	// GetByIDsForUpdate locks the given accounts in id order. Missing ids are omitted.
	GetByIDsForUpdate(ctx context.Context, tx Transaction, ids []string) ([]*domain.Account, error)
	UpdateBalance(ctx context.Context, tx Transaction, id string, balance decimal.Decimal, updatedAt time.Time) error
	SetActive(ctx context.Context, tx Transaction, id string, active bool, updatedAt time.Time) error
	List(ctx context.Context, filter domain.AccountFilter) ([]*domain.Account, error)
	// SumActiveBalances returns the total balance and count of active accounts.
	SumActiveBalances(ctx context.Context, tx Transaction) (decimal.Decimal, int, error)
}

// TransactionRepository defines data access for ledger transactions.
type TransactionRepository interface {
	Create(ctx context.Context, tx Transaction, t *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, tx Transaction, id string, status domain.TransactionStatus, updatedAt time.Time, completedAt *time.Time) error
	List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error)
	// ListChildren returns allocation children of parentID in creation order.
	ListChildren(ctx context.Context, tx Transaction, parentID string) ([]*domain.Transaction, error)
}

// AllocationRuleRepository defines data access for allocation rules.
type AllocationRuleRepository interface {
	Create(ctx context.Context, tx Transaction, rule *domain.AllocationRule) error
	Update(ctx context.Context, tx Transaction, rule *domain.AllocationRule) error
	GetByID(ctx context.Context, id string) (*domain.AllocationRule, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.AllocationRule, error)
	List(ctx context.Context, activeOnly bool) ([]*domain.AllocationRule, error)
	// ListActiveByTrigger returns active rules for trigger ordered by priority
	// descending, then creation time ascending.
	ListActiveByTrigger(ctx context.Context, tx Transaction, trigger domain.TransactionType) ([]*domain.AllocationRule, error)
}

// AllocationBatchRepository stores the one-per-parent allocation marker.
type AllocationBatchRepository interface {
	// Insert fails with domain.ErrAllocationAlreadyDone if a marker exists for the parent.
	Insert(ctx context.Context, tx Transaction, batch *domain.AllocationBatch) error
	Complete(ctx context.Context, tx Transaction, parentID string, childCount int, total decimal.Decimal) error
	Get(ctx context.Context, parentID string) (*domain.AllocationBatch, error)
}

// AuditRepository defines data access for audit logs.
type AuditRepository interface {
	Create(ctx context.Context, tx Transaction, log *domain.AuditLog) error
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error)
}

// ReconciliationRepository defines data access for reconciliation records.
type ReconciliationRepository interface {
	Create(ctx context.Context, tx Transaction, rec *domain.Reconciliation) error
	GetByID(ctx context.Context, id string) (*domain.Reconciliation, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Reconciliation, error)
	GetLatest(ctx context.Context) (*domain.Reconciliation, error)
	List(ctx context.Context, filter domain.ReconciliationFilter) ([]*domain.Reconciliation, error)
	// UpdateStatus persists the status and resolution fields of rec; balances are never rewritten.
	UpdateStatus(ctx context.Context, tx Transaction, rec *domain.Reconciliation) error
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	DeletePublished(ctx context.Context, before time.Time) error
}

// Transaction represents a unit of work.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles unit-of-work lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier re-runs an operation on transient storage conflicts.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a placeholder so a failed request can be retried.
	Release(ctx context.Context, key string) error
}
