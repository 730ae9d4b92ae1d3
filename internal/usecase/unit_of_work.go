package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
)

// runInTx runs fn inside one unit of work and commits it. The whole unit is
// re-run by the retrier on transient conflicts, so fn must not leak state
// from a failed attempt.
func runInTx(ctx context.Context, tm TransactionManager, retrier Retrier, fn func(ctx context.Context, tx Transaction) error) error {
	op := func() error {
		txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := tm.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		if err := fn(txCtx, tx); err != nil {
			return err
		}

		return tx.Commit(txCtx)
	}

	if retrier == nil {
		return op()
	}
	return retrier.Retry(ctx, op)
}

// balanceWriter performs account balance mutations, pairing each one with an
// audit row in the same unit of work. Accounts passed in must already be locked.
type balanceWriter struct {
	accounts AccountRepository
	audit    *AuditTrail
}

func (w balanceWriter) credit(ctx context.Context, tx Transaction, acc *domain.Account, amount decimal.Decimal, actor string, now time.Time) error {
	return w.set(ctx, tx, acc, acc.ApplyCredit(amount), actor, now)
}

func (w balanceWriter) debit(ctx context.Context, tx Transaction, acc *domain.Account, amount decimal.Decimal, actor string, now time.Time) error {
	if err := acc.ValidateDebit(amount); err != nil {
		return err
	}
	return w.set(ctx, tx, acc, acc.ApplyDebit(amount), actor, now)
}

func (w balanceWriter) set(ctx context.Context, tx Transaction, acc *domain.Account, balance decimal.Decimal, actor string, now time.Time) error {
	if balance.IsNegative() {
		return domain.NewReasonError(domain.ErrNegativeBalance, domain.ReasonInsufficientBalance, acc.ID, balance.String())
	}

	if err := w.accounts.UpdateBalance(ctx, tx, acc.ID, balance, now); err != nil {
		return err
	}

	oldValue := domain.JSON{"balance": acc.Balance.String(), "version": acc.Version}
	newValue := domain.JSON{"balance": balance.String(), "version": acc.Version + 1}
	if err := w.audit.Record(ctx, tx, domain.TableAccounts, acc.ID, domain.AuditOperationUpdate, oldValue, newValue, actor); err != nil {
		return err
	}

	acc.Balance = balance
	acc.Version++
	acc.UpdatedAt = now
	return nil
}

// lockAccounts locks ids and returns them keyed by id, failing with
// ErrAccountNotFound if any is missing.
func lockAccounts(ctx context.Context, repo AccountRepository, tx Transaction, ids []string) (map[string]*domain.Account, error) {
	accounts, err := repo.GetByIDsForUpdate(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, domain.NewReasonError(domain.ErrAccountNotFound, domain.ReasonNotFound, "account_id", id)
		}
	}
	return byID, nil
}

func newOutboxEvent(idGen IDGenerator, aggregateType, aggregateID, eventType string, payload map[string]any, now time.Time) *domain.OutboxEvent {
	return &domain.OutboxEvent{
		ID:            idGen.Generate(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now,
	}
}
