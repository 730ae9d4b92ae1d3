package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/infrastructure/metrics"
)

// Allocator applies allocation rules to a completed deposit.
type Allocator interface {
	ApplyAllocations(ctx context.Context, parentID, actor string) (*AllocationResult, error)
}

// TransactionUseCase records value movements and drives their lifecycle.
type TransactionUseCase struct {
	txManager       TransactionManager
	accountRepo     AccountRepository
	transactionRepo TransactionRepository
	outboxRepo      OutboxRepository
	audit           *AuditTrail
	idGen           IDGenerator
	allocator       Allocator
	autoAllocate    bool
	retrier         Retrier
	cache           Cache
	metrics         *metrics.Metrics
	logger          zerolog.Logger
}

// TransactionUseCaseConfig holds TransactionUseCase dependencies.
// Allocator, Retrier, Cache and Metrics are optional.
type TransactionUseCaseConfig struct {
	TxManager       TransactionManager
	AccountRepo     AccountRepository
	TransactionRepo TransactionRepository
	OutboxRepo      OutboxRepository
	Audit           *AuditTrail
	IDGen           IDGenerator
	Allocator       Allocator
	// AutoAllocate runs the allocator after a deposit completes.
	AutoAllocate bool
	Retrier      Retrier
	Cache        Cache
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
}

// NewTransactionUseCase creates a new TransactionUseCase.
func NewTransactionUseCase(cfg TransactionUseCaseConfig) *TransactionUseCase {
	return &TransactionUseCase{
		txManager:       cfg.TxManager,
		accountRepo:     cfg.AccountRepo,
		transactionRepo: cfg.TransactionRepo,
		outboxRepo:      cfg.OutboxRepo,
		audit:           cfg.Audit,
		idGen:           cfg.IDGen,
		allocator:       cfg.Allocator,
		autoAllocate:    cfg.AutoAllocate && cfg.Allocator != nil,
		retrier:         cfg.Retrier,
		cache:           cfg.Cache,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
	}
}

// CreateTransactionInput represents input for recording a transaction.
type CreateTransactionInput struct {
	Type              domain.TransactionType
	FromAccountID     string
	ToAccountID       string
	Amount            decimal.Decimal
	Status            domain.TransactionStatus
	ExternalReference string
	Description       string
	Metadata          map[string]any
}

// TransactionOutcome is the result of a call that may complete a transaction.
// Allocation is set when a completed deposit was fanned out. AllocationError
// is set when the deposit committed but its allocation did not; the deposit
// stays completed and allocation can be retried.
type TransactionOutcome struct {
	Transaction     *domain.Transaction `json:"transaction"`
	Allocation      *AllocationResult   `json:"allocation,omitempty"`
	AllocationError error               `json:"-"`
}

// CreateTransaction records a transaction. It starts PENDING unless the input
// asks for COMPLETED, in which case balances move in the same unit of work.
func (uc *TransactionUseCase) CreateTransaction(ctx context.Context, input CreateTransactionInput) (*TransactionOutcome, error) {
	if input.Type == domain.TransactionTypeInternalAllocation {
		return nil, domain.NewReasonError(domain.ErrInvalidTransactionType, domain.ReasonInvalidType, "type",
			"allocation transactions are created by the allocation engine only")
	}

	status := input.Status
	if status == "" {
		status = domain.TransactionStatusPending
	}
	if status != domain.TransactionStatusPending && status != domain.TransactionStatusCompleted {
		return nil, domain.NewReasonError(domain.ErrInvalidTransactionStatus, domain.ReasonInvalidStatus, "status",
			"new transactions must be PENDING or COMPLETED")
	}

	actor := domain.ActorFromContext(ctx, domain.SystemActor)
	now := time.Now().UTC()

	t := &domain.Transaction{
		ID:                uc.idGen.Generate(),
		Type:              input.Type,
		FromAccountID:     domain.StringPtr(strings.TrimSpace(input.FromAccountID)),
		ToAccountID:       domain.StringPtr(strings.TrimSpace(input.ToAccountID)),
		Amount:            input.Amount,
		Status:            status,
		ExternalReference: strings.TrimSpace(input.ExternalReference),
		Description:       input.Description,
		Metadata:          input.Metadata,
		PerformedBy:       actor,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if status == domain.TransactionStatusCompleted {
		t.CompletedAt = &now
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	err := runInTx(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		accounts, err := lockAccounts(ctx, uc.accountRepo, tx, t.AccountIDs())
		if err != nil {
			return err
		}
		for _, acc := range accounts {
			if !acc.IsActive {
				return domain.NewReasonError(domain.ErrAccountInactive, domain.ReasonInactiveAccount, "account_id", acc.ID)
			}
		}

		if err := uc.transactionRepo.Create(ctx, tx, t); err != nil {
			return err
		}
		if err := uc.audit.Record(ctx, tx, domain.TableTransactions, t.ID, domain.AuditOperationCreate, nil, t, actor); err != nil {
			return err
		}

		if t.Status != domain.TransactionStatusCompleted {
			return nil
		}
		return uc.complete(ctx, tx, t, accounts, actor, now)
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.TransactionsCreated.WithLabelValues(string(t.Type), string(t.Status)).Inc()
		uc.metrics.TransactionAmount.WithLabelValues(string(t.Type)).Observe(t.Amount.InexactFloat64())
	}

	uc.logger.Info().
		Str("transaction_id", t.ID).
		Str("type", string(t.Type)).
		Str("status", string(t.Status)).
		Str("amount", t.Amount.String()).
		Msg("transaction recorded")

	return uc.afterCommit(ctx, t, actor), nil
}

// CompleteTransaction moves a PENDING transaction to COMPLETED and applies
// its balance effects atomically.
func (uc *TransactionUseCase) CompleteTransaction(ctx context.Context, id string) (*TransactionOutcome, error) {
	actor := domain.ActorFromContext(ctx, domain.SystemActor)

	var t *domain.Transaction
	err := runInTx(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		current, err := uc.transactionRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(current, domain.TransactionStatusCompleted); err != nil {
			return err
		}

		accounts, err := lockAccounts(ctx, uc.accountRepo, tx, current.AccountIDs())
		if err != nil {
			return err
		}
		for _, acc := range accounts {
			if !acc.IsActive {
				return domain.NewReasonError(domain.ErrAccountInactive, domain.ReasonInactiveAccount, "account_id", acc.ID)
			}
		}

		now := time.Now().UTC()
		if err := uc.transactionRepo.UpdateStatus(ctx, tx, id, domain.TransactionStatusCompleted, now, &now); err != nil {
			return err
		}
		if err := uc.audit.Record(ctx, tx, domain.TableTransactions, id, domain.AuditOperationUpdate,
			domain.JSON{"status": current.Status},
			domain.JSON{"status": domain.TransactionStatusCompleted, "completed_at": now}, actor); err != nil {
			return err
		}

		current.Status = domain.TransactionStatusCompleted
		current.UpdatedAt = now
		current.CompletedAt = &now

		if err := uc.complete(ctx, tx, current, accounts, actor, now); err != nil {
			return err
		}
		t = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.TransactionsCompleted.WithLabelValues(string(t.Type), string(t.Status)).Inc()
	}

	return uc.afterCommit(ctx, t, actor), nil
}

// FailTransaction moves a PENDING transaction to FAILED. Balances are untouched.
func (uc *TransactionUseCase) FailTransaction(ctx context.Context, id, reason string) (*domain.Transaction, error) {
	return uc.close(ctx, id, domain.TransactionStatusFailed, reason)
}

// CancelTransaction moves a PENDING transaction to CANCELLED. Balances are untouched.
func (uc *TransactionUseCase) CancelTransaction(ctx context.Context, id, reason string) (*domain.Transaction, error) {
	return uc.close(ctx, id, domain.TransactionStatusCancelled, reason)
}

func (uc *TransactionUseCase) close(ctx context.Context, id string, status domain.TransactionStatus, reason string) (*domain.Transaction, error) {
	actor := domain.ActorFromContext(ctx, domain.SystemActor)

	var t *domain.Transaction
	err := runInTx(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		current, err := uc.transactionRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(current, status); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := uc.transactionRepo.UpdateStatus(ctx, tx, id, status, now, nil); err != nil {
			return err
		}

		newValue := domain.JSON{"status": status}
		if reason != "" {
			newValue["reason"] = reason
		}
		if err := uc.audit.Record(ctx, tx, domain.TableTransactions, id, domain.AuditOperationUpdate,
			domain.JSON{"status": current.Status}, newValue, actor); err != nil {
			return err
		}

		current.Status = status
		current.UpdatedAt = now
		t = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.TransactionsCompleted.WithLabelValues(string(t.Type), string(t.Status)).Inc()
	}
	return t, nil
}

// GetTransaction retrieves a transaction by ID.
func (uc *TransactionUseCase) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return uc.transactionRepo.GetByID(ctx, id)
}

// ListTransactions lists transactions newest first.
func (uc *TransactionUseCase) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	filter.Limit, filter.Offset = domain.ValidatePagination(filter.Limit, filter.Offset)
	return uc.transactionRepo.List(ctx, filter)
}

// AllocationSummary lists the allocation children of a transaction.
type AllocationSummary struct {
	ParentTransactionID string                `json:"parent_transaction_id"`
	ChildTransactionIDs []string              `json:"child_transaction_ids"`
	TotalAllocated      decimal.Decimal       `json:"total_allocated"`
	AllocationCount     int                   `json:"allocation_count"`
	Children            []*domain.Transaction `json:"children"`
}

// GetAllocations returns the allocation children of parentID.
func (uc *TransactionUseCase) GetAllocations(ctx context.Context, parentID string) (*AllocationSummary, error) {
	if _, err := uc.transactionRepo.GetByID(ctx, parentID); err != nil {
		return nil, err
	}

	children, err := uc.transactionRepo.List(ctx, domain.TransactionFilter{
		ParentTransactionID: parentID,
		Limit:               domain.MaxPageSize,
	})
	if err != nil {
		return nil, err
	}

	summary := &AllocationSummary{
		ParentTransactionID: parentID,
		ChildTransactionIDs: make([]string, 0, len(children)),
		TotalAllocated:      decimal.Zero,
		AllocationCount:     len(children),
		Children:            children,
	}
	for _, c := range children {
		summary.ChildTransactionIDs = append(summary.ChildTransactionIDs, c.ID)
		summary.TotalAllocated = summary.TotalAllocated.Add(c.Amount)
	}
	return summary, nil
}

// complete applies the balance effects of t, which must already be COMPLETED,
// and queues the completion event.
func (uc *TransactionUseCase) complete(ctx context.Context, tx Transaction, t *domain.Transaction, accounts map[string]*domain.Account, actor string, now time.Time) error {
	writer := balanceWriter{accounts: uc.accountRepo, audit: uc.audit}

	switch t.Type {
	case domain.TransactionTypeExternalDeposit:
		if err := writer.credit(ctx, tx, accounts[*t.ToAccountID], t.Amount, actor, now); err != nil {
			return err
		}
	case domain.TransactionTypeExternalWithdrawal:
		if err := writer.debit(ctx, tx, accounts[*t.FromAccountID], t.Amount, actor, now); err != nil {
			return err
		}
	case domain.TransactionTypeInternalTransfer:
		if err := writer.debit(ctx, tx, accounts[*t.FromAccountID], t.Amount, actor, now); err != nil {
			return err
		}
		if err := writer.credit(ctx, tx, accounts[*t.ToAccountID], t.Amount, actor, now); err != nil {
			return err
		}
	default:
		return fmt.Errorf("complete %s: %w", t.ID, domain.ErrInvalidTransactionType)
	}

	event := newOutboxEvent(uc.idGen, domain.AggregateTypeTransaction, t.ID, domain.EventTypeTransactionCompleted, map[string]any{
		"transaction_id":  t.ID,
		"type":            t.Type,
		"amount":          t.Amount.String(),
		"from_account_id": domain.StringValue(t.FromAccountID),
		"to_account_id":   domain.StringValue(t.ToAccountID),
	}, now)
	return uc.outboxRepo.Create(ctx, tx, event)
}

// afterCommit invalidates cached views and, for completed deposits, runs the
// allocator in its own unit of work.
func (uc *TransactionUseCase) afterCommit(ctx context.Context, t *domain.Transaction, actor string) *TransactionOutcome {
	outcome := &TransactionOutcome{Transaction: t}
	if t.Status != domain.TransactionStatusCompleted {
		return outcome
	}

	invalidateTreasuryStatus(ctx, uc.cache, uc.logger)

	if !uc.autoAllocate || !t.IsAllocatable() {
		return outcome
	}

	result, err := uc.allocator.ApplyAllocations(ctx, t.ID, actor)
	if err != nil {
		uc.logger.Error().Err(err).
			Str("transaction_id", t.ID).
			Msg("deposit completed but allocation failed")
		outcome.AllocationError = err
		return outcome
	}
	outcome.Allocation = result
	return outcome
}

func checkTransition(t *domain.Transaction, next domain.TransactionStatus) error {
	if !t.Status.CanTransitionTo(next) {
		return domain.NewReasonError(domain.ErrInvalidStatusTransition, domain.ReasonStatusTransition, "status",
			fmt.Sprintf("%s -> %s", t.Status, next))
	}
	return nil
}
