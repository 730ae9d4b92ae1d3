package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iho/treasury/internal/adapter/repository/memory"
	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/infrastructure/metrics"
	"github.com/iho/treasury/internal/usecase"
)

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%05d", g.n)
}

type envOptions struct {
	policy          domain.InactiveTargetPolicy
	fallback        string
	autoAllocate    bool
	wrapTransaction func(usecase.TransactionRepository) usecase.TransactionRepository
	cache           usecase.Cache
}

type testEnv struct {
	store        *memory.Store
	tm           usecase.TransactionManager
	ids          *seqIDs
	metrics      *metrics.Metrics
	audit        *usecase.AuditTrail
	accounts     *usecase.AccountUseCase
	transactions *usecase.TransactionUseCase
	engine       *usecase.AllocationEngine
	rules        *usecase.AllocationRuleUseCase
	recon        *usecase.ReconciliationUseCase
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	store := memory.NewStore()
	tm := memory.NewTxManager(store)
	ids := &seqIDs{}
	m := metrics.New(prometheus.NewRegistry())
	logger := zerolog.Nop()

	var txRepo usecase.TransactionRepository = store.Transactions()
	if opts.wrapTransaction != nil {
		txRepo = opts.wrapTransaction(txRepo)
	}

	audit := usecase.NewAuditTrail(store.Audit(), ids, m)

	engine, err := usecase.NewAllocationEngine(usecase.AllocationEngineConfig{
		TxManager:            tm,
		AccountRepo:          store.Accounts(),
		TransactionRepo:      txRepo,
		RuleRepo:             store.Rules(),
		BatchRepo:            store.Batches(),
		OutboxRepo:           store.Outbox(),
		Audit:                audit,
		IDGen:                ids,
		Cache:                opts.cache,
		Metrics:              m,
		Logger:               logger,
		InactiveTargetPolicy: opts.policy,
		FallbackAccountID:    opts.fallback,
	})
	require.NoError(t, err)

	return &testEnv{
		store:   store,
		tm:      tm,
		ids:     ids,
		metrics: m,
		audit:   audit,
		accounts: usecase.NewAccountUseCase(usecase.AccountUseCaseConfig{
			TxManager:            tm,
			AccountRepo:          store.Accounts(),
			Audit:                audit,
			Cache:                opts.cache,
			IDGen:                ids,
			Metrics:              m,
			Logger:               logger,
			ReserveTargetPercent: decimal.NewFromInt(20),
		}),
		transactions: usecase.NewTransactionUseCase(usecase.TransactionUseCaseConfig{
			TxManager:       tm,
			AccountRepo:     store.Accounts(),
			TransactionRepo: txRepo,
			OutboxRepo:      store.Outbox(),
			Audit:           audit,
			IDGen:           ids,
			Allocator:       engine,
			AutoAllocate:    opts.autoAllocate,
			Cache:           opts.cache,
			Metrics:         m,
			Logger:          logger,
		}),
		engine: engine,
		rules:  usecase.NewAllocationRuleUseCase(tm, store.Rules(), store.Accounts(), store.Outbox(), audit, ids, m, logger),
		recon:  usecase.NewReconciliationUseCase(tm, store.Accounts(), store.Reconciliations(), store.Outbox(), audit, ids, m, logger),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (e *testEnv) createAccount(t *testing.T, name string, typ domain.AccountType) *domain.Account {
	t.Helper()
	acc, err := e.accounts.CreateAccount(context.Background(), usecase.CreateAccountInput{Name: name, Type: typ})
	require.NoError(t, err)
	return acc
}

// fund records a completed deposit without triggering allocation.
func (e *testEnv) fund(t *testing.T, accountID, amount string) *domain.Transaction {
	t.Helper()
	out, err := e.transactions.CreateTransaction(context.Background(), usecase.CreateTransactionInput{
		Type:        domain.TransactionTypeExternalDeposit,
		ToAccountID: accountID,
		Amount:      dec(amount),
		Status:      domain.TransactionStatusCompleted,
	})
	require.NoError(t, err)
	return out.Transaction
}

func (e *testEnv) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	acc, err := e.accounts.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

func (e *testEnv) total(t *testing.T) decimal.Decimal {
	t.Helper()
	accounts, err := e.accounts.ListAccounts(context.Background(), usecase.ListAccountsInput{IncludeInactive: true, Limit: domain.MaxPageSize})
	require.NoError(t, err)
	sum := decimal.Zero
	for _, a := range accounts {
		sum = sum.Add(a.Balance)
	}
	return sum
}

func entries(pairs ...any) []domain.AllocationEntry {
	out := make([]domain.AllocationEntry, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, domain.AllocationEntry{
			AccountID:  pairs[i].(string),
			Percentage: dec(pairs[i+1].(string)),
		})
	}
	return out
}

// failingCreates fails the n-th allocation child insert.
type failingCreates struct {
	usecase.TransactionRepository
	failOn int
	seen   int
}

func (f *failingCreates) Create(ctx context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	if t.Type == domain.TransactionTypeInternalAllocation {
		f.seen++
		if f.seen == f.failOn {
			return fmt.Errorf("injected failure on child %d", f.seen)
		}
	}
	return f.TransactionRepository.Create(ctx, tx, t)
}
