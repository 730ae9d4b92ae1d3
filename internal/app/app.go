// Package app assembles storage backends and use cases from configuration.
// It is shared by the HTTP server and the CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/treasury/internal/adapter/repository/postgres"
	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/infrastructure/config"
	"github.com/iho/treasury/internal/infrastructure/metrics"
	"github.com/iho/treasury/internal/infrastructure/postgres"
	"github.com/iho/treasury/internal/usecase"
)

// Repositories is one storage backend behind the use case interfaces.
type Repositories struct {
	TxManager       usecase.TransactionManager
	Retrier         usecase.Retrier
	Accounts        usecase.AccountRepository
	Transactions    usecase.TransactionRepository
	Rules           usecase.AllocationRuleRepository
	Batches         usecase.AllocationBatchRepository
	Audit           usecase.AuditRepository
	Reconciliations usecase.ReconciliationRepository
	Outbox          usecase.OutboxRepository
}

// MemoryRepositories backs every repository with store.
func MemoryRepositories(store *memory.Store) Repositories {
	return Repositories{
		TxManager:       memory.NewTxManager(store),
		Accounts:        store.Accounts(),
		Transactions:    store.Transactions(),
		Rules:           store.Rules(),
		Batches:         store.Batches(),
		Audit:           store.Audit(),
		Reconciliations: store.Reconciliations(),
		Outbox:          store.Outbox(),
	}
}

// PostgresRepositories backs every repository with pool. Retrier may be nil.
func PostgresRepositories(pool *pgxpool.Pool, txManager usecase.TransactionManager, retrier usecase.Retrier) Repositories {
	return Repositories{
		TxManager:       txManager,
		Retrier:         retrier,
		Accounts:        postgresRepo.NewAccountRepository(pool),
		Transactions:    postgresRepo.NewTransactionRepository(pool),
		Rules:           postgresRepo.NewAllocationRuleRepository(pool),
		Batches:         postgresRepo.NewAllocationBatchRepository(pool),
		Audit:           postgresRepo.NewAuditRepository(pool),
		Reconciliations: postgresRepo.NewReconciliationRepository(pool),
		Outbox:          postgresRepo.NewOutboxRepository(pool),
	}
}

// Storage is an opened backend. Pool is nil for the memory driver.
type Storage struct {
	Repos Repositories
	Pool  *pgxpool.Pool
}

// Close releases the backend's connections.
func (s *Storage) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// OpenStorage opens the backend named by cfg.StorageDriver, running
// migrations first when cfg.MigrateOnStart is set.
func OpenStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) (*Storage, error) {
	if cfg.StorageDriver == config.StorageMemory {
		logger.Warn().Msg("using in-memory storage; state is lost on exit")
		return &Storage{Repos: MemoryRepositories(memory.NewStore())}, nil
	}

	iso, err := postgresRepo.ParseIsoLevel(cfg.DatabaseIsolationLevel)
	if err != nil {
		return nil, err
	}

	if cfg.MigrateOnStart {
		if err := postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsPath, logger).Up(); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
		DatabaseURL:    cfg.DatabaseURL,
		MaxConns:       cfg.DatabaseMaxConns,
		MinConns:       cfg.DatabaseMinConns,
		ConnectTimeout: cfg.DatabaseTimeout,
	})
	if err != nil {
		return nil, err
	}

	var retries prometheus.Counter
	if m != nil {
		retries = m.DBRetries
	}
	repos := PostgresRepositories(pool,
		postgresRepo.NewTxManager(pool, iso),
		postgresRepo.NewRetrier(logger, retries))

	return &Storage{Repos: repos, Pool: pool}, nil
}

// Options configures NewServices.
type Options struct {
	Repos   Repositories
	IDGen   usecase.IDGenerator
	Cache   usecase.Cache
	Metrics *metrics.Metrics
	Logger  zerolog.Logger

	InactiveTargetPolicy domain.InactiveTargetPolicy
	FallbackAccountID    string
	AutoAllocate         bool
	ReserveTargetPercent decimal.Decimal
	TreasuryCacheTTL     time.Duration
}

// OptionsFromConfig fills the policy fields of Options from cfg.
func OptionsFromConfig(cfg *config.Config, repos Repositories) (Options, error) {
	policy, err := domain.ParseInactiveTargetPolicy(cfg.AllocationInactiveTargetPolicy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Repos:                repos,
		InactiveTargetPolicy: policy,
		FallbackAccountID:    cfg.AllocationFallbackAccount,
		AutoAllocate:         cfg.AutoAllocate,
		ReserveTargetPercent: cfg.ReserveTargetPercent,
		TreasuryCacheTTL:     cfg.TreasuryCacheTTL,
	}, nil
}

// Services holds the use cases.
type Services struct {
	Audit           *usecase.AuditTrail
	Accounts        *usecase.AccountUseCase
	Transactions    *usecase.TransactionUseCase
	Engine          *usecase.AllocationEngine
	Rules           *usecase.AllocationRuleUseCase
	Reconciliations *usecase.ReconciliationUseCase
}

// NewServices wires the use cases over opts.Repos.
func NewServices(opts Options) (*Services, error) {
	r := opts.Repos
	if opts.IDGen == nil {
		opts.IDGen = postgresRepo.NewULIDGenerator()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}

	audit := usecase.NewAuditTrail(r.Audit, opts.IDGen, opts.Metrics)

	engine, err := usecase.NewAllocationEngine(usecase.AllocationEngineConfig{
		TxManager:            r.TxManager,
		AccountRepo:          r.Accounts,
		TransactionRepo:      r.Transactions,
		RuleRepo:             r.Rules,
		BatchRepo:            r.Batches,
		OutboxRepo:           r.Outbox,
		Audit:                audit,
		IDGen:                opts.IDGen,
		Retrier:              r.Retrier,
		Cache:                opts.Cache,
		Metrics:              opts.Metrics,
		Logger:               opts.Logger,
		InactiveTargetPolicy: opts.InactiveTargetPolicy,
		FallbackAccountID:    opts.FallbackAccountID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build allocation engine: %w", err)
	}

	return &Services{
		Audit: audit,
		Accounts: usecase.NewAccountUseCase(usecase.AccountUseCaseConfig{
			TxManager:            r.TxManager,
			AccountRepo:          r.Accounts,
			Audit:                audit,
			Cache:                opts.Cache,
			IDGen:                opts.IDGen,
			Metrics:              opts.Metrics,
			Logger:               opts.Logger,
			CacheTTL:             opts.TreasuryCacheTTL,
			ReserveTargetPercent: opts.ReserveTargetPercent,
		}),
		Transactions: usecase.NewTransactionUseCase(usecase.TransactionUseCaseConfig{
			TxManager:       r.TxManager,
			AccountRepo:     r.Accounts,
			TransactionRepo: r.Transactions,
			OutboxRepo:      r.Outbox,
			Audit:           audit,
			IDGen:           opts.IDGen,
			Allocator:       engine,
			AutoAllocate:    opts.AutoAllocate,
			Retrier:         r.Retrier,
			Cache:           opts.Cache,
			Metrics:         opts.Metrics,
			Logger:          opts.Logger,
		}),
		Engine: engine,
		Rules: usecase.NewAllocationRuleUseCase(r.TxManager, r.Rules, r.Accounts, r.Outbox,
			audit, opts.IDGen, opts.Metrics, opts.Logger),
		Reconciliations: usecase.NewReconciliationUseCase(r.TxManager, r.Accounts, r.Reconciliations, r.Outbox,
			audit, opts.IDGen, opts.Metrics, opts.Logger),
	}, nil
}
