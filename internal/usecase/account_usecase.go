package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/infrastructure/metrics"
)

// AccountUseCase handles account administration and the treasury status view.
type AccountUseCase struct {
	txManager     TransactionManager
	accountRepo   AccountRepository
	audit         *AuditTrail
	cache         Cache
	idGen         IDGenerator
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	cacheTTL      time.Duration
	reserveTarget decimal.Decimal
}

// AccountUseCaseConfig holds AccountUseCase dependencies. Cache and Metrics are optional.
type AccountUseCaseConfig struct {
	TxManager   TransactionManager
	AccountRepo AccountRepository
	Audit       *AuditTrail
	Cache       Cache
	IDGen       IDGenerator
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
	CacheTTL    time.Duration
	// ReserveTargetPercent is the share of the treasury the reserve accounts should hold.
	ReserveTargetPercent decimal.Decimal
}

// NewAccountUseCase creates a new AccountUseCase.
func NewAccountUseCase(cfg AccountUseCaseConfig) *AccountUseCase {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultTreasuryCacheTTL
	}
	return &AccountUseCase{
		txManager:     cfg.TxManager,
		accountRepo:   cfg.AccountRepo,
		audit:         cfg.Audit,
		cache:         cfg.Cache,
		idGen:         cfg.IDGen,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		cacheTTL:      cfg.CacheTTL,
		reserveTarget: cfg.ReserveTargetPercent,
	}
}

// CreateAccountInput represents input for creating an account.
type CreateAccountInput struct {
	Name        string
	Type        domain.AccountType
	Description string
	Metadata    map[string]any
}

// CreateAccount creates a new account with a zero balance.
func (uc *AccountUseCase) CreateAccount(ctx context.Context, input CreateAccountInput) (*domain.Account, error) {
	now := time.Now().UTC()

	account := &domain.Account{
		ID:          uc.idGen.Generate(),
		Name:        strings.TrimSpace(input.Name),
		Type:        domain.AccountType(strings.ToUpper(strings.TrimSpace(string(input.Type)))),
		Balance:     decimal.Zero,
		IsActive:    true,
		Description: input.Description,
		Metadata:    input.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := account.Validate(); err != nil {
		return nil, err
	}

	actor := domain.ActorFromContext(ctx, domain.SystemActor)
	err := runInTx(ctx, uc.txManager, nil, func(ctx context.Context, tx Transaction) error {
		if err := uc.accountRepo.Create(ctx, tx, account); err != nil {
			return err
		}
		return uc.audit.Record(ctx, tx, domain.TableAccounts, account.ID, domain.AuditOperationCreate, nil, account, actor)
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.AccountsCreated.Inc()
	}
	invalidateTreasuryStatus(ctx, uc.cache, uc.logger)

	return account, nil
}

// GetAccount retrieves an account by ID.
func (uc *AccountUseCase) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return uc.accountRepo.GetByID(ctx, id)
}

// GetAccountByName retrieves an account by its unique name.
func (uc *AccountUseCase) GetAccountByName(ctx context.Context, name string) (*domain.Account, error) {
	return uc.accountRepo.GetByName(ctx, strings.TrimSpace(name))
}

// ListAccountsInput represents input for listing accounts.
type ListAccountsInput struct {
	IncludeInactive bool
	Type            domain.AccountType
	Limit           int
	Offset          int
}

// ListAccounts lists accounts ordered by name.
func (uc *AccountUseCase) ListAccounts(ctx context.Context, input ListAccountsInput) ([]*domain.Account, error) {
	limit, offset := domain.ValidatePagination(input.Limit, input.Offset)
	return uc.accountRepo.List(ctx, domain.AccountFilter{
		IncludeInactive: input.IncludeInactive,
		Type:            input.Type,
		Limit:           limit,
		Offset:          offset,
	})
}

// DeactivateAccount retires an account. Its balance and history are kept.
func (uc *AccountUseCase) DeactivateAccount(ctx context.Context, id string) (*domain.Account, error) {
	return uc.setActive(ctx, id, false)
}

// ReactivateAccount brings a retired account back into service.
func (uc *AccountUseCase) ReactivateAccount(ctx context.Context, id string) (*domain.Account, error) {
	return uc.setActive(ctx, id, true)
}

func (uc *AccountUseCase) setActive(ctx context.Context, id string, active bool) (*domain.Account, error) {
	actor := domain.ActorFromContext(ctx, domain.SystemActor)

	var account *domain.Account
	err := runInTx(ctx, uc.txManager, nil, func(ctx context.Context, tx Transaction) error {
		acc, err := uc.accountRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if acc.IsActive == active {
			account = acc
			return nil
		}

		now := time.Now().UTC()
		if err := uc.accountRepo.SetActive(ctx, tx, id, active, now); err != nil {
			return err
		}

		oldValue := domain.JSON{"is_active": acc.IsActive}
		acc.IsActive = active
		acc.UpdatedAt = now
		if err := uc.audit.Record(ctx, tx, domain.TableAccounts, id, domain.AuditOperationUpdate,
			oldValue, domain.JSON{"is_active": active}, actor); err != nil {
			return err
		}

		account = acc
		return nil
	})
	if err != nil {
		return nil, err
	}

	invalidateTreasuryStatus(ctx, uc.cache, uc.logger)
	return account, nil
}

// AccountShare is one account's slice of the treasury.
type AccountShare struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Type       domain.AccountType `json:"type"`
	Balance    decimal.Decimal    `json:"balance"`
	Percentage decimal.Decimal    `json:"percentage"`
}

// ReserveStatus reports how the reserve accounts compare with their target share.
type ReserveStatus struct {
	TargetPercentage decimal.Decimal `json:"target_percentage"`
	Balance          decimal.Decimal `json:"balance"`
	ActualPercentage decimal.Decimal `json:"actual_percentage"`
	IsHealthy        bool            `json:"is_healthy"`
}

// TreasuryStatus is a point-in-time view over active accounts.
type TreasuryStatus struct {
	TotalBalance   decimal.Decimal `json:"total_balance"`
	ActiveAccounts int             `json:"active_accounts"`
	Accounts       []AccountShare  `json:"accounts"`
	Reserve        ReserveStatus   `json:"reserve"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// reserveHealthFactor is the fraction of the target reserve share below which
// the reserve is reported unhealthy.
var reserveHealthFactor = decimal.RequireFromString("0.9")

// TreasuryStatus returns the treasury view, served from cache when fresh.
func (uc *AccountUseCase) TreasuryStatus(ctx context.Context) (*TreasuryStatus, error) {
	if uc.cache != nil {
		if raw, err := uc.cache.Get(ctx, treasuryStatusCacheKey); err == nil && len(raw) > 0 {
			var status TreasuryStatus
			if err := json.Unmarshal(raw, &status); err == nil {
				uc.observeCache("hit")
				return &status, nil
			}
		}
		uc.observeCache("miss")
	}

	accounts, err := uc.accountRepo.List(ctx, domain.AccountFilter{Limit: domain.MaxPageSize})
	if err != nil {
		return nil, err
	}

	status := buildTreasuryStatus(accounts, uc.reserveTarget)

	if uc.metrics != nil {
		uc.metrics.TreasuryBalance.Set(status.TotalBalance.InexactFloat64())
	}

	if uc.cache != nil {
		if raw, err := json.Marshal(status); err == nil {
			if err := uc.cache.Set(ctx, treasuryStatusCacheKey, raw, uc.cacheTTL); err != nil {
				uc.logger.Warn().Err(err).Msg("failed to cache treasury status")
			}
		}
	}

	return status, nil
}

func buildTreasuryStatus(accounts []*domain.Account, reserveTarget decimal.Decimal) *TreasuryStatus {
	status := &TreasuryStatus{
		TotalBalance: decimal.Zero,
		Accounts:     make([]AccountShare, 0, len(accounts)),
		GeneratedAt:  time.Now().UTC(),
	}

	reserve := decimal.Zero
	for _, a := range accounts {
		if !a.IsActive {
			continue
		}
		status.ActiveAccounts++
		status.TotalBalance = status.TotalBalance.Add(a.Balance)
		if a.Type == domain.AccountTypeReserve {
			reserve = reserve.Add(a.Balance)
		}
	}

	for _, a := range accounts {
		if !a.IsActive {
			continue
		}
		share := AccountShare{ID: a.ID, Name: a.Name, Type: a.Type, Balance: a.Balance, Percentage: decimal.Zero}
		if status.TotalBalance.IsPositive() {
			share.Percentage = a.Balance.Div(status.TotalBalance).Mul(decimal.NewFromInt(100)).Round(4)
		}
		status.Accounts = append(status.Accounts, share)
	}

	status.Reserve = ReserveStatus{
		TargetPercentage: reserveTarget,
		Balance:          reserve,
		ActualPercentage: decimal.Zero,
		IsHealthy:        true,
	}
	if status.TotalBalance.IsPositive() {
		actual := reserve.Div(status.TotalBalance).Mul(decimal.NewFromInt(100)).Round(4)
		status.Reserve.ActualPercentage = actual
		status.Reserve.IsHealthy = actual.GreaterThanOrEqual(reserveTarget.Mul(reserveHealthFactor))
	}

	return status
}

func (uc *AccountUseCase) observeCache(result string) {
	if uc.metrics != nil {
		uc.metrics.TreasuryCacheLookup.WithLabelValues(result).Inc()
	}
}

// invalidateTreasuryStatus drops the cached status after balances change.
// Failures only cost freshness, so they are logged and ignored.
func invalidateTreasuryStatus(ctx context.Context, cache Cache, logger zerolog.Logger) {
	if cache == nil {
		return
	}
	if err := cache.Delete(ctx, treasuryStatusCacheKey); err != nil {
		logger.Warn().Err(err).Msg("failed to invalidate treasury status cache")
	}
}
