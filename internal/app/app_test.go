package app

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/infrastructure/config"
	"github.com/iho/treasury/internal/usecase"
)

func TestOpenStorage_MemoryDriver(t *testing.T) {
	cfg := &config.Config{StorageDriver: config.StorageMemory}

	storage, err := OpenStorage(context.Background(), cfg, zerolog.Nop(), nil)
	require.NoError(t, err)
	defer storage.Close()

	assert.Nil(t, storage.Pool)
	assert.NotNil(t, storage.Repos.TxManager)
	assert.Nil(t, storage.Repos.Retrier)
}

func TestOpenStorage_RejectsUnknownIsolationLevel(t *testing.T) {
	cfg := &config.Config{StorageDriver: config.StoragePostgres, DatabaseIsolationLevel: "chaos"}

	_, err := OpenStorage(context.Background(), cfg, zerolog.Nop(), nil)
	assert.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		AllocationInactiveTargetPolicy: "fallback",
		AllocationFallbackAccount:      "acc-ops",
		AutoAllocate:                   true,
		ReserveTargetPercent:           decimal.NewFromInt(25),
	}

	opts, err := OptionsFromConfig(cfg, Repositories{})
	require.NoError(t, err)
	assert.Equal(t, domain.InactiveTargetFallback, opts.InactiveTargetPolicy)
	assert.Equal(t, "acc-ops", opts.FallbackAccountID)
	assert.True(t, opts.AutoAllocate)

	cfg.AllocationInactiveTargetPolicy = "ignore"
	_, err = OptionsFromConfig(cfg, Repositories{})
	assert.Error(t, err)
}

func TestNewServices_FallbackRequiresAccount(t *testing.T) {
	storage, err := OpenStorage(context.Background(), &config.Config{StorageDriver: config.StorageMemory}, zerolog.Nop(), nil)
	require.NoError(t, err)

	_, err = NewServices(Options{Repos: storage.Repos, InactiveTargetPolicy: domain.InactiveTargetFallback})
	assert.Error(t, err)
}

func TestNewServices_DepositIsAllocated(t *testing.T) {
	ctx := context.Background()
	storage, err := OpenStorage(ctx, &config.Config{StorageDriver: config.StorageMemory}, zerolog.Nop(), nil)
	require.NoError(t, err)

	svc, err := NewServices(Options{
		Repos:                storage.Repos,
		Logger:               zerolog.Nop(),
		AutoAllocate:         true,
		ReserveTargetPercent: decimal.NewFromInt(20),
	})
	require.NoError(t, err)

	ops, err := svc.Accounts.CreateAccount(ctx, usecase.CreateAccountInput{Name: "ops", Type: domain.AccountTypeOperating})
	require.NoError(t, err)
	reserve, err := svc.Accounts.CreateAccount(ctx, usecase.CreateAccountInput{Name: "reserve", Type: domain.AccountTypeReserve})
	require.NoError(t, err)

	_, err = svc.Rules.CreateRule(ctx, usecase.CreateRuleInput{
		Name:        "split",
		TriggerType: domain.TransactionTypeExternalDeposit,
		Entries: []domain.AllocationEntry{
			{AccountID: ops.ID, Percentage: decimal.NewFromInt(80)},
			{AccountID: reserve.ID, Percentage: decimal.NewFromInt(20)},
		},
	})
	require.NoError(t, err)

	out, err := svc.Transactions.CreateTransaction(ctx, usecase.CreateTransactionInput{
		Type:        domain.TransactionTypeExternalDeposit,
		ToAccountID: ops.ID,
		Amount:      decimal.NewFromInt(100),
		Status:      domain.TransactionStatusCompleted,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Allocation)
	assert.Equal(t, usecase.AllocationApplied, out.Allocation.Status)

	got, err := svc.Accounts.GetAccount(ctx, reserve.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(20)), "reserve balance %s", got.Balance)
}
