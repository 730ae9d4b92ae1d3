package usecase_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

func TestReconciliationUseCase_Classification(t *testing.T) {
	tests := []struct {
		name            string
		external        string
		wantStatus      domain.ReconciliationStatus
		wantDiscrepancy string
	}{
		{name: "exact match", external: "100.00000000", wantStatus: domain.ReconciliationMatched, wantDiscrepancy: "0"},
		{name: "one unit above", external: "100.00000010", wantStatus: domain.ReconciliationDiscrepancy, wantDiscrepancy: "0.0000001"},
		{name: "below", external: "99", wantStatus: domain.ReconciliationDiscrepancy, wantDiscrepancy: "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			env := newTestEnv(t, envOptions{})
			a := env.createAccount(t, "a", domain.AccountTypeOperating)
			b := env.createAccount(t, "b", domain.AccountTypeReserve)
			env.fund(t, a.ID, "60")
			env.fund(t, b.ID, "40")

			rec, err := env.recon.CreateReconciliation(ctx, usecase.CreateReconciliationInput{
				ExternalBalance: dec(tt.external),
				ExternalSource:  "custodian",
			})
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, rec.Status)
			assert.True(t, rec.InternalBalance.Equal(dec("100")))
			assert.True(t, rec.Discrepancy.Equal(dec(tt.wantDiscrepancy)), "discrepancy %s", rec.Discrepancy)
			assert.True(t, rec.Discrepancy.Equal(rec.ExternalBalance.Sub(rec.InternalBalance)))
			assert.Equal(t, domain.SystemActor, rec.PerformedBy)

			assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.ReconciliationsRecorded.WithLabelValues(string(tt.wantStatus))))
		})
	}
}

func TestReconciliationUseCase_IgnoresInactiveAccounts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})
	a := env.createAccount(t, "a", domain.AccountTypeOperating)
	b := env.createAccount(t, "b", domain.AccountTypeReserve)
	env.fund(t, a.ID, "60")
	env.fund(t, b.ID, "40")
	_, err := env.accounts.DeactivateAccount(ctx, b.ID)
	require.NoError(t, err)

	rec, err := env.recon.CreateReconciliation(ctx, usecase.CreateReconciliationInput{ExternalBalance: dec("60")})
	require.NoError(t, err)
	assert.Equal(t, domain.ReconciliationMatched, rec.Status)
}

func TestReconciliationUseCase_RejectsNegativeExternal(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, err := env.recon.CreateReconciliation(context.Background(), usecase.CreateReconciliationInput{ExternalBalance: dec("-1")})
	assert.ErrorIs(t, err, domain.ErrNegativeExternalBalance)
}

func TestReconciliationUseCase_RejectsExternalBeyondLedgerScale(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})
	a := env.createAccount(t, "a", domain.AccountTypeOperating)
	env.fund(t, a.ID, "100")

	_, err := env.recon.CreateReconciliation(ctx, usecase.CreateReconciliationInput{ExternalBalance: dec("100.000000004")})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, domain.ReasonInvalidAmount, domain.ReasonCode(err))

	_, err = env.recon.GetLatest(ctx)
	assert.ErrorIs(t, err, domain.ErrReconciliationNotFound)
}

func TestReconciliationUseCase_ZeroExternalReportsFullGap(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, envOptions{})
	a := env.createAccount(t, "a", domain.AccountTypeOperating)
	env.fund(t, a.ID, "50")

	rec, err := env.recon.CreateReconciliation(ctx, usecase.CreateReconciliationInput{ExternalBalance: dec("0")})
	require.NoError(t, err)
	assert.Equal(t, domain.ReconciliationDiscrepancy, rec.Status)
	assert.True(t, rec.DiscrepancyPercentage.Equal(dec("100")), "pct %s", rec.DiscrepancyPercentage)
}

func TestReconciliationUseCase_StatusWorkflow(t *testing.T) {
	ctx := domain.WithPrincipal(context.Background(), domain.Principal{ID: "auditor", Role: domain.RoleOperator})
	env := newTestEnv(t, envOptions{})
	a := env.createAccount(t, "a", domain.AccountTypeOperating)
	env.fund(t, a.ID, "10")

	matched, err := env.recon.CreateReconciliation(ctx, usecase.CreateReconciliationInput{ExternalBalance: dec("10")})
	require.NoError(t, err)
	gap, err := env.recon.CreateReconciliation(ctx, usecase.CreateReconciliationInput{ExternalBalance: dec("12"), Notes: "month end"})
	require.NoError(t, err)

	latest, err := env.recon.GetLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, gap.ID, latest.ID)

	unresolved, err := env.recon.ListUnresolved(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, gap.ID, unresolved[0].ID)

	_, err = env.recon.UpdateStatus(ctx, matched.ID, usecase.UpdateReconciliationStatusInput{Status: domain.ReconciliationResolved})
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)

	investigating, err := env.recon.UpdateStatus(ctx, gap.ID, usecase.UpdateReconciliationStatusInput{Status: domain.ReconciliationInvestigating})
	require.NoError(t, err)
	assert.Equal(t, domain.ReconciliationInvestigating, investigating.Status)

	resolved, err := env.recon.UpdateStatus(ctx, gap.ID, usecase.UpdateReconciliationStatusInput{
		Status:          domain.ReconciliationResolved,
		ResolutionNotes: "fee booked late",
	})
	require.NoError(t, err)
	assert.Equal(t, "auditor", resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedAt)
	assert.True(t, resolved.Discrepancy.Equal(dec("2")), "balances are immutable")

	_, err = env.recon.UpdateStatus(ctx, gap.ID, usecase.UpdateReconciliationStatusInput{Status: domain.ReconciliationInvestigating})
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)

	_, err = env.recon.UpdateStatus(ctx, gap.ID, usecase.UpdateReconciliationStatusInput{Status: "BOGUS"})
	assert.ErrorIs(t, err, domain.ErrInvalidReconciliationState)

	unresolved, err = env.recon.ListUnresolved(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	resolvedOnly, err := env.recon.ListReconciliations(ctx, usecase.ListReconciliationsInput{Status: domain.ReconciliationResolved})
	require.NoError(t, err)
	assert.Len(t, resolvedOnly, 1)

	_, err = env.recon.GetReconciliation(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrReconciliationNotFound)
}
