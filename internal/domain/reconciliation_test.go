package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		external   string
		internal   string
		wantDiff   string
		wantStatus ReconciliationStatus
	}{
		{"equal", "100.00000000", "100.00000000", "0", ReconciliationMatched},
		{"one unit over", "100.00000010", "100.00000000", "0.0000001", ReconciliationDiscrepancy},
		{"smallest unit", "100.00000001", "100.00000000", "0.00000001", ReconciliationDiscrepancy},
		{"short external", "99", "100", "-1", ReconciliationDiscrepancy},
		{"both zero", "0", "0", "0", ReconciliationMatched},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff, status := Classify(decimal.RequireFromString(tt.external), decimal.RequireFromString(tt.internal))
			if status != tt.wantStatus {
				t.Fatalf("expected %s, got %s", tt.wantStatus, status)
			}
			if !diff.Equal(decimal.RequireFromString(tt.wantDiff)) {
				t.Fatalf("expected discrepancy %s, got %s", tt.wantDiff, diff)
			}
		})
	}
}

func TestDiscrepancyPercentage(t *testing.T) {
	got := DiscrepancyPercentage(decimal.NewFromInt(-5), decimal.NewFromInt(200))
	if !got.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("expected 2.5, got %s", got)
	}

	if got := DiscrepancyPercentage(decimal.NewFromInt(-50), decimal.Zero); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected 100 when external is zero and internal is not, got %s", got)
	}

	if got := DiscrepancyPercentage(decimal.Zero, decimal.Zero); !got.IsZero() {
		t.Fatalf("expected zero when both balances are zero, got %s", got)
	}
}

func TestReconciliationStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to ReconciliationStatus
		want     bool
	}{
		{ReconciliationDiscrepancy, ReconciliationInvestigating, true},
		{ReconciliationDiscrepancy, ReconciliationResolved, true},
		{ReconciliationInvestigating, ReconciliationResolved, true},
		{ReconciliationInvestigating, ReconciliationDiscrepancy, false},
		{ReconciliationMatched, ReconciliationResolved, false},
		{ReconciliationResolved, ReconciliationInvestigating, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}
