package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationStatus classifies a reconciliation record.
type ReconciliationStatus string

const (
	ReconciliationMatched       ReconciliationStatus = "MATCHED"
	ReconciliationDiscrepancy   ReconciliationStatus = "DISCREPANCY"
	ReconciliationInvestigating ReconciliationStatus = "INVESTIGATING"
	ReconciliationResolved      ReconciliationStatus = "RESOLVED"
)

// IsValid reports whether s is a known status.
func (s ReconciliationStatus) IsValid() bool {
	switch s {
	case ReconciliationMatched, ReconciliationDiscrepancy,
		ReconciliationInvestigating, ReconciliationResolved:
		return true
	}
	return false
}

// CanTransitionTo reports whether an operator may move a record from s to next.
func (s ReconciliationStatus) CanTransitionTo(next ReconciliationStatus) bool {
	switch s {
	case ReconciliationDiscrepancy:
		return next == ReconciliationInvestigating || next == ReconciliationResolved
	case ReconciliationInvestigating:
		return next == ReconciliationResolved
	}
	return false
}

// Reconciliation compares the ledger total against an externally reported balance.
// Balances and discrepancy are fixed at creation.
type Reconciliation struct {
	ID                    string               `json:"id"`
	ExternalBalance       decimal.Decimal      `json:"external_balance"`
	ExternalSource        string               `json:"external_source,omitempty"`
	InternalBalance       decimal.Decimal      `json:"internal_balance"`
	Discrepancy           decimal.Decimal      `json:"discrepancy"`
	DiscrepancyPercentage decimal.Decimal      `json:"discrepancy_percentage"`
	Status                ReconciliationStatus `json:"status"`
	Notes                 string               `json:"notes,omitempty"`
	ResolutionNotes       string               `json:"resolution_notes,omitempty"`
	PerformedBy           string               `json:"performed_by"`
	ResolvedBy            string               `json:"resolved_by,omitempty"`
	CreatedAt             time.Time            `json:"created_at"`
	UpdatedAt             time.Time            `json:"updated_at"`
	ResolvedAt            *time.Time           `json:"resolved_at,omitempty"`
}

// Classify computes discrepancy = external - internal and the resulting status.
// The ledgers match when |discrepancy| is below one unit at ledger scale.
func Classify(external, internal decimal.Decimal) (decimal.Decimal, ReconciliationStatus) {
	d := RoundToScale(external.Sub(internal))
	if d.Abs().LessThan(Epsilon) {
		return d, ReconciliationMatched
	}
	return d, ReconciliationDiscrepancy
}

// DiscrepancyPercentage returns |discrepancy| / external * 100 at 4 places.
// A zero external balance reports 100 unless the discrepancy is zero too.
func DiscrepancyPercentage(discrepancy, external decimal.Decimal) decimal.Decimal {
	if external.IsZero() {
		if discrepancy.IsZero() {
			return decimal.Zero
		}
		return oneHundred
	}
	return discrepancy.Abs().Div(external).Mul(oneHundred).Round(4)
}

// ReconciliationFilter narrows reconciliation listings. Results are newest first.
type ReconciliationFilter struct {
	Statuses []ReconciliationStatus
	Limit    int
	Offset   int
}
