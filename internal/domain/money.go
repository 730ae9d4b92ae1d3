package domain

import "github.com/shopspring/decimal"

// LedgerScale is the number of fractional digits carried by every amount.
const LedgerScale int32 = 8

var (
	// Epsilon is one unit at ledger scale.
	Epsilon = decimal.New(1, -LedgerScale)

	// PercentageTolerance bounds how far a rule's percentages may drift from 100.
	PercentageTolerance = decimal.New(1, -2)

	oneHundred = decimal.NewFromInt(100)
)

// RoundToScale rounds d to the ledger scale, half away from zero.
// Every amount computed by the ledger goes through here.
func RoundToScale(d decimal.Decimal) decimal.Decimal {
	return d.Round(LedgerScale)
}

// PercentOf returns pct percent of amount at ledger scale.
func PercentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return RoundToScale(amount.Mul(pct).Div(oneHundred))
}

// HasMoreThanScale reports whether d carries digits beyond the ledger scale.
func HasMoreThanScale(d decimal.Decimal) bool {
	return !d.Equal(RoundToScale(d))
}
