package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AllocationEntry is one slice of a rule: a target account and its share.
type AllocationEntry struct {
	AccountID  string          `json:"account_id"`
	Percentage decimal.Decimal `json:"percentage"`
}

// AllocationRule is a prioritized percentage recipe applied to triggering transactions.
type AllocationRule struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	TriggerType TransactionType   `json:"trigger_type"`
	Entries     []AllocationEntry `json:"entries"`
	IsActive    bool              `json:"is_active"`
	Priority    int               `json:"priority"`
	MinAmount   *decimal.Decimal  `json:"min_amount,omitempty"`
	MaxAmount   *decimal.Decimal  `json:"max_amount,omitempty"`
	Description string            `json:"description,omitempty"`
	CreatedBy   string            `json:"created_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Matches reports whether the rule applies to a transaction of the given type and amount.
func (r *AllocationRule) Matches(txType TransactionType, amount decimal.Decimal) bool {
	if !r.IsActive || r.TriggerType != txType {
		return false
	}
	if r.MinAmount != nil && amount.LessThan(*r.MinAmount) {
		return false
	}
	if r.MaxAmount != nil && amount.GreaterThan(*r.MaxAmount) {
		return false
	}
	return true
}

// ValidateShape checks everything about the rule that does not need account lookups.
func (r *AllocationRule) ValidateShape() error {
	name := strings.TrimSpace(r.Name)
	if name == "" || len(name) > MaxNameLength {
		return NewReasonError(ErrInvalidRuleName, ReasonInvalidName, "name", "name must be 1-100 characters")
	}
	if !r.TriggerType.IsTrigger() {
		return NewReasonError(ErrInvalidTrigger, ReasonInvalidTrigger, "trigger_type", string(r.TriggerType))
	}
	if r.MinAmount != nil && r.MinAmount.IsNegative() {
		return NewReasonError(ErrInvalidAmountRange, ReasonInvalidRange, "min_amount", r.MinAmount.String())
	}
	if r.MinAmount != nil && r.MaxAmount != nil && r.MinAmount.GreaterThan(*r.MaxAmount) {
		return NewReasonError(ErrInvalidAmountRange, ReasonInvalidRange, "max_amount",
			fmt.Sprintf("%s > %s", r.MinAmount, r.MaxAmount))
	}
	return ValidateEntries(r.Entries)
}

// ValidateEntries checks that entries exist, each share lies in (0, 100],
// and the shares sum to 100 within PercentageTolerance.
func ValidateEntries(entries []AllocationEntry) error {
	if len(entries) == 0 {
		return NewReasonError(ErrEmptyRule, ReasonEmptyRule, "entries", "at least one entry is required")
	}

	sum := decimal.Zero
	for i, e := range entries {
		if !e.Percentage.IsPositive() || e.Percentage.GreaterThan(oneHundred) {
			return NewReasonError(ErrInvalidPercentage, ReasonInvalidPercentage,
				fmt.Sprintf("entries[%d].percentage", i), e.Percentage.String())
		}
		sum = sum.Add(e.Percentage)
	}

	if sum.Sub(oneHundred).Abs().GreaterThan(PercentageTolerance) {
		return NewReasonError(ErrInvalidPercentageSum, ReasonPercentageSum, "entries",
			"percentages sum to "+sum.String())
	}
	return nil
}

// AccountLookup resolves an account by id. It returns ErrAccountNotFound for unknown ids.
type AccountLookup func(id string) (*Account, error)

// ValidateRule checks entries structurally and then resolves every referenced
// account, failing with ErrUnknownAccount or ErrInactiveAccount.
func ValidateRule(entries []AllocationEntry, lookup AccountLookup) error {
	if err := ValidateEntries(entries); err != nil {
		return err
	}

	for i, e := range entries {
		field := fmt.Sprintf("entries[%d].account_id", i)
		if strings.TrimSpace(e.AccountID) == "" {
			return NewReasonError(ErrUnknownAccount, ReasonUnknownAccount, field, "account id is empty")
		}

		account, err := lookup(e.AccountID)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return NewReasonError(ErrUnknownAccount, ReasonUnknownAccount, field, e.AccountID)
			}
			return err
		}
		if !account.IsActive {
			return NewReasonError(ErrInactiveAccount, ReasonInactiveAccount, field, e.AccountID)
		}
	}
	return nil
}

// TotalPercentage sums the entry shares.
func TotalPercentage(entries []AllocationEntry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Percentage)
	}
	return sum
}
