package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType is a free-form category tag for a treasury bucket.
type AccountType string

// Well-known account types. Any non-empty tag is accepted.
const (
	AccountTypeOperating   AccountType = "OPERATING"
	AccountTypeReserve     AccountType = "RESERVE"
	AccountTypeRewards     AccountType = "REWARDS"
	AccountTypeDevelopment AccountType = "DEVELOPMENT"
	AccountTypeMarketing   AccountType = "MARKETING"
	AccountTypeCustom      AccountType = "CUSTOM"
)

// Account is a named logical treasury bucket.
type Account struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        AccountType     `json:"type"`
	Balance     decimal.Decimal `json:"balance"`
	IsActive    bool            `json:"is_active"`
	Description string          `json:"description,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Validate checks the structural invariants of an account before it is written.
func (a *Account) Validate() error {
	if err := ValidateAccountName(a.Name); err != nil {
		return err
	}
	if a.Type == "" {
		return NewReasonError(ErrInvalidAccountName, ReasonInvalidName, "type", "account type is required")
	}
	if a.Balance.IsNegative() {
		return NewReasonError(ErrNegativeBalance, ReasonInsufficientBalance, "balance", a.Balance.String())
	}
	return ValidateMetadata(a.Metadata)
}

// ValidateDebit checks if the account can be debited by amount without going negative.
func (a *Account) ValidateDebit(amount decimal.Decimal) error {
	if a.Balance.Sub(amount).IsNegative() {
		return NewReasonError(ErrInsufficientBalance, ReasonInsufficientBalance, a.ID,
			"balance "+a.Balance.String()+" is less than "+amount.String())
	}
	return nil
}

// ApplyDebit returns the new balance after a debit.
func (a *Account) ApplyDebit(amount decimal.Decimal) decimal.Decimal {
	return RoundToScale(a.Balance.Sub(amount))
}

// ApplyCredit returns the new balance after a credit.
func (a *Account) ApplyCredit(amount decimal.Decimal) decimal.Decimal {
	return RoundToScale(a.Balance.Add(amount))
}

// AccountFilter narrows account listings.
type AccountFilter struct {
	IncludeInactive bool
	Type            AccountType
	Limit           int
	Offset          int
}
