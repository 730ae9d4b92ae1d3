package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a value movement.
type TransactionType string

const (
	TransactionTypeExternalDeposit    TransactionType = "EXTERNAL_DEPOSIT"
	TransactionTypeExternalWithdrawal TransactionType = "EXTERNAL_WITHDRAWAL"
	TransactionTypeInternalAllocation TransactionType = "INTERNAL_ALLOCATION"
	TransactionTypeInternalTransfer   TransactionType = "INTERNAL_TRANSFER"
)

// IsValid reports whether t is a known transaction type.
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeExternalDeposit, TransactionTypeExternalWithdrawal,
		TransactionTypeInternalAllocation, TransactionTypeInternalTransfer:
		return true
	}
	return false
}

// IsTrigger reports whether rules may be attached to transactions of this type.
func (t TransactionType) IsTrigger() bool {
	return t == TransactionTypeExternalDeposit || t == TransactionTypeExternalWithdrawal
}

// TransactionStatus is the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
)

// IsValid reports whether s is a known status.
func (s TransactionStatus) IsValid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusCompleted,
		TransactionStatusFailed, TransactionStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s TransactionStatus) IsTerminal() bool {
	return s != TransactionStatusPending
}

// CanTransitionTo reports whether a transaction in status s may move to next.
// Only PENDING transactions move, and only to a terminal status.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	return s == TransactionStatusPending && next.IsValid() && next.IsTerminal()
}

// Transaction is a record of value movement between accounts, or between an
// account and the outside world.
type Transaction struct {
	ID                  string            `json:"id"`
	Type                TransactionType   `json:"type"`
	FromAccountID       *string           `json:"from_account_id,omitempty"`
	ToAccountID         *string           `json:"to_account_id,omitempty"`
	Amount              decimal.Decimal   `json:"amount"`
	Status              TransactionStatus `json:"status"`
	ParentTransactionID *string           `json:"parent_transaction_id,omitempty"`
	ExternalReference   string            `json:"external_reference,omitempty"`
	Description         string            `json:"description,omitempty"`
	Metadata            map[string]any    `json:"metadata,omitempty"`
	PerformedBy         string            `json:"performed_by,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
	CompletedAt         *time.Time        `json:"completed_at,omitempty"`
}

// Validate checks type, status, amount and account-flow shape.
func (t *Transaction) Validate() error {
	if !t.Type.IsValid() {
		return NewReasonError(ErrInvalidTransactionType, ReasonInvalidType, "type", string(t.Type))
	}
	if !t.Status.IsValid() {
		return NewReasonError(ErrInvalidTransactionStatus, ReasonInvalidStatus, "status", string(t.Status))
	}
	if !t.Amount.IsPositive() {
		return NewReasonError(ErrInvalidAmount, ReasonInvalidAmount, "amount", t.Amount.String())
	}
	if HasMoreThanScale(t.Amount) {
		return NewReasonError(ErrInvalidAmount, ReasonInvalidAmount, "amount", "more than 8 fractional digits")
	}
	if err := t.validateFlow(); err != nil {
		return err
	}
	if t.ParentTransactionID != nil && t.Type != TransactionTypeInternalAllocation {
		return NewReasonError(ErrInvalidAccountFlow, ReasonInvalidAccountFlow, "parent_transaction_id",
			"only allocation children carry a parent")
	}
	return ValidateMetadata(t.Metadata)
}

func (t *Transaction) validateFlow() error {
	hasFrom := t.FromAccountID != nil && *t.FromAccountID != ""
	hasTo := t.ToAccountID != nil && *t.ToAccountID != ""

	switch t.Type {
	case TransactionTypeExternalDeposit:
		if hasFrom || !hasTo {
			return NewReasonError(ErrInvalidAccountFlow, ReasonInvalidAccountFlow, "to_account_id",
				"deposit requires a to account and no from account")
		}
	case TransactionTypeExternalWithdrawal:
		if !hasFrom || hasTo {
			return NewReasonError(ErrInvalidAccountFlow, ReasonInvalidAccountFlow, "from_account_id",
				"withdrawal requires a from account and no to account")
		}
	case TransactionTypeInternalAllocation:
		if !hasFrom || !hasTo {
			return NewReasonError(ErrInvalidAccountFlow, ReasonInvalidAccountFlow, "from_account_id",
				"allocation requires both accounts")
		}
	case TransactionTypeInternalTransfer:
		if !hasFrom || !hasTo {
			return NewReasonError(ErrInvalidAccountFlow, ReasonInvalidAccountFlow, "from_account_id",
				"transfer requires both accounts")
		}
		if *t.FromAccountID == *t.ToAccountID {
			return NewReasonError(ErrSameAccount, ReasonInvalidAccountFlow, "to_account_id", *t.ToAccountID)
		}
	}
	return nil
}

// IsAllocatable reports whether the allocation engine may fan this transaction out.
func (t *Transaction) IsAllocatable() bool {
	return t.Type == TransactionTypeExternalDeposit && t.Status == TransactionStatusCompleted
}

// AccountIDs returns the distinct accounts touched by the transaction.
func (t *Transaction) AccountIDs() []string {
	ids := make([]string, 0, 2)
	if t.FromAccountID != nil {
		ids = append(ids, *t.FromAccountID)
	}
	if t.ToAccountID != nil && (t.FromAccountID == nil || *t.ToAccountID != *t.FromAccountID) {
		ids = append(ids, *t.ToAccountID)
	}
	return ids
}

// TransactionFilter narrows transaction listings. Zero values mean "any".
type TransactionFilter struct {
	Type                TransactionType
	Status              TransactionStatus
	AccountID           string
	ParentTransactionID string
	From                *time.Time
	To                  *time.Time
	Limit               int
	Offset              int
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, returning "" for nil.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
