package dto

import (
	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// CreateAccountRequest represents a request to create an account.
type CreateAccountRequest struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateAccountRequest) ToUseCaseInput() usecase.CreateAccountInput {
	return usecase.CreateAccountInput{
		Name:        r.Name,
		Type:        domain.AccountType(r.Type),
		Description: r.Description,
		Metadata:    r.Metadata,
	}
}

// CreateTransactionRequest represents a request to record a transaction.
// Amounts are decimal strings; numbers are accepted too.
type CreateTransactionRequest struct {
	Type              string          `json:"type"`
	FromAccountID     string          `json:"from_account_id,omitempty"`
	ToAccountID       string          `json:"to_account_id,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Status            string          `json:"status,omitempty"`
	ExternalReference string          `json:"external_reference,omitempty"`
	Description       string          `json:"description,omitempty"`
	Metadata          map[string]any  `json:"metadata,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateTransactionRequest) ToUseCaseInput() usecase.CreateTransactionInput {
	return usecase.CreateTransactionInput{
		Type:              domain.TransactionType(r.Type),
		FromAccountID:     r.FromAccountID,
		ToAccountID:       r.ToAccountID,
		Amount:            r.Amount,
		Status:            domain.TransactionStatus(r.Status),
		ExternalReference: r.ExternalReference,
		Description:       r.Description,
		Metadata:          r.Metadata,
	}
}

// CloseTransactionRequest carries the reason for failing or cancelling a transaction.
type CloseTransactionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// AllocationEntryRequest is one target of a rule.
type AllocationEntryRequest struct {
	AccountID  string          `json:"account_id"`
	Percentage decimal.Decimal `json:"percentage"`
}

func entriesToDomain(entries []AllocationEntryRequest) []domain.AllocationEntry {
	if entries == nil {
		return nil
	}
	out := make([]domain.AllocationEntry, len(entries))
	for i, e := range entries {
		out[i] = domain.AllocationEntry{AccountID: e.AccountID, Percentage: e.Percentage}
	}
	return out
}

// CreateRuleRequest represents a request to create an allocation rule.
type CreateRuleRequest struct {
	Name        string                   `json:"name"`
	TriggerType string                   `json:"trigger_type"`
	Entries     []AllocationEntryRequest `json:"entries"`
	Priority    int                      `json:"priority"`
	MinAmount   *decimal.Decimal         `json:"min_amount,omitempty"`
	MaxAmount   *decimal.Decimal         `json:"max_amount,omitempty"`
	Description string                   `json:"description,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateRuleRequest) ToUseCaseInput() usecase.CreateRuleInput {
	return usecase.CreateRuleInput{
		Name:        r.Name,
		TriggerType: domain.TransactionType(r.TriggerType),
		Entries:     entriesToDomain(r.Entries),
		Priority:    r.Priority,
		MinAmount:   r.MinAmount,
		MaxAmount:   r.MaxAmount,
		Description: r.Description,
	}
}

// UpdateRuleRequest is a partial rule update. Omitted fields are unchanged.
type UpdateRuleRequest struct {
	Name        *string                  `json:"name,omitempty"`
	Entries     []AllocationEntryRequest `json:"entries,omitempty"`
	Priority    *int                     `json:"priority,omitempty"`
	IsActive    *bool                    `json:"is_active,omitempty"`
	MinAmount   *decimal.Decimal         `json:"min_amount,omitempty"`
	MaxAmount   *decimal.Decimal         `json:"max_amount,omitempty"`
	Description *string                  `json:"description,omitempty"`

	ClearMinAmount bool `json:"clear_min_amount,omitempty"`
	ClearMaxAmount bool `json:"clear_max_amount,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *UpdateRuleRequest) ToUseCaseInput() usecase.UpdateRuleInput {
	return usecase.UpdateRuleInput{
		Name:           r.Name,
		Entries:        entriesToDomain(r.Entries),
		Priority:       r.Priority,
		IsActive:       r.IsActive,
		MinAmount:      r.MinAmount,
		MaxAmount:      r.MaxAmount,
		ClearMinAmount: r.ClearMinAmount,
		ClearMaxAmount: r.ClearMaxAmount,
		Description:    r.Description,
	}
}

// ValidateRuleRequest is a dry-run check of rule entries.
type ValidateRuleRequest struct {
	Entries []AllocationEntryRequest `json:"entries"`
}

// ToDomain converts the entries.
func (r *ValidateRuleRequest) ToDomain() []domain.AllocationEntry {
	return entriesToDomain(r.Entries)
}

// CreateReconciliationRequest records an externally reported balance.
type CreateReconciliationRequest struct {
	ExternalBalance decimal.Decimal `json:"external_balance"`
	ExternalSource  string          `json:"external_source,omitempty"`
	Notes           string          `json:"notes,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateReconciliationRequest) ToUseCaseInput() usecase.CreateReconciliationInput {
	return usecase.CreateReconciliationInput{
		ExternalBalance: r.ExternalBalance,
		ExternalSource:  r.ExternalSource,
		Notes:           r.Notes,
	}
}

// UpdateReconciliationStatusRequest moves a reconciliation along its workflow.
type UpdateReconciliationStatusRequest struct {
	Status          string `json:"status"`
	ResolutionNotes string `json:"resolution_notes,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *UpdateReconciliationStatusRequest) ToUseCaseInput() usecase.UpdateReconciliationStatusInput {
	return usecase.UpdateReconciliationStatusInput{
		Status:          domain.ReconciliationStatus(r.Status),
		ResolutionNotes: r.ResolutionNotes,
	}
}
