package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// AccountResponse represents an account in API responses.
type AccountResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Balance     decimal.Decimal `json:"balance"`
	IsActive    bool            `json:"is_active"`
	Description string          `json:"description,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// AccountFromDomain converts domain account to response.
func AccountFromDomain(a *domain.Account) *AccountResponse {
	return &AccountResponse{
		ID:          a.ID,
		Name:        a.Name,
		Type:        string(a.Type),
		Balance:     a.Balance,
		IsActive:    a.IsActive,
		Description: a.Description,
		Metadata:    a.Metadata,
		Version:     a.Version,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// AccountsFromDomain converts domain accounts to responses.
func AccountsFromDomain(accounts []*domain.Account) []*AccountResponse {
	result := make([]*AccountResponse, len(accounts))
	for i, a := range accounts {
		result[i] = AccountFromDomain(a)
	}
	return result
}

// ListAccountsResponse is a page of accounts.
type ListAccountsResponse struct {
	Accounts []*AccountResponse `json:"accounts"`
	Total    int64              `json:"total"`
}

// TransactionResponse represents a transaction in API responses.
type TransactionResponse struct {
	ID                  string          `json:"id"`
	Type                string          `json:"type"`
	FromAccountID       *string         `json:"from_account_id,omitempty"`
	ToAccountID         *string         `json:"to_account_id,omitempty"`
	Amount              decimal.Decimal `json:"amount"`
	Status              string          `json:"status"`
	ParentTransactionID *string         `json:"parent_transaction_id,omitempty"`
	ExternalReference   string          `json:"external_reference,omitempty"`
	Description         string          `json:"description,omitempty"`
	Metadata            map[string]any  `json:"metadata,omitempty"`
	PerformedBy         string          `json:"performed_by,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
}

// TransactionFromDomain converts domain transaction to response.
func TransactionFromDomain(t *domain.Transaction) *TransactionResponse {
	return &TransactionResponse{
		ID:                  t.ID,
		Type:                string(t.Type),
		FromAccountID:       t.FromAccountID,
		ToAccountID:         t.ToAccountID,
		Amount:              t.Amount,
		Status:              string(t.Status),
		ParentTransactionID: t.ParentTransactionID,
		ExternalReference:   t.ExternalReference,
		Description:         t.Description,
		Metadata:            t.Metadata,
		PerformedBy:         t.PerformedBy,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
		CompletedAt:         t.CompletedAt,
	}
}

// TransactionsFromDomain converts domain transactions to responses.
func TransactionsFromDomain(txs []*domain.Transaction) []*TransactionResponse {
	result := make([]*TransactionResponse, len(txs))
	for i, t := range txs {
		result[i] = TransactionFromDomain(t)
	}
	return result
}

// ListTransactionsResponse is a page of transactions.
type ListTransactionsResponse struct {
	Transactions []*TransactionResponse `json:"transactions"`
	Total        int64                  `json:"total"`
}

// TransactionOutcomeResponse is returned by calls that may complete a deposit.
// AllocationError is set when the deposit committed but its allocation failed.
type TransactionOutcomeResponse struct {
	Transaction     *TransactionResponse      `json:"transaction"`
	Allocation      *usecase.AllocationResult `json:"allocation,omitempty"`
	AllocationError string                    `json:"allocation_error,omitempty"`
}

// OutcomeFromUseCase converts a use case outcome to response.
func OutcomeFromUseCase(o *usecase.TransactionOutcome) *TransactionOutcomeResponse {
	resp := &TransactionOutcomeResponse{
		Transaction: TransactionFromDomain(o.Transaction),
		Allocation:  o.Allocation,
	}
	if o.AllocationError != nil {
		resp.AllocationError = o.AllocationError.Error()
	}
	return resp
}

// AllocationsResponse lists the allocation children of a transaction.
type AllocationsResponse struct {
	ParentTransactionID string                 `json:"parent_transaction_id"`
	ChildTransactionIDs []string               `json:"child_transaction_ids"`
	TotalAllocated      decimal.Decimal        `json:"total_allocated"`
	AllocationCount     int                    `json:"allocation_count"`
	Children            []*TransactionResponse `json:"children"`
}

// AllocationsFromUseCase converts an allocation summary to response.
func AllocationsFromUseCase(s *usecase.AllocationSummary) *AllocationsResponse {
	ids := s.ChildTransactionIDs
	if ids == nil {
		ids = []string{}
	}
	return &AllocationsResponse{
		ParentTransactionID: s.ParentTransactionID,
		ChildTransactionIDs: ids,
		TotalAllocated:      s.TotalAllocated,
		AllocationCount:     s.AllocationCount,
		Children:            TransactionsFromDomain(s.Children),
	}
}

// AllocationEntryResponse is one target of a rule.
type AllocationEntryResponse struct {
	AccountID  string          `json:"account_id"`
	Percentage decimal.Decimal `json:"percentage"`
}

// RuleResponse represents an allocation rule in API responses.
type RuleResponse struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	TriggerType string                    `json:"trigger_type"`
	Entries     []AllocationEntryResponse `json:"entries"`
	IsActive    bool                      `json:"is_active"`
	Priority    int                       `json:"priority"`
	MinAmount   *decimal.Decimal          `json:"min_amount,omitempty"`
	MaxAmount   *decimal.Decimal          `json:"max_amount,omitempty"`
	Description string                    `json:"description,omitempty"`
	CreatedBy   string                    `json:"created_by,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// RuleFromDomain converts domain rule to response.
func RuleFromDomain(r *domain.AllocationRule) *RuleResponse {
	entries := make([]AllocationEntryResponse, len(r.Entries))
	for i, e := range r.Entries {
		entries[i] = AllocationEntryResponse{AccountID: e.AccountID, Percentage: e.Percentage}
	}
	return &RuleResponse{
		ID:          r.ID,
		Name:        r.Name,
		TriggerType: string(r.TriggerType),
		Entries:     entries,
		IsActive:    r.IsActive,
		Priority:    r.Priority,
		MinAmount:   r.MinAmount,
		MaxAmount:   r.MaxAmount,
		Description: r.Description,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// RulesFromDomain converts domain rules to responses.
func RulesFromDomain(rules []*domain.AllocationRule) []*RuleResponse {
	result := make([]*RuleResponse, len(rules))
	for i, r := range rules {
		result[i] = RuleFromDomain(r)
	}
	return result
}

// ListRulesResponse lists allocation rules in evaluation order.
type ListRulesResponse struct {
	Rules []*RuleResponse `json:"rules"`
	Total int64           `json:"total"`
}

// ReconciliationResponse represents a reconciliation in API responses.
type ReconciliationResponse struct {
	ID                    string          `json:"id"`
	ExternalBalance       decimal.Decimal `json:"external_balance"`
	ExternalSource        string          `json:"external_source,omitempty"`
	InternalBalance       decimal.Decimal `json:"internal_balance"`
	Discrepancy           decimal.Decimal `json:"discrepancy"`
	DiscrepancyPercentage decimal.Decimal `json:"discrepancy_percentage"`
	Status                string          `json:"status"`
	Notes                 string          `json:"notes,omitempty"`
	ResolutionNotes       string          `json:"resolution_notes,omitempty"`
	PerformedBy           string          `json:"performed_by"`
	ResolvedBy            string          `json:"resolved_by,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	ResolvedAt            *time.Time      `json:"resolved_at,omitempty"`
}

// ReconciliationFromDomain converts domain reconciliation to response.
func ReconciliationFromDomain(r *domain.Reconciliation) *ReconciliationResponse {
	return &ReconciliationResponse{
		ID:                    r.ID,
		ExternalBalance:       r.ExternalBalance,
		ExternalSource:        r.ExternalSource,
		InternalBalance:       r.InternalBalance,
		Discrepancy:           r.Discrepancy,
		DiscrepancyPercentage: r.DiscrepancyPercentage,
		Status:                string(r.Status),
		Notes:                 r.Notes,
		ResolutionNotes:       r.ResolutionNotes,
		PerformedBy:           r.PerformedBy,
		ResolvedBy:            r.ResolvedBy,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
		ResolvedAt:            r.ResolvedAt,
	}
}

// ReconciliationsFromDomain converts domain reconciliations to responses.
func ReconciliationsFromDomain(recs []*domain.Reconciliation) []*ReconciliationResponse {
	result := make([]*ReconciliationResponse, len(recs))
	for i, r := range recs {
		result[i] = ReconciliationFromDomain(r)
	}
	return result
}

// ListReconciliationsResponse is a page of reconciliations.
type ListReconciliationsResponse struct {
	Reconciliations []*ReconciliationResponse `json:"reconciliations"`
	Total           int64                     `json:"total"`
}

// AuditLogResponse represents an audit row in API responses.
type AuditLogResponse struct {
	ID        string         `json:"id"`
	TableName string         `json:"table_name"`
	RecordID  string         `json:"record_id"`
	Operation string         `json:"operation"`
	OldValue  map[string]any `json:"old_value,omitempty"`
	NewValue  map[string]any `json:"new_value,omitempty"`
	Actor     string         `json:"actor"`
	RequestID string         `json:"request_id,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditLogsFromDomain converts domain audit rows to responses.
func AuditLogsFromDomain(logs []*domain.AuditLog) []*AuditLogResponse {
	result := make([]*AuditLogResponse, len(logs))
	for i, l := range logs {
		result[i] = &AuditLogResponse{
			ID:        l.ID,
			TableName: l.TableName,
			RecordID:  l.RecordID,
			Operation: string(l.Operation),
			OldValue:  l.OldValue,
			NewValue:  l.NewValue,
			Actor:     l.Actor,
			RequestID: l.RequestID,
			IPAddress: l.IPAddress,
			UserAgent: l.UserAgent,
			CreatedAt: l.CreatedAt,
		}
	}
	return result
}

// ListAuditLogsResponse is a page of audit rows.
type ListAuditLogsResponse struct {
	AuditLogs []*AuditLogResponse `json:"audit_logs"`
	Total     int64               `json:"total"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message,omitempty"`
}
