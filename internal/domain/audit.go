package domain

import (
	"encoding/json"
	"time"
)

// Audited tables.
const (
	TableAccounts          = "accounts"
	TableTransactions      = "transactions"
	TableAllocationRules   = "allocation_rules"
	TableReconciliations   = "reconciliation_log"
	TableAllocationBatches = "allocation_batches"
)

// AuditOperation is the kind of mutation recorded.
type AuditOperation string

const (
	AuditOperationCreate AuditOperation = "CREATE"
	AuditOperationUpdate AuditOperation = "UPDATE"
	AuditOperationDelete AuditOperation = "DELETE"
)

// IsValid reports whether op is a known operation.
func (op AuditOperation) IsValid() bool {
	return op == AuditOperationCreate || op == AuditOperationUpdate || op == AuditOperationDelete
}

// AuditLog is an immutable record of one mutation.
type AuditLog struct {
	ID        string         `json:"id"`
	TableName string         `json:"table_name"`
	RecordID  string         `json:"record_id"`
	Operation AuditOperation `json:"operation"`
	OldValue  JSON           `json:"old_value,omitempty"`
	NewValue  JSON           `json:"new_value,omitempty"`
	Actor     string         `json:"actor"`
	RequestID string         `json:"request_id,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// JSON is a snapshot of a record as a generic map.
type JSON map[string]any

// MarshalState converts a domain object to a JSON snapshot for audit logging.
func MarshalState(v any) JSON {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return JSON{"error": "failed to marshal state"}
	}

	var result JSON
	if err := json.Unmarshal(data, &result); err != nil {
		return JSON{"error": "failed to unmarshal state"}
	}

	return result
}

// AuditFilter narrows audit listings. Results are newest first.
type AuditFilter struct {
	TableName string
	RecordID  string
	Actor     string
	Limit     int
	Offset    int
}
