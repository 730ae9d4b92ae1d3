package domain

import "time"

// Event types
const (
	EventTypeTransactionCompleted   = "transaction.completed"
	EventTypeAllocationApplied      = "allocation.applied"
	EventTypeReconciliationRecorded = "reconciliation.recorded"
	EventTypeRuleChanged            = "allocation_rule.changed"
)

// Aggregate types
const (
	AggregateTypeTransaction    = "transaction"
	AggregateTypeReconciliation = "reconciliation"
	AggregateTypeRule           = "allocation_rule"
)

// OutboxEvent is an event written in the same unit of work as the change it
// describes and published asynchronously.
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}
