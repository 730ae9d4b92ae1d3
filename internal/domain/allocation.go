package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AllocationBatch marks that a parent transaction has been fanned out.
// At most one exists per parent.
type AllocationBatch struct {
	ParentTransactionID string          `json:"parent_transaction_id"`
	RuleID              string          `json:"rule_id"`
	ChildCount          int             `json:"child_count"`
	TotalAllocated      decimal.Decimal `json:"total_allocated"`
	CreatedBy           string          `json:"created_by"`
	CreatedAt           time.Time       `json:"created_at"`
}

// InactiveTargetPolicy decides what happens to a slice whose target account
// is missing or inactive when a rule is applied.
type InactiveTargetPolicy string

const (
	// InactiveTargetSkip drops the slice and logs a warning.
	InactiveTargetSkip InactiveTargetPolicy = "skip"
	// InactiveTargetFail aborts the whole application.
	InactiveTargetFail InactiveTargetPolicy = "fail"
	// InactiveTargetFallback routes the slice to a designated fallback account.
	InactiveTargetFallback InactiveTargetPolicy = "fallback"
)

// ParseInactiveTargetPolicy parses a policy name.
func ParseInactiveTargetPolicy(s string) (InactiveTargetPolicy, error) {
	switch p := InactiveTargetPolicy(s); p {
	case InactiveTargetSkip, InactiveTargetFail, InactiveTargetFallback:
		return p, nil
	case "":
		return InactiveTargetSkip, nil
	}
	return "", fmt.Errorf("unknown inactive target policy %q", s)
}

// Allocation metadata keys written on child transactions.
const (
	MetaAllocationRuleID   = "allocation_rule_id"
	MetaAllocationRuleName = "allocation_rule_name"
	MetaPercentage         = "percentage"
	MetaOriginalAccountID  = "original_account_id"
)
