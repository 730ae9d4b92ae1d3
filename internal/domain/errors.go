package domain

import (
	"errors"
	"fmt"
)

var (
	// Account errors
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountExists       = errors.New("account with this name already exists")
	ErrAccountInactive     = errors.New("account is inactive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNegativeBalance     = errors.New("balance cannot be negative")

	// Transaction errors
	ErrTransactionNotFound        = errors.New("transaction not found")
	ErrInvalidAmount              = errors.New("amount must be positive")
	ErrInvalidTransactionType     = errors.New("invalid transaction type")
	ErrInvalidTransactionStatus   = errors.New("invalid transaction status")
	ErrInvalidAccountFlow         = errors.New("invalid account flow for transaction type")
	ErrSameAccount                = errors.New("cannot transfer to same account")
	ErrInvalidStatusTransition    = errors.New("invalid status transition")
	ErrDuplicateExternalReference = errors.New("external reference already recorded")

	// Allocation rule errors
	ErrRuleNotFound          = errors.New("allocation rule not found")
	ErrRuleExists            = errors.New("allocation rule with this name already exists")
	ErrEmptyRule             = errors.New("allocation rule has no entries")
	ErrInvalidPercentageSum  = errors.New("allocation percentages must sum to 100")
	ErrInvalidPercentage     = errors.New("allocation percentage must be between 0 and 100")
	ErrUnknownAccount        = errors.New("allocation references unknown account")
	ErrInactiveAccount       = errors.New("allocation references inactive account")
	ErrInvalidTrigger        = errors.New("invalid allocation trigger type")
	ErrInvalidAmountRange    = errors.New("min amount exceeds max amount")
	ErrInvalidRuleName       = errors.New("invalid rule name")
	ErrNotAllocatable        = errors.New("transaction is not an allocatable completed deposit")
	ErrAllocationAlreadyDone = errors.New("allocation already applied for transaction")

	// Reconciliation errors
	ErrReconciliationNotFound     = errors.New("reconciliation not found")
	ErrNegativeExternalBalance    = errors.New("external balance cannot be negative")
	ErrInvalidReconciliationState = errors.New("invalid reconciliation status")
)

// Reason codes attached to validation failures.
const (
	ReasonEmptyRule           = "EMPTY_RULE"
	ReasonInvalidPercentage   = "INVALID_PERCENTAGE"
	ReasonPercentageSum       = "INVALID_PERCENTAGE_SUM"
	ReasonUnknownAccount      = "UNKNOWN_ACCOUNT"
	ReasonInactiveAccount     = "INACTIVE_ACCOUNT"
	ReasonInvalidAmount       = "INVALID_AMOUNT"
	ReasonInvalidAccountFlow  = "INVALID_ACCOUNT_FLOW"
	ReasonInvalidType         = "INVALID_TRANSACTION_TYPE"
	ReasonInvalidStatus       = "INVALID_STATUS"
	ReasonStatusTransition    = "INVALID_STATUS_TRANSITION"
	ReasonInsufficientBalance = "INSUFFICIENT_BALANCE"
	ReasonInvalidTrigger      = "INVALID_TRIGGER"
	ReasonInvalidRange        = "INVALID_AMOUNT_RANGE"
	ReasonInvalidName         = "INVALID_NAME"
	ReasonNotFound            = "NOT_FOUND"
	ReasonConflict            = "CONFLICT"
	ReasonInvalidMetadata     = "INVALID_METADATA"
	ReasonUnauthorized        = "UNAUTHORIZED"
	ReasonForbidden           = "FORBIDDEN"
	ReasonInternal            = "INTERNAL"
)

// ReasonError is a validation failure carrying a machine-readable reason code.
// It unwraps to the sentinel so callers can still use errors.Is.
type ReasonError struct {
	Code    string
	Field   string
	Message string
	Err     error
}

// NewReasonError wraps err with a reason code, the offending field and a message.
func NewReasonError(err error, code, field, message string) *ReasonError {
	return &ReasonError{Code: code, Field: field, Message: message, Err: err}
}

func (e *ReasonError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Err, e.Field, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err, e.Message)
	}
	return e.Err.Error()
}

func (e *ReasonError) Unwrap() error {
	return e.Err
}

var sentinelReasons = []struct {
	err  error
	code string
}{
	{ErrEmptyRule, ReasonEmptyRule},
	{ErrInvalidPercentage, ReasonInvalidPercentage},
	{ErrInvalidPercentageSum, ReasonPercentageSum},
	{ErrUnknownAccount, ReasonUnknownAccount},
	{ErrInactiveAccount, ReasonInactiveAccount},
	{ErrAccountInactive, ReasonInactiveAccount},
	{ErrInvalidAmount, ReasonInvalidAmount},
	{ErrInvalidAccountFlow, ReasonInvalidAccountFlow},
	{ErrSameAccount, ReasonInvalidAccountFlow},
	{ErrInvalidTransactionType, ReasonInvalidType},
	{ErrInvalidTransactionStatus, ReasonInvalidStatus},
	{ErrInvalidReconciliationState, ReasonInvalidStatus},
	{ErrInvalidStatusTransition, ReasonStatusTransition},
	{ErrInsufficientBalance, ReasonInsufficientBalance},
	{ErrNegativeBalance, ReasonInsufficientBalance},
	{ErrInvalidTrigger, ReasonInvalidTrigger},
	{ErrInvalidAmountRange, ReasonInvalidRange},
	{ErrNegativeExternalBalance, ReasonInvalidAmount},
	{ErrInvalidAccountName, ReasonInvalidName},
	{ErrInvalidRuleName, ReasonInvalidName},
	{ErrAccountNotFound, ReasonNotFound},
	{ErrTransactionNotFound, ReasonNotFound},
	{ErrRuleNotFound, ReasonNotFound},
	{ErrReconciliationNotFound, ReasonNotFound},
	{ErrAccountExists, ReasonConflict},
	{ErrRuleExists, ReasonConflict},
	{ErrDuplicateExternalReference, ReasonConflict},
	{ErrNotAllocatable, ReasonConflict},
	{ErrAllocationAlreadyDone, ReasonConflict},
	{ErrMetadataTooLarge, ReasonInvalidMetadata},
	{ErrUnauthorized, ReasonUnauthorized},
	{ErrInvalidToken, ReasonUnauthorized},
	{ErrExpiredToken, ReasonUnauthorized},
	{ErrInsufficientRole, ReasonForbidden},
}

// ReasonCode returns the reason code for err, or ReasonInternal when err
// is not a known domain failure.
func ReasonCode(err error) string {
	var re *ReasonError
	if errors.As(err, &re) && re.Code != "" {
		return re.Code
	}
	for _, s := range sentinelReasons {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	return ReasonInternal
}
