package postgres

import (
	"github.com/oklog/ulid/v2"

	"github.com/iho/treasury/internal/usecase"
)

// ULIDGenerator generates ULID-based IDs. ULIDs sort by creation time, which
// the repositories rely on as a tie-breaker for rows created in the same instant.
type ULIDGenerator struct{}

// NewULIDGenerator creates a new ULIDGenerator.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{}
}

// Generate generates a new ULID.
func (g *ULIDGenerator) Generate() string {
	return ulid.Make().String()
}

var (
	_ usecase.AccountRepository         = (*AccountRepository)(nil)
	_ usecase.TransactionRepository     = (*TransactionRepository)(nil)
	_ usecase.AllocationRuleRepository  = (*AllocationRuleRepository)(nil)
	_ usecase.AllocationBatchRepository = (*AllocationBatchRepository)(nil)
	_ usecase.AuditRepository           = (*AuditRepository)(nil)
	_ usecase.ReconciliationRepository  = (*ReconciliationRepository)(nil)
	_ usecase.OutboxRepository          = (*OutboxRepository)(nil)
	_ usecase.TransactionManager        = (*TxManager)(nil)
	_ usecase.Retrier                   = (*Retrier)(nil)
	_ usecase.IDGenerator               = (*ULIDGenerator)(nil)
)
