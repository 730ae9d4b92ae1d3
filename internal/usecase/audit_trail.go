package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/infrastructure/metrics"
)

// AuditTrail appends immutable audit rows inside the caller's unit of work
// and serves the audit read path.
type AuditTrail struct {
	repo    AuditRepository
	idGen   IDGenerator
	metrics *metrics.Metrics
}

// NewAuditTrail creates a new AuditTrail.
func NewAuditTrail(repo AuditRepository, idGen IDGenerator, m *metrics.Metrics) *AuditTrail {
	return &AuditTrail{repo: repo, idGen: idGen, metrics: m}
}

// Record writes one audit row for a mutation of table/recordID. oldValue and
// newValue are snapshotted to JSON; either may be nil. It never commits.
func (a *AuditTrail) Record(ctx context.Context, tx Transaction, table, recordID string, op domain.AuditOperation, oldValue, newValue any, actor string) error {
	if !op.IsValid() {
		return fmt.Errorf("audit: unknown operation %q", op)
	}

	meta := domain.RequestMetaFromContext(ctx)
	if actor == "" {
		actor = domain.ActorFromContext(ctx, domain.SystemActor)
	}

	log := &domain.AuditLog{
		ID:        a.idGen.Generate(),
		TableName: table,
		RecordID:  recordID,
		Operation: op,
		OldValue:  snapshot(oldValue),
		NewValue:  snapshot(newValue),
		Actor:     actor,
		RequestID: meta.RequestID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: time.Now().UTC(),
	}

	if err := a.repo.Create(ctx, tx, log); err != nil {
		return fmt.Errorf("audit %s/%s: %w", table, recordID, err)
	}

	if a.metrics != nil {
		a.metrics.AuditLogsCreated.WithLabelValues(table, string(op)).Inc()
	}

	return nil
}

// List returns audit rows newest first.
func (a *AuditTrail) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	filter.Limit, filter.Offset = domain.ValidatePagination(filter.Limit, filter.Offset)
	return a.repo.List(ctx, filter)
}

func snapshot(v any) domain.JSON {
	switch s := v.(type) {
	case nil:
		return nil
	case domain.JSON:
		return s
	case map[string]any:
		return domain.JSON(s)
	default:
		return domain.MarshalState(v)
	}
}
