package memory

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// AuditRepository implements usecase.AuditRepository. Rows are append-only.
type AuditRepository struct {
	store *Store
}

// Create appends an audit row.
func (r *AuditRepository) Create(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	st, err := stateOf(tx)
	if err != nil {
		return err
	}
	st.audit = append(st.audit, *log)
	return nil
}

// List returns committed audit rows newest first.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	var out []*domain.AuditLog
	r.store.read(func(st *state) {
		for i := len(st.audit) - 1; i >= 0; i-- {
			l := st.audit[i]
			if filter.TableName != "" && l.TableName != filter.TableName {
				continue
			}
			if filter.RecordID != "" && l.RecordID != filter.RecordID {
				continue
			}
			if filter.Actor != "" && l.Actor != filter.Actor {
				continue
			}
			out = append(out, &l)
		}
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

// ReconciliationRepository implements usecase.ReconciliationRepository.
type ReconciliationRepository struct {
	store *Store
}

// Create appends a reconciliation record.
func (r *ReconciliationRepository) Create(ctx context.Context, tx usecase.Transaction, rec *domain.Reconciliation) error {
	st, err := stateOf(tx)
	if err != nil {
		return err
	}
	st.reconciliations[rec.ID] = *rec
	st.recOrder = append(st.recOrder, rec.ID)
	return nil
}

// GetByID retrieves a committed record by ID.
func (r *ReconciliationRepository) GetByID(ctx context.Context, id string) (*domain.Reconciliation, error) {
	var (
		rec *domain.Reconciliation
		err error
	)
	r.store.read(func(st *state) {
		rec, err = getReconciliation(st, id)
	})
	return rec, err
}

// GetByIDForUpdate reads a record inside the unit of work.
func (r *ReconciliationRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Reconciliation, error) {
	st, err := stateOf(tx)
	if err != nil {
		return nil, err
	}
	return getReconciliation(st, id)
}

// GetLatest returns the most recently created record.
func (r *ReconciliationRepository) GetLatest(ctx context.Context) (*domain.Reconciliation, error) {
	var (
		rec *domain.Reconciliation
		err error
	)
	r.store.read(func(st *state) {
		if len(st.recOrder) == 0 {
			err = domain.ErrReconciliationNotFound
			return
		}
		rec, err = getReconciliation(st, st.recOrder[len(st.recOrder)-1])
	})
	return rec, err
}

// List returns committed records newest first.
func (r *ReconciliationRepository) List(ctx context.Context, filter domain.ReconciliationFilter) ([]*domain.Reconciliation, error) {
	var out []*domain.Reconciliation
	r.store.read(func(st *state) {
		for i := len(st.recOrder) - 1; i >= 0; i-- {
			rec := st.reconciliations[st.recOrder[i]]
			if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, rec.Status) {
				continue
			}
			out = append(out, &rec)
		}
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

// UpdateStatus persists status and resolution fields only.
func (r *ReconciliationRepository) UpdateStatus(ctx context.Context, tx usecase.Transaction, rec *domain.Reconciliation) error {
	st, err := stateOf(tx)
	if err != nil {
		return err
	}
	stored, ok := st.reconciliations[rec.ID]
	if !ok {
		return domain.ErrReconciliationNotFound
	}

	stored.Status = rec.Status
	stored.ResolutionNotes = rec.ResolutionNotes
	stored.ResolvedBy = rec.ResolvedBy
	stored.ResolvedAt = rec.ResolvedAt
	stored.UpdatedAt = rec.UpdatedAt
	st.reconciliations[rec.ID] = stored
	return nil
}

func getReconciliation(st *state, id string) (*domain.Reconciliation, error) {
	rec, ok := st.reconciliations[id]
	if !ok {
		return nil, domain.ErrReconciliationNotFound
	}
	return &rec, nil
}

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	store *Store
}

// Create queues an event in the unit of work.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	st, err := stateOf(tx)
	if err != nil {
		return err
	}
	e := *event
	e.Payload = maps.Clone(event.Payload)
	st.outbox[e.ID] = e
	st.outboxOrder = append(st.outboxOrder, e.ID)
	return nil
}

// GetUnpublished returns up to limit unpublished events, oldest first.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	var out []*domain.OutboxEvent
	r.store.read(func(st *state) {
		for _, id := range st.outboxOrder {
			e := st.outbox[id]
			if e.Published {
				continue
			}
			out = append(out, &e)
			if limit > 0 && len(out) == limit {
				return
			}
		}
	})
	return out, nil
}

// MarkPublished flags an event as delivered.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	r.store.write(func(st *state) {
		e, ok := st.outbox[id]
		if !ok {
			return
		}
		e.Published = true
		e.PublishedAt = &publishedAt
		st.outbox[id] = e
	})
	return nil
}

// DeletePublished drops events delivered before the cutoff.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	r.store.write(func(st *state) {
		kept := st.outboxOrder[:0:0]
		for _, id := range st.outboxOrder {
			e := st.outbox[id]
			if e.Published && e.PublishedAt != nil && e.PublishedAt.Before(before) {
				delete(st.outbox, id)
				continue
			}
			kept = append(kept, id)
		}
		st.outboxOrder = kept
	})
	return nil
}
