package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/infrastructure/metrics"
)

// ReconciliationUseCase compares the ledger total with externally reported
// balances and tracks discrepancies until they are resolved.
type ReconciliationUseCase struct {
	txManager   TransactionManager
	accountRepo AccountRepository
	recRepo     ReconciliationRepository
	outboxRepo  OutboxRepository
	audit       *AuditTrail
	idGen       IDGenerator
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewReconciliationUseCase creates a new ReconciliationUseCase.
func NewReconciliationUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	recRepo ReconciliationRepository,
	outboxRepo OutboxRepository,
	audit *AuditTrail,
	idGen IDGenerator,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		txManager:   txManager,
		accountRepo: accountRepo,
		recRepo:     recRepo,
		outboxRepo:  outboxRepo,
		audit:       audit,
		idGen:       idGen,
		metrics:     m,
		logger:      logger,
	}
}

// CreateReconciliationInput represents input for recording a reconciliation.
type CreateReconciliationInput struct {
	ExternalBalance decimal.Decimal
	ExternalSource  string
	Notes           string
}

// CreateReconciliation snapshots the sum of active balances, compares it with
// the external figure and appends the result.
func (uc *ReconciliationUseCase) CreateReconciliation(ctx context.Context, input CreateReconciliationInput) (*domain.Reconciliation, error) {
	if input.ExternalBalance.IsNegative() {
		return nil, domain.NewReasonError(domain.ErrNegativeExternalBalance, domain.ReasonInvalidAmount,
			"external_balance", input.ExternalBalance.String())
	}
	if domain.HasMoreThanScale(input.ExternalBalance) {
		return nil, domain.NewReasonError(domain.ErrInvalidAmount, domain.ReasonInvalidAmount,
			"external_balance", "more than 8 fractional digits")
	}

	actor := domain.ActorFromContext(ctx, domain.SystemActor)
	external := input.ExternalBalance

	var rec *domain.Reconciliation
	err := runInTx(ctx, uc.txManager, nil, func(ctx context.Context, tx Transaction) error {
		internal, _, err := uc.accountRepo.SumActiveBalances(ctx, tx)
		if err != nil {
			return err
		}

		discrepancy, status := domain.Classify(external, internal)
		now := time.Now().UTC()

		r := &domain.Reconciliation{
			ID:                    uc.idGen.Generate(),
			ExternalBalance:       external,
			ExternalSource:        strings.TrimSpace(input.ExternalSource),
			InternalBalance:       internal,
			Discrepancy:           discrepancy,
			DiscrepancyPercentage: domain.DiscrepancyPercentage(discrepancy, external),
			Status:                status,
			Notes:                 input.Notes,
			PerformedBy:           actor,
			CreatedAt:             now,
			UpdatedAt:             now,
		}

		if err := uc.recRepo.Create(ctx, tx, r); err != nil {
			return err
		}
		if err := uc.audit.Record(ctx, tx, domain.TableReconciliations, r.ID, domain.AuditOperationCreate, nil, r, actor); err != nil {
			return err
		}

		event := newOutboxEvent(uc.idGen, domain.AggregateTypeReconciliation, r.ID, domain.EventTypeReconciliationRecorded, map[string]any{
			"reconciliation_id": r.ID,
			"status":            r.Status,
			"external_balance":  r.ExternalBalance.String(),
			"internal_balance":  r.InternalBalance.String(),
			"discrepancy":       r.Discrepancy.String(),
		}, now)
		if err := uc.outboxRepo.Create(ctx, tx, event); err != nil {
			return err
		}

		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.ReconciliationsRecorded.WithLabelValues(string(rec.Status)).Inc()
		uc.metrics.LastDiscrepancy.Set(rec.Discrepancy.InexactFloat64())
	}

	event := uc.logger.Info()
	if rec.Status == domain.ReconciliationDiscrepancy {
		event = uc.logger.Warn()
	}
	event.
		Str("reconciliation_id", rec.ID).
		Str("status", string(rec.Status)).
		Str("external_balance", rec.ExternalBalance.String()).
		Str("internal_balance", rec.InternalBalance.String()).
		Str("discrepancy", rec.Discrepancy.String()).
		Msg("reconciliation recorded")

	return rec, nil
}

// GetReconciliation retrieves a reconciliation by ID.
func (uc *ReconciliationUseCase) GetReconciliation(ctx context.Context, id string) (*domain.Reconciliation, error) {
	return uc.recRepo.GetByID(ctx, id)
}

// GetLatest returns the most recent reconciliation.
func (uc *ReconciliationUseCase) GetLatest(ctx context.Context) (*domain.Reconciliation, error) {
	return uc.recRepo.GetLatest(ctx)
}

// ListUnresolved returns DISCREPANCY and INVESTIGATING records, newest first.
func (uc *ReconciliationUseCase) ListUnresolved(ctx context.Context, limit, offset int) ([]*domain.Reconciliation, error) {
	limit, offset = domain.ValidatePagination(limit, offset)
	return uc.recRepo.List(ctx, domain.ReconciliationFilter{
		Statuses: []domain.ReconciliationStatus{domain.ReconciliationDiscrepancy, domain.ReconciliationInvestigating},
		Limit:    limit,
		Offset:   offset,
	})
}

// ListReconciliationsInput represents input for listing reconciliations.
type ListReconciliationsInput struct {
	Status domain.ReconciliationStatus
	Limit  int
	Offset int
}

// ListReconciliations lists reconciliations newest first.
func (uc *ReconciliationUseCase) ListReconciliations(ctx context.Context, input ListReconciliationsInput) ([]*domain.Reconciliation, error) {
	filter := domain.ReconciliationFilter{}
	if input.Status != "" {
		if !input.Status.IsValid() {
			return nil, domain.NewReasonError(domain.ErrInvalidReconciliationState, domain.ReasonInvalidStatus, "status", string(input.Status))
		}
		filter.Statuses = []domain.ReconciliationStatus{input.Status}
	}
	filter.Limit, filter.Offset = domain.ValidatePagination(input.Limit, input.Offset)
	return uc.recRepo.List(ctx, filter)
}

// UpdateReconciliationStatusInput represents an operator status change.
type UpdateReconciliationStatusInput struct {
	Status          domain.ReconciliationStatus
	ResolutionNotes string
}

// UpdateStatus moves a record along DISCREPANCY -> INVESTIGATING -> RESOLVED.
// Balances and discrepancy are never rewritten.
func (uc *ReconciliationUseCase) UpdateStatus(ctx context.Context, id string, input UpdateReconciliationStatusInput) (*domain.Reconciliation, error) {
	if !input.Status.IsValid() {
		return nil, domain.NewReasonError(domain.ErrInvalidReconciliationState, domain.ReasonInvalidStatus, "status", string(input.Status))
	}

	actor := domain.ActorFromContext(ctx, domain.SystemActor)

	var rec *domain.Reconciliation
	err := runInTx(ctx, uc.txManager, nil, func(ctx context.Context, tx Transaction) error {
		current, err := uc.recRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(input.Status) {
			return domain.NewReasonError(domain.ErrInvalidStatusTransition, domain.ReasonStatusTransition, "status",
				string(current.Status)+" -> "+string(input.Status))
		}

		oldValue := domain.JSON{"status": current.Status}
		now := time.Now().UTC()

		current.Status = input.Status
		current.UpdatedAt = now
		if input.ResolutionNotes != "" {
			current.ResolutionNotes = input.ResolutionNotes
		}
		if input.Status == domain.ReconciliationResolved {
			current.ResolvedBy = actor
			current.ResolvedAt = &now
		}

		if err := uc.recRepo.UpdateStatus(ctx, tx, current); err != nil {
			return err
		}

		newValue := domain.JSON{"status": current.Status, "resolution_notes": current.ResolutionNotes}
		if current.ResolvedAt != nil {
			newValue["resolved_by"] = current.ResolvedBy
			newValue["resolved_at"] = current.ResolvedAt
		}
		if err := uc.audit.Record(ctx, tx, domain.TableReconciliations, id, domain.AuditOperationUpdate, oldValue, newValue, actor); err != nil {
			return err
		}

		rec = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info().
		Str("reconciliation_id", rec.ID).
		Str("status", string(rec.Status)).
		Msg("reconciliation status updated")

	return rec, nil
}
