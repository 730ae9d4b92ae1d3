package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

const reconciliationColumns = `id, external_balance, external_source, internal_balance, discrepancy,
	discrepancy_percentage, status, notes, resolution_notes, performed_by, resolved_by,
	created_at, updated_at, resolved_at`

// ReconciliationRepository implements usecase.ReconciliationRepository.
type ReconciliationRepository struct {
	db DBTX
}

// NewReconciliationRepository creates a new ReconciliationRepository.
func NewReconciliationRepository(db DBTX) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

// Create inserts a reconciliation record.
func (r *ReconciliationRepository) Create(ctx context.Context, tx usecase.Transaction, rec *domain.Reconciliation) error {
	_, err := conn(r.db, tx).Exec(ctx, `
		INSERT INTO reconciliation_log (`+reconciliationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID,
		decimalToNumeric(rec.ExternalBalance),
		rec.ExternalSource,
		decimalToNumeric(rec.InternalBalance),
		decimalToNumeric(rec.Discrepancy),
		decimalToNumeric(rec.DiscrepancyPercentage),
		string(rec.Status),
		rec.Notes,
		rec.ResolutionNotes,
		rec.PerformedBy,
		rec.ResolvedBy,
		rec.CreatedAt,
		rec.UpdatedAt,
		optionalTimestamptz(rec.ResolvedAt),
	)

	return err
}

// GetByID retrieves a reconciliation by ID.
func (r *ReconciliationRepository) GetByID(ctx context.Context, id string) (*domain.Reconciliation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+reconciliationColumns+` FROM reconciliation_log WHERE id = $1`, id)
	return reconciliationOrNotFound(scanReconciliation(row))
}

// GetByIDForUpdate retrieves a reconciliation by ID with a FOR UPDATE lock.
func (r *ReconciliationRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Reconciliation, error) {
	row := conn(r.db, tx).QueryRow(ctx,
		`SELECT `+reconciliationColumns+` FROM reconciliation_log WHERE id = $1 FOR UPDATE`, id)
	return reconciliationOrNotFound(scanReconciliation(row))
}

// GetLatest retrieves the most recent reconciliation.
func (r *ReconciliationRepository) GetLatest(ctx context.Context) (*domain.Reconciliation, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+reconciliationColumns+` FROM reconciliation_log ORDER BY created_at DESC, id DESC LIMIT 1`)
	return reconciliationOrNotFound(scanReconciliation(row))
}

// List retrieves reconciliations newest first.
func (r *ReconciliationRepository) List(ctx context.Context, filter domain.ReconciliationFilter) ([]*domain.Reconciliation, error) {
	var c conditions
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		c.add("status = ANY($%d)", statuses)
	}
	where := c.where()
	page := c.page(filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx,
		`SELECT `+reconciliationColumns+` FROM reconciliation_log`+where+` ORDER BY created_at DESC, id DESC`+page,
		c.args...)
	if err != nil {
		return nil, err
	}

	return collect(rows, scanReconciliation)
}

// UpdateStatus persists the status and resolution fields of rec.
func (r *ReconciliationRepository) UpdateStatus(ctx context.Context, tx usecase.Transaction, rec *domain.Reconciliation) error {
	tag, err := conn(r.db, tx).Exec(ctx, `
		UPDATE reconciliation_log
		SET status = $2, resolution_notes = $3, resolved_by = $4, resolved_at = $5, updated_at = $6
		WHERE id = $1`,
		rec.ID,
		string(rec.Status),
		rec.ResolutionNotes,
		rec.ResolvedBy,
		optionalTimestamptz(rec.ResolvedAt),
		rec.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReconciliationNotFound
	}

	return nil
}

func scanReconciliation(row rowScanner) (*domain.Reconciliation, error) {
	var (
		rec        domain.Reconciliation
		status     string
		resolvedAt pgtype.Timestamptz
	)

	err := row.Scan(&rec.ID, &rec.ExternalBalance, &rec.ExternalSource, &rec.InternalBalance,
		&rec.Discrepancy, &rec.DiscrepancyPercentage, &status, &rec.Notes, &rec.ResolutionNotes,
		&rec.PerformedBy, &rec.ResolvedBy, &rec.CreatedAt, &rec.UpdatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	rec.Status = domain.ReconciliationStatus(status)
	rec.ResolvedAt = timestamptzPtr(resolvedAt)

	return &rec, nil
}

func reconciliationOrNotFound(rec *domain.Reconciliation, err error) (*domain.Reconciliation, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReconciliationNotFound
	}
	return rec, err
}
