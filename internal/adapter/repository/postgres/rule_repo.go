package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

const (
	ruleColumns = `id, name, trigger_type, entries, is_active, priority, min_amount, max_amount,
		description, created_by, created_at, updated_at`

	ruleNameConstraint = "allocation_rules_name_key"
	ruleOrder          = ` ORDER BY priority DESC, created_at, id`
)

// AllocationRuleRepository implements usecase.AllocationRuleRepository.
// Entries are stored as a JSONB array.
type AllocationRuleRepository struct {
	db DBTX
}

// NewAllocationRuleRepository creates a new AllocationRuleRepository.
func NewAllocationRuleRepository(db DBTX) *AllocationRuleRepository {
	return &AllocationRuleRepository{db: db}
}

// Create inserts a rule.
func (r *AllocationRuleRepository) Create(ctx context.Context, tx usecase.Transaction, rule *domain.AllocationRule) error {
	entries, err := json.Marshal(rule.Entries)
	if err != nil {
		return err
	}

	_, err = conn(r.db, tx).Exec(ctx, `
		INSERT INTO allocation_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rule.ID,
		rule.Name,
		string(rule.TriggerType),
		entries,
		rule.IsActive,
		rule.Priority,
		optionalNumeric(rule.MinAmount),
		optionalNumeric(rule.MaxAmount),
		rule.Description,
		rule.CreatedBy,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if isUniqueViolation(err, ruleNameConstraint) {
		return domain.ErrRuleExists
	}

	return err
}

// Update rewrites every mutable column of rule.
func (r *AllocationRuleRepository) Update(ctx context.Context, tx usecase.Transaction, rule *domain.AllocationRule) error {
	entries, err := json.Marshal(rule.Entries)
	if err != nil {
		return err
	}

	tag, err := conn(r.db, tx).Exec(ctx, `
		UPDATE allocation_rules
		SET name = $2, trigger_type = $3, entries = $4, is_active = $5, priority = $6,
			min_amount = $7, max_amount = $8, description = $9, updated_at = $10
		WHERE id = $1`,
		rule.ID,
		rule.Name,
		string(rule.TriggerType),
		entries,
		rule.IsActive,
		rule.Priority,
		optionalNumeric(rule.MinAmount),
		optionalNumeric(rule.MaxAmount),
		rule.Description,
		rule.UpdatedAt,
	)
	if isUniqueViolation(err, ruleNameConstraint) {
		return domain.ErrRuleExists
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRuleNotFound
	}

	return nil
}

// GetByID retrieves a rule by ID.
func (r *AllocationRuleRepository) GetByID(ctx context.Context, id string) (*domain.AllocationRule, error) {
	row := r.db.QueryRow(ctx, `SELECT `+ruleColumns+` FROM allocation_rules WHERE id = $1`, id)
	return ruleOrNotFound(scanRule(row))
}

// GetByIDForUpdate retrieves a rule by ID with a FOR UPDATE lock.
func (r *AllocationRuleRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.AllocationRule, error) {
	row := conn(r.db, tx).QueryRow(ctx, `SELECT `+ruleColumns+` FROM allocation_rules WHERE id = $1 FOR UPDATE`, id)
	return ruleOrNotFound(scanRule(row))
}

// List retrieves rules in evaluation order.
func (r *AllocationRuleRepository) List(ctx context.Context, activeOnly bool) ([]*domain.AllocationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM allocation_rules`
	if activeOnly {
		query += ` WHERE is_active`
	}

	rows, err := r.db.Query(ctx, query+ruleOrder)
	if err != nil {
		return nil, err
	}

	return collect(rows, scanRule)
}

// ListActiveByTrigger returns active rules for trigger ordered by priority
// descending, then creation time ascending.
func (r *AllocationRuleRepository) ListActiveByTrigger(ctx context.Context, tx usecase.Transaction, trigger domain.TransactionType) ([]*domain.AllocationRule, error) {
	rows, err := conn(r.db, tx).Query(ctx,
		`SELECT `+ruleColumns+` FROM allocation_rules WHERE is_active AND trigger_type = $1`+ruleOrder,
		string(trigger))
	if err != nil {
		return nil, err
	}

	return collect(rows, scanRule)
}

func scanRule(row rowScanner) (*domain.AllocationRule, error) {
	var (
		rule                 domain.AllocationRule
		trigger              string
		entries              []byte
		minAmount, maxAmount decimal.NullDecimal
	)

	err := row.Scan(&rule.ID, &rule.Name, &trigger, &entries, &rule.IsActive, &rule.Priority,
		&minAmount, &maxAmount, &rule.Description, &rule.CreatedBy, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rule.TriggerType = domain.TransactionType(trigger)
	rule.MinAmount = optionalDecimal(minAmount)
	rule.MaxAmount = optionalDecimal(maxAmount)
	if err := json.Unmarshal(entries, &rule.Entries); err != nil {
		return nil, err
	}

	return &rule, nil
}

func ruleOrNotFound(rule *domain.AllocationRule, err error) (*domain.AllocationRule, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRuleNotFound
	}
	return rule, err
}
