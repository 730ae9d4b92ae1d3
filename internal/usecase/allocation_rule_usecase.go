package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/infrastructure/metrics"
)

// AllocationRuleUseCase manages allocation rules.
type AllocationRuleUseCase struct {
	txManager   TransactionManager
	ruleRepo    AllocationRuleRepository
	accountRepo AccountRepository
	outboxRepo  OutboxRepository
	audit       *AuditTrail
	idGen       IDGenerator
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewAllocationRuleUseCase creates a new AllocationRuleUseCase.
func NewAllocationRuleUseCase(
	txManager TransactionManager,
	ruleRepo AllocationRuleRepository,
	accountRepo AccountRepository,
	outboxRepo OutboxRepository,
	audit *AuditTrail,
	idGen IDGenerator,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *AllocationRuleUseCase {
	return &AllocationRuleUseCase{
		txManager:   txManager,
		ruleRepo:    ruleRepo,
		accountRepo: accountRepo,
		outboxRepo:  outboxRepo,
		audit:       audit,
		idGen:       idGen,
		metrics:     m,
		logger:      logger,
	}
}

// CreateRuleInput represents input for creating an allocation rule.
type CreateRuleInput struct {
	Name        string
	TriggerType domain.TransactionType
	Entries     []domain.AllocationEntry
	Priority    int
	MinAmount   *decimal.Decimal
	MaxAmount   *decimal.Decimal
	Description string
}

// CreateRule validates and stores a new active rule.
func (uc *AllocationRuleUseCase) CreateRule(ctx context.Context, input CreateRuleInput) (*domain.AllocationRule, error) {
	actor := domain.ActorFromContext(ctx, domain.SystemActor)
	now := time.Now().UTC()

	rule := &domain.AllocationRule{
		ID:          uc.idGen.Generate(),
		Name:        strings.TrimSpace(input.Name),
		TriggerType: input.TriggerType,
		Entries:     input.Entries,
		IsActive:    true,
		Priority:    input.Priority,
		MinAmount:   input.MinAmount,
		MaxAmount:   input.MaxAmount,
		Description: input.Description,
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := rule.ValidateShape(); err != nil {
		return nil, err
	}
	if err := domain.ValidateRule(rule.Entries, uc.lookup(ctx)); err != nil {
		return nil, err
	}

	err := runInTx(ctx, uc.txManager, nil, func(ctx context.Context, tx Transaction) error {
		if err := uc.ruleRepo.Create(ctx, tx, rule); err != nil {
			return err
		}
		if err := uc.audit.Record(ctx, tx, domain.TableAllocationRules, rule.ID, domain.AuditOperationCreate, nil, rule, actor); err != nil {
			return err
		}
		return uc.ruleChanged(ctx, tx, rule, domain.AuditOperationCreate, now)
	})
	if err != nil {
		return nil, err
	}

	uc.observe(domain.AuditOperationCreate)
	uc.logger.Info().
		Str("rule_id", rule.ID).
		Str("name", rule.Name).
		Int("priority", rule.Priority).
		Msg("allocation rule created")

	return rule, nil
}

// UpdateRuleInput represents a partial rule update. Nil fields are left unchanged.
// ClearMinAmount and ClearMaxAmount remove a bound and win over a new value.
type UpdateRuleInput struct {
	Name           *string
	Entries        []domain.AllocationEntry
	Priority       *int
	IsActive       *bool
	MinAmount      *decimal.Decimal
	MaxAmount      *decimal.Decimal
	ClearMinAmount bool
	ClearMaxAmount bool
	Description    *string
}

// UpdateRule applies input to the rule. Entries are re-validated against
// account state whenever the resulting rule is active.
func (uc *AllocationRuleUseCase) UpdateRule(ctx context.Context, id string, input UpdateRuleInput) (*domain.AllocationRule, error) {
	actor := domain.ActorFromContext(ctx, domain.SystemActor)

	var rule *domain.AllocationRule
	err := runInTx(ctx, uc.txManager, nil, func(ctx context.Context, tx Transaction) error {
		current, err := uc.ruleRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		before := *current

		if input.Name != nil {
			current.Name = strings.TrimSpace(*input.Name)
		}
		if input.Entries != nil {
			current.Entries = input.Entries
		}
		if input.Priority != nil {
			current.Priority = *input.Priority
		}
		if input.IsActive != nil {
			current.IsActive = *input.IsActive
		}
		if input.MinAmount != nil {
			current.MinAmount = input.MinAmount
		}
		if input.MaxAmount != nil {
			current.MaxAmount = input.MaxAmount
		}
		if input.ClearMinAmount {
			current.MinAmount = nil
		}
		if input.ClearMaxAmount {
			current.MaxAmount = nil
		}
		if input.Description != nil {
			current.Description = *input.Description
		}

		if err := current.ValidateShape(); err != nil {
			return err
		}
		if current.IsActive {
			if err := domain.ValidateRule(current.Entries, uc.lookup(ctx)); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		current.UpdatedAt = now
		if err := uc.ruleRepo.Update(ctx, tx, current); err != nil {
			return err
		}
		if err := uc.audit.Record(ctx, tx, domain.TableAllocationRules, id, domain.AuditOperationUpdate, &before, current, actor); err != nil {
			return err
		}
		if err := uc.ruleChanged(ctx, tx, current, domain.AuditOperationUpdate, now); err != nil {
			return err
		}

		rule = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.observe(domain.AuditOperationUpdate)
	return rule, nil
}

// DeactivateRule stops a rule from matching new deposits. Rules are never deleted.
func (uc *AllocationRuleUseCase) DeactivateRule(ctx context.Context, id string) (*domain.AllocationRule, error) {
	inactive := false
	return uc.UpdateRule(ctx, id, UpdateRuleInput{IsActive: &inactive})
}

// GetRule retrieves a rule by ID.
func (uc *AllocationRuleUseCase) GetRule(ctx context.Context, id string) (*domain.AllocationRule, error) {
	return uc.ruleRepo.GetByID(ctx, id)
}

// ListRules lists rules by priority descending.
func (uc *AllocationRuleUseCase) ListRules(ctx context.Context, activeOnly bool) ([]*domain.AllocationRule, error) {
	return uc.ruleRepo.List(ctx, activeOnly)
}

// RuleValidation is the dry-run verdict on a set of entries.
type RuleValidation struct {
	Valid           bool            `json:"valid"`
	Reason          string          `json:"reason,omitempty"`
	Field           string          `json:"field,omitempty"`
	Message         string          `json:"message,omitempty"`
	TotalPercentage decimal.Decimal `json:"total_percentage"`
}

// ValidateRuleEntries checks entries against current account state without
// storing anything. Storage failures are returned as errors, validation
// failures as a verdict.
func (uc *AllocationRuleUseCase) ValidateRuleEntries(ctx context.Context, entries []domain.AllocationEntry) (*RuleValidation, error) {
	verdict := &RuleValidation{Valid: true, TotalPercentage: domain.TotalPercentage(entries)}

	err := domain.ValidateRule(entries, uc.lookup(ctx))
	if err == nil {
		return verdict, nil
	}

	code := domain.ReasonCode(err)
	if code == domain.ReasonInternal {
		return nil, err
	}

	verdict.Valid = false
	verdict.Reason = code
	verdict.Message = err.Error()
	var re *domain.ReasonError
	if errors.As(err, &re) {
		verdict.Field = re.Field
		verdict.Message = re.Message
	}
	return verdict, nil
}

func (uc *AllocationRuleUseCase) lookup(ctx context.Context) domain.AccountLookup {
	return func(id string) (*domain.Account, error) {
		return uc.accountRepo.GetByID(ctx, id)
	}
}

func (uc *AllocationRuleUseCase) ruleChanged(ctx context.Context, tx Transaction, rule *domain.AllocationRule, op domain.AuditOperation, now time.Time) error {
	event := newOutboxEvent(uc.idGen, domain.AggregateTypeRule, rule.ID, domain.EventTypeRuleChanged, map[string]any{
		"rule_id":   rule.ID,
		"name":      rule.Name,
		"operation": op,
		"is_active": rule.IsActive,
		"priority":  rule.Priority,
	}, now)
	return uc.outboxRepo.Create(ctx, tx, event)
}

func (uc *AllocationRuleUseCase) observe(op domain.AuditOperation) {
	if uc.metrics != nil {
		uc.metrics.AllocationRuleChanges.WithLabelValues(string(op)).Inc()
	}
}
