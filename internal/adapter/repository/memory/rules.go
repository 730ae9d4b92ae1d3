package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// RuleRepository implements usecase.AllocationRuleRepository.
type RuleRepository struct {
	store *Store
}

func copyRule(r domain.AllocationRule) *domain.AllocationRule {
	r.Entries = slices.Clone(r.Entries)
	return &r
}

// Create inserts a rule. Names are unique.
func (r *RuleRepository) Create(ctx context.Context, tx usecase.Transaction, rule *domain.AllocationRule) error {
	st, err := stateOf(tx)
	if err != nil {
		return err
	}
	for _, existing := range st.rules {
		if existing.Name == rule.Name {
			return domain.ErrRuleExists
		}
	}

	st.rules[rule.ID] = *copyRule(*rule)
	st.ruleOrder = append(st.ruleOrder, rule.ID)
	return nil
}

// Update replaces a stored rule.
func (r *RuleRepository) Update(ctx context.Context, tx usecase.Transaction, rule *domain.AllocationRule) error {
	st, err := stateOf(tx)
	if err != nil {
		return err
	}
	if _, ok := st.rules[rule.ID]; !ok {
		return domain.ErrRuleNotFound
	}
	for id, existing := range st.rules {
		if id != rule.ID && existing.Name == rule.Name {
			return domain.ErrRuleExists
		}
	}

	st.rules[rule.ID] = *copyRule(*rule)
	return nil
}

// GetByID retrieves a committed rule by ID.
func (r *RuleRepository) GetByID(ctx context.Context, id string) (*domain.AllocationRule, error) {
	var (
		rule *domain.AllocationRule
		err  error
	)
	r.store.read(func(st *state) {
		rule, err = getRule(st, id)
	})
	return rule, err
}

// GetByIDForUpdate reads a rule inside the unit of work.
func (r *RuleRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.AllocationRule, error) {
	st, err := stateOf(tx)
	if err != nil {
		return nil, err
	}
	return getRule(st, id)
}

// List returns committed rules by priority descending, then creation order.
func (r *RuleRepository) List(ctx context.Context, activeOnly bool) ([]*domain.AllocationRule, error) {
	var rules []*domain.AllocationRule
	r.store.read(func(st *state) {
		rules = sortedRules(st, func(rule *domain.AllocationRule) bool {
			return !activeOnly || rule.IsActive
		})
	})
	return rules, nil
}

// ListActiveByTrigger returns active rules for trigger inside the unit of work.
func (r *RuleRepository) ListActiveByTrigger(ctx context.Context, tx usecase.Transaction, trigger domain.TransactionType) ([]*domain.AllocationRule, error) {
	st, err := stateOf(tx)
	if err != nil {
		return nil, err
	}
	return sortedRules(st, func(rule *domain.AllocationRule) bool {
		return rule.IsActive && rule.TriggerType == trigger
	}), nil
}

func getRule(st *state, id string) (*domain.AllocationRule, error) {
	rule, ok := st.rules[id]
	if !ok {
		return nil, domain.ErrRuleNotFound
	}
	return copyRule(rule), nil
}

// sortedRules walks rules in creation order so the stable sort keeps
// older rules first among equal priorities.
func sortedRules(st *state, keep func(*domain.AllocationRule) bool) []*domain.AllocationRule {
	out := make([]*domain.AllocationRule, 0, len(st.ruleOrder))
	for _, id := range st.ruleOrder {
		rule := copyRule(st.rules[id])
		if keep(rule) {
			out = append(out, rule)
		}
	}
	slices.SortStableFunc(out, func(a, b *domain.AllocationRule) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	return out
}

// BatchRepository implements usecase.AllocationBatchRepository.
type BatchRepository struct {
	store *Store
}

// Insert writes the allocation marker for a parent.
func (r *BatchRepository) Insert(ctx context.Context, tx usecase.Transaction, batch *domain.AllocationBatch) error {
	st, err := stateOf(tx)
	if err != nil {
		return err
	}
	if _, ok := st.batches[batch.ParentTransactionID]; ok {
		return domain.ErrAllocationAlreadyDone
	}
	st.batches[batch.ParentTransactionID] = *batch
	return nil
}

// Complete records the outcome on the marker.
func (r *BatchRepository) Complete(ctx context.Context, tx usecase.Transaction, parentID string, childCount int, total decimal.Decimal) error {
	st, err := stateOf(tx)
	if err != nil {
		return err
	}
	b, ok := st.batches[parentID]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	b.ChildCount = childCount
	b.TotalAllocated = total
	st.batches[parentID] = b
	return nil
}

// Get retrieves the committed marker for parentID.
func (r *BatchRepository) Get(ctx context.Context, parentID string) (*domain.AllocationBatch, error) {
	var (
		batch *domain.AllocationBatch
		err   error
	)
	r.store.read(func(st *state) {
		b, ok := st.batches[parentID]
		if !ok {
			err = domain.ErrTransactionNotFound
			return
		}
		batch = &b
	})
	return batch, err
}
