package memory

import (
	"context"
	"maps"
	"time"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	store *Store
}

func copyTransaction(t domain.Transaction) *domain.Transaction {
	t.Metadata = maps.Clone(t.Metadata)
	return &t
}

// Create inserts a transaction. External references are unique.
func (r *TransactionRepository) Create(ctx context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	st, err := stateOf(tx)
	if err != nil {
		return err
	}
	if t.ExternalReference != "" {
		if _, ok := st.txByReference[t.ExternalReference]; ok {
			return domain.ErrDuplicateExternalReference
		}
		st.txByReference[t.ExternalReference] = t.ID
	}

	st.transactions[t.ID] = *copyTransaction(*t)
	st.txOrder = append(st.txOrder, t.ID)
	return nil
}

// GetByID retrieves a committed transaction by ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	var (
		t   *domain.Transaction
		err error
	)
	r.store.read(func(st *state) {
		t, err = getTransaction(st, id)
	})
	return t, err
}

// GetByIDForUpdate reads a transaction inside the unit of work.
func (r *TransactionRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Transaction, error) {
	st, err := stateOf(tx)
	if err != nil {
		return nil, err
	}
	return getTransaction(st, id)
}

// UpdateStatus changes the status of a transaction.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx usecase.Transaction, id string, status domain.TransactionStatus, updatedAt time.Time, completedAt *time.Time) error {
	st, err := stateOf(tx)
	if err != nil {
		return err
	}
	t, ok := st.transactions[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}

	t.Status = status
	t.UpdatedAt = updatedAt
	if completedAt != nil {
		t.CompletedAt = completedAt
	}
	st.transactions[id] = t
	return nil
}

// List returns committed transactions newest first.
func (r *TransactionRepository) List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	r.store.read(func(st *state) {
		for i := len(st.txOrder) - 1; i >= 0; i-- {
			t := st.transactions[st.txOrder[i]]
			if matchTransaction(&t, filter) {
				out = append(out, copyTransaction(t))
			}
		}
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

// ListChildren returns allocation children of parentID in creation order.
func (r *TransactionRepository) ListChildren(ctx context.Context, tx usecase.Transaction, parentID string) ([]*domain.Transaction, error) {
	st, err := stateOf(tx)
	if err != nil {
		return nil, err
	}

	var out []*domain.Transaction
	for _, id := range st.txOrder {
		t := st.transactions[id]
		if domain.StringValue(t.ParentTransactionID) == parentID {
			out = append(out, copyTransaction(t))
		}
	}
	return out, nil
}

func getTransaction(st *state, id string) (*domain.Transaction, error) {
	t, ok := st.transactions[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return copyTransaction(t), nil
}

func matchTransaction(t *domain.Transaction, f domain.TransactionFilter) bool {
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.AccountID != "" && domain.StringValue(t.FromAccountID) != f.AccountID && domain.StringValue(t.ToAccountID) != f.AccountID {
		return false
	}
	if f.ParentTransactionID != "" && domain.StringValue(t.ParentTransactionID) != f.ParentTransactionID {
		return false
	}
	if f.From != nil && t.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !t.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}
