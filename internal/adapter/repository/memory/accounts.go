package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	store *Store
}

func copyAccount(a domain.Account) *domain.Account {
	a.Metadata = maps.Clone(a.Metadata)
	return &a
}

// Create inserts a new account. Names are unique.
func (r *AccountRepository) Create(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	st, err := stateOf(tx)
	if err != nil {
		return err
	}
	if _, ok := st.accountByName[account.Name]; ok {
		return domain.ErrAccountExists
	}
	if account.Balance.IsNegative() {
		return domain.ErrNegativeBalance
	}

	st.accounts[account.ID] = *copyAccount(*account)
	st.accountByName[account.Name] = account.ID
	return nil
}

// GetByID retrieves a committed account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	var (
		acc *domain.Account
		err error
	)
	r.store.read(func(st *state) {
		acc, err = getAccount(st, id)
	})
	return acc, err
}

// GetByName retrieves a committed account by name.
func (r *AccountRepository) GetByName(ctx context.Context, name string) (*domain.Account, error) {
	var (
		acc *domain.Account
		err error
	)
	r.store.read(func(st *state) {
		id, ok := st.accountByName[name]
		if !ok {
			err = domain.ErrAccountNotFound
			return
		}
		acc, err = getAccount(st, id)
	})
	return acc, err
}

// GetByIDForUpdate reads an account inside the unit of work.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Account, error) {
	st, err := stateOf(tx)
	if err != nil {
		return nil, err
	}
	return getAccount(st, id)
}

// GetByIDsForUpdate reads accounts inside the unit of work in id order.
// Missing ids are omitted.
func (r *AccountRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Account, error) {
	st, err := stateOf(tx)
	if err != nil {
		return nil, err
	}

	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	accounts := make([]*domain.Account, 0, len(sorted))
	for _, id := range sorted {
		if a, ok := st.accounts[id]; ok {
			accounts = append(accounts, copyAccount(a))
		}
	}
	return accounts, nil
}

// UpdateBalance sets the balance and bumps the version.
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx usecase.Transaction, id string, balance decimal.Decimal, updatedAt time.Time) error {
	st, err := stateOf(tx)
	if err != nil {
		return err
	}
	a, ok := st.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if balance.IsNegative() {
		return domain.ErrNegativeBalance
	}

	a.Balance = balance
	a.Version++
	a.UpdatedAt = updatedAt
	st.accounts[id] = a
	return nil
}

// SetActive toggles the active flag.
func (r *AccountRepository) SetActive(ctx context.Context, tx usecase.Transaction, id string, active bool, updatedAt time.Time) error {
	st, err := stateOf(tx)
	if err != nil {
		return err
	}
	a, ok := st.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}

	a.IsActive = active
	a.UpdatedAt = updatedAt
	st.accounts[id] = a
	return nil
}

// List returns committed accounts ordered by name.
func (r *AccountRepository) List(ctx context.Context, filter domain.AccountFilter) ([]*domain.Account, error) {
	var accounts []*domain.Account
	r.store.read(func(st *state) {
		for _, a := range st.accounts {
			if !filter.IncludeInactive && !a.IsActive {
				continue
			}
			if filter.Type != "" && !strings.EqualFold(string(a.Type), string(filter.Type)) {
				continue
			}
			accounts = append(accounts, copyAccount(a))
		}
	})

	slices.SortFunc(accounts, func(a, b *domain.Account) int {
		return strings.Compare(a.Name, b.Name)
	})
	return paginate(accounts, filter.Limit, filter.Offset), nil
}

// SumActiveBalances sums balances of active accounts inside the unit of work.
func (r *AccountRepository) SumActiveBalances(ctx context.Context, tx usecase.Transaction) (decimal.Decimal, int, error) {
	st, err := stateOf(tx)
	if err != nil {
		return decimal.Zero, 0, err
	}

	total, count := decimal.Zero, 0
	for _, a := range st.accounts {
		if a.IsActive {
			total = total.Add(a.Balance)
			count++
		}
	}
	return total, count, nil
}

func getAccount(st *state, id string) (*domain.Account, error) {
	a, ok := st.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return copyAccount(a), nil
}
