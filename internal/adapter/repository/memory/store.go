// Package memory is an in-process implementation of the usecase repositories.
// A unit of work works on a private copy of the committed state; Commit
// publishes the copy and Rollback drops it. Units of work are serialized.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// ErrTxDone is returned when a finished unit of work is used again.
var ErrTxDone = errors.New("memory: transaction already committed or rolled back")

type state struct {
	accounts      map[string]domain.Account
	accountByName map[string]string

	transactions  map[string]domain.Transaction
	txOrder       []string
	txByReference map[string]string

	rules     map[string]domain.AllocationRule
	ruleOrder []string

	batches map[string]domain.AllocationBatch

	audit []domain.AuditLog

	reconciliations map[string]domain.Reconciliation
	recOrder        []string

	outbox      map[string]domain.OutboxEvent
	outboxOrder []string
}

func newState() *state {
	return &state{
		accounts:        make(map[string]domain.Account),
		accountByName:   make(map[string]string),
		transactions:    make(map[string]domain.Transaction),
		txByReference:   make(map[string]string),
		rules:           make(map[string]domain.AllocationRule),
		batches:         make(map[string]domain.AllocationBatch),
		reconciliations: make(map[string]domain.Reconciliation),
		outbox:          make(map[string]domain.OutboxEvent),
	}
}

func (s *state) clone() *state {
	return &state{
		accounts:        maps.Clone(s.accounts),
		accountByName:   maps.Clone(s.accountByName),
		transactions:    maps.Clone(s.transactions),
		txOrder:         slices.Clone(s.txOrder),
		txByReference:   maps.Clone(s.txByReference),
		rules:           maps.Clone(s.rules),
		ruleOrder:       slices.Clone(s.ruleOrder),
		batches:         maps.Clone(s.batches),
		audit:           slices.Clone(s.audit),
		reconciliations: maps.Clone(s.reconciliations),
		recOrder:        slices.Clone(s.recOrder),
		outbox:          maps.Clone(s.outbox),
		outboxOrder:     slices.Clone(s.outboxOrder),
	}
}

// Store holds the committed state and hands out repositories over it.
type Store struct {
	mu        sync.RWMutex
	committed *state

	// sem admits one unit of work at a time.
	sem chan struct{}
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		committed: newState(),
		sem:       make(chan struct{}, 1),
	}
}

// read runs fn against the committed state under a read lock.
func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.committed)
}

// write runs fn against the committed state outside any unit of work.
// Only the outbox relay uses it.
func (s *Store) write(fn func(st *state)) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.committed)
}

// Tx is a memory unit of work.
type Tx struct {
	store *Store
	state *state
	done  bool
}

// Commit publishes the unit's state.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true

	t.store.mu.Lock()
	t.store.committed = t.state
	t.store.mu.Unlock()

	<-t.store.sem
	return nil
}

// Rollback discards the unit's state. It is a no-op after Commit.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	<-t.store.sem
	return nil
}

// TxManager begins memory units of work.
type TxManager struct {
	store *Store
}

// NewTxManager creates a TxManager over store.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Begin waits for the running unit of work to finish, then starts a new one.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	select {
	case m.store.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.store.mu.RLock()
	st := m.store.committed.clone()
	m.store.mu.RUnlock()

	return &Tx{store: m.store, state: st}, nil
}

func stateOf(tx usecase.Transaction) (*state, error) {
	t, ok := tx.(*Tx)
	if !ok {
		return nil, errors.New("memory: foreign transaction")
	}
	if t.done {
		return nil, ErrTxDone
	}
	return t.state, nil
}

// Accounts returns the account repository.
func (s *Store) Accounts() *AccountRepository { return &AccountRepository{store: s} }

// Transactions returns the transaction repository.
func (s *Store) Transactions() *TransactionRepository { return &TransactionRepository{store: s} }

// Rules returns the allocation rule repository.
func (s *Store) Rules() *RuleRepository { return &RuleRepository{store: s} }

// Batches returns the allocation batch repository.
func (s *Store) Batches() *BatchRepository { return &BatchRepository{store: s} }

// Audit returns the audit repository.
func (s *Store) Audit() *AuditRepository { return &AuditRepository{store: s} }

// Reconciliations returns the reconciliation repository.
func (s *Store) Reconciliations() *ReconciliationRepository {
	return &ReconciliationRepository{store: s}
}

// Outbox returns the outbox repository.
func (s *Store) Outbox() *OutboxRepository { return &OutboxRepository{store: s} }

var (
	_ usecase.TransactionManager        = (*TxManager)(nil)
	_ usecase.AccountRepository         = (*AccountRepository)(nil)
	_ usecase.TransactionRepository     = (*TransactionRepository)(nil)
	_ usecase.AllocationRuleRepository  = (*RuleRepository)(nil)
	_ usecase.AllocationBatchRepository = (*BatchRepository)(nil)
	_ usecase.AuditRepository           = (*AuditRepository)(nil)
	_ usecase.ReconciliationRepository  = (*ReconciliationRepository)(nil)
	_ usecase.OutboxRepository          = (*OutboxRepository)(nil)
)

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
