package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/infrastructure/metrics"
)

// AllocationStatus tags the outcome of an allocation request.
type AllocationStatus string

const (
	AllocationApplied        AllocationStatus = "applied"
	AllocationAlreadyApplied AllocationStatus = "already_applied"
	AllocationNoRule         AllocationStatus = "no_rule"
)

// AllocationBreakdown describes one child transaction.
type AllocationBreakdown struct {
	AccountID     string          `json:"account_id"`
	AccountName   string          `json:"account_name"`
	Amount        decimal.Decimal `json:"amount"`
	Percentage    decimal.Decimal `json:"percentage"`
	TransactionID string          `json:"transaction_id"`
}

// SkippedEntry describes a rule entry that was not distributed.
type SkippedEntry struct {
	AccountID  string          `json:"account_id"`
	Percentage decimal.Decimal `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
}

// Skip reasons.
const (
	SkipReasonNotFound    = "account_not_found"
	SkipReasonInactive    = "account_inactive"
	SkipReasonRoundedZero = "rounds_to_zero"
)

// AllocationResult is returned by ApplyAllocations.
type AllocationResult struct {
	ParentTransactionID string                `json:"parent_transaction_id"`
	Status              AllocationStatus      `json:"status"`
	RuleID              string                `json:"rule_id,omitempty"`
	RuleName            string                `json:"rule_name,omitempty"`
	ChildTransactionIDs []string              `json:"child_transaction_ids"`
	TotalAllocated      decimal.Decimal       `json:"total_allocated"`
	Residual            decimal.Decimal       `json:"residual"`
	Breakdown           []AllocationBreakdown `json:"breakdown"`
	Skipped             []SkippedEntry        `json:"skipped,omitempty"`
}

// AllocationEngine fans completed deposits out across accounts according to
// the highest-priority matching rule. Each application is all-or-nothing and
// happens at most once per parent transaction.
type AllocationEngine struct {
	txManager       TransactionManager
	accountRepo     AccountRepository
	transactionRepo TransactionRepository
	ruleRepo        AllocationRuleRepository
	batchRepo       AllocationBatchRepository
	outboxRepo      OutboxRepository
	audit           *AuditTrail
	idGen           IDGenerator
	retrier         Retrier
	cache           Cache
	metrics         *metrics.Metrics
	logger          zerolog.Logger

	policy            domain.InactiveTargetPolicy
	fallbackAccountID string
}

// AllocationEngineConfig holds AllocationEngine dependencies.
// Retrier, Cache and Metrics are optional.
type AllocationEngineConfig struct {
	TxManager       TransactionManager
	AccountRepo     AccountRepository
	TransactionRepo TransactionRepository
	RuleRepo        AllocationRuleRepository
	BatchRepo       AllocationBatchRepository
	OutboxRepo      OutboxRepository
	Audit           *AuditTrail
	IDGen           IDGenerator
	Retrier         Retrier
	Cache           Cache
	Metrics         *metrics.Metrics
	Logger          zerolog.Logger

	InactiveTargetPolicy domain.InactiveTargetPolicy
	FallbackAccountID    string
}

// NewAllocationEngine creates a new AllocationEngine.
func NewAllocationEngine(cfg AllocationEngineConfig) (*AllocationEngine, error) {
	policy := cfg.InactiveTargetPolicy
	if policy == "" {
		policy = domain.InactiveTargetSkip
	}
	if policy == domain.InactiveTargetFallback && cfg.FallbackAccountID == "" {
		return nil, errors.New("allocation engine: fallback policy requires a fallback account")
	}

	return &AllocationEngine{
		txManager:         cfg.TxManager,
		accountRepo:       cfg.AccountRepo,
		transactionRepo:   cfg.TransactionRepo,
		ruleRepo:          cfg.RuleRepo,
		batchRepo:         cfg.BatchRepo,
		outboxRepo:        cfg.OutboxRepo,
		audit:             cfg.Audit,
		idGen:             cfg.IDGen,
		retrier:           cfg.Retrier,
		cache:             cfg.Cache,
		metrics:           cfg.Metrics,
		logger:            cfg.Logger,
		policy:            policy,
		fallbackAccountID: cfg.FallbackAccountID,
	}, nil
}

// ApplyAllocations applies the matching rule to parentID in its own unit of work.
// An empty actor falls back to the context principal, then to the engine itself.
func (e *AllocationEngine) ApplyAllocations(ctx context.Context, parentID, actor string) (*AllocationResult, error) {
	start := time.Now()
	if actor == "" {
		actor = domain.ActorFromContext(ctx, domain.AllocationEngineActor)
	}

	var result *AllocationResult
	err := runInTx(ctx, e.txManager, e.retrier, func(ctx context.Context, tx Transaction) error {
		parent, err := e.transactionRepo.GetByIDForUpdate(ctx, tx, parentID)
		if err != nil {
			return err
		}

		r, err := e.ApplyAllocationsTx(ctx, tx, parent, actor)
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	if errors.Is(err, domain.ErrAllocationAlreadyDone) {
		// A concurrent caller won the marker race and has committed.
		result, err = e.existingResult(ctx, parentID)
	}
	if err != nil {
		e.observeFailure(err)
		e.logger.Error().Err(err).
			Str("parent_transaction_id", parentID).
			Str("reason", domain.ReasonCode(err)).
			Msg("allocation failed, no allocation rows were written")
		return nil, err
	}

	e.observe(result, time.Since(start))
	if result.Status == AllocationApplied {
		invalidateTreasuryStatus(ctx, e.cache, e.logger)
		e.logger.Info().
			Str("parent_transaction_id", parentID).
			Str("rule_id", result.RuleID).
			Int("children", len(result.ChildTransactionIDs)).
			Str("total_allocated", result.TotalAllocated.String()).
			Str("residual", result.Residual.String()).
			Msg("allocation applied")
	}

	return result, nil
}

// ApplyAllocationsTx applies the matching rule to parent inside the caller's
// unit of work. parent should be locked by the caller. Any error leaves the
// unit of work to be rolled back by the caller.
func (e *AllocationEngine) ApplyAllocationsTx(ctx context.Context, tx Transaction, parent *domain.Transaction, actor string) (*AllocationResult, error) {
	if !parent.IsAllocatable() {
		return nil, domain.NewReasonError(domain.ErrNotAllocatable, domain.ReasonConflict, "parent_transaction_id",
			fmt.Sprintf("%s is %s/%s", parent.ID, parent.Type, parent.Status))
	}

	children, err := e.transactionRepo.ListChildren(ctx, tx, parent.ID)
	if err != nil {
		return nil, err
	}
	if len(children) > 0 {
		return alreadyAppliedResult(parent.ID, children), nil
	}
	// Every slice may have been skipped, leaving a marker with no children.
	batch, err := e.batchRepo.Get(ctx, parent.ID)
	switch {
	case err == nil:
		result := alreadyAppliedResult(parent.ID, nil)
		result.RuleID = batch.RuleID
		return result, nil
	case !errors.Is(err, domain.ErrTransactionNotFound):
		return nil, err
	}

	rule, err := e.selectRule(ctx, tx, parent)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		e.logger.Info().
			Str("parent_transaction_id", parent.ID).
			Str("amount", parent.Amount.String()).
			Msg("no allocation rule matches transaction")
		return &AllocationResult{
			ParentTransactionID: parent.ID,
			Status:              AllocationNoRule,
			ChildTransactionIDs: []string{},
			TotalAllocated:      decimal.Zero,
			Residual:            parent.Amount,
			Breakdown:           []AllocationBreakdown{},
		}, nil
	}

	now := time.Now().UTC()
	if err := e.batchRepo.Insert(ctx, tx, &domain.AllocationBatch{
		ParentTransactionID: parent.ID,
		RuleID:              rule.ID,
		TotalAllocated:      decimal.Zero,
		CreatedBy:           actor,
		CreatedAt:           now,
	}); err != nil {
		return nil, err
	}

	if err := domain.ValidateEntries(rule.Entries); err != nil {
		return nil, err
	}

	accounts, err := e.lockParticipants(ctx, tx, parent, rule)
	if err != nil {
		return nil, err
	}
	source := accounts[domain.StringValue(parent.ToAccountID)]
	if source == nil {
		return nil, domain.NewReasonError(domain.ErrAccountNotFound, domain.ReasonNotFound, "to_account_id",
			domain.StringValue(parent.ToAccountID))
	}

	if e.policy == domain.InactiveTargetFail {
		lookup := func(id string) (*domain.Account, error) {
			if a, ok := accounts[id]; ok {
				return a, nil
			}
			return nil, domain.ErrAccountNotFound
		}
		if err := domain.ValidateRule(rule.Entries, lookup); err != nil {
			return nil, err
		}
	}

	writer := balanceWriter{accounts: e.accountRepo, audit: e.audit}
	result := &AllocationResult{
		ParentTransactionID: parent.ID,
		Status:              AllocationApplied,
		RuleID:              rule.ID,
		RuleName:            rule.Name,
		ChildTransactionIDs: make([]string, 0, len(rule.Entries)),
		TotalAllocated:      decimal.Zero,
		Breakdown:           make([]AllocationBreakdown, 0, len(rule.Entries)),
	}

	for i, entry := range rule.Entries {
		amount := domain.PercentOf(parent.Amount, entry.Percentage)

		target, skipReason, err := e.resolveTarget(accounts, entry, i)
		if err != nil {
			return nil, err
		}
		if skipReason == "" && amount.IsZero() {
			skipReason = SkipReasonRoundedZero
		}
		if skipReason != "" {
			e.skip(result, parent.ID, entry, amount, skipReason)
			continue
		}

		metadata := map[string]any{
			domain.MetaAllocationRuleID:   rule.ID,
			domain.MetaAllocationRuleName: rule.Name,
			domain.MetaPercentage:         entry.Percentage.String(),
		}
		if target.ID != entry.AccountID {
			metadata[domain.MetaOriginalAccountID] = entry.AccountID
		}

		child := &domain.Transaction{
			ID:                  e.idGen.Generate(),
			Type:                domain.TransactionTypeInternalAllocation,
			FromAccountID:       &source.ID,
			ToAccountID:         &target.ID,
			Amount:              amount,
			Status:              domain.TransactionStatusCompleted,
			ParentTransactionID: &parent.ID,
			Description:         fmt.Sprintf("Auto-allocation: %s%% to %s", entry.Percentage, target.Name),
			Metadata:            metadata,
			PerformedBy:         actor,
			CreatedAt:           now,
			UpdatedAt:           now,
			CompletedAt:         &now,
		}
		if err := child.Validate(); err != nil {
			return nil, err
		}
		if err := e.transactionRepo.Create(ctx, tx, child); err != nil {
			return nil, fmt.Errorf("create allocation %d for %s: %w", i, parent.ID, err)
		}
		if err := e.audit.Record(ctx, tx, domain.TableTransactions, child.ID, domain.AuditOperationCreate, nil, child, actor); err != nil {
			return nil, err
		}

		if target.ID != source.ID {
			if err := writer.debit(ctx, tx, source, amount, actor, now); err != nil {
				return nil, err
			}
			if err := writer.credit(ctx, tx, target, amount, actor, now); err != nil {
				return nil, err
			}
		}

		result.ChildTransactionIDs = append(result.ChildTransactionIDs, child.ID)
		result.TotalAllocated = result.TotalAllocated.Add(amount)
		result.Breakdown = append(result.Breakdown, AllocationBreakdown{
			AccountID:     target.ID,
			AccountName:   target.Name,
			Amount:        amount,
			Percentage:    entry.Percentage,
			TransactionID: child.ID,
		})
	}

	result.Residual = parent.Amount.Sub(result.TotalAllocated)

	if err := e.batchRepo.Complete(ctx, tx, parent.ID, len(result.ChildTransactionIDs), result.TotalAllocated); err != nil {
		return nil, err
	}

	batchState := domain.JSON{
		"rule_id":            rule.ID,
		"child_transactions": result.ChildTransactionIDs,
		"total_allocated":    result.TotalAllocated.String(),
		"residual":           result.Residual.String(),
	}
	if err := e.audit.Record(ctx, tx, domain.TableAllocationBatches, parent.ID, domain.AuditOperationCreate, nil, batchState, actor); err != nil {
		return nil, err
	}

	event := newOutboxEvent(e.idGen, domain.AggregateTypeTransaction, parent.ID, domain.EventTypeAllocationApplied, map[string]any{
		"parent_transaction_id": parent.ID,
		"rule_id":               rule.ID,
		"child_transaction_ids": result.ChildTransactionIDs,
		"total_allocated":       result.TotalAllocated.String(),
		"residual":              result.Residual.String(),
	}, now)
	if err := e.outboxRepo.Create(ctx, tx, event); err != nil {
		return nil, err
	}

	return result, nil
}

// selectRule returns the highest-priority active rule matching parent, or nil.
func (e *AllocationEngine) selectRule(ctx context.Context, tx Transaction, parent *domain.Transaction) (*domain.AllocationRule, error) {
	rules, err := e.ruleRepo.ListActiveByTrigger(ctx, tx, parent.Type)
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		if r.Matches(parent.Type, parent.Amount) {
			return r, nil
		}
	}
	return nil, nil
}

// lockParticipants locks the source, every target and the fallback account.
// Targets that no longer exist are simply absent from the map.
func (e *AllocationEngine) lockParticipants(ctx context.Context, tx Transaction, parent *domain.Transaction, rule *domain.AllocationRule) (map[string]*domain.Account, error) {
	seen := make(map[string]struct{}, len(rule.Entries)+2)
	ids := make([]string, 0, len(rule.Entries)+2)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	add(domain.StringValue(parent.ToAccountID))
	for _, entry := range rule.Entries {
		add(entry.AccountID)
	}
	if e.policy == domain.InactiveTargetFallback {
		add(e.fallbackAccountID)
	}

	accounts, err := e.accountRepo.GetByIDsForUpdate(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}
	return byID, nil
}

// resolveTarget applies the inactive-target policy to one entry. It returns
// the account to credit, or a skip reason, or an error that aborts the run.
func (e *AllocationEngine) resolveTarget(accounts map[string]*domain.Account, entry domain.AllocationEntry, index int) (*domain.Account, string, error) {
	target, ok := accounts[entry.AccountID]
	if ok && target.IsActive {
		return target, "", nil
	}

	reason, sentinel, code := SkipReasonInactive, domain.ErrInactiveAccount, domain.ReasonInactiveAccount
	if !ok {
		reason, sentinel, code = SkipReasonNotFound, domain.ErrUnknownAccount, domain.ReasonUnknownAccount
	}
	field := fmt.Sprintf("entries[%d].account_id", index)

	switch e.policy {
	case domain.InactiveTargetSkip:
		return nil, reason, nil
	case domain.InactiveTargetFallback:
		fallback, ok := accounts[e.fallbackAccountID]
		if !ok {
			return nil, "", domain.NewReasonError(domain.ErrUnknownAccount, domain.ReasonUnknownAccount, "fallback_account_id", e.fallbackAccountID)
		}
		if !fallback.IsActive {
			return nil, "", domain.NewReasonError(domain.ErrInactiveAccount, domain.ReasonInactiveAccount, "fallback_account_id", e.fallbackAccountID)
		}
		return fallback, "", nil
	default:
		return nil, "", domain.NewReasonError(sentinel, code, field, entry.AccountID)
	}
}

func (e *AllocationEngine) skip(result *AllocationResult, parentID string, entry domain.AllocationEntry, amount decimal.Decimal, reason string) {
	result.Skipped = append(result.Skipped, SkippedEntry{
		AccountID:  entry.AccountID,
		Percentage: entry.Percentage,
		Amount:     amount,
		Reason:     reason,
	})

	e.logger.Warn().
		Str("parent_transaction_id", parentID).
		Str("account_id", entry.AccountID).
		Str("percentage", entry.Percentage.String()).
		Str("amount", amount.String()).
		Str("reason", reason).
		Msg("allocation entry skipped, slice left on source account")

	if e.metrics != nil {
		e.metrics.AllocationSkipped.WithLabelValues(reason).Inc()
	}
}

// existingResult reports the children already recorded for parentID.
func (e *AllocationEngine) existingResult(ctx context.Context, parentID string) (*AllocationResult, error) {
	children, err := e.transactionRepo.List(ctx, domain.TransactionFilter{
		ParentTransactionID: parentID,
		Limit:               domain.MaxPageSize,
	})
	if err != nil {
		return nil, err
	}
	return alreadyAppliedResult(parentID, children), nil
}

func alreadyAppliedResult(parentID string, children []*domain.Transaction) *AllocationResult {
	ids := make([]string, 0, len(children))
	for _, c := range children {
		ids = append(ids, c.ID)
	}
	return &AllocationResult{
		ParentTransactionID: parentID,
		Status:              AllocationAlreadyApplied,
		ChildTransactionIDs: ids,
		TotalAllocated:      decimal.Zero,
		Residual:            decimal.Zero,
		Breakdown:           []AllocationBreakdown{},
	}
}

func (e *AllocationEngine) observe(result *AllocationResult, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.AllocationsApplied.WithLabelValues(string(result.Status)).Inc()
	if result.Status != AllocationApplied {
		return
	}
	e.metrics.AllocationDuration.Observe(elapsed.Seconds())
	e.metrics.AllocatedAmount.Observe(result.TotalAllocated.InexactFloat64())
	e.metrics.AllocationResidual.Observe(result.Residual.InexactFloat64())
}

func (e *AllocationEngine) observeFailure(err error) {
	if e.metrics != nil {
		e.metrics.AllocationErrors.WithLabelValues(domain.ReasonCode(err)).Inc()
	}
}
