package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func accountRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "name", "type", "balance", "is_active", "description",
		"metadata", "version", "created_at", "updated_at"})
}

func TestAccountRepositoryCreateInTx(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mockPool.ExpectExec("INSERT INTO accounts").
		WithArgs("acc-1", "operating", "OPERATING", pgxmock.AnyArg(), true, "", []byte("{}"),
			int64(0), testTime, testTime).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectCommit()

	tx, err := newTxManagerWithPool(mockPool, pgx.ReadCommitted).Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	repo := NewAccountRepository(mockPool)
	err = repo.Create(context.Background(), tx, &domain.Account{
		ID:        "acc-1",
		Name:      "operating",
		Type:      domain.AccountTypeOperating,
		IsActive:  true,
		CreatedAt: testTime,
		UpdatedAt: testTime,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("commit: %v", err)
	}

	assertExpectations(t, mockPool)
}

func TestAccountRepositoryCreateDuplicateName(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectExec("INSERT INTO accounts").
		WithArgs(withID("acc-1", 10)...).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: accountNameConstraint})

	repo := NewAccountRepository(mockPool)
	err := repo.Create(context.Background(), nil, &domain.Account{ID: "acc-1", Name: "operating"})
	if !errors.Is(err, domain.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}

	assertExpectations(t, mockPool)
}

func TestAccountRepositoryGetByID(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectQuery("FROM accounts WHERE id = \\$1").
		WithArgs("acc-1").
		WillReturnRows(accountRows().AddRow("acc-1", "reserve", "RESERVE", "125.50000000", true, "cold storage",
			[]byte(`{"region":"eu"}`), int64(3), testTime, testTime))

	repo := NewAccountRepository(mockPool)
	account, err := repo.GetByID(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if account.Type != domain.AccountTypeReserve {
		t.Fatalf("unexpected type %q", account.Type)
	}
	if !account.Balance.Equal(decimal.RequireFromString("125.5")) {
		t.Fatalf("unexpected balance %s", account.Balance)
	}
	if account.Metadata["region"] != "eu" {
		t.Fatalf("unexpected metadata %v", account.Metadata)
	}
	if account.Version != 3 {
		t.Fatalf("unexpected version %d", account.Version)
	}

	assertExpectations(t, mockPool)
}

func TestAccountRepositoryGetByIDNotFound(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectQuery("FROM accounts WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	repo := NewAccountRepository(mockPool)
	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccountRepositoryLocksInSortedOrder(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectQuery("WHERE id = ANY\\(\\$1\\) ORDER BY id FOR UPDATE").
		WithArgs([]string{"a", "b", "c"}).
		WillReturnRows(accountRows().
			AddRow("a", "a", "OPERATING", "1", true, "", []byte("{}"), int64(0), testTime, testTime).
			AddRow("c", "c", "RESERVE", "2", true, "", []byte("{}"), int64(0), testTime, testTime))

	repo := NewAccountRepository(mockPool)
	accounts, err := repo.GetByIDsForUpdate(context.Background(), nil, []string{"c", "a", "b", "a"})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if len(accounts) != 2 || accounts[0].ID != "a" || accounts[1].ID != "c" {
		t.Fatalf("unexpected accounts %v", accounts)
	}

	assertExpectations(t, mockPool)
}

func TestAccountRepositoryUpdateBalance(t *testing.T) {
	tests := []struct {
		name    string
		result  pgconn.CommandTag
		err     error
		wantErr error
	}{
		{name: "updated", result: pgxmock.NewResult("UPDATE", 1)},
		{name: "missing", result: pgxmock.NewResult("UPDATE", 0), wantErr: domain.ErrAccountNotFound},
		{
			name:    "check constraint",
			err:     &pgconn.PgError{Code: pgErrCheckViolation, ConstraintName: accountBalanceConstraint},
			wantErr: domain.ErrNegativeBalance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPool := newMockPool(t)
			exp := mockPool.ExpectExec("UPDATE accounts SET balance").
				WithArgs("acc-1", pgxmock.AnyArg(), testTime)
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnResult(tt.result)
			}

			repo := NewAccountRepository(mockPool)
			err := repo.UpdateBalance(context.Background(), nil, "acc-1", decimal.NewFromInt(5), testTime)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAccountRepositoryListBuildsFilter(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectQuery("FROM accounts WHERE is_active = \\$1 AND upper\\(type\\) = upper\\(\\$2\\) ORDER BY name LIMIT \\$3").
		WithArgs(true, "reserve", 10).
		WillReturnRows(accountRows())

	repo := NewAccountRepository(mockPool)
	accounts, err := repo.List(context.Background(), domain.AccountFilter{Type: "reserve", Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(accounts) != 0 {
		t.Fatalf("expected no accounts, got %d", len(accounts))
	}

	assertExpectations(t, mockPool)
}

func TestAccountRepositorySumActiveBalances(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectQuery("SELECT COALESCE\\(SUM\\(balance\\), 0\\), COUNT\\(\\*\\) FROM accounts WHERE is_active").
		WillReturnRows(pgxmock.NewRows([]string{"sum", "count"}).AddRow("100.00000001", int64(4)))

	repo := NewAccountRepository(mockPool)
	total, count, err := repo.SumActiveBalances(context.Background(), nil)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if !total.Equal(decimal.RequireFromString("100.00000001")) || count != 4 {
		t.Fatalf("unexpected sum %s / %d", total, count)
	}
}

func TestTransactionRepositoryCreateDuplicateReference(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectExec("INSERT INTO transactions").
		WithArgs(withID("tx-1", 14)...).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: externalReferenceConstraint})

	repo := NewTransactionRepository(mockPool)
	err := repo.Create(context.Background(), nil, &domain.Transaction{
		ID:                "tx-1",
		Type:              domain.TransactionTypeExternalDeposit,
		ToAccountID:       domain.StringPtr("acc-1"),
		Amount:            decimal.NewFromInt(1),
		Status:            domain.TransactionStatusPending,
		ExternalReference: "bank-42",
	})
	if !errors.Is(err, domain.ErrDuplicateExternalReference) {
		t.Fatalf("expected ErrDuplicateExternalReference, got %v", err)
	}
	assertExpectations(t, mockPool)
}

func TestTransactionRepositoryListChildren(t *testing.T) {
	mockPool := newMockPool(t)
	rows := pgxmock.NewRows([]string{"id", "type", "from_account_id", "to_account_id", "amount", "status",
		"parent_transaction_id", "external_reference", "description", "metadata", "performed_by",
		"created_at", "updated_at", "completed_at"}).
		AddRow("child-1", "INTERNAL_ALLOCATION", "src", "dst", "50.00000000", "COMPLETED", "parent",
			"", "Auto-allocation: 50% to ops", []byte(`{"allocation_rule_id":"rule-1"}`), "system",
			testTime, testTime, testTime)
	mockPool.ExpectQuery("WHERE parent_transaction_id = \\$1 ORDER BY created_at, id").
		WithArgs("parent").
		WillReturnRows(rows)

	repo := NewTransactionRepository(mockPool)
	children, err := repo.ListChildren(context.Background(), nil, "parent")
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(children))
	}

	child := children[0]
	if child.ParentTransactionID == nil || *child.ParentTransactionID != "parent" {
		t.Fatalf("unexpected parent %v", child.ParentTransactionID)
	}
	if child.FromAccountID == nil || *child.FromAccountID != "src" {
		t.Fatalf("unexpected from account %v", child.FromAccountID)
	}
	if child.CompletedAt == nil || !child.CompletedAt.Equal(testTime) {
		t.Fatalf("unexpected completed_at %v", child.CompletedAt)
	}
	if child.Metadata["allocation_rule_id"] != "rule-1" {
		t.Fatalf("unexpected metadata %v", child.Metadata)
	}

	assertExpectations(t, mockPool)
}

func TestTransactionRepositoryUpdateStatusMissing(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectExec("UPDATE transactions").
		WithArgs("tx-1", "FAILED", testTime, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewTransactionRepository(mockPool)
	err := repo.UpdateStatus(context.Background(), nil, "tx-1", domain.TransactionStatusFailed, testTime, nil)
	if !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
	assertExpectations(t, mockPool)
}

func TestTransactionRepositoryListFilters(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectQuery("WHERE status = \\$1 AND \\(from_account_id = \\$2 OR to_account_id = \\$2\\) ORDER BY created_at DESC, id DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs("COMPLETED", "acc-1", 5, 10).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	repo := NewTransactionRepository(mockPool)
	_, err := repo.List(context.Background(), domain.TransactionFilter{
		Status:    domain.TransactionStatusCompleted,
		AccountID: "acc-1",
		Limit:     5,
		Offset:    10,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	assertExpectations(t, mockPool)
}

func TestAllocationRuleRepositoryScansEntries(t *testing.T) {
	mockPool := newMockPool(t)
	rows := pgxmock.NewRows([]string{"id", "name", "trigger_type", "entries", "is_active", "priority",
		"min_amount", "max_amount", "description", "created_by", "created_at", "updated_at"}).
		AddRow("rule-1", "default split", "EXTERNAL_DEPOSIT",
			[]byte(`[{"account_id":"a","percentage":"60"},{"account_id":"b","percentage":"40"}]`),
			true, 5, "10", "1000", "", "admin", testTime, testTime)
	mockPool.ExpectQuery("WHERE is_active AND trigger_type = \\$1 ORDER BY priority DESC, created_at, id").
		WithArgs("EXTERNAL_DEPOSIT").
		WillReturnRows(rows)

	repo := NewAllocationRuleRepository(mockPool)
	rules, err := repo.ListActiveByTrigger(context.Background(), nil, domain.TransactionTypeExternalDeposit)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}

	rule := rules[0]
	if len(rule.Entries) != 2 || !rule.Entries[0].Percentage.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("unexpected entries %v", rule.Entries)
	}
	if rule.MinAmount == nil || !rule.MinAmount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected min amount %v", rule.MinAmount)
	}
	if rule.MaxAmount == nil || !rule.MaxAmount.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("unexpected max amount %v", rule.MaxAmount)
	}

	assertExpectations(t, mockPool)
}

func TestAllocationRuleRepositoryErrors(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectExec("INSERT INTO allocation_rules").
		WithArgs(withID("rule-1", 12)...).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: ruleNameConstraint})
	mockPool.ExpectExec("UPDATE allocation_rules").
		WithArgs(withID("rule-1", 10)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mockPool.ExpectQuery("FROM allocation_rules WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	repo := NewAllocationRuleRepository(mockPool)
	rule := &domain.AllocationRule{ID: "rule-1", Name: "split"}

	if err := repo.Create(context.Background(), nil, rule); !errors.Is(err, domain.ErrRuleExists) {
		t.Fatalf("expected ErrRuleExists, got %v", err)
	}
	if err := repo.Update(context.Background(), nil, rule); !errors.Is(err, domain.ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound on update, got %v", err)
	}
	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, domain.ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound on get, got %v", err)
	}

	assertExpectations(t, mockPool)
}

func TestAllocationBatchRepositoryInsertTwice(t *testing.T) {
	mockPool := newMockPool(t)
	batchArgs := []any{"parent", "rule-1", pgxmock.AnyArg(), pgxmock.AnyArg(), "system", testTime}
	mockPool.ExpectExec("INSERT INTO allocation_batches").
		WithArgs(batchArgs...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectExec("INSERT INTO allocation_batches").
		WithArgs(batchArgs...).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: batchPrimaryKey})

	repo := NewAllocationBatchRepository(mockPool)
	batch := &domain.AllocationBatch{ParentTransactionID: "parent", RuleID: "rule-1", CreatedBy: "system", CreatedAt: testTime}

	if err := repo.Insert(context.Background(), nil, batch); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := repo.Insert(context.Background(), nil, batch); !errors.Is(err, domain.ErrAllocationAlreadyDone) {
		t.Fatalf("expected ErrAllocationAlreadyDone, got %v", err)
	}

	assertExpectations(t, mockPool)
}

func TestAuditRepositoryListFilter(t *testing.T) {
	mockPool := newMockPool(t)
	rows := pgxmock.NewRows([]string{"id", "table_name", "record_id", "operation", "old_value", "new_value",
		"actor", "request_id", "ip_address", "user_agent", "created_at"}).
		AddRow("log-1", "accounts", "acc-1", "UPDATE", []byte(`{"balance":"1"}`), []byte(`{"balance":"2"}`),
			"alice", "req-1", "10.0.0.1", "curl", testTime)
	mockPool.ExpectQuery("FROM audit_log WHERE table_name = \\$1 AND record_id = \\$2 ORDER BY created_at DESC, id DESC LIMIT \\$3").
		WithArgs("accounts", "acc-1", 20).
		WillReturnRows(rows)

	repo := NewAuditRepository(mockPool)
	logs, err := repo.List(context.Background(), domain.AuditFilter{TableName: "accounts", RecordID: "acc-1", Limit: 20})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	if logs[0].Operation != domain.AuditOperationUpdate || logs[0].NewValue["balance"] != "2" {
		t.Fatalf("unexpected log %+v", logs[0])
	}

	assertExpectations(t, mockPool)
}

func TestReconciliationRepositoryListUnresolved(t *testing.T) {
	mockPool := newMockPool(t)
	rows := pgxmock.NewRows([]string{"id", "external_balance", "external_source", "internal_balance", "discrepancy",
		"discrepancy_percentage", "status", "notes", "resolution_notes", "performed_by", "resolved_by",
		"created_at", "updated_at", "resolved_at"}).
		AddRow("rec-1", "102", "custodian", "100", "2", "1.9608", "DISCREPANCY", "", "", "system", "",
			testTime, testTime, testTime)
	mockPool.ExpectQuery("FROM reconciliation_log WHERE status = ANY\\(\\$1\\)").
		WithArgs([]string{"DISCREPANCY", "INVESTIGATING"}).
		WillReturnRows(rows)

	repo := NewReconciliationRepository(mockPool)
	recs, err := repo.List(context.Background(), domain.ReconciliationFilter{
		Statuses: []domain.ReconciliationStatus{domain.ReconciliationDiscrepancy, domain.ReconciliationInvestigating},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 || !recs[0].Discrepancy.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("unexpected reconciliations %v", recs)
	}

	assertExpectations(t, mockPool)
}

func TestReconciliationRepositoryGetLatestEmpty(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectQuery("FROM reconciliation_log ORDER BY created_at DESC, id DESC LIMIT 1").
		WillReturnError(pgx.ErrNoRows)

	repo := NewReconciliationRepository(mockPool)
	if _, err := repo.GetLatest(context.Background()); !errors.Is(err, domain.ErrReconciliationNotFound) {
		t.Fatalf("expected ErrReconciliationNotFound, got %v", err)
	}
}

func TestOutboxRepositoryLifecycle(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectQuery("FROM outbox_events WHERE NOT published ORDER BY created_at, id LIMIT \\$1").
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "aggregate_id", "aggregate_type", "event_type", "payload",
			"created_at", "published_at", "published"}).
			AddRow("evt-1", "tx-1", "transaction", "transaction.completed", []byte(`{"amount":"10"}`),
				testTime, testTime, false))
	mockPool.ExpectExec("UPDATE outbox_events SET published = TRUE").
		WithArgs("evt-1", testTime).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mockPool.ExpectExec("DELETE FROM outbox_events WHERE published").
		WithArgs(testTime).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	repo := NewOutboxRepository(mockPool)
	events, err := repo.GetUnpublished(context.Background(), 50)
	if err != nil {
		t.Fatalf("get unpublished: %v", err)
	}
	if len(events) != 1 || events[0].Payload["amount"] != "10" {
		t.Fatalf("unexpected events %v", events)
	}
	if err := repo.MarkPublished(context.Background(), "evt-1", testTime); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	if err := repo.DeletePublished(context.Background(), testTime); err != nil {
		t.Fatalf("delete published: %v", err)
	}

	assertExpectations(t, mockPool)
}

// withID matches an exec whose first argument is id followed by n-1 arbitrary ones.
func withID(id string, n int) []any {
	args := make([]any, n)
	args[0] = id
	for i := 1; i < n; i++ {
		args[i] = pgxmock.AnyArg()
	}
	return args
}
