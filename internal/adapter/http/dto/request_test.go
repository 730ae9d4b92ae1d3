package dto

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

func TestCreateAccountRequest_ToUseCaseInput(t *testing.T) {
	req := &CreateAccountRequest{Name: "ops", Type: "OPERATING", Description: "day to day"}

	got := req.ToUseCaseInput()
	if got.Name != "ops" || got.Type != domain.AccountTypeOperating || got.Description != "day to day" {
		t.Fatalf("ToUseCaseInput() = %+v", got)
	}
}

func TestCreateTransactionRequest_DecodesDecimalStringsAndNumbers(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "string amount", body: `{"type":"EXTERNAL_DEPOSIT","to_account_id":"a","amount":"100.12345678"}`, want: "100.12345678"},
		{name: "number amount", body: `{"type":"EXTERNAL_DEPOSIT","to_account_id":"a","amount":12.5}`, want: "12.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req CreateTransactionRequest
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}

			got := req.ToUseCaseInput()
			if !got.Amount.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("amount = %s, want %s", got.Amount, tt.want)
			}
			if got.Type != domain.TransactionTypeExternalDeposit || got.ToAccountID != "a" || got.FromAccountID != "" {
				t.Fatalf("unexpected input %+v", got)
			}
		})
	}
}

func TestCreateTransactionRequest_RejectsMalformedAmount(t *testing.T) {
	var req CreateTransactionRequest
	if err := json.Unmarshal([]byte(`{"amount":"12.3.4"}`), &req); err == nil {
		t.Fatal("expected malformed amount to fail decoding")
	}
}

func TestCreateRuleRequest_ToUseCaseInput(t *testing.T) {
	floor := decimal.NewFromInt(10)
	req := &CreateRuleRequest{
		Name:        "deposits",
		TriggerType: "EXTERNAL_DEPOSIT",
		Priority:    5,
		MinAmount:   &floor,
		Entries: []AllocationEntryRequest{
			{AccountID: "a", Percentage: decimal.NewFromInt(60)},
			{AccountID: "b", Percentage: decimal.NewFromInt(40)},
		},
	}

	got := req.ToUseCaseInput()
	want := usecase.CreateRuleInput{
		Name:        "deposits",
		TriggerType: domain.TransactionTypeExternalDeposit,
		Priority:    5,
		MinAmount:   &floor,
	}
	if got.Name != want.Name || got.TriggerType != want.TriggerType || got.Priority != want.Priority || got.MinAmount != want.MinAmount {
		t.Fatalf("ToUseCaseInput() = %+v", got)
	}
	if len(got.Entries) != 2 || got.Entries[1].AccountID != "b" || !got.Entries[1].Percentage.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("unexpected entries %+v", got.Entries)
	}
}

func TestUpdateRuleRequest_LeavesOmittedFieldsNil(t *testing.T) {
	var req UpdateRuleRequest
	if err := json.Unmarshal([]byte(`{"priority":3}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got := req.ToUseCaseInput()
	if got.Priority == nil || *got.Priority != 3 {
		t.Fatalf("expected priority 3, got %v", got.Priority)
	}
	if got.Name != nil || got.IsActive != nil || got.Entries != nil || got.MinAmount != nil {
		t.Fatalf("expected omitted fields to stay nil, got %+v", got)
	}
}

func TestUpdateRuleRequest_ClearBounds(t *testing.T) {
	var req UpdateRuleRequest
	if err := json.Unmarshal([]byte(`{"clear_min_amount":true}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got := req.ToUseCaseInput()
	if !got.ClearMinAmount || got.ClearMaxAmount {
		t.Fatalf("expected only the min bound cleared, got %+v", got)
	}
}

func TestUpdateReconciliationStatusRequest_ToUseCaseInput(t *testing.T) {
	req := &UpdateReconciliationStatusRequest{Status: "RESOLVED", ResolutionNotes: "fee"}

	got := req.ToUseCaseInput()
	if got.Status != domain.ReconciliationResolved || got.ResolutionNotes != "fee" {
		t.Fatalf("ToUseCaseInput() = %+v", got)
	}
}
