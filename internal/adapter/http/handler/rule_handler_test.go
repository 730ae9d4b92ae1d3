package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/adapter/http/dto"
	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

type ruleServiceStub struct {
	createFn   func(ctx context.Context, input usecase.CreateRuleInput) (*domain.AllocationRule, error)
	updateFn   func(ctx context.Context, id string, input usecase.UpdateRuleInput) (*domain.AllocationRule, error)
	listFn     func(ctx context.Context, activeOnly bool) ([]*domain.AllocationRule, error)
	validateFn func(ctx context.Context, entries []domain.AllocationEntry) (*usecase.RuleValidation, error)
}

func (s *ruleServiceStub) CreateRule(ctx context.Context, input usecase.CreateRuleInput) (*domain.AllocationRule, error) {
	return s.createFn(ctx, input)
}

func (s *ruleServiceStub) UpdateRule(ctx context.Context, id string, input usecase.UpdateRuleInput) (*domain.AllocationRule, error) {
	return s.updateFn(ctx, id, input)
}

func (s *ruleServiceStub) DeactivateRule(ctx context.Context, id string) (*domain.AllocationRule, error) {
	return &domain.AllocationRule{ID: id}, nil
}

func (s *ruleServiceStub) GetRule(ctx context.Context, id string) (*domain.AllocationRule, error) {
	return nil, domain.ErrRuleNotFound
}

func (s *ruleServiceStub) ListRules(ctx context.Context, activeOnly bool) ([]*domain.AllocationRule, error) {
	return s.listFn(ctx, activeOnly)
}

func (s *ruleServiceStub) ValidateRuleEntries(ctx context.Context, entries []domain.AllocationEntry) (*usecase.RuleValidation, error) {
	return s.validateFn(ctx, entries)
}

func TestRuleHandler_Create_PassesEntries(t *testing.T) {
	var captured usecase.CreateRuleInput
	h := NewRuleHandler(&ruleServiceStub{
		createFn: func(ctx context.Context, input usecase.CreateRuleInput) (*domain.AllocationRule, error) {
			captured = input
			return &domain.AllocationRule{
				ID:          "rule-1",
				Name:        input.Name,
				TriggerType: input.TriggerType,
				Entries:     input.Entries,
				IsActive:    true,
			}, nil
		},
	})

	body := `{"name":"split","trigger_type":"EXTERNAL_DEPOSIT","priority":5,"min_amount":"10",
		"entries":[{"account_id":"a","percentage":"70"},{"account_id":"b","percentage":"30"}]}`
	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/allocation-rules", bytes.NewBufferString(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(captured.Entries) != 2 || !captured.Entries[0].Percentage.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("unexpected entries %+v", captured.Entries)
	}
	if captured.Priority != 5 || captured.MinAmount == nil || !captured.MinAmount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected input %+v", captured)
	}

	var resp dto.RuleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "rule-1" || len(resp.Entries) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestRuleHandler_Create_RejectsBadSum(t *testing.T) {
	h := NewRuleHandler(&ruleServiceStub{
		createFn: func(ctx context.Context, input usecase.CreateRuleInput) (*domain.AllocationRule, error) {
			return nil, domain.NewReasonError(domain.ErrInvalidPercentageSum, domain.ReasonPercentageSum, "entries", "sum is 90")
		},
	})

	body := `{"name":"split","trigger_type":"EXTERNAL_DEPOSIT","entries":[{"account_id":"a","percentage":"90"}]}`
	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/allocation-rules", bytes.NewBufferString(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp dto.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Code != domain.ReasonPercentageSum || resp.Field != "entries" {
		t.Fatalf("unexpected error body %+v", resp)
	}
}

func TestRuleHandler_Update_PartialFields(t *testing.T) {
	var captured usecase.UpdateRuleInput
	h := NewRuleHandler(&ruleServiceStub{
		updateFn: func(ctx context.Context, id string, input usecase.UpdateRuleInput) (*domain.AllocationRule, error) {
			captured = input
			return &domain.AllocationRule{ID: id, Priority: *input.Priority}, nil
		},
	})

	req := withURLParam(httptest.NewRequest(http.MethodPatch, "/allocation-rules/rule-1",
		bytes.NewBufferString(`{"priority":9}`)), "id", "rule-1")
	rec := httptest.NewRecorder()
	h.Update(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Priority == nil || *captured.Priority != 9 {
		t.Fatalf("expected priority 9, got %+v", captured.Priority)
	}
	if captured.Name != nil || captured.Entries != nil || captured.IsActive != nil {
		t.Fatalf("expected untouched fields to stay nil, got %+v", captured)
	}
}

func TestRuleHandler_List_ActiveOnly(t *testing.T) {
	var gotActiveOnly bool
	h := NewRuleHandler(&ruleServiceStub{
		listFn: func(ctx context.Context, activeOnly bool) ([]*domain.AllocationRule, error) {
			gotActiveOnly = activeOnly
			return nil, nil
		},
	})

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/allocation-rules?active_only=true", nil))

	if rec.Code != http.StatusOK || !gotActiveOnly {
		t.Fatalf("expected active-only listing, got %d %v", rec.Code, gotActiveOnly)
	}
}

func TestRuleHandler_Get_NotFound(t *testing.T) {
	h := NewRuleHandler(&ruleServiceStub{})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/allocation-rules/nope", nil), "id", "nope")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRuleHandler_Validate_InvalidIsNotAnError(t *testing.T) {
	h := NewRuleHandler(&ruleServiceStub{
		validateFn: func(ctx context.Context, entries []domain.AllocationEntry) (*usecase.RuleValidation, error) {
			return &usecase.RuleValidation{Valid: false, Reason: domain.ReasonUnknownAccount, Field: "entries[0].account_id"}, nil
		},
	})

	rec := httptest.NewRecorder()
	h.Validate(rec, httptest.NewRequest(http.MethodPost, "/allocation-rules/validate",
		bytes.NewBufferString(`{"entries":[{"account_id":"ghost","percentage":"100"}]}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp usecase.RuleValidation
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Valid || resp.Reason != domain.ReasonUnknownAccount {
		t.Fatalf("unexpected verdict %+v", resp)
	}
}
