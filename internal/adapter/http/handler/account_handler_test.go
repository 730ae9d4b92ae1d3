package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/treasury/internal/adapter/http/dto"
	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

type accountServiceStub struct {
	createFn     func(ctx context.Context, input usecase.CreateAccountInput) (*domain.Account, error)
	getFn        func(ctx context.Context, id string) (*domain.Account, error)
	getByNameFn  func(ctx context.Context, name string) (*domain.Account, error)
	listFn       func(ctx context.Context, input usecase.ListAccountsInput) ([]*domain.Account, error)
	deactivateFn func(ctx context.Context, id string) (*domain.Account, error)
	statusFn     func(ctx context.Context) (*usecase.TreasuryStatus, error)
}

func (s *accountServiceStub) CreateAccount(ctx context.Context, input usecase.CreateAccountInput) (*domain.Account, error) {
	return s.createFn(ctx, input)
}

func (s *accountServiceStub) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return s.getFn(ctx, id)
}

func (s *accountServiceStub) GetAccountByName(ctx context.Context, name string) (*domain.Account, error) {
	return s.getByNameFn(ctx, name)
}

func (s *accountServiceStub) ListAccounts(ctx context.Context, input usecase.ListAccountsInput) ([]*domain.Account, error) {
	return s.listFn(ctx, input)
}

func (s *accountServiceStub) DeactivateAccount(ctx context.Context, id string) (*domain.Account, error) {
	return s.deactivateFn(ctx, id)
}

func (s *accountServiceStub) ReactivateAccount(ctx context.Context, id string) (*domain.Account, error) {
	return s.deactivateFn(ctx, id)
}

func (s *accountServiceStub) TreasuryStatus(ctx context.Context) (*usecase.TreasuryStatus, error) {
	return s.statusFn(ctx)
}

// withURLParam attaches a chi route context so handlers can read {key}.
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestAccountHandler_Create_Success(t *testing.T) {
	account := &domain.Account{
		ID:       "acc-1",
		Name:     "ops",
		Type:     domain.AccountTypeOperating,
		Balance:  decimal.Zero,
		IsActive: true,
	}

	var captured usecase.CreateAccountInput
	h := NewAccountHandler(&accountServiceStub{
		createFn: func(ctx context.Context, input usecase.CreateAccountInput) (*domain.Account, error) {
			captured = input
			return account, nil
		},
	})

	body, _ := json.Marshal(dto.CreateAccountRequest{Name: "ops", Type: "OPERATING"})
	req := httptest.NewRequest(http.MethodPost, "/accounts", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Name != "ops" || captured.Type != domain.AccountTypeOperating {
		t.Fatalf("expected input to match request, got %+v", captured)
	}

	var resp dto.AccountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "acc-1" {
		t.Fatalf("expected account ID acc-1, got %s", resp.ID)
	}
}

func TestAccountHandler_Create_InvalidBody(t *testing.T) {
	h := NewAccountHandler(&accountServiceStub{})

	req := httptest.NewRequest(http.MethodPost, "/accounts", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAccountHandler_Create_Duplicate(t *testing.T) {
	h := NewAccountHandler(&accountServiceStub{
		createFn: func(ctx context.Context, input usecase.CreateAccountInput) (*domain.Account, error) {
			return nil, domain.ErrAccountExists
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/accounts", bytes.NewBufferString(`{"name":"ops","type":"OPERATING"}`))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var resp dto.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Code != domain.ReasonConflict {
		t.Fatalf("expected CONFLICT code, got %q", resp.Code)
	}
}

func TestAccountHandler_Get_NotFound(t *testing.T) {
	h := NewAccountHandler(&accountServiceStub{
		getFn: func(ctx context.Context, id string) (*domain.Account, error) {
			if id != "missing" {
				t.Fatalf("unexpected id %q", id)
			}
			return nil, domain.ErrAccountNotFound
		},
	})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/accounts/missing", nil), "id", "missing")
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAccountHandler_Get_MissingID(t *testing.T) {
	h := NewAccountHandler(&accountServiceStub{})

	req := httptest.NewRequest(http.MethodGet, "/accounts/", nil)
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAccountHandler_GetByName(t *testing.T) {
	h := NewAccountHandler(&accountServiceStub{
		getByNameFn: func(ctx context.Context, name string) (*domain.Account, error) {
			return &domain.Account{ID: "acc-7", Name: name, Type: domain.AccountTypeReserve}, nil
		},
	})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/accounts/by-name/reserve", nil), "name", "reserve")
	rec := httptest.NewRecorder()

	h.GetByName(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp dto.AccountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Name != "reserve" {
		t.Fatalf("expected name reserve, got %s", resp.Name)
	}
}

func TestAccountHandler_List_ParsesQuery(t *testing.T) {
	var captured usecase.ListAccountsInput
	h := NewAccountHandler(&accountServiceStub{
		listFn: func(ctx context.Context, input usecase.ListAccountsInput) ([]*domain.Account, error) {
			captured = input
			return []*domain.Account{{ID: "a"}, {ID: "b"}}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/accounts?include_inactive=true&type=reserve&limit=5&offset=10", nil)
	rec := httptest.NewRecorder()

	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !captured.IncludeInactive || captured.Type != domain.AccountTypeReserve || captured.Limit != 5 || captured.Offset != 10 {
		t.Fatalf("unexpected list input %+v", captured)
	}

	var resp dto.ListAccountsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 2 || len(resp.Accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %+v", resp)
	}
}

func TestAccountHandler_Deactivate(t *testing.T) {
	h := NewAccountHandler(&accountServiceStub{
		deactivateFn: func(ctx context.Context, id string) (*domain.Account, error) {
			return &domain.Account{ID: id, IsActive: false}, nil
		},
	})

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/accounts/acc-1/deactivate", nil), "id", "acc-1")
	rec := httptest.NewRecorder()

	h.Deactivate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp dto.AccountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.IsActive {
		t.Fatalf("expected account to be inactive")
	}
}

func TestAccountHandler_TreasuryStatus(t *testing.T) {
	h := NewAccountHandler(&accountServiceStub{
		statusFn: func(ctx context.Context) (*usecase.TreasuryStatus, error) {
			return &usecase.TreasuryStatus{TotalBalance: decimal.NewFromInt(1000), ActiveAccounts: 3}, nil
		},
	})

	rec := httptest.NewRecorder()
	h.TreasuryStatus(rec, httptest.NewRequest(http.MethodGet, "/treasury/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp usecase.TreasuryStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.TotalBalance.Equal(decimal.NewFromInt(1000)) || resp.ActiveAccounts != 3 {
		t.Fatalf("unexpected status %+v", resp)
	}
}

func TestAccountHandler_TreasuryStatus_HidesInternalError(t *testing.T) {
	h := NewAccountHandler(&accountServiceStub{
		statusFn: func(ctx context.Context) (*usecase.TreasuryStatus, error) {
			return nil, errors.New("connection refused to 10.0.0.5")
		},
	})

	rec := httptest.NewRecorder()
	h.TreasuryStatus(rec, httptest.NewRequest(http.MethodGet, "/treasury/status", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("10.0.0.5")) {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
}
