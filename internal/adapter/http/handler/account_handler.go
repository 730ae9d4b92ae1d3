package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/treasury/internal/adapter/http/dto"
	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// AccountService defines the behavior needed by AccountHandler.
type AccountService interface {
	CreateAccount(ctx context.Context, input usecase.CreateAccountInput) (*domain.Account, error)
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	GetAccountByName(ctx context.Context, name string) (*domain.Account, error)
	ListAccounts(ctx context.Context, input usecase.ListAccountsInput) ([]*domain.Account, error)
	DeactivateAccount(ctx context.Context, id string) (*domain.Account, error)
	ReactivateAccount(ctx context.Context, id string) (*domain.Account, error)
	TreasuryStatus(ctx context.Context) (*usecase.TreasuryStatus, error)
}

// AccountHandler handles account-related HTTP requests.
type AccountHandler struct {
	accountUC AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountUC AccountService) *AccountHandler {
	return &AccountHandler{accountUC: accountUC}
}

// Create creates a new account.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.accountUC.CreateAccount(r.Context(), req.ToUseCaseInput())
	if err != nil {
		respondError(w, r, "failed to create account", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.AccountFromDomain(account))
}

// Get retrieves an account by ID.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing account ID", nil)
		return
	}

	account, err := h.accountUC.GetAccount(r.Context(), id)
	if err != nil {
		respondError(w, r, "failed to get account", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountFromDomain(account))
}

// GetByName retrieves an account by its unique name.
func (h *AccountHandler) GetByName(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountUC.GetAccountByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, r, "failed to get account", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountFromDomain(account))
}

// List lists accounts. Inactive accounts are hidden unless include_inactive is set.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accountUC.ListAccounts(r.Context(), usecase.ListAccountsInput{
		IncludeInactive: parseBoolQuery(r, "include_inactive", false),
		Type:            domain.AccountType(upperQuery(r, "type")),
		Limit:           parseIntQuery(r, "limit", domain.DefaultPageSize),
		Offset:          parseIntQuery(r, "offset", 0),
	})
	if err != nil {
		respondError(w, r, "failed to list accounts", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListAccountsResponse{
		Accounts: dto.AccountsFromDomain(accounts),
		Total:    int64(len(accounts)),
	})
}

// Deactivate hides an account from allocation and reconciliation.
func (h *AccountHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountUC.DeactivateAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, "failed to deactivate account", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountFromDomain(account))
}

// Reactivate returns an account to service.
func (h *AccountHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountUC.ReactivateAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, "failed to reactivate account", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountFromDomain(account))
}

// TreasuryStatus reports balances and the reserve position.
func (h *AccountHandler) TreasuryStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.accountUC.TreasuryStatus(r.Context())
	if err != nil {
		respondError(w, r, "failed to compute treasury status", err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}
