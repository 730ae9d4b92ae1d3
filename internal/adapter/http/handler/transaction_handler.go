package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/treasury/internal/adapter/http/dto"
	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// TransactionService defines the behavior needed by TransactionHandler.
type TransactionService interface {
	CreateTransaction(ctx context.Context, input usecase.CreateTransactionInput) (*usecase.TransactionOutcome, error)
	CompleteTransaction(ctx context.Context, id string) (*usecase.TransactionOutcome, error)
	FailTransaction(ctx context.Context, id, reason string) (*domain.Transaction, error)
	CancelTransaction(ctx context.Context, id, reason string) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error)
	GetAllocations(ctx context.Context, parentID string) (*usecase.AllocationSummary, error)
}

// Allocator applies allocation rules to a completed deposit.
type Allocator interface {
	ApplyAllocations(ctx context.Context, parentID, actor string) (*usecase.AllocationResult, error)
}

// TransactionHandler handles transaction-related HTTP requests.
type TransactionHandler struct {
	txUC      TransactionService
	allocator Allocator
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(txUC TransactionService, allocator Allocator) *TransactionHandler {
	return &TransactionHandler{txUC: txUC, allocator: allocator}
}

// Create records a transaction, completing it immediately when asked.
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	outcome, err := h.txUC.CreateTransaction(r.Context(), req.ToUseCaseInput())
	if err != nil {
		respondError(w, r, "failed to create transaction", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.OutcomeFromUseCase(outcome))
}

// Get retrieves a transaction by ID.
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.txUC.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, "failed to get transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionFromDomain(t))
}

// List lists transactions newest first.
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from timestamp", err)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to timestamp", err)
		return
	}

	q := r.URL.Query()
	txs, err := h.txUC.ListTransactions(r.Context(), domain.TransactionFilter{
		Type:                domain.TransactionType(upperQuery(r, "type")),
		Status:              domain.TransactionStatus(upperQuery(r, "status")),
		AccountID:           q.Get("account_id"),
		ParentTransactionID: q.Get("parent_transaction_id"),
		From:                from,
		To:                  to,
		Limit:               parseIntQuery(r, "limit", domain.DefaultPageSize),
		Offset:              parseIntQuery(r, "offset", 0),
	})
	if err != nil {
		respondError(w, r, "failed to list transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListTransactionsResponse{
		Transactions: dto.TransactionsFromDomain(txs),
		Total:        int64(len(txs)),
	})
}

// Complete moves a pending transaction to COMPLETED.
func (h *TransactionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.txUC.CompleteTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, "failed to complete transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.OutcomeFromUseCase(outcome))
}

// Fail moves a pending transaction to FAILED.
func (h *TransactionHandler) Fail(w http.ResponseWriter, r *http.Request) {
	h.close(w, r, h.txUC.FailTransaction, "failed to fail transaction")
}

// Cancel moves a pending transaction to CANCELLED.
func (h *TransactionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.close(w, r, h.txUC.CancelTransaction, "failed to cancel transaction")
}

func (h *TransactionHandler) close(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, id, reason string) (*domain.Transaction, error),
	message string,
) {
	var req dto.CloseTransactionRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	t, err := fn(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		respondError(w, r, message, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionFromDomain(t))
}

// Allocations lists the allocation children of a transaction.
func (h *TransactionHandler) Allocations(w http.ResponseWriter, r *http.Request) {
	summary, err := h.txUC.GetAllocations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, "failed to get allocations", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AllocationsFromUseCase(summary))
}

// Allocate applies allocation rules to a completed deposit. Repeat calls
// report already_applied without moving funds.
func (h *TransactionHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	result, err := h.allocator.ApplyAllocations(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		respondError(w, r, "failed to apply allocations", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
