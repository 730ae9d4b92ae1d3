package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/treasury/internal/adapter/http/dto"
	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// ReconciliationService defines the behavior needed by ReconciliationHandler.
type ReconciliationService interface {
	CreateReconciliation(ctx context.Context, input usecase.CreateReconciliationInput) (*domain.Reconciliation, error)
	GetReconciliation(ctx context.Context, id string) (*domain.Reconciliation, error)
	GetLatest(ctx context.Context) (*domain.Reconciliation, error)
	ListUnresolved(ctx context.Context, limit, offset int) ([]*domain.Reconciliation, error)
	ListReconciliations(ctx context.Context, input usecase.ListReconciliationsInput) ([]*domain.Reconciliation, error)
	UpdateStatus(ctx context.Context, id string, input usecase.UpdateReconciliationStatusInput) (*domain.Reconciliation, error)
}

// ReconciliationHandler handles reconciliation HTTP requests.
type ReconciliationHandler struct {
	recUC ReconciliationService
}

// NewReconciliationHandler creates a new ReconciliationHandler.
func NewReconciliationHandler(recUC ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{recUC: recUC}
}

// Create records a reconciliation. A discrepancy is a result, not an error.
func (h *ReconciliationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateReconciliationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, err := h.recUC.CreateReconciliation(r.Context(), req.ToUseCaseInput())
	if err != nil {
		respondError(w, r, "failed to record reconciliation", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.ReconciliationFromDomain(rec))
}

// Get retrieves a reconciliation by ID.
func (h *ReconciliationHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.recUC.GetReconciliation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, "failed to get reconciliation", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReconciliationFromDomain(rec))
}

// Latest returns the most recent reconciliation.
func (h *ReconciliationHandler) Latest(w http.ResponseWriter, r *http.Request) {
	rec, err := h.recUC.GetLatest(r.Context())
	if err != nil {
		respondError(w, r, "failed to get latest reconciliation", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReconciliationFromDomain(rec))
}

// Unresolved lists reconciliations still awaiting resolution.
func (h *ReconciliationHandler) Unresolved(w http.ResponseWriter, r *http.Request) {
	recs, err := h.recUC.ListUnresolved(r.Context(),
		parseIntQuery(r, "limit", domain.DefaultPageSize),
		parseIntQuery(r, "offset", 0))
	if err != nil {
		respondError(w, r, "failed to list unresolved reconciliations", err)
		return
	}

	h.writeList(w, recs)
}

// List lists reconciliations newest first, optionally by status.
func (h *ReconciliationHandler) List(w http.ResponseWriter, r *http.Request) {
	recs, err := h.recUC.ListReconciliations(r.Context(), usecase.ListReconciliationsInput{
		Status: domain.ReconciliationStatus(upperQuery(r, "status")),
		Limit:  parseIntQuery(r, "limit", domain.DefaultPageSize),
		Offset: parseIntQuery(r, "offset", 0),
	})
	if err != nil {
		respondError(w, r, "failed to list reconciliations", err)
		return
	}

	h.writeList(w, recs)
}

// UpdateStatus moves a reconciliation along its workflow.
func (h *ReconciliationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateReconciliationStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, err := h.recUC.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.ToUseCaseInput())
	if err != nil {
		respondError(w, r, "failed to update reconciliation status", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReconciliationFromDomain(rec))
}

func (h *ReconciliationHandler) writeList(w http.ResponseWriter, recs []*domain.Reconciliation) {
	writeJSON(w, http.StatusOK, dto.ListReconciliationsResponse{
		Reconciliations: dto.ReconciliationsFromDomain(recs),
		Total:           int64(len(recs)),
	})
}
