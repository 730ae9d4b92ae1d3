package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/treasury/internal/adapter/http/dto"
	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/usecase"
)

// RuleService defines the behavior needed by RuleHandler.
type RuleService interface {
	CreateRule(ctx context.Context, input usecase.CreateRuleInput) (*domain.AllocationRule, error)
	UpdateRule(ctx context.Context, id string, input usecase.UpdateRuleInput) (*domain.AllocationRule, error)
	DeactivateRule(ctx context.Context, id string) (*domain.AllocationRule, error)
	GetRule(ctx context.Context, id string) (*domain.AllocationRule, error)
	ListRules(ctx context.Context, activeOnly bool) ([]*domain.AllocationRule, error)
	ValidateRuleEntries(ctx context.Context, entries []domain.AllocationEntry) (*usecase.RuleValidation, error)
}

// RuleHandler handles allocation rule HTTP requests.
type RuleHandler struct {
	ruleUC RuleService
}

// NewRuleHandler creates a new RuleHandler.
func NewRuleHandler(ruleUC RuleService) *RuleHandler {
	return &RuleHandler{ruleUC: ruleUC}
}

// Create stores a new active rule.
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rule, err := h.ruleUC.CreateRule(r.Context(), req.ToUseCaseInput())
	if err != nil {
		respondError(w, r, "failed to create allocation rule", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.RuleFromDomain(rule))
}

// Get retrieves a rule by ID.
func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	rule, err := h.ruleUC.GetRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, "failed to get allocation rule", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.RuleFromDomain(rule))
}

// List lists rules in evaluation order.
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.ruleUC.ListRules(r.Context(), parseBoolQuery(r, "active_only", false))
	if err != nil {
		respondError(w, r, "failed to list allocation rules", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListRulesResponse{
		Rules: dto.RulesFromDomain(rules),
		Total: int64(len(rules)),
	})
}

// Update applies a partial update.
func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rule, err := h.ruleUC.UpdateRule(r.Context(), chi.URLParam(r, "id"), req.ToUseCaseInput())
	if err != nil {
		respondError(w, r, "failed to update allocation rule", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.RuleFromDomain(rule))
}

// Deactivate stops a rule from matching.
func (h *RuleHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	rule, err := h.ruleUC.DeactivateRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, "failed to deactivate allocation rule", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.RuleFromDomain(rule))
}

// Validate dry-runs a set of entries. An invalid rule is a 200 with valid=false.
func (h *RuleHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req dto.ValidateRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	verdict, err := h.ruleUC.ValidateRuleEntries(r.Context(), req.ToDomain())
	if err != nil {
		respondError(w, r, "failed to validate allocation rule", err)
		return
	}

	writeJSON(w, http.StatusOK, verdict)
}
