package handler

import (
	"context"
	"net/http"

	"github.com/iho/treasury/internal/adapter/http/dto"
	"github.com/iho/treasury/internal/domain"
)

// AuditService defines the behavior needed by AuditHandler.
type AuditService interface {
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error)
}

// AuditHandler serves the audit trail.
type AuditHandler struct {
	audit AuditService
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(audit AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List lists audit rows newest first, filtered by table, record and actor.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logs, err := h.audit.List(r.Context(), domain.AuditFilter{
		TableName: q.Get("table"),
		RecordID:  q.Get("record_id"),
		Actor:     q.Get("actor"),
		Limit:     parseIntQuery(r, "limit", domain.DefaultPageSize),
		Offset:    parseIntQuery(r, "offset", 0),
	})
	if err != nil {
		respondError(w, r, "failed to list audit logs", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListAuditLogsResponse{
		AuditLogs: dto.AuditLogsFromDomain(logs),
		Total:     int64(len(logs)),
	})
}
