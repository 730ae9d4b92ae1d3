package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/treasury/internal/adapter/http/dto"
	"github.com/iho/treasury/internal/domain"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response. Internal failures never leak their
// message to the client.
func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := dto.ErrorResponse{Error: message}
	if err != nil {
		resp.Code = domain.ReasonCode(err)
		if status < http.StatusInternalServerError {
			resp.Message = err.Error()
			var re *domain.ReasonError
			if errors.As(err, &re) {
				resp.Field = re.Field
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// respondError maps err to a status code and writes it. Server-side failures
// are logged with the request logger.
func respondError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := mapDomainError(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg(message)
	}
	writeError(w, status, message, err)
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return false
	}
	return true
}

// mapDomainError maps domain errors to HTTP status codes.
func mapDomainError(err error) int {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrTransactionNotFound),
		errors.Is(err, domain.ErrRuleNotFound),
		errors.Is(err, domain.ErrReconciliationNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrAccountExists),
		errors.Is(err, domain.ErrRuleExists),
		errors.Is(err, domain.ErrDuplicateExternalReference),
		errors.Is(err, domain.ErrAllocationAlreadyDone),
		errors.Is(err, domain.ErrNotAllocatable),
		errors.Is(err, domain.ErrInvalidStatusTransition):
		return http.StatusConflict

	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrNegativeBalance),
		errors.Is(err, domain.ErrAccountInactive):
		return http.StatusUnprocessableEntity

	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidTransactionType),
		errors.Is(err, domain.ErrInvalidTransactionStatus),
		errors.Is(err, domain.ErrInvalidAccountFlow),
		errors.Is(err, domain.ErrSameAccount),
		errors.Is(err, domain.ErrEmptyRule),
		errors.Is(err, domain.ErrInvalidPercentageSum),
		errors.Is(err, domain.ErrInvalidPercentage),
		errors.Is(err, domain.ErrUnknownAccount),
		errors.Is(err, domain.ErrInactiveAccount),
		errors.Is(err, domain.ErrInvalidTrigger),
		errors.Is(err, domain.ErrInvalidAmountRange),
		errors.Is(err, domain.ErrInvalidRuleName),
		errors.Is(err, domain.ErrNegativeExternalBalance),
		errors.Is(err, domain.ErrInvalidReconciliationState),
		errors.Is(err, domain.ErrInvalidAccountName),
		errors.Is(err, domain.ErrMetadataTooLarge):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrExpiredToken):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInsufficientRole):
		return http.StatusForbidden

	default:
		return http.StatusInternalServerError
	}
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultValue int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return i
}

// parseBoolQuery parses a boolean query parameter with a default value.
func parseBoolQuery(r *http.Request, key string, defaultValue bool) bool {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return b
}

// parseTimeQuery parses an RFC 3339 query parameter. Missing values yield nil.
func parseTimeQuery(r *http.Request, key string) (*time.Time, error) {
	val := r.URL.Query().Get(key)
	if val == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// upperQuery returns the trimmed, upper-cased query parameter.
func upperQuery(r *http.Request, key string) string {
	return strings.ToUpper(strings.TrimSpace(r.URL.Query().Get(key)))
}

// actor returns the authenticated principal id for r.
func actor(r *http.Request) string {
	return domain.ActorFromContext(r.Context(), domain.SystemActor)
}
