package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/iho/treasury/internal/adapter/http/dto"
	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/infrastructure/auth"
)

// TokenVerifier validates a bearer token.
type TokenVerifier interface {
	Verify(tokenString string) (*auth.Claims, error)
}

// AuthMiddleware resolves the bearer token into a domain.Principal.
// Requests without a valid token are rejected with 401.
func AuthMiddleware(verifier TokenVerifier, failures *prometheus.CounterVec) func(http.Handler) http.Handler {
	fail := func(w http.ResponseWriter, reason, message string) {
		if failures != nil {
			failures.WithLabelValues(reason).Inc()
		}
		writeError(w, http.StatusUnauthorized, "unauthorized", domain.ReasonUnauthorized, message)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				fail(w, "missing", "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				fail(w, "malformed", "invalid authorization header format")
				return
			}

			claims, err := verifier.Verify(parts[1])
			if err != nil {
				if errors.Is(err, domain.ErrExpiredToken) {
					fail(w, "expired", "token has expired")
					return
				}
				fail(w, "invalid", "invalid token")
				return
			}

			p := claims.Principal()
			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("actor", p.ID).Str("role", string(p.Role))
			})

			next.ServeHTTP(w, r.WithContext(domain.WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole rejects principals below minRole with 403.
func RequireRole(minRole domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := domain.PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", domain.ReasonUnauthorized, "")
				return
			}

			if !p.Role.Allows(minRole) {
				writeError(w, http.StatusForbidden, "insufficient permissions", domain.ReasonForbidden,
					"requires role "+string(minRole))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, message, code, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		Code:    code,
		Message: details,
	})
}
