package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/iho/treasury/internal/domain"
	applog "github.com/iho/treasury/internal/infrastructure/logger"
)

// Recovery recovers from panics and logs them with the request logger,
// falling back to logger when none is on the context.
func Recovery(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					reqLogger := applog.FromContext(r.Context(), logger)
					reqLogger.Error().
						Interface("error", err).
						Str("stack", string(debug.Stack())).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Msg("panic recovered")

					writeError(w, http.StatusInternalServerError, "internal server error", domain.ReasonInternal, "")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
