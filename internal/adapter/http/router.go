package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/treasury/internal/adapter/http/handler"
	"github.com/iho/treasury/internal/adapter/http/middleware"
	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/infrastructure/metrics"
	"github.com/iho/treasury/internal/usecase"
)

// RouterConfig holds dependencies for the router. Optional pieces
// (IdempotencyStore, TokenVerifier, RateLimiter, Metrics, Gatherer) are
// skipped when nil.
type RouterConfig struct {
	AccountHandler        *handler.AccountHandler
	TransactionHandler    *handler.TransactionHandler
	RuleHandler           *handler.RuleHandler
	ReconciliationHandler *handler.ReconciliationHandler
	AuditHandler          *handler.AuditHandler
	HealthHandler         *handler.HealthHandler

	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	TokenVerifier    middleware.TokenVerifier
	RateLimiter      *middleware.RateLimiter
	Metrics          *metrics.Metrics
	Gatherer         prometheus.Gatherer
	Logger           zerolog.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// Role gates are no-ops when authentication is disabled.
	role := func(minRole domain.Role) func(http.Handler) http.Handler {
		if cfg.TokenVerifier == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.RequireRole(minRole)
	}
	viewer := role(domain.RoleViewer)
	operator := role(domain.RoleOperator)
	admin := role(domain.RoleAdmin)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.TokenVerifier != nil {
			var failures *prometheus.CounterVec
			if cfg.Metrics != nil {
				failures = cfg.Metrics.AuthFailures
			}
			r.Use(middleware.AuthMiddleware(cfg.TokenVerifier, failures))
		}

		// Idempotency runs after auth so keys are scoped per caller.
		if cfg.IdempotencyStore != nil {
			r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL).Wrap)
		}

		// Accounts
		r.Route("/accounts", func(r chi.Router) {
			r.With(viewer).Get("/", cfg.AccountHandler.List)
			r.With(admin).Post("/", cfg.AccountHandler.Create)
			r.With(viewer).Get("/by-name/{name}", cfg.AccountHandler.GetByName)
			r.With(viewer).Get("/{id}", cfg.AccountHandler.Get)
			r.With(admin).Post("/{id}/deactivate", cfg.AccountHandler.Deactivate)
			r.With(admin).Post("/{id}/reactivate", cfg.AccountHandler.Reactivate)
		})

		r.With(viewer).Get("/treasury/status", cfg.AccountHandler.TreasuryStatus)

		// Transactions
		r.Route("/transactions", func(r chi.Router) {
			r.With(viewer).Get("/", cfg.TransactionHandler.List)
			r.With(operator).Post("/", cfg.TransactionHandler.Create)
			r.With(viewer).Get("/{id}", cfg.TransactionHandler.Get)
			r.With(operator).Post("/{id}/complete", cfg.TransactionHandler.Complete)
			r.With(operator).Post("/{id}/fail", cfg.TransactionHandler.Fail)
			r.With(operator).Post("/{id}/cancel", cfg.TransactionHandler.Cancel)
			r.With(viewer).Get("/{id}/allocations", cfg.TransactionHandler.Allocations)
			r.With(operator).Post("/{id}/allocations", cfg.TransactionHandler.Allocate)
		})

		// Allocation rules
		r.Route("/allocation-rules", func(r chi.Router) {
			r.With(viewer).Get("/", cfg.RuleHandler.List)
			r.With(admin).Post("/", cfg.RuleHandler.Create)
			r.With(viewer).Post("/validate", cfg.RuleHandler.Validate)
			r.With(viewer).Get("/{id}", cfg.RuleHandler.Get)
			r.With(admin).Patch("/{id}", cfg.RuleHandler.Update)
			r.With(admin).Post("/{id}/deactivate", cfg.RuleHandler.Deactivate)
		})

		// Reconciliations
		r.Route("/reconciliations", func(r chi.Router) {
			r.With(viewer).Get("/", cfg.ReconciliationHandler.List)
			r.With(operator).Post("/", cfg.ReconciliationHandler.Create)
			r.With(viewer).Get("/latest", cfg.ReconciliationHandler.Latest)
			r.With(viewer).Get("/unresolved", cfg.ReconciliationHandler.Unresolved)
			r.With(viewer).Get("/{id}", cfg.ReconciliationHandler.Get)
			r.With(operator).Patch("/{id}/status", cfg.ReconciliationHandler.UpdateStatus)
		})

		r.With(admin).Get("/audit-logs", cfg.AuditHandler.List)
	})

	return r
}
