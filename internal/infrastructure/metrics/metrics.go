package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "treasury"

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Transaction metrics
	TransactionsCreated   *prometheus.CounterVec
	TransactionsCompleted *prometheus.CounterVec
	TransactionAmount     *prometheus.HistogramVec

	// Allocation metrics
	AllocationsApplied    *prometheus.CounterVec
	AllocationDuration    prometheus.Histogram
	AllocatedAmount       prometheus.Histogram
	AllocationSkipped     *prometheus.CounterVec
	AllocationErrors      *prometheus.CounterVec
	AllocationResidual    prometheus.Histogram
	AllocationRuleChanges *prometheus.CounterVec

	// Account metrics
	AccountsCreated     prometheus.Counter
	TreasuryBalance     prometheus.Gauge
	TreasuryCacheLookup *prometheus.CounterVec

	// Reconciliation metrics
	ReconciliationsRecorded *prometheus.CounterVec
	LastDiscrepancy         prometheus.Gauge

	// API metrics
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	HTTPInFlight  prometheus.Gauge
	RateLimitHits prometheus.Counter
	AuthFailures  *prometheus.CounterVec

	// Storage metrics
	DBRetries   prometheus.Counter
	RedisErrors *prometheus.CounterVec

	// Outbox metrics
	OutboxPublished *prometheus.CounterVec

	// Audit metrics
	AuditLogsCreated *prometheus.CounterVec
}

// New creates all metrics and registers them with reg.
// A nil reg registers with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Transaction metrics
		TransactionsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_created_total",
				Help:      "Total number of ledger transactions created",
			},
			[]string{"type", "status"},
		),
		TransactionsCompleted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_completed_total",
				Help:      "Total number of transactions that reached a terminal status",
			},
			[]string{"type", "status"},
		),
		TransactionAmount: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transaction_amount",
				Help:      "Completed transaction amounts",
				Buckets:   []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
			},
			[]string{"type"},
		),

		// Allocation metrics
		AllocationsApplied: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocations_total",
				Help:      "Allocation applications by outcome",
			},
			[]string{"status"},
		),
		AllocationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "allocation_duration_seconds",
			Help:      "Duration of allocation applications",
			Buckets:   prometheus.DefBuckets,
		}),
		AllocatedAmount: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "allocated_amount",
			Help:      "Total amount distributed per allocation",
			Buckets:   []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
		}),
		AllocationSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocation_entries_skipped_total",
				Help:      "Rule entries not distributed because the target was unusable",
			},
			[]string{"reason"},
		),
		AllocationErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocation_errors_total",
				Help:      "Allocation applications that failed, by reason code",
			},
			[]string{"reason"},
		),
		AllocationResidual: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "allocation_residual",
			Help:      "Undistributed remainder per allocation",
			Buckets:   []float64{0.00000001, 0.000001, 0.0001, 0.01, 1, 100},
		}),
		AllocationRuleChanges: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocation_rule_changes_total",
				Help:      "Allocation rule administrative changes",
			},
			[]string{"operation"},
		),

		// Account metrics
		AccountsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accounts_created_total",
			Help:      "Total number of logical accounts created",
		}),
		TreasuryBalance: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_balance",
			Help:      "Sum of active account balances at the last status read",
		}),
		TreasuryCacheLookup: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_cache_lookups_total",
				Help:      "Treasury status cache lookups",
			},
			[]string{"result"},
		),

		// Reconciliation metrics
		ReconciliationsRecorded: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliations_total",
				Help:      "Reconciliation records by status",
			},
			[]string{"status"},
		),
		LastDiscrepancy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_discrepancy",
			Help:      "Signed discrepancy of the most recent reconciliation",
		}),

		// API metrics
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		}),
		RateLimitHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected by the rate limiter",
		}),
		AuthFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Total authentication failures",
			},
			[]string{"reason"},
		),

		// Storage metrics
		DBRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_retries_total",
			Help:      "Units of work retried after serialization failures or deadlocks",
		}),
		RedisErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "redis_errors_total",
				Help:      "Total Redis errors",
			},
			[]string{"operation"},
		),

		// Outbox metrics
		OutboxPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_events_total",
				Help:      "Outbox events processed by result",
			},
			[]string{"event_type", "result"},
		),

		// Audit metrics
		AuditLogsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_logs_total",
				Help:      "Total audit logs created",
			},
			[]string{"table", "operation"},
		),
	}
}
