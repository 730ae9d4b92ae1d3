package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := New(registry)

	if m.AllocationsApplied == nil || m.HTTPRequests == nil || m.ReconciliationsRecorded == nil {
		t.Fatalf("expected key metrics to be initialized: %+v", m)
	}

	m.AllocationsApplied.WithLabelValues("applied").Inc()
	m.AccountsCreated.Inc()

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Fatalf("expected registered metrics, got none")
	}

	if got := testutil.ToFloat64(m.AllocationsApplied.WithLabelValues("applied")); got != 1 {
		t.Fatalf("expected counter at 1, got %v", got)
	}
}

func TestNewWithSeparateRegistries(t *testing.T) {
	// Registering twice on distinct registries must not panic.
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
