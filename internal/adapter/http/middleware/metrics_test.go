package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iho/treasury/internal/infrastructure/metrics"
)

func TestMetricsMiddlewareRecordsRoutePattern(t *testing.T) {
	testCases := []struct {
		name       string
		method     string
		path       string
		pattern    string
		statusCode int
	}{
		{
			name:       "labels account path by pattern",
			method:     http.MethodGet,
			path:       "/api/v1/accounts/01ABC123",
			pattern:    "/api/v1/accounts/{id}",
			statusCode: http.StatusTeapot,
		},
		{
			name:       "static path",
			method:     http.MethodPost,
			path:       "/health",
			pattern:    "/health",
			statusCode: http.StatusCreated,
		},
		{
			name:       "unmatched path",
			method:     http.MethodGet,
			path:       "/nope",
			pattern:    "unmatched",
			statusCode: http.StatusNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := metrics.New(prometheus.NewRegistry())

			r := chi.NewRouter()
			r.Use(Metrics(m))
			handler := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(tc.statusCode) }
			r.Get("/api/v1/accounts/{id}", handler)
			r.Post("/health", handler)

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))

			if got := testutil.ToFloat64(m.HTTPInFlight); got != 0 {
				t.Fatalf("expected in-flight gauge to return to 0, got %v", got)
			}

			counter := m.HTTPRequests.WithLabelValues(tc.method, tc.pattern, strconv.Itoa(tc.statusCode))
			if got := testutil.ToFloat64(counter); got != 1 {
				t.Fatalf("expected counter for %s to be 1, got %v", tc.pattern, got)
			}
		})
	}
}
