package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRateLimiter_LimitsPerClientIP(t *testing.T) {
	hits := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_rate_limit_hits"})
	rl := NewRateLimiter(1, 1, hits)
	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := send("1.2.3.4:1000"); code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", code)
	}
	// Same host, different source port shares the bucket.
	if code := send("1.2.3.4:2000"); code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", code)
	}
	if code := send("5.6.7.8:1000"); code != http.StatusOK {
		t.Fatalf("expected another client to pass, got %d", code)
	}
	if got := testutil.ToFloat64(hits); got != 1 {
		t.Fatalf("expected 1 rate limit hit, got %v", got)
	}
}

func TestRateLimiter_CleanupLimitersDropsIdle(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(10, 10, nil)
	rl.now = func() time.Time { return now }

	rl.getLimiter("1.1.1.1")
	now = now.Add(2 * time.Minute)
	rl.getLimiter("2.2.2.2")

	if removed := rl.CleanupLimiters(time.Minute); removed != 1 {
		t.Fatalf("expected 1 idle limiter removed, got %d", removed)
	}
	if _, ok := rl.limiters["2.2.2.2"]; !ok {
		t.Fatalf("expected recent limiter to survive")
	}
}
