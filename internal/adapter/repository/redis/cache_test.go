package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSetAndGet(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer mr.Close()
	defer client.Close()

	cache := NewCache(client, nil)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "treasury:status", []byte(`{"total_balance":"10"}`), time.Minute))

	val, err := cache.Get(ctx, "treasury:status")
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_balance":"10"}`, string(val))
	assert.True(t, mr.Exists("cache:treasury:status"))
}

func TestCacheMissAndExpiry(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer mr.Close()
	defer client.Close()

	cache := NewCache(client, nil)
	ctx := context.Background()

	_, err := cache.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, "short", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)

	_, err = cache.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCacheDelete(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer mr.Close()
	defer client.Close()

	cache := NewCache(client, nil)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "foo", []byte("bar"), time.Minute))
	require.NoError(t, cache.Delete(ctx, "foo"))

	_, err := cache.Get(ctx, "foo")
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestCacheCountsErrors(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer client.Close()

	errs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "redis_errors_total"}, []string{"operation"})
	cache := NewCache(client, errs)
	mr.Close()

	err := cache.Set(context.Background(), "k", []byte("v"), time.Minute)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(errs.WithLabelValues("set")))
}
