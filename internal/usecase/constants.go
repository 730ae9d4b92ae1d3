package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from blocking tables
	DefaultTransactionTimeout = 10 * time.Second

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// DefaultTreasuryCacheTTL is how long a treasury status snapshot is served from cache.
	DefaultTreasuryCacheTTL = 15 * time.Second

	treasuryStatusCacheKey = "treasury:status"
)
