package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/treasury/internal/infrastructure/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.DatabaseURL, "default database URL")
	assert.Empty(t, cfg.JWTSecret)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, config.StoragePostgres, cfg.StorageDriver)
	assert.Equal(t, "skip", cfg.AllocationInactiveTargetPolicy)
	assert.True(t, cfg.AutoAllocate)
	assert.True(t, cfg.ReserveTargetPercent.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 15*time.Second, cfg.TreasuryCacheTTL)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis://example")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DATABASE_TIMEOUT", "45s")
	t.Setenv("JWT_SECRET", "top-secret")
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("ALLOCATION_INACTIVE_TARGET_POLICY", "fallback")
	t.Setenv("ALLOCATION_FALLBACK_ACCOUNT", "acc-ops")
	t.Setenv("RESERVE_TARGET_PERCENT", "12.5")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://example", cfg.DatabaseURL)
	assert.Equal(t, "redis://example", cfg.RedisURL)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 45*time.Second, cfg.DatabaseTimeout)
	assert.True(t, cfg.AuthEnabled)
	assert.Equal(t, config.StorageMemory, cfg.StorageDriver)
	assert.Equal(t, "fallback", cfg.AllocationInactiveTargetPolicy)
	assert.Equal(t, "acc-ops", cfg.AllocationFallbackAccount)
	assert.True(t, cfg.ReserveTargetPercent.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_PORT=7070\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("HTTP_PORT", "")
	os.Unsetenv("HTTP_PORT")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.HTTPPort)
	assert.Equal(t, "warn", cfg.LogLevel, "process environment wins over .env")
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown storage", env: map[string]string{"STORAGE_DRIVER": "sqlite"}},
		{name: "auth without secret", env: map[string]string{"AUTH_ENABLED": "true", "JWT_SECRET": ""}},
		{name: "reserve above 100", env: map[string]string{"RESERVE_TARGET_PERCENT": "150"}},
		{name: "bad duration", env: map[string]string{"HTTP_READ_TIMEOUT": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load(filepath.Join(t.TempDir(), "absent.env"))
			assert.Error(t, err)
		})
	}
}
