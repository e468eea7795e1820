package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDevDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "PayLentine", cfg.AppName)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, 24*time.Hour, cfg.PendingTTL)
	assert.Equal(t, 5*time.Minute, cfg.ReverifyTTL)
	assert.Equal(t, "USD", cfg.DefaultCurrency)
	assert.True(t, cfg.AutoMigrate)
	assert.NotEmpty(t, cfg.ReverifySecret)
}

func TestLoadDurationsFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")
	t.Setenv("PENDING_TTL", "2h")
	t.Setenv("SWEEP_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.ShutdownPeriod)
	assert.Equal(t, 2*time.Hour, cfg.PendingTTL)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("PENDING_TTL", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadProductionRequiresBackends(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")
}
