package app

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 30*time.Second, cfg.AppRequestTimeout)
	require.Equal(t, int32(10), cfg.PGMaxConns)
	require.True(t, cfg.ChallanUnitCost.Equal(decimal.NewFromInt(10)))
	require.True(t, cfg.AccessConcealExistence)
	require.Equal(t, 120, cfg.RateLimitPerMinute)
	require.Equal(t, "@every 1h", cfg.IntegrityCron)
	require.Equal(t, ":9091", cfg.WorkerMetricsAddr)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("APP_ENV", "production")
	t.Setenv("CHALLAN_UNIT_COST", "12.5")
	t.Setenv("ACCESS_CONCEAL_EXISTENCE", "false")
	t.Setenv("REFERENCE_CACHE_TTL", "90s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, "12.5", cfg.ChallanUnitCost.String())
	require.False(t, cfg.AccessConcealExistence)
	require.Equal(t, 90*time.Second, cfg.ReferenceCacheTTL)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CHALLAN_UNIT_COST", "-1")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "unit cost")

	t.Setenv("CHALLAN_UNIT_COST", "10")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "-5")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "rate limit")
}

func TestIsProductionNilSafe(t *testing.T) {
	var cfg *Config
	require.False(t, cfg.IsProduction())
}
