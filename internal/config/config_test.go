package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OELP_JWT_SECRET", "secret")
	t.Setenv("OELP_APP_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.Equal(t, "http://127.0.0.1:9090/api/v1/exec", cfg.ExecutionURL)
	require.Equal(t, 5*time.Second, cfg.ExecutionTimeout)
	require.Equal(t, 30*time.Second, cfg.ExecutionClientTimeout)
	require.Equal(t, time.Second, cfg.DraftQuietPeriod)
	require.Equal(t, 720*time.Hour, cfg.DraftTTL)
	require.Equal(t, time.Minute, cfg.AnalyticsCacheTTL)
	require.Equal(t, 10*time.Minute, cfg.ProgressCacheTTL)
	require.Equal(t, 10, cfg.PointsPerCase)
	require.Equal(t, 20, cfg.ExecRateLimitPerMinute)
	require.False(t, cfg.FixtureStorageEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OELP_JWT_SECRET", "secret")
	t.Setenv("OELP_EXECUTION_URL", "https://grader.internal/api/v1/exec/")
	t.Setenv("OELP_DRAFT_QUIET_PERIOD", "250ms")
	t.Setenv("OELP_GRADING_POINTS_PER_CASE", "5")
	t.Setenv("OELP_CLOUDINARY_CLOUD_NAME", "demo")
	t.Setenv("OELP_CLOUDINARY_API_KEY", "key")
	t.Setenv("OELP_CLOUDINARY_API_SECRET", "shh")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "https://grader.internal/api/v1/exec", cfg.ExecutionURL)
	require.Equal(t, 250*time.Millisecond, cfg.DraftQuietPeriod)
	require.Equal(t, 5, cfg.PointsPerCase)
	require.True(t, cfg.FixtureStorageEnabled())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("OELP_JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("OELP_JWT_SECRET", "secret")
	t.Setenv("OELP_ANALYTICS_CACHE_TTL", "soon")
	_, err = Load()
	require.ErrorContains(t, err, "analytics.cache_ttl")
}
