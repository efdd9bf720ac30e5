package config_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dermalink-api/internal/config"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/dermalink")
	t.Setenv("JWT_SECRET", "0123456789abcdef")

	cfg, err := config.FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "50051", cfg.GRPCPort)
	assert.Equal(t, "8080", cfg.WebPort)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 720*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, int64(10485760), cfg.UploadMaxBytes)
	assert.Equal(t, "@every 15m", cfg.SweepSchedule)
	assert.False(t, cfg.Dev())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/dermalink")
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("APP_ENV", "dev")
	t.Setenv("WEB_PORT", "9090")
	t.Setenv("PUBLIC_BASE_URL", "https://cdn.example.com/")
	t.Setenv("RATE_LIMIT_RPS", "0.5")

	cfg, err := config.FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Dev())
	assert.Equal(t, "9090", cfg.WebPort)
	assert.Equal(t, "https://cdn.example.com", cfg.PublicBaseURL)
	assert.InDelta(t, 0.5, cfg.RateLimitRPS, 1e-9)
}

func TestFromEnvMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "0123456789abcdef")

	_, err := config.FromEnv()
	assert.Error(t, err)
}

func TestFromEnvShortSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/dermalink")
	t.Setenv("JWT_SECRET", "short")

	_, err := config.FromEnv()
	assert.Error(t, err)
}

func TestTrustedProxies(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/dermalink")
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.7")

	cfg, err := config.FromEnv()
	require.NoError(t, err)
	ps, err := cfg.Proxies()
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.True(t, ps[0].Contains(netip.MustParseAddr("10.1.2.3")))
	assert.True(t, ps[1].Contains(netip.MustParseAddr("192.168.1.7")))
	assert.False(t, ps[1].Contains(netip.MustParseAddr("192.168.1.8")))

	t.Setenv("TRUSTED_PROXIES", "not-a-cidr")
	_, err = config.FromEnv()
	assert.Error(t, err)
}
