package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORTAL_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.AppPort)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, "postgres", cfg.DatabaseDriver)
	require.Equal(t, "portal", cfg.RealtimeChannel)
	require.Equal(t, 5*time.Second, cfg.FeedWriteTimeout)
	require.Equal(t, 30*time.Second, cfg.FeedStreamKeepAlive)
	require.Equal(t, 50, cfg.FeedRecentLimit)
	require.Equal(t, 5*time.Minute, cfg.ProfileCacheTTL)
	require.False(t, cfg.SeedEnabled)
	require.Equal(t, 10, cfg.AssistantRateLimit)
	require.Equal(t, time.Minute, cfg.AssistantRateWindow)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORTAL_JWT_SECRET", "secret")
	t.Setenv("PORTAL_APP_PORT", ":9090")
	t.Setenv("PORTAL_DATABASE_DRIVER", "SQLite")
	t.Setenv("PORTAL_FEED_WRITE_TIMEOUT", "250ms")
	t.Setenv("PORTAL_SEED_ENABLED", "true")
	t.Setenv("PORTAL_SEED_TOKEN", "seed")
	t.Setenv("PORTAL_OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.Equal(t, "sqlite", cfg.DatabaseDriver)
	require.Equal(t, 250*time.Millisecond, cfg.FeedWriteTimeout)
	require.True(t, cfg.SeedEnabled)
	require.Equal(t, "seed", cfg.SeedToken)
	require.Equal(t, "sk-test", cfg.OpenAIAPIKey)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("PORTAL_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("PORTAL_JWT_SECRET", "secret")
	t.Setenv("PORTAL_PROFILE_CACHE_TTL", "soon")

	_, err := Load()
	require.ErrorContains(t, err, "profile.cache_ttl")
}
