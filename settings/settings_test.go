package settings_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgelimit/gateway/settings"
)

func TestLoad_Defaults(t *testing.T) {
	s, err := settings.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", s.ListenAddr)
	assert.Equal(t, ":8081", s.AdminAddr)
	assert.Equal(t, "/__rate_limit_info", s.RateLimitInfoPath)
	assert.Equal(t, "memory", s.ConfigStorage)
	assert.Equal(t, "sliding_window", s.RateLimiter)
	assert.Equal(t, 60*time.Second, s.ConfigCacheTTL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GATEWAY_LISTEN_ADDR", ":9090")
	t.Setenv("GATEWAY_CONFIG_STORAGE", "redis")
	t.Setenv("GATEWAY_CONFIG_CACHE_TTL", "5s")

	s, err := settings.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", s.ListenAddr)
	assert.Equal(t, "redis", s.ConfigStorage)
	assert.Equal(t, 5*time.Second, s.ConfigCacheTTL)
}
