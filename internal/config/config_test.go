package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "/api/auth/refresh", cfg.RefreshPath)
	assert.Equal(t, "/login", cfg.LoginSurface)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, StorageFile, cfg.Storage)
	assert.False(t, cfg.UnknownExpiryStale)
	assert.False(t, cfg.Debug)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KMAUTH_BASE_URL", "https://api.example.com")
	t.Setenv("KMAUTH_REFRESH_PATH", "/v2/token/refresh")
	t.Setenv("KMAUTH_TIMEOUT", "5s")
	t.Setenv("KMAUTH_STORAGE", "redis")
	t.Setenv("KMAUTH_REDIS_PREFIX", "tenant-a")
	t.Setenv("KMAUTH_UNKNOWN_EXPIRY_STALE", "true")
	t.Setenv("KMAUTH_DEBUG", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.BaseURL)
	assert.Equal(t, "/v2/token/refresh", cfg.RefreshPath)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, StorageRedis, cfg.Storage)
	assert.Equal(t, "tenant-a", cfg.RedisPrefix)
	assert.True(t, cfg.UnknownExpiryStale)
	assert.True(t, cfg.Debug)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"relative base url", "KMAUTH_BASE_URL", "api.example.com", "invalid base URL"},
		{"unsupported scheme", "KMAUTH_BASE_URL", "ftp://api.example.com", "http or https"},
		{"path without slash", "KMAUTH_REFRESH_PATH", "refresh", "refresh path"},
		{"unknown storage", "KMAUTH_STORAGE", "sqlite", "unknown storage"},
		{"zero timeout", "KMAUTH_TIMEOUT", "0s", "timeout must be positive"},
		{"unparsable duration", "KMAUTH_REFRESH_TIMEOUT", "soon", "parse env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
