package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backends for the credentials
const (
	StorageFile   = "file"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// Config is the client configuration, read from KMAUTH_* environment variables
type Config struct {
	BaseURL      string `env:"KMAUTH_BASE_URL" envDefault:"http://localhost:8080"`
	LoginPath    string `env:"KMAUTH_LOGIN_PATH" envDefault:"/api/auth/login"`
	RefreshPath  string `env:"KMAUTH_REFRESH_PATH" envDefault:"/api/auth/refresh"`
	LogoutPath   string `env:"KMAUTH_LOGOUT_PATH" envDefault:"/api/auth/logout"`
	LoginSurface string `env:"KMAUTH_LOGIN_SURFACE" envDefault:"/login"`

	Timeout        time.Duration `env:"KMAUTH_TIMEOUT" envDefault:"30s"`
	RefreshTimeout time.Duration `env:"KMAUTH_REFRESH_TIMEOUT" envDefault:"30s"`

	Storage     string `env:"KMAUTH_STORAGE" envDefault:"file"`
	StateDir    string `env:"KMAUTH_STATE_DIR" envDefault:"~/.config/kmauth"`
	RedisAddr   string `env:"KMAUTH_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPrefix string `env:"KMAUTH_REDIS_PREFIX" envDefault:"kmauth"`

	ClientVersion  string `env:"KMAUTH_CLIENT_VERSION"`
	ClientPlatform string `env:"KMAUTH_CLIENT_PLATFORM"`

	// OTelEndpoint is the OTLP/HTTP traces URL; tracing is off when empty
	OTelEndpoint string `env:"KMAUTH_OTEL_ENDPOINT"`

	// UnknownExpiryStale treats tokens with no known expiry as expired
	UnknownExpiryStale bool `env:"KMAUTH_UNKNOWN_EXPIRY_STALE"`
	Debug              bool `env:"KMAUTH_DEBUG"`
}

// Load reads the configuration from the environment and validates it
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the client cannot work with
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base URL %q", c.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL must use http or https, got %q", u.Scheme)
	}

	for name, path := range map[string]string{
		"login path":    c.LoginPath,
		"refresh path":  c.RefreshPath,
		"logout path":   c.LogoutPath,
		"login surface": c.LoginSurface,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%s must start with '/', got %q", name, path)
		}
	}

	switch c.Storage {
	case StorageFile, StorageRedis, StorageMemory:
	default:
		return fmt.Errorf("unknown storage %q (want file, redis or memory)", c.Storage)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.RefreshTimeout <= 0 {
		return fmt.Errorf("refresh timeout must be positive, got %s", c.RefreshTimeout)
	}
	return nil
}
