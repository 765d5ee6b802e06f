package di

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"

	"kilometers.ai/authclient/internal/application/auth"
	"kilometers.ai/authclient/internal/application/interceptor"
	"kilometers.ai/authclient/internal/application/ports"
	"kilometers.ai/authclient/internal/config"
	"kilometers.ai/authclient/internal/core/events"
	storageports "kilometers.ai/authclient/internal/core/ports/storage"
	httpinfra "kilometers.ai/authclient/internal/infrastructure/http"
	"kilometers.ai/authclient/internal/infrastructure/logging"
	"kilometers.ai/authclient/internal/infrastructure/storage"
)

// Version is stamped into the client metadata header unless configured
var Version = "dev"

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *logging.StdLogger

	// Infrastructure
	Store     storageports.KeyValueStore
	Transport *httpinfra.StdTransport
	Backend   *httpinfra.HTTPAuthBackend

	// Auth core
	Chain       *interceptor.Chain
	Tokens      *auth.TokenStore
	Bus         *events.Bus
	Location    *Location
	Terminator  *auth.SessionTerminator
	Coordinator *auth.Coordinator
	Session     *auth.Session

	redis *redis.Client
}

// Option customizes container construction
type Option func(*options)

type options struct {
	logOutput io.Writer
	store     storageports.KeyValueStore
}

// WithLogOutput sends log lines to w instead of stderr
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithStore bypasses the configured storage backend
func WithStore(store storageports.KeyValueStore) Option {
	return func(o *options) { o.store = store }
}

// NewContainer creates and configures the dependency injection container
func NewContainer(cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	o := options{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	level := ports.LogLevelInfo
	if cfg.Debug {
		level = ports.LogLevelDebug
	}

	c := &Container{
		Config:   cfg,
		Logger:   logging.NewStdLogger(o.logOutput, level),
		Location: &Location{},
	}

	if err := c.initializeComponents(o.store); err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return c, nil
}

// initializeComponents initializes all components with proper dependencies
func (c *Container) initializeComponents(store storageports.KeyValueStore) error {
	cfg := c.Config

	// 1. Credential storage
	if store == nil {
		var err error
		store, err = c.openStore()
		if err != nil {
			return err
		}
	}
	c.Store = store

	// 2. Transport and the chain around it
	c.Transport = httpinfra.NewStdTransport(cfg.BaseURL, cfg.Timeout)
	c.Chain = interceptor.NewChain(c.Transport)
	c.Backend = httpinfra.NewHTTPAuthBackend(c.Chain, httpinfra.AuthEndpoints{
		LoginPath:   cfg.LoginPath,
		RefreshPath: cfg.RefreshPath,
		LogoutPath:  cfg.LogoutPath,
	})

	// 3. Token state and session lifecycle
	policy := auth.UnknownExpiryValid
	if cfg.UnknownExpiryStale {
		policy = auth.UnknownExpiryStale
	}
	c.Tokens = auth.NewTokenStore(c.Store, c.Logger, auth.WithUnknownExpiryPolicy(policy))
	c.Bus = events.NewBus(64)
	c.Terminator = auth.NewSessionTerminator(c.Tokens, c.Transport, c.Bus, c.Location, cfg.LoginSurface, c.Logger)
	c.Coordinator = auth.NewCoordinator(auth.CoordinatorConfig{
		Tokens:         c.Tokens,
		Backend:        c.Backend,
		Terminator:     c.Terminator,
		Headers:        c.Transport,
		Bus:            c.Bus,
		Logger:         c.Logger,
		RefreshTimeout: cfg.RefreshTimeout,
	})
	c.Session = auth.NewSession(c.Backend, c.Tokens, c.Terminator, c.Transport, c.Logger)

	// 4. Hooks, in the order they run
	platform := cfg.ClientPlatform
	if platform == "" {
		platform = interceptor.DefaultPlatform()
	}
	version := cfg.ClientVersion
	if version == "" {
		version = Version
	}
	c.Chain.
		UseRequest(
			interceptor.Augmenter(c.Tokens, interceptor.ClientInfo{Version: version, Platform: platform}),
			interceptor.TraceContext(),
		).
		UseResponse(
			interceptor.Classify(),
			interceptor.RecoverUnauthorized(c.Coordinator),
			interceptor.LogExchanges(c.Logger),
		)

	// A restored session starts with the stored bearer as transport default
	if token := c.Tokens.AccessToken(); token != "" {
		c.Transport.SetDefaultHeader("Authorization", "Bearer "+token)
	}

	c.Logger.Log(ports.LogLevelDebug, "container initialized", map[string]interface{}{
		"base_url": cfg.BaseURL,
		"storage":  cfg.Storage,
	})
	return nil
}

func (c *Container) openStore() (storageports.KeyValueStore, error) {
	switch c.Config.Storage {
	case config.StorageMemory:
		return storage.NewMemoryStore(), nil
	case config.StorageRedis:
		c.redis = redis.NewClient(&redis.Options{Addr: c.Config.RedisAddr})
		return storage.NewRedisStore(c.redis, c.Config.RedisPrefix), nil
	case config.StorageFile, "":
		store, err := storage.NewSecureFileStore(c.Config.StateDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open credential store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage %q", c.Config.Storage)
	}
}

// ApplyBaseURLOverride points the transport at another API
func (c *Container) ApplyBaseURLOverride(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	next := *c.Config
	next.BaseURL = baseURL
	if err := next.Validate(); err != nil {
		return err
	}
	c.Config.BaseURL = baseURL
	c.Transport.SetBaseURL(baseURL)
	c.Logger.Log(ports.LogLevelDebug, "base URL override applied", map[string]interface{}{"base_url": baseURL})
	return nil
}

// ApplyDebugOverride enables debug logging
func (c *Container) ApplyDebugOverride(debug bool) {
	if debug {
		c.Config.Debug = true
		c.Logger.SetLogLevel(ports.LogLevelDebug)
	}
}

// Shutdown releases external connections
func (c *Container) Shutdown(ctx context.Context) error {
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			return fmt.Errorf("failed to close redis client: %w", err)
		}
	}
	return nil
}

// Location tracks the path the CLI is currently working against, used as the
// return target after a forced logout
type Location struct {
	mu    sync.RWMutex
	value string
}

// Set records the current location
func (l *Location) Set(value string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.value = value
}

func (l *Location) CurrentLocation() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.value
}
