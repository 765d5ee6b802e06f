package di

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kilometers.ai/authclient/internal/application/auth"
	"kilometers.ai/authclient/internal/config"
	"kilometers.ai/authclient/internal/core/apierror"
	authdomain "kilometers.ai/authclient/internal/core/domain/auth"
	httpdomain "kilometers.ai/authclient/internal/core/domain/http"
	"kilometers.ai/authclient/internal/core/events"
	"kilometers.ai/authclient/internal/infrastructure/storage"
	"kilometers.ai/authclient/internal/testkit/authserver"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		BaseURL:        baseURL,
		LoginPath:      authserver.LoginPath,
		RefreshPath:    authserver.RefreshPath,
		LogoutPath:     authserver.LogoutPath,
		LoginSurface:   "/login",
		Timeout:        5 * time.Second,
		RefreshTimeout: 5 * time.Second,
		Storage:        config.StorageMemory,
		RedisPrefix:    "kmauth",
		ClientVersion:  "test",
	}
}

func newTestContainer(t *testing.T, server *authserver.Server) *Container {
	t.Helper()
	var logs bytes.Buffer
	c, err := NewContainer(testConfig(server.URL), WithLogOutput(&logs))
	require.NoError(t, err)
	t.Cleanup(func() { c.Shutdown(context.Background()) })
	return c
}

func get(c *Container, path string) (*httpdomain.Response, error) {
	return c.Chain.Do(context.Background(), httpdomain.NewRequest(http.MethodGet, path, nil))
}

func TestContainer_LoginAndAuthenticatedRequest(t *testing.T) {
	server := authserver.New(t).Build()
	c := newTestContainer(t, server)

	require.NoError(t, c.Session.Login(context.Background(), "admin", "secret"))

	resp, err := get(c, "/api/profile")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	reqs := server.Requests()
	last := reqs[len(reqs)-1]
	assert.Equal(t, "Bearer at-1", last.Headers.Get("Authorization"))
	assert.NotEmpty(t, last.Headers.Get("X-Request-ID"))
	assert.Equal(t, "test", last.Headers.Get("X-Client-Version"))
	assert.NotEmpty(t, last.Headers.Get("X-Client-Platform"))
}

func TestContainer_ConcurrentExpiryRefreshesOnce(t *testing.T) {
	const n = 6

	gate := make(chan struct{})
	server := authserver.New(t).WithRefreshGate(gate).Build()
	c := newTestContainer(t, server)

	require.NoError(t, c.Session.Login(context.Background(), "admin", "secret"))
	server.ExpireAccessToken()

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = get(c, fmt.Sprintf("/api/items/%d", i))
		}(i)
	}

	<-server.RefreshStarted()
	require.Eventually(t, func() bool { return c.Coordinator.QueueLength() == n-1 }, 2*time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "request %d", i)
	}
	assert.Equal(t, 1, server.RefreshCalls())
	assert.Equal(t, "at-2", c.Tokens.AccessToken())
	assert.Equal(t, "rt-2", c.Tokens.RefreshToken())
	assert.Equal(t, auth.Idle, c.Coordinator.State())
}

func TestContainer_RefreshFailureTerminatesSession(t *testing.T) {
	server := authserver.New(t).WithFailingRefresh().Build()
	c := newTestContainer(t, server)
	c.Location.Set("/api/reports")

	failures, cancel := c.Bus.Subscribe(events.AuthFailure)
	defer cancel()

	require.NoError(t, c.Session.Login(context.Background(), "admin", "secret"))
	server.ExpireAccessToken()

	_, err := get(c, "/api/reports")

	assert.ErrorIs(t, err, apierror.ErrSessionExpired)
	assert.Empty(t, c.Tokens.AccessToken())
	assert.NotContains(t, c.Transport.DefaultHeaders(), "Authorization")

	select {
	case ev := <-failures:
		assert.Equal(t, "/login?redirect=%2Fapi%2Freports", ev.Redirect)
	case <-time.After(time.Second):
		t.Fatal("expected auth:failure event")
	}
}

func TestContainer_UnrecoverableUnauthorizedIsFinal(t *testing.T) {
	server := authserver.New(t).WithAlwaysUnauthorized().Build()
	c := newTestContainer(t, server)

	require.NoError(t, c.Session.Login(context.Background(), "admin", "secret"))

	_, err := get(c, "/api/data")

	assert.ErrorIs(t, err, apierror.ErrUnauthorized)
	assert.Equal(t, 1, server.RefreshCalls())
}

func TestContainer_ErrorCategories(t *testing.T) {
	server := authserver.New(t).Build()
	c := newTestContainer(t, server)
	require.NoError(t, c.Session.Login(context.Background(), "admin", "secret"))

	_, err := get(c, "/api/missing")
	assert.ErrorIs(t, err, apierror.ErrNotFound)

	_, err = get(c, "/api/limited")
	assert.ErrorIs(t, err, apierror.ErrRateLimited)
	assert.Equal(t, "Too many requests. Please try again later.", err.(*apierror.ErrorRecord).Message)
}

func TestContainer_LogoutClearsSession(t *testing.T) {
	server := authserver.New(t).Build()
	c := newTestContainer(t, server)
	require.NoError(t, c.Session.Login(context.Background(), "admin", "secret"))

	c.Session.Logout(context.Background())

	assert.Equal(t, 1, server.LogoutCalls())
	assert.False(t, c.Session.Status().LoggedIn)

	_, err := get(c, "/api/data")
	assert.ErrorIs(t, err, apierror.ErrAuthenticationRequired)
	assert.Zero(t, server.RefreshCalls())
}

func TestContainer_RestoresStoredSession(t *testing.T) {
	server := authserver.New(t).Build()
	pair := server.Issue()

	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), auth.KeyAccessToken, pair.AccessToken))
	require.NoError(t, store.Set(context.Background(), auth.KeyRefreshToken, pair.RefreshToken))

	c, err := NewContainer(testConfig(server.URL), WithStore(store), WithLogOutput(&bytes.Buffer{}))
	require.NoError(t, err)

	assert.Equal(t, "Bearer "+pair.AccessToken, c.Transport.DefaultHeaders()["Authorization"])
	resp, err := get(c, "/api/data")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestContainer_RedisStorage(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig("http://localhost:8080")
	cfg.Storage = config.StorageRedis
	cfg.RedisAddr = mr.Addr()

	c, err := NewContainer(cfg, WithLogOutput(&bytes.Buffer{}))
	require.NoError(t, err)
	defer c.Shutdown(context.Background())

	c.Tokens.SetTokens(authdomain.TokenPair{AccessToken: "at-r", RefreshToken: "rt-r"})

	got, err := mr.Get("kmauth:" + auth.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "at-r", got)
}

func TestApplyBaseURLOverride(t *testing.T) {
	tests := []struct {
		name          string
		baseURL       string
		expectError   bool
		expectedError string
	}{
		{
			name:    "valid URL override",
			baseURL: "http://localhost:5149",
		},
		{
			name:          "empty URL should fail",
			baseURL:       "",
			expectError:   true,
			expectedError: "base URL cannot be empty",
		},
		{
			name:        "relative URL should fail",
			baseURL:     "staging.example.com",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewContainer(testConfig("http://localhost:8080"), WithLogOutput(&bytes.Buffer{}))
			require.NoError(t, err)

			err = c.ApplyBaseURLOverride(tt.baseURL)

			if tt.expectError {
				require.Error(t, err)
				if tt.expectedError != "" {
					assert.Equal(t, tt.expectedError, err.Error())
				}
				assert.Equal(t, "http://localhost:8080", c.Transport.BaseURL())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.baseURL, c.Transport.BaseURL())
			assert.Equal(t, tt.baseURL, c.Config.BaseURL)
		})
	}
}

func TestNewContainer_RequiresConfig(t *testing.T) {
	_, err := NewContainer(nil)
	assert.Error(t, err)
}
