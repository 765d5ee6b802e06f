package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"kilometers.ai/authclient/internal/application/ports"
	"kilometers.ai/authclient/internal/core/apierror"
	authdomain "kilometers.ai/authclient/internal/core/domain/auth"
	httpdomain "kilometers.ai/authclient/internal/core/domain/http"
	"kilometers.ai/authclient/internal/core/events"
	httpports "kilometers.ai/authclient/internal/core/ports/http"
	"kilometers.ai/authclient/internal/infrastructure/storage"
)

// MockAuthBackend is a testify mock of the remote auth service
type MockAuthBackend struct {
	mock.Mock
}

func (m *MockAuthBackend) Login(ctx context.Context, username, password string) (authdomain.TokenPair, error) {
	args := m.Called(ctx, username, password)
	return args.Get(0).(authdomain.TokenPair), args.Error(1)
}

func (m *MockAuthBackend) Refresh(ctx context.Context, refreshToken string) (authdomain.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	return args.Get(0).(authdomain.TokenPair), args.Error(1)
}

func (m *MockAuthBackend) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// fakeHeaders records the transport default headers
type fakeHeaders struct {
	mu      sync.Mutex
	headers map[string]string
}

func newFakeHeaders() *fakeHeaders {
	return &fakeHeaders{headers: make(map[string]string)}
}

func (h *fakeHeaders) SetDefaultHeader(name, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.headers[name] = value
}

func (h *fakeHeaders) DeleteDefaultHeader(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.headers, name)
}

func (h *fakeHeaders) DefaultHeaders() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]string, len(h.headers))
	for k, v := range h.headers {
		out[k] = v
	}
	return out
}

// fakeDoer accepts requests carrying the valid token and answers 401 otherwise.
// When recoverer is set, a 401 is handed to it the way the chain's recovery hook does.
type fakeDoer struct {
	mu        sync.Mutex
	valid     string
	calls     []string
	recoverer *Coordinator
}

func (d *fakeDoer) setValid(token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.valid = token
}

func (d *fakeDoer) Do(ctx context.Context, req *httpdomain.Request) (*httpdomain.Response, error) {
	token := bearerToken(req)

	d.mu.Lock()
	d.calls = append(d.calls, token)
	ok := d.valid != "" && token == d.valid
	d.mu.Unlock()

	if ok {
		return &httpdomain.Response{StatusCode: http.StatusOK, Request: req}, nil
	}
	err := apierror.New(apierror.Unauthorized, http.StatusUnauthorized, nil)
	if d.recoverer != nil {
		return d.recoverer.Recover(ctx, d, req, err)
	}
	return &httpdomain.Response{StatusCode: http.StatusUnauthorized, Request: req}, err
}

func (d *fakeDoer) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// fixture wires a coordinator over in-memory collaborators
type fixture struct {
	now        time.Time
	tokens     *TokenStore
	backend    *MockAuthBackend
	headers    *fakeHeaders
	bus        *events.Bus
	terminator *SessionTerminator
	coord      *Coordinator
	doer       *fakeDoer
}

func newFixture() *fixture {
	f := &fixture{
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		backend: new(MockAuthBackend),
		headers: newFakeHeaders(),
		bus:     events.NewBus(64),
	}
	f.tokens = NewTokenStore(storage.NewMemoryStore(), nil, WithClock(func() time.Time { return f.now }))
	f.terminator = NewSessionTerminator(f.tokens, f.headers, f.bus, httpports.StaticLocation("/dashboard"), "/login", nil)
	f.coord = NewCoordinator(CoordinatorConfig{
		Tokens:         f.tokens,
		Backend:        f.backend,
		Terminator:     f.terminator,
		Headers:        f.headers,
		Bus:            f.bus,
		RefreshTimeout: 5 * time.Second,
	})
	f.doer = &fakeDoer{}
	return f
}

// useLogger rebuilds the coordinator with logger
func (f *fixture) useLogger(logger ports.Logger) {
	f.coord = NewCoordinator(CoordinatorConfig{
		Tokens:         f.tokens,
		Backend:        f.backend,
		Terminator:     f.terminator,
		Headers:        f.headers,
		Bus:            f.bus,
		Logger:         logger,
		RefreshTimeout: 5 * time.Second,
	})
}

// blockingLogger parks the first LogError carrying message until release is closed
type blockingLogger struct {
	ports.NopLogger

	message string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingLogger(message string) *blockingLogger {
	return &blockingLogger{
		message: message,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (l *blockingLogger) LogError(err error, message string, fields map[string]interface{}) {
	if message != l.message {
		return
	}
	l.once.Do(func() {
		close(l.entered)
		<-l.release
	})
}

func (f *fixture) login(access, refresh string) {
	f.tokens.SetTokens(authdomain.TokenPair{AccessToken: access, RefreshToken: refresh})
	f.headers.SetDefaultHeader("Authorization", "Bearer "+access)
}

func requestWithToken(traceID, token string) *httpdomain.Request {
	req := httpdomain.NewRequest(http.MethodGet, "/api/data", nil)
	req.TraceID = traceID
	if token != "" {
		req.AttachStoreToken(token)
	}
	return req
}

func bearerToken(req *httpdomain.Request) string {
	return strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
}

func unauthorized() error {
	return apierror.New(apierror.Unauthorized, http.StatusUnauthorized, nil)
}
