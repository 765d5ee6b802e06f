// Package authserver provides an in-process fake of the authentication backend
// and a protected API for exercising the client end to end.
package authserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	authdomain "kilometers.ai/authclient/internal/core/domain/auth"
)

// Paths served by the fake backend
const (
	LoginPath   = "/api/auth/login"
	RefreshPath = "/api/auth/refresh"
	LogoutPath  = "/api/auth/logout"
)

// RequestInfo captures information about each request for test assertions
type RequestInfo struct {
	Method    string
	Path      string
	Headers   http.Header
	Timestamp time.Time
}

// Config contains all configuration options for the fake server
type Config struct {
	Username  string
	Password  string
	ExpiresIn int

	// RefreshDelay holds every refresh call open this long
	RefreshDelay time.Duration
	// RefreshGate, when set, holds every refresh call until it is closed
	RefreshGate chan struct{}
	// FailRefresh makes the refresh endpoint answer 401
	FailRefresh bool
	// AlwaysUnauthorized makes protected endpoints reject every token
	AlwaysUnauthorized bool
}

// Server is the running fake backend
type Server struct {
	*httptest.Server
	Config Config

	mu            sync.Mutex
	accessToken   string
	refreshToken  string
	generation    int
	requestLog    []RequestInfo
	refreshCalls  atomic.Int32
	logoutCalls   atomic.Int32
	refreshSignal chan struct{}
}

// Builder provides a fluent interface for configuring the fake server
type Builder struct {
	t      *testing.T
	config Config
}

// New creates a new fake server builder
func New(t *testing.T) *Builder {
	return &Builder{
		t: t,
		config: Config{
			Username:  "admin",
			Password:  "secret",
			ExpiresIn: 3600,
		},
	}
}

// WithUser sets the accepted login credentials
func (b *Builder) WithUser(username, password string) *Builder {
	b.config.Username = username
	b.config.Password = password
	return b
}

// WithRefreshDelay adds artificial delay to refresh responses
func (b *Builder) WithRefreshDelay(delay time.Duration) *Builder {
	b.config.RefreshDelay = delay
	return b
}

// WithRefreshGate holds refresh responses until gate is closed
func (b *Builder) WithRefreshGate(gate chan struct{}) *Builder {
	b.config.RefreshGate = gate
	return b
}

// WithFailingRefresh makes every refresh call fail with 401
func (b *Builder) WithFailingRefresh() *Builder {
	b.config.FailRefresh = true
	return b
}

// WithAlwaysUnauthorized rejects every token on protected endpoints
func (b *Builder) WithAlwaysUnauthorized() *Builder {
	b.config.AlwaysUnauthorized = true
	return b
}

// Build starts the server; it is closed when the test ends
func (b *Builder) Build() *Server {
	s := &Server{
		Config:        b.config,
		refreshSignal: make(chan struct{}, 64),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	if b.t != nil {
		b.t.Cleanup(s.Close)
	}
	return s
}

// Issue mints a new token pair and makes it the only valid one
func (s *Server) Issue() authdomain.TokenPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked()
}

func (s *Server) issueLocked() authdomain.TokenPair {
	s.generation++
	s.accessToken = fmt.Sprintf("at-%d", s.generation)
	s.refreshToken = fmt.Sprintf("rt-%d", s.generation)
	return authdomain.TokenPair{
		AccessToken:  s.accessToken,
		RefreshToken: s.refreshToken,
		ExpiresIn:    s.Config.ExpiresIn,
	}
}

// ExpireAccessToken invalidates the current access token but keeps the refresh token
func (s *Server) ExpireAccessToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = "expired-" + s.accessToken
}

// RefreshCalls returns how many times the refresh endpoint was hit
func (s *Server) RefreshCalls() int {
	return int(s.refreshCalls.Load())
}

// LogoutCalls returns how many times the logout endpoint was hit
func (s *Server) LogoutCalls() int {
	return int(s.logoutCalls.Load())
}

// RefreshStarted receives one value each time a refresh call arrives
func (s *Server) RefreshStarted() <-chan struct{} {
	return s.refreshSignal
}

// Requests returns a copy of the request log
func (s *Server) Requests() []RequestInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RequestInfo(nil), s.requestLog...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requestLog = append(s.requestLog, RequestInfo{
		Method:    r.Method,
		Path:      r.URL.Path,
		Headers:   r.Header.Clone(),
		Timestamp: time.Now(),
	})
	s.mu.Unlock()

	switch r.URL.Path {
	case LoginPath:
		s.handleLogin(w, r)
	case RefreshPath:
		s.handleRefresh(w, r)
	case LogoutPath:
		s.logoutCalls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	default:
		s.handleProtected(w, r)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body authdomain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}
	if body.Username != s.Config.Username || body.Password != s.Config.Password {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS")
		return
	}
	writeJSON(w, http.StatusOK, s.Issue())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	select {
	case s.refreshSignal <- struct{}{}:
	default:
	}

	if s.Config.RefreshDelay > 0 {
		time.Sleep(s.Config.RefreshDelay)
	}
	if s.Config.RefreshGate != nil {
		<-s.Config.RefreshGate
	}

	var body authdomain.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}

	s.mu.Lock()
	valid := !s.Config.FailRefresh && body.RefreshToken != "" && body.RefreshToken == s.refreshToken
	var pair authdomain.TokenPair
	if valid {
		pair = s.issueLocked()
	}
	s.mu.Unlock()

	if !valid {
		writeError(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleProtected(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	valid := !s.Config.AlwaysUnauthorized && token != "" && token == s.accessToken
	s.mu.Unlock()

	if !valid {
		writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED")
		return
	}

	switch r.URL.Path {
	case "/api/missing":
		writeError(w, http.StatusNotFound, "NOT_FOUND")
	case "/api/limited":
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED")
	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"path":     r.URL.Path,
			"trace_id": r.Header.Get("X-Request-ID"),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"code": code, "message": http.StatusText(status)})
}
