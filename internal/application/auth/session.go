package auth

import (
	"context"
	"fmt"
	"time"

	"kilometers.ai/authclient/internal/application/ports"
	authports "kilometers.ai/authclient/internal/core/ports/auth"
	httpports "kilometers.ai/authclient/internal/core/ports/http"
)

// SessionStatus summarizes the locally held session
type SessionStatus struct {
	LoggedIn        bool
	Expired         bool
	HasRefreshToken bool
	ExpiresAt       *time.Time
}

// Session drives login and logout on top of the token store
type Session struct {
	backend    authports.AuthBackend
	tokens     *TokenStore
	terminator *SessionTerminator
	headers    httpports.HeaderDefaults
	logger     ports.Logger
}

func NewSession(
	backend authports.AuthBackend,
	tokens *TokenStore,
	terminator *SessionTerminator,
	headers httpports.HeaderDefaults,
	logger ports.Logger,
) *Session {
	if logger == nil {
		logger = ports.NopLogger{}
	}
	return &Session{
		backend:    backend,
		tokens:     tokens,
		terminator: terminator,
		headers:    headers,
		logger:     logger,
	}
}

// Login exchanges user credentials for tokens and stores them
func (s *Session) Login(ctx context.Context, username, password string) error {
	pair, err := s.backend.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	s.tokens.SetTokens(pair)
	if s.headers != nil {
		s.headers.SetDefaultHeader("Authorization", "Bearer "+pair.AccessToken)
	}
	s.terminator.Arm()

	s.logger.Log(ports.LogLevelInfo, "logged in", map[string]interface{}{"user": username})
	return nil
}

// Logout notifies the backend and terminates the local session. A backend
// failure is logged; the local session is cleared regardless.
func (s *Session) Logout(ctx context.Context) {
	if s.tokens.AccessToken() != "" {
		if err := s.backend.Logout(ctx); err != nil {
			s.logger.LogError(err, "backend logout failed", nil)
		}
	}
	s.terminator.Terminate("logout")
}

// Status reports the stored session state
func (s *Session) Status() SessionStatus {
	creds := s.tokens.Credentials()
	return SessionStatus{
		LoggedIn:        !creds.IsEmpty(),
		Expired:         !creds.IsEmpty() && s.tokens.IsExpired(),
		HasRefreshToken: creds.RefreshToken != "",
		ExpiresAt:       creds.ExpiresAt,
	}
}
