package httpinfra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	authdomain "kilometers.ai/authclient/internal/core/domain/auth"
	httpdomain "kilometers.ai/authclient/internal/core/domain/http"
	authports "kilometers.ai/authclient/internal/core/ports/auth"
	httpports "kilometers.ai/authclient/internal/core/ports/http"
)

// ErrEmptyAccessToken is returned when the backend answers without a token
var ErrEmptyAccessToken = errors.New("auth backend returned no access token")

// AuthEndpoints are the backend paths of the authentication service
type AuthEndpoints struct {
	LoginPath   string
	RefreshPath string
	LogoutPath  string
}

// HTTPAuthBackend implements AuthBackend against a JSON API. Calls go through
// the interceptor chain but are marked so a 401 never triggers a refresh.
type HTTPAuthBackend struct {
	doer      httpports.Doer
	endpoints AuthEndpoints
}

func NewHTTPAuthBackend(doer httpports.Doer, endpoints AuthEndpoints) *HTTPAuthBackend {
	return &HTTPAuthBackend{doer: doer, endpoints: endpoints}
}

// Login obtains a new token pair for the user
func (b *HTTPAuthBackend) Login(ctx context.Context, username, password string) (authdomain.TokenPair, error) {
	return b.exchange(ctx, b.endpoints.LoginPath, authdomain.LoginRequest{Username: username, Password: password})
}

// Refresh exchanges the refresh token for a new pair
func (b *HTTPAuthBackend) Refresh(ctx context.Context, refreshToken string) (authdomain.TokenPair, error) {
	return b.exchange(ctx, b.endpoints.RefreshPath, authdomain.RefreshRequest{RefreshToken: refreshToken})
}

// Logout tells the backend to end the session
func (b *HTTPAuthBackend) Logout(ctx context.Context) error {
	req := httpdomain.NewRequest(http.MethodPost, b.endpoints.LogoutPath, nil)
	req.SkipAuthRefresh = true

	if _, err := b.doer.Do(ctx, req); err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	return nil
}

func (b *HTTPAuthBackend) exchange(ctx context.Context, path string, payload interface{}) (authdomain.TokenPair, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return authdomain.TokenPair{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req := httpdomain.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", "application/json")
	req.SkipAuthRefresh = true

	resp, err := b.doer.Do(ctx, req)
	if err != nil {
		return authdomain.TokenPair{}, err
	}
	return decodeTokenPair(resp.Body)
}

// decodeTokenPair accepts both a bare pair and a {"data": pair} envelope
func decodeTokenPair(body []byte) (authdomain.TokenPair, error) {
	var pair authdomain.TokenPair
	if err := json.Unmarshal(body, &pair); err != nil {
		return authdomain.TokenPair{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if pair.AccessToken != "" {
		return pair, nil
	}

	var envelope struct {
		Data authdomain.TokenPair `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Data.AccessToken != "" {
		return envelope.Data, nil
	}
	return authdomain.TokenPair{}, ErrEmptyAccessToken
}

var _ authports.AuthBackend = (*HTTPAuthBackend)(nil)
