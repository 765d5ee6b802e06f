package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"kilometers.ai/authclient/internal/application/ports"
	authdomain "kilometers.ai/authclient/internal/core/domain/auth"
	storageports "kilometers.ai/authclient/internal/core/ports/storage"
)

// Storage keys used for the credentials
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyExpiresAt    = "token_expires_at"
)

const storageTimeout = 5 * time.Second

// UnknownExpiryPolicy decides IsExpired when neither a recorded expiry nor a
// JWT exp claim is available
type UnknownExpiryPolicy int

const (
	// UnknownExpiryValid treats a token without known expiry as not expired
	UnknownExpiryValid UnknownExpiryPolicy = iota
	// UnknownExpiryStale treats a token without known expiry as expired
	UnknownExpiryStale
)

// TokenStore holds the current credentials in a KeyValueStore. Its methods
// never fail: storage errors are logged and reads degrade to "absent".
type TokenStore struct {
	store         storageports.KeyValueStore
	logger        ports.Logger
	now           func() time.Time
	unknownExpiry UnknownExpiryPolicy
}

// TokenStoreOption configures a TokenStore
type TokenStoreOption func(*TokenStore)

// WithClock overrides the time source
func WithClock(now func() time.Time) TokenStoreOption {
	return func(s *TokenStore) { s.now = now }
}

// WithUnknownExpiryPolicy sets how a token without known expiry is judged
func WithUnknownExpiryPolicy(policy UnknownExpiryPolicy) TokenStoreOption {
	return func(s *TokenStore) { s.unknownExpiry = policy }
}

func NewTokenStore(store storageports.KeyValueStore, logger ports.Logger, opts ...TokenStoreOption) *TokenStore {
	if logger == nil {
		logger = ports.NopLogger{}
	}
	s := &TokenStore{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AccessToken returns the stored access token, or "" when none is held
func (s *TokenStore) AccessToken() string {
	return s.get(KeyAccessToken)
}

// RefreshToken returns the stored refresh token, or "" when none is held
func (s *TokenStore) RefreshToken() string {
	return s.get(KeyRefreshToken)
}

// SetTokens persists a new token pair. A positive ExpiresIn is stored as an
// absolute expiry; otherwise any previous expiry is dropped.
func (s *TokenStore) SetTokens(pair authdomain.TokenPair) {
	s.set(KeyAccessToken, pair.AccessToken)
	if pair.RefreshToken != "" {
		s.set(KeyRefreshToken, pair.RefreshToken)
	} else {
		s.remove(KeyRefreshToken)
	}

	if at := pair.ExpiresAt(s.now()); at != nil {
		s.set(KeyExpiresAt, strconv.FormatInt(at.UnixMilli(), 10))
	} else {
		s.remove(KeyExpiresAt)
	}
}

// Clear removes all stored credentials
func (s *TokenStore) Clear() {
	s.remove(KeyAccessToken)
	s.remove(KeyRefreshToken)
	s.remove(KeyExpiresAt)
}

// Credentials returns a snapshot of the stored state
func (s *TokenStore) Credentials() authdomain.Credentials {
	return authdomain.Credentials{
		AccessToken:  s.AccessToken(),
		RefreshToken: s.RefreshToken(),
		ExpiresAt:    s.expiresAt(),
	}
}

// IsExpired reports whether the access token's expiry has passed. Without a
// recorded expiry the token's JWT exp claim is consulted, then the policy.
func (s *TokenStore) IsExpired() bool {
	now := s.now()
	if at := s.expiresAt(); at != nil {
		return now.After(*at)
	}
	if exp, ok := jwtExpiry(s.AccessToken()); ok {
		return now.After(exp)
	}
	return s.unknownExpiry == UnknownExpiryStale
}

func (s *TokenStore) expiresAt() *time.Time {
	raw := s.get(KeyExpiresAt)
	if raw == "" {
		return nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.logger.LogError(err, "ignoring malformed token expiry", map[string]interface{}{"value": raw})
		return nil
	}
	at := time.UnixMilli(ms)
	return &at
}

// jwtExpiry reads the exp claim without verifying the signature; the server
// remains the authority on validity.
func jwtExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func (s *TokenStore) get(key string) string {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	v, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.LogError(err, "failed to read credentials", map[string]interface{}{"key": key})
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

func (s *TokenStore) set(key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	if err := s.store.Set(ctx, key, value); err != nil {
		s.logger.LogError(err, "failed to persist credentials", map[string]interface{}{"key": key})
	}
}

func (s *TokenStore) remove(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	if err := s.store.Remove(ctx, key); err != nil {
		s.logger.LogError(err, "failed to remove credentials", map[string]interface{}{"key": key})
	}
}
