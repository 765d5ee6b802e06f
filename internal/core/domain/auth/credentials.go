package auth

import (
	"time"
)

// Credentials is the token state held by the token store
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time // nil when the backend never reported an expiry
}

// IsEmpty reports whether no access token is held
func (c Credentials) IsEmpty() bool {
	return c.AccessToken == ""
}

// IsExpired checks if the credentials carry an expiry that has passed.
// Unknown expiry is reported as not expired.
func (c Credentials) IsExpired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return now.After(*c.ExpiresAt)
}

// TimeUntilExpiry returns the duration until the access token expires, or zero when unknown
func (c Credentials) TimeUntilExpiry(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}

// TokenPair represents the response of a login or refresh call
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn,omitempty"` // Seconds until expiration, 0 if unknown
}

// ExpiresAt converts the relative expiry into an absolute timestamp
func (p TokenPair) ExpiresAt(now time.Time) *time.Time {
	if p.ExpiresIn <= 0 {
		return nil
	}
	at := now.Add(time.Duration(p.ExpiresIn) * time.Second)
	return &at
}

// ToCredentials converts the pair into stored credentials
func (p TokenPair) ToCredentials(now time.Time) Credentials {
	return Credentials{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    p.ExpiresAt(now),
	}
}

// LoginRequest is the body sent to the login endpoint
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest is the body sent to the refresh endpoint
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}
