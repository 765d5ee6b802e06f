package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenPair_ToCredentials(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	creds := TokenPair{AccessToken: "at-456", RefreshToken: "rt-789", ExpiresIn: 3600}.ToCredentials(now)

	assert.Equal(t, "at-456", creds.AccessToken)
	assert.Equal(t, "rt-789", creds.RefreshToken)
	require.NotNil(t, creds.ExpiresAt)
	assert.Equal(t, now.Add(time.Hour), *creds.ExpiresAt)
}

func TestTokenPair_NoExpiry(t *testing.T) {
	creds := TokenPair{AccessToken: "a", RefreshToken: "r"}.ToCredentials(time.Now())
	assert.Nil(t, creds.ExpiresAt)
}

func TestCredentials_IsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name      string
		expiresAt *time.Time
		expected  bool
	}{
		{name: "unknown expiry", expiresAt: nil, expected: false},
		{name: "expired", expiresAt: &past, expected: true},
		{name: "still valid", expiresAt: &future, expected: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			creds := Credentials{AccessToken: "token", ExpiresAt: tc.expiresAt}
			assert.Equal(t, tc.expected, creds.IsExpired(now))
		})
	}
}

func TestCredentials_TimeUntilExpiry(t *testing.T) {
	now := time.Now()
	at := now.Add(90 * time.Second)

	assert.Equal(t, 90*time.Second, Credentials{ExpiresAt: &at}.TimeUntilExpiry(now))
	assert.Zero(t, Credentials{}.TimeUntilExpiry(now))
	assert.True(t, Credentials{}.IsEmpty())
}
