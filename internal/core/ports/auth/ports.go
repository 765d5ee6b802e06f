package authports

import (
	"context"

	authdomain "kilometers.ai/authclient/internal/core/domain/auth"
)

// AuthBackend is the remote authentication service
type AuthBackend interface {
	// Login exchanges user credentials for a token pair
	Login(ctx context.Context, username, password string) (authdomain.TokenPair, error)

	// Refresh exchanges a refresh token for a new token pair
	Refresh(ctx context.Context, refreshToken string) (authdomain.TokenPair, error)

	// Logout invalidates the current session on the server
	Logout(ctx context.Context) error
}
