package auth

import (
	"net/url"
	"strings"
	"sync"

	"kilometers.ai/authclient/internal/application/ports"
	"kilometers.ai/authclient/internal/core/events"
	httpports "kilometers.ai/authclient/internal/core/ports/http"
)

// SessionTerminator ends the local session on unrecoverable auth failure.
// Terminate fires once per session; Arm re-enables it after a new login or
// a successful refresh.
type SessionTerminator struct {
	tokens       *TokenStore
	headers      httpports.HeaderDefaults
	bus          *events.Bus
	location     httpports.LocationProvider
	loginSurface string
	logger       ports.Logger

	mu         sync.Mutex
	terminated bool
}

func NewSessionTerminator(
	tokens *TokenStore,
	headers httpports.HeaderDefaults,
	bus *events.Bus,
	location httpports.LocationProvider,
	loginSurface string,
	logger ports.Logger,
) *SessionTerminator {
	if logger == nil {
		logger = ports.NopLogger{}
	}
	if loginSurface == "" {
		loginSurface = "/login"
	}
	return &SessionTerminator{
		tokens:       tokens,
		headers:      headers,
		bus:          bus,
		location:     location,
		loginSurface: loginSurface,
		logger:       logger,
	}
}

// Terminate clears the credentials and the transport's default auth header,
// then broadcasts auth:failure. Calls after the first are no-ops until Arm.
func (t *SessionTerminator) Terminate(reason string) {
	t.mu.Lock()
	if t.terminated {
		t.mu.Unlock()
		return
	}
	t.terminated = true
	t.mu.Unlock()

	t.tokens.Clear()
	if t.headers != nil {
		t.headers.DeleteDefaultHeader("Authorization")
	}

	redirect := t.RedirectTarget()
	t.logger.Log(ports.LogLevelWarn, "session terminated", map[string]interface{}{
		"reason":   reason,
		"redirect": redirect,
	})

	if t.bus != nil {
		t.bus.Publish(events.Event{
			Topic:    events.AuthFailure,
			Reason:   reason,
			Redirect: redirect,
		})
	}
}

// Arm allows the next Terminate call to take effect
func (t *SessionTerminator) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.terminated = false
}

// Terminated reports whether the session has been terminated since the last Arm
func (t *SessionTerminator) Terminated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminated
}

// RedirectTarget returns the login surface with the current location as the
// return target, or "" when already on the login surface
func (t *SessionTerminator) RedirectTarget() string {
	current := ""
	if t.location != nil {
		current = t.location.CurrentLocation()
	}
	if t.onLoginSurface(current) {
		return ""
	}
	if current == "" {
		return t.loginSurface
	}
	return t.loginSurface + "?redirect=" + url.QueryEscape(current)
}

func (t *SessionTerminator) onLoginSurface(current string) bool {
	if current == "" {
		return false
	}
	path := current
	if u, err := url.Parse(current); err == nil {
		path = u.Path
	}
	return path == t.loginSurface || strings.HasPrefix(path, strings.TrimSuffix(t.loginSurface, "/")+"/")
}
