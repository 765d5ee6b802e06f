package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"kilometers.ai/authclient/internal/application/ports"
	"kilometers.ai/authclient/internal/core/apierror"
	httpdomain "kilometers.ai/authclient/internal/core/domain/http"
	"kilometers.ai/authclient/internal/core/events"
	authports "kilometers.ai/authclient/internal/core/ports/auth"
	httpports "kilometers.ai/authclient/internal/core/ports/http"
)

// DefaultRefreshTimeout bounds a single refresh call
const DefaultRefreshTimeout = 30 * time.Second

// RefreshState is the coordinator's state
type RefreshState int

const (
	Idle RefreshState = iota
	Refreshing
)

func (s RefreshState) String() string {
	if s == Refreshing {
		return "REFRESHING"
	}
	return "IDLE"
}

type outcome struct {
	resp *httpdomain.Response
	err  error
}

// pendingRequest is a request that hit 401 while a refresh was in flight
type pendingRequest struct {
	ctx  context.Context
	doer httpports.Doer
	req  *httpdomain.Request
	done chan outcome
}

// Coordinator recovers from 401 responses. At most one refresh call is in
// flight; requests failing during it are queued and replayed in arrival
// order once it resolves.
type Coordinator struct {
	tokens         *TokenStore
	backend        authports.AuthBackend
	terminator     *SessionTerminator
	headers        httpports.HeaderDefaults
	bus            *events.Bus
	logger         ports.Logger
	refreshTimeout time.Duration

	mu         sync.Mutex
	refreshing bool
	queue      []*pendingRequest
}

// CoordinatorConfig carries the coordinator's collaborators
type CoordinatorConfig struct {
	Tokens         *TokenStore
	Backend        authports.AuthBackend
	Terminator     *SessionTerminator
	Headers        httpports.HeaderDefaults
	Bus            *events.Bus
	Logger         ports.Logger
	RefreshTimeout time.Duration
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = ports.NopLogger{}
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	return &Coordinator{
		tokens:         cfg.Tokens,
		backend:        cfg.Backend,
		terminator:     cfg.Terminator,
		headers:        cfg.Headers,
		bus:            cfg.Bus,
		logger:         cfg.Logger,
		refreshTimeout: cfg.RefreshTimeout,
	}
}

// State returns the current refresh state
func (c *Coordinator) State() RefreshState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refreshing {
		return Refreshing
	}
	return Idle
}

// QueueLength returns the number of requests waiting for the refresh
func (c *Coordinator) QueueLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Recover handles a request that failed with cause. Only Unauthorized
// failures of requests that are neither the refresh call nor already
// retried are recovered; everything else is returned unchanged.
//
// A request whose store-issued bearer has since been replaced is replayed
// once with the current token and no refresh. A request that carried its
// own Authorization header always goes through the refresh path, and its
// replay uses the refreshed token.
func (c *Coordinator) Recover(ctx context.Context, doer httpports.Doer, req *httpdomain.Request, cause error) (*httpdomain.Response, error) {
	if !errors.Is(cause, apierror.ErrUnauthorized) {
		return nil, cause
	}
	if req.SkipAuthRefresh || req.Retried {
		return nil, cause
	}

	c.mu.Lock()
	if c.refreshing {
		p := &pendingRequest{ctx: ctx, doer: doer, req: req, done: make(chan outcome, 1)}
		c.queue = append(c.queue, p)
		c.mu.Unlock()
		return c.wait(p)
	}

	// The request carried a token that an earlier refresh already replaced
	if current := c.tokens.AccessToken(); current != "" && req.StoreToken != "" && req.StoreToken != current {
		c.mu.Unlock()
		req.Retried = true
		req.AttachStoreToken(current)
		return doer.Do(ctx, req)
	}

	refreshToken := c.tokens.RefreshToken()
	if refreshToken == "" {
		c.mu.Unlock()
		c.terminator.Terminate("no refresh token available")
		return nil, apierror.New(apierror.AuthenticationRequired, 0, cause)
	}

	// Check and set happen under the same lock with no network call in between
	c.refreshing = true
	c.mu.Unlock()

	req.Retried = true
	return c.refresh(ctx, doer, req, refreshToken)
}

func (c *Coordinator) wait(p *pendingRequest) (*httpdomain.Response, error) {
	select {
	case o := <-p.done:
		return o.resp, o.err
	case <-p.ctx.Done():
		// The replay still runs; its buffered result is dropped
		return nil, apierror.New(apierror.Network, 0, p.ctx.Err())
	}
}

func (c *Coordinator) refresh(ctx context.Context, doer httpports.Doer, req *httpdomain.Request, refreshToken string) (*httpdomain.Response, error) {
	c.publish(events.Event{Topic: events.RefreshStarted, TraceID: req.TraceID})
	c.logger.Log(ports.LogLevelDebug, "refreshing access token", map[string]interface{}{"trace_id": req.TraceID})

	// One caller's cancellation must not fail the whole burst
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
	pair, err := c.backend.Refresh(refreshCtx, refreshToken)
	cancel()

	if err == nil {
		c.tokens.SetTokens(pair)
		if c.headers != nil {
			c.headers.SetDefaultHeader("Authorization", "Bearer "+pair.AccessToken)
		}
		c.terminator.Arm()
	} else {
		// Cleared while still REFRESHING: a late 401 of this burst then finds
		// no refresh token instead of retrying the rejected one
		c.tokens.Clear()
	}

	c.mu.Lock()
	c.refreshing = false
	queue := c.queue
	c.queue = nil
	c.mu.Unlock()

	if err != nil {
		return nil, c.fail(queue, err)
	}

	c.logger.Log(ports.LogLevelInfo, "access token refreshed", map[string]interface{}{"queued": len(queue)})
	c.publish(events.Event{Topic: events.RefreshSucceeded, Queued: len(queue)})

	for _, p := range queue {
		c.replay(p, pair.AccessToken)
	}

	req.AttachStoreToken(pair.AccessToken)
	return doer.Do(ctx, req)
}

// replay dispatches a queued request with the new token; the waiter receives
// its result. It returns once the request has reached the transport (or
// finished), so queued requests are sent in arrival order while their
// responses may still complete in any order.
func (c *Coordinator) replay(p *pendingRequest, accessToken string) {
	p.req.Retried = true
	p.req.AttachStoreToken(accessToken)
	c.publish(events.Event{Topic: events.ReplayDispatched, TraceID: p.req.TraceID})

	dispatched := make(chan struct{})
	var once sync.Once
	signal := func() { once.Do(func() { close(dispatched) }) }

	ctx := httpdomain.WithDispatchNotify(p.ctx, signal)
	go func() {
		resp, err := p.doer.Do(ctx, p.req)
		signal()
		p.done <- outcome{resp: resp, err: err}
	}()
	<-dispatched
}

// fail rejects every waiter with the refresh error and terminates the session
func (c *Coordinator) fail(queue []*pendingRequest, refreshErr error) error {
	var rejection error = refreshErr
	var rec *apierror.ErrorRecord
	if !errors.As(refreshErr, &rec) {
		rejection = apierror.New(apierror.SessionExpired, 0, refreshErr)
	}

	c.logger.LogError(refreshErr, "token refresh failed", map[string]interface{}{"queued": len(queue)})
	c.publish(events.Event{Topic: events.RefreshFailed, Reason: refreshErr.Error(), Queued: len(queue)})

	for _, p := range queue {
		p.done <- outcome{err: rejection}
	}

	c.terminator.Terminate("token refresh failed")
	return apierror.New(apierror.SessionExpired, 0, refreshErr)
}

func (c *Coordinator) publish(event events.Event) {
	if c.bus != nil {
		c.bus.Publish(event)
	}
}
