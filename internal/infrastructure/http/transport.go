package httpinfra

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	httpdomain "kilometers.ai/authclient/internal/core/domain/http"
	httpports "kilometers.ai/authclient/internal/core/ports/http"
)

// DefaultTimeout bounds every outbound call
const DefaultTimeout = 30 * time.Second

// StdTransport sends requests with net/http relative to a base URL
type StdTransport struct {
	client  *http.Client
	baseURL string

	mu       sync.RWMutex
	defaults map[string]string
}

func NewStdTransport(baseURL string, timeout time.Duration) *StdTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &StdTransport{
		client:   &http.Client{Timeout: timeout},
		baseURL:  baseURL,
		defaults: map[string]string{},
	}
}

// NewStdTransportWithClient uses the given client as is, mainly for tests
func NewStdTransportWithClient(baseURL string, client *http.Client) *StdTransport {
	return &StdTransport{
		client:   client,
		baseURL:  baseURL,
		defaults: map[string]string{},
	}
}

func (t *StdTransport) Send(ctx context.Context, req *httpdomain.Request) (*httpdomain.Response, error) {
	fullURL, err := resolveURL(t.BaseURL(), req.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid request url %q: %w", req.URL, err)
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	applyHeaders(httpReq.Header, t.DefaultHeaders(), req.Header)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	out := &httpdomain.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
		Request:    req,
	}
	if !req.StartedAt.IsZero() {
		out.Latency = time.Since(req.StartedAt)
	}
	return out, nil
}

// BaseURL returns the URL relative request paths are resolved against
func (t *StdTransport) BaseURL() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.baseURL
}

// SetBaseURL replaces the base URL for subsequent requests
func (t *StdTransport) SetBaseURL(baseURL string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.baseURL = baseURL
}

func (t *StdTransport) SetDefaultHeader(name, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaults[http.CanonicalHeaderKey(name)] = value
}

func (t *StdTransport) DeleteDefaultHeader(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.defaults, http.CanonicalHeaderKey(name))
}

func (t *StdTransport) DefaultHeaders() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return MergeHeaders(t.defaults, nil)
}

// resolveURL joins a relative request URL onto the base; absolute URLs pass through
func resolveURL(base, ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if r.IsAbs() || base == "" {
		return r.String(), nil
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = joinPath(u.Path, r.Path)
	u.RawQuery = r.RawQuery
	return u.String(), nil
}

func joinPath(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if a[len(a)-1] == '/' {
		a = a[:len(a)-1]
	}
	if b[0] != '/' {
		b = "/" + b
	}
	return a + b
}

var (
	_ httpports.Transport      = (*StdTransport)(nil)
	_ httpports.HeaderDefaults = (*StdTransport)(nil)
)
