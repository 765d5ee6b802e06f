package httpdomain

import (
	"net/http"
	"time"
)

// Request describes one logical outbound call. The descriptor is passed by pointer
// through the interceptor chain and the refresh queue, so Retried survives a replay.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// StoreToken is the bearer attached from the token store, empty when the
	// caller supplied its own Authorization header.
	StoreToken string

	// TraceID is assigned once per logical request and kept across replays.
	TraceID   string
	StartedAt time.Time

	// Retried is set once the request has been replayed after a token refresh.
	Retried bool
	// SkipAuthRefresh marks calls that must never trigger a refresh (the refresh call itself).
	SkipAuthRefresh bool
}

// NewRequest creates a request descriptor with an empty header set
func NewRequest(method, url string, body []byte) *Request {
	return &Request{
		Method: method,
		URL:    url,
		Header: make(http.Header),
		Body:   body,
	}
}

// Clone returns a deep copy that keeps the logical identity (trace id, retry flag)
func (r *Request) Clone() *Request {
	out := *r
	out.Header = r.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return &out
}

// SetBearer replaces the Authorization header with a bearer token
func (r *Request) SetBearer(token string) {
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	r.Header.Set("Authorization", "Bearer "+token)
}

// AttachStoreToken sets the bearer header and records it as issued by the token store
func (r *Request) AttachStoreToken(token string) {
	r.SetBearer(token)
	r.StoreToken = token
}

// Response is the transport's view of a received HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Request    *Request
	Latency    time.Duration
}

// OK reports whether the status code is not a failure
func (r *Response) OK() bool {
	return r.StatusCode > 0 && r.StatusCode < 400
}
