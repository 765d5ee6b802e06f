package httpports

import (
	"context"

	httpdomain "kilometers.ai/authclient/internal/core/domain/http"
)

// Transport sends one request. It returns a response for every received
// HTTP status and an error only when no response arrived.
type Transport interface {
	Send(ctx context.Context, req *httpdomain.Request) (*httpdomain.Response, error)
}

// Doer runs a request through the full interceptor chain
type Doer interface {
	Do(ctx context.Context, req *httpdomain.Request) (*httpdomain.Response, error)
}

// HeaderDefaults is the transport's map of headers attached to every request
type HeaderDefaults interface {
	SetDefaultHeader(name, value string)
	DeleteDefaultHeader(name string)
	DefaultHeaders() map[string]string
}

// LocationProvider reports where the host application currently is, used to
// build the post-login return target
type LocationProvider interface {
	CurrentLocation() string
}

// StaticLocation is a LocationProvider with a fixed value
type StaticLocation string

func (l StaticLocation) CurrentLocation() string { return string(l) }
