package interceptor

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"kilometers.ai/authclient/internal/application/ports"
	"kilometers.ai/authclient/internal/core/apierror"
	httpdomain "kilometers.ai/authclient/internal/core/domain/http"
	httpports "kilometers.ai/authclient/internal/core/ports/http"
)

// Headers written by the augmenter
const (
	HeaderRequestID      = "X-Request-ID"
	HeaderClientVersion  = "X-Client-Version"
	HeaderClientPlatform = "X-Client-Platform"
)

// TokenSource supplies the current access token
type TokenSource interface {
	AccessToken() string
}

// ClientInfo is the static client metadata sent with every request
type ClientInfo struct {
	Version  string
	Platform string
}

// DefaultPlatform describes the running binary
func DefaultPlatform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// Augmenter attaches the bearer token, a trace id, client metadata and the
// start timestamp. An Authorization header already on the request is kept,
// and a replayed request keeps its trace id.
func Augmenter(tokens TokenSource, info ClientInfo) RequestHook {
	return augmenter(tokens, info, time.Now, uuid.NewString)
}

func augmenter(tokens TokenSource, info ClientInfo, now func() time.Time, newID func() string) RequestHook {
	return func(ctx context.Context, req *httpdomain.Request) *httpdomain.Request {
		if req.Header.Get("Authorization") == "" {
			if token := tokens.AccessToken(); token != "" {
				req.AttachStoreToken(token)
			}
		}

		if req.TraceID == "" {
			req.TraceID = newID()
		}
		req.Header.Set(HeaderRequestID, req.TraceID)

		if info.Version != "" {
			req.Header.Set(HeaderClientVersion, info.Version)
		}
		if info.Platform != "" {
			req.Header.Set(HeaderClientPlatform, info.Platform)
		}

		req.StartedAt = now()
		return req
	}
}

// TraceContext injects W3C trace context headers from the span in ctx
func TraceContext() RequestHook {
	return func(ctx context.Context, req *httpdomain.Request) *httpdomain.Request {
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
		return req
	}
}

// Classify turns transport errors and failure statuses into ErrorRecords.
// The failing response is returned alongside the error.
func Classify() ResponseHook {
	return func(ctx context.Context, _ httpports.Doer, req *httpdomain.Request, resp *httpdomain.Response, err error) (*httpdomain.Response, error) {
		if err != nil {
			var rec *apierror.ErrorRecord
			if errors.As(err, &rec) {
				return resp, err
			}
			return nil, apierror.FromTransportError(err)
		}
		if resp == nil {
			return nil, apierror.FromTransportError(errors.New("no response received"))
		}
		if !resp.OK() {
			return resp, apierror.FromResponse(resp.StatusCode, resp.Body)
		}
		return resp, nil
	}
}

// Recoverer handles a failed request, typically by refreshing credentials
type Recoverer interface {
	Recover(ctx context.Context, doer httpports.Doer, req *httpdomain.Request, cause error) (*httpdomain.Response, error)
}

// RecoverUnauthorized hands Unauthorized failures to r; it must run after Classify
func RecoverUnauthorized(r Recoverer) ResponseHook {
	return func(ctx context.Context, doer httpports.Doer, req *httpdomain.Request, resp *httpdomain.Response, err error) (*httpdomain.Response, error) {
		if err == nil || !errors.Is(err, apierror.ErrUnauthorized) {
			return resp, err
		}
		return r.Recover(ctx, doer, req, err)
	}
}

// LogExchanges writes one debug line per completed exchange
func LogExchanges(logger ports.Logger) ResponseHook {
	return func(ctx context.Context, _ httpports.Doer, req *httpdomain.Request, resp *httpdomain.Response, err error) (*httpdomain.Response, error) {
		fields := map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL,
			"trace_id": req.TraceID,
			"retried":  req.Retried,
		}
		if resp != nil {
			fields["status"] = resp.StatusCode
			fields["latency"] = resp.Latency.String()
		}
		if err != nil {
			logger.Log(ports.LogLevelDebug, "request failed: "+err.Error(), fields)
		} else {
			logger.Log(ports.LogLevelDebug, "request completed", fields)
		}
		return resp, err
	}
}
