package interceptor

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	httpdomain "kilometers.ai/authclient/internal/core/domain/http"
	httpports "kilometers.ai/authclient/internal/core/ports/http"
)

const tracerName = "kilometers.ai/authclient/interceptor"

// RequestHook transforms an outbound request before it is sent
type RequestHook func(ctx context.Context, req *httpdomain.Request) *httpdomain.Request

// ResponseHook inspects the result of a send. doer is the chain itself, so a
// hook can replay a request through every hook again.
type ResponseHook func(ctx context.Context, doer httpports.Doer, req *httpdomain.Request, resp *httpdomain.Response, err error) (*httpdomain.Response, error)

// Chain runs request hooks, the transport, then response hooks, each in
// registration order
type Chain struct {
	transport httpports.Transport
	tracer    trace.Tracer

	mu            sync.RWMutex
	requestHooks  []RequestHook
	responseHooks []ResponseHook
}

// ChainOption configures a Chain
type ChainOption func(*Chain)

// WithTracer overrides the OpenTelemetry tracer; the global provider is used otherwise
func WithTracer(tracer trace.Tracer) ChainOption {
	return func(c *Chain) { c.tracer = tracer }
}

func NewChain(transport httpports.Transport, opts ...ChainOption) *Chain {
	c := &Chain{
		transport: transport,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UseRequest appends request hooks
func (c *Chain) UseRequest(hooks ...RequestHook) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestHooks = append(c.requestHooks, hooks...)
	return c
}

// UseResponse appends response hooks
func (c *Chain) UseResponse(hooks ...ResponseHook) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseHooks = append(c.responseHooks, hooks...)
	return c
}

// Do sends the request through the chain
func (c *Chain) Do(ctx context.Context, req *httpdomain.Request) (*httpdomain.Response, error) {
	c.mu.RLock()
	requestHooks := c.requestHooks
	responseHooks := c.responseHooks
	c.mu.RUnlock()

	ctx, span := c.tracer.Start(ctx, "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL),
			attribute.Bool("kmauth.retried", req.Retried),
		),
	)
	defer span.End()

	for _, hook := range requestHooks {
		req = hook(ctx, req)
	}

	httpdomain.NotifyDispatch(ctx)
	resp, err := c.transport.Send(ctx, req)

	for _, hook := range responseHooks {
		resp, err = hook(ctx, c, req, resp, err)
	}

	if req.TraceID != "" {
		span.SetAttributes(attribute.String("kmauth.trace_id", req.TraceID))
	}
	if resp != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

var _ httpports.Doer = (*Chain)(nil)
