package httpdomain

import "context"

type dispatchKey struct{}

// WithDispatchNotify returns a context whose request is reported through fn
// right before it is handed to the transport
func WithDispatchNotify(ctx context.Context, fn func()) context.Context {
	return context.WithValue(ctx, dispatchKey{}, fn)
}

// NotifyDispatch calls the function registered with WithDispatchNotify, if any
func NotifyDispatch(ctx context.Context) {
	if fn, ok := ctx.Value(dispatchKey{}).(func()); ok && fn != nil {
		fn()
	}
}
