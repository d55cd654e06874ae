package logger

import "context"

// ctxKey keeps this package's context values collision-free.
type ctxKey int

const requestIDKey ctxKey = iota

// WithRequestID stamps the request id onto the context so handlers and
// services down the call chain can log it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id carried by ctx, or "" when the call
// did not enter through the HTTP layer.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
