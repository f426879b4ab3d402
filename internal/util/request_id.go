package util

import (
	"context"
	"net/http"
	"strings"
)

type requestIDContextKey string

const (
	// RequestIDHeader carries the request id on outgoing calls.
	RequestIDHeader = "X-Request-Id"

	requestIDCtxKey = requestIDContextKey("request_id")
)

// ContextWithRequestID stores id in ctx together with a logger carrying it,
// so util.LoggerFromContext(ctx, nil) includes "request_id" automatically.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	ctx = context.WithValue(ctx, requestIDCtxKey, id)
	logger := LoggerFromContext(ctx, nil).With("request_id", id)
	return ContextWithLogger(ctx, logger)
}

// RequestIDFromContext returns the request id stored in ctx.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}

// EnsureRequestID returns ctx unchanged when it already carries a request id,
// otherwise a child context holding a new one.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id := RequestIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewID()
	return ContextWithRequestID(ctx, id), id
}

// SetRequestID copies the request id from ctx onto an outgoing request.
func SetRequestID(req *http.Request) string {
	if req == nil {
		return ""
	}
	id := RequestIDFromContext(req.Context())
	if id != "" {
		req.Header.Set(RequestIDHeader, id)
	}
	return id
}
