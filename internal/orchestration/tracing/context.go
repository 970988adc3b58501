// Package tracing owns the OpenTelemetry setup for the event pipeline
// and the trace-id correlation that ties one inbound request's log
// lines together. Span and attribute names used across the pipeline
// live here so every stage tags spans the same way.
package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type ctxKey struct{}

// NewTraceID returns a fresh 16-byte hex trace id in the W3C form.
func NewTraceID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// WithTraceID stamps ctx with a correlation id. An empty id leaves the
// context untouched.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// TraceID returns the correlation id stamped on ctx, or "".
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
