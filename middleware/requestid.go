package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/mcp-client-go/protocol"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const invocationIDKey contextKey = "invocationID"

// RequestID returns middleware that injects a unique invocation ID into
// the context. An ID already present in the context is preserved.
func RequestID() Middleware {
	return RequestIDWithGenerator(func() string { return uuid.NewString() })
}

// RequestIDWithGenerator returns middleware that uses a custom ID
// generator.
func RequestIDWithGenerator(generator func() string) Middleware {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			if existing := InvocationIDFromContext(ctx); existing != "" {
				return next(ctx, req)
			}
			ctx = ContextWithInvocationID(ctx, generator())
			return next(ctx, req)
		}
	}
}

// InvocationIDFromContext returns the invocation ID from the context,
// or an empty string if not set.
func InvocationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(invocationIDKey).(string)
	return id
}

// ContextWithInvocationID returns a new context with the invocation ID
// set.
func ContextWithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIDKey, id)
}
