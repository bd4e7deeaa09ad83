// Package middleware provides composable wrappers for the outbound MCP
// call path.
package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/mcp-client-go/protocol"
)

// CallFunc is the signature of an outbound call: it transmits the
// request and returns the correlated response.
type CallFunc func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

// Middleware wraps a call with additional behavior.
type Middleware func(next CallFunc) CallFunc

// Chain composes multiple middleware into a single middleware.
// Middleware are applied in order, so Chain(m1, m2, m3) results in
// m1 wrapping m2 wrapping m3 wrapping the final call.
func Chain(middlewares ...Middleware) Middleware {
	return func(final CallFunc) CallFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// DefaultStack returns the recommended client middleware stack:
// panic recovery, invocation ID injection, and logging.
func DefaultStack(logger *slog.Logger) []Middleware {
	return []Middleware{
		Recover(),
		RequestID(),
		Logging(logger),
	}
}

// DefaultStackWithTimeout returns the default stack with a per-call
// deadline.
func DefaultStackWithTimeout(logger *slog.Logger, timeout time.Duration) []Middleware {
	return []Middleware{
		Recover(),
		RequestID(),
		Timeout(timeout),
		Logging(logger),
	}
}
