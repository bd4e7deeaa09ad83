package middleware

import (
	"context"
	"time"

	"github.com/felixgeelhaar/mcp-client-go/protocol"
)

// Timeout returns middleware that enforces a per-call deadline. If the
// call does not complete within the specified duration, the context is
// cancelled and the call fails with context.DeadlineExceeded.
func Timeout(d time.Duration) Middleware {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}
