package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/mcp-client-go/protocol"
)

// Logging returns middleware that logs each outbound call. Successful
// calls are logged at debug level, failures at warn level.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			start := time.Now()

			resp, err := next(ctx, req)

			attrs := []any{
				slog.String("method", req.Method),
				slog.Duration("duration", time.Since(start)),
			}
			if invocationID := InvocationIDFromContext(ctx); invocationID != "" {
				attrs = append(attrs, slog.String("invocation_id", invocationID))
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.WarnContext(ctx, "call failed", attrs...)
			} else {
				logger.DebugContext(ctx, "call completed", attrs...)
			}

			return resp, err
		}
	}
}
