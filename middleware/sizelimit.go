package middleware

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/mcp-client-go/protocol"
)

// SizeLimitOption configures the size limit middleware.
type SizeLimitOption func(*sizeLimitConfig)

type sizeLimitConfig struct {
	logger *slog.Logger
}

// WithSizeLimitLogger sets the logger for size limit events.
func WithSizeLimitLogger(l *slog.Logger) SizeLimitOption {
	return func(o *sizeLimitConfig) {
		o.logger = l
	}
}

// SizeLimit returns middleware that rejects outbound calls whose params
// exceed maxBytes, before they are transmitted.
func SizeLimit(maxBytes int64, opts ...SizeLimitOption) Middleware {
	cfg := &sizeLimitConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			if req.Params != nil {
				size := int64(len(req.Params))
				if size > maxBytes {
					if cfg.logger != nil {
						cfg.logger.WarnContext(ctx, "request size limit exceeded",
							slog.String("method", req.Method),
							slog.Int64("size", size),
							slog.Int64("max", maxBytes),
						)
					}
					return nil, fmt.Errorf("request size %d exceeds limit of %d bytes", size, maxBytes)
				}
			}

			return next(ctx, req)
		}
	}
}

// Common size limit presets.
const (
	// KB is 1024 bytes.
	KB = 1024
	// MB is 1024 * 1024 bytes.
	MB = 1024 * 1024
)
