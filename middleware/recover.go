package middleware

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/mcp-client-go/protocol"
)

// PanicHandler is called when a panic is recovered.
type PanicHandler func(ctx context.Context, req *protocol.Request, panicVal any) (*protocol.Response, error)

// Recover returns middleware that catches panics on the call path and
// converts them to errors.
func Recover() Middleware {
	return RecoverWithHandler(defaultPanicHandler)
}

// RecoverWithHandler returns middleware that catches panics and calls
// the provided handler.
func RecoverWithHandler(handler PanicHandler) Middleware {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, req *protocol.Request) (resp *protocol.Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp, err = handler(ctx, req, r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func defaultPanicHandler(_ context.Context, _ *protocol.Request, panicVal any) (*protocol.Response, error) {
	switch v := panicVal.(type) {
	case error:
		return nil, fmt.Errorf("panic: %w", v)
	default:
		return nil, fmt.Errorf("panic: %v", v)
	}
}
