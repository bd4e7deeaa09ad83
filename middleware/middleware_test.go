package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/mcp-client-go/protocol"
)

func okCall(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return protocol.NewResponse(req.ID, "ok"), nil
}

func TestChain(t *testing.T) {
	t.Run("empty chain returns call unchanged", func(t *testing.T) {
		called := false
		call := CallFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			called = true
			return protocol.NewResponse(req.ID, "ok"), nil
		})

		chained := Chain()(call)
		if _, err := chained(context.Background(), &protocol.Request{Method: "test"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !called {
			t.Error("call was not invoked")
		}
	})

	t.Run("middleware execute in order", func(t *testing.T) {
		order := []string{}
		mk := func(name string) Middleware {
			return func(next CallFunc) CallFunc {
				return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
					order = append(order, name+"-before")
					resp, err := next(ctx, req)
					order = append(order, name+"-after")
					return resp, err
				}
			}
		}

		call := CallFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			order = append(order, "call")
			return protocol.NewResponse(req.ID, "ok"), nil
		})

		chained := Chain(mk("m1"), mk("m2"))(call)
		_, _ = chained(context.Background(), &protocol.Request{Method: "test"})

		expected := []string{"m1-before", "m2-before", "call", "m2-after", "m1-after"}
		if len(order) != len(expected) {
			t.Fatalf("order = %v, want %v", order, expected)
		}
		for i, v := range expected {
			if order[i] != v {
				t.Errorf("order[%d] = %q, want %q", i, order[i], v)
			}
		}
	})

	t.Run("middleware can short-circuit", func(t *testing.T) {
		callInvoked := false
		blocking := Middleware(func(next CallFunc) CallFunc {
			return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
				return nil, errors.New("blocked")
			}
		})

		call := CallFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			callInvoked = true
			return protocol.NewResponse(req.ID, "ok"), nil
		})

		chained := Chain(blocking)(call)
		if _, err := chained(context.Background(), &protocol.Request{Method: "test"}); err == nil {
			t.Error("expected error from blocking middleware")
		}
		if callInvoked {
			t.Error("call should not have been invoked")
		}
	})
}

func TestLogging(t *testing.T) {
	t.Run("logs failed call at warn", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

		call := Logging(logger)(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			return nil, errors.New("boom")
		})

		_, _ = call(context.Background(), &protocol.Request{Method: "tools/call"})

		out := buf.String()
		if !strings.Contains(out, "call failed") {
			t.Errorf("log output %q missing failure entry", out)
		}
		if !strings.Contains(out, "tools/call") {
			t.Errorf("log output %q missing method", out)
		}
	})

	t.Run("logs success at debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

		call := Logging(logger)(okCall)
		_, _ = call(context.Background(), &protocol.Request{Method: "ping"})

		if !strings.Contains(buf.String(), "call completed") {
			t.Errorf("log output %q missing completion entry", buf.String())
		}
	})
}

func TestRequestID(t *testing.T) {
	t.Run("injects invocation id", func(t *testing.T) {
		var seen string
		call := RequestID()(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			seen = InvocationIDFromContext(ctx)
			return protocol.NewResponse(req.ID, "ok"), nil
		})

		_, _ = call(context.Background(), &protocol.Request{Method: "test"})
		if seen == "" {
			t.Error("invocation id not injected")
		}
	})

	t.Run("preserves existing id", func(t *testing.T) {
		var seen string
		call := RequestID()(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			seen = InvocationIDFromContext(ctx)
			return protocol.NewResponse(req.ID, "ok"), nil
		})

		ctx := ContextWithInvocationID(context.Background(), "fixed")
		_, _ = call(ctx, &protocol.Request{Method: "test"})
		if seen != "fixed" {
			t.Errorf("invocation id = %q, want %q", seen, "fixed")
		}
	})

	t.Run("custom generator", func(t *testing.T) {
		var seen string
		call := RequestIDWithGenerator(func() string { return "gen-1" })(
			func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
				seen = InvocationIDFromContext(ctx)
				return protocol.NewResponse(req.ID, "ok"), nil
			})

		_, _ = call(context.Background(), &protocol.Request{Method: "test"})
		if seen != "gen-1" {
			t.Errorf("invocation id = %q, want %q", seen, "gen-1")
		}
	})
}

func TestRecover(t *testing.T) {
	t.Run("converts panic to error", func(t *testing.T) {
		call := Recover()(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			panic("something broke")
		})

		_, err := call(context.Background(), &protocol.Request{Method: "test"})
		if err == nil {
			t.Fatal("expected error from recovered panic")
		}
		if !strings.Contains(err.Error(), "something broke") {
			t.Errorf("error = %v, want panic message included", err)
		}
	})

	t.Run("unwraps panicking errors", func(t *testing.T) {
		inner := errors.New("inner failure")
		call := Recover()(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			panic(inner)
		})

		_, err := call(context.Background(), &protocol.Request{Method: "test"})
		if !errors.Is(err, inner) {
			t.Errorf("errors.Is(err, inner) = false, want true")
		}
	})

	t.Run("passes through normal calls", func(t *testing.T) {
		call := Recover()(okCall)
		resp, err := call(context.Background(), &protocol.Request{ID: json.RawMessage("1"), Method: "test"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp == nil {
			t.Fatal("expected response")
		}
	})
}

func TestTimeout(t *testing.T) {
	t.Run("cancels slow call", func(t *testing.T) {
		call := Timeout(20 * time.Millisecond)(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return protocol.NewResponse(req.ID, "ok"), nil
			}
		})

		_, err := call(context.Background(), &protocol.Request{Method: "test"})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want context.DeadlineExceeded", err)
		}
	})

	t.Run("fast call unaffected", func(t *testing.T) {
		call := Timeout(time.Second)(okCall)
		if _, err := call(context.Background(), &protocol.Request{Method: "test"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestRateLimit(t *testing.T) {
	t.Run("rejects when limit exhausted", func(t *testing.T) {
		call := RateLimit(1, 1)(okCall)

		if _, err := call(context.Background(), &protocol.Request{Method: "test"}); err != nil {
			t.Fatalf("first call error = %v", err)
		}

		var rejected bool
		for i := 0; i < 5; i++ {
			if _, err := call(context.Background(), &protocol.Request{Method: "test"}); errors.Is(err, ErrRateLimited) {
				rejected = true
				break
			}
		}
		if !rejected {
			t.Error("expected ErrRateLimited after burst exhausted")
		}
	})

	t.Run("per-method keys are independent", func(t *testing.T) {
		call := RateLimitByMethod(1, 1)(okCall)

		if _, err := call(context.Background(), &protocol.Request{Method: "a"}); err != nil {
			t.Fatalf("method a error = %v", err)
		}
		if _, err := call(context.Background(), &protocol.Request{Method: "b"}); err != nil {
			t.Errorf("method b error = %v, want nil", err)
		}
	})
}

func TestSizeLimit(t *testing.T) {
	t.Run("rejects oversized params", func(t *testing.T) {
		call := SizeLimit(10)(okCall)

		req := &protocol.Request{
			Method: "tools/call",
			Params: json.RawMessage(`{"name":"echo","arguments":{"message":"long"}}`),
		}
		if _, err := call(context.Background(), req); err == nil {
			t.Error("expected error for oversized params")
		}
	})

	t.Run("allows small params", func(t *testing.T) {
		call := SizeLimit(KB)(okCall)

		req := &protocol.Request{Method: "ping", Params: json.RawMessage(`{}`)}
		if _, err := call(context.Background(), req); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
