package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/mcp-client-go/protocol"
	"github.com/felixgeelhaar/mcp-client-go/transport"
)

// fakeChannel is an in-memory transport channel driven by a scripted
// responder.
type fakeChannel struct {
	incoming chan []byte

	mu      sync.Mutex
	sent    []*protocol.Request
	closed  int
	sendErr error

	// respond produces the reply for a request; nil means stay silent.
	respond func(req *protocol.Request) *protocol.Response
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{incoming: make(chan []byte, 16)}
}

// respondOK replies to initialize, tools/list (no tools), tools/call
// and ping with well-formed results.
func respondOK(req *protocol.Request) *protocol.Response {
	switch req.Method {
	case protocol.MethodInitialize:
		return protocol.NewResponse(req.ID, map[string]any{
			"protocolVersion": protocol.MCPVersion,
			"serverInfo":      map[string]any{"name": "fake", "version": "0.1.0"},
			"capabilities":    map[string]any{},
		})
	case protocol.MethodToolsList:
		return protocol.NewResponse(req.ID, map[string]any{"tools": []any{}})
	case protocol.MethodToolsCall:
		return protocol.NewResponse(req.ID, map[string]any{
			"content": []any{map[string]any{"type": "text", "text": "ok"}},
		})
	case protocol.MethodPing:
		return protocol.NewResponse(req.ID, map[string]any{})
	default:
		return protocol.NewErrorResponse(req.ID, protocol.NewMethodNotFound(req.Method))
	}
}

func (f *fakeChannel) Messages() <-chan []byte {
	return f.incoming
}

func (f *fakeChannel) Send(ctx context.Context, data []byte) error {
	f.mu.Lock()
	if f.sendErr != nil {
		err := f.sendErr
		f.mu.Unlock()
		return err
	}
	var req protocol.Request
	if err := json.Unmarshal(data, &req); err != nil {
		f.mu.Unlock()
		return err
	}
	f.sent = append(f.sent, &req)
	respond := f.respond
	f.mu.Unlock()

	if req.IsNotification() || respond == nil {
		return nil
	}
	if resp := respond(&req); resp != nil {
		f.push(resp)
	}
	return nil
}

func (f *fakeChannel) push(resp *protocol.Response) {
	data, _ := json.Marshal(resp)
	f.incoming <- data
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeChannel) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChannel) sentMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	methods := make([]string, len(f.sent))
	for i, req := range f.sent {
		methods[i] = req.Method
	}
	return methods
}

func newTestSession(t *testing.T, ch transport.Channel, opts ...SessionOption) *Session {
	t.Helper()
	s := NewSession(ch, opts...)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionHandshake(t *testing.T) {
	t.Run("success emits initialized", func(t *testing.T) {
		ch := newFakeChannel()
		ch.respond = respondOK
		s := newTestSession(t, ch)

		info, err := s.Handshake(context.Background())
		if err != nil {
			t.Fatalf("Handshake() error = %v", err)
		}
		if info.Name != "fake" {
			t.Errorf("server name = %q, want %q", info.Name, "fake")
		}
		if info.ProtocolVersion != protocol.MCPVersion {
			t.Errorf("protocol version = %q, want %q", info.ProtocolVersion, protocol.MCPVersion)
		}

		methods := ch.sentMethods()
		want := []string{protocol.MethodInitialize, protocol.MethodInitialized}
		if len(methods) != len(want) {
			t.Fatalf("sent methods = %v, want %v", methods, want)
		}
		for i, m := range want {
			if methods[i] != m {
				t.Errorf("sent[%d] = %q, want %q", i, methods[i], m)
			}
		}
	})

	t.Run("version mismatch", func(t *testing.T) {
		ch := newFakeChannel()
		ch.respond = func(req *protocol.Request) *protocol.Response {
			return protocol.NewResponse(req.ID, map[string]any{
				"protocolVersion": "1999-12-31",
				"serverInfo":      map[string]any{"name": "old", "version": "0.0.1"},
			})
		}
		s := newTestSession(t, ch)

		_, err := s.Handshake(context.Background())
		var herr *HandshakeError
		if !errors.As(err, &herr) {
			t.Fatalf("Handshake() error = %v, want *HandshakeError", err)
		}
		if herr.Kind != HandshakeVersionMismatch {
			t.Errorf("Kind = %v, want HandshakeVersionMismatch", herr.Kind)
		}
		if herr.ServerVersion != "1999-12-31" {
			t.Errorf("ServerVersion = %q, want %q", herr.ServerVersion, "1999-12-31")
		}
	})

	t.Run("server rejection", func(t *testing.T) {
		ch := newFakeChannel()
		ch.respond = func(req *protocol.Request) *protocol.Response {
			return protocol.NewErrorResponse(req.ID, protocol.NewUnauthorized("bad token"))
		}
		s := newTestSession(t, ch)

		_, err := s.Handshake(context.Background())
		var herr *HandshakeError
		if !errors.As(err, &herr) {
			t.Fatalf("Handshake() error = %v, want *HandshakeError", err)
		}
		if herr.Kind != HandshakeRejected {
			t.Errorf("Kind = %v, want HandshakeRejected", herr.Kind)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		ch := newFakeChannel() // silent server
		s := newTestSession(t, ch)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := s.Handshake(ctx)
		var herr *HandshakeError
		if !errors.As(err, &herr) {
			t.Fatalf("Handshake() error = %v, want *HandshakeError", err)
		}
		if herr.Kind != HandshakeTimedOut {
			t.Errorf("Kind = %v, want HandshakeTimedOut", herr.Kind)
		}
	})
}

func TestSessionListTools(t *testing.T) {
	t.Run("empty slice for zero tools", func(t *testing.T) {
		ch := newFakeChannel()
		ch.respond = func(req *protocol.Request) *protocol.Response {
			return protocol.NewResponse(req.ID, map[string]any{"tools": nil})
		}
		s := newTestSession(t, ch)

		tools, err := s.ListTools(context.Background())
		if err != nil {
			t.Fatalf("ListTools() error = %v", err)
		}
		if tools == nil {
			t.Fatal("ListTools() = nil, want empty slice")
		}
		if len(tools) != 0 {
			t.Errorf("len(tools) = %d, want 0", len(tools))
		}
	})

	t.Run("returns descriptors and caches schemas", func(t *testing.T) {
		ch := newFakeChannel()
		ch.respond = func(req *protocol.Request) *protocol.Response {
			return protocol.NewResponse(req.ID, map[string]any{
				"tools": []any{
					map[string]any{
						"name":        "echo",
						"description": "Echo a message",
						"inputSchema": map[string]any{
							"type":       "object",
							"properties": map[string]any{"message": map[string]any{"type": "string"}},
							"required":   []any{"message"},
						},
					},
				},
			})
		}
		s := newTestSession(t, ch)

		tools, err := s.ListTools(context.Background())
		if err != nil {
			t.Fatalf("ListTools() error = %v", err)
		}
		if len(tools) != 1 || tools[0].Name != "echo" {
			t.Fatalf("tools = %+v, want one echo descriptor", tools)
		}

		// The cached schema now rejects missing required args locally.
		_, err = s.CallTool(context.Background(), "echo", map[string]any{})
		if err == nil {
			t.Error("CallTool() without required arg = nil, want validation error")
		}
	})
}

func TestSessionCallTool(t *testing.T) {
	t.Run("returns result content", func(t *testing.T) {
		ch := newFakeChannel()
		ch.respond = func(req *protocol.Request) *protocol.Response {
			return protocol.NewResponse(req.ID, map[string]any{
				"content": []any{map[string]any{"type": "text", "text": "Echo: hi"}},
			})
		}
		s := newTestSession(t, ch)

		result, err := s.CallTool(context.Background(), "echo", map[string]any{"message": "hi"})
		if err != nil {
			t.Fatalf("CallTool() error = %v", err)
		}
		if got := result.Text(); got != "Echo: hi" {
			t.Errorf("Text() = %q, want %q", got, "Echo: hi")
		}
	})

	t.Run("json-rpc error is tool failure", func(t *testing.T) {
		ch := newFakeChannel()
		ch.respond = func(req *protocol.Request) *protocol.Response {
			return protocol.NewErrorResponse(req.ID, protocol.NewNotFound("no such tool"))
		}
		s := newTestSession(t, ch)

		_, err := s.CallTool(context.Background(), "missing", nil)
		var ierr *InvocationError
		if !errors.As(err, &ierr) {
			t.Fatalf("CallTool() error = %v, want *InvocationError", err)
		}
		if ierr.Kind != InvocationToolFailed {
			t.Errorf("Kind = %v, want InvocationToolFailed", ierr.Kind)
		}
		if ierr.ServerMessage != "no such tool" {
			t.Errorf("ServerMessage = %q, want %q", ierr.ServerMessage, "no such tool")
		}
	})

	t.Run("isError result is tool failure", func(t *testing.T) {
		ch := newFakeChannel()
		ch.respond = func(req *protocol.Request) *protocol.Response {
			return protocol.NewResponse(req.ID, map[string]any{
				"isError": true,
				"content": []any{map[string]any{"type": "text", "text": "division by zero"}},
			})
		}
		s := newTestSession(t, ch)

		_, err := s.CallTool(context.Background(), "divide", nil)
		var ierr *InvocationError
		if !errors.As(err, &ierr) {
			t.Fatalf("CallTool() error = %v, want *InvocationError", err)
		}
		if ierr.Kind != InvocationToolFailed {
			t.Errorf("Kind = %v, want InvocationToolFailed", ierr.Kind)
		}
		if ierr.ServerMessage != "division by zero" {
			t.Errorf("ServerMessage = %q, want %q", ierr.ServerMessage, "division by zero")
		}
	})

	t.Run("timeout removes pending entry", func(t *testing.T) {
		ch := newFakeChannel() // never responds
		s := newTestSession(t, ch)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := s.CallTool(ctx, "block", nil)
		var ierr *InvocationError
		if !errors.As(err, &ierr) {
			t.Fatalf("CallTool() error = %v, want *InvocationError", err)
		}
		if ierr.Kind != InvocationTimedOut {
			t.Errorf("Kind = %v, want InvocationTimedOut", ierr.Kind)
		}

		s.mu.Lock()
		n := len(s.pending)
		s.mu.Unlock()
		if n != 0 {
			t.Errorf("pending entries after timeout = %d, want 0", n)
		}
	})

	t.Run("session close fails call as unroutable", func(t *testing.T) {
		ch := newFakeChannel()
		s := NewSession(ch)

		errCh := make(chan error, 1)
		go func() {
			_, err := s.CallTool(context.Background(), "block", nil)
			errCh <- err
		}()

		time.Sleep(20 * time.Millisecond)
		s.Close()

		select {
		case err := <-errCh:
			var ierr *InvocationError
			if !errors.As(err, &ierr) {
				t.Fatalf("CallTool() error = %v, want *InvocationError", err)
			}
			if ierr.Kind != InvocationUnroutable {
				t.Errorf("Kind = %v, want InvocationUnroutable", ierr.Kind)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("call did not fail after Close")
		}
	})
}

func TestSessionCorrelation(t *testing.T) {
	t.Run("responses route by id regardless of order", func(t *testing.T) {
		ch := newFakeChannel()
		s := newTestSession(t, ch)

		const n = 8
		var wg sync.WaitGroup
		results := make([]string, n)
		errs := make([]error, n)

		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				result, err := s.CallTool(context.Background(), "echo", map[string]any{"i": i})
				if err != nil {
					errs[i] = err
					return
				}
				results[i] = result.Text()
			}(i)
		}

		// Wait for all requests to hit the wire, then answer them in
		// reverse order.
		deadline := time.After(5 * time.Second)
		for {
			ch.mu.Lock()
			count := len(ch.sent)
			ch.mu.Unlock()
			if count == n {
				break
			}
			select {
			case <-deadline:
				t.Fatalf("only %d of %d requests sent", count, n)
			case <-time.After(5 * time.Millisecond):
			}
		}

		ch.mu.Lock()
		reqs := append([]*protocol.Request(nil), ch.sent...)
		ch.mu.Unlock()
		for i := len(reqs) - 1; i >= 0; i-- {
			id, _ := protocol.RequestID(reqs[i].ID)
			ch.push(protocol.NewResponse(reqs[i].ID, map[string]any{
				"content": []any{map[string]any{"type": "text", "text": fmt.Sprintf("id-%d", id)}},
			}))
		}

		wg.Wait()

		seen := make(map[string]bool)
		for i := 0; i < n; i++ {
			if errs[i] != nil {
				t.Fatalf("call %d error = %v", i, errs[i])
			}
			if seen[results[i]] {
				t.Errorf("result %q delivered twice", results[i])
			}
			seen[results[i]] = true
		}
	})

	t.Run("unmatched response is dropped", func(t *testing.T) {
		ch := newFakeChannel()
		ch.respond = respondOK
		s := newTestSession(t, ch)

		ch.push(protocol.NewResponse(json.RawMessage("9999"), map[string]any{}))

		// The session still works after the stray response.
		if err := s.Ping(context.Background()); err != nil {
			t.Errorf("Ping() after stray response error = %v", err)
		}
	})
}

func pushNotification(ch *fakeChannel, method string, params map[string]any) {
	notif, _ := protocol.NewNotification(method, params)
	data, _ := json.Marshal(notif)
	ch.incoming <- data
}

func TestSessionNotifications(t *testing.T) {
	t.Run("delivered after handshake", func(t *testing.T) {
		ch := newFakeChannel()
		ch.respond = respondOK
		got := make(chan string, 1)
		s := newTestSession(t, ch, WithNotificationHandler(func(method string, params json.RawMessage) {
			got <- method
		}))

		if _, err := s.Handshake(context.Background()); err != nil {
			t.Fatalf("Handshake() error = %v", err)
		}
		pushNotification(ch, protocol.MethodProgress, map[string]any{"progress": 0.5})

		select {
		case method := <-got:
			if method != protocol.MethodProgress {
				t.Errorf("method = %q, want %q", method, protocol.MethodProgress)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("notification not delivered")
		}
	})

	t.Run("dropped before handshake acknowledgement", func(t *testing.T) {
		ch := newFakeChannel()
		// The server slips a notification onto the stream ahead of the
		// initialize acknowledgement.
		ch.respond = func(req *protocol.Request) *protocol.Response {
			if req.Method == protocol.MethodInitialize {
				pushNotification(ch, protocol.MethodLogMessage, map[string]any{"level": "info"})
			}
			return respondOK(req)
		}
		got := make(chan string, 2)
		s := newTestSession(t, ch, WithNotificationHandler(func(method string, params json.RawMessage) {
			got <- method
		}))

		if _, err := s.Handshake(context.Background()); err != nil {
			t.Fatalf("Handshake() error = %v", err)
		}
		pushNotification(ch, protocol.MethodProgress, map[string]any{"progress": 1.0})

		// The inbound stream is ordered, so if the pre-ack notification
		// had been delivered it would arrive here first.
		select {
		case method := <-got:
			if method != protocol.MethodProgress {
				t.Errorf("delivered %q, want only post-handshake %q", method, protocol.MethodProgress)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("notification not delivered")
		}
	})
}

func TestSessionAnswersServerPing(t *testing.T) {
	ch := newFakeChannel()
	s := newTestSession(t, ch)
	_ = s

	ping, _ := protocol.NewRequest(42, protocol.MethodPing, nil)
	data, _ := json.Marshal(ping)
	ch.incoming <- data

	deadline := time.After(5 * time.Second)
	for {
		ch.mu.Lock()
		count := len(ch.sent)
		ch.mu.Unlock()
		if count > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no answer to server ping")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSessionClose(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		ch := newFakeChannel()
		s := NewSession(ch)
		if err := s.Close(); err != nil {
			t.Errorf("first Close() error = %v", err)
		}
		if err := s.Close(); err != nil {
			t.Errorf("second Close() error = %v", err)
		}
	})

	t.Run("does not close the channel", func(t *testing.T) {
		ch := newFakeChannel()
		s := NewSession(ch)
		s.Close()
		if ch.closeCount() != 0 {
			t.Errorf("channel close count = %d, want 0", ch.closeCount())
		}
	})

	t.Run("calls after close are unroutable", func(t *testing.T) {
		ch := newFakeChannel()
		ch.respond = respondOK
		s := NewSession(ch)
		s.Close()

		_, err := s.CallTool(context.Background(), "echo", nil)
		var ierr *InvocationError
		if !errors.As(err, &ierr) {
			t.Fatalf("CallTool() error = %v, want *InvocationError", err)
		}
		if ierr.Kind != InvocationUnroutable {
			t.Errorf("Kind = %v, want InvocationUnroutable", ierr.Kind)
		}
	})
}
