package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Kind selects a transport variant.
type Kind int

const (
	// KindStreamableHTTP multiplexes the session over HTTP request/response
	// streaming.
	KindStreamableHTTP Kind = iota
	// KindSSE uses a long-lived server-sent-events stream for reads and
	// POSTs for writes.
	KindSSE
	// KindWebSocket uses a single WebSocket connection.
	KindWebSocket
)

// String returns the kind name as used in configuration.
func (k Kind) String() string {
	switch k {
	case KindStreamableHTTP:
		return "http"
	case KindSSE:
		return "sse"
	case KindWebSocket:
		return "ws"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses a transport kind name ("http", "sse", "ws").
func ParseKind(s string) (Kind, error) {
	switch s {
	case "http", "streamable", "":
		return KindStreamableHTTP, nil
	case "sse":
		return KindSSE, nil
	case "ws", "websocket":
		return KindWebSocket, nil
	default:
		return KindStreamableHTTP, fmt.Errorf("unknown transport kind %q", s)
	}
}

// DefaultTimeout bounds channel opens and individual calls when the
// endpoint does not specify one.
const DefaultTimeout = 30 * time.Second

// Endpoint describes where and how to reach an MCP server. Immutable
// after construction.
type Endpoint struct {
	URL     string
	Kind    Kind
	Timeout time.Duration
}

func (e Endpoint) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return DefaultTimeout
}

// Channel is a duplex message pipe to an MCP server.
//
// Messages is closed by stream-backed channels when their inbound
// stream ends; consumers must also watch their own shutdown signal and
// not rely on the close alone. Close is idempotent and releases the
// underlying connection unconditionally, including after a failed
// handshake.
type Channel interface {
	// Messages returns the inbound message stream.
	Messages() <-chan []byte
	// Send transmits one outbound message.
	Send(ctx context.Context, data []byte) error
	// Close releases the channel. Safe to call more than once.
	Close() error
}

// SessionHolder is implemented by channels that negotiate a server-side
// session identifier (the streamable HTTP variant). The id may be empty
// when the server is stateless.
type SessionHolder interface {
	SessionID() string
}

// Option configures a channel open.
type Option func(*options)

type options struct {
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger
}

// WithHTTPClient sets the HTTP client used for requests. Defaults to
// http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithDialer sets the WebSocket dialer. Only used by KindWebSocket.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithLogger sets the logger for channel-level events (dropped
// messages, reconnects, teardown). Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func buildOptions(opts []Option) options {
	o := options{
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open establishes a channel to the endpoint with the given headers
// attached to every HTTP request the channel makes. The open phase is
// bounded by the endpoint timeout; on any failure no channel is
// returned and nothing is left open.
func Open(ctx context.Context, ep Endpoint, headers map[string]string, opts ...Option) (Channel, error) {
	switch ep.Kind {
	case KindSSE:
		return OpenSSE(ctx, ep, headers, opts...)
	case KindStreamableHTTP:
		return OpenStreamable(ctx, ep, headers, opts...)
	case KindWebSocket:
		return OpenWebSocket(ctx, ep, headers, opts...)
	default:
		return nil, &Error{Kind: ErrorProtocolMismatch, Op: "open", Err: fmt.Errorf("unknown transport kind %d", int(ep.Kind))}
	}
}
