package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/mcp-client-go/auth"
	"github.com/felixgeelhaar/mcp-client-go/middleware"
	"github.com/felixgeelhaar/mcp-client-go/transport"
)

// State is the connection lifecycle state of a Client.
type State int

const (
	// StateUnconnected means no connection exists; Connect may be called.
	StateUnconnected State = iota
	// StateConnecting means a channel open is in flight.
	StateConnecting
	// StateHandshaking means the channel is open and initialize is in
	// flight.
	StateHandshaking
	// StateReady means the handshake succeeded and calls may proceed.
	StateReady
	// StateClosing means a disconnect is in progress.
	StateClosing
	// StateClosed means the client was closed permanently.
	StateClosed
	// StateFailed means the last connect attempt failed; Connect may be
	// retried.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrClosed is returned by operations on a permanently closed client.
var ErrClosed = errors.New("client closed")

// errConnectAborted reports a connect attempt that was superseded by a
// Disconnect before it could finish.
var errConnectAborted = errors.New("connect aborted: client disconnected")

// openFunc matches transport.Open; swappable for tests.
type openFunc func(ctx context.Context, ep transport.Endpoint, headers map[string]string, opts ...transport.Option) (transport.Channel, error)

// Client manages one logical connection to an MCP server: it derives
// auth headers, opens the transport channel, runs the handshake, and
// guarantees that teardown closes everything exactly once.
type Client struct {
	endpoint transport.Endpoint
	cred     *auth.Credential
	opts     clientOptions

	mu      sync.Mutex
	state   State
	ch      transport.Channel
	session *Session
	attempt *connectAttempt
}

// connectAttempt tracks one in-flight connect. Concurrent callers wait
// on done and read err afterwards; the attempt publishes its handles
// only while it is still c.attempt, so a Disconnect that supersedes it
// leaves the attempt to clean up after itself.
type connectAttempt struct {
	done chan struct{}
	err  error
}

type clientOptions struct {
	logger        *slog.Logger
	timeout       time.Duration
	clientName    string
	clientVer     string
	notify        NotificationHandler
	middleware    []middleware.Middleware
	transportOpts []transport.Option
	open          openFunc
}

// Option configures a Client.
type Option func(*clientOptions)

// WithLogger sets the client logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = l
	}
}

// WithTimeout sets the default per-call timeout. Defaults to the
// endpoint timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithClientInfo sets the client name and version announced during the
// handshake.
func WithClientInfo(name, version string) Option {
	return func(o *clientOptions) {
		o.clientName = name
		o.clientVer = version
	}
}

// WithNotifications registers a handler for server-initiated
// notifications.
func WithNotifications(fn NotificationHandler) Option {
	return func(o *clientOptions) {
		o.notify = fn
	}
}

// WithMiddleware wraps the outbound call path with the given
// middleware.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *clientOptions) {
		o.middleware = append(o.middleware, mws...)
	}
}

// WithTransportOptions passes options through to the channel open.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *clientOptions) {
		o.transportOpts = append(o.transportOpts, opts...)
	}
}

// withOpenFunc swaps the channel opener; used by tests to count and
// fake channels.
func withOpenFunc(fn openFunc) Option {
	return func(o *clientOptions) {
		o.open = fn
	}
}

// New creates a client for the endpoint. A nil credential means no auth
// headers are sent.
func New(ep transport.Endpoint, cred *auth.Credential, opts ...Option) *Client {
	options := clientOptions{
		logger:     slog.Default(),
		clientName: "mcp-client-go",
		clientVer:  "1.0.0",
		open:       transport.Open,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Client{
		endpoint: ep,
		cred:     cred,
		opts:     options,
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the transport session identifier when the channel
// negotiated one, otherwise an empty string.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if holder, ok := c.ch.(transport.SessionHolder); ok {
		return holder.SessionID()
	}
	return ""
}

// ServerInfo returns the handshake acknowledgement, or nil when not
// connected.
func (c *Client) ServerInfo() *ServerInfo {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.ServerInfo()
}

// Connect opens the channel and runs the handshake. Ready clients
// return immediately; concurrent callers collapse onto the single
// in-flight attempt and share its result. On any failure everything
// that was opened is torn down before Connect returns.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateReady:
		c.mu.Unlock()
		return nil
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateConnecting, StateHandshaking:
		att := c.attempt
		c.mu.Unlock()
		select {
		case <-att.done:
			return att.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	att := &connectAttempt{done: make(chan struct{})}
	c.state = StateConnecting
	c.attempt = att
	c.mu.Unlock()

	err := c.connect(ctx, att)

	c.mu.Lock()
	if c.attempt == att {
		if err != nil {
			c.state = StateFailed
		} else {
			c.state = StateReady
		}
		c.attempt = nil
	}
	att.err = err
	close(att.done)
	c.mu.Unlock()

	return err
}

// connect performs the open and handshake. On failure it closes
// whatever was opened, session before channel. Handles are published
// only while the attempt is still current; a superseded attempt closes
// its own channel and reports errConnectAborted.
func (c *Client) connect(ctx context.Context, att *connectAttempt) error {
	headers := c.cred.Headers()

	topts := append([]transport.Option{transport.WithLogger(c.opts.logger)}, c.opts.transportOpts...)
	ch, err := c.opts.open(ctx, c.endpoint, headers, topts...)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	c.mu.Lock()
	if c.attempt != att {
		c.mu.Unlock()
		if cerr := ch.Close(); cerr != nil {
			c.opts.logger.Warn("closing channel from superseded connect", "error", cerr)
		}
		return errConnectAborted
	}
	c.state = StateHandshaking
	c.ch = ch
	c.mu.Unlock()

	sopts := []SessionOption{
		WithSessionLogger(c.opts.logger),
		WithSessionClientInfo(c.opts.clientName, c.opts.clientVer),
	}
	if c.opts.notify != nil {
		sopts = append(sopts, WithNotificationHandler(c.opts.notify))
	}
	if len(c.opts.middleware) > 0 {
		sopts = append(sopts, WithSessionMiddleware(c.opts.middleware...))
	}
	sess := NewSession(ch, sopts...)

	hctx, cancel := c.callContext(ctx)
	defer cancel()
	if _, err := sess.Handshake(hctx); err != nil {
		_ = sess.Close()
		c.mu.Lock()
		owned := c.attempt == att && c.ch == ch
		if owned {
			c.ch = nil
		}
		c.mu.Unlock()
		// A disconnect that raced the handshake already took and closed
		// the channel.
		if owned {
			if cerr := ch.Close(); cerr != nil {
				c.opts.logger.Warn("closing channel after failed handshake", "error", cerr)
			}
		}
		return err
	}

	c.mu.Lock()
	if c.attempt != att || c.ch != ch {
		c.mu.Unlock()
		_ = sess.Close()
		return errConnectAborted
	}
	c.session = sess
	c.mu.Unlock()
	return nil
}

// Disconnect tears the connection down: session first, then channel,
// with secondary errors logged rather than raised. An in-flight connect
// is superseded: it notices on its next publish point, closes its own
// channel, and reports errConnectAborted to its waiters. The client
// returns to Unconnected and may connect again. Safe to call in any
// state.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.state == StateUnconnected || c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	sess, ch := c.session, c.ch
	c.session, c.ch = nil, nil
	c.attempt = nil
	c.mu.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			c.opts.logger.Warn("closing session", "error", err)
		}
	}
	if ch != nil {
		if err := ch.Close(); err != nil {
			c.opts.logger.Warn("closing channel", "error", err)
		}
	}

	c.mu.Lock()
	// A Connect that started while we were tearing down owns the state
	// now.
	if c.attempt == nil && c.state == StateClosing {
		c.state = StateUnconnected
	}
	c.mu.Unlock()
	return nil
}

// Close disconnects and retires the client permanently.
func (c *Client) Close() error {
	err := c.Disconnect()
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	return err
}

// ListTools lists the server's tools, connecting first when necessary.
func (c *Client) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	sess, err := c.readySession(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	return sess.ListTools(ctx)
}

// CallTool invokes a tool, connecting first when necessary.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	sess, err := c.readySession(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	return sess.CallTool(ctx, name, args)
}

// Ping checks server liveness, connecting first when necessary.
func (c *Client) Ping(ctx context.Context) error {
	sess, err := c.readySession(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	return sess.Ping(ctx)
}

// readySession returns the live session, connecting implicitly when the
// client is not Ready.
func (c *Client) readySession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if c.state == StateReady && c.session != nil {
		sess := c.session
		c.mu.Unlock()
		return sess, nil
	}
	c.mu.Unlock()

	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, errors.New("not connected")
	}
	return c.session, nil
}

// callContext applies the default per-call timeout when the caller has
// not set a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	timeout := c.opts.timeout
	if timeout <= 0 {
		timeout = c.endpoint.Timeout
	}
	if timeout <= 0 {
		timeout = transport.DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
