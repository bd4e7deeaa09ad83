package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/felixgeelhaar/mcp-client-go/middleware"
	"github.com/felixgeelhaar/mcp-client-go/protocol"
	"github.com/felixgeelhaar/mcp-client-go/schema"
	"github.com/felixgeelhaar/mcp-client-go/transport"
)

// NotificationHandler receives server-initiated notifications.
type NotificationHandler func(method string, params json.RawMessage)

// ServerInfo describes the server that acknowledged the handshake.
type ServerInfo struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	ProtocolVersion string `json:"-"`
}

// ToolDescriptor describes a tool the server exposes.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ToolResult is the outcome of a successful tool invocation.
type ToolResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// ContentItem is one piece of tool result content.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Data string `json:"data,omitempty"`
}

// Text returns the concatenated text content of the result.
func (r *ToolResult) Text() string {
	var out string
	for _, item := range r.Content {
		if item.Type == "text" {
			out += item.Text
		}
	}
	return out
}

// Session speaks the MCP protocol over one open channel. It owns
// request/response correlation; the channel's lifetime belongs to the
// owner of the session.
type Session struct {
	ch     transport.Channel
	logger *slog.Logger
	notify NotificationHandler
	call   middleware.CallFunc

	clientName  string
	clientVer   string
	protocolVer string

	nextID atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan *protocol.Response
	schemas map[string]*schema.Schema
	closed  bool

	done chan struct{}

	serverMu   sync.RWMutex
	serverInfo *ServerInfo
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the session logger. Defaults to
// slog.Default().
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// WithNotificationHandler registers a handler for server-initiated
// notifications. The handler only runs once the handshake has been
// acknowledged; notifications arriving earlier, or with no handler
// registered, are logged and dropped.
func WithNotificationHandler(fn NotificationHandler) SessionOption {
	return func(s *Session) {
		s.notify = fn
	}
}

// WithSessionClientInfo sets the client name and version announced
// during the handshake.
func WithSessionClientInfo(name, version string) SessionOption {
	return func(s *Session) {
		s.clientName = name
		s.clientVer = version
	}
}

// WithSessionMiddleware wraps the outbound call path with the given
// middleware.
func WithSessionMiddleware(mws ...middleware.Middleware) SessionOption {
	return func(s *Session) {
		s.call = middleware.Chain(mws...)(s.call)
	}
}

// NewSession wraps an open channel and starts routing its inbound
// messages. Close the session before closing the channel.
func NewSession(ch transport.Channel, opts ...SessionOption) *Session {
	s := &Session{
		ch:          ch,
		logger:      slog.Default(),
		clientName:  "mcp-client-go",
		clientVer:   "1.0.0",
		protocolVer: protocol.MCPVersion,
		pending:     make(map[int64]chan *protocol.Response),
		schemas:     make(map[string]*schema.Schema),
		done:        make(chan struct{}),
	}
	s.call = s.roundTrip
	for _, opt := range opts {
		opt(s)
	}

	go s.dispatch()
	return s
}

// dispatch routes inbound messages until the channel or the session
// ends.
func (s *Session) dispatch() {
	for {
		select {
		case data, ok := <-s.ch.Messages():
			if !ok {
				// Channel ended under us; in-flight callers observe
				// done and fail as unroutable.
				s.shutdown()
				return
			}
			s.route(data)
		case <-s.done:
			return
		}
	}
}

func (s *Session) route(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Debug("dropping malformed message", "error", err)
		return
	}

	switch {
	case msg.IsResponse():
		s.routeResponse(&msg)
	case msg.Method != "" && len(msg.ID) == 0:
		if s.ServerInfo() == nil {
			s.logger.Debug("dropping notification before handshake", "method", msg.Method)
		} else if s.notify != nil {
			s.notify(msg.Method, msg.Params)
		} else {
			s.logger.Debug("dropping notification", "method", msg.Method)
		}
	case msg.Method != "":
		s.answerServerRequest(&msg)
	default:
		s.logger.Debug("dropping unrecognized message")
	}
}

func (s *Session) routeResponse(msg *protocol.Message) {
	id, ok := protocol.RequestID(msg.ID)
	if !ok {
		s.logger.Debug("dropping response with non-numeric id", "id", string(msg.ID))
		return
	}

	s.mu.Lock()
	waiter, pending := s.pending[id]
	s.mu.Unlock()
	if !pending {
		s.logger.Debug("dropping unmatched response", "id", id)
		return
	}

	resp := &protocol.Response{
		JSONRPC: msg.JSONRPC,
		ID:      msg.ID,
		Result:  msg.Result,
		Error:   msg.Error,
	}
	select {
	case waiter <- resp:
	default:
		s.logger.Debug("dropping duplicate response", "id", id)
	}
}

// answerServerRequest handles the rare server-to-client request. Pings
// get an empty result; anything else is declined.
func (s *Session) answerServerRequest(msg *protocol.Message) {
	var resp *protocol.Response
	if msg.Method == protocol.MethodPing {
		resp = protocol.NewResponse(msg.ID, struct{}{})
	} else {
		resp = protocol.NewErrorResponse(msg.ID, protocol.NewMethodNotFound(msg.Method))
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.ch.Send(context.Background(), data); err != nil {
		s.logger.Debug("failed to answer server request", "method", msg.Method, "error", err)
	}
}

// roundTrip is the innermost call: register the pending entry,
// transmit, wait for the correlated response.
func (s *Session) roundTrip(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	id, ok := protocol.RequestID(req.ID)
	if !ok {
		return nil, fmt.Errorf("request has no numeric id")
	}

	waiter := make(chan *protocol.Response, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, &InvocationError{Kind: InvocationUnroutable, Err: errors.New("session closed")}
	}
	s.pending[id] = waiter
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if err := s.ch.Send(ctx, data); err != nil {
		return nil, err
	}

	select {
	case resp := <-waiter:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, &InvocationError{Kind: InvocationUnroutable, Err: errors.New("session closed")}
	}
}

// request assigns an id and runs the call through the middleware chain.
func (s *Session) request(ctx context.Context, method string, params any) (*protocol.Response, error) {
	req, err := protocol.NewRequest(s.nextID.Add(1), method, params)
	if err != nil {
		return nil, err
	}
	return s.call(ctx, req)
}

// notifyServer sends a notification; no response is expected.
func (s *Session) notifyServer(ctx context.Context, method string, params any) error {
	req, err := protocol.NewNotification(method, params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return s.ch.Send(ctx, data)
}

type initializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	ServerInfo      ServerInfo      `json:"serverInfo"`
	Capabilities    json.RawMessage `json:"capabilities"`
}

// Handshake performs the initialize exchange: it announces the client,
// verifies the acknowledged protocol version, and emits the initialized
// notification. The session is not usable for tool calls until it
// succeeds.
func (s *Session) Handshake(ctx context.Context) (*ServerInfo, error) {
	params := map[string]any{
		"protocolVersion": s.protocolVer,
		"clientInfo": map[string]any{
			"name":    s.clientName,
			"version": s.clientVer,
		},
		"capabilities": map[string]any{},
	}

	resp, err := s.request(ctx, protocol.MethodInitialize, params)
	if err != nil {
		return nil, &HandshakeError{Kind: handshakeKind(err), Err: err}
	}
	if resp.Error != nil {
		return nil, &HandshakeError{Kind: HandshakeRejected, Err: resp.Error}
	}

	var result initializeResult
	if err := resp.UnmarshalResult(&result); err != nil {
		return nil, &HandshakeError{Kind: HandshakeRejected, Err: fmt.Errorf("decode result: %w", err)}
	}
	if result.ProtocolVersion != s.protocolVer {
		return nil, &HandshakeError{Kind: HandshakeVersionMismatch, ServerVersion: result.ProtocolVersion}
	}

	if err := s.notifyServer(ctx, protocol.MethodInitialized, nil); err != nil {
		return nil, &HandshakeError{Kind: handshakeKind(err), Err: err}
	}

	info := &ServerInfo{
		Name:            result.ServerInfo.Name,
		Version:         result.ServerInfo.Version,
		ProtocolVersion: result.ProtocolVersion,
	}
	s.serverMu.Lock()
	s.serverInfo = info
	s.serverMu.Unlock()

	return info, nil
}

func handshakeKind(err error) HandshakeErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return HandshakeTimedOut
	}
	var terr *transport.Error
	if errors.As(err, &terr) && terr.Timeout() {
		return HandshakeTimedOut
	}
	return HandshakeRejected
}

// ServerInfo returns the handshake acknowledgement, or nil before the
// handshake completes.
func (s *Session) ServerInfo() *ServerInfo {
	s.serverMu.RLock()
	defer s.serverMu.RUnlock()
	return s.serverInfo
}

// ListTools returns the tools the server exposes. A server with no
// tools yields an empty slice, not an error. Input schemas are cached
// for client-side argument validation.
func (s *Session) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := s.request(ctx, protocol.MethodToolsList, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("list tools: %w", resp.Error)
	}

	var result struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := resp.UnmarshalResult(&result); err != nil {
		return nil, fmt.Errorf("list tools: decode result: %w", err)
	}

	s.mu.Lock()
	for _, tool := range result.Tools {
		if len(tool.InputSchema) == 0 {
			continue
		}
		if sch, err := schema.FromAny(tool.InputSchema); err == nil {
			s.schemas[tool.Name] = sch
		}
	}
	s.mu.Unlock()

	if result.Tools == nil {
		return []ToolDescriptor{}, nil
	}
	return result.Tools, nil
}

// CallTool invokes a tool by name. Arguments are validated against the
// cached input schema when one is known; unknown arguments pass through
// untouched. Tool-reported failures surface as *InvocationError with
// Kind InvocationToolFailed.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	s.mu.Lock()
	sch := s.schemas[name]
	s.mu.Unlock()
	if sch != nil {
		if err := sch.Validate(args); err != nil {
			return nil, fmt.Errorf("call tool %q: %w", name, err)
		}
	}

	params := map[string]any{"name": name}
	if args != nil {
		params["arguments"] = args
	}

	resp, err := s.request(ctx, protocol.MethodToolsCall, params)
	if err != nil {
		return nil, invocationError(name, err)
	}
	if resp.Error != nil {
		return nil, &InvocationError{
			Kind:          InvocationToolFailed,
			Tool:          name,
			ServerMessage: resp.Error.Message,
			Err:           resp.Error,
		}
	}

	var result ToolResult
	if err := resp.UnmarshalResult(&result); err != nil {
		return nil, fmt.Errorf("call tool %q: decode result: %w", name, err)
	}
	if result.IsError {
		return nil, &InvocationError{
			Kind:          InvocationToolFailed,
			Tool:          name,
			ServerMessage: result.Text(),
		}
	}
	return &result, nil
}

func invocationError(tool string, err error) error {
	var ierr *InvocationError
	if errors.As(err, &ierr) {
		if ierr.Tool == "" {
			ierr.Tool = tool
		}
		return ierr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &InvocationError{Kind: InvocationTimedOut, Tool: tool, Err: err}
	}
	var terr *transport.Error
	if errors.As(err, &terr) && terr.Timeout() {
		return &InvocationError{Kind: InvocationTimedOut, Tool: tool, Err: err}
	}
	return err
}

// Ping checks server liveness.
func (s *Session) Ping(ctx context.Context) error {
	resp, err := s.request(ctx, protocol.MethodPing, nil)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("ping: %w", resp.Error)
	}
	return nil
}

// Close stops the dispatcher and fails every in-flight call as
// unroutable. It does not close the channel; the owner does. Safe to
// call more than once.
func (s *Session) Close() error {
	s.shutdown()
	return nil
}

func (s *Session) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}
