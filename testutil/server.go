// Package testutil provides an in-process MCP tool server for tests
// and examples. It exposes the same tool set over both the streamable
// HTTP endpoint and the event-stream endpoint, so client behavior can
// be exercised against either transport without a live server.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/mcp-client-go/protocol"
)

const sessionIDHeader = "Mcp-Session-Id"

// Server is an in-process MCP tool server. It serves:
//
//   - POST /mcp      streamable HTTP endpoint (JSON response bodies)
//   - GET  /sse      event-stream endpoint
//   - POST /messages message endpoint announced by /sse
//
// Tools: echo, add, get_current_time, check_auth, and block (which
// never answers, for timeout tests).
type Server struct {
	httpSrv *httptest.Server

	requireAuth bool
	token       string

	mu       sync.Mutex
	streams  map[string]chan []byte
	sessions map[string]bool
}

// Option configures the test server.
type Option func(*Server)

// WithAuthRequired makes every endpoint demand the given bearer token.
func WithAuthRequired(token string) Option {
	return func(s *Server) {
		s.requireAuth = true
		s.token = token
	}
}

// NewServer starts the test server. Callers must Close it.
func NewServer(opts ...Option) *Server {
	s := &Server{
		streams:  make(map[string]chan []byte),
		sessions: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleStreamable)
	mux.HandleFunc("/sse", s.handleSSE)
	mux.HandleFunc("/messages", s.handleSSEMessage)
	s.httpSrv = httptest.NewServer(mux)
	return s
}

// Close shuts the server down.
func (s *Server) Close() {
	s.httpSrv.Close()
}

// URL returns the server base URL.
func (s *Server) URL() string {
	return s.httpSrv.URL
}

// StreamableURL returns the streamable HTTP endpoint URL.
func (s *Server) StreamableURL() string {
	return s.httpSrv.URL + "/mcp"
}

// SSEURL returns the event-stream endpoint URL.
func (s *Server) SSEURL() string {
	return s.httpSrv.URL + "/sse"
}

func (s *Server) authorized(r *http.Request) bool {
	if !s.requireAuth {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+s.token
}

// handleStreamable is the streamable HTTP endpoint: every POST carries
// one message, responses come back as JSON bodies.
func (s *Server) handleStreamable(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req protocol.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		sid := r.Header.Get(sessionIDHeader)
		if sid == "" && req.Method == protocol.MethodInitialize {
			sid = uuid.NewString()
			s.mu.Lock()
			s.sessions[sid] = true
			s.mu.Unlock()
		}
		if sid != "" {
			w.Header().Set(sessionIDHeader, sid)
		}

		if req.IsNotification() {
			w.WriteHeader(http.StatusAccepted)
			return
		}

		resp := s.dispatch(r.Context(), r.Header.Get("Authorization"), &req)
		if resp == nil {
			// The block tool: hold the request until the client gives up.
			<-r.Context().Done()
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)

	case http.MethodGet:
		// No standalone message stream in the test server.
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

	case http.MethodDelete:
		s.mu.Lock()
		delete(s.sessions, r.Header.Get(sessionIDHeader))
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSSE is the event-stream endpoint: the first event announces the
// message endpoint, responses flow back as message events.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sid := uuid.NewString()
	stream := make(chan []byte, 16)
	s.mu.Lock()
	s.streams[sid] = stream
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.streams, sid)
		s.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "event: endpoint\ndata: /messages?sessionId=%s\n\n", sid)
	flusher.Flush()

	for {
		select {
		case msg := <-stream:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// handleSSEMessage accepts POSTs to the announced message endpoint and
// pushes responses onto the session's event stream.
func (s *Server) handleSSEMessage(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sid := r.URL.Query().Get("sessionId")
	s.mu.Lock()
	stream, ok := s.streams[sid]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	var req protocol.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)

	if req.IsNotification() {
		return
	}

	auth := r.Header.Get("Authorization")
	go func() {
		resp := s.dispatch(context.Background(), auth, &req)
		if resp == nil {
			return // block tool stays silent
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return
		}
		select {
		case stream <- data:
		case <-time.After(5 * time.Second):
		}
	}()
}

// dispatch handles one protocol request. A nil response means the
// request is deliberately left unanswered.
func (s *Server) dispatch(ctx context.Context, authHeader string, req *protocol.Request) *protocol.Response {
	switch req.Method {
	case protocol.MethodInitialize:
		return protocol.NewResponse(req.ID, map[string]any{
			"protocolVersion": protocol.MCPVersion,
			"serverInfo": map[string]any{
				"name":    "go-mcp/tools",
				"version": "0.0.1",
			},
			"capabilities": map[string]any{"tools": map[string]any{}},
		})

	case protocol.MethodToolsList:
		return protocol.NewResponse(req.ID, map[string]any{"tools": toolList()})

	case protocol.MethodToolsCall:
		return s.callTool(ctx, authHeader, req)

	case protocol.MethodPing:
		return protocol.NewResponse(req.ID, map[string]any{})

	default:
		return protocol.NewErrorResponse(req.ID, protocol.NewMethodNotFound(req.Method))
	}
}

func toolList() []map[string]any {
	return []map[string]any{
		{
			"name":        "echo",
			"description": "Echoes back the input",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"message": map[string]any{"type": "string", "description": "Message to echo"},
				},
				"required": []string{"message"},
			},
		},
		{
			"name":        "add",
			"description": "Adds two numbers",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"a": map[string]any{"type": "number", "description": "First number"},
					"b": map[string]any{"type": "number", "description": "Second number"},
				},
				"required": []string{"a", "b"},
			},
		},
		{
			"name":        "get_current_time",
			"description": "Get the current time",
			"inputSchema": map[string]any{"type": "object"},
		},
		{
			"name":        "check_auth",
			"description": "Checks for auth calls in the header",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"message": map[string]any{"type": "string", "description": "Message to echo"},
				},
				"required": []string{"message"},
			},
		},
		{
			"name":        "block",
			"description": "Never answers",
			"inputSchema": map[string]any{"type": "object"},
		},
	}
}

func (s *Server) callTool(ctx context.Context, authHeader string, req *protocol.Request) *protocol.Response {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
	}

	text := func(t string) *protocol.Response {
		return protocol.NewResponse(req.ID, map[string]any{
			"content": []map[string]any{{"type": "text", "text": t}},
		})
	}
	failure := func(t string) *protocol.Response {
		return protocol.NewResponse(req.ID, map[string]any{
			"isError": true,
			"content": []map[string]any{{"type": "text", "text": t}},
		})
	}

	switch params.Name {
	case "echo":
		message, ok := params.Arguments["message"].(string)
		if !ok {
			return failure("invalid message argument")
		}
		return text(fmt.Sprintf("Echo: %s", message))

	case "add":
		a, ok1 := params.Arguments["a"].(float64)
		b, ok2 := params.Arguments["b"].(float64)
		if !ok1 || !ok2 {
			return failure("invalid number arguments")
		}
		return text(fmt.Sprintf("The sum of %f and %f is %f.", a, b, a+b))

	case "get_current_time":
		return text(fmt.Sprintf("Time: %s", time.Now().Format(time.RFC3339)))

	case "check_auth":
		message, ok := params.Arguments["message"].(string)
		if !ok {
			return failure("missing required message")
		}
		if !strings.HasPrefix(authHeader, "Bearer ") || strings.TrimPrefix(authHeader, "Bearer ") != "sk-1234" {
			return failure("token not correct")
		}
		return text(fmt.Sprintf("Echoing %s with auth successful", message))

	case "block":
		return nil

	default:
		return protocol.NewErrorResponse(req.ID, protocol.NewNotFound("tool not found: "+params.Name))
	}
}
