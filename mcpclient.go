// Package mcpclient provides a client for MCP (Model Context Protocol) servers.
//
// mcp-client-go aims to make talking to MCP servers as simple as making
// an HTTP request, providing:
//   - A session lifecycle that handles the initialize handshake for you
//   - Pluggable transports (streamable HTTP, SSE, WebSocket)
//   - Gin-style middleware chains on outgoing calls
//   - Client-side input validation against advertised tool schemas
//
// Basic usage:
//
//	cred := mcpclient.NewBearerCredential("sk-1234")
//	c := mcpclient.New(mcpclient.Endpoint{
//	    URL:  "http://localhost:3000/mcp",
//	    Kind: mcpclient.KindStreamableHTTP,
//	}, cred)
//	defer c.Close()
//
//	tools, err := c.ListTools(ctx)
//	if err != nil {
//	    return err
//	}
//
//	result, err := c.CallTool(ctx, "echo", map[string]any{"message": "hi"})
package mcpclient

import (
	"github.com/felixgeelhaar/mcp-client-go/auth"
	"github.com/felixgeelhaar/mcp-client-go/client"
	"github.com/felixgeelhaar/mcp-client-go/middleware"
	"github.com/felixgeelhaar/mcp-client-go/transport"
)

// Re-export core types for convenience

// Client is the MCP client instance.
type Client = client.Client

// Option configures a Client.
type Option = client.Option

// State is the client lifecycle state.
type State = client.State

// Lifecycle states.
const (
	StateUnconnected = client.StateUnconnected
	StateConnecting  = client.StateConnecting
	StateHandshaking = client.StateHandshaking
	StateReady       = client.StateReady
	StateClosing     = client.StateClosing
	StateClosed      = client.StateClosed
	StateFailed      = client.StateFailed
)

// Session result types
type ServerInfo = client.ServerInfo
type ToolDescriptor = client.ToolDescriptor
type ToolResult = client.ToolResult
type ContentItem = client.ContentItem
type NotificationHandler = client.NotificationHandler

// Error types
type HandshakeError = client.HandshakeError
type InvocationError = client.InvocationError

// ErrClosed is returned by operations on a permanently closed client.
var ErrClosed = client.ErrClosed

// Configuration
type Config = client.Config

// ConfigFromEnv loads client configuration from MCP_* environment variables.
var ConfigFromEnv = client.ConfigFromEnv

// Client option re-exports.
var (
	WithLogger           = client.WithLogger
	WithTimeout          = client.WithTimeout
	WithClientInfo       = client.WithClientInfo
	WithNotifications    = client.WithNotifications
	WithMiddleware       = client.WithMiddleware
	WithTransportOptions = client.WithTransportOptions
)

// Transport types
type Endpoint = transport.Endpoint
type Kind = transport.Kind
type Channel = transport.Channel
type TransportOption = transport.Option

// Transport kinds.
const (
	KindStreamableHTTP = transport.KindStreamableHTTP
	KindSSE            = transport.KindSSE
	KindWebSocket      = transport.KindWebSocket
)

// Transport option re-exports.
var (
	WithHTTPClient = transport.WithHTTPClient
	WithDialer     = transport.WithDialer
)

// Credential types
type Credential = auth.Credential
type Scheme = auth.Scheme

// Credential schemes.
const (
	SchemeNone   = auth.SchemeNone
	SchemeBearer = auth.SchemeBearer
	SchemeBasic  = auth.SchemeBasic
	SchemeAPIKey = auth.SchemeAPIKey
)

// NewCredential creates a credential for the given scheme.
var NewCredential = auth.NewCredential

// NewBearerCredential creates a bearer-token credential.
func NewBearerCredential(token string) *Credential {
	return auth.NewCredential(auth.SchemeBearer, token)
}

// Middleware types
type Middleware = middleware.Middleware
type CallFunc = middleware.CallFunc

// Middleware re-exports.
var (
	Chain        = middleware.Chain
	DefaultStack = middleware.DefaultStack
	RateLimit    = middleware.RateLimit
	Recover      = middleware.Recover
	Timeout      = middleware.Timeout
	SizeLimit    = middleware.SizeLimit
)

// New creates a client for the given endpoint and credential. A nil
// credential means unauthenticated.
func New(ep Endpoint, cred *Credential, opts ...Option) *Client {
	return client.New(ep, cred, opts...)
}
