// Package transport provides client-side MCP transport channels.
//
// A Channel is a duplex message pipe to an MCP server: Send carries
// client-to-server JSON-RPC payloads, Messages yields server-to-client
// payloads, and Close releases the underlying connection exactly once.
//
// Three variants share the contract, selected by Endpoint.Kind:
//
//   - KindSSE: a hanging GET carrying server-sent events; the server
//     announces a message endpoint in its first event and writes are
//     POSTs to that endpoint.
//   - KindStreamableHTTP: writes are POSTs to the endpoint URL; the
//     response body (JSON or SSE) and an optional hanging GET feed the
//     inbound stream. The negotiated session identifier is available
//     through SessionHolder.
//   - KindWebSocket: a single WebSocket connection.
//
// Open dispatches on the kind:
//
//	ch, err := transport.Open(ctx, transport.Endpoint{
//	    URL:     "http://localhost:3000/mcp",
//	    Kind:    transport.KindStreamableHTTP,
//	    Timeout: 30 * time.Second,
//	}, headers)
//
// All failures surface as *Error with a coarse Kind (timeout, refused,
// protocol mismatch, other) so callers can branch without string
// matching. Open never returns a partially opened channel.
package transport
