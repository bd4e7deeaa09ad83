// Package client connects to MCP servers over interchangeable
// transports.
//
// Client is the entry point: it owns the connection lifecycle
// (Unconnected through Ready to Closed), derives auth headers from a
// Credential, and tears everything down exactly once no matter how the
// connection ends. Session underneath speaks the protocol itself:
// request/response correlation, the initialize handshake, tool listing
// and invocation.
//
//	ep := transport.Endpoint{URL: "http://localhost:3000/mcp", Kind: transport.KindStreamableHTTP}
//	cred := auth.NewCredential(auth.SchemeBearer, token)
//	c := client.New(ep, cred)
//	defer c.Close()
//
//	result, err := c.CallTool(ctx, "echo", map[string]any{"message": "hi"})
//
// Calls on a client that is not yet Ready connect implicitly. Failures
// carry types: *transport.Error for wire problems, *HandshakeError for
// initialize failures, *InvocationError for tool failures, so callers
// branch with errors.As instead of string matching.
package client
