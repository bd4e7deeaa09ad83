// Package protocol defines the MCP JSON-RPC 2.0 message types and error
// codes shared by the transports and the client.
//
// The package is deliberately low-level: it owns the wire envelope
// (Request, Response, Error) and the MCP method name constants, nothing
// else. Correlation identifiers are numeric; NewRequest assigns them and
// RequestID recovers them from an inbound message.
//
//	req, _ := protocol.NewRequest(1, protocol.MethodToolsList, nil)
//	data, _ := json.Marshal(req)
//
// Most users should use the client package instead.
package protocol
