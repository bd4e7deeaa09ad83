package protocol

// MCP protocol version spoken by this client.
const MCPVersion = "2024-11-05"

// MCP method names used by the client.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
	MethodPing        = "ping"
)

// MCP notification methods the server may emit.
const (
	MethodProgress   = "notifications/progress"
	MethodLogMessage = "notifications/message"
)
