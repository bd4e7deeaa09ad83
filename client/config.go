package client

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/felixgeelhaar/mcp-client-go/auth"
	"github.com/felixgeelhaar/mcp-client-go/transport"
)

// Config carries environment-derived connection settings.
type Config struct {
	// ServerURL is the MCP endpoint. ENV: MCP_SERVER_URL
	ServerURL string `env:"MCP_SERVER_URL,default=http://localhost:3000/mcp"`
	// BearerToken authenticates requests. ENV: MCP_BEARER_TOKEN
	BearerToken string `env:"MCP_BEARER_TOKEN,default=sk-1234"`
	// Transport selects the channel kind ("http", "sse", "ws").
	// ENV: MCP_TRANSPORT
	Transport string `env:"MCP_TRANSPORT,default=http"`
	// Timeout bounds channel opens and individual calls.
	// ENV: MCP_TIMEOUT
	Timeout time.Duration `env:"MCP_TIMEOUT,default=60s"`
}

// ConfigFromEnv populates a Config from the environment, falling back
// to the struct tag defaults.
func ConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}

// Endpoint converts the config into a transport endpoint.
func (c *Config) Endpoint() (transport.Endpoint, error) {
	kind, err := transport.ParseKind(c.Transport)
	if err != nil {
		return transport.Endpoint{}, err
	}
	return transport.Endpoint{
		URL:     c.ServerURL,
		Kind:    kind,
		Timeout: c.Timeout,
	}, nil
}

// Credential derives the auth credential: a bearer credential when a
// token is configured, nil otherwise.
func (c *Config) Credential() *auth.Credential {
	if c.BearerToken == "" {
		return nil
	}
	return auth.NewCredential(auth.SchemeBearer, c.BearerToken)
}
