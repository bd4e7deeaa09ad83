// Command mcpcli connects to an MCP server, lists its tools, and
// optionally invokes one.
//
// Usage:
//
//	mcpcli [-t http|sse|ws] [-url URL] [-v] [tool [json-args]]
//
// Flags override the MCP_SERVER_URL, MCP_TRANSPORT, MCP_BEARER_TOKEN,
// and MCP_TIMEOUT environment variables.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"

	"github.com/felixgeelhaar/mcp-client-go/client"
	"github.com/felixgeelhaar/mcp-client-go/middleware"
	"github.com/felixgeelhaar/mcp-client-go/transport"
)

func main() {
	if err := run(); err != nil {
		slog.Error("mcpcli failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := client.ConfigFromEnv()
	if err != nil {
		return err
	}

	var (
		transportFlag = flag.String("t", cfg.Transport, "transport to use (http, sse, ws)")
		urlFlag       = flag.String("url", cfg.ServerURL, "MCP server URL")
		verbose       = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
	slog.SetDefault(logger)

	cfg.Transport = *transportFlag
	cfg.ServerURL = *urlFlag

	kind, err := transport.ParseKind(cfg.Transport)
	if err != nil {
		return err
	}
	ep := transport.Endpoint{URL: cfg.ServerURL, Kind: kind, Timeout: cfg.Timeout}

	c := client.New(ep, cfg.Credential(),
		client.WithLogger(logger),
		client.WithClientInfo("mcpcli", "0.0.1"),
		client.WithMiddleware(middleware.DefaultStack(logger)...),
		client.WithNotifications(func(method string, params json.RawMessage) {
			logger.Info("notification", "method", method)
		}),
	)
	defer c.Close()

	ctx := context.Background()

	logger.Info("connecting", "url", ep.URL, "transport", kind.String())
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	info := c.ServerInfo()
	logger.Info("connected", "server", info.Name, "version", info.Version)

	if err := c.Ping(ctx); err != nil {
		return err
	}
	logger.Info("ping successful")

	tools, err := c.ListTools(ctx)
	if err != nil {
		return err
	}
	logger.Info("listed tools", "count", len(tools))
	for _, tool := range tools {
		logger.Info("tool", "name", tool.Name, "description", tool.Description)
	}

	if flag.NArg() == 0 {
		return nil
	}

	name := flag.Arg(0)
	args := map[string]any{}
	if flag.NArg() > 1 {
		if err := json.Unmarshal([]byte(flag.Arg(1)), &args); err != nil {
			return fmt.Errorf("parse arguments: %w", err)
		}
	}

	logger.Info("calling tool", "name", name)
	result, err := c.CallTool(ctx, name, args)
	if err != nil {
		return err
	}
	fmt.Println(result.Text())
	return nil
}
