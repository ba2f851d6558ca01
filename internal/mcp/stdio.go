// ABOUTME: MCP stdio server built on the official Go SDK
// ABOUTME: Registers every registry tool and forwards calls to the shared dispatcher

package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389/agentmcp/internal/tools"
)

// StdioConfig configures a StdioServer.
type StdioConfig struct {
	Dispatcher *tools.Dispatcher
	// DefaultAPIKey is used when a call carries no api_key argument.
	DefaultAPIKey string
	Logger        *slog.Logger
}

// StdioServer serves the tools to a single client over stdin/stdout.
type StdioServer struct {
	server        *sdkmcp.Server
	dispatcher    *tools.Dispatcher
	defaultAPIKey string
	logger        *slog.Logger
}

// NewStdioServer creates an SDK server with every tool registered.
func NewStdioServer(cfg StdioConfig) (*StdioServer, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &StdioServer{
		server:        sdkmcp.NewServer(&sdkmcp.Implementation{Name: ServerName, Version: ServerVersion}, nil),
		dispatcher:    cfg.Dispatcher,
		defaultAPIKey: cfg.DefaultAPIKey,
		logger:        logger.With("component", "mcp-stdio"),
	}

	for _, t := range cfg.Dispatcher.Registry().All() {
		s.server.AddTool(&sdkmcp.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema(),
		}, s.handler(t.Name))
	}
	return s, nil
}

func (s *StdioServer) handler(name string) sdkmcp.ToolHandler {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		if s.defaultAPIKey != "" {
			ctx = tools.WithAPIKey(ctx, s.defaultAPIKey)
		}

		var args []byte
		if req != nil && req.Params != nil {
			args = req.Params.Arguments
		}

		env := s.dispatcher.Call(ctx, name, args)
		s.logger.Debug("tool call", "tool", name, "success", env.Success)

		return &sdkmcp.CallToolResult{
			Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(env.JSON())}},
			IsError: !env.Success,
		}, nil
	}
}

// Serve runs on stdio until the client disconnects or ctx ends.
func (s *StdioServer) Serve(ctx context.Context) error {
	return s.ServeTransport(ctx, &sdkmcp.StdioTransport{})
}

// ServeTransport runs on an arbitrary SDK transport.
func (s *StdioServer) ServeTransport(ctx context.Context, transport sdkmcp.Transport) error {
	s.logger.Info("serving MCP over stdio", "tools", len(s.dispatcher.Registry().All()))
	err := s.server.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}
