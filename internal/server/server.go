// Package server exposes the cargo tools and the operation tools over MCP
package server

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AltairaLabs/async-cargo-mcp/internal/callback"
	"github.com/AltairaLabs/async-cargo-mcp/internal/cargo"
	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
	"github.com/AltairaLabs/async-cargo-mcp/internal/monitor"
	"github.com/AltairaLabs/async-cargo-mcp/internal/tools"
	"github.com/AltairaLabs/async-cargo-mcp/internal/tools/handlers/command"
	"github.com/AltairaLabs/async-cargo-mcp/internal/tools/handlers/lock"
	"github.com/AltairaLabs/async-cargo-mcp/internal/tools/handlers/operations"
)

const instructions = "Run cargo through these tools instead of a terminal. Long builds and tests should be " +
	"started with enable_async_notification=true; keep working while they run, use status for cheap checks " +
	"and wait with explicit operation_ids when blocked on the result."

// MCPServer wraps the mcp-go server with the operation monitor and runner
type MCPServer struct {
	server   *server.MCPServer
	registry *tools.ToolHandlerRegistry
	monitor  *monitor.Monitor
	runner   *cargo.Runner
	cfg      config.ServerConfig
	logger   *slog.Logger
}

// NewMCPServer creates and configures a new MCP server
func NewMCPServer(cfg config.ServerConfig, mon *monitor.Monitor, runner *cargo.Runner, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	ms := &MCPServer{
		server:  mcpServer,
		monitor: mon,
		runner:  runner,
		cfg:     cfg,
		logger:  logger,
	}
	ms.registry = ms.newRegistry()
	ms.registry.AddTo(mcpServer)

	logger.Info("MCP tools registered",
		"tools", len(ms.registry.Names()),
		"wait_enabled", cfg.EnableWait,
	)
	return ms
}

func (ms *MCPServer) newRegistry() *tools.ToolHandlerRegistry {
	r := tools.NewToolHandlerRegistry()

	ids := &command.IDSource{}
	for _, cmd := range cargo.Commands() {
		r.RegisterHandler(command.NewHandler(cmd, ms.monitor, ms.runner, ids, ms.senderFor, ms.logger))
	}

	if ms.cfg.EnableWait {
		r.RegisterHandler(operations.NewWaitHandler(ms.monitor, ms.cfg.WaitTimeout))
	}
	r.RegisterHandler(operations.NewStatusHandler(ms.monitor))
	r.RegisterHandler(operations.NewCancelHandler(ms.monitor))
	r.RegisterHandler(lock.NewHandler(ms.monitor, ms.runner, ms.logger))
	return r
}

// senderFor picks the progress sink of a tool call. Async calls always
// notify the client; sync calls only when the client asked for progress.
func (ms *MCPServer) senderFor(ctx context.Context, request mcp.CallToolRequest) callback.Sender {
	var token mcp.ProgressToken
	if request.Params.Meta != nil {
		token = request.Params.Meta.ProgressToken
	}
	async := request.GetBool(command.ParamAsync, false)
	if token == nil && !async {
		return callback.NewLogging(request.Params.Name, ms.logger)
	}
	return NewMCPSender(ctx, ms.server, token, ms.logger)
}

// Registry returns the tool handler registry
func (ms *MCPServer) Registry() *tools.ToolHandlerRegistry {
	return ms.registry
}

// Server returns the underlying mcp-go server for serving
func (ms *MCPServer) Server() *server.MCPServer {
	return ms.server
}
