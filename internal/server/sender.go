package server

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AltairaLabs/async-cargo-mcp/internal/callback"
	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
)

// MCPSender delivers progress updates as MCP progress notifications to the
// client session that issued the tool call
type MCPSender struct {
	srv     *server.MCPServer
	session context.Context
	token   mcp.ProgressToken
	seq     atomic.Int64
	logger  *slog.Logger
}

// NewMCPSender creates a sender bound to the client session in ctx. The
// session outlives ctx's cancellation. A nil token means each update uses
// its operation id as the progress token.
func NewMCPSender(ctx context.Context, srv *server.MCPServer, token mcp.ProgressToken, logger *slog.Logger) *MCPSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &MCPSender{
		srv:     srv,
		session: context.WithoutCancel(ctx),
		token:   token,
		logger:  logger,
	}
}

// SendProgress sends one notifications/progress message
func (s *MCPSender) SendProgress(ctx context.Context, update callback.ProgressUpdate) error {
	if err := ctx.Err(); err != nil {
		return &callback.TimeoutError{Detail: err.Error()}
	}

	token := s.token
	if token == nil {
		token = update.OperationID
	}
	params := map[string]any{
		"progressToken": token,
		"progress":      s.seq.Add(1),
		"message":       update.String(),
		"data":          update,
	}

	s.logger.Debug("Sending progress notification",
		"operation_id", update.OperationID,
		"kind", update.Kind,
	)
	if err := s.srv.SendNotificationToClient(s.session, config.MethodProgressNotification, params); err != nil {
		return &callback.SendError{Err: err}
	}
	return nil
}

// ShouldCancel is always false; cancellation goes through the cancel tool
func (s *MCPSender) ShouldCancel() bool { return false }
