package operations

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
	"github.com/AltairaLabs/async-cargo-mcp/internal/monitor"
)

// CancelHandler cancels a running operation
type CancelHandler struct {
	monitor *monitor.Monitor
}

// NewCancelHandler creates a cancel handler
func NewCancelHandler(mon *monitor.Monitor) *CancelHandler {
	return &CancelHandler{monitor: mon}
}

// Tool returns the MCP definition of cancel
func (h *CancelHandler) Tool() mcp.Tool {
	return mcp.NewTool(config.ToolCancel,
		mcp.WithDescription("Cancel a pending or running operation"),
		mcp.WithString(paramOperationID,
			mcp.Required(),
			mcp.Description("Operation id to cancel"),
		),
	)
}

// Handle cancels the operation
func (h *CancelHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString(paramOperationID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	err = h.monitor.Cancel(id)
	switch {
	case err == nil:
		return mcp.NewToolResultText(fmt.Sprintf("Operation %s cancelled", id)), nil
	case errors.Is(err, monitor.ErrInvalidTransition):
		op, _ := h.monitor.Get(id)
		return mcp.NewToolResultError(fmt.Sprintf("Operation %s already finished (%s)", id, op.State)), nil
	case errors.Is(err, monitor.ErrOperationNotFound):
		if op, ok := h.monitor.Get(id); ok {
			return mcp.NewToolResultError(fmt.Sprintf("Operation %s already finished (%s)", id, op.State)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf(config.MsgOperationNotFound, id)), nil
	default:
		return mcp.NewToolResultError(err.Error()), nil
	}
}
