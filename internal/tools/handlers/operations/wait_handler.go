// Package operations provides the wait, status and cancel tool handlers
package operations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/async-cargo-mcp/internal/cargo"
	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
	"github.com/AltairaLabs/async-cargo-mcp/internal/monitor"
	"github.com/AltairaLabs/async-cargo-mcp/internal/tools"
)

const (
	paramOperationIDs = "operation_ids"
	paramOperationID  = "operation_id"
	paramTimeoutSecs  = "timeout_secs"
)

// WaitHandler blocks until the requested operations finish
type WaitHandler struct {
	monitor        *monitor.Monitor
	defaultTimeout time.Duration
}

// NewWaitHandler creates a wait handler. A non-positive timeout means the default wait timeout.
func NewWaitHandler(mon *monitor.Monitor, defaultTimeout time.Duration) *WaitHandler {
	if defaultTimeout <= 0 {
		defaultTimeout = config.DefaultWaitTimeout
	}
	return &WaitHandler{monitor: mon, defaultTimeout: defaultTimeout}
}

// Tool returns the MCP definition of wait
func (h *WaitHandler) Tool() mcp.Tool {
	return mcp.NewTool(config.ToolWait,
		mcp.WithDescription("Wait for async cargo operations to finish and return their full output. "+
			"Pass the operation ids returned when the operations were started. "+tools.SyncAddendum),
		mcp.WithArray(paramOperationIDs,
			mcp.Description("Operation ids to wait for; omit to wait for every active operation"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithNumber(paramTimeoutSecs,
			mcp.Description(fmt.Sprintf("Maximum seconds to wait (default %d)", int(h.defaultTimeout.Seconds()))),
		),
	)
}

// Handle waits for the operations. It never returns a tool error: unknown
// ids and timeouts are reported in the text.
func (h *WaitHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := cargo.Args(request.GetArguments())
	ids := args.Strings(paramOperationIDs)

	timeout := h.defaultTimeout
	if secs, ok := args.Int(paramTimeoutSecs); ok && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	var ops []monitor.OperationInfo
	if len(ids) == 0 {
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		ops = h.monitor.WaitForAllOperations(waitCtx)
		cancel()
		if len(ops) == 0 {
			return mcp.NewToolResultText("No active operations to wait for."), nil
		}
	} else {
		ops = h.monitor.WaitForOperations(ctx, ids, timeout)
	}

	return mcp.NewToolResultText(renderWait(ops, timeout)), nil
}

func renderWait(ops []monitor.OperationInfo, timeout time.Duration) string {
	var b strings.Builder

	stillRunning := 0
	for _, op := range ops {
		if op.IsActive() {
			stillRunning++
		}
	}
	if stillRunning > 0 {
		fmt.Fprintf(&b, config.MsgWaitTimedOut, int(timeout.Seconds()))
		fmt.Fprintf(&b, " (%d of %d operations still running).\n%s\n\n", stillRunning, len(ops), config.MsgLockGuidance)
	}

	blocks := make([]string, 0, len(ops))
	var hints []string
	for _, op := range ops {
		blocks = append(blocks, tools.FormatOperation(op))
		if hint, ok := tools.PrematureWait(op); ok {
			hints = append(hints, hint)
		}
	}
	b.WriteString(strings.Join(blocks, "\n\n"))

	if len(hints) > 0 {
		b.WriteString("\n\n")
		b.WriteString(strings.Join(hints, "\n"))
	}
	return b.String()
}
