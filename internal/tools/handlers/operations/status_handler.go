package operations

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
	"github.com/AltairaLabs/async-cargo-mcp/internal/monitor"
	"github.com/AltairaLabs/async-cargo-mcp/internal/tools"
)

// recentLimit is how many finished operations the overview lists
const recentLimit = 10

// StatusHandler reports operation state without blocking
type StatusHandler struct {
	monitor *monitor.Monitor

	mu    sync.Mutex
	calls map[string]int
}

// NewStatusHandler creates a status handler
func NewStatusHandler(mon *monitor.Monitor) *StatusHandler {
	return &StatusHandler{
		monitor: mon,
		calls:   make(map[string]int),
	}
}

// Tool returns the MCP definition of status
func (h *StatusHandler) Tool() mcp.Tool {
	return mcp.NewTool(config.ToolStatus,
		mcp.WithDescription("Non-blocking status of one operation, or an overview of active and recent operations. "+
			tools.SyncAddendum),
		mcp.WithString(paramOperationID,
			mcp.Description("Operation id to inspect; omit for an overview"),
		),
	)
}

// Handle returns the status text
func (h *StatusHandler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(request.GetString(paramOperationID, ""))
	if id == "" {
		return mcp.NewToolResultText(h.overview()), nil
	}

	op, ok := h.monitor.Get(id)
	if !ok {
		h.forget(id)
		return mcp.NewToolResultText(fmt.Sprintf(config.MsgOperationNotFound, id)), nil
	}

	text := tools.FormatOperation(op)
	if !op.IsActive() {
		h.forget(id)
		return mcp.NewToolResultText(text), nil
	}
	if count := h.recordCall(id); count >= tools.StatusPollingThreshold {
		text += "\n\n" + tools.StatusPollingHint(count, id)
	}
	return mcp.NewToolResultText(text), nil
}

func (h *StatusHandler) recordCall(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls[id]++
	return h.calls[id]
}

// forget drops the counter of an operation that can no longer be polled
func (h *StatusHandler) forget(id string) {
	h.mu.Lock()
	delete(h.calls, id)
	h.mu.Unlock()
}

func (h *StatusHandler) trackedCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func (h *StatusHandler) overview() string {
	var b strings.Builder

	active := h.monitor.ActiveOperations()
	if len(active) == 0 {
		b.WriteString("No active operations.\n")
	} else {
		fmt.Fprintf(&b, "Active operations (%d):\n", len(active))
		for _, op := range active {
			fmt.Fprintf(&b, "- %s\n", tools.FormatStatus(op))
		}
	}

	recent := h.monitor.History()
	if len(recent) > recentLimit {
		recent = recent[len(recent)-recentLimit:]
	}
	if len(recent) > 0 {
		fmt.Fprintf(&b, "\nRecent operations (%d):\n", len(recent))
		for i := len(recent) - 1; i >= 0; i-- {
			fmt.Fprintf(&b, "- %s\n", tools.FormatStatus(recent[i]))
		}
	}

	stats := h.monitor.Statistics()
	fmt.Fprintf(&b, "\nTracked: %d (running %d, pending %d), success rate %.1f%%, failure rate %.1f%%",
		stats.Total, stats.Running, stats.Pending, stats.SuccessRate(), stats.FailureRate())
	return b.String()
}
