// Package lock provides the cargo lock remediation tool handler
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/async-cargo-mcp/internal/cargo"
	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
)

const (
	paramWorkingDirectory = "working_directory"
	paramDeleteLocks      = "delete_target_lock_files"
	paramForce            = "force"
	paramCargoClean       = "cargo_clean"
)

// Handler recovers a project whose builds are stuck behind a cargo lock
type Handler struct {
	ops    cargo.Canceller
	runner *cargo.Runner
	logger *slog.Logger
}

// NewHandler creates a remediation handler
func NewHandler(ops cargo.Canceller, runner *cargo.Runner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{ops: ops, runner: runner, logger: logger}
}

// Tool returns the MCP definition of cargo_lock_remediation
func (h *Handler) Tool() mcp.Tool {
	return mcp.NewTool(config.ToolLockRemediation,
		mcp.WithDescription("Cancel operations in a project and clear stale target/**/.cargo-lock files "+
			"left by interrupted builds"),
		mcp.WithString(paramWorkingDirectory,
			mcp.Required(),
			mcp.Description("Project directory containing Cargo.toml"),
		),
		mcp.WithBoolean(paramDeleteLocks,
			mcp.Description("Delete lock files no process holds"),
		),
		mcp.WithBoolean(paramForce,
			mcp.Description("Also delete lock files that are still held"),
		),
		mcp.WithBoolean(paramCargoClean,
			mcp.Description("Run cargo clean afterwards"),
		),
	)
}

// Handle runs the remediation and reports what it did
func (h *Handler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := request.RequireString(paramWorkingDirectory)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if info, statErr := os.Stat(dir); statErr != nil || !info.IsDir() {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", config.MsgWorkingDirRequired, dir)), nil
	}

	opts := cargo.RemediationOptions{
		DeleteLockFiles: request.GetBool(paramDeleteLocks, false),
		Force:           request.GetBool(paramForce, false),
		CargoClean:      request.GetBool(paramCargoClean, false),
	}
	report, err := cargo.Remediate(ctx, dir, h.ops, h.runner, opts, h.logger)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lock remediation failed: %v", err)), nil
	}
	return mcp.NewToolResultText(report.String()), nil
}
