// Package command provides the handler shared by every cargo tool
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/async-cargo-mcp/internal/callback"
	"github.com/AltairaLabs/async-cargo-mcp/internal/cargo"
	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
	"github.com/AltairaLabs/async-cargo-mcp/internal/monitor"
	"github.com/AltairaLabs/async-cargo-mcp/internal/tools"
)

// Parameters every cargo tool accepts
const (
	ParamWorkingDirectory = "working_directory"
	ParamAsync            = "enable_async_notification"
	ParamTimeout          = "timeout_secs"
)

const (
	maxRegisterAttempts = 8
	finalResultTimeout  = 5 * time.Second
)

// SenderFactory returns the progress sender for a tool request
type SenderFactory func(ctx context.Context, request mcp.CallToolRequest) callback.Sender

// IDSource hands out op_<command>_<n> ids. One source is shared by all
// command handlers of a server.
type IDSource struct {
	n atomic.Uint64
}

// Next returns a fresh id for command
func (s *IDSource) Next(command string) string {
	return fmt.Sprintf("op_%s_%d", command, s.n.Add(1))
}

// Handler runs one catalog command under the operation monitor
type Handler struct {
	cmd     cargo.Command
	monitor *monitor.Monitor
	runner  *cargo.Runner
	ids     *IDSource
	senders SenderFactory
	logger  *slog.Logger
}

// NewHandler creates a handler for cmd. senders may be nil.
func NewHandler(cmd cargo.Command, mon *monitor.Monitor, runner *cargo.Runner, ids *IDSource, senders SenderFactory, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if ids == nil {
		ids = &IDSource{}
	}
	if senders == nil {
		senders = func(context.Context, mcp.CallToolRequest) callback.Sender { return callback.NoOp{} }
	}
	return &Handler{
		cmd:     cmd,
		monitor: mon,
		runner:  runner,
		ids:     ids,
		senders: senders,
		logger:  logger,
	}
}

// Tool returns the MCP definition of the command
func (h *Handler) Tool() mcp.Tool {
	desc := h.cmd.Description + ". " + tools.AsyncAddendum
	opts := []mcp.ToolOption{mcp.WithDescription(desc)}

	if h.cmd.Internal == nil {
		opts = append(opts, mcp.WithString(ParamWorkingDirectory,
			mcp.Required(),
			mcp.Description("Project directory containing Cargo.toml"),
		))
	} else {
		opts = append(opts, mcp.WithString(ParamWorkingDirectory,
			mcp.Description("Directory the operation is associated with"),
		))
	}
	for _, p := range h.cmd.Params {
		opts = append(opts, paramOption(p))
	}
	opts = append(opts,
		mcp.WithBoolean(ParamAsync,
			mcp.Description("Run in the background and return an operation id immediately"),
		),
		mcp.WithNumber(ParamTimeout,
			mcp.Description("Operation timeout in seconds (default 300)"),
		),
	)
	return mcp.NewTool(h.cmd.Name, opts...)
}

func paramOption(p cargo.Param) mcp.ToolOption {
	props := []mcp.PropertyOption{mcp.Description(p.Description)}
	if p.Required {
		props = append(props, mcp.Required())
	}
	switch p.Kind {
	case cargo.KindBool:
		return mcp.WithBoolean(p.Name, props...)
	case cargo.KindNumber:
		return mcp.WithNumber(p.Name, props...)
	case cargo.KindStrings:
		return mcp.WithArray(p.Name, append(props, mcp.Items(map[string]any{"type": "string"}))...)
	default:
		return mcp.WithString(p.Name, props...)
	}
}

// Handle runs the command synchronously, or in the background when
// enable_async_notification is set
func (h *Handler) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := cargo.Args(request.GetArguments())

	dir := strings.TrimSpace(args.String(ParamWorkingDirectory))
	if h.cmd.Internal == nil || dir != "" {
		if err := checkDir(dir); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%s: %v", config.MsgWorkingDirRequired, err)), nil
		}
	}

	var timeout time.Duration
	if secs, ok := args.Int(ParamTimeout); ok && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	sender := h.senders(ctx, request)
	work, commandLine, err := h.prepare(args, dir, timeout, sender)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := monitor.Request{
		Command:          commandLine,
		Description:      h.cmd.Description,
		Timeout:          timeout,
		WorkingDirectory: dir,
	}

	if args.Bool(ParamAsync) {
		return h.startAsync(ctx, req, sender, work)
	}

	final := h.monitor.ExecuteWithMonitoring(ctx, req, sender, work)
	text := tools.FormatOperation(final)
	if final.State != monitor.StateCompleted {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (h *Handler) prepare(args cargo.Args, dir string, timeout time.Duration, sender callback.Sender) (monitor.WorkFunc, string, error) {
	if h.cmd.Internal != nil {
		work := func(ctx context.Context, _ string, _ *monitor.Token) (string, error) {
			return h.cmd.Internal(ctx, args)
		}
		return work, h.cmd.Name, nil
	}

	argv, err := h.cmd.Argv(args)
	if err != nil {
		return nil, "", err
	}
	commandLine := strings.Join(argv, " ")

	work := func(ctx context.Context, id string, _ *monitor.Token) (string, error) {
		out, err := h.runner.Run(ctx, id, dir, argv, timeout, sender)
		if err != nil {
			var exitErr *cargo.ExitError
			if errors.As(err, &exitErr) {
				return "", fmt.Errorf("%s failed with %w", commandLine, err)
			}
			return "", fmt.Errorf("%s: %w", commandLine, err)
		}
		if text := out.Text(); text != "" {
			return text, nil
		}
		return commandLine + " completed successfully", nil
	}
	return work, commandLine, nil
}

func (h *Handler) startAsync(ctx context.Context, req monitor.Request, sender callback.Sender, work monitor.WorkFunc) (*mcp.CallToolResult, error) {
	id, err := h.register(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// the operation outlives the request but keeps its session for notifications
	go h.runAsync(context.WithoutCancel(ctx), id, sender, work)

	h.logger.Info("Async operation started",
		"operation_id", id,
		"command", req.Command,
		"working_dir", req.WorkingDirectory,
	)
	text := fmt.Sprintf("Operation %s started: %s", id, req.Command)
	if req.WorkingDirectory != "" {
		text += " in " + req.WorkingDirectory
	}
	return mcp.NewToolResultText(text + tools.ToolHint(id, h.cmd.Name)), nil
}

func (h *Handler) register(req monitor.Request) (string, error) {
	for i := 0; i < maxRegisterAttempts; i++ {
		id := h.ids.Next(h.cmd.Name)
		err := h.monitor.RegisterWithID(id, req)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, monitor.ErrDuplicateOperation) {
			return "", err
		}
	}
	return "", fmt.Errorf("could not allocate an operation id for %s", h.cmd.Name)
}

func (h *Handler) runAsync(ctx context.Context, id string, sender callback.Sender, work monitor.WorkFunc) {
	final := h.monitor.ExecuteRegistered(ctx, id, sender, work)

	update := callback.FinalResult(final.ID, final.Command, final.Description, final.WorkingDirectory,
		final.State == monitor.StateCompleted, final.Duration(), tools.FormatOperation(final))

	sendCtx, cancel := context.WithTimeout(ctx, finalResultTimeout)
	defer cancel()
	if err := callback.SendWithRetry(sendCtx, sender, update, callback.DefaultRetryPolicy()); err != nil {
		h.logger.Debug("Final result not delivered", "operation_id", id, "error", err)
	}
	h.logger.Info("Async operation finished",
		"operation_id", id,
		"state", final.State,
		"duration_ms", final.Duration().Milliseconds(),
	)
}

func checkDir(dir string) error {
	if dir == "" {
		return errors.New("no directory given")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
