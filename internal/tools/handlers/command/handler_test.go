package command

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/async-cargo-mcp/internal/callback"
	"github.com/AltairaLabs/async-cargo-mcp/internal/cargo"
	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
	"github.com/AltairaLabs/async-cargo-mcp/internal/monitor"
)

type recordingSender struct {
	mu      sync.Mutex
	updates []callback.ProgressUpdate
}

func (r *recordingSender) SendProgress(_ context.Context, u callback.ProgressUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return nil
}

func (r *recordingSender) ShouldCancel() bool { return false }

func (r *recordingSender) find(kind callback.Kind) (callback.ProgressUpdate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.updates {
		if u.Kind == kind {
			return u, true
		}
	}
	return callback.ProgressUpdate{}, false
}

func newTestMonitor(t *testing.T) *monitor.Monitor {
	t.Helper()
	cfg := config.DefaultMonitorConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.DefaultTimeout = 10 * time.Second
	cfg.AutoCleanup = false
	m := monitor.New(cfg, nil)
	t.Cleanup(m.Shutdown)
	return m
}

func shellCommand(script string) cargo.Command {
	return cargo.Command{
		Name:        "script",
		Description: "Run a shell script",
		Argv: func(cargo.Args) ([]string, error) {
			return []string{"sh", "-c", script}, nil
		},
	}
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("expected content in result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return text.Text
}

func TestHandleSyncSuccess(t *testing.T) {
	m := newTestMonitor(t)
	rec := &recordingSender{}
	h := NewHandler(shellCommand("echo hello"), m, cargo.NewRunner(nil, 0, nil), nil,
		func(context.Context, mcp.CallToolRequest) callback.Sender { return rec }, nil)

	result, err := h.Handle(context.Background(), callRequest("script", map[string]any{
		ParamWorkingDirectory: t.TempDir(),
	}))
	if err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Expected success, got %s", resultText(t, result))
	}

	text := resultText(t, result)
	if !strings.Contains(text, "OPERATION COMPLETED") || !strings.Contains(text, "hello") {
		t.Errorf("Unexpected output:\n%s", text)
	}
	if ops := m.CompletedOperations(); len(ops) != 1 || ops[0].Command != "sh -c echo hello" {
		t.Errorf("Expected one completed operation, got %+v", ops)
	}
	if _, ok := rec.find(callback.KindStarted); !ok {
		t.Error("Expected a started update")
	}
	if _, ok := rec.find(callback.KindOutput); !ok {
		t.Error("Expected output lines to be forwarded")
	}
}

func TestHandleSyncFailure(t *testing.T) {
	m := newTestMonitor(t)
	h := NewHandler(shellCommand("echo boom >&2; exit 3"), m, cargo.NewRunner(nil, 0, nil), nil, nil, nil)

	result, err := h.Handle(context.Background(), callRequest("script", map[string]any{
		ParamWorkingDirectory: t.TempDir(),
	}))
	if err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if !result.IsError {
		t.Fatal("Expected an error result")
	}

	text := resultText(t, result)
	for _, want := range []string{"OPERATION FAILED", "exit code 3", "boom"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output:\n%s", want, text)
		}
	}
}

func TestHandleWorkingDirectoryValidation(t *testing.T) {
	m := newTestMonitor(t)
	h := NewHandler(shellCommand("true"), m, cargo.NewRunner(nil, 0, nil), nil, nil, nil)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing", map[string]any{}},
		{"blank", map[string]any{ParamWorkingDirectory: "  "}},
		{"nonexistent", map[string]any{ParamWorkingDirectory: "/definitely/not/here"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.Handle(context.Background(), callRequest("script", tt.args))
			if err != nil {
				t.Fatalf("Handler returned error: %v", err)
			}
			if !result.IsError || !strings.Contains(resultText(t, result), "working_directory is required") {
				t.Errorf("Expected working directory error, got %s", resultText(t, result))
			}
		})
	}
	if len(m.GetOperations(nil)) != 0 {
		t.Error("Rejected calls must not register operations")
	}
}

func TestHandleArgumentError(t *testing.T) {
	add, ok := cargo.Lookup(config.ToolAdd)
	if !ok {
		t.Fatal("add missing from catalog")
	}
	h := NewHandler(add, newTestMonitor(t), nil, nil, nil, nil)

	result, _ := h.Handle(context.Background(), callRequest(config.ToolAdd, map[string]any{
		ParamWorkingDirectory: t.TempDir(),
	}))
	if !result.IsError || !strings.Contains(resultText(t, result), "dependency") {
		t.Errorf("Expected missing dependency error, got %s", resultText(t, result))
	}
}

func TestHandleAsync(t *testing.T) {
	sleep, _ := cargo.Lookup(config.ToolSleep)
	m := newTestMonitor(t)
	rec := &recordingSender{}
	h := NewHandler(sleep, m, nil, nil,
		func(context.Context, mcp.CallToolRequest) callback.Sender { return rec }, nil)

	result, err := h.Handle(context.Background(), callRequest(config.ToolSleep, map[string]any{
		"duration_secs": float64(0),
		ParamAsync:      true,
	}))
	if err != nil || result.IsError {
		t.Fatalf("Expected async start, got %v / %s", err, resultText(t, result))
	}

	text := resultText(t, result)
	if !strings.Contains(text, "op_sleep_1") || !strings.Contains(text, "ASYNC CARGO OPERATION: sleep") {
		t.Errorf("Expected id and tool hint, got:\n%s", text)
	}

	op := m.WaitForOperation(context.Background(), "op_sleep_1")
	if op.State != monitor.StateCompleted || op.Result.Output != "Slept for 0 seconds" {
		t.Fatalf("Unexpected final record %+v", op)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if u, ok := rec.find(callback.KindFinalResult); ok {
			if !u.Success || !strings.Contains(u.FullOutput, "Slept for 0 seconds") {
				t.Errorf("Unexpected final result %+v", u)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Final result was never sent")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandleAsyncTimeout(t *testing.T) {
	sleep, _ := cargo.Lookup(config.ToolSleep)
	m := newTestMonitor(t)
	h := NewHandler(sleep, m, nil, nil, nil, nil)

	result, _ := h.Handle(context.Background(), callRequest(config.ToolSleep, map[string]any{
		"duration_secs": float64(30),
		ParamTimeout:    float64(1),
		ParamAsync:      true,
	}))
	if result.IsError {
		t.Fatalf("Expected async start, got %s", resultText(t, result))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	op := m.WaitForOperation(ctx, "op_sleep_1")
	if op.State != monitor.StateTimedOut {
		t.Fatalf("Expected timed out operation, got %s", op.State)
	}
	if op.Result.Error != config.MsgOperationTimedOut {
		t.Errorf("Expected timeout message, got %q", op.Result.Error)
	}
}

func TestHandleAsyncSkipsTakenIDs(t *testing.T) {
	sleep, _ := cargo.Lookup(config.ToolSleep)
	m := newTestMonitor(t)
	if err := m.RegisterWithID("op_sleep_1", monitor.Request{Command: "taken"}); err != nil {
		t.Fatal(err)
	}
	h := NewHandler(sleep, m, nil, nil, nil, nil)

	result, _ := h.Handle(context.Background(), callRequest(config.ToolSleep, map[string]any{
		"duration_secs": float64(0),
		ParamAsync:      true,
	}))
	if !strings.Contains(resultText(t, result), "op_sleep_2") {
		t.Errorf("Expected the next free id, got %s", resultText(t, result))
	}
	m.WaitForOperation(context.Background(), "op_sleep_2")
}

func TestTool(t *testing.T) {
	build, _ := cargo.Lookup(config.ToolBuild)
	tool := NewHandler(build, nil, nil, nil, nil, nil).Tool()

	if tool.Name != config.ToolBuild {
		t.Errorf("Expected tool name %s, got %s", config.ToolBuild, tool.Name)
	}
	required := strings.Join(tool.InputSchema.Required, ",")
	if !strings.Contains(required, ParamWorkingDirectory) {
		t.Errorf("Expected working_directory to be required, got %v", tool.InputSchema.Required)
	}
	for _, prop := range []string{ParamAsync, ParamTimeout, "features", "release"} {
		if _, ok := tool.InputSchema.Properties[prop]; !ok {
			t.Errorf("Expected property %s", prop)
		}
	}

	sleep, _ := cargo.Lookup(config.ToolSleep)
	sleepTool := NewHandler(sleep, nil, nil, nil, nil, nil).Tool()
	for _, r := range sleepTool.InputSchema.Required {
		if r == ParamWorkingDirectory {
			t.Error("sleep must not require a working directory")
		}
	}
}

func TestIDSource(t *testing.T) {
	var ids IDSource
	got := []string{ids.Next("build"), ids.Next("build"), ids.Next("test")}
	want := []string{"op_build_1", "op_build_2", "op_test_3"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %s, got %s", want[i], got[i])
		}
	}
}
