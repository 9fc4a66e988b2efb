package lock

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

type mockCanceller struct {
	cancelled map[string][]string
}

func (m *mockCanceller) CancelByWorkingDirectory(dir string) []string {
	return m.cancelled[dir]
}

func request(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func TestRemediationHandler(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "target", "debug", ".cargo-lock")
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(lockPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewHandler(&mockCanceller{cancelled: map[string][]string{dir: {"op_build_1"}}}, nil, nil)
	result, err := h.Handle(context.Background(), request(map[string]any{
		paramWorkingDirectory: dir,
		paramDeleteLocks:      true,
	}))
	if err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Expected success, got %+v", result.Content)
	}

	text := result.Content[0].(mcp.TextContent).Text
	for _, want := range []string{"op_build_1", "stale", "Removed 1 lock file"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in:\n%s", want, text)
		}
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("Expected the stale lock to be removed")
	}
}

func TestRemediationHandlerValidation(t *testing.T) {
	h := NewHandler(&mockCanceller{}, nil, nil)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing directory", map[string]any{}},
		{"not a directory", map[string]any{paramWorkingDirectory: "/definitely/not/here"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.Handle(context.Background(), request(tt.args))
			if err != nil {
				t.Fatalf("Handler returned error: %v", err)
			}
			if !result.IsError {
				t.Error("Expected an error result")
			}
		})
	}
}
