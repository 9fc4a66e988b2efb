package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
	"github.com/AltairaLabs/async-cargo-mcp/internal/rpc"
)

func parseServeFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "serve"}
	addServeFlags(cmd)
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("Failed to parse %v: %v", args, err)
	}
	return cmd
}

func TestLoadConfigDefaults(t *testing.T) {
	configPath = ""
	cfg, err := loadConfig(parseServeFlags(t).Flags())
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Server.HTTPMode || !cfg.Server.EnableWait || !cfg.ShellPool.Enabled {
		t.Errorf("Unexpected defaults %+v", cfg.Server)
	}
	if cfg.Monitor.DefaultTimeout != config.DefaultOperationTimeout {
		t.Errorf("Expected default timeout %v, got %v", config.DefaultOperationTimeout, cfg.Monitor.DefaultTimeout)
	}
}

func TestLoadConfigFlags(t *testing.T) {
	configPath = ""
	cfg, err := loadConfig(parseServeFlags(t,
		"--http", "--http-port", "9090", "--grpc-port", "50051",
		"--timeout", "60", "--enable-wait=false", "--disable-shell-pools", "--max-shells", "4",
	).Flags())
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if !cfg.Server.HTTPMode || cfg.Server.HTTPPort != "9090" || cfg.Server.GRPCPort != "50051" {
		t.Errorf("Unexpected server config %+v", cfg.Server)
	}
	if cfg.Monitor.DefaultTimeout != time.Minute || cfg.ShellPool.CommandTimeout != time.Minute {
		t.Errorf("Expected 60s timeouts, got %v and %v", cfg.Monitor.DefaultTimeout, cfg.ShellPool.CommandTimeout)
	}
	if cfg.Server.EnableWait {
		t.Error("Expected wait to be disabled")
	}
	if cfg.ShellPool.Enabled || cfg.ShellPool.MaxTotalShells != 4 {
		t.Errorf("Unexpected shell pool config %+v", cfg.ShellPool)
	}
}

func TestLoadConfigFileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cargo-mcp.toml")
	data := "[server]\nenable_wait = false\ngrpc_port = \"6000\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	configPath = path
	defer func() { configPath = "" }()

	cfg, err := loadConfig(parseServeFlags(t, "--grpc-port", "7000").Flags())
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Server.EnableWait {
		t.Error("Expected the file to disable wait")
	}
	if cfg.Server.GRPCPort != "7000" {
		t.Errorf("Expected the flag to win, got %s", cfg.Server.GRPCPort)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	configPath = ""
	tests := []struct {
		name string
		args []string
	}{
		{"zero timeout", []string{"--timeout", "0"}},
		{"zero shells", []string{"--max-shells", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadConfig(parseServeFlags(t, tt.args...).Flags()); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	defer versionCmd.SetOut(nil)
	versionCmd.Run(versionCmd, nil)

	if !strings.HasPrefix(out.String(), "async-cargo-mcp v") {
		t.Errorf("Unexpected version output %q", out.String())
	}
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"}, {"version"}, {"shell-worker"},
		{"ops", "wait"}, {"ops", "status"}, {"ops", "cancel"}, {"ops", "stats"},
	} {
		cmd, _, err := rootCmd.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("Expected command %v, got %v (%v)", path, cmd, err)
		}
	}
	if !shellWorkerCmd.Hidden {
		t.Error("shell-worker should be hidden")
	}
}

func TestOpsCancelNeedsOneTarget(t *testing.T) {
	opsDir = ""
	if err := opsCancelCmd.RunE(opsCancelCmd, nil); err == nil {
		t.Error("Expected an error without id or --dir")
	}

	opsDir = "/src/app"
	defer func() { opsDir = "" }()
	if err := opsCancelCmd.RunE(opsCancelCmd, []string{"op_build_1"}); err == nil {
		t.Error("Expected an error with both id and --dir")
	}
}

func TestPrintOperations(t *testing.T) {
	ops := []rpc.Operation{
		{ID: "op_build_1", State: "completed", Command: "cargo build", Duration: 1500 * time.Millisecond, Output: "Finished"},
		{ID: "op_test_2", State: "failed", Command: "cargo test", Error: "exit code 101"},
	}

	var out bytes.Buffer
	printOperations(&out, ops, true)
	for _, want := range []string{"op_build_1\tcompleted\tcargo build\t1.5s", "Finished", "error: exit code 101"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected %q in:\n%s", want, out.String())
		}
	}

	out.Reset()
	printOperations(&out, ops, false)
	if strings.Contains(out.String(), "Finished") {
		t.Error("Output is only printed in verbose mode")
	}

	out.Reset()
	printOperations(&out, nil, false)
	if out.String() != "No operations\n" {
		t.Errorf("Unexpected output %q", out.String())
	}
}

func TestPrintStats(t *testing.T) {
	var out bytes.Buffer
	printStats(&out, map[string]any{
		"total":      float64(3),
		"shell_pool": map[string]any{"enabled": true},
	}, "")

	want := "shell_pool:\n  enabled: true\ntotal: 3\n"
	if out.String() != want {
		t.Errorf("Expected %q, got %q", want, out.String())
	}
}
