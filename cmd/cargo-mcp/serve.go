package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/AltairaLabs/async-cargo-mcp/internal/cargo"
	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
	"github.com/AltairaLabs/async-cargo-mcp/internal/monitor"
	"github.com/AltairaLabs/async-cargo-mcp/internal/rpc"
	"github.com/AltairaLabs/async-cargo-mcp/internal/server"
	"github.com/AltairaLabs/async-cargo-mcp/internal/shellpool"
)

const (
	flagHTTP              = "http"
	flagHTTPPort          = "http-port"
	flagGRPCPort          = "grpc-port"
	flagTimeout           = "timeout"
	flagEnableWait        = "enable-wait"
	flagDisableShellPools = "disable-shell-pools"
	flagMaxShells         = "max-shells"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server",
	Long: `Run the MCP server over stdio, or over HTTP/SSE with --http.

Settings are layered: defaults, then --config, then environment
(CARGO_MCP_TIMEOUT, CARGO_MCP_SHELL_POOL, CARGO_MCP_MAX_SHELLS,
CARGO_MCP_ENABLE_WAIT, GRPC_PORT, HTTP_PORT), then flags.

With --grpc-port the operations API (wait, status, cancel, stats) and the
gRPC health service are served as well.`,
	RunE: runServe,
}

func init() {
	addServeFlags(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Bool(flagHTTP, false, "Serve MCP over HTTP/SSE instead of stdio")
	f.String(flagHTTPPort, config.DefaultHTTPPort, "HTTP port for --http")
	f.String(flagGRPCPort, "", "Serve the operations gRPC API on this port")
	f.Int(flagTimeout, 0, "Default operation timeout in seconds")
	f.Bool(flagEnableWait, true, "Register the wait tool")
	f.Bool(flagDisableShellPools, false, "Spawn every command directly instead of using pooled shells")
	f.Int(flagMaxShells, 0, "Maximum number of pooled shells across all directories")
}

// loadConfig layers explicitly set flags over the file and environment
func loadConfig(flags *pflag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}

	if flags.Changed(flagHTTP) {
		cfg.Server.HTTPMode, _ = flags.GetBool(flagHTTP)
	}
	if flags.Changed(flagHTTPPort) {
		cfg.Server.HTTPPort, _ = flags.GetString(flagHTTPPort)
	}
	if flags.Changed(flagGRPCPort) {
		cfg.Server.GRPCPort, _ = flags.GetString(flagGRPCPort)
	}
	if flags.Changed(flagTimeout) {
		secs, _ := flags.GetInt(flagTimeout)
		if secs <= 0 {
			return cfg, fmt.Errorf("--%s must be positive, got %d", flagTimeout, secs)
		}
		cfg.Monitor.DefaultTimeout = time.Duration(secs) * time.Second
		cfg.ShellPool.CommandTimeout = cfg.Monitor.DefaultTimeout
	}
	if flags.Changed(flagEnableWait) {
		cfg.Server.EnableWait, _ = flags.GetBool(flagEnableWait)
	}
	if disabled, _ := flags.GetBool(flagDisableShellPools); disabled {
		cfg.ShellPool.Enabled = false
	}
	if flags.Changed(flagMaxShells) {
		cfg.ShellPool.MaxTotalShells, _ = flags.GetInt(flagMaxShells)
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(debugLogging)

	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		return err
	}

	logger.Info("Starting cargo MCP server",
		"version", cfg.Server.Version,
		"debug", debugLogging,
		"http_mode", cfg.Server.HTTPMode,
		"grpc_port", cfg.Server.GRPCPort,
		"shell_pools", cfg.ShellPool.Enabled,
		"enable_wait", cfg.Server.EnableWait,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mon := monitor.New(cfg.Monitor, logger)
	mon.StartCleanup(ctx)
	defer mon.Shutdown()

	shells := shellpool.NewManager(cfg.ShellPool, logger)
	shells.Start(ctx)
	defer shells.Shutdown()

	var source cargo.ShellSource
	if shells.Enabled() {
		source = shells
	}
	runner := cargo.NewRunner(source, cfg.Monitor.DefaultTimeout, logger)
	mcpServer := server.NewMCPServer(cfg.Server, mon, runner, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	grpcDone := make(chan struct{})
	if cfg.Server.GRPCPort != "" {
		ops := rpc.NewServer(mon, shells, cfg.Server.WaitTimeout, logger)
		go func() {
			defer close(grpcDone)
			if err := ops.Serve(ctx, ":"+cfg.Server.GRPCPort); err != nil {
				logger.Error("gRPC server error", "error", err)
				cancel()
			}
		}()
	} else {
		close(grpcDone)
	}

	if cfg.Server.HTTPMode {
		err = mcpServer.ServeHTTP(ctx, ":"+cfg.Server.HTTPPort)
	} else {
		err = mcpServer.Serve(ctx)
	}
	stopped := ctx.Err() != nil
	if err != nil && !stopped {
		logger.Error("MCP server error", "error", err)
	}

	logger.Info("Shutting down gracefully")
	cancel()
	<-grpcDone

	if stopped {
		// a listener interrupted by shutdown is not an error
		return nil
	}
	return err
}
