package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
)

var (
	debugLogging bool
	configPath   string
)

var rootCmd = &cobra.Command{
	Use:   "cargo-mcp",
	Short: "MCP server running cargo commands with async notifications",
	Long: `cargo-mcp exposes cargo build, test, check and friends as MCP tools.

Commands can run synchronously or in the background. Background operations
report progress through MCP notifications and are collected with the wait tool.

Running without a subcommand is the same as "cargo-mcp serve".`,
	SilenceUsage: true,
	RunE:         runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.DefaultServerConfig()
		fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", cfg.Name, cfg.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a TOML config file")

	addServeFlags(rootCmd)
	rootCmd.AddCommand(serveCmd, versionCmd, shellWorkerCmd, opsCmd)
}

// newLogger writes JSON logs to stderr; stdout carries the MCP stdio transport
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}
