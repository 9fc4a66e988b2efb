package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AltairaLabs/async-cargo-mcp/internal/shellpool"
)

// shellWorkerCmd is spawned by the shell pool; it speaks the line protocol
// on stdin/stdout and is not meant to be run by hand
var shellWorkerCmd = &cobra.Command{
	Use:    "shell-worker",
	Short:  "Run a pooled shell worker",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
		defer stop()
		return shellpool.ServeWorker(ctx, os.Stdin, os.Stdout)
	},
}
