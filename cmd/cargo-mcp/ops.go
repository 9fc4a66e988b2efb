package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AltairaLabs/async-cargo-mcp/internal/rpc"
)

var (
	opsAddr    string
	opsTimeout time.Duration
	opsDir     string
)

var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "Inspect and control operations of a running server over gRPC",
	Long: `Talk to the operations API of a server started with --grpc-port.

Examples:
  cargo-mcp ops status --addr localhost:50051
  cargo-mcp ops wait op_build_1 op_test_2 --timeout 5m
  cargo-mcp ops cancel op_build_1
  cargo-mcp ops cancel --dir /src/project
  cargo-mcp ops stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var opsWaitCmd = &cobra.Command{
	Use:   "wait [operation-id...]",
	Short: "Wait for operations to finish (all active ones when no ids are given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := rpc.Dial(opsAddr)
		if err != nil {
			return err
		}
		defer client.Close()

		ops, err := client.Wait(cmd.Context(), args, opsTimeout)
		if err != nil {
			return err
		}
		printOperations(cmd.OutOrStdout(), ops, true)
		return nil
	},
}

var opsStatusCmd = &cobra.Command{
	Use:   "status [operation-id]",
	Short: "Show one operation or all known operations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := rpc.Dial(opsAddr)
		if err != nil {
			return err
		}
		defer client.Close()

		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		ops, err := client.Status(cmd.Context(), id)
		if err != nil {
			return err
		}
		printOperations(cmd.OutOrStdout(), ops, id != "")
		return nil
	},
}

var opsCancelCmd = &cobra.Command{
	Use:   "cancel [operation-id]",
	Short: "Cancel an operation, or every active operation in --dir",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (len(args) == 1) == (opsDir != "") {
			return fmt.Errorf("give either an operation id or --dir")
		}

		client, err := rpc.Dial(opsAddr)
		if err != nil {
			return err
		}
		defer client.Close()

		var cancelled []string
		if opsDir != "" {
			cancelled, err = client.CancelDirectory(cmd.Context(), opsDir)
		} else {
			cancelled, err = client.Cancel(cmd.Context(), args[0])
		}
		if err != nil {
			return err
		}
		if len(cancelled) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to cancel")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cancelled: %s\n", strings.Join(cancelled, ", "))
		return nil
	},
}

var opsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show operation and shell pool statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := rpc.Dial(opsAddr)
		if err != nil {
			return err
		}
		defer client.Close()

		stats, err := client.Stats(cmd.Context())
		if err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), stats, "")
		return nil
	},
}

func init() {
	opsCmd.PersistentFlags().StringVar(&opsAddr, "addr", "localhost:50051", "Address of the operations gRPC API")
	opsWaitCmd.Flags().DurationVar(&opsTimeout, "timeout", 5*time.Minute, "How long to wait")
	opsCancelCmd.Flags().StringVar(&opsDir, "dir", "", "Cancel every active operation in this working directory")

	opsCmd.AddCommand(opsWaitCmd, opsStatusCmd, opsCancelCmd, opsStatsCmd)
}

func printOperations(w io.Writer, ops []rpc.Operation, verbose bool) {
	if len(ops) == 0 {
		fmt.Fprintln(w, "No operations")
		return
	}
	for _, op := range ops {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			op.ID, op.State, op.Command, op.Duration.Round(100*time.Millisecond), op.WorkingDirectory)
		if !verbose {
			continue
		}
		if op.Output != "" {
			fmt.Fprintln(w, op.Output)
		}
		if op.Error != "" {
			fmt.Fprintf(w, "error: %s\n", op.Error)
		}
	}
}

func printStats(w io.Writer, stats map[string]any, indent string) {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if nested, ok := stats[k].(map[string]any); ok {
			fmt.Fprintf(w, "%s%s:\n", indent, k)
			printStats(w, nested, indent+"  ")
			continue
		}
		fmt.Fprintf(w, "%s%s: %v\n", indent, k, stats[k])
	}
}
