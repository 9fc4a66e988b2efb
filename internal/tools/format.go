package tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/AltairaLabs/async-cargo-mcp/internal/monitor"
)

// FormatOperation renders one operation as the block returned by wait and
// by synchronous tool calls
func FormatOperation(op monitor.OperationInfo) string {
	var b strings.Builder

	switch {
	case op.State == monitor.StateCompleted:
		fmt.Fprintf(&b, "OPERATION COMPLETED: '%s'\n", op.ID)
	case op.IsActive():
		fmt.Fprintf(&b, "OPERATION STILL RUNNING: '%s' (%s)\n", op.ID, op.State)
	default:
		fmt.Fprintf(&b, "OPERATION FAILED: '%s' (%s)\n", op.ID, op.State)
	}

	fmt.Fprintf(&b, "Command: %s\n", op.Command)
	if op.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", op.Description)
	}
	if op.WorkingDirectory != "" {
		fmt.Fprintf(&b, "Working Directory: %s\n", op.WorkingDirectory)
	}
	if op.EndTime.IsZero() {
		fmt.Fprintf(&b, "Started: %s (running for %s)\n", FormatClock(op.StartTime), roundSeconds(op.Duration()))
	} else {
		fmt.Fprintf(&b, "Started: %s, Finished: %s (%s)\n",
			FormatClock(op.StartTime), FormatClock(op.EndTime), roundSeconds(op.Duration()))
	}

	if op.Result != nil {
		if op.Result.Success {
			b.WriteString("\nFull Output:\n")
		} else {
			b.WriteString("\nError:\n")
		}
		text := op.Result.Text()
		if strings.TrimSpace(text) == "" {
			text = "(no output)"
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatStatus renders the one-line summary used by the status tool
func FormatStatus(op monitor.OperationInfo) string {
	line := fmt.Sprintf("%s [%s] %s (started %s, %s)",
		op.ID, op.State, op.Command, FormatClock(op.StartTime), roundSeconds(op.Duration()))
	if op.WorkingDirectory != "" {
		line += " in " + op.WorkingDirectory
	}
	return line
}

// PrematureWait returns a concurrency hint when the caller's first wait on
// op came very soon after it started while it still had work left
func PrematureWait(op monitor.OperationInfo) (string, bool) {
	if op.FirstWaitTime.IsZero() {
		return "", false
	}
	gap := op.FirstWaitTime.Sub(op.StartTime)
	if gap < 0 || gap >= ConcurrencyHintThreshold {
		return "", false
	}
	total := op.Duration()
	if total <= gap {
		return "", false
	}
	efficiency := float64(gap) / float64(total) * 100
	return ConcurrencyHint(op.ID, gap, efficiency), true
}

func roundSeconds(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
