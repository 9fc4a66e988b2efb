// Package callback delivers progress events for running cargo operations.
//
// A Sender receives ProgressUpdate values while an operation runs. The
// monitor only requires that a sender, when present, hears about the start
// and the terminal outcome of an operation; a nil Sender is treated as NoOp.
package callback

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies the type of a progress update
type Kind string

const (
	KindStarted     Kind = "started"
	KindProgress    Kind = "progress"
	KindOutput      Kind = "output"
	KindCompleted   Kind = "completed"
	KindFailed      Kind = "failed"
	KindCancelled   Kind = "cancelled"
	KindFinalResult Kind = "final_result"
)

// ProgressUpdate is one progress event. Which fields are meaningful depends on Kind.
type ProgressUpdate struct {
	Kind             Kind          `json:"type"`
	OperationID      string        `json:"operation_id"`
	Command          string        `json:"command,omitempty"`
	Description      string        `json:"description,omitempty"`
	Message          string        `json:"message,omitempty"`
	Percentage       *float64      `json:"percentage,omitempty"`
	CurrentStep      string        `json:"current_step,omitempty"`
	Line             string        `json:"line,omitempty"`
	IsStderr         bool          `json:"is_stderr,omitempty"`
	Error            string        `json:"error,omitempty"`
	WorkingDirectory string        `json:"working_directory,omitempty"`
	Success          bool          `json:"success,omitempty"`
	Duration         time.Duration `json:"duration,omitempty"`
	FullOutput       string        `json:"full_output,omitempty"`
}

// Started builds a KindStarted update
func Started(id, command, description string) ProgressUpdate {
	return ProgressUpdate{Kind: KindStarted, OperationID: id, Command: command, Description: description}
}

// Progress builds a KindProgress update; percentage and step are optional
func Progress(id, message string, percentage *float64, step string) ProgressUpdate {
	return ProgressUpdate{Kind: KindProgress, OperationID: id, Message: message, Percentage: percentage, CurrentStep: step}
}

// Output builds a KindOutput update for one line of subprocess output
func Output(id, line string, isStderr bool) ProgressUpdate {
	return ProgressUpdate{Kind: KindOutput, OperationID: id, Line: line, IsStderr: isStderr}
}

// Completed builds a KindCompleted update
func Completed(id, message string, d time.Duration) ProgressUpdate {
	return ProgressUpdate{Kind: KindCompleted, OperationID: id, Message: message, Duration: d}
}

// Failed builds a KindFailed update
func Failed(id, errMsg string, d time.Duration) ProgressUpdate {
	return ProgressUpdate{Kind: KindFailed, OperationID: id, Error: errMsg, Duration: d}
}

// Cancelled builds a KindCancelled update
func Cancelled(id, message string, d time.Duration) ProgressUpdate {
	return ProgressUpdate{Kind: KindCancelled, OperationID: id, Message: message, Duration: d}
}

// FinalResult builds the comprehensive KindFinalResult update sent when an async operation ends
func FinalResult(id, command, description, dir string, success bool, d time.Duration, fullOutput string) ProgressUpdate {
	return ProgressUpdate{
		Kind:             KindFinalResult,
		OperationID:      id,
		Command:          command,
		Description:      description,
		WorkingDirectory: dir,
		Success:          success,
		Duration:         d,
		FullOutput:       fullOutput,
	}
}

// String renders the update as a single human-readable log line
func (u ProgressUpdate) String() string {
	ms := u.Duration.Milliseconds()
	switch u.Kind {
	case KindStarted:
		return fmt.Sprintf("[%s] Started: %s - %s", u.OperationID, u.Command, u.Description)
	case KindProgress:
		var b strings.Builder
		fmt.Fprintf(&b, "[%s] Progress", u.OperationID)
		if u.Percentage != nil {
			fmt.Fprintf(&b, " (%.1f%%)", *u.Percentage)
		}
		fmt.Fprintf(&b, ": %s", u.Message)
		if u.CurrentStep != "" {
			fmt.Fprintf(&b, " [%s]", u.CurrentStep)
		}
		return b.String()
	case KindOutput:
		stream := "stdout"
		if u.IsStderr {
			stream = "stderr"
		}
		return fmt.Sprintf("[%s] %s: %s", u.OperationID, stream, u.Line)
	case KindCompleted:
		return fmt.Sprintf("[%s] Completed in %dms: %s", u.OperationID, ms, u.Message)
	case KindFailed:
		return fmt.Sprintf("[%s] Failed after %dms: %s", u.OperationID, ms, u.Error)
	case KindCancelled:
		return fmt.Sprintf("[%s] Cancelled after %dms: %s", u.OperationID, ms, u.Message)
	case KindFinalResult:
		status := "COMPLETED"
		if !u.Success {
			status = "FAILED"
		}
		return fmt.Sprintf("[%s] %s: %s\n%s", u.OperationID, status, u.Command, u.FullOutput)
	default:
		return fmt.Sprintf("[%s] %s", u.OperationID, u.Kind)
	}
}
