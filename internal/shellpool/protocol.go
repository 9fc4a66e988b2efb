// Package shellpool keeps pre-warmed worker processes per working directory
// so cargo commands avoid process start-up latency.
//
// A worker speaks a line protocol over its stdin and stdout. After spawn the
// client writes one Setup line and waits for ReadySignal. Each command is one
// JSON Command line answered by one JSON Response line. HealthCheckCommand is
// answered with HealthyResponse and ShutdownCommand ends the worker loop.
package shellpool

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Control lines of the worker protocol
const (
	ReadySignal        = "SHELL_READY"
	HealthCheckCommand = "HEALTH_CHECK"
	HealthyResponse    = "HEALTHY"
	ShutdownCommand    = "SHUTDOWN"

	ProtocolVersion = "cargo-mcp-shell/1"
)

// Exit codes reported by the worker when the command itself could not run
const (
	ExitSetupFailure = 1
	ExitTimeout      = 124
	ExitNotFound     = 127
)

// Setup is the one-time handshake payload sent after spawn
type Setup struct {
	Protocol   string `json:"protocol"`
	WorkingDir string `json:"working_dir"`
}

// Command is one unit of work sent to a worker
type Command struct {
	ID         string   `json:"id"`
	Command    []string `json:"command"`
	WorkingDir string   `json:"working_dir"`
	TimeoutMs  uint64   `json:"timeout_ms"`
}

// NewCommand builds a command with a fresh id
func NewCommand(argv []string, workingDir string, timeout time.Duration) Command {
	return Command{
		ID:         uuid.NewString(),
		Command:    argv,
		WorkingDir: workingDir,
		TimeoutMs:  durationToMs(timeout),
	}
}

// Timeout returns the command timeout as a duration
func (c Command) Timeout() time.Duration {
	return msToDuration(c.TimeoutMs)
}

// MaxTimeout caps any timeout carried on the wire
const MaxTimeout = 30 * 24 * time.Hour

// durationToMs converts d for the wire; negative durations become 0
func durationToMs(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(min(d, MaxTimeout).Milliseconds())
}

// msToDuration converts a wire value, capping it at MaxTimeout so the
// multiplication cannot overflow
func msToDuration(ms uint64) time.Duration {
	if ms > uint64(MaxTimeout.Milliseconds()) {
		return MaxTimeout
	}
	return time.Duration(ms) * time.Millisecond
}

// Response is the worker's answer to one Command
type Response struct {
	ID         string `json:"id"`
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMs uint64 `json:"duration_ms"`
}

// Success reports a zero exit code
func (r Response) Success() bool {
	return r.ExitCode == 0
}

// Duration returns the execution time reported by the worker
func (r Response) Duration() time.Duration {
	return msToDuration(r.DurationMs)
}

// wireResponse detects missing fields so arbitrary JSON output is not
// mistaken for a response
type wireResponse struct {
	ID         *string `json:"id"`
	ExitCode   *int    `json:"exit_code"`
	Stdout     string  `json:"stdout"`
	Stderr     string  `json:"stderr"`
	DurationMs uint64  `json:"duration_ms"`
}

// parseResponse decodes a protocol response line. ok is false for any line
// that is not a response record.
func parseResponse(line string) (Response, bool) {
	var w wireResponse
	if err := json.Unmarshal([]byte(line), &w); err != nil {
		return Response{}, false
	}
	if w.ID == nil || w.ExitCode == nil {
		return Response{}, false
	}
	return Response{
		ID:         *w.ID,
		ExitCode:   *w.ExitCode,
		Stdout:     w.Stdout,
		Stderr:     w.Stderr,
		DurationMs: w.DurationMs,
	}, true
}
