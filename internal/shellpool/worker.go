package shellpool

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ServeWorker runs the worker side of the protocol until ShutdownCommand,
// end of input, or ctx is done. It reads the Setup line, announces
// ReadySignal, then answers one line at a time.
func ServeWorker(ctx context.Context, in io.Reader, out io.Writer) error {
	r := bufio.NewReader(in)
	w := bufio.NewWriter(out)

	line, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read setup: %w", err)
	}
	var setup Setup
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &setup); err != nil {
		return fmt.Errorf("decode setup: %w", err)
	}
	if setup.Protocol != ProtocolVersion {
		return fmt.Errorf("unsupported protocol %q", setup.Protocol)
	}

	if err := writeLine(w, ReadySignal); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		if line != "" {
			switch line {
			case HealthCheckCommand:
				if werr := writeLine(w, HealthyResponse); werr != nil {
					return werr
				}
			case ShutdownCommand:
				return nil
			default:
				resp := runCommand(ctx, line, setup.WorkingDir)
				data, merr := json.Marshal(resp)
				if merr != nil {
					return merr
				}
				if werr := writeLine(w, string(data)); werr != nil {
					return werr
				}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func writeLine(w *bufio.Writer, line string) error {
	if _, err := w.WriteString(line + "\n"); err != nil {
		return err
	}
	return w.Flush()
}

func runCommand(ctx context.Context, line, defaultDir string) Response {
	var cmd Command
	if err := json.Unmarshal([]byte(line), &cmd); err != nil {
		return Response{ExitCode: ExitSetupFailure, Stderr: fmt.Sprintf("invalid command: %v", err)}
	}
	if len(cmd.Command) == 0 {
		return Response{ID: cmd.ID, ExitCode: ExitSetupFailure, Stderr: "empty command"}
	}

	dir := cmd.WorkingDir
	if dir == "" {
		dir = defaultDir
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return Response{
			ID:       cmd.ID,
			ExitCode: ExitSetupFailure,
			Stderr:   fmt.Sprintf("Failed to change directory to %s", dir),
		}
	}

	runCtx := ctx
	if cmd.TimeoutMs > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout())
		defer cancel()
	}

	start := time.Now()
	var stdout, stderr bytes.Buffer
	proc := exec.CommandContext(runCtx, cmd.Command[0], cmd.Command[1:]...)
	proc.Dir = dir
	proc.Stdout = &stdout
	proc.Stderr = &stderr
	proc.WaitDelay = time.Second

	err := proc.Run()
	resp := Response{
		ID:         cmd.ID,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: durationToMs(time.Since(start)),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		resp.ExitCode = ExitTimeout
		resp.Stderr += fmt.Sprintf("\ncommand timed out after %v", cmd.Timeout())
	case errors.As(err, &exitErr):
		resp.ExitCode = exitErr.ExitCode()
	case errors.Is(err, exec.ErrNotFound):
		resp.ExitCode = ExitNotFound
		resp.Stderr += err.Error()
	default:
		resp.ExitCode = ExitSetupFailure
		resp.Stderr += err.Error()
	}
	return resp
}
