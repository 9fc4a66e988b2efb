package cargo

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/AltairaLabs/async-cargo-mcp/internal/callback"
	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
	"github.com/AltairaLabs/async-cargo-mcp/internal/shellpool"
)

// ShellSource hands out pooled shells. *shellpool.Manager implements it.
type ShellSource interface {
	GetShell(ctx context.Context, dir string) (*shellpool.Shell, bool)
	ReturnShell(sh *shellpool.Shell)
}

// Output is the outcome of one process run
type Output struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	Pooled   bool
}

// Success reports a zero exit code
func (o Output) Success() bool {
	return o.ExitCode == 0
}

// Text merges stdout and stderr for display
func (o Output) Text() string {
	stdout := strings.TrimRight(o.Stdout, "\n")
	stderr := strings.TrimRight(o.Stderr, "\n")
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	default:
		return stdout + "\n" + stderr
	}
}

// ExitError is returned when the process ran but exited non-zero
type ExitError struct {
	Output Output
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d\n%s", e.Output.ExitCode, e.Output.Text())
}

// Runner executes argv in a working directory
type Runner struct {
	shells  ShellSource
	logger  *slog.Logger
	timeout time.Duration
}

// NewRunner creates a runner. shells may be nil, in which case every
// command runs as a direct child process.
func NewRunner(shells ShellSource, defaultTimeout time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = config.DefaultCommandTimeout
	}
	return &Runner{shells: shells, logger: logger, timeout: defaultTimeout}
}

// Run executes argv in dir. A pooled shell is used when available; on a
// dead or wedged shell the command is retried once as a direct process.
// Output lines are forwarded to sender under the given operation id.
// A non-zero exit is reported as *ExitError alongside the output.
func (r *Runner) Run(ctx context.Context, opID, dir string, argv []string, timeout time.Duration, sender callback.Sender) (Output, error) {
	if len(argv) == 0 {
		return Output{}, errors.New("empty command")
	}
	if timeout <= 0 {
		timeout = r.timeout
	}
	sender = callback.OrNoOp(sender)

	out, pooledErr := r.runPooled(ctx, dir, argv, timeout)
	switch {
	case pooledErr == nil:
		forwardLines(ctx, sender, opID, out)
		return out, exitErr(out)
	case errors.Is(pooledErr, errNoShell):
	case ctx.Err() != nil:
		return Output{}, ctx.Err()
	default:
		var serErr *shellpool.SerializationError
		if errors.As(pooledErr, &serErr) {
			return Output{}, pooledErr
		}
		r.logger.Warn("Pooled execution failed, retrying directly",
			"operation_id", opID,
			"working_dir", dir,
			"retryable", shellpool.IsRetryable(pooledErr),
			"error", pooledErr,
		)
	}

	out, err := r.runDirect(ctx, opID, dir, argv, timeout, sender)
	if err != nil {
		return out, err
	}
	return out, exitErr(out)
}

var errNoShell = errors.New("no pooled shell available")

func (r *Runner) runPooled(ctx context.Context, dir string, argv []string, timeout time.Duration) (Output, error) {
	if r.shells == nil {
		return Output{}, errNoShell
	}
	sh, ok := r.shells.GetShell(ctx, dir)
	if !ok {
		return Output{}, errNoShell
	}
	defer r.shells.ReturnShell(sh)

	resp, err := sh.Execute(ctx, shellpool.NewCommand(argv, dir, timeout))
	if err != nil {
		return Output{}, err
	}
	return Output{
		ExitCode: resp.ExitCode,
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
		Duration: resp.Duration(),
		Pooled:   true,
	}, nil
}

func (r *Runner) runDirect(ctx context.Context, opID, dir string, argv []string, timeout time.Duration, sender callback.Sender) (Output, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Output{}, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Output{}, err
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Output{}, fmt.Errorf("start %s: %w", argv[0], err)
	}

	var stdout, stderr bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go stream(ctx, &wg, stdoutPipe, &stdout, sender, opID, false)
	go stream(ctx, &wg, stderrPipe, &stderr, sender, opID, true)
	wg.Wait()

	waitErr := cmd.Wait()
	out := Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var ee *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		out.ExitCode = shellpool.ExitTimeout
		out.Stderr += fmt.Sprintf("\ncommand timed out after %v", timeout)
	case ctx.Err() != nil:
		return out, ctx.Err()
	case errors.As(waitErr, &ee):
		out.ExitCode = ee.ExitCode()
	default:
		return out, waitErr
	}
	return out, nil
}

// stream copies r into buf line by line, forwarding each line to sender
func stream(ctx context.Context, wg *sync.WaitGroup, r io.Reader, buf *bytes.Buffer, sender callback.Sender, opID string, isStderr bool) {
	defer wg.Done()
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			buf.WriteString(line)
			_ = sender.SendProgress(ctx, callback.Output(opID, strings.TrimRight(line, "\r\n"), isStderr))
		}
		if err != nil {
			return
		}
	}
}

func forwardLines(ctx context.Context, sender callback.Sender, opID string, out Output) {
	for _, part := range []struct {
		text     string
		isStderr bool
	}{{out.Stdout, false}, {out.Stderr, true}} {
		if part.text == "" {
			continue
		}
		for _, line := range strings.Split(strings.TrimRight(part.text, "\n"), "\n") {
			_ = sender.SendProgress(ctx, callback.Output(opID, line, part.isStderr))
		}
	}
}

func exitErr(out Output) error {
	if out.Success() {
		return nil
	}
	return &ExitError{Output: out}
}
