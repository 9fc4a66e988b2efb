package shellpool

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
)

// responseGrace lets the worker report its own command timeout before the
// client gives up on the read
const responseGrace = time.Second

var errTooManyStrayLines = errors.New("too many non-protocol lines")

// Shell is one long-lived worker process bound to a working directory.
// At most one command is in flight per shell.
type Shell struct {
	id         string
	workingDir string
	cfg        config.ShellPoolConfig
	logger     *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	exited chan struct{}
	quit   chan struct{} // closed when nobody will read lines any more

	mu sync.Mutex // serialises request/response cycles

	stateMu  sync.Mutex
	lastUsed time.Time
	healthy  bool

	shutdownOnce sync.Once
	quitOnce     sync.Once
}

// NewShell spawns a worker for dir and completes the readiness handshake
func NewShell(ctx context.Context, dir string, cfg config.ShellPoolConfig, logger *slog.Logger) (*Shell, error) {
	if logger == nil {
		logger = slog.Default()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &WorkingDirectoryError{Dir: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &WorkingDirectoryError{Dir: dir, Err: errors.New("not a directory")}
	}

	argv, err := workerArgv(cfg)
	if err != nil {
		return nil, &SpawnError{Err: err}
	}

	s := &Shell{
		id:         uuid.NewString(),
		workingDir: dir,
		cfg:        cfg,
		logger:     logger,
		lines:      make(chan string, 16),
		exited:     make(chan struct{}),
		quit:       make(chan struct{}),
		lastUsed:   time.Now(),
		healthy:    true,
	}
	s.logger.Debug("Spawning shell", "shell_id", s.id, "working_dir", dir)

	s.cmd = exec.Command(argv[0], argv[1:]...)
	s.cmd.Dir = dir
	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Err: err}
	}
	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Err: err}
	}
	s.stdin = stdin

	if err := s.cmd.Start(); err != nil {
		return nil, &SpawnError{Err: err}
	}
	go s.readLoop(stdout)

	if err := s.handshake(ctx); err != nil {
		s.kill()
		return nil, err
	}

	s.logger.Info("Spawned shell", "shell_id", s.id, "working_dir", dir, "pid", s.PID())
	return s, nil
}

func workerArgv(cfg config.ShellPoolConfig) ([]string, error) {
	if len(cfg.WorkerCommand) > 0 {
		return cfg.WorkerCommand, nil
	}
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate worker binary: %w", err)
	}
	return []string{self, "shell-worker"}, nil
}

func (s *Shell) handshake(ctx context.Context) error {
	setup, err := json.Marshal(Setup{Protocol: ProtocolVersion, WorkingDir: s.workingDir})
	if err != nil {
		return &SerializationError{Err: err}
	}
	if err := s.writeLine(string(setup)); err != nil {
		return err
	}

	timeout := s.cfg.ShellSpawnTimeout
	if timeout <= 0 {
		timeout = config.DefaultShellSpawnTimeout
	}
	line, err := s.readLine(ctx, timeout)
	if err != nil {
		return err
	}
	if line != ReadySignal {
		return fmt.Errorf("%w: expected %s, got %q", ErrProcessDied, ReadySignal, truncate(line, 80))
	}
	return nil
}

// readLoop forwards worker output until EOF, then reaps the process.
// Wait closes the stdout pipe, so it must not run before the last read.
func (s *Shell) readLoop(r io.Reader) {
	defer func() {
		close(s.lines)
		_ = s.cmd.Wait()
		close(s.exited)
	}()

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			select {
			case s.lines <- strings.TrimRight(line, "\r\n"):
			case <-s.quit:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Shell) stopReading() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *Shell) writeLine(line string) error {
	if _, err := io.WriteString(s.stdin, line+"\n"); err != nil {
		s.markUnhealthy()
		return fmt.Errorf("%w: %v", ErrProcessDied, err)
	}
	return nil
}

func (s *Shell) readLine(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line, ok := <-s.lines:
		if !ok {
			s.markUnhealthy()
			return "", ErrProcessDied
		}
		return line, nil
	case <-timer.C:
		return "", ErrTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Execute sends one command and waits for its response. Lines that are not
// a response to this command are skipped up to MaxStrayLines.
func (s *Shell) Execute(ctx context.Context, cmd Command) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	s.logger.Debug("Executing command in shell",
		"shell_id", s.id,
		"command_id", cmd.ID,
		"argv", cmd.Command,
	)

	data, err := json.Marshal(cmd)
	if err != nil {
		return Response{}, &SerializationError{Err: err}
	}
	if err := s.writeLine(string(data)); err != nil {
		return Response{}, err
	}

	timeout := cmd.Timeout()
	if timeout <= 0 {
		timeout = s.cfg.CommandTimeout
	}
	deadline := time.Now().Add(timeout + responseGrace)

	maxStray := s.cfg.MaxStrayLines
	if maxStray <= 0 {
		maxStray = config.DefaultMaxStrayLines
	}

	var last string
	for stray := 0; stray <= maxStray; stray++ {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			s.markUnhealthy()
			return Response{}, ErrTimeout
		}
		line, err := s.readLine(ctx, remaining)
		if err != nil {
			// the worker may still answer later; never reuse it
			s.markUnhealthy()
			return Response{}, err
		}
		if resp, ok := parseResponse(line); ok && resp.ID == cmd.ID {
			s.touch()
			s.logger.Debug("Command completed",
				"shell_id", s.id,
				"command_id", resp.ID,
				"exit_code", resp.ExitCode,
				"duration_ms", resp.DurationMs,
			)
			return resp, nil
		}
		last = line
		s.logger.Debug("Skipping non-protocol line", "shell_id", s.id, "line", truncate(line, 200))
	}

	s.markUnhealthy()
	return Response{}, &SerializationError{Line: last, Err: errTooManyStrayLines}
}

// HealthCheck round-trips HealthCheckCommand. Any deviation marks the shell unhealthy.
func (s *Shell) HealthCheck(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	timeout := s.cfg.HealthCheckTimeout
	if timeout <= 0 {
		timeout = config.DefaultHealthCheckTimeout
	}

	if err := s.writeLine(HealthCheckCommand); err != nil {
		s.logger.Warn("Health check failed", "shell_id", s.id, "error", err)
		return false
	}
	line, err := s.readLine(ctx, timeout)
	if err != nil || line != HealthyResponse {
		s.logger.Warn("Shell failed health check", "shell_id", s.id, "response", line, "error", err)
		s.markUnhealthy()
		return false
	}

	s.stateMu.Lock()
	s.healthy = true
	s.stateMu.Unlock()
	return true
}

// Shutdown asks the worker to exit and kills it if it does not. Safe to call more than once.
func (s *Shell) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.markUnhealthy()
		_, _ = io.WriteString(s.stdin, ShutdownCommand+"\n")
		_ = s.stdin.Close()
		s.stopReading()

		select {
		case <-s.exited:
		case <-time.After(config.DefaultShutdownTimeout):
			s.kill()
		}
		s.logger.Debug("Shell has been shut down", "shell_id", s.id)
	})
}

func (s *Shell) kill() {
	s.stopReading()
	if s.cmd.Process != nil {
		if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.Warn("Failed to kill shell process", "shell_id", s.id, "error", err)
		}
	}
	<-s.exited
}

func (s *Shell) touch() {
	s.stateMu.Lock()
	s.lastUsed = time.Now()
	s.stateMu.Unlock()
}

func (s *Shell) markUnhealthy() {
	s.stateMu.Lock()
	s.healthy = false
	s.stateMu.Unlock()
}

// ID returns the shell id
func (s *Shell) ID() string { return s.id }

// WorkingDir returns the directory the shell was spawned for
func (s *Shell) WorkingDir() string { return s.workingDir }

// LastUsed returns when the shell last ran a command
func (s *Shell) LastUsed() time.Time {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.lastUsed
}

// IsHealthy reports the result of the last interaction with the worker.
// A worker whose process has exited is never healthy.
func (s *Shell) IsHealthy() bool {
	s.stateMu.Lock()
	healthy := s.healthy
	s.stateMu.Unlock()
	return healthy && !s.Exited()
}

// PID returns the worker process id
func (s *Shell) PID() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Exited reports whether the worker process is no longer running
func (s *Shell) Exited() bool {
	select {
	case <-s.exited:
		return true
	default:
		return false
	}
}
