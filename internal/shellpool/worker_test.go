package shellpool

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"
)

// workerConn drives ServeWorker in-process over pipes
type workerConn struct {
	in   *io.PipeWriter
	out  *bufio.Reader
	done chan error
}

func startWorker(t *testing.T, dir string) *workerConn {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	c := &workerConn{in: inW, out: bufio.NewReader(outR), done: make(chan error, 1)}
	go func() {
		err := ServeWorker(context.Background(), inR, outW)
		outW.Close()
		c.done <- err
	}()
	t.Cleanup(func() { inW.Close() })

	setup, _ := json.Marshal(Setup{Protocol: ProtocolVersion, WorkingDir: dir})
	c.send(t, string(setup))
	if line := c.recv(t); line != ReadySignal {
		t.Fatalf("Expected %s, got %q", ReadySignal, line)
	}
	return c
}

func (c *workerConn) send(t *testing.T, line string) {
	t.Helper()
	if _, err := io.WriteString(c.in, line+"\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func (c *workerConn) recv(t *testing.T) string {
	t.Helper()
	line, err := c.out.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return strings.TrimRight(line, "\n")
}

func (c *workerConn) run(t *testing.T, cmd Command) Response {
	t.Helper()
	data, _ := json.Marshal(cmd)
	c.send(t, string(data))
	resp, ok := parseResponse(c.recv(t))
	if !ok {
		t.Fatal("Expected a protocol response")
	}
	return resp
}

func TestServeWorkerHealthCheck(t *testing.T) {
	c := startWorker(t, t.TempDir())
	c.send(t, HealthCheckCommand)
	if line := c.recv(t); line != HealthyResponse {
		t.Errorf("Expected %s, got %q", HealthyResponse, line)
	}
}

func TestServeWorkerShutdown(t *testing.T) {
	c := startWorker(t, t.TempDir())
	c.send(t, ShutdownCommand)

	select {
	case err := <-c.done:
		if err != nil {
			t.Errorf("Expected clean exit, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Worker did not stop on shutdown")
	}
}

func TestServeWorkerCommands(t *testing.T) {
	dir := t.TempDir()
	c := startWorker(t, dir)

	tests := []struct {
		name       string
		cmd        Command
		wantExit   int
		wantStdout string
		wantStderr string
	}{
		{
			name:       "echo",
			cmd:        Command{ID: "c1", Command: []string{"echo", "hello"}, WorkingDir: dir, TimeoutMs: 5000},
			wantStdout: "hello\n",
		},
		{
			name:     "exit code",
			cmd:      Command{ID: "c2", Command: []string{"sh", "-c", "echo oops >&2; exit 3"}, WorkingDir: dir, TimeoutMs: 5000},
			wantExit: 3, wantStderr: "oops",
		},
		{
			name:     "bad directory",
			cmd:      Command{ID: "c3", Command: []string{"echo"}, WorkingDir: dir + "/missing", TimeoutMs: 5000},
			wantExit: ExitSetupFailure, wantStderr: "Failed to change directory",
		},
		{
			name:     "timeout",
			cmd:      Command{ID: "c4", Command: []string{"sleep", "5"}, WorkingDir: dir, TimeoutMs: 100},
			wantExit: ExitTimeout, wantStderr: "timed out",
		},
		{
			name:     "not found",
			cmd:      Command{ID: "c5", Command: []string{"definitely-not-a-real-binary-xyz"}, WorkingDir: dir, TimeoutMs: 5000},
			wantExit: ExitNotFound,
		},
		{
			name:     "empty",
			cmd:      Command{ID: "c6", WorkingDir: dir, TimeoutMs: 5000},
			wantExit: ExitSetupFailure, wantStderr: "empty command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := c.run(t, tt.cmd)
			if resp.ID != tt.cmd.ID {
				t.Errorf("Expected id %s, got %s", tt.cmd.ID, resp.ID)
			}
			if resp.ExitCode != tt.wantExit {
				t.Errorf("Expected exit code %d, got %d (stderr %q)", tt.wantExit, resp.ExitCode, resp.Stderr)
			}
			if tt.wantStdout != "" && resp.Stdout != tt.wantStdout {
				t.Errorf("Expected stdout %q, got %q", tt.wantStdout, resp.Stdout)
			}
			if tt.wantStderr != "" && !strings.Contains(resp.Stderr, tt.wantStderr) {
				t.Errorf("Expected stderr to contain %q, got %q", tt.wantStderr, resp.Stderr)
			}
		})
	}
}

func TestServeWorkerDefaultsToSetupDirectory(t *testing.T) {
	dir := t.TempDir()
	c := startWorker(t, dir)

	resp := c.run(t, Command{ID: "pwd", Command: []string{"pwd"}, TimeoutMs: 5000})
	if resp.ExitCode != 0 || !strings.HasSuffix(strings.TrimSpace(resp.Stdout), dir[strings.LastIndex(dir, "/"):]) {
		t.Errorf("Expected command to run in %s, got %q", dir, resp.Stdout)
	}
}

func TestServeWorkerRejectsWrongProtocol(t *testing.T) {
	err := ServeWorker(context.Background(), strings.NewReader(`{"protocol":"v0"}`+"\n"), io.Discard)
	if err == nil {
		t.Error("Expected an error for an unsupported protocol")
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
	}{
		{`{"id":"a","exit_code":0,"stdout":"","stderr":"","duration_ms":1}`, true},
		{`{"id":"a","exit_code":101}`, true},
		{`{"reason":"compiler-artifact"}`, false},
		{`{"id":"a"}`, false},
		{`Compiling demo v0.1.0`, false},
		{``, false},
	}
	for _, tt := range tests {
		if _, ok := parseResponse(tt.line); ok != tt.ok {
			t.Errorf("parseResponse(%q) ok = %v, want %v", tt.line, ok, tt.ok)
		}
	}
}

func TestNewCommand(t *testing.T) {
	cmd := NewCommand([]string{"cargo", "build"}, "/tmp/p", 3*time.Second)
	if cmd.ID == "" {
		t.Error("Expected generated id")
	}
	if cmd.TimeoutMs != 3000 || cmd.Timeout() != 3*time.Second {
		t.Errorf("Unexpected timeout: %d", cmd.TimeoutMs)
	}
}

func TestTimeoutConversionBounds(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		wantMs  uint64
		want    time.Duration
	}{
		{"negative", -5 * time.Second, 0, 0},
		{"zero", 0, 0, 0},
		{"normal", 90 * time.Second, 90000, 90 * time.Second},
		{"huge", time.Duration(1 << 62), uint64(MaxTimeout.Milliseconds()), MaxTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewCommand([]string{"true"}, "/tmp/p", tt.timeout)
			if cmd.TimeoutMs != tt.wantMs {
				t.Errorf("TimeoutMs = %d, want %d", cmd.TimeoutMs, tt.wantMs)
			}
			if got := cmd.Timeout(); got != tt.want {
				t.Errorf("Timeout() = %v, want %v", got, tt.want)
			}
		})
	}

	wire := Command{TimeoutMs: 1<<64 - 1}
	if got := wire.Timeout(); got != MaxTimeout {
		t.Errorf("Expected a huge wire timeout to be capped, got %v", got)
	}
	if got := (Response{DurationMs: 1<<64 - 1}).Duration(); got != MaxTimeout {
		t.Errorf("Expected a huge wire duration to be capped, got %v", got)
	}
}
