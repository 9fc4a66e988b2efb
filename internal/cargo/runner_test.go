package cargo

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AltairaLabs/async-cargo-mcp/internal/callback"
	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
	"github.com/AltairaLabs/async-cargo-mcp/internal/shellpool"
)

// TestHelperProcess runs the shell worker loop when spawned by a pool in these tests
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	var in io.Reader = os.Stdin
	if os.Getenv("HELPER_MODE") == "oneshot" {
		// setup line plus one command, then end of input
		in = &lineLimitReader{r: bufio.NewReader(os.Stdin), left: 2}
	}
	if err := shellpool.ServeWorker(context.Background(), in, os.Stdout); err != nil {
		os.Exit(2)
	}
	os.Exit(0)
}

// lineLimitReader ends its input after left lines
type lineLimitReader struct {
	r    *bufio.Reader
	left int
	buf  []byte
}

func (l *lineLimitReader) Read(p []byte) (int, error) {
	if len(l.buf) == 0 {
		if l.left == 0 {
			return 0, io.EOF
		}
		line, err := l.r.ReadBytes('\n')
		if len(line) == 0 {
			return 0, err
		}
		l.buf = line
		l.left--
	}
	n := copy(p, l.buf)
	l.buf = l.buf[n:]
	return n, nil
}

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) SendProgress(_ context.Context, u callback.ProgressUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.Kind == callback.KindOutput {
		r.lines = append(r.lines, u.Line)
	}
	return nil
}

func (r *lineRecorder) ShouldCancel() bool { return false }

func (r *lineRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func poolManager(t *testing.T, maxShells int) *shellpool.Manager {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	cfg := config.DefaultShellPoolConfig()
	cfg.MaxTotalShells = maxShells
	cfg.WorkerCommand = []string{os.Args[0], "-test.run=^TestHelperProcess$"}
	m := shellpool.NewManager(cfg, nil)
	t.Cleanup(m.Shutdown)
	return m
}

func TestRunnerDirect(t *testing.T) {
	r := NewRunner(nil, time.Second, nil)
	rec := &lineRecorder{}

	out, err := r.Run(context.Background(), "op_1", t.TempDir(), []string{"sh", "-c", "echo one; echo two >&2"}, 0, rec)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Pooled {
		t.Error("Expected direct execution without a pool")
	}
	if out.Text() != "one\ntwo" {
		t.Errorf("Unexpected text %q", out.Text())
	}
	if lines := rec.all(); len(lines) != 2 {
		t.Errorf("Expected 2 forwarded lines, got %v", lines)
	}
}

func TestRunnerNonZeroExit(t *testing.T) {
	r := NewRunner(nil, time.Second, nil)

	out, err := r.Run(context.Background(), "op_1", t.TempDir(), []string{"sh", "-c", "echo 'error[E0425]' >&2; exit 101"}, 0, nil)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Expected ExitError, got %v", err)
	}
	if out.ExitCode != 101 || !strings.Contains(exitErr.Error(), "E0425") {
		t.Errorf("Unexpected output: %+v", out)
	}
}

func TestRunnerDirectTimeout(t *testing.T) {
	r := NewRunner(nil, time.Second, nil)

	out, err := r.Run(context.Background(), "op_1", t.TempDir(), []string{"sleep", "5"}, 50*time.Millisecond, nil)
	if err == nil || out.ExitCode != shellpool.ExitTimeout {
		t.Errorf("Expected timeout exit code, got %d (%v)", out.ExitCode, err)
	}
}

func TestRunnerPooled(t *testing.T) {
	m := poolManager(t, 2)
	r := NewRunner(m, 5*time.Second, nil)
	rec := &lineRecorder{}
	dir := t.TempDir()

	out, err := r.Run(context.Background(), "op_2", dir, []string{"echo", "from pool"}, 0, rec)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !out.Pooled {
		t.Error("Expected pooled execution")
	}
	if out.Stdout != "from pool\n" {
		t.Errorf("Unexpected stdout %q", out.Stdout)
	}
	if lines := rec.all(); len(lines) != 1 || lines[0] != "from pool" {
		t.Errorf("Unexpected forwarded lines %v", lines)
	}
	if stats := m.Stats(); stats.InUse != 0 || stats.IdleShells != 1 {
		t.Errorf("Expected the shell back in its pool, got %+v", stats)
	}
}

func TestRunnerFallsBackWhenPoolFull(t *testing.T) {
	m := poolManager(t, 1)
	dir := t.TempDir()

	held, ok := m.GetShell(context.Background(), dir)
	if !ok {
		t.Fatal("Expected the only shell")
	}
	defer m.ReturnShell(held)

	r := NewRunner(m, time.Second, nil)
	out, err := r.Run(context.Background(), "op_3", dir, []string{"echo", "direct"}, 0, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Pooled {
		t.Error("Expected direct fallback at capacity")
	}
}

func TestRunnerEmptyArgv(t *testing.T) {
	r := NewRunner(nil, time.Second, nil)
	if _, err := r.Run(context.Background(), "op", t.TempDir(), nil, 0, nil); err == nil {
		t.Error("Expected error for empty argv")
	}
}

func TestRunnerDoesNotRerunAfterWorkerExit(t *testing.T) {
	t.Setenv("HELPER_MODE", "oneshot")
	r := NewRunner(poolManager(t, 2), 5*time.Second, nil)

	dir := t.TempDir()
	marker := filepath.Join(dir, "runs")
	out, err := r.Run(context.Background(), "op_1", dir, []string{"sh", "-c", "echo run >> " + marker + "; echo done"}, 0, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !out.Pooled || out.Text() != "done" {
		t.Errorf("Expected the pooled answer, got %+v", out)
	}

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatal(err)
	}
	if runs := strings.Count(string(data), "run\n"); runs != 1 {
		t.Errorf("Expected the command to run once, ran %d times", runs)
	}
}
