package shellpool

import (
	"context"
	"testing"
	"time"
)

func TestPoolReusesReturnedShell(t *testing.T) {
	cfg := helperConfig(t, "")
	cfg.ShellsPerDirectory = 1
	pool := NewPool(t.TempDir(), cfg, nil)
	defer pool.Shutdown()

	first, err := pool.GetShell(context.Background())
	if err != nil {
		t.Fatalf("GetShell failed: %v", err)
	}
	pool.ReturnShell(first)
	if pool.ShellCount() != 1 {
		t.Fatalf("Expected 1 idle shell, got %d", pool.ShellCount())
	}

	second, err := pool.GetShell(context.Background())
	if err != nil {
		t.Fatalf("GetShell failed: %v", err)
	}
	if second.ID() != first.ID() {
		t.Error("Expected the returned shell to be reused")
	}
	pool.ReturnShell(second)
}

func TestPoolRespectsPerDirectoryCapacity(t *testing.T) {
	cfg := helperConfig(t, "")
	cfg.ShellsPerDirectory = 1
	pool := NewPool(t.TempDir(), cfg, nil)
	defer pool.Shutdown()

	a, _ := pool.GetShell(context.Background())
	b, _ := pool.GetShell(context.Background())
	if a == nil || b == nil {
		t.Fatal("Expected two shells")
	}

	pool.ReturnShell(a)
	pool.ReturnShell(b)

	if pool.ShellCount() != 1 {
		t.Errorf("Expected pool to keep 1 shell, got %d", pool.ShellCount())
	}
	waitExited(t, b)
}

func TestPoolNeverHandsOutUnhealthyShell(t *testing.T) {
	cfg := helperConfig(t, "unhealthy")
	cfg.ShellsPerDirectory = 2
	pool := NewPool(t.TempDir(), cfg, nil)
	defer pool.Shutdown()

	sick, err := pool.GetShell(context.Background())
	if err != nil {
		t.Fatalf("GetShell failed: %v", err)
	}
	pool.ReturnShell(sick)

	if removed := pool.HealthCheck(context.Background()); removed != 1 {
		t.Errorf("Expected health sweep to remove 1 shell, got %d", removed)
	}
	if pool.ShellCount() != 0 {
		t.Errorf("Expected no idle shells after health sweep, got %d", pool.ShellCount())
	}
	waitExited(t, sick)

	next, err := pool.GetShell(context.Background())
	if err != nil {
		t.Fatalf("GetShell failed: %v", err)
	}
	if next.ID() == sick.ID() {
		t.Error("Unhealthy shell was handed out again")
	}
	pool.ReturnShell(next)
}

func TestPoolDiscardsUnhealthyOnCheckout(t *testing.T) {
	cfg := helperConfig(t, "unhealthy")
	cfg.ShellsPerDirectory = 2
	pool := NewPool(t.TempDir(), cfg, nil)
	defer pool.Shutdown()

	sh, _ := pool.GetShell(context.Background())
	pool.ReturnShell(sh)
	sh.HealthCheck(context.Background())

	next, err := pool.GetShell(context.Background())
	if err != nil {
		t.Fatalf("GetShell failed: %v", err)
	}
	if next.ID() == sh.ID() {
		t.Error("Expected unhealthy idle shell to be skipped")
	}
	waitExited(t, sh)
	pool.ReturnShell(next)
}

func TestPoolIdle(t *testing.T) {
	cfg := helperConfig(t, "")
	cfg.ShellIdleTimeout = 20 * time.Millisecond
	pool := NewPool(t.TempDir(), cfg, nil)

	if pool.IsIdle() {
		t.Error("Expected new pool not to be idle")
	}
	time.Sleep(40 * time.Millisecond)
	if !pool.IsIdle() {
		t.Error("Expected pool to be idle after the timeout")
	}
}
