package shellpool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
)

// Pool holds the idle shells of one working directory
type Pool struct {
	workingDir string
	cfg        config.ShellPoolConfig
	logger     *slog.Logger

	mu     sync.Mutex
	shells []*Shell

	accessMu     sync.Mutex
	lastAccessed time.Time
}

// NewPool creates an empty pool for dir
func NewPool(dir string, cfg config.ShellPoolConfig, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Creating shell pool", "working_dir", dir)
	return &Pool{
		workingDir:   dir,
		cfg:          cfg,
		logger:       logger,
		lastAccessed: time.Now(),
	}
}

// GetShell returns an idle healthy shell, discarding unhealthy ones on the
// way, or spawns a new shell when none is left
func (p *Pool) GetShell(ctx context.Context) (*Shell, error) {
	p.touch()

	var discard []*Shell
	var found *Shell

	p.mu.Lock()
	for len(p.shells) > 0 {
		last := len(p.shells) - 1
		sh := p.shells[last]
		p.shells = p.shells[:last]
		if sh.IsHealthy() {
			found = sh
			break
		}
		discard = append(discard, sh)
	}
	p.mu.Unlock()

	for _, sh := range discard {
		p.logger.Debug("Discarding unhealthy shell", "shell_id", sh.ID())
		sh.Shutdown()
	}
	if found != nil {
		p.logger.Debug("Reusing shell from pool", "shell_id", found.ID())
		return found, nil
	}

	p.logger.Debug("Creating new shell for pool", "working_dir", p.workingDir)
	return NewShell(ctx, p.workingDir, p.cfg, p.logger)
}

// ReturnShell puts a healthy shell back while the pool is under its
// per-directory capacity. Anything else is shut down.
func (p *Pool) ReturnShell(sh *Shell) {
	p.mu.Lock()
	keep := sh.IsHealthy() && len(p.shells) < p.cfg.ShellsPerDirectory
	if keep {
		p.shells = append(p.shells, sh)
	}
	p.mu.Unlock()

	if !keep {
		p.logger.Debug("Discarding shell (unhealthy or pool full)", "shell_id", sh.ID())
		sh.Shutdown()
	}
}

// IsIdle reports whether the pool has gone untouched past the idle timeout
func (p *Pool) IsIdle() bool {
	p.accessMu.Lock()
	defer p.accessMu.Unlock()
	return time.Since(p.lastAccessed) > p.cfg.ShellIdleTimeout
}

// HealthCheck checks every idle shell and drops those that fail.
// It returns the number of shells removed.
func (p *Pool) HealthCheck(ctx context.Context) int {
	p.mu.Lock()
	checking := p.shells
	p.shells = nil
	p.mu.Unlock()

	var healthy []*Shell
	removed := 0
	for _, sh := range checking {
		if sh.HealthCheck(ctx) {
			healthy = append(healthy, sh)
			continue
		}
		p.logger.Debug("Removing unhealthy shell from pool", "shell_id", sh.ID())
		sh.Shutdown()
		removed++
	}

	for _, sh := range healthy {
		p.ReturnShell(sh)
	}
	return removed
}

// Shutdown stops every idle shell
func (p *Pool) Shutdown() {
	p.mu.Lock()
	shells := p.shells
	p.shells = nil
	p.mu.Unlock()

	for _, sh := range shells {
		sh.Shutdown()
	}
	p.logger.Info("Shut down shell pool", "working_dir", p.workingDir, "shells", len(shells))
}

// ShellCount returns the number of idle shells
func (p *Pool) ShellCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.shells)
}

// WorkingDir returns the directory this pool serves
func (p *Pool) WorkingDir() string {
	return p.workingDir
}

func (p *Pool) touch() {
	p.accessMu.Lock()
	p.lastAccessed = time.Now()
	p.accessMu.Unlock()
}
