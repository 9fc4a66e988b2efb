package shellpool

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
)

// Stats is a snapshot of manager usage
type Stats struct {
	Enabled    bool
	TotalPools int
	IdleShells int
	InUse      int
	MaxShells  int
}

// Manager maps working directories to pools and enforces a global ceiling
// on shells checked out across all of them
type Manager struct {
	cfg    config.ShellPoolConfig
	logger *slog.Logger

	mu    sync.RWMutex
	pools map[string]*Pool

	countMu sync.Mutex
	inUse   int

	reporterMu sync.RWMutex
	reporter   func(healthy bool)

	loopMu   sync.Mutex
	stop     context.CancelFunc
	loops    sync.WaitGroup
	shutdown bool
}

// NewManager creates a manager. Background sweeps start with Start.
func NewManager(cfg config.ShellPoolConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Creating shell pool manager",
		"enabled", cfg.Enabled,
		"shells_per_directory", cfg.ShellsPerDirectory,
		"max_total_shells", cfg.MaxTotalShells,
	)
	return &Manager{
		cfg:    cfg,
		logger: logger,
		pools:  make(map[string]*Pool),
	}
}

// Enabled reports whether pooling is switched on
func (m *Manager) Enabled() bool {
	return m.cfg.Enabled
}

// SetHealthReporter installs a hook called after every health sweep
func (m *Manager) SetHealthReporter(fn func(healthy bool)) {
	m.reporterMu.Lock()
	m.reporter = fn
	m.reporterMu.Unlock()
}

// GetShell checks out a shell for dir. It reports false when pooling is
// disabled, the global ceiling is reached, or no shell could be spawned;
// callers then run the command directly.
func (m *Manager) GetShell(ctx context.Context, dir string) (*Shell, bool) {
	if !m.cfg.Enabled {
		m.logger.Debug(config.MsgShellPoolDisabled)
		return nil, false
	}

	if !m.reserve() {
		m.logger.Warn("Shell pool manager at capacity", "max_total_shells", m.cfg.MaxTotalShells, "error", ErrPoolFull)
		return nil, false
	}

	key := poolKey(dir)
	sh, err := m.poolFor(key).GetShell(ctx)
	if err != nil {
		m.release()
		m.logger.Warn("Failed to get shell from pool", "working_dir", key, "error", err)
		return nil, false
	}
	return sh, true
}

// ReturnShell hands a shell back to its pool. The checkout is released
// whether or not the pool keeps the shell.
func (m *Manager) ReturnShell(sh *Shell) {
	defer m.release()

	m.mu.RLock()
	pool, ok := m.pools[poolKey(sh.WorkingDir())]
	m.mu.RUnlock()

	if !ok {
		m.logger.Warn("No pool found for shell", "shell_id", sh.ID(), "working_dir", sh.WorkingDir())
		sh.Shutdown()
		return
	}
	pool.ReturnShell(sh)
}

func (m *Manager) reserve() bool {
	m.countMu.Lock()
	defer m.countMu.Unlock()
	if m.inUse >= m.cfg.MaxTotalShells {
		return false
	}
	m.inUse++
	return true
}

func (m *Manager) release() {
	m.countMu.Lock()
	defer m.countMu.Unlock()
	if m.inUse > 0 {
		m.inUse--
	}
}

func (m *Manager) poolFor(key string) *Pool {
	m.mu.RLock()
	pool, ok := m.pools[key]
	m.mu.RUnlock()
	if ok {
		return pool
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// another caller may have created it while we waited
	if pool, ok := m.pools[key]; ok {
		return pool
	}
	pool = NewPool(key, m.cfg, m.logger)
	m.pools[key] = pool
	return pool
}

func poolKey(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}

// CleanupIdlePools removes pools untouched past the idle timeout and shuts
// down their shells. It returns the number of pools removed.
func (m *Manager) CleanupIdlePools() int {
	m.mu.Lock()
	var idle []*Pool
	for key, pool := range m.pools {
		if pool.IsIdle() {
			idle = append(idle, pool)
			delete(m.pools, key)
		}
	}
	remaining := len(m.pools)
	m.mu.Unlock()

	for _, pool := range idle {
		m.logger.Debug("Removing idle shell pool", "working_dir", pool.WorkingDir())
		pool.Shutdown()
	}
	if len(idle) > 0 {
		m.logger.Info("Cleaned up idle shell pools", "removed", len(idle), "remaining", remaining)
	}
	return len(idle)
}

// HealthCheckAllPools health checks the idle shells of every pool and
// returns how many were removed
func (m *Manager) HealthCheckAllPools(ctx context.Context) int {
	m.mu.RLock()
	pools := make([]*Pool, 0, len(m.pools))
	for _, pool := range m.pools {
		pools = append(pools, pool)
	}
	m.mu.RUnlock()

	removed := 0
	for _, pool := range pools {
		removed += pool.HealthCheck(ctx)
	}
	if removed > 0 {
		m.logger.Warn("Removed unhealthy shells", "count", removed)
	}

	m.reporterMu.RLock()
	report := m.reporter
	m.reporterMu.RUnlock()
	if report != nil {
		report(removed == 0)
	}
	return removed
}

// Start launches the idle-reaping and health-check sweeps. Nothing runs
// when pooling is disabled.
func (m *Manager) Start(ctx context.Context) {
	if !m.cfg.Enabled {
		return
	}

	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.stop != nil || m.shutdown {
		return
	}
	ctx, m.stop = context.WithCancel(ctx)

	m.loops.Add(2)
	go m.every(ctx, m.cfg.PoolCleanupInterval, func() { m.CleanupIdlePools() })
	go m.every(ctx, m.cfg.HealthCheckInterval, func() { m.HealthCheckAllPools(ctx) })

	m.logger.Info("Started shell pool background tasks",
		"cleanup_interval", m.cfg.PoolCleanupInterval,
		"health_check_interval", m.cfg.HealthCheckInterval,
	)
}

func (m *Manager) every(ctx context.Context, interval time.Duration, fn func()) {
	defer m.loops.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// Shutdown stops the sweeps and every pooled shell. Safe to call more than once.
func (m *Manager) Shutdown() {
	m.loopMu.Lock()
	if m.shutdown {
		m.loopMu.Unlock()
		return
	}
	m.shutdown = true
	stop := m.stop
	m.loopMu.Unlock()

	if stop != nil {
		stop()
	}
	m.loops.Wait()

	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]*Pool)
	m.mu.Unlock()

	for _, pool := range pools {
		pool.Shutdown()
	}

	m.countMu.Lock()
	m.inUse = 0
	m.countMu.Unlock()

	m.logger.Info("Shut down all shell pools", "pools", len(pools))
}

// Stats returns current usage
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	stats := Stats{
		Enabled:    m.cfg.Enabled,
		TotalPools: len(m.pools),
		MaxShells:  m.cfg.MaxTotalShells,
	}
	for _, pool := range m.pools {
		stats.IdleShells += pool.ShellCount()
	}
	m.mu.RUnlock()

	m.countMu.Lock()
	stats.InUse = m.inUse
	m.countMu.Unlock()
	return stats
}
