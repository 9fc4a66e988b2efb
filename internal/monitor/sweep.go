package monitor

import (
	"context"
	"sort"
	"time"

	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
)

// SweepReport summarises one cleanup pass
type SweepReport struct {
	TimedOut       []string
	EvictedLive    int
	EvictedHistory int
}

// Sweep runs one cleanup pass: active operations past their timeout are
// forced terminal, the live map is trimmed to its ceiling by evicting the oldest
// terminal entries, and the history is trimmed to its own ceiling.
func (m *Monitor) Sweep() SweepReport {
	var report SweepReport
	now := time.Now()

	m.mu.Lock()
	for id, op := range m.operations {
		if !op.IsActive() || now.Sub(op.StartTime) <= op.Timeout {
			continue
		}
		// a pending operation never started, so it can only be cancelled
		to := StateTimedOut
		if !CanTransition(op.State, to) {
			to = StateCancelled
		}
		m.finishLocked(op, to, Failure(config.MsgOperationTimedOut), now)
		report.TimedOut = append(report.TimedOut, id)
	}
	report.EvictedLive = m.evictLiveLocked()
	m.mu.Unlock()

	report.EvictedHistory = m.trimHistory()

	for _, id := range report.TimedOut {
		m.logger.Warn("Operation timed out and was cancelled", "operation_id", id)
	}
	if report.EvictedLive > 0 || report.EvictedHistory > 0 {
		m.logger.Debug("Cleaned up old operations",
			"evicted_live", report.EvictedLive,
			"evicted_history", report.EvictedHistory,
		)
	}
	return report
}

// evictLiveLocked drops the oldest terminal entries until the live map is
// within budget. Every evicted entry has a history copy. Caller holds m.mu.
func (m *Monitor) evictLiveLocked() int {
	excess := len(m.operations) - m.cfg.MaxLiveOperations
	if excess <= 0 {
		return 0
	}

	terminal := make([]*OperationInfo, 0, len(m.operations))
	for _, op := range m.operations {
		if !op.IsActive() {
			terminal = append(terminal, op)
		}
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].EndTime.Before(terminal[j].EndTime)
	})
	if excess > len(terminal) {
		excess = len(terminal)
	}

	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	for _, op := range terminal[:excess] {
		if _, ok := m.history[op.ID]; !ok {
			snapshot := op.clone()
			m.history[op.ID] = &snapshot
		}
		delete(m.operations, op.ID)
	}
	return excess
}

func (m *Monitor) trimHistory() int {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()

	excess := len(m.history) - m.cfg.MaxHistory
	if excess <= 0 {
		return 0
	}

	ops := make([]*OperationInfo, 0, len(m.history))
	for _, op := range m.history {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].EndTime.Before(ops[j].EndTime)
	})
	for _, op := range ops[:excess] {
		delete(m.history, op.ID)
	}
	return excess
}

// StartCleanup runs Sweep every CleanupInterval until ctx is done or
// Shutdown is called. It does nothing when AutoCleanup is off or the loop
// is already running.
func (m *Monitor) StartCleanup(ctx context.Context) {
	if !m.cfg.AutoCleanup {
		m.logger.Debug("Operation cleanup loop disabled")
		return
	}

	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.stopLoop != nil || m.shutdown {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.stopLoop = cancel
	m.loopDone = make(chan struct{})

	go m.cleanupLoop(loopCtx, m.loopDone)
}

func (m *Monitor) cleanupLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Operation cleanup loop stopped")
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Shutdown cancels every active operation and stops the cleanup loop.
// Calling it more than once is safe.
func (m *Monitor) Shutdown() {
	m.loopMu.Lock()
	if m.shutdown {
		m.loopMu.Unlock()
		return
	}
	m.shutdown = true
	stop, done := m.stopLoop, m.loopDone
	m.loopMu.Unlock()

	m.logger.Info("Shutting down operation monitor")

	for _, op := range m.ActiveOperations() {
		// it may finish between the snapshot and the cancel
		_ = m.Cancel(op.ID)
	}

	if stop != nil {
		stop()
		<-done
	}

	m.logger.Info("Operation monitor shutdown complete")
}
