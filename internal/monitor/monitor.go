// Package monitor tracks cargo operations from registration to a terminal
// state and answers waits for them, including long after they finished.
//
// Two maps are kept, each under its own lock. The live map holds every
// registered operation until the cleanup sweep evicts it. The history map
// holds a copy of every terminal operation and is written before the live
// entry can be evicted, so a late wait always finds the result while the
// copy is within the history budget. Lock order is live then history.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
)

// Monitor is the registry of all operations
type Monitor struct {
	cfg    config.MonitorConfig
	logger *slog.Logger

	mu         sync.RWMutex
	operations map[string]*OperationInfo

	historyMu sync.RWMutex
	history   map[string]*OperationInfo

	loopMu   sync.Mutex
	stopLoop context.CancelFunc
	loopDone chan struct{}
	shutdown bool
}

// New creates a monitor. The cleanup sweep does not run until StartCleanup.
func New(cfg config.MonitorConfig, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = config.DefaultOperationTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.DefaultWaitPollInterval
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = config.DefaultCleanupInterval
	}
	return &Monitor{
		cfg:        cfg,
		logger:     logger,
		operations: make(map[string]*OperationInfo),
		history:    make(map[string]*OperationInfo),
	}
}

// Config returns the effective configuration
func (m *Monitor) Config() config.MonitorConfig {
	return m.cfg
}

// Register creates a pending operation with a generated id
func (m *Monitor) Register(req Request) string {
	id := uuid.NewString()
	// a random UUID cannot collide with a live entry
	_ = m.RegisterWithID(id, req)
	return id
}

// RegisterWithID creates a pending operation under a caller-supplied id.
// It fails if the id is still in the live map, finished or not. A history
// entry whose live copy was evicted is dropped so waits resolve to the new
// operation.
func (m *Monitor) RegisterWithID(id string, req Request) error {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = m.cfg.DefaultTimeout
	}
	op := &OperationInfo{
		ID:               id,
		Command:          req.Command,
		Description:      req.Description,
		State:            StatePending,
		StartTime:        time.Now(),
		Timeout:          timeout,
		WorkingDirectory: req.WorkingDirectory,
		token:            NewToken(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.operations[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateOperation, id)
	}

	m.historyMu.Lock()
	if _, stale := m.history[id]; stale {
		delete(m.history, id)
		m.logger.Warn("Reusing operation id, dropping stale history entry", "operation_id", id)
	}
	m.historyMu.Unlock()

	m.operations[id] = op
	m.logger.Debug("Registered operation",
		"operation_id", id,
		"command", req.Command,
		"working_dir", req.WorkingDirectory,
		"timeout", timeout,
	)
	return nil
}

// Start moves a pending operation to running
func (m *Monitor) Start(id string) error {
	return m.transition(id, StateRunning, nil)
}

// Complete records the result of a running operation. The state becomes
// Completed or Failed depending on the result.
func (m *Monitor) Complete(id string, result *Result) error {
	if result == nil {
		result = Failure("operation finished without a result")
	}
	to := StateFailed
	if result.Success {
		to = StateCompleted
	}
	return m.transition(id, to, result)
}

// Cancel forces an active operation to Cancelled and signals its token
func (m *Monitor) Cancel(id string) error {
	return m.transition(id, StateCancelled, Failure(config.MsgOperationCancelled))
}

// Timeout forces a running operation to TimedOut and signals its token
func (m *Monitor) Timeout(id string) error {
	return m.transition(id, StateTimedOut, Failure(config.MsgOperationTimedOut))
}

// CancelByWorkingDirectory cancels every active operation recorded against dir
// and returns the ids it cancelled. Terminal operations are left alone.
func (m *Monitor) CancelByWorkingDirectory(dir string) []string {
	target := filepath.Clean(dir)

	m.mu.Lock()
	defer m.mu.Unlock()

	var cancelled []string
	now := time.Now()
	for id, op := range m.operations {
		if !op.IsActive() || op.WorkingDirectory == "" {
			continue
		}
		if filepath.Clean(op.WorkingDirectory) != target {
			continue
		}
		m.finishLocked(op, StateCancelled, Failure(config.MsgOperationCancelled), now)
		cancelled = append(cancelled, id)
	}
	sort.Strings(cancelled)

	if len(cancelled) > 0 {
		m.logger.Info("Cancelled operations in working directory",
			"working_dir", target,
			"count", len(cancelled),
		)
	}
	return cancelled
}

func (m *Monitor) transition(id string, to State, result *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	op, ok := m.operations[id]
	if !ok {
		return notFound(id)
	}
	if !CanTransition(op.State, to) {
		return &TransitionError{ID: id, From: op.State, To: to}
	}

	if !to.IsTerminal() {
		op.State = to
		return nil
	}
	m.finishLocked(op, to, result, time.Now())
	return nil
}

// finishLocked makes op terminal and writes its history copy before the
// live lock is released. Caller holds m.mu for writing.
func (m *Monitor) finishLocked(op *OperationInfo, to State, result *Result, now time.Time) {
	op.finish(to, result, now)
	if to == StateCancelled || to == StateTimedOut {
		op.token.Cancel()
	}
	m.archive(op)

	m.logger.Debug("Operation finished",
		"operation_id", op.ID,
		"state", to,
		"duration", op.Duration(),
	)
}

func (m *Monitor) archive(op *OperationInfo) {
	snapshot := op.clone()
	m.historyMu.Lock()
	m.history[op.ID] = &snapshot
	m.historyMu.Unlock()
}

// Get returns an operation from the live map, falling back to history
func (m *Monitor) Get(id string) (OperationInfo, bool) {
	if op, ok := m.live(id); ok {
		return op, true
	}
	return m.fromHistory(id)
}

func (m *Monitor) live(id string) (OperationInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	op, ok := m.operations[id]
	if !ok {
		return OperationInfo{}, false
	}
	return op.clone(), true
}

func (m *Monitor) fromHistory(id string) (OperationInfo, bool) {
	m.historyMu.RLock()
	defer m.historyMu.RUnlock()
	op, ok := m.history[id]
	if !ok {
		return OperationInfo{}, false
	}
	return op.clone(), true
}

// GetOperations returns live operations matching pred, oldest first
func (m *Monitor) GetOperations(pred func(OperationInfo) bool) []OperationInfo {
	m.mu.RLock()
	ops := make([]OperationInfo, 0, len(m.operations))
	for _, op := range m.operations {
		snapshot := op.clone()
		if pred == nil || pred(snapshot) {
			ops = append(ops, snapshot)
		}
	}
	m.mu.RUnlock()

	sortByStart(ops)
	return ops
}

// ActiveOperations returns pending and running operations
func (m *Monitor) ActiveOperations() []OperationInfo {
	return m.GetOperations(func(op OperationInfo) bool { return op.IsActive() })
}

// CompletedOperations returns terminal operations still in the live map
func (m *Monitor) CompletedOperations() []OperationInfo {
	return m.GetOperations(func(op OperationInfo) bool { return !op.IsActive() })
}

// History returns the completion history ordered by end time
func (m *Monitor) History() []OperationInfo {
	m.historyMu.RLock()
	ops := make([]OperationInfo, 0, len(m.history))
	for _, op := range m.history {
		ops = append(ops, op.clone())
	}
	m.historyMu.RUnlock()

	sort.Slice(ops, func(i, j int) bool {
		return ops[i].EndTime.Before(ops[j].EndTime)
	})
	return ops
}

// RecordWait stamps the first wait time of an operation and returns the
// updated snapshot. Later calls leave the first stamp untouched.
func (m *Monitor) RecordWait(id string) (OperationInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	op, ok := m.operations[id]
	if !ok {
		return OperationInfo{}, false
	}
	if op.FirstWaitTime.IsZero() {
		op.FirstWaitTime = time.Now()
	}
	return op.clone(), true
}

func sortByStart(ops []OperationInfo) {
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].StartTime.Equal(ops[j].StartTime) {
			return ops[i].ID < ops[j].ID
		}
		return ops[i].StartTime.Before(ops[j].StartTime)
	})
}
