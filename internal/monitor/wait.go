package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
)

// WaitForOperation blocks until the operation is terminal and returns it.
// It never fails: a blank or unknown id yields a synthetic Failed record
// explaining why, and a done ctx yields the latest snapshot, which may
// still be active.
func (m *Monitor) WaitForOperation(ctx context.Context, id string) OperationInfo {
	if strings.TrimSpace(id) == "" {
		return syntheticFailure(id, config.MsgEmptyOperationID)
	}

	m.RecordWait(id)

	if op, ok := m.fromHistory(id); ok {
		return op
	}

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		op, ok := m.live(id)
		if !ok {
			// it may have been moved to history since the last poll
			if op, ok := m.fromHistory(id); ok {
				return op
			}
			return syntheticFailure(id, fmt.Sprintf(config.MsgOperationNotFound, id))
		}
		if !op.IsActive() {
			return op
		}

		select {
		case <-ctx.Done():
			return op
		case <-ticker.C:
		}
	}
}

// WaitForOperations waits on every id concurrently and returns one record
// per id in input order. The whole group is bounded by timeout (zero means
// only ctx bounds it). A panicking branch becomes a synthetic Failed record.
func (m *Monitor) WaitForOperations(ctx context.Context, ids []string, timeout time.Duration) []OperationInfo {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return m.waitGroup(ctx, ids)
}

// WaitForAllOperations waits for every operation active at call time
func (m *Monitor) WaitForAllOperations(ctx context.Context) []OperationInfo {
	active := m.ActiveOperations()
	ids := make([]string, len(active))
	for i, op := range active {
		ids[i] = op.ID
	}
	return m.waitGroup(ctx, ids)
}

type waitResult struct {
	index int
	info  OperationInfo
}

func (m *Monitor) waitGroup(ctx context.Context, ids []string) []OperationInfo {
	results := make([]OperationInfo, len(ids))
	if len(ids) == 0 {
		return results
	}

	ch := make(chan waitResult, len(ids))
	for i, id := range ids {
		go func(index int, id string) {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("Wait branch panicked", "operation_id", id, "panic", r)
					ch <- waitResult{index: index, info: syntheticFailure(id, fmt.Sprintf("wait for operation %s failed: %v", id, r))}
				}
			}()
			ch <- waitResult{index: index, info: m.WaitForOperation(ctx, id)}
		}(i, id)
	}

	filled := make([]bool, len(ids))
	pending := len(ids)
	var grace <-chan time.Time
	done := ctx.Done()

	for pending > 0 {
		select {
		case r := <-ch:
			results[r.index] = r.info
			filled[r.index] = true
			pending--
		case <-done:
			// branches see the same ctx; give them one poll to report
			done = nil
			timer := time.NewTimer(m.cfg.PollInterval)
			defer timer.Stop()
			grace = timer.C
		case <-grace:
			for i, id := range ids {
				if !filled[i] {
					results[i] = m.snapshotOrMissing(id)
				}
			}
			return results
		}
	}
	return results
}

func (m *Monitor) snapshotOrMissing(id string) OperationInfo {
	if op, ok := m.Get(id); ok {
		return op
	}
	return syntheticFailure(id, fmt.Sprintf(config.MsgOperationNotFound, id))
}

func syntheticFailure(id, msg string) OperationInfo {
	now := time.Now()
	return OperationInfo{
		ID:          id,
		Command:     "unknown",
		Description: "operation not found",
		State:       StateFailed,
		StartTime:   now,
		EndTime:     now,
		Result:      Failure(msg),
	}
}
