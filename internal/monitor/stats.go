package monitor

import "time"

// Statistics aggregates the live map by state
type Statistics struct {
	Total           int
	Pending         int
	Running         int
	Completed       int
	Failed          int
	Cancelled       int
	TimedOut        int
	TotalDuration   time.Duration
	AverageDuration time.Duration
}

// SuccessRate is the percentage of operations that completed
func (s Statistics) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total) * 100
}

// FailureRate is the percentage of operations that failed, were cancelled or timed out
func (s Statistics) FailureRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failed+s.Cancelled+s.TimedOut) / float64(s.Total) * 100
}

// Statistics computes counts and durations from the current live map.
// Durations cover terminal operations only.
func (m *Monitor) Statistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats Statistics
	terminal := 0
	for _, op := range m.operations {
		stats.Total++
		switch op.State {
		case StatePending:
			stats.Pending++
		case StateRunning:
			stats.Running++
		case StateCompleted:
			stats.Completed++
		case StateFailed:
			stats.Failed++
		case StateCancelled:
			stats.Cancelled++
		case StateTimedOut:
			stats.TimedOut++
		}
		if op.State.IsTerminal() {
			stats.TotalDuration += op.Duration()
			terminal++
		}
	}
	if terminal > 0 {
		stats.AverageDuration = stats.TotalDuration / time.Duration(terminal)
	}
	return stats
}
