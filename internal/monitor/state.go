package monitor

// State is the lifecycle state of an operation
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
	StateTimedOut  State = "timed_out"
)

// transitions lists every legal edge. Terminal states have no entry.
var transitions = map[State][]State{
	StatePending: {StateRunning, StateCancelled},
	StateRunning: {StateCompleted, StateFailed, StateCancelled, StateTimedOut},
}

// CanTransition reports whether moving from one state to another is legal
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateTimedOut:
		return true
	default:
		return false
	}
}

// IsActive reports whether the operation is pending or running
func (s State) IsActive() bool {
	return s == StatePending || s == StateRunning
}

func (s State) String() string {
	return string(s)
}
