package monitor

import (
	"errors"
	"fmt"
)

var (
	// ErrOperationNotFound is returned by mutators when the id is not in the live map
	ErrOperationNotFound = errors.New("operation not found")
	// ErrDuplicateOperation is returned when a caller-supplied id is already live
	ErrDuplicateOperation = errors.New("operation already registered")
	// ErrInvalidTransition is returned when a state change is not a legal edge
	ErrInvalidTransition = errors.New("invalid state transition")
)

// TransitionError describes a rejected state change
type TransitionError struct {
	ID   string
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("operation %s: cannot move from %s to %s", e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrOperationNotFound, id)
}
