package callback

import (
	"errors"
	"fmt"
)

var (
	// ErrDisconnected is returned once the receiving side of a channel sender is gone
	ErrDisconnected = errors.New("callback receiver disconnected")
	// ErrCancelled is returned when the operation behind a sender was cancelled
	ErrCancelled = errors.New("operation was cancelled")
)

// SendError wraps a transport failure while delivering an update
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send progress update: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that a bounded send did not complete in time
type TimeoutError struct {
	Detail string
}

func (e *TimeoutError) Error() string {
	return "callback timeout: " + e.Detail
}
