package shellpool

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a worker does not answer in time
	ErrTimeout = errors.New("shell communication timeout")
	// ErrProcessDied is returned when the worker process exits or its pipes break
	ErrProcessDied = errors.New("shell process died unexpectedly")
	// ErrPoolFull is returned when the global shell ceiling is reached
	ErrPoolFull = errors.New("shell pool is at capacity")
)

// SpawnError reports a failure to start a worker process
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn shell process: %v", e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// SerializationError reports a command that could not be encoded or a
// response that could not be decoded
type SerializationError struct {
	Line string
	Err  error
}

func (e *SerializationError) Error() string {
	if e.Line != "" {
		return fmt.Sprintf("invalid shell protocol data %q: %v", truncate(e.Line, 120), e.Err)
	}
	return fmt.Sprintf("failed to serialize command: %v", e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// WorkingDirectoryError reports a working directory that cannot be used
type WorkingDirectoryError struct {
	Dir string
	Err error
}

func (e *WorkingDirectoryError) Error() string {
	return fmt.Sprintf("working directory access error: %s: %v", e.Dir, e.Err)
}

func (e *WorkingDirectoryError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a caller should back off or fall back to a
// direct process rather than fail. Capacity and timeouts are retryable;
// spawn and serialization failures are not.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPoolFull) || errors.Is(err, ErrTimeout)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
