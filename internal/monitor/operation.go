package monitor

import "time"

// Result is the outcome stored on a terminal operation
type Result struct {
	Success bool
	Output  string
	Error   string
}

// Success builds a successful result
func Success(output string) *Result {
	return &Result{Success: true, Output: output}
}

// Failure builds a failed result carrying msg verbatim
func Failure(msg string) *Result {
	return &Result{Error: msg}
}

// Text returns the payload, whichever side it is on
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	if r.Success {
		return r.Output
	}
	return r.Error
}

// Request describes an operation to register
type Request struct {
	Command     string
	Description string
	// Timeout of zero means the monitor's default timeout
	Timeout          time.Duration
	WorkingDirectory string
}

// OperationInfo is the record of one tracked unit of work.
// Values returned by the Monitor are snapshots; mutating them has no effect.
type OperationInfo struct {
	ID               string
	Command          string
	Description      string
	State            State
	StartTime        time.Time
	EndTime          time.Time // zero while active
	FirstWaitTime    time.Time // zero until the first wait call
	Timeout          time.Duration
	WorkingDirectory string
	Result           *Result // nil while active

	token *Token
}

// clone copies the record, including its result, so the copy shares no
// mutable state with the stored entry
func (o OperationInfo) clone() OperationInfo {
	if o.Result != nil {
		r := *o.Result
		o.Result = &r
	}
	return o
}

// Token returns the cancellation token shared with the executing work
func (o OperationInfo) Token() *Token {
	return o.token
}

// IsActive reports whether the operation has not reached a terminal state
func (o OperationInfo) IsActive() bool {
	return o.State.IsActive()
}

// Duration is the elapsed time, up to EndTime once terminal
func (o OperationInfo) Duration() time.Duration {
	if o.EndTime.IsZero() {
		return time.Since(o.StartTime)
	}
	return o.EndTime.Sub(o.StartTime)
}

// finish moves the record into a terminal state
func (o *OperationInfo) finish(state State, result *Result, now time.Time) {
	o.State = state
	o.EndTime = now
	o.Result = result
}
