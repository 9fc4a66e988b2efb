package callback

import (
	"context"
	"errors"
	"testing"
	"time"
)

// flakySender fails with the queued errors before succeeding
type flakySender struct {
	errs  []error
	calls int
}

func (f *flakySender) SendProgress(context.Context, ProgressUpdate) error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *flakySender) ShouldCancel() bool { return false }

func quickPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffMultiplier: 2}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffMultiplier: 2}

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{10, time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.retry); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}

func TestRetryPolicyValidate(t *testing.T) {
	if err := DefaultRetryPolicy().Validate(); err != nil {
		t.Errorf("Default policy should be valid: %v", err)
	}

	bad := []RetryPolicy{
		{MaxRetries: -1, InitialDelay: time.Millisecond, MaxDelay: time.Second, BackoffMultiplier: 2},
		{InitialDelay: 0, MaxDelay: time.Second, BackoffMultiplier: 2},
		{InitialDelay: time.Millisecond, MaxDelay: time.Second, BackoffMultiplier: 0},
		{InitialDelay: 2 * time.Second, MaxDelay: time.Second, BackoffMultiplier: 2},
	}
	for i, p := range bad {
		if p.Validate() == nil {
			t.Errorf("policy %d: expected a validation error", i)
		}
	}
}

func TestSendWithRetry(t *testing.T) {
	transport := &SendError{Err: errors.New("broken pipe")}

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		{"first try", nil, 1, false},
		{"recovers", []error{transport, transport}, 3, false},
		{"gives up", []error{transport, transport, transport}, 3, true},
		{"timeout not retried", []error{&TimeoutError{Detail: "slow"}}, 1, true},
		{"disconnect not retried", []error{ErrDisconnected}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &flakySender{errs: tt.errs}
			err := SendWithRetry(context.Background(), s, Output("op_1", "line", false), quickPolicy())
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if s.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", s.calls, tt.wantCalls)
			}
		})
	}
}

func TestSendWithRetryStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &flakySender{errs: []error{&SendError{Err: errors.New("down")}}}
	policy := quickPolicy()
	policy.InitialDelay = time.Hour
	policy.MaxDelay = time.Hour
	if err := SendWithRetry(ctx, s, Output("op_1", "line", false), policy); err == nil {
		t.Error("Expected the first error back")
	}
	if s.calls != 1 {
		t.Errorf("Expected no retry after cancellation, got %d calls", s.calls)
	}
}
