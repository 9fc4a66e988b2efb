package callback

import (
	"context"
	"errors"
	"math"
	"time"
)

// RetryPolicy bounds redelivery of an update after a transport failure
type RetryPolicy struct {
	MaxRetries        int           // retries after the first attempt (0 = none)
	InitialDelay      time.Duration // delay before the first retry
	MaxDelay          time.Duration // cap on any single delay
	BackoffMultiplier float64       // growth per retry, e.g. 2.0
}

// DefaultRetryPolicy is used for final results, which a client should not miss
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Delay returns the wait before retry number retry (0-based), with
// exponential backoff capped at MaxDelay
func (p RetryPolicy) Delay(retry int) time.Duration {
	if retry <= 0 {
		return p.InitialDelay
	}
	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(retry))
	if time.Duration(delay) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Validate checks the policy can be used
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("MaxRetries must be non-negative")
	}
	if p.InitialDelay <= 0 || p.MaxDelay <= 0 {
		return errors.New("retry delays must be positive")
	}
	if p.BackoffMultiplier <= 0 {
		return errors.New("BackoffMultiplier must be positive")
	}
	if p.InitialDelay > p.MaxDelay {
		return errors.New("InitialDelay cannot be greater than MaxDelay")
	}
	return nil
}

// Retryable reports whether a failed send may succeed if repeated.
// Only transport failures qualify; timeouts and cancellation do not.
func Retryable(err error) bool {
	var sendErr *SendError
	return errors.As(err, &sendErr)
}

// SendWithRetry delivers update, retrying transport failures under policy
// until ctx is done. It returns the last error.
func SendWithRetry(ctx context.Context, s Sender, update ProgressUpdate, policy RetryPolicy) error {
	err := s.SendProgress(ctx, update)
	for retry := 0; err != nil && Retryable(err) && retry < policy.MaxRetries; retry++ {
		timer := time.NewTimer(policy.Delay(retry))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		err = s.SendProgress(ctx, update)
	}
	return err
}
