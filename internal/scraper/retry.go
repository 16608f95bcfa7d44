package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy controls how a failed page fetch is retried. The delay before
// retry n (1-based) is BaseDelay + BaseDelay*Growth*n, capped by MaxDelay
// when it is set. MaxAttempts counts every attempt including the first; 0
// retries forever.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Growth      float64
	MaxDelay    time.Duration
}

// DefaultRetryPolicy retries forever with a linearly growing delay of
// base + base*failures.
func DefaultRetryPolicy(base time.Duration) RetryPolicy {
	return RetryPolicy{BaseDelay: base, Growth: 1}
}

// Delay returns the uncapped wait after the given number of consecutive
// failures.
func (p RetryPolicy) Delay(failures int) time.Duration {
	return max(p.BaseDelay+time.Duration(float64(p.BaseDelay)*p.Growth*float64(failures)), 0)
}

// Backoff returns a fresh backoff for one page. Each call to Next reports
// the wait after one more failure, or stop once MaxAttempts is used up.
func (p RetryPolicy) Backoff() retry.Backoff {
	failures := 0
	var b retry.Backoff = retry.BackoffFunc(func() (time.Duration, bool) {
		failures++
		return p.Delay(failures), false
	})
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	if p.MaxAttempts > 0 {
		b = retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
	}
	return b
}

// RetryExhaustedError is returned when a page could not be fetched within
// RetryPolicy.MaxAttempts attempts.
type RetryExhaustedError struct {
	Attempts int
	Start    int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("giving up on page at start=%d after %d attempts: %v", e.Start, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

type sleepFunc func(ctx context.Context, d time.Duration) error

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
