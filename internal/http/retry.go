package http

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff decides how long to wait before the given retry attempt.
// attempt is 1 for the wait before the second try.
type Backoff interface {
	Wait(ctx context.Context, attempt int) error
}

// RetryPolicy bounds the number of attempts made for one transfer.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int

	// Backoff is waited between attempts. nil means no wait.
	Backoff Backoff
}

// DefaultRetryPolicy returns three attempts five seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Backoff:  FixedBackoff{Delay: 5 * time.Second},
	}
}

// FixedBackoff waits the same delay before every retry.
type FixedBackoff struct {
	Delay time.Duration
}

// Wait implements Backoff.
func (b FixedBackoff) Wait(ctx context.Context, attempt int) error {
	return Sleep(ctx, b.Delay)
}

// ExponentialBackoff doubles the delay on every retry, capped at Max, with
// jitter of 0.5x to 1.5x.
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
}

// Wait implements Backoff.
func (b ExponentialBackoff) Wait(ctx context.Context, attempt int) error {
	backoff := b.Initial * time.Duration(1<<uint(attempt-1))
	if b.Max > 0 && backoff > b.Max {
		backoff = b.Max
	}

	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))
	return Sleep(ctx, jitter)
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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
