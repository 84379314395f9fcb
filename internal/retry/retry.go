// Package retry implements bounded retries with an incremental backoff.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/metrics-forwarder/internal/clock"
	"github.com/and161185/metrics-forwarder/internal/errs"
)

// Policy describes how many times and how long to wait between attempts.
type Policy struct {
	NumRetries int           // Retries after the first attempt.
	Delay      time.Duration // Delay before the first retry.
	Increment  time.Duration // Added to the delay for every further retry.
	MaxDelay   time.Duration // Upper bound on a single delay; 0 means unbounded.
}

// NextDelay returns the wait before retry number attempt (1-based):
// Delay + (attempt-1)*Increment, capped at MaxDelay.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Delay + time.Duration(attempt-1)*p.Increment
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Do calls fn until it succeeds, returns an error that retriable rejects,
// or the policy runs out of retries. onRetry, if set, is called before
// each wait with the retry number, the delay and the error that caused it.
//
// When retries are exhausted the returned error wraps both
// errs.ErrRetriesExhausted and the last error.
func Do(
	ctx context.Context,
	p Policy,
	clk clock.Clock,
	fn func(ctx context.Context) error,
	retriable func(error) bool,
	onRetry func(attempt int, delay time.Duration, err error),
) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !retriable(err) {
			return err
		}
		if attempt >= p.NumRetries {
			return fmt.Errorf("%w after %d attempts: %w", errs.ErrRetriesExhausted, attempt+1, err)
		}

		delay := p.NextDelay(attempt + 1)
		if onRetry != nil {
			onRetry(attempt+1, delay, err)
		}

		select {
		case <-clk.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w (last error: %v)", ctx.Err(), err)
		}
	}
}
