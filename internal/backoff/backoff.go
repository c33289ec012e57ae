// Package backoff provides the small linear retry helper the CP
// client uses around connect, patterned on the Timeout/Interval knobs
// of the teacher's internal/circuitbreaker.Config without adopting its
// full open/half-open/closed state machine — this module only ever
// needs "retry a fixed number of times with growing delay".
package backoff

import (
	"context"
	"time"
)

// Linear retries fn up to maxAttempts times, sleeping attempt×unit
// between tries. It returns fn's last error if every attempt fails, or
// nil as soon as one succeeds. ctx cancellation aborts early.
func Linear(ctx context.Context, maxAttempts int, unit time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(time.Duration(attempt) * unit):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
