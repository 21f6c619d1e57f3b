// Package retry implements the exponential backoff the connection pool uses
// when recovering from transport faults.
package retry

import (
	"context"
	"time"
)

// Backoff produces successive delays starting at initial and doubling each
// attempt, matching original_source/database_manager.py's
// `retry_delay *= 2` loop.
type Backoff struct {
	initial time.Duration
	current time.Duration
}

// New creates a Backoff starting at initial.
func New(initial time.Duration) *Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	return &Backoff{initial: initial, current: initial}
}

// Next returns the current delay and doubles it for the following call.
func (b *Backoff) Next() time.Duration {
	d := b.current
	b.current *= 2
	return d
}

// Reset restores the backoff to its initial delay.
func (b *Backoff) Reset() {
	b.current = b.initial
}

// Sleep waits for the next backoff delay or until ctx is done, whichever
// comes first. It returns ctx.Err() if the context won the race.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do calls fn up to attempts times, sleeping a doubling backoff that starts
// at initial between failed attempts. It returns nil on the first success,
// ctx.Err() if ctx is done while waiting, or fn's last error otherwise.
func Do(ctx context.Context, attempts int, initial time.Duration, fn func(attempt int) error) error {
	backoff := New(initial)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt < attempts {
			if sleepErr := Sleep(ctx, backoff.Next()); sleepErr != nil {
				return sleepErr
			}
		}
	}
	return err
}
