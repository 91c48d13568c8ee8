package application

import (
	"context"
	"time"
)

// Pacer is the rate-limit policy applied between consecutive upstream calls
// of a single job. Wait blocks for the policy's interval or until ctx ends.
type Pacer interface {
	Wait(ctx context.Context) error
}

// FixedDelay waits a constant interval between calls. A zero or negative
// interval does not wait at all.
type FixedDelay struct {
	Interval time.Duration
}

// Wait sleeps for the configured interval, returning ctx.Err() if the
// context is cancelled first.
func (d FixedDelay) Wait(ctx context.Context) error {
	if d.Interval <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d.Interval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NoDelay is a Pacer that never waits. Intended for tests.
type NoDelay struct{}

// Wait returns immediately with the context's error, if any.
func (NoDelay) Wait(ctx context.Context) error {
	return ctx.Err()
}
