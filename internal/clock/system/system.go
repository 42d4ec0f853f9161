// Package system provides the pacing sleeper used by the fetcher and crawler.
package system

import (
	"context"
	"fmt"
	"time"
)

// Clock blocks for pacing delays on the wall clock.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Sleep blocks for d or until ctx is done. Non-positive durations return immediately.
func (Clock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
