package clock

import (
	"context"
	"math"
	"time"
)

// minDelay guards against firing twice in immediate succession when the
// boundary is computed right before it passes.
const minDelay = 500 * time.Millisecond

// BoundaryDelay returns how long to wait from now until the next wall-clock
// multiple of interval within the current minute. interval must be a small
// number of seconds that evenly divides 60 (10s, 20s, 30s) so that repeated
// waits land on the same synchronized ticks regardless of when polling
// started. Sub-second precision is kept so the boundary is never missed by
// rounding; delays under minDelay roll over to the following boundary.
func BoundaryDelay(now time.Time, interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	ivl := interval.Seconds()
	sec := float64(now.Second()) + float64(now.Nanosecond())/1e9
	next := (math.Floor(sec/ivl) + 1) * ivl
	d := time.Duration((next - sec) * float64(time.Second))
	if d < minDelay {
		d += interval
	}
	return d
}

// WaitUntilNextBoundary suspends the caller until the next aligned boundary
// or until ctx is done, whichever comes first.
func WaitUntilNextBoundary(ctx context.Context, interval time.Duration) error {
	t := time.NewTimer(BoundaryDelay(time.Now(), interval))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
