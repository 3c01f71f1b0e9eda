package retry

import (
	"context"
	"time"
)

// Sleeper suspends the caller. Implementations must return ctx.Err() when
// the context is done before d elapses.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// ContextSleeper waits on a timer or the context, whichever comes first.
type ContextSleeper struct{}

func (ContextSleeper) Sleep(ctx context.Context, d time.Duration) error {
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

// ProgressFunc receives the elapsed and total duration of a wait.
type ProgressFunc func(elapsed, total time.Duration)

// TickingSleeper reports progress every Interval while waiting.
type TickingSleeper struct {
	Interval time.Duration
	OnTick   ProgressFunc
}

func (s TickingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if s.Interval <= 0 || s.OnTick == nil || d <= s.Interval {
		return ContextSleeper{}.Sleep(ctx, d)
	}

	start := time.Now()
	timer := time.NewTimer(d)
	defer timer.Stop()
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			s.OnTick(d, d)
			return nil
		case <-ticker.C:
			elapsed := time.Since(start)
			if elapsed > d {
				elapsed = d
			}
			s.OnTick(elapsed, d)
		}
	}
}
