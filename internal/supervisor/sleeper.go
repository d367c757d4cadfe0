package supervisor

import (
	"context"
	"time"

	"github.com/coder/quartz"
)

// Sleeper waits out the retry delay.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// ClockSleeper waits on a quartz clock timer.
type ClockSleeper struct {
	Clock quartz.Clock
}

// Sleep returns early with the context's error if it is done first.
func (s ClockSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := s.Clock.NewTimer(d, "supervisor", "retry_delay")
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
