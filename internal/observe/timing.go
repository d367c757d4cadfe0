package observe

import (
	"time"

	"github.com/coder/quartz"
)

// Timing records start/end timestamps only
type Timing struct {
	StartedAt   time.Time
	CompletedAt time.Time

	clock quartz.Clock
}

// NewTiming creates timing with the clock's current time as start
func NewTiming(clock quartz.Clock) *Timing {
	return &Timing{
		StartedAt: clock.Now("observe", "start"),
		clock:     clock,
	}
}

// Complete records completion time
func (t *Timing) Complete() {
	t.CompletedAt = t.clock.Now("observe", "complete")
}

// Duration returns execution duration
func (t *Timing) Duration() time.Duration {
	if t.CompletedAt.IsZero() {
		return t.clock.Since(t.StartedAt, "observe", "since")
	}
	return t.CompletedAt.Sub(t.StartedAt)
}
