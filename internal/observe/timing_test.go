package observe

import (
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
)

func TestTiming_CompletedDuration(t *testing.T) {
	clock := quartz.NewMock(t)
	timing := NewTiming(clock)

	assert.Equal(t, clock.Now(), timing.StartedAt)
	assert.Equal(t, time.Duration(0), timing.Duration())

	timing.Complete()
	assert.False(t, timing.CompletedAt.IsZero())
	assert.Equal(t, timing.CompletedAt.Sub(timing.StartedAt), timing.Duration())
}

func TestTiming_RealClock(t *testing.T) {
	timing := NewTiming(quartz.NewReal())
	time.Sleep(2 * time.Millisecond)
	timing.Complete()

	assert.GreaterOrEqual(t, timing.Duration(), 2*time.Millisecond)
}
