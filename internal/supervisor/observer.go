package supervisor

import "time"

// Observer receives lifecycle events. Calls happen on the supervisor's
// goroutine, in order; implementations must not block for long. The Outcome
// passed to RunStarted and RunFinished is owned by the supervisor: copy it
// with Clone before handing it to another goroutine.
type Observer interface {
	RunStarted(o *Outcome)
	AttemptStarted(a Attempt)
	AttemptFinished(a Attempt)
	RetryScheduled(a Attempt, delay time.Duration)
	RunFinished(o *Outcome)
}

// NopObserver can be embedded to implement only some events.
type NopObserver struct{}

func (NopObserver) RunStarted(*Outcome) {}
func (NopObserver) AttemptStarted(Attempt) {}
func (NopObserver) AttemptFinished(Attempt) {}
func (NopObserver) RetryScheduled(Attempt, time.Duration) {}
func (NopObserver) RunFinished(*Outcome) {}
