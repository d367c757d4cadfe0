package supervisor

import "time"

// AttemptState is the recorded result of one attempt.
type AttemptState string

const (
	StatePending     AttemptState = "pending" // not yet run
	StateSucceeded   AttemptState = "succeeded"
	StateFailed      AttemptState = "failed"
	StateFatal       AttemptState = "fatal"
	StateLaunchError AttemptState = "launch_error"
	StateCanceled    AttemptState = "canceled"
)

// Attempt is one execution of the command. Attempts are created in order and
// never changed once finished.
type Attempt struct {
	Index     int           `json:"index" yaml:"index"` // starts at 0
	Command   string        `json:"command" yaml:"command"`
	State     AttemptState  `json:"state" yaml:"state"`
	ExitCode  int           `json:"exit_code" yaml:"exit_code"`
	Signal    string        `json:"signal,omitempty" yaml:"signal,omitempty"`
	PID       int           `json:"pid,omitempty" yaml:"pid,omitempty"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	EndedAt   time.Time     `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Number is the 1-based attempt number shown to humans.
func (a Attempt) Number() int {
	return a.Index + 1
}

// Ran reports whether a process actually exited for this attempt.
func (a Attempt) Ran() bool {
	switch a.State {
	case StatePending, StateLaunchError:
		return false
	case StateCanceled:
		return a.PID != 0
	default:
		return true
	}
}

// Status is the overall result of a supervised run.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Outcome is the in-memory record of one supervised run.
type Outcome struct {
	RunID     string    `json:"run_id" yaml:"run_id"`
	Command   string    `json:"command" yaml:"command"`
	Policy    Policy    `json:"policy" yaml:"policy"`
	Attempts  []Attempt `json:"attempts" yaml:"attempts"`
	Status    Status    `json:"status" yaml:"status"`
	Reason    Reason    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
}

// Duration is the wall time of the run so far.
func (o *Outcome) Duration() time.Duration {
	if o.EndedAt.IsZero() {
		return 0
	}
	return o.EndedAt.Sub(o.StartedAt)
}

// LastAttempt returns the most recent attempt, or nil before the first one finished.
func (o *Outcome) LastAttempt() *Attempt {
	if len(o.Attempts) == 0 {
		return nil
	}
	a := o.Attempts[len(o.Attempts)-1]
	return &a
}

// Clone returns a copy that shares nothing with o.
func (o *Outcome) Clone() *Outcome {
	c := *o
	c.Attempts = append([]Attempt(nil), o.Attempts...)
	c.Policy.LaunchErrorCodes = append([]int(nil), o.Policy.LaunchErrorCodes...)
	return &c
}
