package report

import (
	"fmt"
	"time"

	"github.com/psantana5/devrun/internal/logging"
	"github.com/psantana5/devrun/internal/supervisor"
)

// Report is the rendered view of one supervised run.
type Report struct {
	// Identity
	RunID   string `json:"run_id" yaml:"run_id"`
	Command string `json:"command" yaml:"command"`

	Policy PolicyView `json:"policy" yaml:"policy"`

	// Outcome
	Status string `json:"status" yaml:"status"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`

	Attempts []AttemptView `json:"attempts" yaml:"attempts"`

	// Timing
	StartedAt       time.Time `json:"started_at" yaml:"started_at"`
	EndedAt         time.Time `json:"ended_at" yaml:"ended_at"`
	DurationSeconds float64   `json:"duration_seconds" yaml:"duration_seconds"`

	Host *HostInfo `json:"host,omitempty" yaml:"host,omitempty"`
}

// PolicyView is the policy with the delay in seconds.
type PolicyView struct {
	MaxAttempts       int     `json:"max_attempts" yaml:"max_attempts"`
	RetryDelaySeconds float64 `json:"retry_delay_seconds" yaml:"retry_delay_seconds"`
	FatalExitCode     int     `json:"fatal_exit_code" yaml:"fatal_exit_code"`
	LaunchErrorCodes  []int   `json:"launch_error_codes,omitempty" yaml:"launch_error_codes,omitempty"`
}

// AttemptView is one attempt. ExitCode is nil when no process exited.
type AttemptView struct {
	Number          int     `json:"number" yaml:"number"`
	State           string  `json:"state" yaml:"state"`
	ExitCode        *int    `json:"exit_code" yaml:"exit_code"`
	Signal          string  `json:"signal,omitempty" yaml:"signal,omitempty"`
	PID             int     `json:"pid,omitempty" yaml:"pid,omitempty"`
	DurationSeconds float64 `json:"duration_seconds" yaml:"duration_seconds"`
	Error           string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewReport builds a report from an outcome. host may be nil.
func NewReport(o *supervisor.Outcome, host *HostInfo) *Report {
	r := &Report{
		RunID:   o.RunID,
		Command: o.Command,
		Policy: PolicyView{
			MaxAttempts:       o.Policy.MaxAttempts,
			RetryDelaySeconds: o.Policy.RetryDelay.Seconds(),
			FatalExitCode:     o.Policy.FatalExitCode,
			LaunchErrorCodes:  o.Policy.LaunchErrorCodes,
		},
		Status:          string(o.Status),
		Reason:          string(o.Reason),
		Error:           o.Error,
		Attempts:        make([]AttemptView, 0, len(o.Attempts)),
		StartedAt:       o.StartedAt,
		EndedAt:         o.EndedAt,
		DurationSeconds: o.Duration().Seconds(),
		Host:            host,
	}

	for _, a := range o.Attempts {
		view := AttemptView{
			Number:          a.Number(),
			State:           string(a.State),
			Signal:          a.Signal,
			PID:             a.PID,
			DurationSeconds: a.Duration.Seconds(),
			Error:           a.Error,
		}
		if a.Ran() {
			code := a.ExitCode
			view.ExitCode = &code
		}
		r.Attempts = append(r.Attempts, view)
	}

	return r
}

// Summary is the one-line outcome ops grep for.
func Summary(o *supervisor.Outcome) string {
	reason := string(o.Reason)
	if reason == "" {
		reason = "none"
	}

	lastExit := "n/a"
	if last := o.LastAttempt(); last != nil && last.Ran() {
		lastExit = fmt.Sprintf("%d", last.ExitCode)
	}

	return fmt.Sprintf("RUN %s | status=%s | reason=%s | attempts=%d/%d | runtime=%.1fs | last_exit=%s",
		o.RunID,
		o.Status,
		reason,
		len(o.Attempts),
		o.Policy.MaxAttempts,
		o.Duration().Seconds(),
		lastExit,
	)
}

// LogSummary logs Summary at a level matching the outcome.
func LogSummary(logger *logging.Logger, o *supervisor.Outcome) {
	if o.Status == supervisor.StatusSuccess {
		logger.Info(Summary(o))
		return
	}
	logger.Error(Summary(o))
}
