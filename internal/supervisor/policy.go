package supervisor

import (
	"fmt"
	"time"
)

// NoFatalExitCode disables the fatal abort check.
const NoFatalExitCode = -1

// Policy bounds a supervised run.
type Policy struct {
	// MaxAttempts is the total attempt budget, first run included.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
	// RetryDelay is waited between a failed attempt and the next one.
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`
	// FatalExitCode stops all retries when observed; NoFatalExitCode disables it.
	FatalExitCode int `json:"fatal_exit_code" yaml:"fatal_exit_code"`
	// LaunchErrorCodes are statuses a shell uses for "cannot execute" and
	// "not found"; they are treated like a failed process start.
	LaunchErrorCodes []int `json:"launch_error_codes,omitempty" yaml:"launch_error_codes,omitempty"`
}

// DefaultPolicy matches the dev server workflow: one run plus ten retries,
// three seconds apart, abort on exit status 3.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:      11,
		RetryDelay:       3 * time.Second,
		FatalExitCode:    3,
		LaunchErrorCodes: []int{126, 127},
	}
}

// Validate checks the policy before any process is spawned.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", ErrInvalidPolicy, p.MaxAttempts)
	}
	if p.RetryDelay < 0 {
		return fmt.Errorf("%w: retry delay must not be negative, got %s", ErrInvalidPolicy, p.RetryDelay)
	}
	if p.FatalExitCode != NoFatalExitCode && (p.FatalExitCode < 1 || p.FatalExitCode > 255) {
		return fmt.Errorf("%w: fatal exit code must be %d or within 1-255, got %d", ErrInvalidPolicy, NoFatalExitCode, p.FatalExitCode)
	}
	for _, code := range p.LaunchErrorCodes {
		if code < 1 || code > 255 {
			return fmt.Errorf("%w: launch error code must be within 1-255, got %d", ErrInvalidPolicy, code)
		}
	}
	return nil
}

// IsFatal reports whether code aborts the run.
func (p Policy) IsFatal(code int) bool {
	return p.FatalExitCode != NoFatalExitCode && code == p.FatalExitCode
}

// IsLaunchFailure reports whether code means the shell could not launch the command.
func (p Policy) IsLaunchFailure(code int) bool {
	for _, c := range p.LaunchErrorCodes {
		if c == code {
			return true
		}
	}
	return false
}

// MaxDelayTotal is the longest a run can spend waiting between attempts.
func (p Policy) MaxDelayTotal() time.Duration {
	if p.MaxAttempts <= 1 {
		return 0
	}
	return time.Duration(p.MaxAttempts-1) * p.RetryDelay
}
