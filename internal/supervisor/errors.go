package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/psantana5/devrun/internal/process"
)

var (
	// ErrEmptyCommand is returned before anything runs.
	ErrEmptyCommand = errors.New("command must not be empty")
	// ErrInvalidPolicy wraps every policy validation failure.
	ErrInvalidPolicy = errors.New("invalid retry policy")

	ErrExhausted  = errors.New("attempts exhausted")
	ErrFatalAbort = errors.New("fatal exit code")
	ErrLaunch     = errors.New("command could not be launched")
	ErrCanceled   = errors.New("supervision canceled")
)

// Reason names why a run failed.
type Reason string

const (
	ReasonExhausted   Reason = "exhausted"
	ReasonFatalAbort  Reason = "fatal_abort"
	ReasonLaunchError Reason = "launch_error"
	ReasonCanceled    Reason = "canceled"
)

// ErrorType categorizes an attempt for the retry decision
type ErrorType int

const (
	ErrorTypeNone      ErrorType = iota // Exit 0
	ErrorTypeTransient                  // Non-zero, retry possible
	ErrorTypeFatal                      // Fatal exit code, no retry
	ErrorTypeLaunch                     // Never started, no retry
	ErrorTypeCanceled                   // Context done, no retry
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeNone:
		return "none"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeFatal:
		return "fatal"
	case ErrorTypeLaunch:
		return "launch"
	case ErrorTypeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Retryable reports whether another attempt may follow.
func (t ErrorType) Retryable() bool {
	return t == ErrorTypeTransient
}

// Classify determines the error type of one attempt from the runner's result.
// The fatal code is checked before the launch error codes.
func (p Policy) Classify(exit *process.Exit, err error) ErrorType {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ErrorTypeCanceled
		}
		return ErrorTypeLaunch
	}
	if exit == nil {
		return ErrorTypeLaunch
	}
	if exit.Success() {
		return ErrorTypeNone
	}
	if p.IsFatal(exit.Code) {
		return ErrorTypeFatal
	}
	if exit.Reason == process.ExitReasonError && p.IsLaunchFailure(exit.Code) {
		return ErrorTypeLaunch
	}
	return ErrorTypeTransient
}

// Failure is the terminal error of a run that did not succeed.
type Failure struct {
	Reason       Reason
	Attempts     int
	LastExitCode int // -1 when no process exited
	Err          error
}

func (f *Failure) Error() string {
	switch f.Reason {
	case ReasonExhausted:
		return fmt.Sprintf("command failed after %d attempts (last exit code %d)", f.Attempts, f.LastExitCode)
	case ReasonFatalAbort:
		return fmt.Sprintf("command aborted with fatal exit code %d on attempt %d", f.LastExitCode, f.Attempts)
	case ReasonLaunchError:
		if f.Err != nil {
			return fmt.Sprintf("command could not be launched on attempt %d: %v", f.Attempts, f.Err)
		}
		return fmt.Sprintf("command could not be launched on attempt %d (exit code %d)", f.Attempts, f.LastExitCode)
	case ReasonCanceled:
		return fmt.Sprintf("supervision canceled after %d attempts", f.Attempts)
	default:
		return fmt.Sprintf("command failed: %s", f.Reason)
	}
}

// Unwrap implements error unwrapping
func (f *Failure) Unwrap() error {
	return f.Err
}

// Is matches the sentinel of the failure's reason.
func (f *Failure) Is(target error) bool {
	return target == sentinel(f.Reason)
}

func sentinel(r Reason) error {
	switch r {
	case ReasonExhausted:
		return ErrExhausted
	case ReasonFatalAbort:
		return ErrFatalAbort
	case ReasonLaunchError:
		return ErrLaunch
	case ReasonCanceled:
		return ErrCanceled
	default:
		return nil
	}
}

// ReasonOf extracts the failure reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason, true
	}
	return "", false
}
