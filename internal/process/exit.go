package process

import (
	"os"
)

// ExitReason describes why a process terminated
type ExitReason string

const (
	ExitReasonSuccess ExitReason = "success" // Exit code 0
	ExitReasonError   ExitReason = "error"   // Exit code != 0
	ExitReasonSignal  ExitReason = "signal"  // Killed by signal
	ExitReasonUnknown ExitReason = "unknown"
)

// Exit is the decoded termination status of one process.
type Exit struct {
	PID    int        `json:"pid"`
	Code   int        `json:"exit_code"`
	Signal string     `json:"signal,omitempty"`
	Reason ExitReason `json:"exit_reason"`
}

// Success reports a zero exit status.
func (e *Exit) Success() bool {
	return e != nil && e.Reason == ExitReasonSuccess
}

// decodeState falls back to the portable ProcessState view; platforms with
// wait statuses refine it in decodeWaitStatus.
func decodeState(pid int, state *os.ProcessState) *Exit {
	if exit, ok := decodeWaitStatus(pid, state); ok {
		return exit
	}

	code := state.ExitCode()
	reason := ExitReasonError
	switch {
	case code == 0:
		reason = ExitReasonSuccess
	case code < 0:
		reason = ExitReasonUnknown
	}
	return &Exit{PID: pid, Code: code, Reason: reason}
}
