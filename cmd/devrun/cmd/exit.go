package cmd

import (
	"fmt"
	"io"

	"github.com/psantana5/devrun/internal/supervisor"
)

// Process exit codes of devrun itself.
const (
	ExitSuccess     = 0
	ExitExhausted   = 1
	ExitFatalAbort  = 2
	ExitLaunchError = 3
	ExitCanceled    = 4
	ExitUsage       = 64
)

// exitCode maps the error returned by the root command to a process exit
// code. Supervisor failures were already reported; setup errors are printed.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return ExitSuccess
	}

	if reason, ok := supervisor.ReasonOf(err); ok {
		switch reason {
		case supervisor.ReasonExhausted:
			return ExitExhausted
		case supervisor.ReasonFatalAbort:
			return ExitFatalAbort
		case supervisor.ReasonLaunchError:
			return ExitLaunchError
		case supervisor.ReasonCanceled:
			return ExitCanceled
		}
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitUsage
}
