// Package supervisor runs an external command until it succeeds, exhausts a
// fixed attempt budget, or exits with a designated fatal status.
//
// Attempts run strictly one after another. Between a failed attempt and the
// next one the supervisor waits a fixed delay; it never waits after a success,
// after a terminal failure, or after the last attempt.
//
//	sup, err := supervisor.New(runner, supervisor.DefaultPolicy())
//	outcome, err := sup.Run(ctx, "cargo run")
//	if errors.Is(err, supervisor.ErrFatalAbort) {
//		// the command asked not to be retried
//	}
package supervisor
