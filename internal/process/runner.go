// Package process launches a single attempt of the supervised command.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultShell runs --command strings.
const DefaultShell = "/bin/sh"

// DefaultGracePeriod is how long a canceled attempt gets between SIGTERM and SIGKILL.
const DefaultGracePeriod = 5 * time.Second

// Config controls how attempts are spawned.
type Config struct {
	// Shell interprets the command string as `<Shell> -c <command>`.
	Shell string
	// Argv, when set, is executed directly and the command string passed to Run
	// is only used for error messages.
	Argv []string

	WorkDir string
	// Env entries (KEY=VALUE) appended to the inherited environment.
	Env []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	GracePeriod time.Duration
}

// Runner spawns one process per call to Run.
type Runner struct {
	cfg Config
}

// NewRunner creates a runner. Output is forwarded to the process's own
// stdout/stderr unless the config says otherwise.
func NewRunner(cfg Config) *Runner {
	if cfg.Shell == "" {
		cfg.Shell = DefaultShell
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	return &Runner{cfg: cfg}
}

// LaunchError means the process never started.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to start %q: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Run executes the command and blocks until it exits.
//
// A non-nil error is either a *LaunchError (nothing ran) or the context's
// error when the attempt was interrupted; in the latter case the returned
// Exit still describes how the process ended.
func (r *Runner) Run(ctx context.Context, command string) (*Exit, error) {
	cmd := r.command(ctx, command)

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Command: command, Err: err}
	}

	pid := cmd.Process.Pid
	waitErr := cmd.Wait()

	exit := &Exit{PID: pid, Code: -1, Reason: ExitReasonUnknown}
	if cmd.ProcessState != nil {
		exit = decodeState(pid, cmd.ProcessState)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return exit, fmt.Errorf("attempt interrupted: %w", ctxErr)
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && cmd.ProcessState == nil {
		return nil, &LaunchError{Command: command, Err: waitErr}
	}

	return exit, nil
}

func (r *Runner) command(ctx context.Context, command string) *exec.Cmd {
	var cmd *exec.Cmd
	if len(r.cfg.Argv) > 0 {
		cmd = exec.CommandContext(ctx, r.cfg.Argv[0], r.cfg.Argv[1:]...)
	} else {
		cmd = exec.CommandContext(ctx, r.cfg.Shell, "-c", command)
	}

	cmd.Dir = r.cfg.WorkDir
	if len(r.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), r.cfg.Env...)
	}

	cmd.Stdin = r.cfg.Stdin
	cmd.Stdout = r.cfg.Stdout
	cmd.Stderr = r.cfg.Stderr

	// Own process group so cancellation reaches the whole tree (cargo -> server).
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return terminate(cmd)
	}
	cmd.WaitDelay = r.cfg.GracePeriod

	return cmd
}

// CommandLine renders argv the way it is shown in logs and reports.
func CommandLine(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			parts[i] = fmt.Sprintf("%q", a)
		} else {
			parts[i] = a
		}
	}
	return strings.Join(parts, " ")
}
