package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/devrun/internal/logging"
	"github.com/psantana5/devrun/internal/observe"
	"github.com/psantana5/devrun/internal/process"
)

// Runner executes one attempt of the command.
type Runner interface {
	Run(ctx context.Context, command string) (*process.Exit, error)
}

var _ Runner = (*process.Runner)(nil)

// Supervisor runs a command under a retry policy.
type Supervisor struct {
	runner    Runner
	policy    Policy
	clock     quartz.Clock
	sleeper   Sleeper
	observers []Observer
	logger    *logging.Logger
	tracer    trace.Tracer
	newID     func() string
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithClock sets the clock used for timestamps and, unless WithSleeper is
// also given, for the retry delay.
func WithClock(clock quartz.Clock) Option {
	return func(s *Supervisor) {
		s.clock = clock
	}
}

// WithSleeper replaces the retry delay implementation.
func WithSleeper(sleeper Sleeper) Option {
	return func(s *Supervisor) {
		s.sleeper = sleeper
	}
}

// WithObserver subscribes o to lifecycle events.
func WithObserver(o Observer) Option {
	return func(s *Supervisor) {
		s.observers = append(s.observers, o)
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// WithTracer sets the tracer used for run and attempt spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Supervisor) {
		s.tracer = t
	}
}

// WithRunID fixes the run identifier instead of generating a UUID.
func WithRunID(id string) Option {
	return func(s *Supervisor) {
		s.newID = func() string { return id }
	}
}

// New creates a supervisor. The policy is validated here so a bad
// configuration never spawns a process.
func New(runner Runner, policy Policy, opts ...Option) (*Supervisor, error) {
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	s := &Supervisor{
		runner: runner,
		policy: policy,
		clock:  quartz.NewReal(),
		logger: logging.Discard(),
		tracer: otel.Tracer("github.com/psantana5/devrun/internal/supervisor"),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sleeper == nil {
		s.sleeper = ClockSleeper{Clock: s.clock}
	}

	return s, nil
}

// Policy returns the policy the supervisor enforces.
func (s *Supervisor) Policy() Policy {
	return s.policy
}

// Run supervises command until success, a terminal failure, or the attempt
// budget runs out. The returned Outcome is always non-nil once the command
// passed validation; err is nil on success and a *Failure otherwise.
func (s *Supervisor) Run(ctx context.Context, command string) (*Outcome, error) {
	if strings.TrimSpace(command) == "" {
		return nil, ErrEmptyCommand
	}

	outcome := &Outcome{
		RunID:     s.newID(),
		Command:   command,
		Policy:    s.policy,
		Attempts:  make([]Attempt, 0, min(s.policy.MaxAttempts, 16)),
		Status:    StatusRunning,
		StartedAt: s.clock.Now("supervisor", "run_start"),
	}
	log := s.logger.WithField("run_id", outcome.RunID)

	ctx, span := s.tracer.Start(ctx, "supervisor.run", trace.WithAttributes(
		attribute.String("devrun.run_id", outcome.RunID),
		attribute.String("devrun.command", command),
		attribute.Int("devrun.max_attempts", s.policy.MaxAttempts),
	))
	defer span.End()

	s.notify(func(o Observer) { o.RunStarted(outcome) })
	log.Info(fmt.Sprintf("Supervising %q (max attempts %d, retry delay %s)", command, s.policy.MaxAttempts, s.policy.RetryDelay))

	var failure *Failure
	for index := 0; index < s.policy.MaxAttempts; index++ {
		attempt, errType, runErr := s.attempt(ctx, index, command)
		outcome.Attempts = append(outcome.Attempts, attempt)
		s.notify(func(o Observer) { o.AttemptFinished(attempt) })

		alog := log.WithField("attempt", attempt.Number())
		switch errType {
		case ErrorTypeNone:
			alog.Info(fmt.Sprintf("Attempt %d/%d succeeded after %.1fs", attempt.Number(), s.policy.MaxAttempts, attempt.Duration.Seconds()))
			return s.finish(ctx, outcome, nil), nil
		case ErrorTypeFatal:
			alog.Error(fmt.Sprintf("Attempt %d/%d exited with fatal code %d, aborting", attempt.Number(), s.policy.MaxAttempts, attempt.ExitCode))
			failure = &Failure{Reason: ReasonFatalAbort, Attempts: len(outcome.Attempts), LastExitCode: attempt.ExitCode}
		case ErrorTypeLaunch:
			alog.Error(fmt.Sprintf("Attempt %d/%d could not launch the command", attempt.Number(), s.policy.MaxAttempts), errField(runErr))
			failure = &Failure{Reason: ReasonLaunchError, Attempts: len(outcome.Attempts), LastExitCode: lastExitCode(attempt), Err: runErr}
		case ErrorTypeCanceled:
			alog.Warn(fmt.Sprintf("Attempt %d/%d interrupted", attempt.Number(), s.policy.MaxAttempts))
			failure = &Failure{Reason: ReasonCanceled, Attempts: len(outcome.Attempts), LastExitCode: lastExitCode(attempt), Err: runErr}
		default:
			alog.Warn(fmt.Sprintf("Attempt %d/%d failed with exit code %d", attempt.Number(), s.policy.MaxAttempts, attempt.ExitCode), signalField(attempt))
		}
		if failure != nil {
			break
		}

		// No delay after the final attempt
		if index == s.policy.MaxAttempts-1 {
			failure = &Failure{Reason: ReasonExhausted, Attempts: len(outcome.Attempts), LastExitCode: attempt.ExitCode}
			log.Error(fmt.Sprintf("Giving up after %d attempts", len(outcome.Attempts)))
			break
		}

		s.notify(func(o Observer) { o.RetryScheduled(attempt, s.policy.RetryDelay) })
		log.Info(fmt.Sprintf("Retrying in %s (attempt %d/%d next)", s.policy.RetryDelay, attempt.Number()+1, s.policy.MaxAttempts))
		span.AddEvent("retry_scheduled", trace.WithAttributes(attribute.Int("devrun.next_attempt", index+1)))

		if err := s.sleeper.Sleep(ctx, s.policy.RetryDelay); err != nil {
			log.Warn("Retry delay interrupted")
			failure = &Failure{Reason: ReasonCanceled, Attempts: len(outcome.Attempts), LastExitCode: attempt.ExitCode, Err: err}
			break
		}
	}

	outcome = s.finish(ctx, outcome, failure)
	span.RecordError(failure)
	span.SetStatus(codes.Error, string(failure.Reason))
	return outcome, failure
}

// attempt runs the command once and records the result.
func (s *Supervisor) attempt(ctx context.Context, index int, command string) (Attempt, ErrorType, error) {
	attempt := Attempt{
		Index:    index,
		Command:  command,
		State:    StatePending,
		ExitCode: -1,
	}

	// Do not start a new process once the context is done.
	if err := ctx.Err(); err != nil {
		attempt.StartedAt = s.clock.Now("supervisor", "attempt_start")
		attempt.EndedAt = attempt.StartedAt
		attempt.State = StateCanceled
		attempt.Error = err.Error()
		return attempt, ErrorTypeCanceled, err
	}

	ctx, span := s.tracer.Start(ctx, "supervisor.attempt", trace.WithAttributes(
		attribute.Int("devrun.attempt.index", index),
	))
	defer span.End()

	timing := observe.NewTiming(s.clock)
	attempt.StartedAt = timing.StartedAt
	s.notify(func(o Observer) { o.AttemptStarted(attempt) })

	exit, err := s.runner.Run(ctx, command)
	timing.Complete()

	attempt.EndedAt = timing.CompletedAt
	attempt.Duration = timing.Duration()
	if exit != nil {
		attempt.PID = exit.PID
		attempt.ExitCode = exit.Code
		attempt.Signal = exit.Signal
	}
	if err != nil {
		attempt.Error = err.Error()
	}

	errType := s.policy.Classify(exit, err)
	attempt.State = stateFor(errType)

	span.SetAttributes(
		attribute.Int("devrun.attempt.exit_code", attempt.ExitCode),
		attribute.String("devrun.attempt.state", string(attempt.State)),
	)
	if errType != ErrorTypeNone {
		span.SetStatus(codes.Error, string(attempt.State))
	}

	return attempt, errType, err
}

func (s *Supervisor) finish(ctx context.Context, outcome *Outcome, failure *Failure) *Outcome {
	outcome.EndedAt = s.clock.Now("supervisor", "run_end")
	if failure == nil {
		outcome.Status = StatusSuccess
	} else {
		outcome.Status = StatusFailure
		outcome.Reason = failure.Reason
		outcome.Error = failure.Error()
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("devrun.status", string(outcome.Status)),
		attribute.Int("devrun.attempts", len(outcome.Attempts)),
	)
	s.notify(func(o Observer) { o.RunFinished(outcome) })
	return outcome
}

func (s *Supervisor) notify(fn func(Observer)) {
	for _, o := range s.observers {
		fn(o)
	}
}

func stateFor(t ErrorType) AttemptState {
	switch t {
	case ErrorTypeNone:
		return StateSucceeded
	case ErrorTypeFatal:
		return StateFatal
	case ErrorTypeLaunch:
		return StateLaunchError
	case ErrorTypeCanceled:
		return StateCanceled
	default:
		return StateFailed
	}
}

func lastExitCode(a Attempt) int {
	if a.PID == 0 {
		return -1
	}
	return a.ExitCode
}

func errField(err error) map[string]interface{} {
	if err == nil {
		return nil
	}
	return map[string]interface{}{"error": err.Error()}
}

func signalField(a Attempt) map[string]interface{} {
	if a.Signal == "" {
		return nil
	}
	return map[string]interface{}{"signal": a.Signal}
}
