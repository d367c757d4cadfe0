package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/devrun/internal/config"
	"github.com/psantana5/devrun/internal/process"
	"github.com/psantana5/devrun/internal/report"
	"github.com/psantana5/devrun/internal/shutdown"
	"github.com/psantana5/devrun/internal/status"
	"github.com/psantana5/devrun/internal/supervisor"
	"github.com/psantana5/devrun/internal/tracing"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=..."
var Version = "dev"

const shutdownTimeout = 10 * time.Second

// app holds the state of one invocation
type app struct {
	v       *viper.Viper
	cfgFile string
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

// Execute runs devrun with the process arguments and returns its exit code
func Execute() int {
	return run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(stdin, stdout, stderr)
	root.SetArgs(args)
	return exitCode(root.ExecuteContext(ctx), stderr)
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: viper.New(), stdin: stdin, stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "devrun [flags] [-- <command> [args...]]",
		Short: "Run a command and retry it until it succeeds",
		Long: `devrun supervises a development command (by default "cargo run").

A failed run is retried after a fixed delay until the attempt budget is used
up. One exit code is reserved as a fatal abort signal: when the command exits
with it, devrun stops immediately. A command that cannot be launched at all is
never retried.

Example:
  devrun
  devrun --max-attempts 5 --retry-delay-seconds 1 --command "npm start"
  devrun --fatal-exit-code -1 -- ./server --port 8080
  devrun --listen :9464 --output json`,
		Version:       Version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Init(a.v, a.cfgFile)
		},
		RunE: a.runSupervise,
	}
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	policy := supervisor.DefaultPolicy()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ./devrun.yaml, then $HOME/.devrun/config.yaml)")
	flags.String("command", config.DefaultCommand, "shell command to supervise")
	flags.Int("max-attempts", policy.MaxAttempts, "attempt budget including the first run")
	flags.Float64("retry-delay-seconds", policy.RetryDelay.Seconds(), "delay between attempts in seconds")
	flags.Int("fatal-exit-code", policy.FatalExitCode, "exit code that aborts without retrying (-1 disables)")
	flags.IntSlice("launch-error-codes", policy.LaunchErrorCodes, "shell exit codes treated as launch errors")
	flags.String("shell", process.DefaultShell, "shell used to run --command")
	flags.String("workdir", "", "working directory for the command")
	flags.StringSlice("env", nil, "extra KEY=VALUE environment entries")
	flags.String("output", string(report.FormatText), "final report format: text, json, yaml or none")
	flags.String("listen", "", "serve /healthz, /status and /metrics on this address")
	flags.String("metrics-file", "", "write Prometheus metrics in textfile format on exit")
	flags.String("trace-endpoint", "", "OTLP/HTTP collector endpoint (tracing disabled when empty)")
	flags.Bool("trace-insecure", true, "send traces over plain HTTP")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")

	// Everything after the first positional argument belongs to the command.
	rootCmd.Flags().SetInterspersed(false)

	cobra.CheckErr(config.BindFlags(a.v, flags, "config"))

	rootCmd.AddCommand(newConfigCmd(a))
	return rootCmd
}

func (a *app) runSupervise(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.v, args)
	if err != nil {
		return err
	}
	format, _ := report.ParseFormat(cfg.Output)

	logger := cfg.Logger()
	logger.SetOutput(a.stderr)
	if used := a.v.ConfigFileUsed(); used != "" {
		logger.Debug(fmt.Sprintf("Using config file %s", used))
	}

	shutdownMgr := shutdown.New(shutdownTimeout, logger)
	defer func() {
		if err := shutdownMgr.Shutdown(); err != nil {
			logger.Warn("Shutdown incomplete", map[string]interface{}{"error": err.Error()})
		}
	}()

	ctx, cancel := shutdownMgr.NotifyContext(cmd.Context())
	defer cancel()

	provider, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "devrun",
		ServiceVersion: Version,
		OTLPEndpoint:   cfg.TraceEndpoint,
		Insecure:       cfg.TraceInsecure,
	}, logger)
	if err != nil {
		return err
	}
	shutdownMgr.Register("tracing", provider.Shutdown)

	metrics := report.NewMetrics()
	opts := []supervisor.Option{
		supervisor.WithLogger(logger),
		supervisor.WithTracer(provider.Tracer()),
		supervisor.WithObserver(metrics),
	}

	if cfg.Listen != "" {
		handler := status.NewHandler(metrics.Handler())
		srv, err := status.Start(cfg.Listen, handler.Router(), logger)
		if err != nil {
			return err
		}
		shutdownMgr.Register("status server", srv.Shutdown)
		opts = append(opts, supervisor.WithObserver(handler))
	}

	pcfg := cfg.ProcessConfig()
	pcfg.Stdin = a.stdin
	pcfg.Stdout = a.stdout
	pcfg.Stderr = a.stderr

	sup, err := supervisor.New(process.NewRunner(pcfg), cfg.Policy(), opts...)
	if err != nil {
		return err
	}

	outcome, runErr := sup.Run(ctx, cfg.CommandLine())
	if outcome == nil {
		return runErr
	}

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error("Failed to write metrics file", map[string]interface{}{"error": err.Error()})
		}
	}

	report.LogSummary(logger, outcome)
	if err := report.Write(a.stdout, format, report.NewReport(outcome, report.DetectHost())); err != nil {
		logger.Error("Failed to write report", map[string]interface{}{"error": err.Error()})
	}

	return runErr
}
