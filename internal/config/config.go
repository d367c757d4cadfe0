// Package config resolves devrun settings from flags, DEVRUN_* environment
// variables and an optional YAML config file.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/psantana5/devrun/internal/logging"
	"github.com/psantana5/devrun/internal/process"
	"github.com/psantana5/devrun/internal/report"
	"github.com/psantana5/devrun/internal/supervisor"
)

// EnvPrefix prefixes every environment override, e.g. DEVRUN_MAX_ATTEMPTS.
const EnvPrefix = "DEVRUN"

// Keys shared by flags, env and the config file.
const (
	KeyCommand           = "command"
	KeyShell             = "shell"
	KeyWorkDir           = "workdir"
	KeyEnv               = "env"
	KeyMaxAttempts       = "max_attempts"
	KeyRetryDelaySeconds = "retry_delay_seconds"
	KeyFatalExitCode     = "fatal_exit_code"
	KeyLaunchErrorCodes  = "launch_error_codes"
	KeyOutput            = "output"
	KeyListen            = "listen"
	KeyMetricsFile       = "metrics_file"
	KeyTraceEndpoint     = "trace_endpoint"
	KeyTraceInsecure     = "trace_insecure"
	KeyLogLevel          = "log_level"
	KeyLogFormat         = "log_format"
)

// DefaultCommand is the dev server the tool was built around.
const DefaultCommand = "cargo run"

// MaxRetryDelaySeconds is the longest delay, in whole seconds, a time.Duration can hold.
const MaxRetryDelaySeconds = float64(math.MaxInt64 / time.Second)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved configuration of one devrun invocation.
type Config struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"` // argv given after --, run without a shell
	Shell   string   `yaml:"shell"`
	WorkDir string   `yaml:"workdir,omitempty"`
	Env     []string `yaml:"env,omitempty"`

	MaxAttempts       int     `yaml:"max_attempts"`
	RetryDelaySeconds float64 `yaml:"retry_delay_seconds"`
	FatalExitCode     int     `yaml:"fatal_exit_code"`
	LaunchErrorCodes  []int   `yaml:"launch_error_codes"`

	Output        string `yaml:"output"`
	Listen        string `yaml:"listen,omitempty"`
	MetricsFile   string `yaml:"metrics_file,omitempty"`
	TraceEndpoint string `yaml:"trace_endpoint,omitempty"`
	TraceInsecure bool   `yaml:"trace_insecure"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
}

// SetDefaults registers defaults on v
func SetDefaults(v *viper.Viper) {
	policy := supervisor.DefaultPolicy()

	v.SetDefault(KeyCommand, DefaultCommand)
	v.SetDefault(KeyShell, process.DefaultShell)
	v.SetDefault(KeyMaxAttempts, policy.MaxAttempts)
	v.SetDefault(KeyRetryDelaySeconds, policy.RetryDelay.Seconds())
	v.SetDefault(KeyFatalExitCode, policy.FatalExitCode)
	v.SetDefault(KeyLaunchErrorCodes, policy.LaunchErrorCodes)
	v.SetDefault(KeyOutput, string(report.FormatText))
	v.SetDefault(KeyTraceInsecure, true)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
}

// Init wires env lookup and the config file into v. An explicit cfgFile must
// exist; otherwise ./devrun.yaml and then $HOME/.devrun/config.yaml are tried.
func Init(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
		return nil
	}

	if _, err := os.Stat("devrun.yaml"); err == nil {
		v.SetConfigFile("devrun.yaml")
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".devrun"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// BindFlags binds every flag except skip to the key with dashes replaced by underscores.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, skip ...string) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		for _, s := range skip {
			if f.Name == s {
				return
			}
		}
		if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("failed to bind flag --%s: %w", f.Name, err)
		}
	})
	return bindErr
}

// Load resolves the configuration from v and validates it. args is the argv
// given after --, if any.
func Load(v *viper.Viper, args []string) (*Config, error) {
	env, err := stringSlice(v, KeyEnv)
	if err != nil {
		return nil, err
	}
	launchCodes, err := intSlice(v, KeyLaunchErrorCodes)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Command:           strings.TrimSpace(v.GetString(KeyCommand)),
		Args:              args,
		Shell:             v.GetString(KeyShell),
		WorkDir:           v.GetString(KeyWorkDir),
		Env:               env,
		MaxAttempts:       v.GetInt(KeyMaxAttempts),
		RetryDelaySeconds: v.GetFloat64(KeyRetryDelaySeconds),
		FatalExitCode:     v.GetInt(KeyFatalExitCode),
		LaunchErrorCodes:  launchCodes,
		Output:            v.GetString(KeyOutput),
		Listen:            v.GetString(KeyListen),
		MetricsFile:       v.GetString(KeyMetricsFile),
		TraceEndpoint:     v.GetString(KeyTraceEndpoint),
		TraceInsecure:     v.GetBool(KeyTraceInsecure),
		LogLevel:          v.GetString(KeyLogLevel),
		LogFormat:         v.GetString(KeyLogFormat),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList splits a comma separated env or config value, dropping blanks.
// A surrounding [ ] as printed by pflag is accepted.
func splitList(s string) []string {
	var out []string
	s = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), "["), "]")
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// stringSlice reads a list that may come from a flag, a YAML sequence or a
// comma separated DEVRUN_* variable.
func stringSlice(v *viper.Viper, key string) ([]string, error) {
	raw := v.Get(key)
	if s, ok := raw.(string); ok {
		return splitList(s), nil
	}
	out, err := cast.ToStringSliceE(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return out, nil
}

// intSlice is stringSlice for integer lists. Entries that are not integers
// are rejected rather than dropped.
func intSlice(v *viper.Viper, key string) ([]int, error) {
	raw := v.Get(key)
	if raw == nil {
		return nil, nil
	}
	if s, ok := raw.(string); ok {
		parts := splitList(s)
		out := make([]int, 0, len(parts))
		for _, part := range parts {
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %q is not an integer", ErrInvalid, key, part)
			}
			out = append(out, n)
		}
		return out, nil
	}
	out, err := cast.ToIntSliceE(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return out, nil
}

// Validate checks every setting without touching the filesystem.
func (c *Config) Validate() error {
	if len(c.Args) == 0 && c.Command == "" {
		return fmt.Errorf("%w: %v", ErrInvalid, supervisor.ErrEmptyCommand)
	}
	if math.IsNaN(c.RetryDelaySeconds) || math.IsInf(c.RetryDelaySeconds, 0) {
		return fmt.Errorf("%w: retry delay must be a finite number of seconds", ErrInvalid)
	}
	if c.RetryDelaySeconds < 0 {
		return fmt.Errorf("%w: retry delay must not be negative, got %gs", ErrInvalid, c.RetryDelaySeconds)
	}
	if c.RetryDelaySeconds > MaxRetryDelaySeconds {
		return fmt.Errorf("%w: retry delay must be at most %.0fs, got %gs", ErrInvalid, MaxRetryDelaySeconds, c.RetryDelaySeconds)
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := report.ParseFormat(c.Output); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q (want text or json)", ErrInvalid, c.LogFormat)
	}
	for _, kv := range c.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("%w: env entry %q is not KEY=VALUE", ErrInvalid, kv)
		}
	}
	return nil
}

// RetryDelay converts the configured seconds to a duration
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds * float64(time.Second))
}

// Policy returns the retry policy. Launch error codes describe the shell's
// own statuses, so they only apply when the command runs through the shell;
// in argv mode a start failure is already reported by the runner.
func (c *Config) Policy() supervisor.Policy {
	policy := supervisor.Policy{
		MaxAttempts:      c.MaxAttempts,
		RetryDelay:       c.RetryDelay(),
		FatalExitCode:    c.FatalExitCode,
		LaunchErrorCodes: c.LaunchErrorCodes,
	}
	if len(c.Args) > 0 {
		policy.LaunchErrorCodes = nil
	}
	return policy
}

// CommandLine is the command as supervised and reported
func (c *Config) CommandLine() string {
	if len(c.Args) > 0 {
		return process.CommandLine(c.Args)
	}
	return c.Command
}

// ProcessConfig returns the runner settings
func (c *Config) ProcessConfig() process.Config {
	return process.Config{
		Shell:   c.Shell,
		Argv:    c.Args,
		WorkDir: c.WorkDir,
		Env:     c.Env,
	}
}

// Logger builds the logger described by the config
func (c *Config) Logger() *logging.Logger {
	level, _ := logging.ParseLevel(c.LogLevel)
	return logging.NewLogger(level, c.LogFormat == "json")
}
