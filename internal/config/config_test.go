package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/devrun/internal/supervisor"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper(t), nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultCommand, cfg.Command)
	assert.Equal(t, DefaultCommand, cfg.CommandLine())
	assert.Equal(t, "/bin/sh", cfg.Shell)
	assert.Equal(t, "text", cfg.Output)
	assert.Equal(t, "info", cfg.LogLevel)

	policy := cfg.Policy()
	assert.Equal(t, 11, policy.MaxAttempts)
	assert.Equal(t, 3*time.Second, policy.RetryDelay)
	assert.Equal(t, 3, policy.FatalExitCode)
	assert.Equal(t, []int{126, 127}, policy.LaunchErrorCodes)
}

func TestLoadOverrides(t *testing.T) {
	v := newViper(t)
	v.Set(KeyCommand, "  make serve ")
	v.Set(KeyMaxAttempts, 4)
	v.Set(KeyRetryDelaySeconds, 0.25)
	v.Set(KeyFatalExitCode, supervisor.NoFatalExitCode)
	v.Set(KeyEnv, []string{"RUST_LOG=debug"})
	v.Set(KeyOutput, "json")

	cfg, err := Load(v, nil)
	require.NoError(t, err)

	assert.Equal(t, "make serve", cfg.Command)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay())
	assert.Equal(t, 4, cfg.Policy().MaxAttempts)
	assert.False(t, cfg.Policy().IsFatal(3))
	assert.Equal(t, []string{"RUST_LOG=debug"}, cfg.ProcessConfig().Env)
}

func TestLoadArgv(t *testing.T) {
	v := newViper(t)
	v.Set(KeyCommand, "")

	cfg, err := Load(v, []string{"cargo", "run", "--bin", "my server"})
	require.NoError(t, err)
	assert.Equal(t, `cargo run --bin "my server"`, cfg.CommandLine())
	assert.Equal(t, []string{"cargo", "run", "--bin", "my server"}, cfg.ProcessConfig().Argv)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  interface{}
	}{
		{"empty command", KeyCommand, "   "},
		{"zero attempts", KeyMaxAttempts, 0},
		{"negative delay", KeyRetryDelaySeconds, -1.0},
		{"delay overflows duration", KeyRetryDelaySeconds, 1e12},
		{"bad launch code", KeyLaunchErrorCodes, "126,abc"},
		{"bad output", KeyOutput, "xml"},
		{"bad log level", KeyLogLevel, "loud"},
		{"bad log format", KeyLogFormat, "logfmt"},
		{"bad env", KeyEnv, []string{"NOVALUE"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper(t)
			v.Set(tt.key, tt.val)

			_, err := Load(v, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
		})
	}
}

func TestInitReadsExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devrun.yaml")
	content := "command: npm start\nmax_attempts: 2\nretry_delay_seconds: 1.5\nlaunch_error_codes: [126, 127, 42]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := viper.New()
	require.NoError(t, Init(v, path))

	cfg, err := Load(v, nil)
	require.NoError(t, err)
	assert.Equal(t, "npm start", cfg.Command)
	assert.Equal(t, 2, cfg.MaxAttempts)
	assert.Equal(t, 1500*time.Millisecond, cfg.RetryDelay())
	assert.Equal(t, []int{126, 127, 42}, cfg.LaunchErrorCodes)
	assert.Equal(t, path, v.ConfigFileUsed())
}

func TestInitMissingExplicitFile(t *testing.T) {
	err := Init(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestInitEnvOverride(t *testing.T) {
	t.Setenv("DEVRUN_MAX_ATTEMPTS", "7")
	t.Setenv("DEVRUN_COMMAND", "go run .")

	v := viper.New()
	require.NoError(t, Init(v, writeEmptyConfig(t)))

	cfg, err := Load(v, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxAttempts)
	assert.Equal(t, "go run .", cfg.Command)
}

func TestInitEnvLists(t *testing.T) {
	t.Setenv("DEVRUN_LAUNCH_ERROR_CODES", "126, 127,42")
	t.Setenv("DEVRUN_ENV", "RUST_LOG=debug,PORT=8080")

	v := viper.New()
	require.NoError(t, Init(v, writeEmptyConfig(t)))

	cfg, err := Load(v, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{126, 127, 42}, cfg.LaunchErrorCodes)
	assert.True(t, cfg.Policy().IsLaunchFailure(42))
	assert.Equal(t, []string{"RUST_LOG=debug", "PORT=8080"}, cfg.Env)
}

func TestInitEnvListRejectsGarbage(t *testing.T) {
	t.Setenv("DEVRUN_LAUNCH_ERROR_CODES", "126,not-a-code")

	v := viper.New()
	require.NoError(t, Init(v, writeEmptyConfig(t)))

	_, err := Load(v, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "not-a-code")
}

func TestLoadDelayBound(t *testing.T) {
	v := newViper(t)
	v.Set(KeyRetryDelaySeconds, 1e12)

	_, err := Load(v, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry delay must be at most")
	assert.NotContains(t, err.Error(), "negative")

	v.Set(KeyRetryDelaySeconds, MaxRetryDelaySeconds)
	cfg, err := Load(v, nil)
	require.NoError(t, err)
	assert.Greater(t, cfg.RetryDelay(), time.Duration(0))
}

func TestPolicyLaunchCodesShellOnly(t *testing.T) {
	v := newViper(t)

	shell, err := Load(v, nil)
	require.NoError(t, err)
	assert.True(t, shell.Policy().IsLaunchFailure(127))

	argv, err := Load(v, []string{"./server"})
	require.NoError(t, err)
	assert.False(t, argv.Policy().IsLaunchFailure(127))
	assert.Empty(t, argv.Policy().LaunchErrorCodes)
}

func TestBindFlagsIntSlice(t *testing.T) {
	flags := pflag.NewFlagSet("devrun", pflag.ContinueOnError)
	flags.IntSlice("launch-error-codes", []int{126, 127}, "")
	require.NoError(t, flags.Parse([]string{"--launch-error-codes=2,3"}))

	v := newViper(t)
	require.NoError(t, BindFlags(v, flags))

	cfg, err := Load(v, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, cfg.LaunchErrorCodes)
}

func TestBindFlags(t *testing.T) {
	flags := pflag.NewFlagSet("devrun", pflag.ContinueOnError)
	flags.Int("max-attempts", 11, "")
	flags.String("config", "", "")
	require.NoError(t, flags.Parse([]string{"--max-attempts=5", "--config=x.yaml"}))

	v := newViper(t)
	require.NoError(t, BindFlags(v, flags, "config"))

	assert.Equal(t, 5, v.GetInt(KeyMaxAttempts))
	assert.False(t, v.IsSet("config"))
}

func writeEmptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
	return path
}
