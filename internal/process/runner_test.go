//go:build unix

package process

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietRunner(cfg Config) (*Runner, *bytes.Buffer) {
	var out bytes.Buffer
	cfg.Stdout = &out
	cfg.Stderr = &out
	cfg.Stdin = bytes.NewReader(nil)
	return NewRunner(cfg), &out
}

func TestRunner_ExitCodes(t *testing.T) {
	tests := []struct {
		name       string
		command    string
		wantCode   int
		wantReason ExitReason
	}{
		{"success", "exit 0", 0, ExitReasonSuccess},
		{"failure", "exit 1", 1, ExitReasonError},
		{"fatal code", "exit 3", 3, ExitReasonError},
		{"not found", "definitely-not-a-command-devrun", 127, ExitReasonError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := quietRunner(Config{})
			exit, err := r.Run(context.Background(), tt.command)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, exit.Code)
			assert.Equal(t, tt.wantReason, exit.Reason)
			assert.Greater(t, exit.PID, 0)
		})
	}
}

func TestRunner_ForwardsOutput(t *testing.T) {
	r, out := quietRunner(Config{})

	exit, err := r.Run(context.Background(), "echo hello; echo oops 1>&2")
	require.NoError(t, err)
	assert.True(t, exit.Success())
	assert.Contains(t, out.String(), "hello\n")
	assert.Contains(t, out.String(), "oops\n")
}

func TestRunner_Signaled(t *testing.T) {
	r, _ := quietRunner(Config{})

	exit, err := r.Run(context.Background(), "kill -TERM $$")
	require.NoError(t, err)
	assert.Equal(t, ExitReasonSignal, exit.Reason)
	assert.Equal(t, "SIGTERM", exit.Signal)
	assert.Equal(t, 143, exit.Code)
}

func TestRunner_EnvAndWorkDir(t *testing.T) {
	dir := t.TempDir()
	r, out := quietRunner(Config{WorkDir: dir, Env: []string{"DEVRUN_TEST_VAR=present"}})

	_, err := r.Run(context.Background(), `echo "$DEVRUN_TEST_VAR"; pwd`)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "present\n")
	assert.Contains(t, out.String(), dir)
}

func TestRunner_Argv(t *testing.T) {
	r, _ := quietRunner(Config{Argv: []string{"/bin/sh", "-c", "exit 5"}})

	exit, err := r.Run(context.Background(), "ignored")
	require.NoError(t, err)
	assert.Equal(t, 5, exit.Code)
}

func TestRunner_LaunchErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing shell", Config{Shell: "/nonexistent/devrun-shell"}},
		{"missing binary", Config{Argv: []string{"/nonexistent/devrun-binary"}}},
		{"missing workdir", Config{WorkDir: "/nonexistent/devrun-dir"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := quietRunner(tt.cfg)
			exit, err := r.Run(context.Background(), "exit 0")
			assert.Nil(t, exit)

			var launchErr *LaunchError
			require.True(t, errors.As(err, &launchErr), "expected LaunchError, got %v", err)
			assert.Equal(t, "exit 0", launchErr.Command)
		})
	}
}

func TestRunner_CancelTerminatesProcessGroup(t *testing.T) {
	r, _ := quietRunner(Config{GracePeriod: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	exit, err := r.Run(ctx, "sleep 30")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, exit)
	assert.False(t, exit.Success())
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestCommandLine(t *testing.T) {
	assert.Equal(t, `cargo run -- "--port 8080"`, CommandLine([]string{"cargo", "run", "--", "--port 8080"}))
	assert.Equal(t, `echo ""`, CommandLine([]string{"echo", ""}))
}
