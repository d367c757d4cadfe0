//go:build unix

package shutdown

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/devrun/internal/logging"
)

func TestManager_ShutdownLIFO(t *testing.T) {
	m := New(time.Second, logging.Discard())
	var order []string

	m.Register("first", func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	m.Register("second", func(ctx context.Context) error {
		order = append(order, "second")
		return errors.New("boom")
	})
	m.Register("third", func(ctx context.Context) error {
		order = append(order, "third")
		return nil
	})

	err := m.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second: boom")
	assert.Equal(t, []string{"third", "second", "first"}, order)

	// Second call is a no-op
	assert.NoError(t, m.Shutdown())
	assert.Len(t, order, 3)
}

func TestManager_NotifyContextOnSignal(t *testing.T) {
	m := New(time.Second, logging.Discard())
	ctx, stop := m.NotifyContext(context.Background())
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not canceled after SIGTERM")
	}
}

func TestManager_NotifyContextStop(t *testing.T) {
	m := New(time.Second, logging.Discard())
	ctx, stop := m.NotifyContext(context.Background())
	stop()

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
