package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/devrun/internal/logging"
	"github.com/psantana5/devrun/internal/report"
	"github.com/psantana5/devrun/internal/supervisor"
)

func TestHandler_StatusBeforeRun(t *testing.T) {
	h := NewHandler(nil)
	rec := httptest.NewRecorder()

	h.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandler_TracksRun(t *testing.T) {
	h := NewHandler(nil)
	outcome := &supervisor.Outcome{RunID: "run-1", Command: "cargo run", Policy: supervisor.DefaultPolicy(), Status: supervisor.StatusRunning}

	h.RunStarted(outcome)
	first := supervisor.Attempt{Index: 0, Command: "cargo run", State: supervisor.StateFailed, ExitCode: 1, PID: 42}
	h.AttemptStarted(first)

	snap, ok := h.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 1, snap.CurrentAttempt)
	assert.Empty(t, snap.Attempts)

	h.AttemptFinished(first)
	h.RetryScheduled(first, time.Second)
	h.AttemptStarted(supervisor.Attempt{Index: 1})

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, 2.0, body["current_attempt"])
	assert.Len(t, body["attempts"], 1)

	final := outcome.Clone()
	final.Attempts = []supervisor.Attempt{first, {Index: 1, State: supervisor.StateSucceeded, PID: 43}}
	final.Status = supervisor.StatusSuccess
	h.RunFinished(final)

	snap, _ = h.Snapshot()
	assert.Equal(t, "success", snap.Status)
	assert.Equal(t, 0, snap.CurrentAttempt)
	assert.Len(t, snap.Attempts, 2)
}

func TestHandler_HealthAndMetrics(t *testing.T) {
	metrics := report.NewMetrics()
	h := NewHandler(metrics.Handler())
	router := h.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	metrics.RunFinished(&supervisor.Outcome{Status: supervisor.StatusSuccess})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "devrun_runs_total")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_StartAndShutdown(t *testing.T) {
	h := NewHandler(nil)
	srv, err := Start("127.0.0.1:0", h.Router(), logging.Discard())
	require.NoError(t, err)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok\n", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}

func TestServer_ListenError(t *testing.T) {
	_, err := Start("256.0.0.1:bad", http.NotFoundHandler(), logging.Discard())
	assert.Error(t, err)
}
