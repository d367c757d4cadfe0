package report

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"github.com/psantana5/devrun/internal/supervisor"
)

// Metrics are boring counters fed by supervisor events.
// Every value can be explained by looking at the run's attempts.
type Metrics struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	exitCodes       *prometheus.CounterVec
	runs            *prometheus.CounterVec
	attemptDuration prometheus.Histogram
	retryDelay      prometheus.Counter
	currentAttempt  prometheus.Gauge
}

var _ supervisor.Observer = (*Metrics)(nil)

// NewMetrics creates metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devrun_attempts_total",
				Help: "Attempts by recorded state",
			},
			[]string{"state"},
		),
		exitCodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devrun_attempt_exit_codes_total",
				Help: "Attempts by process exit code",
			},
			[]string{"exit_code"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devrun_runs_total",
				Help: "Finished runs by status and failure reason",
			},
			[]string{"status", "reason"},
		),
		attemptDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "devrun_attempt_duration_seconds",
				Help:    "Wall time of attempts whose process exited",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
			},
		),
		retryDelay: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "devrun_retry_delay_seconds_total",
				Help: "Time scheduled between attempts",
			},
		),
		currentAttempt: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "devrun_current_attempt",
				Help: "1-based number of the running attempt, 0 when idle",
			},
		),
	}

	m.registry.MustRegister(
		m.attempts,
		m.exitCodes,
		m.runs,
		m.attemptDuration,
		m.retryDelay,
		m.currentAttempt,
	)

	return m
}

// RunStarted implements supervisor.Observer
func (m *Metrics) RunStarted(*supervisor.Outcome) {
	m.currentAttempt.Set(0)
}

// AttemptStarted implements supervisor.Observer
func (m *Metrics) AttemptStarted(a supervisor.Attempt) {
	m.currentAttempt.Set(float64(a.Number()))
}

// AttemptFinished implements supervisor.Observer
func (m *Metrics) AttemptFinished(a supervisor.Attempt) {
	m.attempts.WithLabelValues(string(a.State)).Inc()
	if a.Ran() {
		m.exitCodes.WithLabelValues(strconv.Itoa(a.ExitCode)).Inc()
		m.attemptDuration.Observe(a.Duration.Seconds())
	}
}

// RetryScheduled implements supervisor.Observer
func (m *Metrics) RetryScheduled(_ supervisor.Attempt, delay time.Duration) {
	m.retryDelay.Add(delay.Seconds())
}

// RunFinished implements supervisor.Observer
func (m *Metrics) RunFinished(o *supervisor.Outcome) {
	m.runs.WithLabelValues(string(o.Status), string(o.Reason)).Inc()
	m.currentAttempt.Set(0)
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteText encodes every metric family in the text exposition format
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	encoder := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteTextfile writes the metrics for the node_exporter textfile collector.
// The file is replaced atomically so a scrape never sees a partial write.
func (m *Metrics) WriteTextfile(path string) error {
	var buf bytes.Buffer
	if err := m.WriteText(&buf); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
