// Package status serves a read-only view of the run in progress.
package status

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/psantana5/devrun/internal/report"
	"github.com/psantana5/devrun/internal/supervisor"
)

// Snapshot is the /status response body.
type Snapshot struct {
	*report.Report
	CurrentAttempt int       `json:"current_attempt"` // 0 when no attempt is running
	UpdatedAt      time.Time `json:"updated_at"`
}

// Handler tracks supervisor events and serves them over HTTP.
type Handler struct {
	mu      sync.RWMutex
	outcome *supervisor.Outcome
	current int
	updated time.Time

	metrics http.Handler
	now     func() time.Time
}

var _ supervisor.Observer = (*Handler)(nil)

// NewHandler creates a handler. metrics may be nil.
func NewHandler(metrics http.Handler) *Handler {
	return &Handler{
		metrics: metrics,
		now:     time.Now,
	}
}

// RegisterRoutes registers all routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.Health).Methods("GET")
	r.HandleFunc("/status", h.Status).Methods("GET")
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods("GET")
	}
}

// Router returns a router with all routes registered
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// Health reports that the supervisor process is alive
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Status returns the current run snapshot
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.Snapshot()
	if !ok {
		http.Error(w, "no run started", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// Snapshot returns a copy of the current state; ok is false before the run starts.
func (h *Handler) Snapshot() (*Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.outcome == nil {
		return nil, false
	}
	return &Snapshot{
		Report:         report.NewReport(h.outcome, nil),
		CurrentAttempt: h.current,
		UpdatedAt:      h.updated,
	}, true
}

// RunStarted implements supervisor.Observer
func (h *Handler) RunStarted(o *supervisor.Outcome) {
	h.update(func() {
		h.outcome = o.Clone()
		h.current = 0
	})
}

// AttemptStarted implements supervisor.Observer
func (h *Handler) AttemptStarted(a supervisor.Attempt) {
	h.update(func() {
		h.current = a.Number()
	})
}

// AttemptFinished implements supervisor.Observer
func (h *Handler) AttemptFinished(a supervisor.Attempt) {
	h.update(func() {
		if h.outcome != nil {
			h.outcome.Attempts = append(h.outcome.Attempts, a)
		}
		h.current = 0
	})
}

// RetryScheduled implements supervisor.Observer
func (h *Handler) RetryScheduled(supervisor.Attempt, time.Duration) {}

// RunFinished implements supervisor.Observer
func (h *Handler) RunFinished(o *supervisor.Outcome) {
	h.update(func() {
		h.outcome = o.Clone()
		h.current = 0
	})
}

func (h *Handler) update(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn()
	h.updated = h.now()
}
