package healthprobe

import (
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// Check reports whether a dependency is usable. A non-empty message
// explains why it is not.
type Check func() (ok bool, message string)

// HealthChecker provides health and readiness checks.
type HealthChecker struct {
	startTime time.Time
	ready     atomic.Bool

	mu     sync.RWMutex
	checks map[string]Check
}

// New creates a new HealthChecker.
func New() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
		checks:    make(map[string]Check),
	}
}

// SetReady marks the application as started.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// AddCheck registers a readiness condition evaluated on every /ready call.
func (h *HealthChecker) AddCheck(name string, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// IsReady returns readiness and the names of failing checks.
func (h *HealthChecker) IsReady() (bool, map[string]string) {
	if !h.ready.Load() {
		return false, map[string]string{"startup": "application is starting"}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var failing map[string]string
	for name, check := range h.checks {
		ok, msg := check()
		if ok {
			continue
		}
		if failing == nil {
			failing = make(map[string]string)
		}
		failing[name] = msg
	}
	return len(failing) == 0, failing
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime,omitempty"`
	Message string            `json:"message,omitempty"`
	Failing map[string]string `json:"failing,omitempty"`
}

// Health returns an HTTP handler for liveness checks.
// Always returns 200 OK if the application is running.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status: "healthy",
			Uptime: time.Since(h.startTime).String(),
		})
	}
}

// Ready returns an HTTP handler for readiness checks.
// Returns 200 OK if ready, 503 Service Unavailable if not.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, failing := h.IsReady()
		if !ok {
			names := make([]string, 0, len(failing))
			for name := range failing {
				names = append(names, name)
			}
			sort.Strings(names)

			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status:  "not_ready",
				Message: failing[names[0]],
				Failing: failing,
			})
			return
		}

		writeJSON(w, http.StatusOK, HealthResponse{
			Status: "ready",
			Uptime: time.Since(h.startTime).String(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
