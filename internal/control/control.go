// Package control is a small JSON-over-mux control plane exposing one
// run's status and a stop switch to an external dashboard, grounded on
// the teacher's internal/api/server.go REST surface. This stands in for
// the teacher's gRPC ScenarioControl service: grpc/protobuf would need
// protoc-generated stubs, which this exercise cannot verify, so the
// control plane stays plain JSON over mux (see DESIGN.md).
package control

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// Status is the current run's externally-visible state.
type Status struct {
	Running   bool      `json:"running"`
	Scenario  string    `json:"scenario"`
	Mode      string    `json:"mode"`
	Stations  int       `json:"stations"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Controller tracks one in-flight run and lets an external caller
// request it stop early.
type Controller struct {
	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
}

// New creates an idle Controller.
func New() *Controller {
	return &Controller{}
}

// Start records a run beginning and the CancelFunc Stop should invoke.
func (c *Controller) Start(scenario, mode string, stations int, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = Status{Running: true, Scenario: scenario, Mode: mode, Stations: stations, StartedAt: time.Now()}
	c.cancel = cancel
}

// Finish records the run ending, whether by completion or by Stop.
func (c *Controller) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Running = false
	c.cancel = nil
}

// Router builds the control-plane mux router: GET /status, POST /stop.
func (c *Controller) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/status", c.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/stop", c.handleStop).Methods(http.MethodPost)
	return r
}

func (c *Controller) handleStatus(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	status := c.status
	c.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

func (c *Controller) handleStop(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel == nil {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "no run in progress"})
		return
	}
	cancel()
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "stopping"})
}
