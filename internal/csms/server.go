// Package csms implements the CSMS side of the simulation: the
// WebSocket accept loop, per-CP session registry, OCPP message
// handlers, and the heartbeat watchdog. Grounded on the teacher's
// internal/api/server.go for the mux-routed HTTP surface and on
// internal/monitoring/monitoring_system.go for the Prometheus gauges.
package csms

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aegischarge/simulator/internal/eventbus"
	"github.com/aegischarge/simulator/internal/ocpp"
	"github.com/aegischarge/simulator/internal/ocppsession"
	"github.com/aegischarge/simulator/internal/wire"
)

// AuthorizedTags maps a valid id_tag to a display name; it is the
// static valid-tag table spec.md §3 describes, read-only within a run.
type AuthorizedTags map[string]string

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocpp_sim_csms_active_sessions",
		Help: "Number of CP sessions currently registered with the CSMS.",
	})
	eventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpp_sim_csms_events_emitted_total",
		Help: "Number of events emitted by the CSMS dispatcher, by message type.",
	}, []string{"message_type"})
	watchdogEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocpp_sim_csms_watchdog_evictions_total",
		Help: "Number of CP sessions evicted by the heartbeat watchdog.",
	})
)

// Server owns the session registry, the mux router, and the heartbeat
// watchdog. Sessions are keyed by cp_id only: spec.md §3 scopes a
// single-tenant CSMS, so no tenant dimension is needed in the key.
type Server struct {
	router *mux.Router
	bus    *eventbus.Bus
	tags   AuthorizedTags

	watchdogTick       time.Duration
	defaultIntervalSec int

	mu       sync.RWMutex
	sessions map[string]*cpSession
}

// cpSession pairs the wire-independent ocpp.CPSession state with the
// live session/transport handles needed to answer and to evict it.
type cpSession struct {
	state     *ocpp.CPSession
	session   *ocppsession.Session
	transport *wire.Transport
	cancel    context.CancelFunc
}

// New builds a Server. defaultIntervalSec is the Heartbeat interval
// (seconds) returned from an accepted BootNotification; watchdogTick is
// the watchdog's polling period (5s per spec.md §4.3).
func New(bus *eventbus.Bus, tags AuthorizedTags, defaultIntervalSec int, watchdogTick time.Duration) *Server {
	s := &Server{
		bus:                bus,
		tags:               tags,
		watchdogTick:        watchdogTick,
		defaultIntervalSec: defaultIntervalSec,
		sessions:           make(map[string]*cpSession),
	}
	s.router = mux.NewRouter()
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/debug/sessions", s.handleDebugSessions).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler())
	// Registered last: mux matches routes in order, and this one-segment
	// pattern would otherwise also match /healthz and /metrics.
	s.router.HandleFunc("/{cp_id}", s.handleUpgrade)
	return s
}

// Router exposes the mux router for mounting or for http.ListenAndServe.
func (s *Server) Router() *mux.Router {
	return s.router
}

// MountLiveFeed wires an external live-dashboard handler (a
// livefeed.Feed's Socket.IO handler) under /socket.io/ on this
// server's router. Registered after the catch-all /{cp_id} upgrade
// route, but the two never collide: /{cp_id} matches exactly one path
// segment with no trailing slash, while Socket.IO's own client always
// polls /socket.io/ with one.
func (s *Server) MountLiveFeed(handler http.Handler) {
	s.router.PathPrefix("/socket.io/").Handler(handler)
}

// RunWatchdog runs the heartbeat watchdog loop until ctx is canceled.
// On each tick, any session whose last heartbeat is older than
// 3×interval is evicted: marked Unavailable, emitted as CPOffline,
// transport closed, and removed from the registry. This is the CSMS's
// only self-initiated state change, per spec.md §4.3.
func (s *Server) RunWatchdog(ctx context.Context) {
	ticker := time.NewTicker(s.watchdogTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepStale()
		}
	}
}

func (s *Server) sweepStale() {
	now := time.Now()

	s.mu.Lock()
	var stale []string
	for cpID, sess := range s.sessions {
		interval := sess.state.Interval()
		if interval <= 0 {
			continue
		}
		if now.Sub(sess.state.LastHeartbeatAt()) > 3*time.Duration(interval)*time.Second {
			stale = append(stale, cpID)
		}
	}
	var evicted []*cpSession
	for _, cpID := range stale {
		evicted = append(evicted, s.sessions[cpID])
		delete(s.sessions, cpID)
	}
	activeSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	for _, sess := range evicted {
		sess.state.AllConnectorsUnavailable()
		s.emit(ocpp.Event{
			MessageType: ocpp.MsgCPOffline,
			CPID:        sess.state.CPID,
			Timestamp:   now,
		})
		sess.cancel()
		_ = sess.transport.Close()
		watchdogEvictions.Inc()
		slog.Info("watchdog evicted stale CP", "cp_id", sess.state.CPID)
	}
}

func (s *Server) emit(ev ocpp.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	eventsEmitted.WithLabelValues(string(ev.MessageType)).Inc()
	s.bus.Publish(ev)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleDebugSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain")
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
}
