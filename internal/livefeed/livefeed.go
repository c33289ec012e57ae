// Package livefeed relays events over Socket.IO for an external
// dashboard to subscribe to, standing in for the teacher's DAG
// streamer (internal/websocket/dag_streamer.go) in a domain where the
// "stream" is a simulation timeline rather than a workflow DAG.
package livefeed

import (
	"log/slog"
	"net/http"

	socketio "github.com/googollee/go-socket.io"

	"github.com/aegischarge/simulator/internal/ocpp"
)

const eventName = "sim-event"

// Feed wraps a socket.io server and broadcasts ocpp.Events to every
// connected client on the "events" room.
type Feed struct {
	server *socketio.Server
}

// New builds a Feed with its socket.io handlers wired. Call Handler to
// mount it under an HTTP router and Serve to start its internal loop.
func New() *Feed {
	server := socketio.NewServer(nil)

	server.OnConnect("/", func(s socketio.Conn) error {
		s.Join("events")
		slog.Debug("livefeed client connected", "remote", s.RemoteAddr())
		return nil
	})
	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		slog.Debug("livefeed client disconnected", "remote", s.RemoteAddr(), "reason", reason)
	})
	server.OnError("/", func(s socketio.Conn, err error) {
		slog.Warn("livefeed connection error", "error", err)
	})

	return &Feed{server: server}
}

// Serve runs the socket.io server's background event loop. It must run
// in its own goroutine for the lifetime of the process.
func (f *Feed) Serve() error {
	return f.server.Serve()
}

// Close stops the underlying socket.io server.
func (f *Feed) Close() error {
	return f.server.Close()
}

// Handler returns the http.Handler to mount at the socket.io path
// (conventionally /socket.io/).
func (f *Feed) Handler() http.Handler {
	return f.server
}

// Handler func for eventbus.Bus.Subscribe: broadcasts ev to every
// client joined to the "events" room.
func (f *Feed) Handle(ev ocpp.Event) {
	f.server.BroadcastToRoom("/", "events", eventName, ev)
}
