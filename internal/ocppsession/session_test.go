package ocppsession

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegischarge/simulator/internal/wire"
)

// dialPair spins up a local WebSocket echo server and returns two
// *wire.Transport values connected to each other, for exercising Session
// without a real CSMS or CP client.
func dialPair(t *testing.T) (*wire.Transport, *wire.Transport) {
	t.Helper()

	upgrader := wire.Upgrader()
	serverConnCh := make(chan *websocket.Conn, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConnCh <- conn
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + server.URL[len("http"):]
	dialer := websocket.Dialer{Subprotocols: []string{wire.Subprotocol}}
	clientConn, _, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)

	var serverConn *websocket.Conn
	select {
	case serverConn = <-serverConnCh:
	case <-time.After(time.Second):
		t.Fatal("server never accepted connection")
	}

	return wire.NewTransport(clientConn), wire.NewTransport(serverConn)
}

type bootPayload struct {
	ChargePointModel string `json:"chargePointModel"`
}

type bootResult struct {
	Status string `json:"status"`
}

func TestSessionCallRoundTrip(t *testing.T) {
	clientTransport, serverTransport := dialPair(t)

	clientSession := New(clientTransport, "CP_001")
	serverSession := New(serverTransport, "csms")

	serverSession.Handle("BootNotification", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req bootPayload
		require.NoError(t, json.Unmarshal(payload, &req))
		assert.Equal(t, "SimCP", req.ChargePointModel)
		return bootResult{Status: "Accepted"}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = serverSession.Serve(ctx) }()
	go func() { _ = clientSession.Serve(ctx) }()

	var result bootResult
	err := clientSession.Call(context.Background(), "BootNotification", bootPayload{ChargePointModel: "SimCP"}, &result)
	require.NoError(t, err)
	assert.Equal(t, "Accepted", result.Status)
}

func TestSessionCallTimesOutWithoutReply(t *testing.T) {
	clientTransport, serverTransport := dialPair(t)
	defer serverTransport.Close()

	clientSession := New(clientTransport, "CP_002")
	clientSession.defaultTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = clientSession.Serve(ctx) }()

	err := clientSession.Call(context.Background(), "Heartbeat", struct{}{}, nil)
	require.Error(t, err)
}

func TestSessionHandlerErrorProducesCallError(t *testing.T) {
	clientTransport, serverTransport := dialPair(t)
	clientSession := New(clientTransport, "CP_003")
	serverSession := New(serverTransport, "csms")

	serverSession.Handle("Authorize", func(ctx context.Context, payload json.RawMessage) (any, error) {
		return nil, assert.AnError
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = serverSession.Serve(ctx) }()
	go func() { _ = clientSession.Serve(ctx) }()

	err := clientSession.Call(context.Background(), "Authorize", struct{}{}, nil)
	require.Error(t, err)
}
