package csms

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegischarge/simulator/internal/eventbus"
	"github.com/aegischarge/simulator/internal/ocpp"
	"github.com/aegischarge/simulator/internal/ocppsession"
	"github.com/aegischarge/simulator/internal/wire"
)

// eventRecorder collects published events under a mutex so tests can
// safely read them while the watchdog or dispatch goroutines still run.
type eventRecorder struct {
	mu     sync.Mutex
	events []ocpp.Event
}

func (r *eventRecorder) record(ev ocpp.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) snapshot() []ocpp.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ocpp.Event, len(r.events))
	copy(out, r.events)
	return out
}

func newTestServer(t *testing.T, watchdogTick time.Duration) (*Server, *httptest.Server, *eventRecorder) {
	t.Helper()

	bus := eventbus.New()
	recorder := &eventRecorder{}
	bus.Subscribe(recorder.record)

	tags := AuthorizedTags{"TAG_A": "Alice"}
	server := New(bus, tags, 10, watchdogTick)

	httpServer := httptest.NewServer(server.Router())
	t.Cleanup(httpServer.Close)

	return server, httpServer, recorder
}

func dialCP(t *testing.T, baseURL, cpID string) *ocppsession.Session {
	t.Helper()
	wsURL := "ws" + baseURL[len("http"):] + "/" + cpID
	transport, err := wire.Dial(context.Background(), wsURL, cpID, wire.TLSConfig{})
	require.NoError(t, err)
	return ocppsession.New(transport, cpID)
}

func TestBootNotificationAccepted(t *testing.T) {
	_, httpServer, _ := newTestServer(t, time.Hour)
	session := dialCP(t, httpServer.URL, "CP_1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = session.Serve(ctx) }()

	var resp struct {
		Status   string `json:"status"`
		Interval int    `json:"interval"`
	}
	err := session.Call(context.Background(), "BootNotification",
		map[string]string{"chargePointVendor": "Acme", "chargePointModel": "SimCP"}, &resp)
	require.NoError(t, err)
	assert.Equal(t, "Accepted", resp.Status)
	assert.Equal(t, 10, resp.Interval)
}

func TestAuthorizeAndStartTransactionAcceptedFlow(t *testing.T) {
	_, httpServer, recorder := newTestServer(t, time.Hour)
	session := dialCP(t, httpServer.URL, "CP_2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = session.Serve(ctx) }()

	var authResp struct {
		IDTagInfo struct {
			Status string `json:"status"`
		} `json:"idTagInfo"`
	}
	require.NoError(t, session.Call(context.Background(), "Authorize", map[string]string{"idTag": "TAG_A"}, &authResp))
	assert.Equal(t, "Accepted", authResp.IDTagInfo.Status)

	var startResp struct {
		TransactionID int `json:"transactionId"`
		IDTagInfo     struct {
			Status string `json:"status"`
		} `json:"idTagInfo"`
	}
	require.NoError(t, session.Call(context.Background(), "StartTransaction", map[string]any{
		"connectorId": 1, "idTag": "TAG_A", "meterStart": 100.0,
	}, &startResp))

	assert.Equal(t, "Accepted", startResp.IDTagInfo.Status)
	assert.Equal(t, 1, startResp.TransactionID)

	_ = recorder // event ordering assertions live in the engine integration test
}

func TestStartTransactionRejectedForUnauthorizedTag(t *testing.T) {
	_, httpServer, _ := newTestServer(t, time.Hour)
	session := dialCP(t, httpServer.URL, "CP_3")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = session.Serve(ctx) }()

	var startResp struct {
		TransactionID int `json:"transactionId"`
		IDTagInfo     struct {
			Status string `json:"status"`
		} `json:"idTagInfo"`
	}
	require.NoError(t, session.Call(context.Background(), "StartTransaction", map[string]any{
		"connectorId": 1, "idTag": "TAG_UNKNOWN", "meterStart": 0.0,
	}, &startResp))

	assert.Equal(t, 0, startResp.TransactionID)
	assert.Equal(t, "Invalid", startResp.IDTagInfo.Status)
}

func TestWatchdogEvictsStaleSession(t *testing.T) {
	server, httpServer, recorder := newTestServer(t, 20*time.Millisecond)
	session := dialCP(t, httpServer.URL, "CP_4")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = session.Serve(ctx) }()
	go server.RunWatchdog(ctx)

	require.NoError(t, session.Call(context.Background(), "BootNotification",
		map[string]string{"chargePointVendor": "Acme", "chargePointModel": "SimCP"}, nil))

	server.mu.Lock()
	sess := server.sessions["CP_4"]
	server.mu.Unlock()
	require.NotNil(t, sess)
	sess.state.Touch(time.Now().Add(-time.Hour))

	require.Eventually(t, func() bool {
		for _, ev := range recorder.snapshot() {
			if ev.MessageType == ocpp.MsgCPOffline {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}
