package scenarios

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aegischarge/simulator/internal/config"
	"github.com/aegischarge/simulator/internal/cpclient"
	"github.com/aegischarge/simulator/internal/csms"
	"github.com/aegischarge/simulator/internal/eventbus"
	"github.com/aegischarge/simulator/internal/wire"
)

func newTestCSMS(t *testing.T) *httptest.Server {
	t.Helper()
	bus := eventbus.New()
	server := csms.New(bus, csms.AuthorizedTags{
		idTag:       "sim",
		"YUNUS_TAG": "sim-yunus",
		"AYSE_TAG":  "sim-ayse",
		"TEST123":   "sim-test123",
	}, 1, time.Hour)
	httpServer := httptest.NewServer(server.Router())
	t.Cleanup(httpServer.Close)
	return httpServer
}

func connectClients(t *testing.T, wsURL string, n int) []*cpclient.Client {
	t.Helper()
	ctx := context.Background()
	clients := make([]*cpclient.Client, 0, n)
	for i := 0; i < n; i++ {
		c := cpclient.New(cpIDFor(i))
		require.NoError(t, c.Connect(ctx, wsURL, wire.TLSConfig{}))
		t.Cleanup(func() { _ = c.Close() })
		clients = append(clients, c)
	}
	return clients
}

func cpIDFor(i int) string {
	return "CP_SCN_" + string(rune('A'+i))
}

func testParams() config.ScenarioParams {
	return config.ScenarioParams{
		BasePowerKW:             7.0,
		AttackAmplitudeKW:       3.0,
		AttackFrequencyHz:       0.5,
		VoltageV:                230.0,
		BatteryCapacityKWh:      60.0,
		AttackTriggerRatio:      0.5,
		DriftMin:                0.5,
		DriftMax:                2.0,
		RelayLatencyMS:          5,
		ManipulationProbability: 1.0,
	}
}

func wsURLFor(httpServer *httptest.Server) string {
	return "ws" + httpServer.URL[len("http"):]
}
