package csvlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegischarge/simulator/internal/ocpp"
)

func readAllRows(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := []string{}
	for _, l := range splitLines(string(data)) {
		if l != "" {
			lines = append(lines, l)
		}
	}
	rows := make([][]string, len(lines))
	for i, l := range lines {
		rows[i] = splitCSVLine(l)
	}
	return rows
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func splitCSVLine(s string) []string {
	var fields []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			fields = append(fields, s[start:i])
			start = i + 1
		}
	}
	fields = append(fields, s[start:])
	return fields
}

func TestWriterProducesAllSixTablesWithHeaders(t *testing.T) {
	dir := t.TempDir()
	typedDir := filepath.Join(dir, "raw")
	unifiedPath := filepath.Join(dir, "ocpp", "unified.csv")
	w, err := Open(typedDir, unifiedPath)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	for _, name := range []string{"meter_values", "status_notifications", "heartbeats", "transactions", "events_raw"} {
		path := filepath.Join(typedDir, name+".csv")
		rows := readAllRows(t, path)
		require.Len(t, rows, 1, "table %s should have only its header row", name)
	}

	rows := readAllRows(t, unifiedPath)
	require.Len(t, rows, 1, "unified table should have only its header row")
}

func TestWriteEventExcludesHeartbeatFromUnifiedTable(t *testing.T) {
	dir := t.TempDir()
	typedDir := filepath.Join(dir, "raw")
	unifiedPath := filepath.Join(dir, "ocpp", "unified.csv")
	w, err := Open(typedDir, unifiedPath)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WriteEvent(ocpp.Event{
		MessageType: ocpp.MsgHeartbeat,
		CPID:        "CP_1",
		Timestamp:   time.Now(),
	}, "dalgali_yuk", "normal", "normal"))

	require.NoError(t, w.WriteEvent(ocpp.Event{
		MessageType: ocpp.MsgStatusNotification,
		CPID:        "CP_1",
		Timestamp:   time.Now(),
		Status:      "Available",
	}, "dalgali_yuk", "normal", "normal"))

	require.NoError(t, w.Close())

	rawRows := readAllRows(t, filepath.Join(typedDir, "events_raw.csv"))
	assert.Len(t, rawRows, 3) // header + heartbeat + status

	unifiedRows := readAllRows(t, unifiedPath)
	assert.Len(t, unifiedRows, 2) // header + status only
}

func TestWriteEventPopulatesMeterValuesOnlyForPresentMeasurands(t *testing.T) {
	dir := t.TempDir()
	typedDir := filepath.Join(dir, "raw")
	unifiedPath := filepath.Join(dir, "ocpp", "unified.csv")
	w, err := Open(typedDir, unifiedPath)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WriteEvent(ocpp.Event{
		MessageType:   ocpp.MsgMeterValues,
		CPID:          "CP_1",
		TransactionID: 1,
		ConnectorID:   1,
		Timestamp:     time.Now(),
		Samples: []ocpp.MeterSample{
			{Measurand: ocpp.MeasurandPower, Value: 7.0},
		},
	}, "dalgali_yuk", "normal", "normal"))
	require.NoError(t, w.Close())

	rows := readAllRows(t, filepath.Join(typedDir, "meter_values.csv"))
	require.Len(t, rows, 2)
	dataRow := rows[1]
	// power_kw is column index 4, current_a index 5, per meterFieldnames.
	assert.Equal(t, "7", dataRow[4])
	assert.Equal(t, "", dataRow[5])
}
