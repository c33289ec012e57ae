// Package csvlog writes the five CSV tables (meter_values,
// status_notifications, heartbeats, transactions, events_raw) plus the
// unified labeled table a run produces, per spec.md §4.4/§6. One
// csv.Writer per table, flushed after every row, written in the
// events_raw -> typed -> unified order §5 mandates so partial runs
// still leave consistent, append-safe files on disk.
package csvlog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aegischarge/simulator/internal/ocpp"
)

var (
	unifiedFieldnames = []string{
		"timestamp", "charge_point_id", "scenario", "mode", "step",
		"message_type", "transaction_id", "connector_id", "id_tag",
		"power_kw", "current_a", "voltage_v", "soc_percent", "label", "raw_payload",
	}
	meterFieldnames      = []string{"timestamp", "cp_id", "transaction_id", "connector_id", "power_kw", "current_a", "voltage_v", "soc_percent", "raw_payload"}
	statusFieldnames     = []string{"timestamp", "cp_id", "connector_id", "status", "error_code", "raw_payload"}
	heartbeatFieldnames  = []string{"timestamp", "cp_id", "raw_payload"}
	transactionFieldnames = []string{"timestamp", "cp_id", "event_type", "transaction_id", "id_tag", "meter_start", "meter_stop", "reason", "raw_payload"}
	rawEventFieldnames   = []string{"timestamp", "cp_id", "message_type", "raw_payload"}
)

// table wraps one underlying file + csv.Writer, flushed after each row.
type table struct {
	file   *os.File
	writer *csv.Writer
}

func openTable(dir, name string, fieldnames []string) (*table, error) {
	return openTableAtPath(filepath.Join(dir, name+".csv"), fieldnames)
}

func openTableAtPath(path string, fieldnames []string) (*table, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(fieldnames); err != nil {
		f.Close()
		return nil, fmt.Errorf("write %s header: %w", path, err)
	}
	w.Flush()
	return &table{file: f, writer: w}, nil
}

func (t *table) writeRow(row []string) error {
	if err := t.writer.Write(row); err != nil {
		return err
	}
	t.writer.Flush()
	return t.writer.Error()
}

func (t *table) close() error {
	t.writer.Flush()
	return t.file.Close()
}

// Writer owns the six on-disk tables for one run.
type Writer struct {
	meter       *table
	status      *table
	heartbeat   *table
	transaction *table
	rawEvent    *table
	unified     *table

	step int
}

// Open creates typedDir (if absent) and the five typed tables inside
// it, plus the unified table at unifiedPath (its parent directory
// created if absent), writing every header immediately. The two
// locations follow spec.md §6's on-disk layout: typed tables under
// logs/raw/{mode}/{scenario}/{timestamp}/, the unified table as a
// single file at logs/ocpp/{scenario}_{mode}_{timestamp}.csv.
func Open(typedDir, unifiedPath string) (*Writer, error) {
	if err := os.MkdirAll(typedDir, 0o755); err != nil {
		return nil, fmt.Errorf("create typed table dir %s: %w", typedDir, err)
	}
	if err := os.MkdirAll(filepath.Dir(unifiedPath), 0o755); err != nil {
		return nil, fmt.Errorf("create unified table dir: %w", err)
	}

	w := &Writer{}
	var err error
	if w.meter, err = openTable(typedDir, "meter_values", meterFieldnames); err != nil {
		return nil, err
	}
	if w.status, err = openTable(typedDir, "status_notifications", statusFieldnames); err != nil {
		return nil, err
	}
	if w.heartbeat, err = openTable(typedDir, "heartbeats", heartbeatFieldnames); err != nil {
		return nil, err
	}
	if w.transaction, err = openTable(typedDir, "transactions", transactionFieldnames); err != nil {
		return nil, err
	}
	if w.rawEvent, err = openTable(typedDir, "events_raw", rawEventFieldnames); err != nil {
		return nil, err
	}
	if w.unified, err = openTableAtPath(unifiedPath, unifiedFieldnames); err != nil {
		return nil, err
	}
	return w, nil
}

// Close flushes and closes every table.
func (w *Writer) Close() error {
	var firstErr error
	for _, t := range []*table{w.meter, w.status, w.heartbeat, w.transaction, w.rawEvent, w.unified} {
		if err := t.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WriteEvent fans ev out to events_raw (always), its type-specific
// table, and the unified labeled table (skipped for Heartbeat, per
// spec.md §4.4), in that order.
func (w *Writer) WriteEvent(ev ocpp.Event, scenario, mode, label string) error {
	w.step++

	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event for raw_payload: %w", err)
	}
	rawPayload := string(raw)
	ts := ev.Timestamp.Format(timestampLayout)

	if err := w.rawEvent.writeRow([]string{ts, ev.CPID, string(ev.MessageType), rawPayload}); err != nil {
		return fmt.Errorf("write events_raw row: %w", err)
	}

	switch ev.MessageType {
	case ocpp.MsgMeterValues:
		power, powerOK := ev.SampleValue(ocpp.MeasurandPower)
		current, currentOK := ev.SampleValue(ocpp.MeasurandCurrent)
		voltage, voltageOK := ev.SampleValue(ocpp.MeasurandVoltage)
		soc, socOK := ev.SampleValue(ocpp.MeasurandSoC)
		if err := w.meter.writeRow([]string{
			ts, ev.CPID, itoa(ev.TransactionID), itoa(ev.ConnectorID),
			numOrEmpty(power, powerOK), numOrEmpty(current, currentOK),
			numOrEmpty(voltage, voltageOK), numOrEmpty(soc, socOK), rawPayload,
		}); err != nil {
			return fmt.Errorf("write meter_values row: %w", err)
		}

	case ocpp.MsgStatusNotification:
		if err := w.status.writeRow([]string{ts, ev.CPID, itoa(ev.ConnectorID), ev.Status, ev.ErrorCode, rawPayload}); err != nil {
			return fmt.Errorf("write status_notifications row: %w", err)
		}

	case ocpp.MsgHeartbeat:
		if err := w.heartbeat.writeRow([]string{ts, ev.CPID, rawPayload}); err != nil {
			return fmt.Errorf("write heartbeats row: %w", err)
		}

	case ocpp.MsgStartTransaction, ocpp.MsgStopTransaction:
		if err := w.transaction.writeRow([]string{
			ts, ev.CPID, string(ev.MessageType), itoa(ev.TransactionID), ev.IDTag,
			ftoa(ev.MeterStart), ftoa(ev.MeterStop), ev.Reason, rawPayload,
		}); err != nil {
			return fmt.Errorf("write transactions row: %w", err)
		}
	}

	if ev.MessageType == ocpp.MsgHeartbeat {
		return nil
	}

	power, powerOK := ev.SampleValue(ocpp.MeasurandPower)
	current, currentOK := ev.SampleValue(ocpp.MeasurandCurrent)
	voltage, voltageOK := ev.SampleValue(ocpp.MeasurandVoltage)
	soc, socOK := ev.SampleValue(ocpp.MeasurandSoC)

	return w.unified.writeRow([]string{
		ts, ev.CPID, scenario, mode, itoa(w.step), string(ev.MessageType),
		itoa(ev.TransactionID), itoa(ev.ConnectorID), ev.IDTag,
		numOrEmpty(power, powerOK), numOrEmpty(current, currentOK),
		numOrEmpty(voltage, voltageOK), numOrEmpty(soc, socOK),
		label, rawPayload,
	})
}
