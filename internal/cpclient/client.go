// Package cpclient implements the simulated charge point: the
// connect/boot/heartbeat lifecycle and the OCPP actions a scenario
// drives (StatusNotification, Authorize, StartTransaction, MeterValues,
// StopTransaction), per spec.md §4.2.
package cpclient

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aegischarge/simulator/internal/backoff"
	"github.com/aegischarge/simulator/internal/ocpp"
	"github.com/aegischarge/simulator/internal/ocppsession"
	"github.com/aegischarge/simulator/internal/wire"
)

// connectMaxAttempts and connectBackoffUnit bound the scenario
// engine's retry of a failed dial, per spec.md §4.5.
const (
	connectMaxAttempts = 3
	connectBackoffUnit = 500 * time.Millisecond
)

// Client is one simulated charge point: a wire transport, the OCPP
// session correlation layer above it, and the small amount of local
// state (heartbeat interval, cancel funcs) the CP side itself owns.
type Client struct {
	CPID string

	mu        sync.Mutex
	transport *wire.Transport
	session   *ocppsession.Session
	interval  time.Duration
	cancelHB  context.CancelFunc
}

// New creates an unconnected Client for cpID.
func New(cpID string) *Client {
	return &Client{CPID: cpID}
}

// Connect dials csmsURL with retry/back-off, then sends BootNotification
// and starts the heartbeat loop. A dial failure after all retries is
// wrapped in ocpp.ErrTransport; the scenario engine logs it and runs
// without that CP.
func (c *Client) Connect(ctx context.Context, csmsURL string, tlsCfg wire.TLSConfig) error {
	var transport *wire.Transport
	err := backoff.Linear(ctx, connectMaxAttempts, connectBackoffUnit, func() error {
		t, dialErr := wire.Dial(ctx, csmsURL, c.CPID, tlsCfg)
		if dialErr != nil {
			return dialErr
		}
		transport = t
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: connect %s: %v", ocpp.ErrTransport, c.CPID, err)
	}

	c.mu.Lock()
	c.transport = transport
	c.session = ocppsession.New(transport, c.CPID)
	c.mu.Unlock()

	go func() {
		if err := c.session.Serve(ctx); err != nil {
			slog.Debug("CP inbound dispatch ended", "cp_id", c.CPID, "error", err)
		}
	}()

	resp, err := c.bootNotification(ctx, "AegisCharge", "SimCP")
	if err != nil {
		return err
	}
	if resp.Status != "Accepted" {
		slog.Warn("boot notification not accepted, continuing with default interval", "cp_id", c.CPID, "status", resp.Status)
	}

	interval := resp.Interval
	if resp.Status != "Accepted" || interval <= 0 {
		interval = 10
	}
	c.mu.Lock()
	c.interval = time.Duration(interval) * time.Second
	hbCtx, cancel := context.WithCancel(ctx)
	c.cancelHB = cancel
	c.mu.Unlock()

	go c.heartbeatLoop(hbCtx)

	return nil
}

func (c *Client) bootNotification(ctx context.Context, vendor, model string) (bootNotificationResp, error) {
	var resp bootNotificationResp
	err := c.session.Call(ctx, "BootNotification", bootNotificationReq{
		ChargePointVendor: vendor,
		ChargePointModel:  model,
	}, &resp)
	return resp, err
}

// heartbeatLoop sends a Heartbeat CALL every interval. A failure ends
// the loop but never tears down the session, per spec.md §4.2 — a
// silently-stalled heartbeat is exactly what the watchdog is meant to
// detect.
func (c *Client) heartbeatLoop(ctx context.Context) {
	c.mu.Lock()
	interval := c.interval
	c.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var resp struct {
				CurrentTime time.Time `json:"currentTime"`
			}
			if err := c.session.Call(ctx, "Heartbeat", struct{}{}, &resp); err != nil {
				slog.Warn("heartbeat failed, loop terminating", "cp_id", c.CPID, "error", err)
				return
			}
		}
	}
}

// StatusNotification sends the CALL and waits for its CALLRESULT
// before returning — callers don't need the reply, but the send must
// complete before any action a caller issues next, so wire order for
// this CP session stays intact all the way to the event bus.
func (c *Client) StatusNotification(ctx context.Context, connectorID int, status ocpp.ConnectorStatus, errorCode string) {
	if err := c.session.Call(ctx, "StatusNotification", statusNotificationReq{
		ConnectorID: connectorID,
		ErrorCode:   errorCode,
		Status:      string(status),
	}, nil); err != nil {
		slog.Warn("status notification failed", "cp_id", c.CPID, "error", err)
	}
}

// Authorize requests authorization for idTag and returns the CSMS's
// reported status ("Accepted" or "Invalid").
func (c *Client) Authorize(ctx context.Context, idTag string) (string, error) {
	var resp authorizeResp
	if err := c.session.Call(ctx, "Authorize", authorizeReq{IDTag: idTag}, &resp); err != nil {
		return "", err
	}
	return resp.IDTagInfo.Status, nil
}

// StartTransactionResult is the outcome of a StartTransaction call.
// TransactionID == 0 or Status != "Accepted" is a hard rejection —
// callers must not emit subsequent MeterValues for the attempt.
type StartTransactionResult struct {
	TransactionID int
	Status        string
}

// StartTransaction begins a transaction for connectorID under idTag.
func (c *Client) StartTransaction(ctx context.Context, connectorID int, idTag string, meterStart float64) (StartTransactionResult, error) {
	var resp startTransactionResp
	if err := c.session.Call(ctx, "StartTransaction", startTransactionReq{
		ConnectorID: connectorID,
		IDTag:       idTag,
		MeterStart:  meterStart,
	}, &resp); err != nil {
		return StartTransactionResult{}, err
	}
	return StartTransactionResult{TransactionID: resp.TransactionID, Status: resp.IDTagInfo.Status}, nil
}

// MeterValues reports samples is permitted to be a subset of the four
// measurands spec.md §3 lists.
func (c *Client) MeterValues(ctx context.Context, connectorID, transactionID int, samples []ocpp.MeterSample) error {
	sv := make([]sampledValue, 0, len(samples))
	for _, s := range samples {
		sv = append(sv, sampledValue{Value: formatValue(s.Value), Measurand: string(s.Measurand)})
	}
	return c.session.Call(ctx, "MeterValues", meterValuesReq{
		ConnectorID:   connectorID,
		TransactionID: transactionID,
		MeterValue: []meterValue{{
			Timestamp:    time.Now(),
			SampledValue: sv,
		}},
	}, nil)
}

// StopTransaction sends the CALL and waits for its CALLRESULT before
// returning, for the same wire-ordering reason as StatusNotification.
func (c *Client) StopTransaction(ctx context.Context, transactionID int, meterStop float64, reason string) {
	if err := c.session.Call(ctx, "StopTransaction", stopTransactionReq{
		TransactionID: transactionID,
		MeterStop:     meterStop,
		Reason:        reason,
	}, nil); err != nil {
		slog.Warn("stop transaction failed", "cp_id", c.CPID, "error", err)
	}
}

// Close stops the heartbeat loop and closes the transport.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.cancelHB != nil {
		c.cancelHB()
	}
	transport := c.transport
	c.mu.Unlock()

	if transport == nil {
		return nil
	}
	return transport.Close()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
