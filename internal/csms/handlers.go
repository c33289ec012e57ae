package csms

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aegischarge/simulator/internal/ocpp"
	"github.com/aegischarge/simulator/internal/ocppsession"
	"github.com/aegischarge/simulator/internal/wire"
)

// handleUpgrade accepts one WebSocket connection at /{cp_id}, creates
// its session state, registers the OCPP action handlers, and runs its
// inbound dispatch loop for the session's lifetime.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	cpID := extractCPID(r.URL.Path)
	if cpID == "" {
		cpID = uuid.NewString()
	}

	conn, err := wire.Upgrader().Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "cp_id", cpID, "error", err)
		return
	}
	transport := wire.NewTransport(conn)

	state := ocpp.NewCPSession(cpID)
	session := ocppsession.New(transport, cpID)
	s.registerHandlers(session, state)

	ctx, cancel := context.WithCancel(context.Background())
	sess := &cpSession{state: state, session: session, transport: transport, cancel: cancel}

	s.mu.Lock()
	s.sessions[cpID] = sess
	activeSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	slog.Info("CP session accepted", "cp_id", cpID)

	if err := session.Serve(ctx); err != nil {
		slog.Info("CP session closed", "cp_id", cpID, "error", err)
	}

	s.mu.Lock()
	delete(s.sessions, cpID)
	activeSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()
	cancel()
}

// extractCPID pulls the path segment after the leading slash; mux
// already routed on this pattern, so the path is known non-empty.
func extractCPID(path string) string {
	for i := 1; i < len(path); i++ {
		if path[i] == '/' {
			return path[1:i]
		}
	}
	if len(path) > 1 {
		return path[1:]
	}
	return ""
}

func (s *Server) registerHandlers(session *ocppsession.Session, state *ocpp.CPSession) {
	session.Handle("BootNotification", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req bootNotificationReq
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("%w: boot notification payload: %v", ocpp.ErrProtocol, err)
		}
		now := time.Now()
		state.SetBootAccepted(true, s.defaultIntervalSec)
		state.Touch(now)

		s.emit(ocpp.Event{
			MessageType: ocpp.MsgBootNotification,
			CPID:        state.CPID,
			Timestamp:   now,
			Raw:         map[string]any{"vendor": req.ChargePointVendor, "model": req.ChargePointModel},
		})

		return bootNotificationResp{
			Status:      "Accepted",
			CurrentTime: now,
			Interval:    s.defaultIntervalSec,
		}, nil
	})

	session.Handle("Heartbeat", func(ctx context.Context, payload json.RawMessage) (any, error) {
		now := time.Now()
		state.Touch(now)
		s.emit(ocpp.Event{MessageType: ocpp.MsgHeartbeat, CPID: state.CPID, Timestamp: now})
		return heartbeatResp{CurrentTime: now}, nil
	})

	session.Handle("StatusNotification", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req statusNotificationReq
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("%w: status notification payload: %v", ocpp.ErrProtocol, err)
		}
		state.SetConnectorStatus(req.ConnectorID, ocpp.ConnectorStatus(req.Status), req.ErrorCode)
		s.emit(ocpp.Event{
			MessageType: ocpp.MsgStatusNotification,
			CPID:        state.CPID,
			ConnectorID: req.ConnectorID,
			Status:      req.Status,
			ErrorCode:   req.ErrorCode,
		})
		return statusNotificationResp{}, nil
	})

	session.Handle("Authorize", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req authorizeReq
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("%w: authorize payload: %v", ocpp.ErrProtocol, err)
		}
		status := "Invalid"
		if _, ok := s.tags[req.IDTag]; ok {
			state.Authorize(req.IDTag)
			status = "Accepted"
		}
		s.emit(ocpp.Event{
			MessageType: ocpp.MsgAuthorize,
			CPID:        state.CPID,
			IDTag:       req.IDTag,
			Status:      status,
		})
		return authorizeResp{IDTagInfo: idTagInfo{Status: status}}, nil
	})

	session.Handle("StartTransaction", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req startTransactionReq
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("%w: start transaction payload: %v", ocpp.ErrProtocol, err)
		}

		if !state.IsAuthorized(req.IDTag) {
			s.emit(ocpp.Event{
				MessageType: ocpp.MsgStartTransactionRejected,
				CPID:        state.CPID,
				ConnectorID: req.ConnectorID,
				IDTag:       req.IDTag,
			})
			return startTransactionResp{TransactionID: 0, IDTagInfo: idTagInfo{Status: "Invalid"}}, nil
		}

		txID := state.NextTransactionID()
		state.SetConnectorStatus(req.ConnectorID, ocpp.StatusCharging, "")
		state.MarkLastTxID(req.ConnectorID, txID)

		s.emit(ocpp.Event{
			MessageType:   ocpp.MsgStartTransaction,
			CPID:          state.CPID,
			ConnectorID:   req.ConnectorID,
			TransactionID: txID,
			IDTag:         req.IDTag,
			MeterStart:    req.MeterStart,
		})

		return startTransactionResp{TransactionID: txID, IDTagInfo: idTagInfo{Status: "Accepted"}}, nil
	})

	session.Handle("MeterValues", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req meterValuesReq
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("%w: meter values payload: %v", ocpp.ErrProtocol, err)
		}

		var samples []ocpp.MeterSample
		var ts time.Time
		for _, mv := range req.MeterValue {
			if ts.IsZero() {
				ts = mv.Timestamp
			}
			for _, sv := range mv.SampledValue {
				value, err := strconv.ParseFloat(sv.Value, 64)
				if err != nil {
					continue
				}
				samples = append(samples, ocpp.MeterSample{Measurand: ocpp.Measurand(sv.Measurand), Value: value})
			}
		}

		s.emit(ocpp.Event{
			MessageType:   ocpp.MsgMeterValues,
			CPID:          state.CPID,
			ConnectorID:   req.ConnectorID,
			TransactionID: req.TransactionID,
			Timestamp:     ts,
			Samples:       samples,
		})

		return meterValuesResp{}, nil
	})

	session.Handle("StopTransaction", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req stopTransactionReq
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("%w: stop transaction payload: %v", ocpp.ErrProtocol, err)
		}

		state.ReleaseTxID(req.TransactionID)

		s.emit(ocpp.Event{
			MessageType:   ocpp.MsgStopTransaction,
			CPID:          state.CPID,
			TransactionID: req.TransactionID,
			MeterStop:     req.MeterStop,
			Reason:        req.Reason,
		})

		return stopTransactionResp{}, nil
	})
}
