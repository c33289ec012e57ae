// Package ocppsession correlates outgoing CALLs with their CALLRESULT or
// CALLERROR reply, and dispatches inbound CALLs to registered handlers.
// One Session wraps one wire.Transport, on either the CSMS or the CP
// client side — the correlation logic is identical in both directions.
package ocppsession

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aegischarge/simulator/internal/ocpp"
	"github.com/aegischarge/simulator/internal/wire"
)

// HandlerFunc answers one inbound CALL. Returning an error produces a
// CALLERROR with the generic InternalError code, per spec.md §4.1.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (any, error)

// pendingReply is the one-shot completion slot a CALL awaits.
type pendingReply struct {
	resultCh chan json.RawMessage
	errCh    chan error
}

// Session owns the pending-reply map for one wire.Transport and the
// action->handler table for inbound dispatch. The pending map is only
// ever written by the sender (Call) and read by the reader loop (Serve,
// via resolve), guarded by a mutex — no cyclic ownership, per spec.md §9.
//
// Inbound CALLs are handed to a single dispatch goroutine over
// inbound, a buffered channel, rather than spawned one-goroutine-per-
// CALL: wire arrival order for one CP session must survive all the
// way to the event bus and the CSV tables, and a fresh goroutine per
// CALL gives no such guarantee.
type Session struct {
	transport *wire.Transport
	cpID      string

	mu      sync.Mutex
	pending map[string]*pendingReply

	handlersMu sync.RWMutex
	handlers   map[string]HandlerFunc

	inbound chan *wire.Call

	defaultTimeout time.Duration
}

// New creates a Session around transport. cpID is used only for logging.
func New(transport *wire.Transport, cpID string) *Session {
	return &Session{
		transport:      transport,
		cpID:           cpID,
		pending:        make(map[string]*pendingReply),
		handlers:       make(map[string]HandlerFunc),
		inbound:        make(chan *wire.Call, 64),
		defaultTimeout: 30 * time.Second,
	}
}

// Handle registers fn to answer inbound CALLs for action.
func (s *Session) Handle(action string, fn HandlerFunc) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[action] = fn
}

// Call sends an outgoing CALL and blocks until its CALLRESULT (unmarshaled
// into out) arrives, a CALLERROR arrives, ctx is canceled, or the default
// timeout elapses.
func (s *Session) Call(ctx context.Context, action string, payload, out any) error {
	messageID := uuid.NewString()

	data, err := wire.MarshalCall(messageID, action, payload)
	if err != nil {
		return err
	}

	reply := &pendingReply{
		resultCh: make(chan json.RawMessage, 1),
		errCh:    make(chan error, 1),
	}
	s.mu.Lock()
	s.pending[messageID] = reply
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, messageID)
		s.mu.Unlock()
	}()

	if err := s.transport.WriteMessage(data); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.defaultTimeout)
	defer cancel()

	select {
	case raw := <-reply.resultCh:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: unmarshal %s result: %v", ocpp.ErrProtocol, action, err)
		}
		return nil
	case err := <-reply.errCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %s", ocpp.ErrTimeout, action)
	}
}

// Serve runs the inbound read loop until the transport closes or ctx is
// canceled. It dispatches CALLs to registered handlers and resolves
// pending CALLs on CALLRESULT/CALLERROR arrival.
func (s *Session) Serve(ctx context.Context) error {
	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	defer cancelDispatch()
	go s.dispatchLoop(dispatchCtx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, err := s.transport.ReadMessage()
		if err != nil {
			return err
		}

		frame, err := wire.ParseFrame(data)
		if err != nil {
			slog.Warn("discarding unparseable frame", "cp_id", s.cpID, "error", err)
			continue
		}

		switch frame.Type {
		case wire.TypeCall:
			select {
			case s.inbound <- frame.Call:
			case <-ctx.Done():
				return ctx.Err()
			}
		case wire.TypeCallResult:
			s.resolve(frame.Result.MessageID, frame.Result.Payload, nil)
		case wire.TypeCallError:
			s.resolve(frame.Err.MessageID, nil, fmt.Errorf("%w: %s: %s", ocpp.ErrProtocol, frame.Err.ErrorCode, frame.Err.Description))
		}
	}
}

// dispatchLoop processes inbound CALLs one at a time, in the order
// Serve received them off the wire — the single-task semantics
// spec.md §5 requires per CP session.
func (s *Session) dispatchLoop(ctx context.Context) {
	for {
		select {
		case call := <-s.inbound:
			s.dispatchCall(ctx, call)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) resolve(messageID string, result json.RawMessage, err error) {
	s.mu.Lock()
	reply, ok := s.pending[messageID]
	s.mu.Unlock()
	if !ok {
		slog.Warn("reply for unknown message id discarded", "cp_id", s.cpID, "message_id", messageID)
		return
	}
	if err != nil {
		reply.errCh <- err
		return
	}
	reply.resultCh <- result
}

func (s *Session) dispatchCall(ctx context.Context, call *wire.Call) {
	s.handlersMu.RLock()
	fn, ok := s.handlers[call.Action]
	s.handlersMu.RUnlock()

	if !ok {
		slog.Warn("no handler for action", "cp_id", s.cpID, "action", call.Action)
		data, _ := wire.MarshalCallError(call.MessageID, wire.ErrGenericInternal, "unknown action")
		_ = s.transport.WriteMessage(data)
		return
	}

	result, err := fn(ctx, call.Payload)
	if err != nil {
		slog.Warn("handler failed", "cp_id", s.cpID, "action", call.Action, "error", err)
		data, _ := wire.MarshalCallError(call.MessageID, wire.ErrGenericInternal, err.Error())
		_ = s.transport.WriteMessage(data)
		return
	}

	data, err := wire.MarshalCallResult(call.MessageID, result)
	if err != nil {
		slog.Warn("failed to marshal handler result", "cp_id", s.cpID, "action", call.Action, "error", err)
		return
	}
	if err := s.transport.WriteMessage(data); err != nil {
		slog.Warn("failed to write call result", "cp_id", s.cpID, "action", call.Action, "error", err)
	}
}
