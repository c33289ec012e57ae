// Package wire implements the OCPP 1.6-J frame format over WebSocket:
// CALL, CALLRESULT, and CALLERROR as heterogeneous JSON arrays, plus the
// gorilla/websocket transport both the CSMS and the CP client dial
// through.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/aegischarge/simulator/internal/ocpp"
)

// MessageTypeID is the first element of every OCPP-J frame.
type MessageTypeID int

const (
	TypeCall       MessageTypeID = 2
	TypeCallResult MessageTypeID = 3
	TypeCallError  MessageTypeID = 4
)

// ErrGenericInternal is the CALLERROR code used when a handler returns
// an error or no handler is registered for the action (a panicking
// handler is not recovered); OCPP 1.6 does not define per-handler error taxonomy
// beyond a small fixed set, and the spec only requires a generic code.
const ErrGenericInternal = "InternalError"

// Call is an outgoing or incoming [2, MessageId, Action, Payload] frame.
type Call struct {
	MessageID string
	Action    string
	Payload   json.RawMessage
}

// CallResult is a [3, MessageId, Payload] frame.
type CallResult struct {
	MessageID string
	Payload   json.RawMessage
}

// CallError is a [4, MessageId, ErrorCode, ErrorDescription, ErrorDetails] frame.
type CallError struct {
	MessageID   string
	ErrorCode   string
	Description string
	Details     json.RawMessage
}

// MarshalCall serializes a CALL frame.
func MarshalCall(messageID, action string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal call payload: %v", ocpp.ErrProtocol, err)
	}
	return json.Marshal([]any{TypeCall, messageID, action, json.RawMessage(raw)})
}

// MarshalCallResult serializes a CALLRESULT frame.
func MarshalCallResult(messageID string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal result payload: %v", ocpp.ErrProtocol, err)
	}
	return json.Marshal([]any{TypeCallResult, messageID, json.RawMessage(raw)})
}

// MarshalCallError serializes a CALLERROR frame.
func MarshalCallError(messageID, code, description string) ([]byte, error) {
	return json.Marshal([]any{TypeCallError, messageID, code, description, struct{}{}})
}

// Frame is the parsed, type-discriminated form of any inbound message.
type Frame struct {
	Type   MessageTypeID
	Call   *Call
	Result *CallResult
	Err    *CallError
}

// ParseFrame decodes a raw WebSocket text message into a typed Frame.
func ParseFrame(data []byte) (*Frame, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: not a JSON array: %v", ocpp.ErrProtocol, err)
	}
	if len(raw) < 3 {
		return nil, fmt.Errorf("%w: frame has %d elements, need at least 3", ocpp.ErrProtocol, len(raw))
	}

	var typeID int
	if err := json.Unmarshal(raw[0], &typeID); err != nil {
		return nil, fmt.Errorf("%w: invalid message type id: %v", ocpp.ErrProtocol, err)
	}

	var messageID string
	if err := json.Unmarshal(raw[1], &messageID); err != nil {
		return nil, fmt.Errorf("%w: invalid message id: %v", ocpp.ErrProtocol, err)
	}

	switch MessageTypeID(typeID) {
	case TypeCall:
		if len(raw) != 4 {
			return nil, fmt.Errorf("%w: CALL frame needs 4 elements, got %d", ocpp.ErrProtocol, len(raw))
		}
		var action string
		if err := json.Unmarshal(raw[2], &action); err != nil {
			return nil, fmt.Errorf("%w: invalid action: %v", ocpp.ErrProtocol, err)
		}
		return &Frame{Type: TypeCall, Call: &Call{MessageID: messageID, Action: action, Payload: raw[3]}}, nil

	case TypeCallResult:
		if len(raw) != 3 {
			return nil, fmt.Errorf("%w: CALLRESULT frame needs 3 elements, got %d", ocpp.ErrProtocol, len(raw))
		}
		return &Frame{Type: TypeCallResult, Result: &CallResult{MessageID: messageID, Payload: raw[2]}}, nil

	case TypeCallError:
		if len(raw) != 5 {
			return nil, fmt.Errorf("%w: CALLERROR frame needs 5 elements, got %d", ocpp.ErrProtocol, len(raw))
		}
		var code, desc string
		_ = json.Unmarshal(raw[2], &code)
		_ = json.Unmarshal(raw[3], &desc)
		return &Frame{Type: TypeCallError, Err: &CallError{MessageID: messageID, ErrorCode: code, Description: desc, Details: raw[4]}}, nil

	default:
		return nil, fmt.Errorf("%w: unknown message type id %d", ocpp.ErrProtocol, typeID)
	}
}
