// Package ocpp holds the wire-independent data model shared by the CSMS,
// the CP client, and the scenario engine: sessions, transactions,
// connectors, meter samples, and the event envelope logged by the engine.
package ocpp

import "errors"

// Error kinds. These are sentinels, not error codes on the wire; callers
// use errors.Is against them and wrap with fmt.Errorf("...: %w", ...).
var (
	// ErrTransport covers dial and send/recv failures on the WebSocket.
	ErrTransport = errors.New("ocpp: transport error")

	// ErrProtocol covers malformed frames or calls to an unknown action.
	ErrProtocol = errors.New("ocpp: protocol error")

	// ErrTimeout covers a CALL that never received a matching CALLRESULT
	// or CALLERROR before its deadline.
	ErrTimeout = errors.New("ocpp: request timed out")

	// ErrAuthorizationRejected covers a StartTransaction attempted
	// without a prior Accepted Authorize for the same id_tag.
	ErrAuthorizationRejected = errors.New("ocpp: id tag not authorized")

	// ErrScenario covers an unexpected failure inside a scenario's Drive.
	ErrScenario = errors.New("ocpp: scenario error")

	// ErrConfig covers a missing scenario or malformed CP list; fatal
	// before a run starts.
	ErrConfig = errors.New("ocpp: configuration error")
)
