package ocpp

import "time"

// MessageType names the OCPP action (or synthetic CSMS-internal
// notification, such as CPOffline) an Event was derived from.
type MessageType string

const (
	MsgBootNotification         MessageType = "BootNotification"
	MsgHeartbeat                MessageType = "Heartbeat"
	MsgStatusNotification       MessageType = "StatusNotification"
	MsgAuthorize                MessageType = "Authorize"
	MsgStartTransaction         MessageType = "StartTransaction"
	MsgStartTransactionRejected MessageType = "StartTransactionRejected"
	MsgMeterValues              MessageType = "MeterValues"
	MsgStopTransaction          MessageType = "StopTransaction"
	MsgCPOffline                MessageType = "CPOffline"
)

// Event is the typed projection of one accepted OCPP message (or watchdog
// notification) that the CSMS dispatcher hands to the event bus. Every
// consumer — CSV writers, the Redis fan-out, the live feed — reads the
// same Event; none of them mutate it.
type Event struct {
	MessageType   MessageType
	CPID          string
	Timestamp     time.Time
	ConnectorID   int
	TransactionID int
	IDTag         string
	Status        string
	ErrorCode     string
	MeterStart    float64
	MeterStop     float64
	Reason        string
	Samples       []MeterSample
	Raw           map[string]any
}

// SampleValue returns the value of the first sample for measurand m, and
// whether it was present.
func (e Event) SampleValue(m Measurand) (float64, bool) {
	for _, s := range e.Samples {
		if s.Measurand == m {
			return s.Value, true
		}
	}
	return 0, false
}
