package ocpp

import (
	"sync"
	"time"
)

// ConnectorStatus mirrors the OCPP 1.6 StatusNotification status enum,
// narrowed to the values this simulator drives.
type ConnectorStatus string

const (
	StatusAvailable   ConnectorStatus = "Available"
	StatusPreparing   ConnectorStatus = "Preparing"
	StatusCharging    ConnectorStatus = "Charging"
	StatusFinishing   ConnectorStatus = "Finishing"
	StatusFaulted     ConnectorStatus = "Faulted"
	StatusUnavailable ConnectorStatus = "Unavailable"
)

// AuthStatus mirrors the OCPP 1.6 Authorize/StartTransaction status enum.
type AuthStatus string

const (
	AuthAccepted AuthStatus = "Accepted"
	AuthInvalid  AuthStatus = "Invalid"
)

// Measurand is the kind of a MeterValues sample, narrowed to the four
// measurands this simulator produces.
type Measurand string

const (
	MeasurandVoltage    Measurand = "Voltage"
	MeasurandCurrent    Measurand = "Current.Import"
	MeasurandPower      Measurand = "Power.Active.Import"
	MeasurandSoC        Measurand = "SoC"
)

// MeterSample is one numeric reading for one measurand; its timestamp
// is carried by the enclosing Event.
type MeterSample struct {
	Measurand Measurand
	Value     float64
}

// Connector is the per-connector state a CSMS session tracks.
type Connector struct {
	ID        int
	Status    ConnectorStatus
	ErrorCode string
	LastTxID  int
}

// Transaction is a scoped charging session identified by a CSMS-issued id.
type Transaction struct {
	ID          int
	CPID        string
	ConnectorID int
	IDTag       string
	MeterStart  float64
	MeterStop   float64
	StartTime   time.Time
	StopTime    time.Time
	Active      bool
}

// CPSession is the CSMS-side state for one connected charge point.
type CPSession struct {
	mu sync.RWMutex

	CPID             string
	BootAccepted     bool
	HeartbeatInterval int
	LastHeartbeat    time.Time
	Connectors       map[int]*Connector
	AuthorizedTags   map[string]bool
	nextTxID         int
}

// NewCPSession creates a fresh, empty session for cpID.
func NewCPSession(cpID string) *CPSession {
	return &CPSession{
		CPID:           cpID,
		Connectors:     make(map[int]*Connector),
		AuthorizedTags: make(map[string]bool),
		nextTxID:       1,
	}
}

// Connector returns (creating if absent) the connector record for id.
func (s *CPSession) Connector(id int) *Connector {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Connectors[id]
	if !ok {
		c = &Connector{ID: id, Status: StatusAvailable}
		s.Connectors[id] = c
	}
	return c
}

// SetConnectorStatus updates a connector's status and error code.
func (s *CPSession) SetConnectorStatus(id int, status ConnectorStatus, errorCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Connectors[id]
	if !ok {
		c = &Connector{ID: id}
		s.Connectors[id] = c
	}
	c.Status = status
	c.ErrorCode = errorCode
}

// AllConnectorsUnavailable marks every known connector Unavailable; used
// by the heartbeat watchdog on eviction.
func (s *CPSession) AllConnectorsUnavailable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.Connectors {
		c.Status = StatusUnavailable
	}
}

// Authorize records id_tag as authorized for this session.
func (s *CPSession) Authorize(idTag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AuthorizedTags[idTag] = true
}

// IsAuthorized reports whether id_tag was previously accepted on this session.
func (s *CPSession) IsAuthorized(idTag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.AuthorizedTags[idTag]
}

// NextTransactionID allocates and returns the next monotonically
// increasing transaction id for this CP.
func (s *CPSession) NextTransactionID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextTxID
	s.nextTxID++
	return id
}

// Touch records a heartbeat at now.
func (s *CPSession) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastHeartbeat = now
}

// LastHeartbeatAt returns the last recorded heartbeat time.
func (s *CPSession) LastHeartbeatAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastHeartbeat
}

// SetBootAccepted records the outcome of BootNotification and the
// negotiated heartbeat interval.
func (s *CPSession) SetBootAccepted(accepted bool, intervalSeconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BootAccepted = accepted
	s.HeartbeatInterval = intervalSeconds
}

// Interval returns the session's heartbeat interval in seconds.
func (s *CPSession) Interval() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.HeartbeatInterval
}

// MarkLastTxID records the transaction id most recently started on a
// connector, used by StopTransaction to find which connector to free.
func (s *CPSession) MarkLastTxID(connectorID, txID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Connectors[connectorID]
	if !ok {
		c = &Connector{ID: connectorID}
		s.Connectors[connectorID] = c
	}
	c.LastTxID = txID
}

// ReleaseTxID transitions to Available every connector whose LastTxID
// matches txID, returning the count released.
func (s *CPSession) ReleaseTxID(txID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	released := 0
	for _, c := range s.Connectors {
		if c.LastTxID == txID {
			c.Status = StatusAvailable
			released++
		}
	}
	return released
}
