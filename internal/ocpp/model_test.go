package ocpp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCPSessionAuthorizationGatesStart(t *testing.T) {
	s := NewCPSession("CP_001")
	assert.False(t, s.IsAuthorized("TAG_A"))

	s.Authorize("TAG_A")
	assert.True(t, s.IsAuthorized("TAG_A"))
	assert.False(t, s.IsAuthorized("TAG_B"))
}

func TestCPSessionTransactionIDsMonotonic(t *testing.T) {
	s := NewCPSession("CP_001")
	first := s.NextTransactionID()
	second := s.NextTransactionID()
	require.Equal(t, first+1, second)
}

func TestCPSessionReleaseTxIDMarksAvailable(t *testing.T) {
	s := NewCPSession("CP_001")
	s.SetConnectorStatus(1, StatusCharging, "")
	s.MarkLastTxID(1, 7)

	released := s.ReleaseTxID(7)
	assert.Equal(t, 1, released)
	assert.Equal(t, StatusAvailable, s.Connector(1).Status)
}

func TestCPSessionAllConnectorsUnavailableOnEviction(t *testing.T) {
	s := NewCPSession("CP_001")
	s.SetConnectorStatus(1, StatusCharging, "")
	s.SetConnectorStatus(2, StatusAvailable, "")

	s.AllConnectorsUnavailable()
	assert.Equal(t, StatusUnavailable, s.Connector(1).Status)
	assert.Equal(t, StatusUnavailable, s.Connector(2).Status)
}

func TestCPSessionHeartbeatTouch(t *testing.T) {
	s := NewCPSession("CP_001")
	now := time.Now()
	s.Touch(now)
	assert.WithinDuration(t, now, s.LastHeartbeatAt(), time.Millisecond)
}
