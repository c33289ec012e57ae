package scenarios

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aegischarge/simulator/internal/ocpp"
)

func meterEvent(power float64) ocpp.Event {
	return ocpp.Event{
		MessageType: ocpp.MsgMeterValues,
		Samples: []ocpp.MeterSample{
			{Measurand: ocpp.MeasurandPower, Value: power},
		},
	}
}

func TestOscillatoryLoadLabel(t *testing.T) {
	s := OscillatoryLoad{}
	assert.Equal(t, "normal", s.Label(meterEvent(7), "normal"))
	assert.Equal(t, "oscillatory_load_attack", s.Label(meterEvent(7), "attack"))
	assert.Equal(t, "attack_meta", s.Label(ocpp.Event{MessageType: ocpp.MsgHeartbeat}, "attack"))
}

func TestVoltageSagLabel(t *testing.T) {
	s := VoltageSag{}
	assert.Equal(t, "normal", s.Label(meterEvent(7), "normal"))
	// Every attack-mode MeterValues row is labeled voltage_sag_attack,
	// sagged or not: the original sim labels by mode, not by sample.
	assert.Equal(t, "voltage_sag_attack", s.Label(ocpp.Event{
		MessageType: ocpp.MsgMeterValues,
		Samples:     []ocpp.MeterSample{{Measurand: ocpp.MeasurandVoltage, Value: 229.0}},
	}, "attack"))
	assert.Equal(t, "voltage_sag_attack", s.Label(ocpp.Event{
		MessageType: ocpp.MsgMeterValues,
		Samples:     []ocpp.MeterSample{{Measurand: ocpp.MeasurandVoltage, Value: 160.0}},
	}, "attack"))
	assert.Equal(t, "attack_meta", s.Label(ocpp.Event{MessageType: ocpp.MsgHeartbeat}, "attack"))
}

func TestStealthyDriftLabel(t *testing.T) {
	s := StealthyDrift{}
	assert.Equal(t, "normal", s.Label(meterEvent(7), "normal"))
	assert.Equal(t, "sfed_attack", s.Label(meterEvent(7), "attack"))
}

func TestMassStopLabel(t *testing.T) {
	s := MassStop{}
	assert.Equal(t, "mass_transaction_termination_attack", s.Label(ocpp.Event{MessageType: ocpp.MsgStopTransaction}, "attack"))
	assert.Equal(t, "mass_transaction_termination_attack", s.Label(meterEvent(0), "attack"))
	assert.Equal(t, "normal", s.Label(meterEvent(7), "attack"))
	assert.Equal(t, "remote_command_spoofing_attack", s.Label(ocpp.Event{MessageType: ocpp.MsgStatusNotification}, "attack"))
}

func TestReverseChargingLabel(t *testing.T) {
	s := ReverseCharging{}
	assert.Equal(t, "reverse_charging_anomaly", s.Label(meterEvent(-2), "attack"))
	assert.Equal(t, "relay_attack_latency", s.Label(meterEvent(5), "attack"))
	assert.Equal(t, "normal", s.Label(meterEvent(-2), "normal"))
}

func TestLatencyDoSLabel(t *testing.T) {
	s := LatencyDoS{}
	assert.Equal(t, "latency_dos_attack", s.Label(meterEvent(7), "attack"))
	assert.Equal(t, "normal", s.Label(meterEvent(7), "normal"))
}

func TestMITMLabel(t *testing.T) {
	m := &MITM{}
	m.basePowerKW = 7.0
	assert.Equal(t, "mitm_manipulation_attack", m.Label(meterEvent(0), "attack"))
	assert.Equal(t, "mitm_manipulation_attack", m.Label(meterEvent(35), "attack"))
	assert.Equal(t, "normal", m.Label(meterEvent(7.2), "attack"))
}

func TestDarkProfileLabel(t *testing.T) {
	s := DarkProfile{}
	assert.Equal(t, "dark_profile_attack", s.Label(ocpp.Event{MessageType: ocpp.MsgAuthorize}, "attack"))
	assert.Equal(t, "dark_profile_attack", s.Label(ocpp.Event{MessageType: ocpp.MsgStartTransaction}, "attack"))
	assert.Equal(t, "dark_profile_attack", s.Label(ocpp.Event{MessageType: ocpp.MsgStopTransaction}, "attack"))
	assert.Equal(t, "attack_meta", s.Label(meterEvent(7), "attack"))
	assert.Equal(t, "normal", s.Label(ocpp.Event{MessageType: ocpp.MsgStartTransaction}, "normal"))
}

func TestSSRFProbeLabel(t *testing.T) {
	s := SSRFProbe{}
	assert.Equal(t, "ssrf_attack_pattern", s.Label(meterEvent(7), "attack"))
	assert.Equal(t, "attack_meta", s.Label(ocpp.Event{MessageType: ocpp.MsgHeartbeat}, "attack"))
	assert.Equal(t, "normal", s.Label(meterEvent(7), "normal"))
}
