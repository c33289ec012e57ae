package scenarios

import (
	"context"
	"math"

	"github.com/aegischarge/simulator/internal/config"
	"github.com/aegischarge/simulator/internal/cpclient"
	"github.com/aegischarge/simulator/internal/ocpp"
)

// OscillatoryLoad drives a sinusoidal power oscillation superimposed on
// the base load, grounded on
// original_source/Anomaly_Detector/simulations/dalgali_yuk/scenario.py:
// P(t) = P0 + A*sin(2*pi*f*t) + noise. In normal mode only the small
// jitter term is applied, labeled "normal"; in attack mode every
// MeterValues is labeled "oscillatory_load_attack".
type OscillatoryLoad struct{}

func (OscillatoryLoad) Drive(ctx context.Context, cps []*cpclient.Client, mode string, duration int, params config.ScenarioParams) error {
	sessions := startSessions(ctx, cps, params.BatteryCapacityKWh, 20.0)

	for step := 0; step < duration; step++ {
		t := float64(step)
		for _, s := range sessions {
			power := params.BasePowerKW + jitter(0.3)
			if mode == "attack" {
				power += params.AttackAmplitudeKW * math.Sin(2*math.Pi*params.AttackFrequencyHz*t)
			}
			voltage := params.VoltageV + jitter(1.0)
			current := (power * 1000) / voltage
			soc := s.soc.Advance(power)

			_ = s.cp.MeterValues(ctx, connectorID, s.txID, []ocpp.MeterSample{
				{Measurand: ocpp.MeasurandPower, Value: power},
				{Measurand: ocpp.MeasurandCurrent, Value: current},
				{Measurand: ocpp.MeasurandVoltage, Value: voltage},
				{Measurand: ocpp.MeasurandSoC, Value: soc},
			})
		}
		sleepTick(ctx)
	}

	stopAll(ctx, sessions)
	return nil
}

func (OscillatoryLoad) Label(ev ocpp.Event, mode string) string {
	if mode != "attack" {
		return "normal"
	}
	if ev.MessageType == ocpp.MsgMeterValues {
		return "oscillatory_load_attack"
	}
	return "attack_meta"
}
