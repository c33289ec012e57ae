package scenarios

import (
	"context"
	"math/rand"
	"time"

	"github.com/aegischarge/simulator/internal/config"
	"github.com/aegischarge/simulator/internal/cpclient"
	"github.com/aegischarge/simulator/internal/ocpp"
)

// ReverseCharging simulates a compromised relay feeding power back into
// the grid while stalling its own telemetry, grounded on
// original_source/Anomaly_Detector/simulations/reverse_charging/scenario.py.
// Its SoC delta (power_kw/60.0)*0.5 is deliberately not the shared
// engine.SoCIntegrator formula: the source scenario uses this simpler,
// divisor-60 approximation rather than the battery-capacity-driven
// integrator every other scenario shares, so this scenario tracks SoC
// locally to stay faithful to it.
type ReverseCharging struct{}

func reverseSoCDelta(powerKW, soc float64) float64 {
	soc += (powerKW / 60.0) * 0.5
	if soc > 100 {
		soc = 100
	}
	if soc < 0 {
		soc = 0
	}
	return soc
}

func (ReverseCharging) Drive(ctx context.Context, cps []*cpclient.Client, mode string, duration int, params config.ScenarioParams) error {
	sessions := startSessions(ctx, cps, params.BatteryCapacityKWh, 20.0)
	soc := make(map[*session]float64, len(sessions))
	for _, s := range sessions {
		soc[s] = 20.0
	}

	relayDelay := time.Duration(params.RelayLatencyMS) * time.Millisecond

	for step := 0; step < duration; step++ {
		for _, s := range sessions {
			var power float64
			if mode == "attack" {
				power = -params.AttackAmplitudeKW + jitter(1.0)
			} else {
				power = params.BasePowerKW + jitter(0.3)
			}
			voltage := params.VoltageV + jitter(1.0)
			current := (power * 1000) / voltage
			soc[s] = reverseSoCDelta(power, soc[s])

			if mode == "attack" && relayDelay > 0 {
				factor := 0.8 + rand.Float64()*0.4
				select {
				case <-time.After(time.Duration(float64(relayDelay) * factor)):
				case <-ctx.Done():
					stopAll(ctx, sessions)
					return nil
				}
			} else {
				select {
				case <-time.After(50 * time.Millisecond):
				case <-ctx.Done():
					stopAll(ctx, sessions)
					return nil
				}
			}

			_ = s.cp.MeterValues(ctx, connectorID, s.txID, []ocpp.MeterSample{
				{Measurand: ocpp.MeasurandPower, Value: power},
				{Measurand: ocpp.MeasurandCurrent, Value: current},
				{Measurand: ocpp.MeasurandVoltage, Value: voltage},
				{Measurand: ocpp.MeasurandSoC, Value: soc[s]},
			})
		}
	}

	stopAll(ctx, sessions)
	return nil
}

func (ReverseCharging) Label(ev ocpp.Event, mode string) string {
	if mode != "attack" {
		return "normal"
	}
	if ev.MessageType != ocpp.MsgMeterValues {
		return "attack_meta"
	}
	if power, ok := ev.SampleValue(ocpp.MeasurandPower); ok && power < 0 {
		return "reverse_charging_anomaly"
	}
	return "relay_attack_latency"
}
