package scenarios

import (
	"context"
	"math/rand"

	"github.com/aegischarge/simulator/internal/config"
	"github.com/aegischarge/simulator/internal/cpclient"
	"github.com/aegischarge/simulator/internal/ocpp"
)

// StealthyDrift biases each CP's reported power by a small, fixed-per-run
// multiplicative ratio drawn once from [DriftMin%, DriftMax%], grounded
// on original_source/Anomaly_Detector/simulations/sfed/scenario.py. The
// drift is too small to trip a threshold on any single sample — its
// signature is an accumulated billing/metering discrepancy over the
// run, not an outlier reading.
type StealthyDrift struct{}

func (StealthyDrift) Drive(ctx context.Context, cps []*cpclient.Client, mode string, duration int, params config.ScenarioParams) error {
	sessions := startSessions(ctx, cps, params.BatteryCapacityKWh, 20.0)

	drift := make(map[*session]float64, len(sessions))
	for _, s := range sessions {
		ratio := params.DriftMin + rand.Float64()*(params.DriftMax-params.DriftMin)
		drift[s] = 1.0 + ratio/100.0
	}

	for step := 0; step < duration; step++ {
		for _, s := range sessions {
			power := params.BasePowerKW + jitter(0.2)
			if mode == "attack" {
				power *= drift[s]
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

func (StealthyDrift) Label(ev ocpp.Event, mode string) string {
	if mode != "attack" {
		return "normal"
	}
	if ev.MessageType == ocpp.MsgMeterValues {
		return "sfed_attack"
	}
	return "attack_meta"
}
