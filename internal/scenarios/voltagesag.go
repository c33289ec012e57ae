package scenarios

import (
	"context"
	"math/rand"

	"github.com/aegischarge/simulator/internal/config"
	"github.com/aegischarge/simulator/internal/cpclient"
	"github.com/aegischarge/simulator/internal/ocpp"
)

// sagRatio is the fraction of nominal voltage a sag drops to, grounded
// on the 0.7*V_nominal constant used throughout the voltage-sag
// simulations in original_source.
const sagRatio = 0.7

// VoltageSag drops a connector's reported voltage to sagRatio*nominal at
// random, independently per MeterValues sample, with probability
// params.ManipulationProbability. Power and current are left alone —
// only the voltage channel is anomalous, matching a real sag event.
type VoltageSag struct{}

func (VoltageSag) Drive(ctx context.Context, cps []*cpclient.Client, mode string, duration int, params config.ScenarioParams) error {
	sessions := startSessions(ctx, cps, params.BatteryCapacityKWh, 20.0)

	for step := 0; step < duration; step++ {
		for _, s := range sessions {
			power := params.BasePowerKW + jitter(0.3)
			voltage := params.VoltageV + jitter(1.0)
			if mode == "attack" && rand.Float64() < params.ManipulationProbability {
				voltage = params.VoltageV * sagRatio
			}
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

// Label returns voltage_sag_attack for every attack-mode MeterValues
// row, sagged or not — the downstream detector's job is to tell sagged
// samples apart from the attack-mode noise floor, not this scenario's.
func (VoltageSag) Label(ev ocpp.Event, mode string) string {
	if mode != "attack" {
		return "normal"
	}
	if ev.MessageType == ocpp.MsgMeterValues {
		return "voltage_sag_attack"
	}
	return "attack_meta"
}
