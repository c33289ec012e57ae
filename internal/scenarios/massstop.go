package scenarios

import (
	"context"

	"github.com/aegischarge/simulator/internal/config"
	"github.com/aegischarge/simulator/internal/cpclient"
	"github.com/aegischarge/simulator/internal/ocpp"
)

// MassStop synchronously stops every active transaction at a single
// trigger step, simulating a remote-command spoof or grid-instability
// event forcing every connected CP offline at once. Grounded on
// original_source/Anomaly_Detector/simulations/sebeke_istikrarsizligi/scenario.py:
// attack_trigger_step = int(duration*attack_trigger_ratio); at that
// step every CP with an active transaction goes Finishing ->
// StopTransaction -> Available, and every MeterValues reported
// afterward carries power_kw = current_a = 0 with SoC held constant
// (transaction_id = 0, since the transaction is over).
type MassStop struct{}

func (MassStop) Drive(ctx context.Context, cps []*cpclient.Client, mode string, duration int, params config.ScenarioParams) error {
	sessions := startSessions(ctx, cps, params.BatteryCapacityKWh, 20.0)

	triggerStep := duration + 1
	if mode == "attack" {
		triggerStep = int(float64(duration) * params.AttackTriggerRatio)
	}

	for step := 0; step < duration; step++ {
		if step == triggerStep {
			for _, s := range sessions {
				stopSession(ctx, s)
			}
		}

		for _, s := range sessions {
			if s.txID == 0 {
				voltage := params.VoltageV + jitter(1.0)
				_ = s.cp.MeterValues(ctx, connectorID, 0, []ocpp.MeterSample{
					{Measurand: ocpp.MeasurandPower, Value: 0},
					{Measurand: ocpp.MeasurandCurrent, Value: 0},
					{Measurand: ocpp.MeasurandVoltage, Value: voltage},
					{Measurand: ocpp.MeasurandSoC, Value: s.soc.SoC()},
				})
				continue
			}

			power := params.BasePowerKW + jitter(0.3)
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

func (MassStop) Label(ev ocpp.Event, mode string) string {
	if mode != "attack" {
		return "normal"
	}
	switch ev.MessageType {
	case ocpp.MsgStopTransaction:
		return "mass_transaction_termination_attack"
	case ocpp.MsgMeterValues:
		if power, ok := ev.SampleValue(ocpp.MeasurandPower); ok && power == 0 {
			return "mass_transaction_termination_attack"
		}
		return "normal"
	case ocpp.MsgStatusNotification:
		return "remote_command_spoofing_attack"
	default:
		return "attack_meta"
	}
}
