package scenarios

import (
	"context"
	"time"

	"github.com/aegischarge/simulator/internal/config"
	"github.com/aegischarge/simulator/internal/cpclient"
	"github.com/aegischarge/simulator/internal/ocpp"
)

// LatencyDoS reports ordinary power readings but stalls before every
// send, starving the CSMS of timely telemetry without ever reporting an
// anomalous reading itself — a denial-of-service on freshness rather
// than on content. Distinct from ReverseCharging, whose relay delay is
// secondary to its negative-power payload; here the delay is the whole
// attack.
type LatencyDoS struct{}

func (LatencyDoS) Drive(ctx context.Context, cps []*cpclient.Client, mode string, duration int, params config.ScenarioParams) error {
	sessions := startSessions(ctx, cps, params.BatteryCapacityKWh, 20.0)
	delay := time.Duration(params.RelayLatencyMS) * time.Millisecond

	for step := 0; step < duration; step++ {
		for _, s := range sessions {
			if mode == "attack" && delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					stopAll(ctx, sessions)
					return nil
				}
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
		if mode != "attack" {
			sleepTick(ctx)
		}
	}

	stopAll(ctx, sessions)
	return nil
}

func (LatencyDoS) Label(ev ocpp.Event, mode string) string {
	if mode != "attack" {
		return "normal"
	}
	if ev.MessageType == ocpp.MsgMeterValues {
		return "latency_dos_attack"
	}
	return "attack_meta"
}
