package scenarios

import (
	"context"
	"math/rand"
	"time"

	"github.com/aegischarge/simulator/internal/config"
	"github.com/aegischarge/simulator/internal/cpclient"
	"github.com/aegischarge/simulator/internal/ocpp"
)

// ssrfLatencyMultiplier matches the original_source ssrf_attack
// simulation's fixed latency_multiplier=2.0: the CSMS is spending its
// time scanning the internal network the SSRF reaches, so every
// attack-mode MeterValues send stalls for uniform(0.1,0.4)*multiplier
// seconds before going out.
const ssrfLatencyMultiplier = 2.0

// SSRFProbe is a supplemented scenario (original_source's ssrf_attack
// simulation): an ordinary charge session in both modes. The attack
// is not in any payload field — it's in what a compromised CSMS is
// doing instead of answering promptly: every attack-mode MeterValues
// send stalls for a network-scan-shaped delay, and the connector
// voltage jitters harder than normal, as if riding a noisier internal
// path rather than the clean meter line.
type SSRFProbe struct{}

func (SSRFProbe) Drive(ctx context.Context, cps []*cpclient.Client, mode string, duration int, params config.ScenarioParams) error {
	sessions := startSessions(ctx, cps, params.BatteryCapacityKWh, 20.0)

	for step := 0; step < duration; step++ {
		for _, s := range sessions {
			var voltage float64
			var delay time.Duration
			if mode == "attack" {
				voltage = params.VoltageV + jitter(5.0)
				delay = time.Duration((0.1+rand.Float64()*0.3)*ssrfLatencyMultiplier*1000) * time.Millisecond
			} else {
				voltage = params.VoltageV + jitter(1.0)
				delay = 50 * time.Millisecond
			}

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				stopAll(ctx, sessions)
				return nil
			}

			power := params.BasePowerKW + jitter(0.3)
			current := (power * 1000) / voltage
			soc := s.soc.Advance(power)

			_ = s.cp.MeterValues(ctx, connectorID, s.txID, []ocpp.MeterSample{
				{Measurand: ocpp.MeasurandPower, Value: power},
				{Measurand: ocpp.MeasurandCurrent, Value: current},
				{Measurand: ocpp.MeasurandVoltage, Value: voltage},
				{Measurand: ocpp.MeasurandSoC, Value: soc},
			})
		}
	}

	stopAll(ctx, sessions)
	return nil
}

func (SSRFProbe) Label(ev ocpp.Event, mode string) string {
	if mode != "attack" {
		return "normal"
	}
	if ev.MessageType == ocpp.MsgMeterValues {
		return "ssrf_attack_pattern"
	}
	return "attack_meta"
}
