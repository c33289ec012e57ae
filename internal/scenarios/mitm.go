package scenarios

import (
	"context"
	"math/rand"
	"sync"

	"github.com/aegischarge/simulator/internal/config"
	"github.com/aegischarge/simulator/internal/cpclient"
	"github.com/aegischarge/simulator/internal/ocpp"
)

// MITM tampers a fraction of MeterValues samples in flight, as an
// interception sitting between CP and CSMS would, grounded on
// original_source/Anomaly_Detector/simulations/mitm_attack/scenario.py:
// with probability params.ManipulationProbability a sample is replaced
// either by a spike (5-10x power, 1.5x voltage) or by a zero reading.
type MITM struct {
	mu          sync.Mutex
	basePowerKW float64
}

func (m *MITM) Drive(ctx context.Context, cps []*cpclient.Client, mode string, duration int, params config.ScenarioParams) error {
	m.mu.Lock()
	m.basePowerKW = params.BasePowerKW
	m.mu.Unlock()

	sessions := startSessions(ctx, cps, params.BatteryCapacityKWh, 20.0)

	for step := 0; step < duration; step++ {
		for _, s := range sessions {
			power := params.BasePowerKW + jitter(0.3)
			voltage := params.VoltageV + jitter(1.0)

			if mode == "attack" && rand.Float64() < params.ManipulationProbability {
				if rand.Float64() < 0.5 {
					power *= 5.0 + rand.Float64()*5.0
					voltage *= 1.5
				} else {
					power = 0
					voltage = 0
				}
			}

			var current float64
			if voltage != 0 {
				current = (power * 1000) / voltage
			}
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

func (m *MITM) Label(ev ocpp.Event, mode string) string {
	if mode != "attack" {
		return "normal"
	}
	if ev.MessageType != ocpp.MsgMeterValues {
		return "attack_meta"
	}

	power, ok := ev.SampleValue(ocpp.MeasurandPower)
	if !ok {
		return "attack_meta"
	}

	m.mu.Lock()
	base := m.basePowerKW
	m.mu.Unlock()
	if base <= 0 {
		base = 1
	}

	if power == 0 || power >= base*4 {
		return "mitm_manipulation_attack"
	}
	return "normal"
}
