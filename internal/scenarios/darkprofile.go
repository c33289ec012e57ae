package scenarios

import (
	"context"

	"github.com/aegischarge/simulator/internal/config"
	"github.com/aegischarge/simulator/internal/cpclient"
	"github.com/aegischarge/simulator/internal/engine"
	"github.com/aegischarge/simulator/internal/ocpp"
)

// darkProfileUsers are the CSMS's other authorized tags, cycled across
// CPs in attack mode to simulate several distinct users charging
// through the same fleet — the multi-user profiling karanlik_profil
// models. Normal mode uses a single tag throughout, for a single
// "regular user."
var darkProfileUsers = []string{"YUNUS_TAG", "AYSE_TAG", "TEST123"}

// DarkProfile is a supplemented scenario (not in the distilled data
// model, present in original_source's karanlik_profil simulation): a
// charge session identical in both modes — StatusNotification,
// Authorize, StartTransaction, a normal MeterValues loop, then
// StopTransaction. The attack is not in what gets sent but in who:
// attack mode cycles each CP through a different id tag so Authorize
// and StartTransaction accumulate identity/location records across
// several distinct user profiles, rather than one.
type DarkProfile struct{}

func (DarkProfile) Drive(ctx context.Context, cps []*cpclient.Client, mode string, duration int, params config.ScenarioParams) error {
	sessions := make([]*session, 0, len(cps))

	for i, cp := range cps {
		idTagForCP := "YUNUS_TAG"
		if mode == "attack" {
			idTagForCP = darkProfileUsers[i%len(darkProfileUsers)]
		}

		cp.StatusNotification(ctx, connectorID, ocpp.StatusAvailable, "")

		status, err := cp.Authorize(ctx, idTagForCP)
		if err != nil || status != "Accepted" {
			continue
		}

		cp.StatusNotification(ctx, connectorID, ocpp.StatusPreparing, "")

		result, err := cp.StartTransaction(ctx, connectorID, idTagForCP, 0)
		if err != nil || result.TransactionID == 0 || result.Status != "Accepted" {
			continue
		}

		cp.StatusNotification(ctx, connectorID, ocpp.StatusCharging, "")
		sessions = append(sessions, &session{cp: cp, txID: result.TransactionID, soc: engine.NewSoCIntegrator(params.BatteryCapacityKWh, 20.0)})
	}

	for step := 0; step < duration; step++ {
		for _, s := range sessions {
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

func (DarkProfile) Label(ev ocpp.Event, mode string) string {
	if mode != "attack" {
		return "normal"
	}
	switch ev.MessageType {
	case ocpp.MsgAuthorize, ocpp.MsgStartTransaction, ocpp.MsgStopTransaction:
		return "dark_profile_attack"
	}
	return "attack_meta"
}
