package scenarios

import "github.com/aegischarge/simulator/internal/engine"

// All returns the full scenario catalog, keyed by the name --scenario
// selects and config/scenarios.yaml configures.
func All() engine.Registry {
	return engine.Registry{
		"dalgali_yuk":            OscillatoryLoad{},
		"voltage_sag":            VoltageSag{},
		"sfed":                   StealthyDrift{},
		"sebeke_istikrarsizligi": MassStop{},
		"reverse_charging":       ReverseCharging{},
		"latency_dos":            LatencyDoS{},
		"mitm_attack":            &MITM{},
		"karanlik_profil":        DarkProfile{},
		"ssrf_attack":            SSRFProbe{},
	}
}
