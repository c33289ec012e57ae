// Package config loads the scenario catalog (config/scenarios.yaml)
// and applies the CP_*/CSMS_* environment variable overrides spec.md
// §6 defines, following the YAML-plus-env-override layering the
// teacher's internal/config/config.go uses.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// ScenarioParams are the per-scenario tunables loaded from
// config/scenarios.yaml, keyed by scenario name.
type ScenarioParams struct {
	BasePowerKW            float64 `yaml:"base_power_kw"`
	AttackAmplitudeKW      float64 `yaml:"attack_amplitude_kw"`
	AttackFrequencyHz      float64 `yaml:"attack_frequency_hz"`
	VoltageV               float64 `yaml:"voltage_v"`
	BatteryCapacityKWh     float64 `yaml:"battery_capacity_kwh"`
	AttackTriggerRatio     float64 `yaml:"attack_trigger_ratio"`
	DriftMin               float64 `yaml:"drift_min"`
	DriftMax               float64 `yaml:"drift_max"`
	RelayLatencyMS         int     `yaml:"relay_latency_ms"`
	ManipulationProbability float64 `yaml:"manipulation_probability"`
}

// Catalog is the full set of scenario parameter blocks, as loaded from
// config/scenarios.yaml.
type Catalog struct {
	Scenarios map[string]ScenarioParams `yaml:"scenarios"`
}

// LoadCatalog reads and parses a scenarios.yaml file at path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario catalog %s: %w", path, err)
	}
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse scenario catalog %s: %w", path, err)
	}
	return &cat, nil
}

// Params returns the parameter block for name, or the catalog's
// "default" entry (if any) when name is absent.
func (c *Catalog) Params(name string) (ScenarioParams, bool) {
	if p, ok := c.Scenarios[name]; ok {
		return p, true
	}
	p, ok := c.Scenarios["default"]
	return p, ok
}

// Runtime holds the CSMS/CP-client knobs sourced from CP_*/CSMS_*
// environment variables, per spec.md §6. LoadEnv optionally loads a
// .env file first, ahead of the real environment, matching the
// teacher's use of godotenv at its cmd/ entrypoints.
type Runtime struct {
	CSMSAddr           string
	WatchdogTickSec    int
	DefaultIntervalSec int
	CallTimeoutSec     int
	RedisAddr          string
	TracingEnabled     bool
}

// LoadEnv loads envFile (if non-empty and present) into the process
// environment without overriding variables already set, then builds a
// Runtime from CP_*/CSMS_*/OCPP_SIM_* variables.
func LoadEnv(envFile string) Runtime {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			// Missing .env is not fatal; CSMS_*/CP_* may already be set.
			_ = err
		}
	}

	return Runtime{
		CSMSAddr:           getEnv("CSMS_ADDR", ":9000"),
		WatchdogTickSec:    getEnvInt("CSMS_WATCHDOG_TICK_SEC", 5),
		DefaultIntervalSec: getEnvInt("CSMS_DEFAULT_INTERVAL_SEC", 10),
		CallTimeoutSec:     getEnvInt("CP_CALL_TIMEOUT_SEC", 30),
		RedisAddr:          getEnv("OCPP_SIM_REDIS_ADDR", ""),
		TracingEnabled:     getEnvBool("OCPP_SIM_TRACING", false),
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return defaultVal
}
