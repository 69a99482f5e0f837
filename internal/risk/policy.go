package risk

import (
	"time"

	"github.com/richxcame/risk-engine/pkg/config"
)

// Weights are per-factor multipliers applied to base contributions
type Weights struct {
	SimChangeRecent    float64 `json:"sim_change_recent"`
	IMEIMismatch       float64 `json:"imei_mismatch"`
	GeovelocityAnomaly float64 `json:"geovelocity_anomaly"`
	FirstTimeDevice    float64 `json:"first_time_device"`
	IPLocationChanged  float64 `json:"ip_location_changed"`
	UnusualTimeAccess  float64 `json:"unusual_time_access"`
	FraudHistory       float64 `json:"fraud_history"`
}

func uniformWeights() Weights {
	return Weights{
		SimChangeRecent:    1.0,
		IMEIMismatch:       1.0,
		GeovelocityAnomaly: 1.0,
		FirstTimeDevice:    1.0,
		IPLocationChanged:  1.0,
		UnusualTimeAccess:  1.0,
		FraudHistory:       1.0,
	}
}

// PolicyConfig holds the thresholds and weighting profiles of the engine.
// Build it once at startup; it is read-only afterwards and safe to share.
type PolicyConfig struct {
	SimChangeWindow       time.Duration
	GeovelocityMaxKmh     float64
	GeovelocityMinElapsed time.Duration
	FraudHistoryWindow    time.Duration

	profiles map[AssessmentType]Weights
}

// NewPolicyConfig builds the policy from loaded configuration.
func NewPolicyConfig(cfg config.RiskConfig) PolicyConfig {
	highValue := uniformWeights()
	highValue.SimChangeRecent = 1.5
	highValue.IMEIMismatch = 1.3
	highValue.GeovelocityAnomaly = 1.2

	return PolicyConfig{
		SimChangeWindow:       cfg.SimChangeWindow(),
		GeovelocityMaxKmh:     cfg.GeovelocityMaxKmh,
		GeovelocityMinElapsed: cfg.GeovelocityMinElapsed(),
		FraudHistoryWindow:    cfg.FraudHistoryWindow(),
		profiles: map[AssessmentType]Weights{
			AssessmentTypeLogin:       uniformWeights(),
			AssessmentTypeTransaction: uniformWeights(),
			AssessmentTypeHighValue:   highValue,
		},
	}
}

// DefaultPolicyConfig uses the built-in defaults.
func DefaultPolicyConfig() PolicyConfig {
	return NewPolicyConfig(config.RiskConfig{
		GeovelocityMaxKmh:        config.DefaultGeovelocityMaxKmh,
		GeovelocityMinElapsedMin: config.DefaultGeovelocityMinElapsedMin,
		SimChangeWindowHours:     config.DefaultSimChangeWindowHours,
		FraudHistoryWindowDays:   config.DefaultFraudHistoryWindowDays,
	})
}

// WeightsFor returns the profile for t. Unknown types get the
// HIGH_VALUE_TRANSACTION profile.
func (p PolicyConfig) WeightsFor(t AssessmentType) Weights {
	if w, ok := p.profiles[t.profile()]; ok {
		return w
	}
	return uniformWeights()
}
