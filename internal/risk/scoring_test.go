package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allFactorCombinations enumerates every boolean combination for a few
// binding ages and fraud scores.
func allFactorCombinations() []RiskFactors {
	var out []RiskFactors
	for mask := 0; mask < 1<<6; mask++ {
		for _, age := range []int{0, 3, 8, 15, 400} {
			for _, fraud := range []int{0, 5, 30} {
				out = append(out, RiskFactors{
					SimChangeRecent:      mask&1 != 0,
					IMEIMismatch:         mask&2 != 0,
					GeovelocityAnomaly:   mask&4 != 0,
					FirstTimeDevice:      mask&8 != 0,
					IPLocationChanged:    mask&16 != 0,
					UnusualTimeAccess:    mask&32 != 0,
					DeviceBindingAgeDays: age,
					FraudHistoryScore:    fraud,
				})
			}
		}
	}
	return out
}

func TestScore_FirstTimeDeviceOnly(t *testing.T) {
	policy := DefaultPolicyConfig()
	f := RiskFactors{FirstTimeDevice: true}

	score := Score(f, policy.WeightsFor(AssessmentTypeLogin))

	assert.Equal(t, 20, score)
}

func TestScore_BaseContributions(t *testing.T) {
	w := DefaultPolicyConfig().WeightsFor(AssessmentTypeTransaction)

	tests := []struct {
		name    string
		factors RiskFactors
		want    int
	}{
		{"sim change", RiskFactors{SimChangeRecent: true}, 40},
		{"imei mismatch", RiskFactors{IMEIMismatch: true}, 35},
		{"geovelocity", RiskFactors{GeovelocityAnomaly: true}, 30},
		{"ip change", RiskFactors{IPLocationChanged: true}, 15},
		{"unusual time", RiskFactors{UnusualTimeAccess: true}, 10},
		{"fraud history", RiskFactors{FraudHistoryScore: 25}, 25},
		{"trusted device offsets ip change", RiskFactors{IPLocationChanged: true, DeviceBindingAgeDays: 9}, 0},
		{"age at threshold earns nothing", RiskFactors{IPLocationChanged: true, DeviceBindingAgeDays: 7}, 15},
		{"everything", RiskFactors{SimChangeRecent: true, IMEIMismatch: true, GeovelocityAnomaly: true, FirstTimeDevice: true}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.factors, w))
		})
	}
}

func TestScore_ClampedToRange(t *testing.T) {
	policy := DefaultPolicyConfig()
	for _, typ := range []AssessmentType{AssessmentTypeLogin, AssessmentTypeTransaction, AssessmentTypeHighValue, "WIRE"} {
		w := policy.WeightsFor(typ)
		for _, f := range allFactorCombinations() {
			score := Score(f, w)
			require.GreaterOrEqual(t, score, 0, "%+v", f)
			require.LessOrEqual(t, score, 100, "%+v", f)
		}
	}
}

func TestScore_BindingAgeNeverIncreasesScore(t *testing.T) {
	w := DefaultPolicyConfig().WeightsFor(AssessmentTypeTransaction)
	base := RiskFactors{GeovelocityAnomaly: true, IPLocationChanged: true, UnusualTimeAccess: true}

	previous := Score(base, w)
	for age := 1; age <= 30; age++ {
		f := base
		f.DeviceBindingAgeDays = age
		score := Score(f, w)
		assert.LessOrEqual(t, score, previous, "age=%d", age)
		previous = score
	}

	aged := base
	aged.DeviceBindingAgeDays = 365
	assert.Equal(t, Score(base, w)-20, Score(aged, w), "credit is capped at 20")
}

func TestScore_HighValueWeighsSimChangeMore(t *testing.T) {
	policy := DefaultPolicyConfig()
	f := RiskFactors{SimChangeRecent: true}

	transaction := Score(f, policy.WeightsFor(AssessmentTypeTransaction))
	highValue := Score(f, policy.WeightsFor(AssessmentTypeHighValue))

	assert.Greater(t, highValue, transaction)
	assert.Equal(t, 60, highValue)
}

func TestScore_Deterministic(t *testing.T) {
	w := DefaultPolicyConfig().WeightsFor(AssessmentTypeHighValue)
	f := RiskFactors{IMEIMismatch: true, UnusualTimeAccess: true, FraudHistoryScore: 5}

	first := Score(f, w)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score(f, w))
	}
	// 35*1.3 + 10 + 5 = 60.5
	assert.Equal(t, 61, first)
}

func TestContributions_TraceEveryPoint(t *testing.T) {
	w := DefaultPolicyConfig().WeightsFor(AssessmentTypeHighValue)
	f := RiskFactors{
		SimChangeRecent:      true,
		GeovelocityAnomaly:   true,
		DeviceBindingAgeDays: 12,
		FraudHistoryScore:    10,
	}

	contributions := Contributions(f, w)

	assert.Equal(t, []Contribution{
		{Factor: FactorSimChangeRecent, Points: 60},
		{Factor: FactorGeovelocityAnomaly, Points: 36},
		{Factor: FactorDeviceBindingAge, Points: -20},
		{Factor: FactorFraudHistory, Points: 10},
	}, contributions)
	assert.Equal(t, 86, Score(f, w))
}

func TestWeightsFor_UnknownTypeFailsClosed(t *testing.T) {
	policy := DefaultPolicyConfig()

	assert.Equal(t, policy.WeightsFor(AssessmentTypeHighValue), policy.WeightsFor("REFUND"))
	assert.Equal(t, policy.WeightsFor(AssessmentTypeHighValue), policy.WeightsFor(""))
	assert.Equal(t, 1.0, policy.WeightsFor(AssessmentTypeLogin).SimChangeRecent)
	assert.Equal(t, policy.WeightsFor(AssessmentTypeLogin), policy.WeightsFor(AssessmentTypeTransaction))
}

func TestConfidence(t *testing.T) {
	full := &TelcoSignals{SimChangeTimestamp: timePtr(testNow), IMEICurrent: "356938035643809"}

	tests := []struct {
		name    string
		telco   *TelcoSignals
		factors RiskFactors
		want    int
	}{
		{"nothing known", nil, RiskFactors{FirstTimeDevice: true}, 50},
		{"sim timestamp only", &TelcoSignals{SimChangeTimestamp: timePtr(testNow)}, RiskFactors{FirstTimeDevice: true}, 70},
		{"device id only", &TelcoSignals{IMEICurrent: "x"}, RiskFactors{FirstTimeDevice: true}, 65},
		{"known aged device", nil, RiskFactors{DeviceBindingAgeDays: 3}, 65},
		{"everything", full, RiskFactors{DeviceBindingAgeDays: 3}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Confidence(tt.telco, tt.factors)
			assert.Equal(t, tt.want, c)
			assert.GreaterOrEqual(t, c, 0)
			assert.LessOrEqual(t, c, 100)
		})
	}
}
