package risk

import "math"

// Base points per factor before weighting.
const (
	pointsSimChange   = 40.0
	pointsIMEI        = 35.0
	pointsGeovelocity = 30.0
	pointsFirstTime   = 20.0
	pointsIPChange    = 15.0
	pointsUnusualTime = 10.0

	trustedBindingDays  = 7
	bindingCreditPerDay = 2
	maxBindingCredit    = 20
	minScore, maxScore  = 0, 100
)

// Contribution is the signed number of points a single factor added.
type Contribution struct {
	Factor string  `json:"factor"`
	Points float64 `json:"points"`
}

// Contributions itemises the score so every point maps to one factor.
func Contributions(f RiskFactors, w Weights) []Contribution {
	var out []Contribution
	add := func(fired bool, factor string, points float64) {
		if fired {
			out = append(out, Contribution{Factor: factor, Points: points})
		}
	}

	add(f.SimChangeRecent, FactorSimChangeRecent, pointsSimChange*w.SimChangeRecent)
	add(f.IMEIMismatch, FactorIMEIMismatch, pointsIMEI*w.IMEIMismatch)
	add(f.GeovelocityAnomaly, FactorGeovelocityAnomaly, pointsGeovelocity*w.GeovelocityAnomaly)
	add(f.FirstTimeDevice, FactorFirstTimeDevice, pointsFirstTime*w.FirstTimeDevice)
	add(f.IPLocationChanged, FactorIPLocationChanged, pointsIPChange*w.IPLocationChanged)
	add(f.UnusualTimeAccess, FactorUnusualTimeAccess, pointsUnusualTime*w.UnusualTimeAccess)

	if f.DeviceBindingAgeDays > trustedBindingDays {
		credit := min(maxBindingCredit, f.DeviceBindingAgeDays*bindingCreditPerDay)
		add(true, FactorDeviceBindingAge, -float64(credit))
	}

	add(f.FraudHistoryScore > 0, FactorFraudHistory, float64(f.FraudHistoryScore)*w.FraudHistory)
	return out
}

// Score sums the contributions and clamps to [0,100], rounding half away
// from zero.
func Score(f RiskFactors, w Weights) int {
	var total float64
	for _, c := range Contributions(f, w) {
		total += c.Points
	}
	return clamp(int(math.Round(total)), minScore, maxScore)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
