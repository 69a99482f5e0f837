package risk

// Tier thresholds, inclusive lower bounds.
const (
	criticalThreshold = 80
	highThreshold     = 60
	mediumThreshold   = 30

	blockThreshold     = 85
	escrowThreshold    = 70
	challengeThreshold = 40

	stepUpHighValue = 40
	stepUpDefault   = 50
)

// Tier maps a score to its risk level.
func Tier(score int) RiskLevel {
	switch {
	case score >= criticalThreshold:
		return RiskLevelCritical
	case score >= highThreshold:
		return RiskLevelHigh
	case score >= mediumThreshold:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// StepUpRequired applies the lower bar to high-value (and unknown) types.
func StepUpRequired(score int, t AssessmentType) bool {
	if t.profile() == AssessmentTypeHighValue {
		return score >= stepUpHighValue
	}
	return score >= stepUpDefault
}

// RecommendAction picks the first matching rule. A simultaneous SIM swap and
// device mismatch blocks regardless of score.
func RecommendAction(score int, f RiskFactors) Action {
	switch {
	case score >= blockThreshold, f.SimChangeRecent && f.IMEIMismatch:
		return ActionBlock
	case score >= escrowThreshold:
		return ActionEscrow
	case score >= challengeThreshold:
		return ActionChallenge
	default:
		return ActionAllow
	}
}
