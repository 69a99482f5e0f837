package risk

// FailSafeResult is returned when no result could be computed.
func FailSafeResult() Result {
	return Result{
		RiskScore: 50,
		RiskLevel: RiskLevelMedium,
		Factors: RiskFactors{
			FirstTimeDevice: true,
		},
		StepUpRequired:    true,
		RecommendedAction: ActionChallenge,
		Confidence:        30,
	}
}
