package risk

const (
	confidenceBase         = 50
	confidenceSimTimestamp = 20
	confidenceDeviceID     = 15
	confidenceBindingAge   = 10
	confidenceKnownDevice  = 5
)

// Confidence measures how much corroborating data backed the decision.
func Confidence(telco *TelcoSignals, f RiskFactors) int {
	c := confidenceBase
	if telco != nil && telco.SimChangeTimestamp != nil {
		c += confidenceSimTimestamp
	}
	if telco != nil && telco.IMEICurrent != "" {
		c += confidenceDeviceID
	}
	if f.DeviceBindingAgeDays > 0 {
		c += confidenceBindingAge
	}
	if !f.FirstTimeDevice {
		c += confidenceKnownDevice
	}
	return clamp(c, 0, 100)
}
