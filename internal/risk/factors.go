package risk

import (
	"sync"
	"time"

	"github.com/richxcame/risk-engine/pkg/geo"
)

const (
	fraudHistoryPointsPerAlert = 5
	fraudHistoryMaxScore       = 30

	// local minutes-of-day bounds for unusual access, inclusive
	unusualTimeStart = 3 * 60
	unusualTimeEnd   = 6 * 60
)

// CalculateFactors derives the risk factors for one assessment. It is pure:
// the result depends only on its arguments.
func CalculateFactors(now time.Time, policy PolicyConfig, dc DeviceContext, s Signals) RiskFactors {
	f := RiskFactors{
		SimChangeRecent:      simChangeRecent(now, policy.SimChangeWindow, s.Telco),
		IMEIMismatch:         imeiMismatch(s.Telco, s.Device),
		GeovelocityAnomaly:   geovelocityAnomaly(now, policy, dc.Location, s.Prior),
		DeviceBindingAgeDays: bindingAgeDays(now, s.Device),
		IPLocationChanged:    ipChanged(dc.IPAddress, s.Prior),
		UnusualTimeAccess:    unusualTime(now, dc.Timezone),
		FraudHistoryScore:    fraudHistoryScore(s.FraudAlertCount),
	}
	f.FirstTimeDevice = s.Device == nil || f.DeviceBindingAgeDays == 0
	return f
}

func simChangeRecent(now time.Time, window time.Duration, telco *TelcoSignals) bool {
	if telco == nil || telco.SimChangeTimestamp == nil {
		return false
	}
	return now.Sub(*telco.SimChangeTimestamp) <= window
}

func imeiMismatch(telco *TelcoSignals, device *DeviceFingerprintRecord) bool {
	if telco == nil || device == nil {
		return false
	}
	if telco.IMEICurrent == "" || device.DeviceIdentifier == "" {
		return false
	}
	return telco.IMEICurrent != device.DeviceIdentifier
}

func geovelocityAnomaly(now time.Time, policy PolicyConfig, current *Location, prior *PriorAssessment) bool {
	if current == nil || prior == nil || prior.Location == nil {
		return false
	}
	elapsed := now.Sub(prior.AssessedAt)
	// Short gaps are GPS jitter or resubmits
	if elapsed < policy.GeovelocityMinElapsed {
		return false
	}
	distance := geo.DistanceKm(prior.Location.Coordinate(), current.Coordinate())
	return geo.ImpliedSpeedKmh(distance, elapsed) > policy.GeovelocityMaxKmh
}

func bindingAgeDays(now time.Time, device *DeviceFingerprintRecord) int {
	if device == nil {
		return 0
	}
	age := now.Sub(device.FirstSeenAt)
	if age <= 0 {
		return 0
	}
	return int(age / (24 * time.Hour))
}

func ipChanged(current string, prior *PriorAssessment) bool {
	if prior == nil || prior.IPAddress == "" {
		return false
	}
	return current != prior.IPAddress
}

func unusualTime(now time.Time, timezone string) bool {
	if timezone == "" {
		return false
	}
	loc, ok := loadZone(timezone)
	if !ok {
		return false
	}
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()
	return minute >= unusualTimeStart && minute <= unusualTimeEnd
}

// zones holds resolved locations by IANA name. Only successful loads are
// stored, so the map is bounded by the tz database.
var zones sync.Map

func loadZone(name string) (*time.Location, bool) {
	if loc, ok := zones.Load(name); ok {
		return loc.(*time.Location), true
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, false
	}
	actual, _ := zones.LoadOrStore(name, loc)
	return actual.(*time.Location), true
}

func fraudHistoryScore(alerts int) int {
	if alerts <= 0 {
		return 0
	}
	return min(fraudHistoryMaxScore, alerts*fraudHistoryPointsPerAlert)
}
