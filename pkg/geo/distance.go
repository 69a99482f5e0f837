package geo

import (
	"math"
	"time"
)

const earthRadiusKm = 6371.0

// Coordinate is a point in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Haversine calculates the great-circle distance in kilometres between two
// coordinates on a sphere of mean Earth radius.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180.0
	dLon := (lon2 - lon1) * math.Pi / 180.0

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180.0)*math.Cos(lat2*math.Pi/180.0)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// DistanceKm is Haversine over two Coordinates.
func DistanceKm(from, to Coordinate) float64 {
	return Haversine(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
}

// ImpliedSpeedKmh returns the speed needed to cover distanceKm in elapsed.
// A non-positive elapsed duration yields 0.
func ImpliedSpeedKmh(distanceKm float64, elapsed time.Duration) float64 {
	hours := elapsed.Hours()
	if hours <= 0 {
		return 0
	}
	return distanceKm / hours
}
