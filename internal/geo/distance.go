package geo

import (
	"github.com/golang/geo/s2"

	"standwatch/internal/domain"
)

const (
	EarthRadiusKm     = 6371.0
	EarthRadiusMeters = EarthRadiusKm * 1000
)

// DistanceKm returns the haversine great-circle distance between two
// coordinates. s2 evaluates it as 2*atan2(sqrt(x), sqrt(max(0, 1-x))), which
// stays finite at antipodal and coincident points.
func DistanceKm(a, b domain.Coordinate) float64 {
	// Evaluate in a fixed argument order so the result is bit-for-bit symmetric.
	if less(b, a) {
		a, b = b, a
	}
	return latLng(a).Distance(latLng(b)).Radians() * EarthRadiusKm
}

func DistanceM(a, b domain.Coordinate) float64 {
	return DistanceKm(a, b) * 1000
}

func latLng(c domain.Coordinate) s2.LatLng {
	return s2.LatLngFromDegrees(c.Latitude(), c.Longitude())
}

func less(a, b domain.Coordinate) bool {
	if a[1] != b[1] {
		return a[1] < b[1]
	}
	return a[0] < b[0]
}
