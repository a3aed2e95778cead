// internal/geo/distance.go
// Package geo provides great-circle distance computation and the radius
// defaults used by the proximity lookups. The store's spherical index does
// the heavy lifting for nearest-neighbor queries; this package only computes
// the distances reported back to callers.
package geo

import "math"

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000.0

// Default search radii in meters. A triggered audio guide must be nearly
// on-site; a general guide recommendation tolerates a few kilometers.
const (
	DefaultMonasteryRadius = 10000.0
	DefaultGuideRadius     = 5000.0
	DefaultTriggerRadius   = 100.0
)

// DistanceMeters computes the haversine great-circle distance between two
// WGS-84 coordinates, in meters. Inputs are degrees. Pure and deterministic;
// NaN inputs propagate to a NaN result, validation is the caller's job.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}
