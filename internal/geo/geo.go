// Package geo provides great-circle distance calculations on a spherical
// Earth approximation. Inputs are decimal degrees (WGS84 assumed); outputs
// are meters. Coordinate validation is the caller's responsibility: out of
// range or NaN inputs produce mathematically defined (possibly NaN) results.
package geo

import "math"

// EarthRadiusM is the mean Earth radius used by the haversine formula.
const EarthRadiusM = 6371000.0

// Meters returns the haversine distance in meters between two points.
func Meters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusM * c
}

// MetersTo returns the haversine distance from every (lats[i], lons[i]) to a
// single fixed point. The trig terms for the fixed point are hoisted out of
// the loop. lats and lons must be the same length.
func MetersTo(lats, lons []float64, lat2, lon2 float64) []float64 {
	phi2 := lat2 * math.Pi / 180
	cosPhi2 := math.Cos(phi2)

	out := make([]float64, len(lats))
	for i := range lats {
		phi1 := lats[i] * math.Pi / 180
		dPhi := (lat2 - lats[i]) * math.Pi / 180
		dLambda := (lon2 - lons[i]) * math.Pi / 180

		sinPhi := math.Sin(dPhi / 2)
		sinLambda := math.Sin(dLambda / 2)
		a := sinPhi*sinPhi + math.Cos(phi1)*cosPhi2*sinLambda*sinLambda
		out[i] = EarthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	}
	return out
}
