// Package geo holds the great-circle math used for geofenced check-ins.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by DistanceMeters.
const EarthRadiusMeters = 6371000.0

// DistanceMeters returns the haversine distance in meters between two points
// given in decimal degrees. Inputs must be finite, valid coordinates.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// Round returns d rounded to whole meters for display. Never use it for the
// geofence comparison.
func Round(d float64) int64 {
	return int64(math.Round(d))
}

// ValidCoordinate reports whether lat/lon are finite and inside the WGS84 range.
func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// OffsetNorth returns the latitude reached by moving meters due north from lat.
// Tests and seed data use it to place points at a known distance.
func OffsetNorth(lat, meters float64) float64 {
	return lat + degrees(meters/EarthRadiusMeters)
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
