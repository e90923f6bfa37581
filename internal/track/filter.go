package track

import "math"

const (
	// earthRadiusMeters is the mean Earth radius used by the haversine
	// distance.
	earthRadiusMeters = 6371000

	// DefaultThresholdMeters is the displacement threshold for the
	// path filter.
	DefaultThresholdMeters = 150
)

// Haversine returns the great-circle distance in meters between two
// coordinates given in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const rad = math.Pi / 180

	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// FilterByDistance reduces a newest-first point sequence to a path:
// the newest point is always kept, and each subsequent point is kept
// only if it lies within threshold meters of the last kept point;
// samples that jumped further are noise and are dropped. The result is
// reversed to chronological order, oldest first, ready for path
// drawing.
func FilterByDistance(points []Point, threshold float64) []Point {
	if len(points) == 0 {
		return nil
	}

	kept := []Point{points[0]}
	for _, p := range points[1:] {
		last := kept[len(kept)-1]
		if Haversine(last.Lat, last.Lon, p.Lat, p.Lon) <= threshold {
			kept = append(kept, p)
		}
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}
