package area

import (
	"math"

	"github.com/dpup/rooftrace/server/internal/lib/geo"
)

// PlanarArea projects the points onto a local tangent plane scaled at the
// centroid latitude and applies the shoelace formula. Good to about 1% for
// sub-km² outlines; never negative.
func PlanarArea(points []geo.Point) float64 {
	if len(points) < 3 {
		return 0
	}

	var latSum float64
	for _, p := range points {
		latSum += p.Latitude
	}
	lat0 := toRadians(latSum / float64(len(points)))

	metersPerDegLat := 111132.92 - 559.82*math.Cos(2*lat0)
	metersPerDegLng := 111412.84 * math.Cos(lat0)

	// Coordinates are taken relative to the first vertex so the cross
	// products stay small and do not cancel catastrophically.
	origin := points[0]
	var sum float64
	n := len(points)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		xi := (points[i].Longitude - origin.Longitude) * metersPerDegLng
		yi := (points[i].Latitude - origin.Latitude) * metersPerDegLat
		xj := (points[j].Longitude - origin.Longitude) * metersPerDegLng
		yj := (points[j].Latitude - origin.Latitude) * metersPerDegLat
		sum += xi*yj - xj*yi
	}

	return math.Abs(sum) / 2
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
