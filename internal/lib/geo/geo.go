package geo

import (
	"errors"
	"math"

	"github.com/twpayne/go-polyline"
)

const (
	// EarthRadius is the mean Earth radius in meters.
	EarthRadius = 6371000.0

	// CoincidenceDegrees is the per-axis angular distance under which two
	// points are treated as the same vertex (roughly a meter on the ground).
	CoincidenceDegrees = 1e-5
)

// ErrInvalidCoordinate is returned when a latitude or longitude is non-finite
// or out of range.
var ErrInvalidCoordinate = errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")

// polyline6 matches the precision used by OSRM and Valhalla. Five digits (the
// Google default) rounds roof vertices by up to a meter.
var polyline6 = polyline.Codec{Dim: 2, Scale: 1e6}

// geoUtils implements the GeoUtils interface
type geoUtils struct{}

// NewGeoUtils creates a new GeoUtils implementation
func NewGeoUtils() GeoUtils {
	return &geoUtils{}
}

// PointToPoint calculates great-circle distance between two points using Haversine formula
func (g *geoUtils) PointToPoint(p1, p2 Point) (float64, error) {
	if !IsValid(p1) || !IsValid(p2) {
		return 0, ErrInvalidCoordinate
	}

	if p1 == p2 {
		return 0, nil
	}

	return EarthRadius * g.CentralAngle(p1, p2), nil
}

// CentralAngle returns the angle subtended at the Earth's center by two
// points. The haversine form stays stable for the sub-meter separations found
// between roof vertices.
func (g *geoUtils) CentralAngle(p1, p2 Point) float64 {
	return CentralAngle(p1, p2)
}

// CentralAngle is the package-level form of GeoUtils.CentralAngle.
func CentralAngle(p1, p2 Point) float64 {
	lat1 := toRadians(p1.Latitude)
	lat2 := toRadians(p2.Latitude)
	dlat := lat2 - lat1
	dlng := toRadians(p2.Longitude - p1.Longitude)

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	// Round-off can push a a hair past 1 for antipodal points.
	a = math.Min(1, math.Max(0, a))

	return 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// IsCoincident reports whether p1 and p2 lie within the coincidence radius
func (g *geoUtils) IsCoincident(p1, p2 Point) bool {
	return IsCoincident(p1, p2)
}

// IsCoincident is the package-level form of GeoUtils.IsCoincident.
func IsCoincident(p1, p2 Point) bool {
	return math.Abs(p1.Latitude-p2.Latitude) < CoincidenceDegrees &&
		math.Abs(p1.Longitude-p2.Longitude) < CoincidenceDegrees
}

// Centroid returns the arithmetic mean of the points; false when empty
func (g *geoUtils) Centroid(points []Point) (Point, bool) {
	if len(points) == 0 {
		return Point{}, false
	}

	var lat, lng float64
	for _, p := range points {
		lat += p.Latitude
		lng += p.Longitude
	}
	n := float64(len(points))

	return Point{Latitude: lat / n, Longitude: lng / n}, true
}

// EncodePolyline encodes points with 6 digit precision
func (g *geoUtils) EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline6.EncodeCoords(nil, coords))
}

// DecodePolyline decodes a 6 digit precision polyline string to a point sequence
func (g *geoUtils) DecodePolyline(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	coords, rest, err := polyline6.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, errors.New("failed to decode polyline: " + err.Error())
	}
	if len(rest) > 0 {
		return nil, errors.New("failed to decode polyline: trailing data")
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		points[i] = Point{
			Latitude:  coord[0],
			Longitude: coord[1],
		}

		if !IsValid(points[i]) {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}

	return points, nil
}

// RingPerimeter sums the great-circle edge lengths of the closed ring
func (g *geoUtils) RingPerimeter(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}

	var total float64
	for i := range points {
		j := (i + 1) % len(points)
		total += EarthRadius * CentralAngle(points[i], points[j])
	}
	return total
}

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !IsValid(point) {
		return Point{}, ErrInvalidCoordinate
	}
	return point, nil
}

// IsValid reports whether the point has finite, in-range coordinates
func IsValid(point Point) bool {
	if math.IsNaN(point.Latitude) || math.IsNaN(point.Longitude) {
		return false
	}
	// Infinities fail the range checks below.
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
