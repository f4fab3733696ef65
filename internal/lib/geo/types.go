package geo

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Pair returns the point as a [lat, lng] pair, the wire order used by the
// simulation endpoint.
func (p Point) Pair() [2]float64 {
	return [2]float64{p.Latitude, p.Longitude}
}

// PointFromPair builds a Point from a [lat, lng] pair.
func PointFromPair(pair [2]float64) Point {
	return Point{Latitude: pair[0], Longitude: pair[1]}
}

// GeoUtils interface defines geographic calculation utilities
type GeoUtils interface {
	// Calculate great-circle distance between two points in meters
	PointToPoint(p1, p2 Point) (float64, error)

	// Calculate the great-circle central angle between two points in radians
	CentralAngle(p1, p2 Point) float64

	// Report whether two points fall within the coincidence radius of each other
	IsCoincident(p1, p2 Point) bool

	// Arithmetic mean of the point coordinates
	Centroid(points []Point) (Point, bool)

	// Encode a point sequence as a polyline string (6 digit precision)
	EncodePolyline(points []Point) string

	// Decode a polyline string (6 digit precision) to a point sequence
	DecodePolyline(encoded string) ([]Point, error)

	// Perimeter of the closed ring through points in meters
	RingPerimeter(points []Point) float64
}

// NewGeoUtils is implemented in geo.go
