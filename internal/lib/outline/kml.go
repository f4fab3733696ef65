// Package outline exports roof outlines to formats mapping tools can open.
package outline

import (
	"fmt"
	"io"

	"github.com/twpayne/go-kml/v2"

	"github.com/dpup/rooftrace/server/internal/lib/capture"
	"github.com/dpup/rooftrace/server/internal/lib/geo"
)

// ErrTooFewPoints is returned when the outline cannot form a ring
var ErrTooFewPoints = fmt.Errorf("outline needs at least %d points", capture.MinPoints)

// WriteKML writes the outline as a single clamped-to-ground polygon placemark.
// KML rings are closed, so the first vertex is repeated at the end.
func WriteKML(w io.Writer, name string, points []geo.Point, areaSqm float64) error {
	if len(points) < capture.MinPoints {
		return ErrTooFewPoints
	}

	k := kml.KML(
		kml.Placemark(
			kml.Name(name),
			kml.Description(fmt.Sprintf("Roof area %.1f m², %d vertices", areaSqm, len(points))),
			kml.Polygon(
				kml.OuterBoundaryIs(
					kml.LinearRing(
						kml.Coordinates(ring(points)...),
					),
				),
			),
		),
	)

	if err := k.WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("failed to write KML: %w", err)
	}
	return nil
}

// ring converts to KML's lon,lat order and closes the ring
func ring(points []geo.Point) []kml.Coordinate {
	coords := make([]kml.Coordinate, 0, len(points)+1)
	for _, p := range points {
		coords = append(coords, kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude})
	}
	if !geo.IsCoincident(points[0], points[len(points)-1]) {
		coords = append(coords, coords[0])
	}
	return coords
}
