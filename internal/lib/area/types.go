package area

import (
	"context"

	"github.com/dpup/rooftrace/server/internal/lib/geo"
)

// Method identifies which tier of the fallback chain produced an area
type Method string

const (
	MethodNone      Method = "none"      // fewer than 3 points, or unusable input
	MethodProvider  Method = "provider"  // injected map-provider geometry
	MethodSpherical Method = "spherical" // spherical excess over a fan triangulation
	MethodPlanar    Method = "planar"    // latitude-scaled shoelace
)

// Result is the outcome of an area computation
type Result struct {
	AreaSqm float64 `json:"area_sqm"`
	Method  Method  `json:"method"`
}

// Provider is an optional map-provider geometry capability, such as a
// spherical area utility shipped with a mapping SDK. Implementations may
// return an error or panic; the engine treats both as a miss.
type Provider interface {
	ComputeArea(points []geo.Point) (float64, error)
}

// ProviderFunc adapts a plain function to the Provider interface
type ProviderFunc func(points []geo.Point) (float64, error)

// ComputeArea calls f(points)
func (f ProviderFunc) ComputeArea(points []geo.Point) (float64, error) {
	return f(points)
}

// Engine converts an ordered vertex list into an area in square meters
type Engine interface {
	// Area in m² for points; 0 for fewer than 3 points. Never negative or NaN.
	ComputeArea(points []geo.Point) float64

	// Same as ComputeArea, also reporting which tier produced the figure
	Compute(ctx context.Context, points []geo.Point) Result
}
