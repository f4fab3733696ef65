package area

import (
	"context"
	"fmt"
	"math"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"

	"github.com/dpup/rooftrace/server/internal/lib/geo"
	"github.com/dpup/rooftrace/server/internal/metrics"
)

var (
	errNonFinite = errors.New("area is not finite")
	errNoArea    = errors.New("area is not positive")
)

// engine implements the Engine interface
type engine struct {
	provider Provider
	ctx      context.Context // used by ComputeArea, which has no caller context
}

// Option configures an Engine
type Option func(*engine)

// WithProvider installs an optional map-provider tier ahead of the built-in
// spherical and planar methods. A nil provider leaves the tier disabled.
func WithProvider(p Provider) Option {
	return func(e *engine) {
		e.provider = p
	}
}

// NewEngine creates a new Engine implementation
func NewEngine(opts ...Option) Engine {
	e := &engine{ctx: logging.EnsureLogger(context.Background())}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeArea returns the area in square meters
func (e *engine) ComputeArea(points []geo.Point) float64 {
	return e.Compute(e.ctx, points).AreaSqm
}

// Compute runs the fallback chain: provider, spherical excess, planar. The
// first tier to produce a finite area greater than zero wins.
func (e *engine) Compute(ctx context.Context, points []geo.Point) Result {
	if len(points) < 3 {
		return Result{AreaSqm: 0, Method: MethodNone}
	}
	ctx = logging.EnsureLogger(ctx)

	for _, p := range points {
		if !geo.IsValid(p) {
			logging.Warnw(ctx, "Area: skipping polygon with invalid vertex",
				"lat", p.Latitude, "lng", p.Longitude)
			return e.record(Result{AreaSqm: 0, Method: MethodNone})
		}
	}

	if e.provider != nil {
		// Hand the provider its own copy; it is outside our control.
		path := append([]geo.Point(nil), points...)
		a, err := attempt(func() (float64, error) { return e.provider.ComputeArea(path) })
		if err == nil {
			return e.record(Result{AreaSqm: a, Method: MethodProvider})
		}
		metrics.AreaFallbacks.WithLabelValues(string(MethodProvider)).Inc()
		logging.Debugw(ctx, "Area: provider tier failed, using spherical excess", "error", err)
	}

	a, err := attempt(func() (float64, error) { return SphericalArea(points), nil })
	if err == nil {
		return e.record(Result{AreaSqm: a, Method: MethodSpherical})
	}
	metrics.AreaFallbacks.WithLabelValues(string(MethodSpherical)).Inc()
	logging.Debugw(ctx, "Area: spherical tier failed, using planar approximation",
		"error", err, "points", len(points))

	a = PlanarArea(points)
	if math.IsNaN(a) || math.IsInf(a, 0) || a < 0 {
		logging.Warnw(ctx, "Area: planar approximation not finite, reporting zero", "area", a)
		a = 0
	}
	return e.record(Result{AreaSqm: a, Method: MethodPlanar})
}

func (e *engine) record(r Result) Result {
	metrics.AreaComputations.WithLabelValues(string(r.Method)).Inc()
	return r
}

// attempt runs one tier, converting panics, non-finite and non-positive
// results into errors
func attempt(tier func() (float64, error)) (area float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			area, err = 0, fmt.Errorf("tier panicked: %v", r)
		}
	}()

	area, err = tier()
	if err != nil {
		return 0, err
	}
	if math.IsNaN(area) || math.IsInf(area, 0) {
		return 0, errNonFinite
	}
	if area <= 0 {
		return 0, errNoArea
	}
	return area, nil
}
