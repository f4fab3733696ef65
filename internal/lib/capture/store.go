package capture

import (
	"context"
	"sync"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/samber/lo"

	"github.com/dpup/rooftrace/server/internal/lib/area"
	"github.com/dpup/rooftrace/server/internal/lib/geo"
	"github.com/dpup/rooftrace/server/internal/metrics"
)

// Store owns the in-progress roof outline and the drawing-mode state. Every
// mutating method ends with a recompute of the derived metrics.
//
// Map clicks go through Click, which is gated on draw mode and coalesced by a
// per-store Debouncer. AddPoint bypasses both.
type Store struct {
	mu          sync.Mutex
	ctx         context.Context
	engine      area.Engine
	geoUtils    geo.GeoUtils
	invalidator Invalidator
	clicks      *Debouncer[click]

	points    []geo.Point
	drawMode  bool
	session   uint64 // incremented each time draw mode is entered
	threshold float64
	metrics   Metrics
}

type storeOptions struct {
	ctx         context.Context
	engine      area.Engine
	invalidator Invalidator
	window      time.Duration
	after       AfterFunc
	threshold   float64
}

// Option configures a Store
type Option func(*storeOptions)

// WithContext sets the context the store logs through; it must outlive the store
func WithContext(ctx context.Context) Option {
	return func(o *storeOptions) { o.ctx = ctx }
}

// WithEngine sets the area engine; defaults to area.NewEngine()
func WithEngine(e area.Engine) Option {
	return func(o *storeOptions) { o.engine = e }
}

// WithInvalidator registers the owner of externally held results
func WithInvalidator(inv Invalidator) Option {
	return func(o *storeOptions) { o.invalidator = inv }
}

// WithDebounceWindow overrides DefaultDebounceWindow. Zero disables coalescing.
func WithDebounceWindow(d time.Duration) Option {
	return func(o *storeOptions) { o.window = d }
}

// WithAfterFunc replaces the timer used for click coalescing
func WithAfterFunc(after AfterFunc) Option {
	return func(o *storeOptions) { o.after = after }
}

// WithThreshold sets the initial external threshold
func WithThreshold(v float64) Option {
	return func(o *storeOptions) { o.threshold = v }
}

// NewStore creates an empty store with draw mode off
func NewStore(opts ...Option) *Store {
	o := storeOptions{ctx: context.Background(), window: DefaultDebounceWindow, after: RealAfterFunc}
	for _, opt := range opts {
		opt(&o)
	}
	if o.engine == nil {
		o.engine = area.NewEngine()
	}

	s := &Store{
		ctx:         logging.EnsureLogger(o.ctx),
		engine:      o.engine,
		geoUtils:    geo.NewGeoUtils(),
		invalidator: o.invalidator,
		threshold:   o.threshold,
	}
	s.clicks = NewDebouncer(o.window, o.after, s.applyClick)
	s.recomputeLocked()
	return s
}

// AddPoint appends p unless it is invalid or coincides with an existing
// vertex. Rejections are silent; the return value reports whether p was
// appended.
func (s *Store) AddPoint(p geo.Point) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addPointLocked(p)
}

// Click feeds a map click into the store. Clicks are ignored while draw mode
// is off; otherwise the last click of a burst is applied once the debounce
// window passes. Returns whether the click was accepted for coalescing.
func (s *Store) Click(p geo.Point) bool {
	s.mu.Lock()
	if !s.drawMode {
		s.mu.Unlock()
		metrics.RejectedPoints.WithLabelValues("draw_mode_off").Inc()
		return false
	}
	if !geo.IsValid(p) {
		s.mu.Unlock()
		metrics.RejectedPoints.WithLabelValues("invalid").Inc()
		return false
	}
	session := s.session
	s.mu.Unlock()

	// Submit may deliver synchronously, so it runs without s.mu held.
	s.clicks.Submit(click{point: p, session: session})
	return true
}

// RemoveLastPoint pops the most recent vertex; no-op when empty
func (s *Store) RemoveLastPoint() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.points) == 0 {
		return false
	}
	s.points = s.points[:len(s.points)-1]
	s.recomputeLocked()
	return true
}

// ClearPolygon empties the outline, leaves draw mode, drops any pending click
// and tells the invalidator to discard results derived from the old outline
func (s *Store) ClearPolygon() {
	s.mu.Lock()
	s.clicks.Cancel()
	s.points = nil
	s.drawMode = false
	s.recomputeLocked()
	inv := s.invalidator
	s.mu.Unlock()

	if inv != nil {
		inv.Invalidate()
	}
}

// SetDrawModeActive switches click capture on or off. Entering keeps existing
// points so more area can be added. Leaving drops any pending click at once,
// and an outline left with fewer than MinPoints vertices is discarded.
func (s *Store) SetDrawModeActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if active == s.drawMode {
		return
	}

	if active {
		s.drawMode = true
		s.session++
		return
	}

	s.drawMode = false
	s.clicks.Cancel()
	if len(s.points) < MinPoints {
		s.points = nil
		s.recomputeLocked()
	}
}

// SetThreshold updates the external threshold (the monthly bill)
func (s *Store) SetThreshold(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threshold = v
	s.recomputeLocked()
}

// SetPolygon replaces the outline wholesale. Points are filtered with the
// same rules as AddPoint; the number kept is returned.
func (s *Store) SetPolygon(points []geo.Point) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clicks.Cancel()
	s.points = nil
	for _, p := range points {
		if !geo.IsValid(p) {
			metrics.RejectedPoints.WithLabelValues("invalid").Inc()
			continue
		}
		if s.coincidesLocked(p) {
			metrics.RejectedPoints.WithLabelValues("duplicate").Inc()
			continue
		}
		s.points = append(s.points, p)
	}
	s.recomputeLocked()
	return len(s.points)
}

// Recompute refreshes the derived metrics. Mutations already call it; it is
// exported for callers that change something the store cannot observe.
func (s *Store) Recompute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recomputeLocked()
}

// Points returns a copy of the outline in insertion order
func (s *Store) Points() []geo.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]geo.Point(nil), s.points...)
}

// Len returns the number of vertices
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

// Metrics returns the derived metrics
func (s *Store) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// DrawModeActive reports whether map clicks are being captured
func (s *Store) DrawModeActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawMode
}

// Centroid returns the mean vertex; false when the outline is empty
func (s *Store) Centroid() (geo.Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geoUtils.Centroid(s.points)
}

// Snapshot returns a consistent copy of the whole state
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Points:         append([]geo.Point{}, s.points...),
		DrawModeActive: s.drawMode,
		Threshold:      s.threshold,
		ClickPending:   s.clicks.Pending(),
		Metrics:        s.metrics,
	}
}

// applyClick is the Debouncer's delivery target
func (s *Store) applyClick(c click) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The click may have been armed in a drawing session that has since ended.
	if !s.drawMode || c.session != s.session {
		metrics.RejectedPoints.WithLabelValues("stale").Inc()
		return
	}
	s.addPointLocked(c.point)
}

func (s *Store) addPointLocked(p geo.Point) bool {
	if !geo.IsValid(p) {
		metrics.RejectedPoints.WithLabelValues("invalid").Inc()
		return false
	}
	if s.coincidesLocked(p) {
		metrics.RejectedPoints.WithLabelValues("duplicate").Inc()
		return false
	}

	s.points = append(s.points, p)
	s.recomputeLocked()
	return true
}

func (s *Store) coincidesLocked(p geo.Point) bool {
	return lo.SomeBy(s.points, func(q geo.Point) bool {
		return s.geoUtils.IsCoincident(q, p)
	})
}

func (s *Store) recomputeLocked() {
	result := s.engine.Compute(s.ctx, s.points)
	s.metrics = Metrics{
		AreaSqm:    result.AreaSqm,
		CanProceed: len(s.points) >= MinPoints && s.threshold > 0,
		Method:     result.Method,
	}
}
