package capture

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/rooftrace/server/internal/lib/area"
	"github.com/dpup/rooftrace/server/internal/lib/geo"
)

const monthlyBill = 1_500_000

// roofCorners is a ~10m square roof in central Jakarta
var roofCorners = []geo.Point{
	{Latitude: -6.20880, Longitude: 106.84560},
	{Latitude: -6.20880, Longitude: 106.84569},
	{Latitude: -6.20889, Longitude: 106.84569},
	{Latitude: -6.20889, Longitude: 106.84560},
}

func newTestStore(opts ...Option) (*Store, *manualClock) {
	clock := &manualClock{}
	opts = append([]Option{WithAfterFunc(clock.AfterFunc), WithThreshold(monthlyBill)}, opts...)
	return NewStore(opts...), clock
}

// tap submits p and lets the debounce window pass
func tap(s *Store, clock *manualClock, p geo.Point) {
	s.Click(p)
	clock.Advance(DefaultDebounceWindow)
}

func TestStore_StartsEmpty(t *testing.T) {
	s, _ := newTestStore()

	snap := s.Snapshot()
	assert.Empty(t, snap.Points)
	assert.NotNil(t, snap.Points, "serializes as an empty list")
	assert.False(t, snap.DrawModeActive)
	assert.Equal(t, 0.0, snap.Metrics.AreaSqm)
	assert.False(t, snap.Metrics.CanProceed)
	assert.Equal(t, area.MethodNone, snap.Metrics.Method)
}

func TestStore_AddPointRejectsCoincidentPoints(t *testing.T) {
	s, _ := newTestStore()

	require.True(t, s.AddPoint(roofCorners[0]))
	near := geo.Point{
		Latitude:  roofCorners[0].Latitude + 0.000005,
		Longitude: roofCorners[0].Longitude - 0.000005,
	}
	assert.False(t, s.AddPoint(near))
	assert.False(t, s.AddPoint(roofCorners[0]))
	assert.Equal(t, 1, s.Len())

	// Only one axis within the radius is not a duplicate
	apart := geo.Point{Latitude: roofCorners[0].Latitude, Longitude: roofCorners[0].Longitude + 0.00002}
	assert.True(t, s.AddPoint(apart))
	assert.Equal(t, 2, s.Len())
}

func TestStore_AddPointRejectsInvalidCoordinates(t *testing.T) {
	s, _ := newTestStore()

	for _, p := range []geo.Point{
		{Latitude: math.NaN(), Longitude: 106.8},
		{Latitude: -6.2, Longitude: math.Inf(1)},
		{Latitude: 95, Longitude: 106.8},
	} {
		assert.False(t, s.AddPoint(p))
	}
	assert.Equal(t, 0, s.Len())
}

func TestStore_RemoveLastPoint(t *testing.T) {
	s, _ := newTestStore()

	assert.False(t, s.RemoveLastPoint(), "empty polygon is a no-op")
	assert.Equal(t, 0, s.Len())

	for _, p := range roofCorners {
		s.AddPoint(p)
	}
	require.True(t, s.Metrics().CanProceed)

	assert.True(t, s.RemoveLastPoint())
	assert.Equal(t, roofCorners[:3], s.Points())
	assert.True(t, s.Metrics().CanProceed)

	assert.True(t, s.RemoveLastPoint())
	assert.False(t, s.Metrics().CanProceed)
	assert.Equal(t, 0.0, s.Metrics().AreaSqm)
}

func TestStore_CanProceedFollowsEveryMutation(t *testing.T) {
	s, _ := newTestStore()

	s.AddPoint(roofCorners[0])
	s.AddPoint(roofCorners[1])
	assert.False(t, s.Metrics().CanProceed, "two points")
	assert.Equal(t, 0.0, s.Metrics().AreaSqm)

	s.AddPoint(roofCorners[2])
	metrics := s.Metrics()
	assert.True(t, metrics.CanProceed, "third point")
	assert.InEpsilon(t, 50.0, metrics.AreaSqm, 0.03, "half of the square")
	assert.Equal(t, area.MethodSpherical, metrics.Method)

	s.ClearPolygon()
	metrics = s.Metrics()
	assert.False(t, metrics.CanProceed, "after clear")
	assert.Equal(t, 0.0, metrics.AreaSqm)
	assert.Empty(t, s.Points())
}

// collinear lies along one edge of the roof, so every tier yields ~0 m²
var collinear = []geo.Point{
	{Latitude: -6.20880, Longitude: 106.84560},
	{Latitude: -6.20880, Longitude: 106.84565},
	{Latitude: -6.20880, Longitude: 106.84570},
}

func TestStore_DegenerateOutlineKeepsMetricsCurrent(t *testing.T) {
	s, _ := newTestStore()

	for _, p := range collinear {
		require.NotPanics(t, func() { require.True(t, s.AddPoint(p)) })
	}

	m := s.Metrics()
	assert.Equal(t, 3, s.Len())
	assert.True(t, m.CanProceed, "3 points and a positive threshold")
	assert.InDelta(t, 0.0, m.AreaSqm, 1.0)
	assert.NotEqual(t, area.MethodNone, m.Method)
}

func TestStore_DegenerateOutlineThroughDebouncedClicks(t *testing.T) {
	ctx := logging.With(context.Background(), logging.NewDevLogger())
	s, clock := newTestStore(WithContext(ctx))
	s.SetDrawModeActive(true)

	for _, p := range collinear {
		require.NotPanics(t, func() { tap(s, clock, p) })
	}

	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Metrics().CanProceed)
}

func TestStore_ThresholdDrivesCanProceed(t *testing.T) {
	s, _ := newTestStore(WithThreshold(0))
	for _, p := range roofCorners {
		s.AddPoint(p)
	}
	assert.False(t, s.Metrics().CanProceed, "no bill yet")

	s.SetThreshold(monthlyBill)
	assert.True(t, s.Metrics().CanProceed)

	for _, v := range []float64{0, -10, math.NaN()} {
		s.SetThreshold(v)
		assert.False(t, s.Metrics().CanProceed, "threshold %v", v)
	}
	assert.InEpsilon(t, 100.0, s.Metrics().AreaSqm, 0.03, "area does not depend on the threshold")
}

func TestStore_ClicksIgnoredOutsideDrawMode(t *testing.T) {
	s, clock := newTestStore()

	assert.False(t, s.Click(roofCorners[0]))
	clock.Advance(time.Second)
	assert.Equal(t, 0, s.Len())
}

func TestStore_ClickBurstAppendsOnce(t *testing.T) {
	s, clock := newTestStore()
	s.SetDrawModeActive(true)

	// A single physical click reported three times by a laggy input backend
	jitter := []geo.Point{
		{Latitude: -6.20880, Longitude: 106.84560},
		{Latitude: -6.20882, Longitude: 106.84562},
		{Latitude: -6.20884, Longitude: 106.84564},
	}
	for _, p := range jitter {
		require.True(t, s.Click(p))
		clock.Advance(10 * time.Millisecond)
	}
	assert.Equal(t, 0, s.Len(), "nothing applied inside the window")
	assert.True(t, s.Snapshot().ClickPending)

	clock.Advance(DefaultDebounceWindow)
	assert.Equal(t, []geo.Point{jitter[2]}, s.Points(), "last click of the burst wins")
	assert.False(t, s.Snapshot().ClickPending)
}

func TestStore_SpacedClicksAllApply(t *testing.T) {
	s, clock := newTestStore()
	s.SetDrawModeActive(true)

	for _, p := range roofCorners {
		tap(s, clock, p)
	}
	assert.Equal(t, roofCorners, s.Points())
	assert.InEpsilon(t, 100.0, s.Metrics().AreaSqm, 0.03)
	assert.True(t, s.Metrics().CanProceed)
}

func TestStore_CoalescedClickStillDeduplicated(t *testing.T) {
	s, clock := newTestStore()
	s.SetDrawModeActive(true)

	tap(s, clock, roofCorners[0])
	tap(s, clock, roofCorners[0])
	assert.Equal(t, 1, s.Len())
}

func TestStore_LeavingDrawModeDropsPendingClick(t *testing.T) {
	s, clock := newTestStore()
	s.SetDrawModeActive(true)
	for _, p := range roofCorners[:3] {
		tap(s, clock, p)
	}

	s.Click(roofCorners[3])
	s.SetDrawModeActive(false)
	clock.Advance(time.Second)

	assert.Equal(t, roofCorners[:3], s.Points(), "pending click dropped, outline kept")
	assert.False(t, s.Snapshot().ClickPending)
}

func TestStore_PendingClickDoesNotLeakIntoNextSession(t *testing.T) {
	s, clock := newTestStore()
	s.SetDrawModeActive(true)
	for _, p := range roofCorners[:3] {
		tap(s, clock, p)
	}

	s.Click(roofCorners[3])
	s.SetDrawModeActive(false)
	s.SetDrawModeActive(true)
	clock.Advance(time.Second)
	assert.Equal(t, 3, s.Len())

	// A delivery that raced the toggle carries the old session
	s.applyClick(click{point: roofCorners[3], session: s.session - 1})
	assert.Equal(t, 3, s.Len())
}

func TestStore_LeavingDrawModeWithTooFewPointsCancels(t *testing.T) {
	s, clock := newTestStore()
	s.SetDrawModeActive(true)
	tap(s, clock, roofCorners[0])
	tap(s, clock, roofCorners[1])

	s.SetDrawModeActive(false)
	assert.Empty(t, s.Points())
	assert.False(t, s.DrawModeActive())
	assert.Equal(t, 0.0, s.Metrics().AreaSqm)
}

func TestStore_LeavingDrawModeKeepsCompleteOutline(t *testing.T) {
	s, clock := newTestStore()
	s.SetDrawModeActive(true)
	for _, p := range roofCorners {
		tap(s, clock, p)
	}

	s.SetDrawModeActive(false)
	assert.Equal(t, roofCorners, s.Points())
	assert.True(t, s.Metrics().CanProceed)
}

func TestStore_EnteringDrawModeKeepsPoints(t *testing.T) {
	s, clock := newTestStore()
	for _, p := range roofCorners[:3] {
		s.AddPoint(p)
	}
	before := s.Metrics().AreaSqm

	s.SetDrawModeActive(true)
	assert.Equal(t, 3, s.Len())

	tap(s, clock, roofCorners[3])
	assert.Equal(t, 4, s.Len())
	assert.Greater(t, s.Metrics().AreaSqm, before, "area was added")
}

func TestStore_ClearPolygonInvalidatesResults(t *testing.T) {
	var invalidations int32
	s, clock := newTestStore(WithInvalidator(InvalidatorFunc(func() {
		atomic.AddInt32(&invalidations, 1)
	})))
	s.SetDrawModeActive(true)
	for _, p := range roofCorners {
		tap(s, clock, p)
	}

	s.RemoveLastPoint()
	s.SetDrawModeActive(false)
	assert.Zero(t, atomic.LoadInt32(&invalidations), "only clear invalidates")

	s.SetDrawModeActive(true)
	s.Click(roofCorners[3])
	s.ClearPolygon()
	clock.Advance(time.Second)

	assert.Equal(t, int32(1), atomic.LoadInt32(&invalidations))
	assert.Empty(t, s.Points(), "pending click dropped by clear")
	assert.False(t, s.DrawModeActive(), "clear leaves draw mode")
}

func TestStore_SetPolygonFiltersPoints(t *testing.T) {
	s, _ := newTestStore()

	input := append([]geo.Point{}, roofCorners...)
	input = append(input, roofCorners[1], geo.Point{Latitude: math.NaN(), Longitude: 0})

	kept := s.SetPolygon(input)
	assert.Equal(t, 4, kept)
	assert.Equal(t, roofCorners, s.Points())
	assert.True(t, s.Metrics().CanProceed)

	assert.Equal(t, 0, s.SetPolygon(nil))
	assert.False(t, s.Metrics().CanProceed)
}

func TestStore_PointsReturnsCopy(t *testing.T) {
	s, _ := newTestStore()
	s.AddPoint(roofCorners[0])

	points := s.Points()
	points[0] = geo.Point{Latitude: 1, Longitude: 1}
	assert.Equal(t, roofCorners[0], s.Points()[0])
}

func TestStore_Centroid(t *testing.T) {
	s, _ := newTestStore()
	_, ok := s.Centroid()
	assert.False(t, ok)

	for _, p := range roofCorners {
		s.AddPoint(p)
	}
	c, ok := s.Centroid()
	require.True(t, ok)
	assert.InDelta(t, -6.208845, c.Latitude, 1e-9)
	assert.InDelta(t, 106.845645, c.Longitude, 1e-9)
}

func TestStore_RecomputeUsesInjectedEngine(t *testing.T) {
	provider := area.ProviderFunc(func(points []geo.Point) (float64, error) {
		return 42, nil
	})
	s, _ := newTestStore(WithEngine(area.NewEngine(area.WithProvider(provider))))
	for _, p := range roofCorners {
		s.AddPoint(p)
	}

	assert.Equal(t, Metrics{AreaSqm: 42, CanProceed: true, Method: area.MethodProvider}, s.Metrics())

	s.Recompute()
	assert.Equal(t, 42.0, s.Metrics().AreaSqm, "idempotent")
}

func TestStore_ZeroWindowAppliesImmediately(t *testing.T) {
	s := NewStore(WithDebounceWindow(0))
	s.SetDrawModeActive(true)

	s.Click(roofCorners[0])
	assert.Equal(t, 1, s.Len())
}

func TestStore_RealTimer(t *testing.T) {
	s := NewStore(WithDebounceWindow(10*time.Millisecond), WithThreshold(monthlyBill))
	s.SetDrawModeActive(true)

	for i, p := range roofCorners {
		s.Click(p)
		require.Eventually(t, func() bool {
			return s.Len() == i+1
		}, time.Second, time.Millisecond)
	}

	assert.Equal(t, roofCorners, s.Points())
	assert.True(t, s.Metrics().CanProceed)
}
