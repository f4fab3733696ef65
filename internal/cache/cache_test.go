package cache

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/rooftrace/server/internal/clients/simulation"
	"github.com/dpup/rooftrace/server/internal/metrics"
)

// newTestCache returns a cache whose clock is advanced by the returned function
func newTestCache() (*Cache, func(time.Duration)) {
	c := NewCache()
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, func(d time.Duration) { now = now.Add(d) }
}

func sampleResult() *simulation.Results {
	return &simulation.Results{
		SiteDetails:  simulation.SiteDetails{RoofAreaSqm: 99.6, Location: "Jakarta"},
		EnergyOutput: simulation.EnergyOutput{RecommendedSystemSizeKwp: 9.6},
		Financials:   simulation.Financials{BreakEvenPointYears: 7.1},
	}
}

func TestCache_SetAndExpire(t *testing.T) {
	c, advance := newTestCache()

	require.NoError(t, c.Set("k", map[string]int{"a": 1}, time.Minute, "test"))

	entry, found := c.GetWithMetadata("k")
	require.True(t, found)
	assert.JSONEq(t, `{"a": 1}`, string(entry.Data))
	assert.Equal(t, "test", entry.Source)
	assert.False(t, c.IsStale("k"))

	advance(2 * time.Minute)
	_, found = c.GetWithMetadata("k")
	assert.False(t, found, "expired entries are not served")
	assert.True(t, c.IsStale("k"))
	assert.True(t, c.IsStale("missing"))
}

func TestCache_StatsAndCleanup(t *testing.T) {
	c, advance := newTestCache()

	require.NoError(t, c.Set("short", 1, time.Minute, "test"))
	advance(time.Second)
	require.NoError(t, c.Set("long", 2, time.Hour, "test"))
	advance(2 * time.Minute)

	stats := c.Stats()
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 1, stats.FreshEntries)
	assert.Equal(t, 1, stats.StaleEntries)
	assert.True(t, stats.OldestEntry.Before(stats.NewestEntry))

	assert.Equal(t, 1, c.CleanupStale())
	assert.Equal(t, 1, c.Stats().TotalEntries)
	assert.True(t, c.Delete("long"))
	assert.False(t, c.Delete("long"))
}

func TestCache_CleanupPublishesLiveResults(t *testing.T) {
	c, advance := newTestCache()

	require.NoError(t, c.SetResult("session-1", sampleResult(), time.Minute))
	require.NoError(t, c.SetResult("session-2", sampleResult(), time.Hour))
	advance(2 * time.Minute)

	c.cleanup(context.Background())
	assert.Equal(t, 1, c.Stats().TotalEntries)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CachedResults))
}

func TestCache_SimulationResults(t *testing.T) {
	c, advance := newTestCache()

	_, _, found, err := c.GetResult("session-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SetResult("session-1", sampleResult(), time.Hour))
	require.NoError(t, c.SetResult("session-2", sampleResult(), time.Hour))

	result, createdAt, found, err := c.GetResult("session-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sampleResult(), result)
	assert.Equal(t, time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC), createdAt)

	assert.NotPanics(t, c.ResultInvalidator("session-1").Invalidate, "logs without a caller context")
	_, _, found, _ = c.GetResult("session-1")
	assert.False(t, found, "invalidated")
	_, _, found, _ = c.GetResult("session-2")
	assert.True(t, found, "other sessions untouched")

	assert.False(t, c.InvalidateResult("session-1"), "already gone")

	advance(2 * time.Hour)
	_, _, found, _ = c.GetResult("session-2")
	assert.False(t, found, "expired")
}

func TestCache_PeriodicCleanupStopsWithContext(t *testing.T) {
	c := NewCache()
	require.NoError(t, c.Set("gone", 1, time.Nanosecond, "test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.StartPeriodicCleanup(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return c.Stats().TotalEntries == 0
	}, time.Second, 5*time.Millisecond)
}
