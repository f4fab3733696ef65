package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"

	"github.com/dpup/rooftrace/server/internal/clients/simulation"
	"github.com/dpup/rooftrace/server/internal/lib/capture"
	"github.com/dpup/rooftrace/server/internal/metrics"
)

// Cache provides thread-safe in-memory caching with TTL
type Cache struct {
	entries map[string]*CacheEntry
	mutex   sync.RWMutex
	now     func() time.Time
	ctx     context.Context
}

// CacheEntry represents a cached item with metadata
type CacheEntry struct {
	Key       string    `json:"key"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Source    string    `json:"source"`
}

// NewCache creates a new in-memory cache
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]*CacheEntry),
		now:     time.Now,
		ctx:     logging.EnsureLogger(context.Background()),
	}
}

// Set stores data in cache for ttl
func (c *Cache) Set(key string, data interface{}, ttl time.Duration, source string) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data for cache: %w", err)
	}

	now := c.now()
	entry := &CacheEntry{
		Key:       key,
		Data:      jsonData,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Source:    source,
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[key] = entry
	return nil
}

// GetWithMetadata returns the entry for key if present and not stale
func (c *Cache) GetWithMetadata(key string) (*CacheEntry, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.entries[key]
	if !exists || c.now().After(entry.ExpiresAt) {
		return nil, false
	}
	return entry, true
}

// IsStale checks if cache entry is missing or past expiration
func (c *Cache) IsStale(key string) bool {
	_, found := c.GetWithMetadata(key)
	return !found
}

// Delete removes an entry from cache, reporting whether it existed
func (c *Cache) Delete(key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, exists := c.entries[key]
	delete(c.entries, key)
	return exists
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	now := c.now()
	stats := CacheStats{
		TotalEntries: len(c.entries),
	}

	for _, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			stats.StaleEntries++
		} else {
			stats.FreshEntries++
		}

		if stats.OldestEntry.IsZero() || entry.CreatedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = entry.CreatedAt
		}
		if entry.CreatedAt.After(stats.NewestEntry) {
			stats.NewestEntry = entry.CreatedAt
		}
	}

	return stats
}

// CleanupStale removes all stale entries from cache
func (c *Cache) CleanupStale() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	var removed int

	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
			removed++
		}
	}

	return removed
}

// StartPeriodicCleanup removes stale entries every interval until ctx is done
func (c *Cache) StartPeriodicCleanup(ctx context.Context, interval time.Duration) {
	ctx = logging.EnsureLogger(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err, _ := errors.ParseStack(debug.Stack())
				skipFrames := 3
				numFrames := 5
				logging.Errorw(ctx, "Cache cleanup: recovered from panic",
					"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.cleanup(ctx)
			}
		}
	}()
}

// cleanup drops stale entries and publishes the number of live results
func (c *Cache) cleanup(ctx context.Context) {
	removed := c.CleanupStale()
	stats := c.Stats()
	metrics.CachedResults.Set(float64(stats.FreshEntries))

	if removed > 0 {
		logging.Debugw(ctx, "Cache cleanup: removed stale entries",
			"removed", removed, "remaining", stats.TotalEntries, "oldest", stats.OldestEntry)
	}
}

// CacheStats provides cache usage statistics
type CacheStats struct {
	TotalEntries int
	FreshEntries int
	StaleEntries int
	OldestEntry  time.Time
	NewestEntry  time.Time
}

// Simulation results are cached per capture session. Clearing the session's
// outline deletes the entry through ResultInvalidator.

func resultKey(sessionID string) string {
	return fmt.Sprintf("simulation_result:%s", sessionID)
}

// SetResult caches the simulation result computed for a session
func (c *Cache) SetResult(sessionID string, result *simulation.Results, ttl time.Duration) error {
	return c.Set(resultKey(sessionID), result, ttl, "simulation")
}

// GetResult returns the session's cached result, if still valid
func (c *Cache) GetResult(sessionID string) (*simulation.Results, time.Time, bool, error) {
	entry, found := c.GetWithMetadata(resultKey(sessionID))
	if !found {
		return nil, time.Time{}, false, nil
	}

	var result simulation.Results
	if err := json.Unmarshal(entry.Data, &result); err != nil {
		return nil, time.Time{}, false, fmt.Errorf("failed to unmarshal cached result: %w", err)
	}
	return &result, entry.CreatedAt, true, nil
}

// HasResult reports whether a valid result is cached for the session
func (c *Cache) HasResult(sessionID string) bool {
	return !c.IsStale(resultKey(sessionID))
}

// InvalidateResult discards the session's cached result
func (c *Cache) InvalidateResult(sessionID string) bool {
	return c.Delete(resultKey(sessionID))
}

// ResultInvalidator binds InvalidateResult to one session so it can be handed
// to the session's capture store
func (c *Cache) ResultInvalidator(sessionID string) capture.Invalidator {
	return capture.InvalidatorFunc(func() {
		if c.InvalidateResult(sessionID) {
			logging.Debugw(c.ctx, "Cache: simulation result invalidated", "session_id", sessionID)
		}
	})
}
