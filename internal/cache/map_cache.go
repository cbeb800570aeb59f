// Package cache provides an in-memory cache of synthesized sky maps.
//
// Maps are keyed by (nside, dipole parameters). A background worker keeps
// the default-resolution map for the active parameter set warm; when the
// active parameters change, the cache is rebuilt gracefully without
// interrupting reads.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sheligo88/CosmicBulkMap/internal/dipole"
	"github.com/Sheligo88/CosmicBulkMap/internal/metrics"
	"github.com/Sheligo88/CosmicBulkMap/internal/skymap"
)

// Config holds cache configuration loaded from environment variables.
type Config struct {
	MaxEntries   int           // Entry cap; oldest maps are evicted past it (default: 16)
	SweepPeriod  time.Duration // Interval between maintenance ticks (default: 5s)
	DefaultNSide int           // Resolution of the background-warmed map
}

// CacheEntry wraps a synthesized map with generation metadata.
type CacheEntry struct {
	Map         *skymap.Map
	GeneratedAt time.Time
}

// MapCache is an in-memory cache of synthesized sky maps.
// Safe for concurrent use by multiple goroutines.
type MapCache struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry

	config Config
	synth  *skymap.Synthesizer
	params *dipole.Store
	logger *slog.Logger

	// Track the active parameter version for change detection.
	currentSetAt time.Time

	// Counters (lock-free).
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	// Cutover state.
	inGracePeriod atomic.Bool
}

// NewMapCache creates a new sky-map cache.
func NewMapCache(config Config, synth *skymap.Synthesizer, params *dipole.Store, logger *slog.Logger) *MapCache {
	if config.MaxEntries < 1 {
		config.MaxEntries = 16
	}
	if config.SweepPeriod <= 0 {
		config.SweepPeriod = 5 * time.Second
	}

	logger.Info("map cache initialized",
		"max_entries", config.MaxEntries,
		"sweep_period_seconds", config.SweepPeriod.Seconds(),
		"default_nside", config.DefaultNSide,
	)

	return &MapCache{
		entries: make(map[string]*CacheEntry),
		config:  config,
		synth:   synth,
		params:  params,
		logger:  logger,
	}
}

// key builds the cache key for a resolution and parameter set.
func key(nside int, p dipole.Params) string {
	return fmt.Sprintf("n=%d|%s", nside, p.Key())
}

// Get returns the cached map for the given resolution and parameters, or
// nil on a miss.
func (c *MapCache) Get(nside int, p dipole.Params) *skymap.Map {
	k := key(nside, p)

	c.mu.RLock()
	entry, ok := c.entries[k]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
		metrics.IncCacheHits()
		return entry.Map
	}

	c.misses.Add(1)
	metrics.IncCacheMisses()
	return nil
}

// GetOrSynthesize returns the cached map for the active parameter set,
// synthesizing and caching it on a miss.
func (c *MapCache) GetOrSynthesize(ctx context.Context, nside int) (*skymap.Map, error) {
	p := c.params.Get()
	if m := c.Get(nside, p); m != nil {
		return m, nil
	}

	m, err := c.synth.Synthesize(ctx, nside, p)
	if err != nil {
		return nil, err
	}
	c.put(m)
	return m, nil
}

// put stores a map in the cache. Caller must not hold mu.
func (c *MapCache) put(m *skymap.Map) {
	entry := &CacheEntry{
		Map:         m,
		GeneratedAt: time.Now(),
	}

	c.mu.Lock()
	c.entries[key(m.NSide, m.Params)] = entry
	c.mu.Unlock()

	c.evictOverLimit()
	c.updateMetrics()
}

// evictOverLimit removes oldest entries until the cache respects MaxEntries.
func (c *MapCache) evictOverLimit() {
	var removed int

	c.mu.Lock()
	for len(c.entries) > c.config.MaxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.GeneratedAt.Before(oldest) {
				oldestKey = k
				oldest = e.GeneratedAt
			}
		}
		delete(c.entries, oldestKey)
		removed++
	}
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		metrics.AddCacheEvictions(removed)
		c.logger.Debug("map cache eviction", "entries_removed", removed)
	}
}

// replaceAll atomically replaces all cache entries (used during parameter
// cutover).
func (c *MapCache) replaceAll(newEntries map[string]*CacheEntry) {
	c.mu.Lock()
	c.entries = newEntries
	c.mu.Unlock()
	c.updateMetrics()
}

// Stats returns current cache statistics.
func (c *MapCache) Stats() Stats {
	c.mu.RLock()
	count := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Entries:       count,
		SizeBytes:     c.estimateSizeBytes(),
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
		InGracePeriod: c.inGracePeriod.Load(),
	}
}

// Stats holds cache statistics.
type Stats struct {
	Entries       int
	SizeBytes     int64
	Hits          int64
	Misses        int64
	Evictions     int64
	InGracePeriod bool
}

// estimateSizeBytes returns a rough estimate of the cache memory footprint.
func (c *MapCache) estimateSizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total int64
	for _, entry := range c.entries {
		if entry.Map == nil {
			continue
		}
		// 8 bytes per pixel value plus map and entry overhead.
		total += int64(len(entry.Map.Values))*8 + 96
	}
	return total
}

// updateMetrics publishes current cache size to Prometheus.
func (c *MapCache) updateMetrics() {
	c.mu.RLock()
	count := len(c.entries)
	c.mu.RUnlock()

	metrics.SetCacheEntries(count)
	metrics.SetCacheSizeBytes(c.estimateSizeBytes())
}
