package cache

import (
	"context"
	"time"

	"github.com/Sheligo88/CosmicBulkMap/internal/metrics"
)

// Start begins the background cache maintenance loop. It performs an
// initial warmup (synthesizing the default-resolution map for the active
// parameters), then periodically:
//   - Detects parameter changes and triggers cutover
//   - Enforces the entry cap
//
// Blocks until ctx is cancelled.
func (c *MapCache) Start(ctx context.Context) {
	c.currentSetAt = c.params.SetAt()
	c.warmup(ctx)

	ticker := time.NewTicker(c.config.SweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("map cache generator stopped")
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// warmup synthesizes the default map so the first request does not pay the
// synthesis cost.
func (c *MapCache) warmup(ctx context.Context) {
	start := time.Now()
	if _, err := c.GetOrSynthesize(ctx, c.config.DefaultNSide); err != nil {
		c.logger.Warn("map cache warmup failed", "error", err)
		return
	}
	c.logger.Info("map cache warmed",
		"nside", c.config.DefaultNSide,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// tick runs one maintenance pass.
func (c *MapCache) tick(ctx context.Context) {
	if c.paramsChanged() {
		c.performCutover(ctx)
	}
	c.evictOverLimit()
	c.updateMetrics()
}

// paramsChanged checks whether the active parameter set has been replaced
// since the cache was last built.
func (c *MapCache) paramsChanged() bool {
	return !c.params.SetAt().Equal(c.currentSetAt)
}

// performCutover rebuilds the cache for the new parameter set.
//
// Strategy:
//  1. Set grace period flag (stale maps continue serving reads)
//  2. Synthesize the default map for the new parameters
//  3. Atomic swap: replace all entries with the fresh map
//  4. Clear grace period flag
//
// Requests for the old parameters hit the stale entries until the swap, so
// reads never block on the rebuild.
func (c *MapCache) performCutover(ctx context.Context) {
	p := c.params.Get()
	setAt := c.params.SetAt()

	c.logger.Info("parameter cutover starting",
		"old_set_at", c.currentSetAt.UTC().Format(time.RFC3339),
		"new_set_at", setAt.UTC().Format(time.RFC3339),
		"amplitude", p.Amplitude,
		"dipole_lon_deg", p.Direction.LonDeg,
		"dipole_lat_deg", p.Direction.LatDeg,
	)

	c.inGracePeriod.Store(true)
	metrics.SetCacheGracePeriodActive(true)
	defer func() {
		c.inGracePeriod.Store(false)
		metrics.SetCacheGracePeriodActive(false)
	}()

	start := time.Now()
	m, err := c.synth.Synthesize(ctx, c.config.DefaultNSide, p)
	if err != nil {
		c.logger.Warn("cutover synthesis failed, keeping stale cache", "error", err)
		return
	}

	newEntries := map[string]*CacheEntry{
		key(m.NSide, m.Params): {Map: m, GeneratedAt: time.Now()},
	}
	c.replaceAll(newEntries)
	c.currentSetAt = setAt

	c.logger.Info("parameter cutover complete",
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
