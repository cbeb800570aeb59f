package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Sheligo88/CosmicBulkMap/internal/dipole"
	"github.com/Sheligo88/CosmicBulkMap/internal/healpix"
	"github.com/Sheligo88/CosmicBulkMap/internal/sky"
	"github.com/Sheligo88/CosmicBulkMap/internal/skymap"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func newTestCache(maxEntries int) (*MapCache, *dipole.Store) {
	synth := skymap.NewSynthesizer(skymap.Config{Workers: 2, DefaultNSide: 4, MaxNSide: 32}, testLogger)
	params := dipole.NewStore(dipole.DefaultParams)
	c := NewMapCache(Config{MaxEntries: maxEntries, SweepPeriod: time.Second, DefaultNSide: 4}, synth, params, testLogger)
	return c, params
}

func TestGetMiss(t *testing.T) {
	c, params := newTestCache(4)
	if m := c.Get(4, params.Get()); m != nil {
		t.Fatalf("expected miss on empty cache, got %+v", m)
	}

	stats := c.Stats()
	if stats.Misses != 1 || stats.Hits != 0 {
		t.Errorf("stats after miss: %+v", stats)
	}
}

func TestGetOrSynthesize(t *testing.T) {
	c, params := newTestCache(4)

	m, err := c.GetOrSynthesize(context.Background(), 4)
	if err != nil {
		t.Fatalf("GetOrSynthesize: %v", err)
	}
	if len(m.Values) != healpix.NumPixels(4) {
		t.Fatalf("map has %d values, want %d", len(m.Values), healpix.NumPixels(4))
	}

	// Second call must hit the cache and return the same map.
	again, err := c.GetOrSynthesize(context.Background(), 4)
	if err != nil {
		t.Fatalf("GetOrSynthesize (cached): %v", err)
	}
	if again != m {
		t.Error("expected cached map instance on second call")
	}

	stats := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("entries = %d, want 1", stats.Entries)
	}
	if stats.Hits < 1 {
		t.Errorf("hits = %d, want >= 1", stats.Hits)
	}

	// A direct Get with the active params also hits.
	if got := c.Get(4, params.Get()); got != m {
		t.Error("Get after synthesis returned a different map")
	}
}

func TestEvictionOverLimit(t *testing.T) {
	c, _ := newTestCache(2)

	// Three resolutions at one entry cap of two.
	for _, nside := range []int{1, 2, 4} {
		if _, err := c.GetOrSynthesize(context.Background(), nside); err != nil {
			t.Fatalf("GetOrSynthesize(%d): %v", nside, err)
		}
	}

	stats := c.Stats()
	if stats.Entries != 2 {
		t.Errorf("entries = %d, want 2 after eviction", stats.Entries)
	}
	if stats.Evictions != 1 {
		t.Errorf("evictions = %d, want 1", stats.Evictions)
	}
}

func TestParamsChangeInvalidatesLookup(t *testing.T) {
	c, params := newTestCache(4)

	if _, err := c.GetOrSynthesize(context.Background(), 4); err != nil {
		t.Fatalf("GetOrSynthesize: %v", err)
	}

	// New parameters: the old entry no longer matches the active key.
	params.Set(dipole.Params{Amplitude: 0.1, Direction: sky.Coord{LonDeg: 10, LatDeg: 10}})
	if m := c.Get(4, params.Get()); m != nil {
		t.Error("expected miss for new parameter set")
	}
}

func TestCutoverRebuildsDefaultMap(t *testing.T) {
	c, params := newTestCache(4)
	ctx := context.Background()

	c.currentSetAt = params.SetAt()
	c.warmup(ctx)

	newParams := dipole.Params{Amplitude: 0.2, Direction: sky.Coord{LonDeg: 90, LatDeg: 0}}
	params.Set(newParams)
	if !c.paramsChanged() {
		t.Fatal("paramsChanged = false after Set")
	}

	c.performCutover(ctx)

	if c.paramsChanged() {
		t.Error("paramsChanged = true after cutover")
	}
	m := c.Get(4, newParams)
	if m == nil {
		t.Fatal("default map for new params not present after cutover")
	}
	if m.Params != newParams {
		t.Errorf("cutover map params = %+v, want %+v", m.Params, newParams)
	}
	// Stale entries for the old parameters are gone.
	if got := c.Get(4, dipole.DefaultParams); got != nil {
		t.Error("stale map survived cutover")
	}
	if c.Stats().InGracePeriod {
		t.Error("grace period flag still set after cutover")
	}
}

func TestStatsSizeEstimate(t *testing.T) {
	c, _ := newTestCache(4)
	if _, err := c.GetOrSynthesize(context.Background(), 2); err != nil {
		t.Fatalf("GetOrSynthesize: %v", err)
	}

	stats := c.Stats()
	// 48 pixels * 8 bytes plus overhead.
	if stats.SizeBytes < 48*8 {
		t.Errorf("SizeBytes = %d, want >= %d", stats.SizeBytes, 48*8)
	}
}
