package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/Sheligo88/CosmicBulkMap/internal/api"
	"github.com/Sheligo88/CosmicBulkMap/internal/auth"
	"github.com/Sheligo88/CosmicBulkMap/internal/cache"
	"github.com/Sheligo88/CosmicBulkMap/internal/catalog"
	"github.com/Sheligo88/CosmicBulkMap/internal/cosmology"
	"github.com/Sheligo88/CosmicBulkMap/internal/dipole"
	"github.com/Sheligo88/CosmicBulkMap/internal/healpix"
	"github.com/Sheligo88/CosmicBulkMap/internal/metrics"
	"github.com/Sheligo88/CosmicBulkMap/internal/sky"
	"github.com/Sheligo88/CosmicBulkMap/internal/skymap"
	"github.com/Sheligo88/CosmicBulkMap/internal/stream"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	addr := os.Getenv("BULKMAP_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	bg := loadCosmology(logger)
	params := dipole.NewStore(loadDipoleParams(logger))

	catCfg := loadCatalogConfig(logger)
	catStore := catalog.NewStore()
	loadStartupCatalog(logger, catStore, catCfg)

	synthCfg := loadSynthConfig(logger)
	synth := skymap.NewSynthesizer(synthCfg, logger)
	metrics.SetSynthesisWorkers(synthCfg.Workers)

	cacheCfg := loadCacheConfig(logger, synthCfg)
	mapCache := cache.NewMapCache(cacheCfg, synth, params, logger)

	streamCfg := loadStreamConfig(logger)
	streamHandler := stream.NewHandler(synth, params, streamCfg, logger)

	srv := api.NewServer(addr, logger, authCfg, bg, params, catStore, catCfg, synth, mapCache, streamHandler)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start cache background worker.
	go mapCache.Start(ctx)

	// Background goroutine to update the catalog age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				age := catStore.AgeSeconds()
				if age >= 0 {
					metrics.SetCatalogAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "catalog_fetch_enabled", catCfg.EnableFetch)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// loadStartupCatalog fills the store from the freshest disk snapshot, falling
// back to the embedded toy dataset so the service is never without a catalog.
func loadStartupCatalog(logger *slog.Logger, store *catalog.Store, cfg api.CatalogConfig) {
	disk := catalog.NewCache(cfg.CacheDir, cfg.MaxFiles)

	data, ts, err := disk.LoadLatest()
	if err == nil && time.Since(ts) <= cfg.MaxAge {
		objects, parseErr := catalog.Parse(bytes.NewReader(data), logger)
		if parseErr != nil {
			logger.Warn("failed to parse cached catalog", "error", parseErr)
		} else if len(objects) > 0 {
			store.Set(&catalog.Dataset{
				Source:    "cache",
				FetchedAt: ts,
				Objects:   objects,
			})
			metrics.SetCatalogObjectCount(len(objects))
			logger.Info("loaded catalog from cache", "objects", len(objects), "cached_at", ts.Format(time.RFC3339))
			return
		}
	} else if err != nil {
		logger.Info("no catalog cache found, using toy dataset", "error", err)
	} else {
		logger.Info("catalog cache too old, using toy dataset", "cached_at", ts.Format(time.RFC3339))
	}

	ds := catalog.Toy()
	store.Set(ds)
	metrics.SetCatalogObjectCount(len(ds.Objects))
	logger.Info("loaded toy catalog", "objects", len(ds.Objects))
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("BULKMAP_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("BULKMAP_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("BULKMAP_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("BULKMAP_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadCosmology(logger *slog.Logger) cosmology.FlatLCDM {
	h0 := 67.4
	om0 := 0.315

	if v := os.Getenv("BULKMAP_H0"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			logger.Warn("invalid BULKMAP_H0 value, using default", "value", v, "default", h0)
		} else {
			h0 = f
		}
	}

	if v := os.Getenv("BULKMAP_OM0"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 1 {
			logger.Warn("invalid BULKMAP_OM0 value, using default", "value", v, "default", om0)
		} else {
			om0 = f
		}
	}

	bg, err := cosmology.NewFlatLCDM(h0, om0)
	if err != nil {
		logger.Error("invalid cosmology configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("cosmology config", "h0", h0, "om0", om0)
	return bg
}

func loadDipoleParams(logger *slog.Logger) dipole.Params {
	cfg := dipole.DefaultParams

	if path := os.Getenv("BULKMAP_PARAMS_FILE"); path != "" {
		p, err := dipole.LoadParamsFile(path)
		if err != nil {
			logger.Warn("invalid BULKMAP_PARAMS_FILE, using defaults", "path", path, "error", err)
		} else {
			cfg = p
		}
	}

	if v := os.Getenv("BULKMAP_DIPOLE_AMPLITUDE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			logger.Warn("invalid BULKMAP_DIPOLE_AMPLITUDE value, keeping current", "value", v)
		} else {
			cfg.Amplitude = f
		}
	}

	lonStr := os.Getenv("BULKMAP_DIPOLE_LON")
	latStr := os.Getenv("BULKMAP_DIPOLE_LAT")
	if lonStr != "" || latStr != "" {
		lon, lonErr := strconv.ParseFloat(lonStr, 64)
		lat, latErr := strconv.ParseFloat(latStr, 64)
		if lonErr != nil || latErr != nil {
			logger.Warn("BULKMAP_DIPOLE_LON and BULKMAP_DIPOLE_LAT must both be set to decimal degrees, keeping current direction")
		} else if dir, err := sky.New(lon, lat); err != nil {
			logger.Warn("invalid dipole direction, keeping current", "error", err)
		} else {
			cfg.Direction = dir
		}
	}

	logger.Info("dipole params",
		"amplitude_mag", cfg.Amplitude,
		"dipole_lon_deg", cfg.Direction.LonDeg,
		"dipole_lat_deg", cfg.Direction.LatDeg,
	)

	return cfg
}

func loadCatalogConfig(logger *slog.Logger) api.CatalogConfig {
	cfg := api.CatalogConfig{
		CacheDir: "/tmp/bulkmap/catalog",
		MaxFiles: 5,
		MaxAge:   24 * time.Hour,
	}

	if v := os.Getenv("BULKMAP_ENABLE_CATALOG_FETCH"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid BULKMAP_ENABLE_CATALOG_FETCH value, defaulting to false", "value", v)
		} else {
			cfg.EnableFetch = enabled
		}
	}

	if v := os.Getenv("BULKMAP_CATALOG_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}

	if v := os.Getenv("BULKMAP_CATALOG_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}

	if v := os.Getenv("BULKMAP_CATALOG_MAX_AGE"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			logger.Warn("invalid BULKMAP_CATALOG_MAX_AGE value, defaulting to 86400", "value", v)
		} else {
			cfg.MaxAge = time.Duration(seconds) * time.Second
		}
	}

	logger.Info("catalog config",
		"fetch_enabled", cfg.EnableFetch,
		"source_url", cfg.SourceURL,
		"cache_dir", cfg.CacheDir,
	)

	return cfg
}

func loadSynthConfig(logger *slog.Logger) skymap.Config {
	cfg := skymap.Config{
		Workers:      runtime.NumCPU(),
		DefaultNSide: 16,
		MaxNSide:     64,
	}

	if v := os.Getenv("BULKMAP_SYNTH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid BULKMAP_SYNTH_WORKERS value, using default", "value", v, "default", cfg.Workers)
		} else {
			cfg.Workers = n
		}
	}

	if v := os.Getenv("BULKMAP_DEFAULT_NSIDE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || !healpix.ValidNSide(n) {
			logger.Warn("invalid BULKMAP_DEFAULT_NSIDE value, using default", "value", v, "default", 16)
		} else {
			cfg.DefaultNSide = n
		}
	}

	if v := os.Getenv("BULKMAP_MAX_NSIDE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || !healpix.ValidNSide(n) {
			logger.Warn("invalid BULKMAP_MAX_NSIDE value, using default", "value", v, "default", 64)
		} else {
			cfg.MaxNSide = n
		}
	}

	if cfg.DefaultNSide > cfg.MaxNSide {
		logger.Warn("default nside above max, clamping", "default_nside", cfg.DefaultNSide, "max_nside", cfg.MaxNSide)
		cfg.DefaultNSide = cfg.MaxNSide
	}

	logger.Info("synthesis config",
		"workers", cfg.Workers,
		"default_nside", cfg.DefaultNSide,
		"max_nside", cfg.MaxNSide,
	)

	return cfg
}

func loadCacheConfig(logger *slog.Logger, synthCfg skymap.Config) cache.Config {
	cfg := cache.Config{
		MaxEntries:   16,
		SweepPeriod:  5 * time.Second,
		DefaultNSide: synthCfg.DefaultNSide,
	}

	if v := os.Getenv("BULKMAP_CACHE_MAX_ENTRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid BULKMAP_CACHE_MAX_ENTRIES value, using default", "value", v, "default", 16)
		} else {
			cfg.MaxEntries = n
		}
	}

	if v := os.Getenv("BULKMAP_CACHE_SWEEP_PERIOD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid BULKMAP_CACHE_SWEEP_PERIOD value, using default", "value", v, "default", 5)
		} else {
			cfg.SweepPeriod = time.Duration(n) * time.Second
		}
	}

	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  30 * time.Second,
	}

	if v := os.Getenv("BULKMAP_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid BULKMAP_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("BULKMAP_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid BULKMAP_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("BULKMAP_STREAM_TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid BULKMAP_STREAM_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = b
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)

	return cfg
}
