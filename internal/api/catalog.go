package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/Sheligo88/CosmicBulkMap/internal/catalog"
	"github.com/Sheligo88/CosmicBulkMap/internal/metrics"
)

// GET /api/v1/catalog/metadata
func (h *handlers) handleCatalogMetadata(w http.ResponseWriter, r *http.Request) {
	ds := h.catalog.Get()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, "no catalog loaded")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"source":      ds.Source,
		"fetched_at":  ds.FetchedAt,
		"objects":     len(ds.Objects),
		"age_seconds": h.catalog.AgeSeconds(),
	})
}

// POST /api/v1/catalog/refresh
//
// Re-fetches the catalog from the configured source, replaces the in-memory
// dataset and writes a timestamped snapshot to the disk cache. Serialized so
// concurrent refresh requests cannot race each other.
func (h *handlers) handleCatalogRefresh(w http.ResponseWriter, r *http.Request) {
	if !h.catCfg.EnableFetch {
		writeError(w, http.StatusConflict, "catalog fetching is disabled")
		return
	}

	h.catalog.Lock()
	defer h.catalog.Unlock()

	data, err := h.fetcher.Fetch(r.Context())
	if err != nil {
		h.logger.Error("catalog fetch failed", "component", "api", "error", err)
		writeError(w, http.StatusBadGateway, "catalog fetch failed")
		return
	}

	objects, err := catalog.Parse(bytes.NewReader(data), h.logger)
	if err != nil {
		h.logger.Error("catalog parse failed", "component", "api", "error", err)
		writeError(w, http.StatusBadGateway, "catalog parse failed")
		return
	}
	if len(objects) == 0 {
		writeError(w, http.StatusBadGateway, "fetched catalog contains no usable objects")
		return
	}

	now := time.Now().UTC()
	ds := &catalog.Dataset{
		Source:    h.fetcher.SourceURL(),
		FetchedAt: now,
		Objects:   objects,
	}
	h.catalog.Set(ds)
	metrics.SetCatalogObjectCount(len(objects))

	if err := h.disk.Write(data, now); err != nil {
		// The in-memory dataset is already live; snapshot failure is non-fatal.
		h.logger.Warn("writing catalog snapshot failed", "component", "api", "error", err)
	}

	h.logger.Info("catalog refreshed",
		"component", "api",
		"source", ds.Source,
		"objects", len(objects),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"source":     ds.Source,
		"fetched_at": ds.FetchedAt,
		"objects":    len(ds.Objects),
	})
}
