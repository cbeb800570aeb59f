package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Sheligo88/CosmicBulkMap/internal/auth"
	"github.com/Sheligo88/CosmicBulkMap/internal/cache"
	"github.com/Sheligo88/CosmicBulkMap/internal/catalog"
	"github.com/Sheligo88/CosmicBulkMap/internal/cosmology"
	"github.com/Sheligo88/CosmicBulkMap/internal/dipole"
	"github.com/Sheligo88/CosmicBulkMap/internal/health"
	"github.com/Sheligo88/CosmicBulkMap/internal/metrics"
	"github.com/Sheligo88/CosmicBulkMap/internal/skymap"
	"github.com/Sheligo88/CosmicBulkMap/internal/stream"
)

// CatalogConfig controls how the refresh endpoint sources catalog data.
type CatalogConfig struct {
	EnableFetch bool          // When false, refresh requests are rejected.
	SourceURL   string        // Catalog CSV endpoint.
	CacheDir    string        // Directory for timestamped catalog snapshots.
	MaxFiles    int           // Snapshot files kept on disk.
	MaxAge      time.Duration // Snapshots older than this are ignored at startup.
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server with all routes registered.
func NewServer(
	addr string,
	logger *slog.Logger,
	authCfg auth.Config,
	bg cosmology.FlatLCDM,
	params *dipole.Store,
	catStore *catalog.Store,
	catCfg CatalogConfig,
	synth *skymap.Synthesizer,
	maps *cache.MapCache,
	streamHandler *stream.Handler,
) *Server {
	h := &handlers{
		logger:  logger,
		bg:      bg,
		params:  params,
		catalog: catStore,
		catCfg:  catCfg,
		fetcher: catalog.NewFetcher(catCfg.SourceURL, logger),
		disk:    catalog.NewCache(catCfg.CacheDir, catCfg.MaxFiles),
		synth:   synth,
		maps:    maps,
	}

	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /{$}", h.handleRoot)
	mux.HandleFunc("GET /api/v1/model/modulus", h.handleModulus)
	mux.HandleFunc("GET /api/v1/skymap", h.handleSkymap)
	mux.HandleFunc("GET /api/v1/hubble", h.handleHubble)
	mux.HandleFunc("GET /api/v1/params", h.handleParamsGet)
	mux.HandleFunc("PUT /api/v1/params", h.handleParamsPut)
	mux.HandleFunc("GET /api/v1/catalog/metadata", h.handleCatalogMetadata)
	mux.HandleFunc("POST /api/v1/catalog/refresh", h.handleCatalogRefresh)
	mux.HandleFunc("GET /api/v1/stream/skymap", streamHandler.HandleSkymap)

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      0, // SSE streams manage their own deadlines.
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
