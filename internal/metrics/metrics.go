package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkmap_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bulkmap_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	synthesisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bulkmap_synthesis_duration_seconds",
			Help:    "Sky-map synthesis duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	synthesisPixelsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bulkmap_synthesis_pixels_total",
			Help: "Total pixels evaluated by sky-map synthesis.",
		},
	)

	synthesisWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bulkmap_synthesis_workers",
			Help: "Configured synthesis worker pool size.",
		},
	)

	catalogObjects = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bulkmap_catalog_objects",
			Help: "Number of objects in the current catalog dataset.",
		},
	)

	catalogAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bulkmap_catalog_age_seconds",
			Help: "Age of the current catalog dataset in seconds.",
		},
	)

	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bulkmap_map_cache_hits_total",
			Help: "Sky-map cache hits.",
		},
	)

	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bulkmap_map_cache_misses_total",
			Help: "Sky-map cache misses.",
		},
	)

	cacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bulkmap_map_cache_evictions_total",
			Help: "Sky-map cache entries evicted.",
		},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bulkmap_map_cache_entries",
			Help: "Sky-map cache entry count.",
		},
	)

	cacheSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bulkmap_map_cache_size_bytes",
			Help: "Estimated sky-map cache memory footprint in bytes.",
		},
	)

	cacheGracePeriodActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bulkmap_map_cache_grace_period_active",
			Help: "1 while the cache is rebuilding after a parameter change.",
		},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkmap_stream_connections_total",
			Help: "SSE stream connect/disconnect events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bulkmap_streams_active",
			Help: "Currently open SSE streams.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkmap_stream_errors_total",
			Help: "SSE stream errors by reason.",
		},
		[]string{"reason"},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bulkmap_stream_messages_total",
			Help: "SSE data messages sent.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bulkmap_stream_bytes_total",
			Help: "SSE bytes written.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		synthesisDurationSeconds,
		synthesisPixelsTotal,
		synthesisWorkers,
		catalogObjects,
		catalogAgeSeconds,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheEvictionsTotal,
		cacheEntries,
		cacheSizeBytes,
		cacheGracePeriodActive,
		streamConnectionsTotal,
		streamsActive,
		streamErrorsTotal,
		streamMessagesTotal,
		streamBytesTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSynthesis records one sky-map synthesis run.
func RecordSynthesis(d time.Duration, pixels int) {
	synthesisDurationSeconds.Observe(d.Seconds())
	synthesisPixelsTotal.Add(float64(pixels))
}

// SetSynthesisWorkers publishes the configured worker pool size.
func SetSynthesisWorkers(n int) {
	synthesisWorkers.Set(float64(n))
}

// SetCatalogObjectCount publishes the current catalog size.
func SetCatalogObjectCount(n int) {
	catalogObjects.Set(float64(n))
}

// SetCatalogAge publishes the current catalog age in seconds.
func SetCatalogAge(seconds float64) {
	catalogAgeSeconds.Set(seconds)
}

// Cache instrumentation hooks.

func IncCacheHits()             { cacheHitsTotal.Inc() }
func IncCacheMisses()           { cacheMissesTotal.Inc() }
func AddCacheEvictions(n int)   { cacheEvictionsTotal.Add(float64(n)) }
func SetCacheEntries(n int)     { cacheEntries.Set(float64(n)) }
func SetCacheSizeBytes(n int64) { cacheSizeBytes.Set(float64(n)) }

func SetCacheGracePeriodActive(active bool) {
	if active {
		cacheGracePeriodActive.Set(1)
	} else {
		cacheGracePeriodActive.Set(0)
	}
}

// Stream instrumentation hooks.

func IncStreamConnections(event string) { streamConnectionsTotal.WithLabelValues(event).Inc() }
func IncStreamsActive()                 { streamsActive.Inc() }
func DecStreamsActive()                 { streamsActive.Dec() }
func IncStreamErrors(reason string)     { streamErrorsTotal.WithLabelValues(reason).Inc() }
func IncStreamMessages()                { streamMessagesTotal.Inc() }
func AddStreamBytes(n int64)            { streamBytesTotal.Add(float64(n)) }

// knownRoutes are the exact paths the server registers. Anything else is
// collapsed to "other" so scanner traffic cannot inflate label cardinality.
var knownRoutes = map[string]bool{
	"/healthz":                 true,
	"/readyz":                  true,
	"/metrics":                 true,
	"/":                        true,
	"/api/v1/model/modulus":    true,
	"/api/v1/skymap":           true,
	"/api/v1/hubble":           true,
	"/api/v1/params":           true,
	"/api/v1/catalog/metadata": true,
	"/api/v1/catalog/refresh":  true,
	"/api/v1/stream/skymap":    true,
}

// normalizeRoute maps a request path to a bounded metric label.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
