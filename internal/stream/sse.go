// Package stream implements Server-Sent Events (SSE) delivery of sky-map
// synthesis. Clients connect via GET /api/v1/stream/skymap and receive the
// dipole deviation field in ring-ordered pixel batches as it is computed,
// so a renderer can paint the sphere progressively instead of waiting for
// the full map.
//
// SSE message sequence:
//
//	data: {"type":"metadata","nside":16,"pixels":3072,"ordering":"ring",...}\n\n
//	data: {"type":"pixel_batch","start":0,"values":[...]}\n\n
//	...
//	data: {"type":"complete","pixels":3072}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval when no
// batch is flowing.
package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Sheligo88/CosmicBulkMap/internal/dipole"
	"github.com/Sheligo88/CosmicBulkMap/internal/healpix"
	"github.com/Sheligo88/CosmicBulkMap/internal/httputil"
	"github.com/Sheligo88/CosmicBulkMap/internal/metrics"
	"github.com/Sheligo88/CosmicBulkMap/internal/skymap"
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Honor X-Forwarded-For for limiter keys.
}

// Handler manages SSE sky-map streaming connections.
type Handler struct {
	synth   *skymap.Synthesizer
	params  *dipole.Store
	config  Config
	limiter *connLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(synth *skymap.Synthesizer, params *dipole.Store, config Config, logger *slog.Logger) *Handler {
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		synth:   synth,
		params:  params,
		config:  config,
		limiter: newConnLimiter(config.MaxConcurrentPerIP),
		logger:  logger,
	}
}

// HandleSkymap serves the SSE sky-map stream.
// GET /api/v1/stream/skymap?nside=16&chunk=1024
func (h *Handler) HandleSkymap(w http.ResponseWriter, r *http.Request) {
	cfg := h.synth.Config()

	nside := cfg.DefaultNSide
	if v := r.URL.Query().Get("nside"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || !healpix.ValidNSide(n) || n > cfg.MaxNSide {
			writeJSONError(w, http.StatusBadRequest,
				"invalid nside parameter, must be a power of two up to "+strconv.Itoa(cfg.MaxNSide))
			return
		}
		nside = n
	}

	chunk := 1024
	if v := r.URL.Query().Get("chunk"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 64 || n > 8192 {
			writeJSONError(w, http.StatusBadRequest, "invalid chunk parameter, must be 64-8192")
			return
		}
		chunk = n
	}

	// Rate limiting: enforce concurrent stream limit per IP.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		writeJSONError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"nside", nside,
		"chunk", chunk,
	)

	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	// Verify flusher support (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE response headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's default WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}

	params := h.params.Get()
	npix := healpix.NumPixels(nside)

	meta := metadataMessage{
		Type:         "metadata",
		NSide:        nside,
		Pixels:       npix,
		Ordering:     "ring",
		AmplitudeMag: params.Amplitude,
		DipoleLonDeg: params.Direction.LonDeg,
		DipoleLatDeg: params.Direction.LatDeg,
	}
	if err := c.sendJSON(meta); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()

	for start := 0; start < npix; start += chunk {
		select {
		case <-ctx.Done():
			return
		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		default:
		}

		end := start + chunk
		if end > npix {
			end = npix
		}

		values, err := h.synth.EvaluateRange(nside, params, start, end)
		if err != nil {
			metrics.IncStreamErrors("synthesis_error")
			h.logger.Warn("stream synthesis error", "remote_ip", ip, "error", err)
			return
		}

		batch := pixelBatchMessage{
			Type:   "pixel_batch",
			Start:  start,
			Values: values,
		}
		if err := c.sendJSON(batch); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
			return
		}

		// Reset keepalive since we just sent data.
		keepaliveTicker.Reset(h.config.KeepaliveInterval)
	}

	done := completeMessage{Type: "complete", Pixels: npix}
	if err := c.sendJSON(done); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (complete)", "remote_ip", ip, "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// SSE message payload types.

type metadataMessage struct {
	Type         string  `json:"type"`
	NSide        int     `json:"nside"`
	Pixels       int     `json:"pixels"`
	Ordering     string  `json:"ordering"`
	AmplitudeMag float64 `json:"amplitude_mag"`
	DipoleLonDeg float64 `json:"dipole_lon_deg"`
	DipoleLatDeg float64 `json:"dipole_lat_deg"`
}

type pixelBatchMessage struct {
	Type   string    `json:"type"`
	Start  int       `json:"start"`
	Values []float64 `json:"values"`
}

type completeMessage struct {
	Type   string `json:"type"`
	Pixels int    `json:"pixels"`
}
