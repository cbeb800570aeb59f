// Package skymap synthesizes full-sky dipole deviation maps: for every
// pixel of a HEALPix grid, the dipole term A*cos(theta) toward that pixel's
// center. Each pixel is independent, so the evaluation fans out over a
// fixed worker pool.
package skymap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sheligo88/CosmicBulkMap/internal/dipole"
	"github.com/Sheligo88/CosmicBulkMap/internal/healpix"
	"github.com/Sheligo88/CosmicBulkMap/internal/metrics"
)

// Synthesizer evaluates deviation maps using a fixed worker pool.
type Synthesizer struct {
	config Config
	logger *slog.Logger
}

// NewSynthesizer creates a synthesis orchestrator.
func NewSynthesizer(config Config, logger *slog.Logger) *Synthesizer {
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &Synthesizer{
		config: config,
		logger: logger,
	}
}

// Config returns the synthesizer's configuration.
func (s *Synthesizer) Config() Config {
	return s.config
}

// Synthesize evaluates the deviation field for every pixel of an nside grid
// and returns the assembled map in ring order.
func (s *Synthesizer) Synthesize(ctx context.Context, nside int, params dipole.Params) (*Map, error) {
	if !healpix.ValidNSide(nside) {
		return nil, fmt.Errorf("nside %d is not a power of two", nside)
	}

	npix := healpix.NumPixels(nside)
	values := make([]float64, npix)

	s.logger.Debug("synthesizing sky map",
		"nside", nside,
		"pixels", npix,
		"workers", s.config.Workers,
	)

	start := time.Now()
	if err := s.fill(ctx, nside, params, values); err != nil {
		return nil, err
	}
	duration := time.Since(start)

	metrics.RecordSynthesis(duration, npix)

	s.logger.Debug("synthesis complete",
		"nside", nside,
		"pixels", npix,
		"duration_ms", duration.Milliseconds(),
	)

	return &Map{
		NSide:       nside,
		Params:      params,
		Values:      values,
		GeneratedAt: start,
	}, nil
}

// EvaluateRange computes deviation values for ring-ordered pixels
// [start, end) of an nside grid. Used by the streaming handler to emit the
// map in chunks without materializing it whole.
func (s *Synthesizer) EvaluateRange(nside int, params dipole.Params, start, end int) ([]float64, error) {
	if !healpix.ValidNSide(nside) {
		return nil, fmt.Errorf("nside %d is not a power of two", nside)
	}
	npix := healpix.NumPixels(nside)
	if start < 0 || end > npix || start > end {
		return nil, fmt.Errorf("pixel range [%d, %d) out of bounds for %d pixels", start, end, npix)
	}

	values := make([]float64, end-start)
	for p := start; p < end; p++ {
		center, err := healpix.PixelCenter(nside, p)
		if err != nil {
			return nil, fmt.Errorf("pixel %d: %w", p, err)
		}
		values[p-start] = dipole.Deviation(params, center)
	}
	return values, nil
}
