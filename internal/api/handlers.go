package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/Sheligo88/CosmicBulkMap/internal/cache"
	"github.com/Sheligo88/CosmicBulkMap/internal/catalog"
	"github.com/Sheligo88/CosmicBulkMap/internal/cosmology"
	"github.com/Sheligo88/CosmicBulkMap/internal/dipole"
	"github.com/Sheligo88/CosmicBulkMap/internal/healpix"
	"github.com/Sheligo88/CosmicBulkMap/internal/hubble"
	"github.com/Sheligo88/CosmicBulkMap/internal/sky"
	"github.com/Sheligo88/CosmicBulkMap/internal/skymap"
)

// handlers bundles the request handlers with their shared dependencies.
type handlers struct {
	logger  *slog.Logger
	bg      cosmology.FlatLCDM
	params  *dipole.Store
	catalog *catalog.Store
	catCfg  CatalogConfig
	fetcher *catalog.Fetcher
	disk    *catalog.Cache
	synth   *skymap.Synthesizer
	maps    *cache.MapCache
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handlers) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "bulkmap",
		"endpoints": []string{
			"/api/v1/model/modulus",
			"/api/v1/skymap",
			"/api/v1/hubble",
			"/api/v1/params",
			"/api/v1/catalog/metadata",
			"/api/v1/catalog/refresh",
			"/api/v1/stream/skymap",
		},
	})
}

// modulusResponse is the single-evaluation payload. The dipole fields are
// present only when the request names a sky direction.
type modulusResponse struct {
	Z             float64  `json:"z"`
	MuCosmo       float64  `json:"mu_cosmo"`
	DipoleMag     *float64 `json:"dipole_mag,omitempty"`
	MuTotal       float64  `json:"mu_total"`
	SeparationDeg *float64 `json:"separation_deg,omitempty"`
	AmplitudeMag  float64  `json:"amplitude_mag"`
	DipoleLonDeg  float64  `json:"dipole_lon_deg"`
	DipoleLatDeg  float64  `json:"dipole_lat_deg"`
}

// GET /api/v1/model/modulus?z=0.021&lon=275&lat=-34
func (h *handlers) handleModulus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	z, err := strconv.ParseFloat(q.Get("z"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid z parameter")
		return
	}

	muCosmo, err := h.bg.DistanceModulus(z)
	if err != nil {
		if errors.Is(err, cosmology.ErrInvalidRedshift) {
			writeError(w, http.StatusBadRequest, "redshift must be positive")
			return
		}
		h.logger.Error("distance modulus evaluation failed", "component", "api", "z", z, "error", err)
		writeError(w, http.StatusInternalServerError, "model evaluation failed")
		return
	}

	p := h.params.Get()
	resp := modulusResponse{
		Z:            z,
		MuCosmo:      muCosmo,
		MuTotal:      muCosmo,
		AmplitudeMag: p.Amplitude,
		DipoleLonDeg: p.Direction.LonDeg,
		DipoleLatDeg: p.Direction.LatDeg,
	}

	if q.Has("lon") || q.Has("lat") {
		lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
		lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
		if lonErr != nil || latErr != nil {
			writeError(w, http.StatusBadRequest, "lon and lat must both be given as decimal degrees")
			return
		}
		target, err := sky.New(lon, lat)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		dev := dipole.Deviation(p, target)
		sepDeg := sky.Separation(target, p.Direction) * 180 / math.Pi
		resp.DipoleMag = &dev
		resp.SeparationDeg = &sepDeg
		resp.MuTotal = muCosmo + dev
	}

	writeJSON(w, http.StatusOK, resp)
}

type skymapResponse struct {
	NSide        int       `json:"nside"`
	Pixels       int       `json:"pixels"`
	Ordering     string    `json:"ordering"`
	AmplitudeMag float64   `json:"amplitude_mag"`
	DipoleLonDeg float64   `json:"dipole_lon_deg"`
	DipoleLatDeg float64   `json:"dipole_lat_deg"`
	GeneratedAt  time.Time `json:"generated_at"`
	Mean         float64   `json:"mean"`
	Values       []float64 `json:"values"`
}

// GET /api/v1/skymap?nside=16
func (h *handlers) handleSkymap(w http.ResponseWriter, r *http.Request) {
	cfg := h.synth.Config()

	nside := cfg.DefaultNSide
	if v := r.URL.Query().Get("nside"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || !healpix.ValidNSide(n) || n > cfg.MaxNSide {
			writeError(w, http.StatusBadRequest,
				"invalid nside parameter, must be a power of two up to "+strconv.Itoa(cfg.MaxNSide))
			return
		}
		nside = n
	}

	m, err := h.maps.GetOrSynthesize(r.Context(), nside)
	if err != nil {
		h.logger.Error("sky map synthesis failed", "component", "api", "nside", nside, "error", err)
		writeError(w, http.StatusInternalServerError, "sky map synthesis failed")
		return
	}

	writeJSON(w, http.StatusOK, skymapResponse{
		NSide:        m.NSide,
		Pixels:       len(m.Values),
		Ordering:     "ring",
		AmplitudeMag: m.Params.Amplitude,
		DipoleLonDeg: m.Params.Direction.LonDeg,
		DipoleLatDeg: m.Params.Direction.LatDeg,
		GeneratedAt:  m.GeneratedAt,
		Mean:         m.Mean(),
		Values:       m.Values,
	})
}

type hubblePoint struct {
	Name     string  `json:"name"`
	Z        float64 `json:"z"`
	Mu       float64 `json:"mu"`
	MuErr    float64 `json:"mu_err"`
	LonDeg   float64 `json:"lon_deg"`
	LatDeg   float64 `json:"lat_deg"`
	ModelMu  float64 `json:"model_mu"`
	Residual float64 `json:"residual"`
	Error    string  `json:"error,omitempty"`
}

type hubbleResponse struct {
	Source       string        `json:"source"`
	Points       []hubblePoint `json:"points"`
	Objects      int           `json:"objects"`
	Failed       int           `json:"failed"`
	MeanResidual float64       `json:"mean_residual"`
	StdDev       float64       `json:"std_dev"`
}

// GET /api/v1/hubble
func (h *handlers) handleHubble(w http.ResponseWriter, r *http.Request) {
	ds := h.catalog.Get()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, "no catalog loaded")
		return
	}

	result := hubble.Diagram(ds, h.params.Get(), h.bg)

	points := make([]hubblePoint, len(result.Points))
	for i, pt := range result.Points {
		points[i] = hubblePoint{
			Name:     pt.Object.Name,
			Z:        pt.Object.Z,
			Mu:       pt.Object.Mu,
			MuErr:    pt.Object.MuErr,
			LonDeg:   pt.Object.Coord.LonDeg,
			LatDeg:   pt.Object.Coord.LatDeg,
			ModelMu:  pt.ModelMu,
			Residual: pt.Residual,
			Error:    pt.Error,
		}
	}

	writeJSON(w, http.StatusOK, hubbleResponse{
		Source:       ds.Source,
		Points:       points,
		Objects:      result.Summary.Objects,
		Failed:       result.Summary.Failed,
		MeanResidual: result.Summary.MeanResidual,
		StdDev:       result.Summary.StdDev,
	})
}

type paramsPayload struct {
	AmplitudeMag float64 `json:"amplitude_mag"`
	DipoleLonDeg float64 `json:"dipole_lon_deg"`
	DipoleLatDeg float64 `json:"dipole_lat_deg"`
}

// GET /api/v1/params
func (h *handlers) handleParamsGet(w http.ResponseWriter, r *http.Request) {
	p := h.params.Get()
	writeJSON(w, http.StatusOK, map[string]any{
		"amplitude_mag":  p.Amplitude,
		"dipole_lon_deg": p.Direction.LonDeg,
		"dipole_lat_deg": p.Direction.LatDeg,
		"set_at":         h.params.SetAt(),
	})
}

// PUT /api/v1/params
//
// Replaces the dipole parameter set. Cached maps for the old parameters are
// rebuilt by the cache maintenance loop shortly after.
func (h *handlers) handleParamsPut(w http.ResponseWriter, r *http.Request) {
	var payload paramsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if math.IsNaN(payload.AmplitudeMag) || math.IsInf(payload.AmplitudeMag, 0) {
		writeError(w, http.StatusBadRequest, "amplitude_mag must be finite")
		return
	}
	dir, err := sky.New(payload.DipoleLonDeg, payload.DipoleLatDeg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p := dipole.Params{Amplitude: payload.AmplitudeMag, Direction: dir}
	h.params.Set(p)

	h.logger.Info("dipole parameters updated",
		"component", "api",
		"amplitude_mag", p.Amplitude,
		"dipole_lon_deg", p.Direction.LonDeg,
		"dipole_lat_deg", p.Direction.LatDeg,
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"amplitude_mag":  p.Amplitude,
		"dipole_lon_deg": p.Direction.LonDeg,
		"dipole_lat_deg": p.Direction.LatDeg,
		"set_at":         h.params.SetAt(),
	})
}
