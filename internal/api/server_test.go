package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Sheligo88/CosmicBulkMap/internal/auth"
	"github.com/Sheligo88/CosmicBulkMap/internal/cache"
	"github.com/Sheligo88/CosmicBulkMap/internal/catalog"
	"github.com/Sheligo88/CosmicBulkMap/internal/cosmology"
	"github.com/Sheligo88/CosmicBulkMap/internal/dipole"
	"github.com/Sheligo88/CosmicBulkMap/internal/skymap"
	"github.com/Sheligo88/CosmicBulkMap/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := testLogger()

	bg, err := cosmology.NewFlatLCDM(67.4, 0.315)
	if err != nil {
		t.Fatalf("NewFlatLCDM: %v", err)
	}

	params := dipole.NewStore(dipole.DefaultParams)
	catStore := catalog.NewStore()
	catStore.Set(catalog.Toy())

	synth := skymap.NewSynthesizer(skymap.Config{Workers: 2, DefaultNSide: 4, MaxNSide: 16}, logger)
	maps := cache.NewMapCache(cache.Config{MaxEntries: 4, DefaultNSide: 4}, synth, params, logger)
	streamHandler := stream.NewHandler(synth, params, stream.Config{MaxConcurrentPerIP: 10}, logger)

	return NewServer("127.0.0.1:0", logger, auth.Config{}, bg, params, catStore,
		CatalogConfig{CacheDir: t.TempDir(), MaxFiles: 2}, synth, maps, streamHandler)
}

func doRequest(t *testing.T, srv *Server, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	w := httptest.NewRecorder()
	srv.HTTPServer().Handler.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp
}

func TestModulusEndpoint(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{name: "background only", query: "?z=0.021", wantStatus: http.StatusOK},
		{name: "with target", query: "?z=0.021&lon=275&lat=-34", wantStatus: http.StatusOK},
		{name: "missing z", query: "", wantStatus: http.StatusBadRequest},
		{name: "zero z", query: "?z=0", wantStatus: http.StatusBadRequest},
		{name: "negative z", query: "?z=-0.1", wantStatus: http.StatusBadRequest},
		{name: "lon without lat", query: "?z=0.021&lon=275", wantStatus: http.StatusBadRequest},
		{name: "latitude out of range", query: "?z=0.021&lon=275&lat=95", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, srv, "GET", "/api/v1/model/modulus"+tt.query, nil)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

// TestModulusValues checks the toy scenario: z=0.021 at 90 degrees from the
// dipole direction leaves the background modulus untouched.
func TestModulusValues(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, "GET", "/api/v1/model/modulus?z=0.021&lon=275&lat=-34", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeJSON(t, w)

	muCosmo := resp["mu_cosmo"].(float64)
	muTotal := resp["mu_total"].(float64)
	if math.Abs(muCosmo-34.886) > 0.05 {
		t.Errorf("mu_cosmo = %v, want about 34.886", muCosmo)
	}
	if math.Abs(resp["dipole_mag"].(float64)) > 1e-9 {
		t.Errorf("dipole_mag = %v, want 0 at 90 degrees separation", resp["dipole_mag"])
	}
	if math.Abs(muTotal-muCosmo) > 1e-9 {
		t.Errorf("mu_total = %v, want mu_cosmo %v", muTotal, muCosmo)
	}

	// Aligned with the dipole the deviation is exactly +A.
	w = doRequest(t, srv, "GET", "/api/v1/model/modulus?z=0.021&lon=275&lat=56", nil)
	resp = decodeJSON(t, w)
	if math.Abs(resp["dipole_mag"].(float64)-0.05) > 1e-9 {
		t.Errorf("aligned dipole_mag = %v, want 0.05", resp["dipole_mag"])
	}
}

func TestSkymapEndpoint(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, "GET", "/api/v1/skymap?nside=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeJSON(t, w)

	if resp["ordering"] != "ring" {
		t.Errorf("ordering = %v, want ring", resp["ordering"])
	}
	values := resp["values"].([]any)
	if len(values) != 48 {
		t.Errorf("len(values) = %d, want 48 for nside=2", len(values))
	}
	if mean := resp["mean"].(float64); math.Abs(mean) > 1e-9 {
		t.Errorf("mean = %v, want about 0", mean)
	}

	for _, query := range []string{"?nside=3", "?nside=32", "?nside=abc"} {
		w := doRequest(t, srv, "GET", "/api/v1/skymap"+query, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("query %s: status = %d, want 400", query, w.Code)
		}
	}
}

func TestHubbleEndpoint(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, "GET", "/api/v1/hubble", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeJSON(t, w)

	points := resp["points"].([]any)
	if len(points) != 5 {
		t.Fatalf("len(points) = %d, want 5 toy objects", len(points))
	}
	if int(resp["objects"].(float64)) != 5 {
		t.Errorf("objects = %v, want 5", resp["objects"])
	}
	for _, p := range points {
		pt := p.(map[string]any)
		if r := math.Abs(pt["residual"].(float64)); r > 0.15 {
			t.Errorf("object %v residual = %v, want under 0.15", pt["name"], r)
		}
	}
}

func TestParamsRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, "GET", "/api/v1/params", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", w.Code)
	}
	resp := decodeJSON(t, w)
	if resp["amplitude_mag"].(float64) != 0.05 {
		t.Errorf("amplitude_mag = %v, want default 0.05", resp["amplitude_mag"])
	}

	body := strings.NewReader(`{"amplitude_mag":0.08,"dipole_lon_deg":280,"dipole_lat_deg":40}`)
	w = doRequest(t, srv, "PUT", "/api/v1/params", body)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", w.Code)
	}

	w = doRequest(t, srv, "GET", "/api/v1/params", nil)
	resp = decodeJSON(t, w)
	if resp["amplitude_mag"].(float64) != 0.08 {
		t.Errorf("amplitude_mag after PUT = %v, want 0.08", resp["amplitude_mag"])
	}
	if resp["dipole_lon_deg"].(float64) != 280 {
		t.Errorf("dipole_lon_deg after PUT = %v, want 280", resp["dipole_lon_deg"])
	}

	// Invalid updates are rejected and leave the stored params untouched.
	for _, bad := range []string{
		`{"amplitude_mag":0.05,"dipole_lon_deg":0,"dipole_lat_deg":120}`,
		`not json`,
	} {
		w = doRequest(t, srv, "PUT", "/api/v1/params", strings.NewReader(bad))
		if w.Code != http.StatusBadRequest {
			t.Errorf("PUT %q: status = %d, want 400", bad, w.Code)
		}
	}
	w = doRequest(t, srv, "GET", "/api/v1/params", nil)
	resp = decodeJSON(t, w)
	if resp["amplitude_mag"].(float64) != 0.08 {
		t.Errorf("amplitude_mag after bad PUT = %v, want 0.08", resp["amplitude_mag"])
	}
}

func TestCatalogEndpoints(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, "GET", "/api/v1/catalog/metadata", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metadata status = %d, want 200", w.Code)
	}
	resp := decodeJSON(t, w)
	if int(resp["objects"].(float64)) != 5 {
		t.Errorf("objects = %v, want 5", resp["objects"])
	}
	if resp["source"] != "builtin:toy" {
		t.Errorf("source = %v, want builtin:toy", resp["source"])
	}

	// Fetch is disabled in the test config.
	w = doRequest(t, srv, "POST", "/api/v1/catalog/refresh", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("refresh status = %d, want 409", w.Code)
	}
}

func TestAuthMiddlewareWiring(t *testing.T) {
	logger := testLogger()
	bg, _ := cosmology.NewFlatLCDM(67.4, 0.315)
	params := dipole.NewStore(dipole.DefaultParams)
	catStore := catalog.NewStore()
	catStore.Set(catalog.Toy())
	synth := skymap.NewSynthesizer(skymap.Config{Workers: 1, DefaultNSide: 4, MaxNSide: 16}, logger)
	maps := cache.NewMapCache(cache.Config{MaxEntries: 4, DefaultNSide: 4}, synth, params, logger)
	streamHandler := stream.NewHandler(synth, params, stream.Config{MaxConcurrentPerIP: 10}, logger)

	srv := NewServer("127.0.0.1:0", logger, auth.Config{Enabled: true, Token: "secret"},
		bg, params, catStore, CatalogConfig{CacheDir: t.TempDir(), MaxFiles: 2}, synth, maps, streamHandler)

	// Probes and exempt paths stay open.
	for _, path := range []string{"/healthz", "/readyz", "/api/v1/catalog/metadata", "/api/v1/model/modulus?z=0.021"} {
		w := doRequest(t, srv, "GET", path, nil)
		if w.Code == http.StatusUnauthorized {
			t.Errorf("exempt path %s returned 401", path)
		}
	}

	// Protected paths require the bearer token.
	w := doRequest(t, srv, "GET", "/api/v1/hubble", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated hubble status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest("GET", "/api/v1/hubble", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	srv.HTTPServer().Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated hubble status = %d, want 200", rec.Code)
	}
}

func TestRootEndpoint(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, "GET", "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeJSON(t, w)
	if resp["service"] != "bulkmap" {
		t.Errorf("service = %v, want bulkmap", resp["service"])
	}

	// Unknown paths fall through to 404.
	w = doRequest(t, srv, "GET", "/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", w.Code)
	}
}
