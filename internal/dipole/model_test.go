package dipole

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sheligo88/CosmicBulkMap/internal/cosmology"
	"github.com/Sheligo88/CosmicBulkMap/internal/sky"
)

// fixedBackground returns a constant modulus regardless of z, isolating the
// dipole term in exactness tests.
type fixedBackground struct {
	mu float64
}

func (f fixedBackground) DistanceModulus(z float64) (float64, error) {
	return f.mu, nil
}

type failingBackground struct{}

func (failingBackground) DistanceModulus(z float64) (float64, error) {
	return 0, errors.New("background unavailable")
}

func TestPredictModulusAligned(t *testing.T) {
	p := Params{Amplitude: 0.05, Direction: sky.Coord{LonDeg: 275, LatDeg: 56}}
	bg := fixedBackground{mu: 34.0}

	// Target equal to the dipole direction: theta = 0, term = +A exactly.
	got, err := PredictModulus(0.021, p, p.Direction, bg)
	require.NoError(t, err)
	assert.InDelta(t, 34.05, got, 1e-9)
}

func TestPredictModulusOrthogonal(t *testing.T) {
	p := Params{Amplitude: 0.05, Direction: sky.Coord{LonDeg: 275, LatDeg: 56}}
	bg := fixedBackground{mu: 34.0}

	// 90 degrees along the same meridian: term = 0.
	target := sky.Coord{LonDeg: 275, LatDeg: -34}
	got, err := PredictModulus(0.021, p, target, bg)
	require.NoError(t, err)
	assert.InDelta(t, 34.0, got, 1e-9)
}

func TestDeviationAntipode(t *testing.T) {
	p := Params{Amplitude: 0.05, Direction: sky.Coord{LonDeg: 275, LatDeg: 56}}

	// theta = pi yields -A exactly by construction.
	assert.InDelta(t, -0.05, Deviation(p, p.Direction.Antipode()), 1e-12)
}

// TestSignSymmetry: flipping the amplitude sign negates the dipole term for
// every target direction.
func TestSignSymmetry(t *testing.T) {
	dir := sky.Coord{LonDeg: 275, LatDeg: 56}
	pos := Params{Amplitude: 0.05, Direction: dir}
	neg := Params{Amplitude: -0.05, Direction: dir}

	targets := []sky.Coord{
		{LonDeg: 0, LatDeg: 0},
		{LonDeg: 275, LatDeg: 56},
		{LonDeg: 95, LatDeg: -56},
		{LonDeg: 180, LatDeg: 89},
		{LonDeg: 33.3, LatDeg: -41.7},
	}
	for _, target := range targets {
		assert.InDelta(t, -Deviation(neg, target), Deviation(pos, target), 1e-15,
			"target %+v", target)
	}
}

// TestToyScenario: the demo's illustrative fit. At z=0.021 the observed toy
// modulus is 34.86; the model at the fitted toy parameters lands within a
// few hundredths of a magnitude.
func TestToyScenario(t *testing.T) {
	bg, err := cosmology.NewFlatLCDM(67.4, 0.315)
	require.NoError(t, err)

	target := sky.Coord{LonDeg: 275, LatDeg: -34}
	got, err := PredictModulus(0.021, DefaultParams, target, bg)
	require.NoError(t, err)
	assert.InDelta(t, 34.86, got, 0.04)
}

func TestPredictModulusMonotonicInZ(t *testing.T) {
	bg, err := cosmology.NewFlatLCDM(67.4, 0.315)
	require.NoError(t, err)

	target := sky.Coord{LonDeg: 120, LatDeg: 10}
	prev := math.Inf(-1)
	for _, z := range []float64{0.005, 0.01, 0.021, 0.05, 0.1, 0.3, 0.8} {
		mu, err := PredictModulus(z, DefaultParams, target, bg)
		require.NoError(t, err)
		assert.Greater(t, mu, prev, "z=%v", z)
		prev = mu
	}
}

func TestPredictModulusPropagatesBackgroundError(t *testing.T) {
	_, err := PredictModulus(0.021, DefaultParams, sky.Coord{}, failingBackground{})
	assert.Error(t, err)
}

func TestInvalidRedshiftRejected(t *testing.T) {
	bg, err := cosmology.NewFlatLCDM(67.4, 0.315)
	require.NoError(t, err)

	for _, z := range []float64{0, -0.5} {
		_, err := PredictModulus(z, DefaultParams, sky.Coord{}, bg)
		assert.ErrorIs(t, err, cosmology.ErrInvalidRedshift, "z=%v", z)
	}
}

func TestParamsKeyStable(t *testing.T) {
	a := Params{Amplitude: 0.05, Direction: sky.Coord{LonDeg: 275, LatDeg: 56}}
	b := Params{Amplitude: 0.05, Direction: sky.Coord{LonDeg: 275, LatDeg: 56}}
	c := Params{Amplitude: 0.06, Direction: sky.Coord{LonDeg: 275, LatDeg: 56}}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}
