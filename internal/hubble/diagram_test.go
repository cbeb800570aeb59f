package hubble

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sheligo88/CosmicBulkMap/internal/catalog"
	"github.com/Sheligo88/CosmicBulkMap/internal/cosmology"
	"github.com/Sheligo88/CosmicBulkMap/internal/dipole"
	"github.com/Sheligo88/CosmicBulkMap/internal/sky"
)

func testBackground(t *testing.T) cosmology.FlatLCDM {
	t.Helper()
	bg, err := cosmology.NewFlatLCDM(67.4, 0.315)
	require.NoError(t, err)
	return bg
}

func TestDiagramToyDataset(t *testing.T) {
	bg := testBackground(t)
	result := Diagram(catalog.Toy(), dipole.DefaultParams, bg)

	require.Len(t, result.Points, 5)
	assert.Equal(t, 5, result.Summary.Objects)
	assert.Equal(t, 0, result.Summary.Failed)

	for _, pt := range result.Points {
		assert.Empty(t, pt.Error, "object %s", pt.Object.Name)
		// The toy moduli were chosen near the model; residuals stay small.
		assert.Less(t, math.Abs(pt.Residual), 0.15, "object %s residual %v", pt.Object.Name, pt.Residual)
		assert.InDelta(t, pt.Object.Mu-pt.ModelMu, pt.Residual, 1e-12)
	}

	// The demo's reference object: model within a few hundredths of the
	// measured 34.86.
	ref := result.Points[1]
	assert.Equal(t, "SN-TOY-02", ref.Object.Name)
	assert.InDelta(t, 34.86, ref.ModelMu, 0.04)
}

func TestDiagramModelMonotonicAcrossSample(t *testing.T) {
	bg := testBackground(t)
	result := Diagram(catalog.Toy(), dipole.DefaultParams, bg)

	// Toy objects are ordered by redshift; model moduli must increase with
	// z up to the dipole term, which is bounded by the amplitude.
	prev := math.Inf(-1)
	for _, pt := range result.Points {
		assert.Greater(t, pt.ModelMu+dipole.DefaultParams.Amplitude, prev, "object %s", pt.Object.Name)
		prev = pt.ModelMu - dipole.DefaultParams.Amplitude
	}
}

func TestDiagramRecordsPerObjectErrors(t *testing.T) {
	bg := testBackground(t)
	ds := &catalog.Dataset{
		Source:    "test",
		FetchedAt: time.Now(),
		Objects: []catalog.Object{
			{Name: "GOOD", Z: 0.02, Mu: 34.8, MuErr: 0.1, Coord: sky.Coord{LonDeg: 100, LatDeg: 20}},
			// Stored datasets normally never hold z<=0, but a diagram over
			// one must degrade per-object, not abort.
			{Name: "BAD", Z: 0, Mu: 30.0, MuErr: 0.1, Coord: sky.Coord{LonDeg: 0, LatDeg: 0}},
		},
	}

	result := Diagram(ds, dipole.DefaultParams, bg)
	require.Len(t, result.Points, 2)

	assert.Empty(t, result.Points[0].Error)
	assert.NotEmpty(t, result.Points[1].Error)
	assert.Equal(t, 1, result.Summary.Objects)
	assert.Equal(t, 1, result.Summary.Failed)
	assert.Zero(t, result.Summary.StdDev)
}

func TestDiagramEmptyDataset(t *testing.T) {
	bg := testBackground(t)
	result := Diagram(&catalog.Dataset{Source: "empty"}, dipole.DefaultParams, bg)

	assert.Empty(t, result.Points)
	assert.Zero(t, result.Summary.Objects)
	assert.Zero(t, result.Summary.MeanResidual)
}

// TestDiagramSignSymmetry: negating the amplitude mirrors the dipole part
// of every prediction around the isotropic modulus.
func TestDiagramSignSymmetry(t *testing.T) {
	bg := testBackground(t)
	ds := catalog.Toy()

	pos := Diagram(ds, dipole.Params{Amplitude: 0.05, Direction: sky.Coord{LonDeg: 275, LatDeg: 56}}, bg)
	neg := Diagram(ds, dipole.Params{Amplitude: -0.05, Direction: sky.Coord{LonDeg: 275, LatDeg: 56}}, bg)

	for i := range pos.Points {
		isoMu, err := bg.DistanceModulus(ds.Objects[i].Z)
		require.NoError(t, err)
		assert.InDelta(t, pos.Points[i].ModelMu-isoMu, -(neg.Points[i].ModelMu - isoMu), 1e-12,
			"object %s", ds.Objects[i].Name)
	}
}
