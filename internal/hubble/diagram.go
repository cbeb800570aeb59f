// Package hubble assembles the model-vs-data Hubble diagram: for each
// catalog object, the dipole model's expected distance modulus next to the
// measured one, plus a residual summary across the sample.
package hubble

import (
	"gonum.org/v1/gonum/stat"

	"github.com/Sheligo88/CosmicBulkMap/internal/catalog"
	"github.com/Sheligo88/CosmicBulkMap/internal/dipole"
)

// Point pairs one catalog object with the model prediction at its redshift
// and direction. Residual is measured minus model. A failed evaluation
// records Error and leaves the numeric fields zero; one bad object never
// aborts the batch.
type Point struct {
	Object   catalog.Object
	ModelMu  float64
	Residual float64
	Error    string
}

// Summary describes the residual distribution over the evaluated objects.
type Summary struct {
	Objects      int     // objects evaluated successfully
	Failed       int     // objects that could not be evaluated
	MeanResidual float64 // magnitudes
	StdDev       float64 // magnitudes; 0 when fewer than two objects
}

// Result is a complete Hubble diagram for one dataset and parameter set.
type Result struct {
	Points  []Point
	Summary Summary
}

// Diagram evaluates the dipole model at every object of the dataset.
func Diagram(ds *catalog.Dataset, p dipole.Params, bg dipole.BackgroundModel) Result {
	points := make([]Point, 0, len(ds.Objects))
	residuals := make([]float64, 0, len(ds.Objects))
	var failed int

	for _, obj := range ds.Objects {
		mu, err := dipole.PredictModulus(obj.Z, p, obj.Coord, bg)
		if err != nil {
			failed++
			points = append(points, Point{Object: obj, Error: err.Error()})
			continue
		}
		res := obj.Mu - mu
		points = append(points, Point{Object: obj, ModelMu: mu, Residual: res})
		residuals = append(residuals, res)
	}

	summary := Summary{
		Objects: len(residuals),
		Failed:  failed,
	}
	if len(residuals) > 0 {
		summary.MeanResidual = stat.Mean(residuals, nil)
	}
	if len(residuals) > 1 {
		summary.StdDev = stat.StdDev(residuals, nil)
	}

	return Result{Points: points, Summary: summary}
}
