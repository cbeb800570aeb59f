// Package dipole implements the dipolar anisotropy model for supernova
// distance moduli: the modulus expected at redshift z in direction d is the
// isotropic background modulus plus A*cos(theta), where theta is the
// great-circle angle between d and the dipole direction. A coherent bulk
// flow of the local sample produces exactly this signature.
//
// The amplitude and direction are fixed toy constants, not the output of any
// estimation procedure. The rigorous parameter search (a Bayesian MCMC fit,
// with an amplitude that decays with redshift) is future work and is neither
// implemented nor stubbed here.
package dipole

import (
	"fmt"
	"math"

	"github.com/Sheligo88/CosmicBulkMap/internal/sky"
)

// BackgroundModel supplies the isotropic distance modulus at redshift z.
type BackgroundModel interface {
	DistanceModulus(z float64) (float64, error)
}

// Params holds the dipole amplitude (magnitudes, sign flips the phase) and
// the direction of maximum deviation.
type Params struct {
	Amplitude float64
	Direction sky.Coord
}

// DefaultParams are the illustrative fitted values used by the demo.
var DefaultParams = Params{
	Amplitude: 0.05,
	Direction: sky.Coord{LonDeg: 275, LatDeg: 56},
}

// Deviation returns the dipole term A*cos(theta) alone, the quantity the
// sky map visualizes. Pure and total: poles and the anti-dipole point are
// regular inputs.
func Deviation(p Params, target sky.Coord) float64 {
	return p.Amplitude * math.Cos(sky.Separation(target, p.Direction))
}

// PredictModulus returns the expected distance modulus at redshift z in the
// target direction: mu_cosmo(z) + A*cos(theta). Background-model errors
// propagate unchanged.
func PredictModulus(z float64, p Params, target sky.Coord, bg BackgroundModel) (float64, error) {
	mu, err := bg.DistanceModulus(z)
	if err != nil {
		return 0, err
	}
	return mu + Deviation(p, target), nil
}

// Key returns a stable cache-key fragment for the parameter set.
func (p Params) Key() string {
	return fmt.Sprintf("a=%.6f|l=%.4f|b=%.4f", p.Amplitude, p.Direction.LonDeg, p.Direction.LatDeg)
}
