// Package cosmology provides the isotropic background expansion model: the
// distance modulus of a standard candle at redshift z in a flat Lambda-CDM
// universe parameterized by a Hubble constant and a matter-density fraction.
//
// Distances follow Hogg (1999), "Distance measures in cosmology":
//
//	E(z)  = sqrt(Om0*(1+z)^3 + (1-Om0))          (flat, no radiation)
//	D_C   = (c/H0) * integral_0^z dz'/E(z')      (comoving distance)
//	D_L   = (1+z) * D_C                          (flat-space luminosity distance)
//	mu    = 5*log10(D_L / Mpc) + 25              (distance modulus)
package cosmology

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate/quad"
)

// SpeedOfLightKmS is the speed of light in km/s (exact, SI definition).
const SpeedOfLightKmS = 299792.458

// quadNodes is the Gauss-Legendre node count for the comoving-distance
// integral. E(z) is smooth, so 64 nodes is far beyond float64 accuracy for
// any redshift a supernova sample reaches.
const quadNodes = 64

// ErrInvalidRedshift is returned for z <= 0, where the luminosity distance
// is undefined or degenerate.
var ErrInvalidRedshift = errors.New("redshift must be positive")

// FlatLCDM is a flat Lambda-CDM expansion history. The zero value is not
// usable; construct with NewFlatLCDM.
type FlatLCDM struct {
	H0  float64 // Hubble constant, km/s/Mpc
	Om0 float64 // present-day matter density fraction
}

// NewFlatLCDM validates cosmological parameters and returns the model.
func NewFlatLCDM(h0, om0 float64) (FlatLCDM, error) {
	if h0 <= 0 || math.IsNaN(h0) {
		return FlatLCDM{}, fmt.Errorf("H0 must be positive, got %v", h0)
	}
	if om0 < 0 || om0 > 1 || math.IsNaN(om0) {
		return FlatLCDM{}, fmt.Errorf("Om0 must be in [0, 1], got %v", om0)
	}
	return FlatLCDM{H0: h0, Om0: om0}, nil
}

// HubbleDistanceMpc returns c/H0 in Mpc.
func (m FlatLCDM) HubbleDistanceMpc() float64 {
	return SpeedOfLightKmS / m.H0
}

// efunc is the dimensionless Hubble parameter E(z) = H(z)/H0.
func (m FlatLCDM) efunc(z float64) float64 {
	opz := 1 + z
	return math.Sqrt(m.Om0*opz*opz*opz + (1 - m.Om0))
}

// ComovingDistanceMpc returns the line-of-sight comoving distance to
// redshift z in Mpc.
func (m FlatLCDM) ComovingDistanceMpc(z float64) (float64, error) {
	if z <= 0 || math.IsNaN(z) {
		return 0, fmt.Errorf("comoving distance at z=%v: %w", z, ErrInvalidRedshift)
	}
	integral := quad.Fixed(func(zp float64) float64 {
		return 1 / m.efunc(zp)
	}, 0, z, quadNodes, nil, 0)
	return m.HubbleDistanceMpc() * integral, nil
}

// LuminosityDistanceMpc returns the luminosity distance to redshift z in
// Mpc. In a flat universe D_L = (1+z) * D_C.
func (m FlatLCDM) LuminosityDistanceMpc(z float64) (float64, error) {
	dc, err := m.ComovingDistanceMpc(z)
	if err != nil {
		return 0, err
	}
	return (1 + z) * dc, nil
}

// DistanceModulus returns the isotropic distance modulus mu(z) in
// magnitudes. Strictly increasing in z for z > 0.
func (m FlatLCDM) DistanceModulus(z float64) (float64, error) {
	dl, err := m.LuminosityDistanceMpc(z)
	if err != nil {
		return 0, err
	}
	return 5*math.Log10(dl) + 25, nil
}
