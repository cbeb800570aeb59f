// Package healpix implements the ring-scheme HEALPix tessellation of the
// sphere: 12*nside^2 equal-area pixels, nside a power of two, indexed along
// iso-latitude rings from the north pole. Only the forward map from pixel
// index to center direction is needed here; pixel queries, nested ordering,
// and rendering stay with external consumers.
//
// Pixel center formulas follow Gorski et al. 2005, ApJ 622, 759 (section
// 4, ring scheme), matching the reference chealpix pix2ang_ring.
package healpix

import (
	"fmt"
	"math"

	"github.com/Sheligo88/CosmicBulkMap/internal/sky"
)

const radToDeg = 180.0 / math.Pi

// ValidNSide reports whether nside is a positive power of two.
func ValidNSide(nside int) bool {
	return nside > 0 && nside&(nside-1) == 0
}

// NumPixels returns the pixel count 12*nside^2.
func NumPixels(nside int) int {
	return 12 * nside * nside
}

// PixelAreaSr returns the solid angle of one pixel in steradians. All
// pixels have equal area by construction.
func PixelAreaSr(nside int) float64 {
	return 4 * math.Pi / float64(NumPixels(nside))
}

// PixelCenter returns the center direction of ring-ordered pixel p on an
// nside grid.
func PixelCenter(nside, p int) (sky.Coord, error) {
	if !ValidNSide(nside) {
		return sky.Coord{}, fmt.Errorf("nside %d is not a power of two", nside)
	}
	npix := NumPixels(nside)
	if p < 0 || p >= npix {
		return sky.Coord{}, fmt.Errorf("pixel %d out of range [0, %d)", p, npix)
	}

	ncap := 2 * nside * (nside - 1) // pixels in the north polar cap
	fact2 := 4.0 / float64(npix)
	fact1 := 2.0 / (3.0 * float64(nside))

	var z, phi float64
	switch {
	case p < ncap: // north polar cap
		iring := (1 + isqrt(1+2*p)) / 2 // ring counted from north pole
		iphi := (p + 1) - 2*iring*(iring-1)
		z = 1.0 - float64(iring*iring)*fact2
		phi = (float64(iphi) - 0.5) * math.Pi / (2.0 * float64(iring))

	case p < npix-ncap: // equatorial belt
		ip := p - ncap
		iring := ip/(4*nside) + nside
		iphi := ip%(4*nside) + 1
		// Rings alternate phase by half a pixel width.
		fodd := 0.5
		if (iring+nside)&1 == 1 {
			fodd = 1.0
		}
		z = float64(2*nside-iring) * fact1
		phi = (float64(iphi) - fodd) * math.Pi / (2.0 * float64(nside))

	default: // south polar cap
		ip := npix - p
		iring := (1 + isqrt(2*ip-1)) / 2 // ring counted from south pole
		iphi := 4*iring + 1 - (ip - 2*iring*(iring-1))
		z = -1.0 + float64(iring*iring)*fact2
		phi = (float64(iphi) - 0.5) * math.Pi / (2.0 * float64(iring))
	}

	return sky.Coord{
		LonDeg: phi * radToDeg,
		LatDeg: math.Asin(z) * radToDeg,
	}, nil
}

// isqrt returns floor(sqrt(v)) for small non-negative v. The float64
// estimate is exact well past any pixel index a valid nside produces, but
// the result is clamped anyway.
func isqrt(v int) int {
	r := int(math.Sqrt(float64(v)))
	for r*r > v {
		r--
	}
	for (r+1)*(r+1) <= v {
		r++
	}
	return r
}
