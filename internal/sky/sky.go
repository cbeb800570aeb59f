// Package sky provides value types and great-circle geometry for directions
// on the celestial sphere. Directions are expressed as (longitude, latitude)
// pairs in degrees; the surrounding system uses the Galactic frame by
// convention, but any single consistent spherical frame works.
package sky

import (
	"fmt"
	"math"
)

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)

// Coord is a direction on the sphere. Longitude is normalized to [0, 360),
// latitude must lie in [-90, 90].
type Coord struct {
	LonDeg float64
	LatDeg float64
}

// New validates and normalizes a direction. Longitude is taken modulo 360;
// latitude outside [-90, 90] is an error.
func New(lonDeg, latDeg float64) (Coord, error) {
	if math.IsNaN(lonDeg) || math.IsNaN(latDeg) {
		return Coord{}, fmt.Errorf("direction contains NaN: lon=%v lat=%v", lonDeg, latDeg)
	}
	if latDeg < -90 || latDeg > 90 {
		return Coord{}, fmt.Errorf("latitude %v out of range [-90, 90]", latDeg)
	}
	return Coord{LonDeg: normalizeLon(lonDeg), LatDeg: latDeg}, nil
}

// normalizeLon wraps a longitude into [0, 360).
func normalizeLon(lonDeg float64) float64 {
	lon := math.Mod(lonDeg, 360.0)
	if lon < 0 {
		lon += 360.0
	}
	return lon
}

// Antipode returns the diametrically opposite direction.
func (c Coord) Antipode() Coord {
	return Coord{
		LonDeg: normalizeLon(c.LonDeg + 180.0),
		LatDeg: -c.LatDeg,
	}
}

// Separation returns the great-circle angle between two directions in
// radians, range [0, pi].
//
// Uses the Vincenty formulation (atan2 of cross and dot magnitudes), which
// stays well-conditioned for both nearly-coincident and nearly-antipodal
// directions, unlike the plain acos form.
func Separation(a, b Coord) float64 {
	lat1 := a.LatDeg * degToRad
	lat2 := b.LatDeg * degToRad
	dLon := (b.LonDeg - a.LonDeg) * degToRad

	sinLat1, cosLat1 := math.Sincos(lat1)
	sinLat2, cosLat2 := math.Sincos(lat2)
	sinDLon, cosDLon := math.Sincos(dLon)

	num1 := cosLat2 * sinDLon
	num2 := cosLat1*sinLat2 - sinLat1*cosLat2*cosDLon
	den := sinLat1*sinLat2 + cosLat1*cosLat2*cosDLon

	return math.Atan2(math.Hypot(num1, num2), den)
}

// Vector returns the unit Cartesian vector for the direction
// (x toward lon=0 on the equator, z toward the north pole).
func (c Coord) Vector() [3]float64 {
	sinLat, cosLat := math.Sincos(c.LatDeg * degToRad)
	sinLon, cosLon := math.Sincos(c.LonDeg * degToRad)
	return [3]float64{cosLat * cosLon, cosLat * sinLon, sinLat}
}
