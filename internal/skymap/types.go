package skymap

import (
	"time"

	"github.com/Sheligo88/CosmicBulkMap/internal/dipole"
)

// Map holds the dipole deviation field sampled at every pixel center of a
// ring-ordered HEALPix grid. Values are magnitudes: A*cos(theta) per pixel,
// without the isotropic modulus, since the map visualizes the deviation
// field only.
type Map struct {
	NSide       int
	Params      dipole.Params
	Values      []float64 // one value per ring-ordered pixel
	GeneratedAt time.Time
}

// Mean returns the plain average of the pixel values. Pixels are equal-area
// by construction, so this is the area-weighted sphere average; it vanishes
// for any dipole amplitude and direction.
func (m *Map) Mean() float64 {
	if len(m.Values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range m.Values {
		sum += v
	}
	return sum / float64(len(m.Values))
}

// Config holds synthesis configuration loaded from environment variables.
type Config struct {
	Workers      int // Worker pool size (default: runtime.NumCPU())
	DefaultNSide int // Grid resolution when the request does not specify one
	MaxNSide     int // Upper bound accepted from requests
}
