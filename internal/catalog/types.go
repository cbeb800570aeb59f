package catalog

import (
	"time"

	"github.com/Sheligo88/CosmicBulkMap/internal/sky"
)

// Object is a single standard-candle observation: redshift, measured
// distance modulus with its uncertainty, and a sky direction in the
// Galactic frame.
type Object struct {
	Name  string
	Z     float64
	Mu    float64 // magnitudes
	MuErr float64 // magnitudes
	Coord sky.Coord
}

// Dataset is an immutable snapshot of a loaded catalog.
type Dataset struct {
	Source    string
	FetchedAt time.Time
	Objects   []Object
}
