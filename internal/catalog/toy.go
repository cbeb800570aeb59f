package catalog

import (
	"time"

	"github.com/Sheligo88/CosmicBulkMap/internal/sky"
)

// Toy returns the built-in five-object demonstration dataset. Moduli are
// illustrative values near a Planck-2018 background plus a 0.05 mag dipole
// toward (l=275, b=56); they are not drawn from any real catalog.
func Toy() *Dataset {
	return &Dataset{
		Source:    "builtin:toy",
		FetchedAt: time.Now(),
		Objects: []Object{
			{Name: "SN-TOY-01", Z: 0.010, Mu: 33.29, MuErr: 0.12, Coord: sky.Coord{LonDeg: 280, LatDeg: 50}},
			{Name: "SN-TOY-02", Z: 0.021, Mu: 34.86, MuErr: 0.10, Coord: sky.Coord{LonDeg: 275, LatDeg: -34}},
			{Name: "SN-TOY-03", Z: 0.035, Mu: 36.00, MuErr: 0.11, Coord: sky.Coord{LonDeg: 95, LatDeg: -56}},
			{Name: "SN-TOY-04", Z: 0.049, Mu: 36.79, MuErr: 0.13, Coord: sky.Coord{LonDeg: 120, LatDeg: 10}},
			{Name: "SN-TOY-05", Z: 0.060, Mu: 37.25, MuErr: 0.12, Coord: sky.Coord{LonDeg: 300, LatDeg: 40}},
		},
	}
}
