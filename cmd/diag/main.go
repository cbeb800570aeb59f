package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Sheligo88/CosmicBulkMap/internal/catalog"
	"github.com/Sheligo88/CosmicBulkMap/internal/cosmology"
	"github.com/Sheligo88/CosmicBulkMap/internal/dipole"
	"github.com/Sheligo88/CosmicBulkMap/internal/hubble"
	"github.com/Sheligo88/CosmicBulkMap/internal/skymap"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	bg, err := cosmology.NewFlatLCDM(67.4, 0.315)
	if err != nil {
		fmt.Println("ERROR building cosmology:", err)
		os.Exit(1)
	}
	params := dipole.DefaultParams

	ds := catalog.Toy()
	fmt.Printf("Loaded %d catalog objects from %s\n", len(ds.Objects), ds.Source)
	fmt.Printf("Dipole: A=%.3f mag toward (l=%.1f°, b=%.1f°)\n\n",
		params.Amplitude, params.Direction.LonDeg, params.Direction.LatDeg)

	result := hubble.Diagram(ds, params, bg)

	fmt.Printf("%-12s %8s %8s %9s %9s\n", "object", "z", "mu_obs", "mu_model", "residual")
	for _, pt := range result.Points {
		if pt.Error != "" {
			fmt.Printf("%-12s %8.4f %8.3f    ERROR %s\n", pt.Object.Name, pt.Object.Z, pt.Object.Mu, pt.Error)
			continue
		}
		fmt.Printf("%-12s %8.4f %8.3f %9.3f %+9.3f\n",
			pt.Object.Name, pt.Object.Z, pt.Object.Mu, pt.ModelMu, pt.Residual)
	}

	fmt.Printf("\nEvaluated %d objects (%d failed)\n", result.Summary.Objects, result.Summary.Failed)
	fmt.Printf("Mean residual: %+.4f mag, stddev %.4f mag\n", result.Summary.MeanResidual, result.Summary.StdDev)

	// Small deviation map as a sanity check on the synthesis path.
	synth := skymap.NewSynthesizer(skymap.Config{Workers: 4, DefaultNSide: 8, MaxNSide: 64}, logger)
	m, err := synth.Synthesize(context.Background(), 8, params)
	if err != nil {
		fmt.Println("ERROR synthesizing map:", err)
		os.Exit(1)
	}

	minV, maxV := m.Values[0], m.Values[0]
	for _, v := range m.Values[1:] {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	fmt.Printf("\nDeviation map nside=%d: %d pixels, mean=%+.2e, min=%+.4f, max=%+.4f\n",
		m.NSide, len(m.Values), m.Mean(), minV, maxV)
}
