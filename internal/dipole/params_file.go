package dipole

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Sheligo88/CosmicBulkMap/internal/sky"
)

// paramsFile is the on-disk YAML schema for a dipole parameter set:
//
//	amplitude_mag: 0.05
//	dipole_lon_deg: 275
//	dipole_lat_deg: 56
type paramsFile struct {
	AmplitudeMag float64 `yaml:"amplitude_mag"`
	DipoleLonDeg float64 `yaml:"dipole_lon_deg"`
	DipoleLatDeg float64 `yaml:"dipole_lat_deg"`
}

// LoadParamsFile reads and validates a YAML parameter file.
func LoadParamsFile(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("reading params file: %w", err)
	}

	var pf paramsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return Params{}, fmt.Errorf("parsing params file %s: %w", path, err)
	}

	dir, err := sky.New(pf.DipoleLonDeg, pf.DipoleLatDeg)
	if err != nil {
		return Params{}, fmt.Errorf("params file %s: %w", path, err)
	}

	return Params{Amplitude: pf.AmplitudeMag, Direction: dir}, nil
}
