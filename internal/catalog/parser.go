package catalog

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Sheligo88/CosmicBulkMap/internal/sky"
)

// Parse reads catalog rows from r and returns the parsed objects. The
// format is one object per line:
//
//	name,z,mu,mu_err,lon_deg,lat_deg
//
// Blank lines and lines starting with '#' are ignored. Malformed rows are
// skipped with a warning log rather than failing the whole catalog.
func Parse(r io.Reader, logger *slog.Logger) ([]Object, error) {
	scanner := bufio.NewScanner(r)
	var objects []Object
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		obj, err := parseRow(line)
		if err != nil {
			logger.Warn("skipping malformed catalog row", "line", lineNo, "error", err)
			continue
		}
		objects = append(objects, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading catalog data: %w", err)
	}

	return objects, nil
}

// parseRow parses a single comma-separated catalog row.
func parseRow(line string) (Object, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 6 {
		return Object{}, fmt.Errorf("expected 6 fields, got %d", len(fields))
	}

	name := strings.TrimSpace(fields[0])
	if name == "" {
		return Object{}, fmt.Errorf("empty object name")
	}

	vals := make([]float64, 5)
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Object{}, fmt.Errorf("field %d %q: %w", i+2, f, err)
		}
		vals[i] = v
	}

	z, mu, muErr := vals[0], vals[1], vals[2]
	if z <= 0 {
		return Object{}, fmt.Errorf("redshift %v must be positive", z)
	}
	if muErr < 0 {
		return Object{}, fmt.Errorf("mu_err %v must be non-negative", muErr)
	}

	coord, err := sky.New(vals[3], vals[4])
	if err != nil {
		return Object{}, fmt.Errorf("direction: %w", err)
	}

	return Object{Name: name, Z: z, Mu: mu, MuErr: muErr, Coord: coord}, nil
}
