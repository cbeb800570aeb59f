package skymap

import (
	"context"
	"sync"

	"github.com/Sheligo88/CosmicBulkMap/internal/dipole"
)

// chunkSize is the number of pixels per unit of work. Large enough to
// amortize channel traffic, small enough to keep the pool busy at low nside.
const chunkSize = 1024

// fillJob is a unit of work for the worker pool: a half-open pixel range.
// Ranges are disjoint, so workers write to the shared values slice without
// locking.
type fillJob struct {
	start, end int
}

// fill evaluates the deviation field into values using the worker pool.
// Returns the first error encountered (context cancellation or a pixel
// lookup failure).
func (s *Synthesizer) fill(ctx context.Context, nside int, params dipole.Params, values []float64) error {
	npix := len(values)

	jobs := make(chan fillJob, s.config.Workers*2)
	errs := make(chan error, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				chunk, err := s.EvaluateRange(nside, params, job.start, job.end)
				if err != nil {
					select {
					case errs <- err:
					default:
					}
					return
				}
				copy(values[job.start:job.end], chunk)
			}
		}()
	}

	// Feed jobs in a goroutine so slow workers cannot deadlock the feeder.
	go func() {
		defer close(jobs)
		for start := 0; start < npix; start += chunkSize {
			end := start + chunkSize
			if end > npix {
				end = npix
			}
			select {
			case jobs <- fillJob{start: start, end: end}:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(errs)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := <-errs; ok && err != nil {
		return err
	}
	return nil
}
