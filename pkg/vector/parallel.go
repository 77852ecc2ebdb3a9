package vector

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/beetlebugorg/geokit/pkg/geo"
)

// LoadAll loads several vector files using a worker pool.
//
// Collections come back in input order. With SkipErrors, files that fail
// are left out and their errors are returned alongside; otherwise the
// first failure is returned alone with no collections.
//
// Example:
//
//	opts := vector.DefaultLoadOptions()
//	opts.Progress = func(loaded, total int) {
//	    fmt.Printf("\rLoading: %d/%d", loaded, total)
//	}
//	layers, errs := vector.LoadAll(paths, opts)
func LoadAll(paths []string, opts LoadOptions) ([]*geo.FeatureCollection, []error) {
	if len(paths) == 0 {
		return []*geo.FeatureCollection{}, nil
	}
	if !opts.Parallel {
		return loadSerial(paths, opts)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	type loadResult struct {
		index int
		fc    *geo.FeatureCollection
		err   error
	}

	jobs := make(chan int, len(paths))
	results := make(chan loadResult, len(paths))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				fc, err := Load(paths[index], opts)
				results <- loadResult{index: index, fc: fc, err: err}
			}
		}()
	}

	for i := range paths {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	log := opts.logger()
	loaded := make(map[int]*geo.FeatureCollection, len(paths))
	failed := make(map[int]error)
	done := 0
	for result := range results {
		done++
		if opts.Progress != nil {
			opts.Progress(done, len(paths))
		}
		if result.err != nil {
			failed[result.index] = fmt.Errorf("%s: %w", paths[result.index], result.err)
			log.Warn().Str("path", paths[result.index]).Err(result.err).Msg("Vector load failed")
			continue
		}
		loaded[result.index] = result.fc
	}

	var errs []error
	for i := range paths {
		if err, ok := failed[i]; ok {
			if !opts.SkipErrors {
				return nil, []error{err}
			}
			errs = append(errs, err)
		}
	}

	out := make([]*geo.FeatureCollection, 0, len(loaded))
	for i := range paths {
		if fc, ok := loaded[i]; ok {
			out = append(out, fc)
		}
	}
	log.Debug().Int("loaded", len(out)).Int("failed", len(errs)).Msg("Vector files loaded")
	return out, errs
}

func loadSerial(paths []string, opts LoadOptions) ([]*geo.FeatureCollection, []error) {
	log := opts.logger()
	out := make([]*geo.FeatureCollection, 0, len(paths))
	var errs []error

	for i, path := range paths {
		fc, err := Load(path, opts)
		if opts.Progress != nil {
			opts.Progress(i+1, len(paths))
		}
		if err != nil {
			err = fmt.Errorf("%s: %w", path, err)
			log.Warn().Str("path", path).Err(err).Msg("Vector load failed")
			if !opts.SkipErrors {
				return nil, []error{err}
			}
			errs = append(errs, err)
			continue
		}
		out = append(out, fc)
	}
	return out, errs
}
