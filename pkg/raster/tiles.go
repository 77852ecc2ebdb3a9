package raster

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// TileFunc computes one output tile from one input tile. The returned
// raster must have the input tile's width, height and band count.
type TileFunc func(tile *Raster) (*Raster, error)

// TileOptions controls ProcessTiles.
type TileOptions struct {
	// Parallel processes tiles on a worker pool.
	Parallel bool

	// Workers bounds the pool. Zero means runtime.NumCPU().
	Workers int

	// Logger receives per-tile debug events. Nil discards them.
	Logger *zerolog.Logger
}

// ProcessTiles applies fn to every size by size tile of r and assembles
// the results into a new raster on r's lattice. Serial and parallel runs
// produce identical output; the first error stops the remaining tiles.
func ProcessTiles(r *Raster, size int, fn TileFunc, opts TileOptions) (*Raster, error) {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	windows := r.Tiles(size)
	results := make([]*Raster, len(windows))

	run := func(i int) error {
		tile, err := r.Subset(windows[i])
		if err != nil {
			return err
		}
		res, err := fn(tile)
		if err != nil {
			return fmt.Errorf("tile %s: %w", windows[i], err)
		}
		if res.width != tile.width || res.height != tile.height || len(res.data) != len(tile.data) {
			return fmt.Errorf("tile %s: result is %dx%dx%d, want %dx%dx%d", windows[i],
				res.width, res.height, len(res.data), tile.width, tile.height, len(tile.data))
		}
		results[i] = res
		log.Debug().
			Str("window", windows[i].String()).
			Int("tile", i).
			Msg("Tile processed")
		return nil
	}

	if opts.Parallel {
		workers := opts.Workers
		if workers <= 0 {
			workers = runtime.NumCPU()
		}
		g, ctx := errgroup.WithContext(context.Background())
		g.SetLimit(workers)
		for i := range windows {
			i := i
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return run(i)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range windows {
			if err := run(i); err != nil {
				return nil, err
			}
		}
	}

	out := newOnLattice(r.width, r.height, len(r.data), r.lattice, r.colOff, r.rowOff, r.crs, r.nodata)
	for i, win := range windows {
		res := results[i]
		for b := range out.data {
			for y := 0; y < win.Height; y++ {
				copy(out.data[b][(win.Row+y)*r.width+win.Col:], res.data[b][y*win.Width:(y+1)*win.Width])
			}
		}
	}
	return out, nil
}
