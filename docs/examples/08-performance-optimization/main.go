package main

import (
	"fmt"
	"log"
	"math"
	"path/filepath"
	"time"

	"github.com/beetlebugorg/geokit/pkg/raster"
	"github.com/beetlebugorg/geokit/pkg/vector"
	"github.com/paulmach/orb"
)

func main() {
	// Load many vector files concurrently
	paths, _ := filepath.Glob("layers/*.geojson")
	opts := vector.DefaultLoadOptions()
	opts.Progress = func(loaded, total int) {
		fmt.Printf("\rLoading: %d/%d", loaded, total)
	}
	start := time.Now()
	layers, errs := vector.LoadAll(paths, opts)
	fmt.Printf("\nLoaded %d layers in %v (%d failed)\n", len(layers), time.Since(start), len(errs))

	var extent orb.Bound
	for i, fc := range layers {
		if i == 0 {
			extent = fc.Bound()
			continue
		}
		extent = extent.Union(fc.Bound())
	}
	fmt.Printf("Combined extent: %v\n", extent)

	// Repeated raster reads hit the cache
	cache := raster.NewCache(256 << 20)
	for i := 0; i < 3; i++ {
		if _, err := cache.Get("dem.tif", func() (*raster.Raster, error) { return raster.Load("dem.tif") }); err != nil {
			log.Fatal(err)
		}
	}
	stats := cache.Stats()
	fmt.Printf("Cache: %d hits, %d misses, %d bytes\n", stats.Hits, stats.Misses, stats.UsedBytes)

	// Relative relief, computed tile by tile on a worker pool
	dem, err := cache.Get("dem.tif", func() (*raster.Raster, error) { return raster.Load("dem.tif") })
	if err != nil {
		log.Fatal(err)
	}
	lo := math.Inf(1)
	for _, v := range dem.Band(0) {
		if !dem.IsNoData(v) && v < lo {
			lo = v
		}
	}
	relief, err := raster.ProcessTiles(dem, 512, func(tile *raster.Raster) (*raster.Raster, error) {
		out := tile.Clone()
		for row := 0; row < tile.Height(); row++ {
			for col := 0; col < tile.Width(); col++ {
				if v := tile.At(0, col, row); !tile.IsNoData(v) {
					out.Set(0, col, row, v-lo)
				}
			}
		}
		return out, nil
	}, raster.TileOptions{Parallel: true})
	if err != nil {
		log.Fatal(err)
	}
	if err := raster.Save(relief, "relief.tif", raster.SaveOptions{Compress: true}); err != nil {
		log.Fatal(err)
	}
}
