package main

import (
	"fmt"
	"log"

	"github.com/beetlebugorg/geokit/pkg/raster"
	"github.com/beetlebugorg/geokit/pkg/transform"
	"github.com/beetlebugorg/geokit/pkg/vector"
	"github.com/beetlebugorg/geokit/pkg/zonal"
	"github.com/paulmach/orb"
)

func main() {
	dem, err := raster.Load("dem.tif")
	if err != nil {
		log.Fatal(err)
	}

	basins, err := vector.Load("basins.geojson", vector.LoadOptions{})
	if err != nil {
		log.Fatal(err)
	}

	// Zones must share the raster CRS
	basins, err = transform.Reproject(basins, dem.CRS())
	if err != nil {
		log.Fatal(err)
	}

	// Work only on the cells the basins can touch
	var extent orb.Bound = basins.Bound()
	dem, err = raster.Crop(dem, extent)
	if err != nil {
		log.Fatal(err)
	}

	summaries, err := zonal.Summarize(dem, basins, zonal.Options{Parallel: true})
	if err != nil {
		log.Fatal(err)
	}
	for _, s := range summaries {
		fmt.Printf("%-10s cells=%-6d mean=%8.1f min=%8.1f max=%8.1f\n",
			s.ID, s.Count, s.Mean, s.Min, s.Max)
	}
}
