package main

import (
	"fmt"
	"log"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/vector"
	"github.com/paulmach/orb"
)

func main() {
	fc, err := vector.Load("gauges.geojson", vector.LoadOptions{})
	if err != nil {
		log.Fatal(err)
	}

	// Build an R-tree over the feature bounds
	idx := geo.NewIndex(fc)
	fmt.Printf("Indexed features: %d\n", idx.Size())

	// Define viewport (Albuquerque area)
	viewport := orb.Bound{
		Min: orb.Point{-106.8, 34.9},
		Max: orb.Point{-106.4, 35.3},
	}

	// Query the index for visible features (O(log n))
	visible := idx.Search(viewport)
	fmt.Printf("Visible features: %d\n", len(visible))
	for _, f := range visible {
		fmt.Printf("  %s: %s\n", f.ID, geo.TypeOf(f.Geometry))
	}

	// Five gauges nearest the city centre
	for _, f := range idx.Nearest(orb.Point{-106.65, 35.08}, 5) {
		fmt.Printf("  nearby: %s\n", f.ID)
	}
}
