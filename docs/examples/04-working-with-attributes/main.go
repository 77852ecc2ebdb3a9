package main

import (
	"fmt"
	"log"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/table"
	"github.com/paulmach/orb"
)

func main() {
	fc := geo.NewFeatureCollection(geo.MustParseCRS("EPSG:4326"))
	wells := []struct {
		id     string
		pt     orb.Point
		county string
		depth  float64
	}{
		{"w1", orb.Point{-106.6, 35.1}, "Bernalillo", 120},
		{"w2", orb.Point{-106.7, 35.2}, "Bernalillo", 95},
		{"w3", orb.Point{-105.9, 35.7}, "Santa Fe", 210},
	}
	for _, w := range wells {
		f := geo.NewFeature(w.id, w.pt, nil)
		f.Attributes.Set("county", w.county)
		f.Attributes.Set("depth", w.depth)
		if err := fc.Add(f); err != nil {
			log.Fatal(err)
		}
	}

	// Attributes keep insertion order
	first := fc.Features[0]
	for _, key := range first.Attributes.Keys() {
		v, _ := first.Attributes.Get(key)
		fmt.Printf("%s = %v\n", key, v)
	}

	// Per-county summary; geometry is unioned per group
	summary, err := table.NewSpatialTable(fc).Summarise("county",
		table.Count("wells"),
		table.Mean("mean_depth", "depth"),
		table.Max("max_depth", "depth"),
	)
	if err != nil {
		log.Fatal(err)
	}
	for i := 0; i < summary.Len(); i++ {
		r := summary.Row(i)
		fmt.Printf("%-12s wells=%v mean=%v max=%v\n",
			r.String("county"), r.Get("wells"), r.Get("mean_depth"), r.Get("max_depth"))
	}
}
