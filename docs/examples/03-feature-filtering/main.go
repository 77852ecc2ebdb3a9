package main

import (
	"fmt"
	"log"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/table"
	"github.com/beetlebugorg/geokit/pkg/vector"
	"github.com/paulmach/orb/planar"
)

func main() {
	fc, err := vector.Load("parcels.gpkg", vector.LoadOptions{})
	if err != nil {
		log.Fatal(err)
	}

	// Keep polygons larger than one hectare, biggest first
	t := table.NewSpatialTable(fc).
		Filter(func(r table.Row) bool {
			return geo.TypeOf(r.Geometry).Dimension() == 2 && planar.Area(r.Geometry) > 10000
		}).
		Mutate("area", func(r table.Row) any { return planar.Area(r.Geometry) }).
		Arrange("area", true).
		Head(10)

	fmt.Printf("Large parcels: %d\n", t.Len())
	for i := 0; i < t.Len(); i++ {
		r := t.Row(i)
		area, _ := r.Float("area")
		fmt.Printf("  %s  %-20s %10.0f m2\n", r.ID, r.String("owner"), area)
	}

	// Write the selection back out, geometry included
	sel := t.(*table.SpatialTable)
	if err := vector.Save(sel.Collection(), "large.geojson", vector.FormatGeoJSON); err != nil {
		log.Fatal(err)
	}
}
