package main

import (
	"fmt"
	"log"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/predicate"
	"github.com/beetlebugorg/geokit/pkg/transform"
	"github.com/beetlebugorg/geokit/pkg/vector"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

func main() {
	fc, err := vector.Load("streams.shp", vector.LoadOptions{})
	if err != nil {
		log.Fatal(err)
	}

	// Buffering needs metres, so move to the local UTM zone first
	c := fc.Bound().Center()
	utm, err := transform.Reproject(fc, geo.UTMZone(c.X(), c.Y()))
	if err != nil {
		log.Fatal(err)
	}

	simplified, err := transform.SimplifyCollection(utm, 5)
	if err != nil {
		log.Fatal(err)
	}

	var corridors []*geo.Feature
	for _, f := range simplified.Features {
		b, err := transform.BufferFeature(f, 100, transform.BufferOptions{})
		if err != nil {
			log.Fatal(err)
		}
		corridors = append(corridors, b)
	}

	// Dissolve all corridors into one riparian zone
	geoms := make([]orb.Geometry, len(corridors))
	for i, f := range corridors {
		geoms[i] = f.Geometry
	}
	zone := transform.Union(geoms...)

	fmt.Printf("Riparian area: %.1f ha\n", planar.Area(zone)/10000)
	fmt.Printf("Valid: %v\n", predicate.IsValid(zone))

	if p, err := transform.PointOnSurface(zone); err == nil {
		fmt.Printf("Label point: %.1f %.1f\n", p.X(), p.Y())
	}
}
