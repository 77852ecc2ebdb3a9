package main

import (
	"fmt"
	"log"

	"github.com/beetlebugorg/geokit/pkg/predicate"
	"github.com/paulmach/orb"
)

func main() {
	lake := orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}
	shore := orb.LineString{{10, -5}, {10, 15}}
	island := orb.Polygon{{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}}}

	// Full DE-9IM matrix
	im := predicate.Relate(lake, shore)
	fmt.Printf("lake/shore: %s\n", im)
	fmt.Printf("touches pattern: %v\n", im.Matches("FT*******") || im.Matches("F**T*****") || im.Matches("F***T****"))

	// Named predicates by name, as a CLI or config would supply them
	for _, name := range predicate.Names() {
		ok, err := predicate.Evaluate(name, lake, island, 1)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("  lake %s island: %v\n", name, ok)
	}

	// Prepared geometry for repeated point-in-polygon tests
	p := predicate.Prepare(lake)
	for _, pt := range []orb.Point{{5, 5}, {10, 5}, {20, 5}} {
		fmt.Printf("  %v is %s\n", pt, p.Locate(pt))
	}
}
