package main

import (
	"fmt"
	"log"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/vector"
	"github.com/paulmach/orb"
)

func main() {
	// Load a vector file; the format comes from the extension
	fc, err := vector.Load("basins.geojson", vector.LoadOptions{})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("CRS: %s\n", fc.CRS)
	fmt.Printf("Features: %d\n", fc.Len())
	fmt.Printf("Geometry types: %v\n", fc.GeometryTypes())

	// Collection extent
	var b orb.Bound = fc.Bound()
	fmt.Printf("Bounds: [%.4f,%.4f] to [%.4f,%.4f]\n",
		b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y())

	// Save a copy as a GeoPackage in the same CRS
	if err := vector.Save(fc, "basins.gpkg", vector.FormatGeoPackage); err != nil {
		log.Fatal(err)
	}

	if fc.CRS.IsGeographic() {
		fmt.Printf("Units: %s, reproject to %s before measuring\n",
			fc.CRS.Unit(), geo.UTMZone(b.Center().X(), b.Center().Y()))
	}
}
