package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/transform"
	"github.com/beetlebugorg/geokit/pkg/vector"
	"github.com/paulmach/orb"
)

func safeLoad(path string) (*geo.FeatureCollection, error) {
	fc, err := vector.Load(path, vector.LoadOptions{})
	if err != nil {
		// Check if file exists
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("vector file not found: %s", path)
		}

		var fe *geo.FormatError
		var ce *geo.CRSError
		var ue *geo.UnsupportedFormatError
		switch {
		case errors.As(err, &ue):
			log.Printf("Unsupported format %s: %v", path, err)
		case errors.As(err, &ce):
			// Retry assuming WGS 84 for shapefiles without a .prj
			return vector.Load(path, vector.LoadOptions{DefaultCRS: geo.WGS84})
		case errors.As(err, &fe):
			log.Printf("Failed to parse %s: %v", path, err)
		}
		return nil, err
	}

	if fc.Len() == 0 {
		log.Printf("Warning: %s contains no features", path)
	}
	return fc, nil
}

func main() {
	fc, err := safeLoad("roads.shp")
	if err != nil {
		log.Printf("Error: %v", err)
		return
	}
	fmt.Printf("Successfully loaded %d features in %s\n", fc.Len(), fc.CRS)

	// Buffering degrees is refused
	_, err = transform.Buffer(orb.Point{-106.6, 35.1}, 100, geo.WGS84, transform.BufferOptions{})
	var um *geo.UnitMismatchError
	if errors.As(err, &um) {
		log.Printf("Expected error: %v", err)
	}

	// Try to load a file that does not exist
	if _, err := safeLoad("missing.geojson"); err != nil {
		log.Printf("Expected error: %v", err)
	}
}
