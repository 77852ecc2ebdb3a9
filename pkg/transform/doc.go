// Package transform produces new geometries from existing ones:
// reprojection, buffering, simplification, set operations, representative
// points and type casts. Inputs are never modified.
//
//	fc, err := transform.Reproject(gauges, geo.MustParseCRS("EPSG:32613"))
//	zone, err := transform.Buffer(river, 250, fc.CRS, transform.BufferOptions{})
//	wet := transform.Intersection(zone, parcels)
//	if geo.IsEmpty(wet) {
//	    // no overlap, not an error
//	}
//
// Polygon set operations are computed with polyclip; results are rebuilt
// into CCW shells with CW holes.
package transform
