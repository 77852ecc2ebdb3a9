// Package predicate evaluates spatial predicates on orb geometries using
// the Dimensionally Extended Nine-Intersection Model (DE-9IM).
//
// Relate computes the full matrix; the named predicates test it against
// the standard patterns:
//
//	im := predicate.Relate(parcel, floodZone)
//	fmt.Println(im) // "212101212"
//
//	ok, err := predicate.Evaluate("covered_by", gauge, basin)
//
// Unary checks return a Report rather than a bare boolean so callers can
// see why a geometry failed:
//
//	r := predicate.IsValid(poly)
//	for _, issue := range r.Issues {
//	    fmt.Println(issue.Kind, issue.Location)
//	}
//
// Prepare indexes a geometry once for repeated point and box queries, which
// is how raster masking and zonal statistics test cells.
package predicate
