// Package geo holds the core data model shared by every geokit package:
// features, feature collections, coordinate reference systems and the
// error taxonomy.
//
// # Features
//
// A Feature pairs an orb geometry with an identifier, a CRS and ordered
// attributes. Coordinates are always relative to the attached CRS:
//
//	f := geo.NewFeature("gauge-1", orb.Point{-105.27, 40.01}, geo.WGS84)
//	f.Attributes.Set("name", "Boulder Creek")
//
//	fc := geo.NewFeatureCollection(geo.WGS84)
//	if err := fc.Add(f); err != nil {
//	    log.Fatal(err) // *geo.CRSError when the CRS differs
//	}
//
// # Coordinate Reference Systems
//
// ParseCRS accepts EPSG codes, PROJ strings and WKT, and all three resolve
// to the same representation:
//
//	utm, _ := geo.ParseCRS("EPSG:32613")
//	same, _ := geo.ParseCRS("+proj=utm +zone=13 +datum=WGS84")
//	utm.Equal(same) // true
//
//	toUTM, err := geo.Transformer(geo.WGS84, utm)
//	if err != nil {
//	    log.Fatal(err) // *geo.ProjectionError when no path exists
//	}
//	p := toUTM(orb.Point{-105.27, 40.01})
//
// # Errors
//
// Every failure mode has its own type (FormatError, CRSError,
// ProjectionError, UnitMismatchError, DisjointExtentError,
// IncompatibleCastError, UnsupportedFormatError, ServiceUnavailableError,
// SchemaMismatchError, CancelledError). Match them with errors.As:
//
//	var crsErr *geo.CRSError
//	if errors.As(err, &crsErr) {
//	    log.Printf("bad CRS in %s: %s", crsErr.Op, crsErr.Reason)
//	}
package geo
