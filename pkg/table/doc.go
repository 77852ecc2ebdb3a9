// Package table provides dplyr-style verbs over attribute tables.
//
// A PlainTable holds attribute rows. A SpatialTable wraps a feature
// collection and keeps its geometry through every verb except Drop:
//
//	t := table.NewSpatialTable(parcels)
//	big := t.Filter(func(r table.Row) bool {
//	    v, _ := r.Float("area")
//	    return v > 1000
//	})
//	byZone, err := big.Summarise("zone", table.Count("n"), table.Sum("area", "area"))
//
// Summarise on a SpatialTable dissolves each group into one geometry.
// Join pairs features of two tables by a named spatial predicate.
package table
