// Package zonal aggregates raster cells by vector zones.
//
// By default each cell belongs to at most one zone, the first in the
// collection whose closure covers the cell centre, so zone counts never
// sum past the raster's valid cells. Options.AllTouched switches to the
// every-zone-the-cell-touches rule used for small or thin zones.
//
//	means, err := zonal.Aggregate(dem, basins, zonal.Mean, zonal.Options{})
//
// The raster is read in row tiles. Partial results merge in tile order, so
// parallel and serial runs agree exactly.
package zonal
