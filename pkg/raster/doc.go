// Package raster holds georeferenced float64 grids and the operations the
// rest of geokit builds on: GeoTIFF load and save, windowed reads through
// Dataset, crop, mask, tile processing and an LRU cache.
//
// Crop before masking. Crop is cheap and keeps the parent lattice, so
//
//	c, _ := raster.Crop(dem, basin.Bound())
//	m, _ := raster.Mask(c, basin, raster.MaskOptions{})
//
// gives the same cell values as masking dem directly, on fewer cells.
//
// Bands are numbered from 0. Missing values are always the nodata
// sentinel; a NaN sentinel matches NaN cells.
package raster
