// Package geotiff reads and writes the subset of GeoTIFF used by
// pkg/raster: a single strip-organised image with integer or float
// samples, georeferenced by pixel scale and tiepoint (or a non-rotated
// model transformation), an EPSG-coded GeoKey directory and an optional
// GDAL_NODATA tag.
//
// Reading is lazy: Decode parses only the IFD, and ReadWindow decompresses
// just the strips a row range needs.
package geotiff
