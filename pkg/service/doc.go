// Package service fetches remote vector and raster resources over HTTP.
//
// A Client retries transient failures with exponential backoff, honours
// context cancellation and validates payloads before decoding them:
//
//	c := service.NewClient(service.DefaultConfig(), service.WithLogger(log.Logger))
//	fc, err := c.FetchFeatures(ctx, "https://example.org/basins", service.Query{
//	    BBox: orb.Bound{Min: orb.Point{-106, 35}, Max: orb.Point{-105, 36}},
//	}, service.Expect{CRS: geo.WGS84})
//
// Responses are decoded by media type: GeoJSON, GeoTIFF or a zipped
// shapefile.
package service
