// Package vector loads and saves feature collections as GeoJSON,
// GeoPackage and ESRI shapefiles.
//
// Every loaded collection carries a CRS. GeoJSON defaults to CRS84 unless
// a legacy crs member names another system. GeoPackage layers take theirs
// from gpkg_spatial_ref_sys and shapefiles from the .prj sidecar; when
// either is missing, LoadOptions.DefaultCRS is used, or the load fails with
// a geo.CRSError.
//
//	fc, err := vector.Load("parcels.gpkg", vector.LoadOptions{})
//	if err != nil {
//	    return err
//	}
//	err = vector.Save(fc, "parcels.geojson", vector.FormatUnknown)
//
// Shapefiles limit field names to ten characters and write the feature ID
// to an "id" column. GeoPackage keeps attribute names whole.
package vector
