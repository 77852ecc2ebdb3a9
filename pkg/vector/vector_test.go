package vector

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var utm13 = geo.MustParseCRS("EPSG:32613")

func holed() orb.Polygon {
	return orb.Polygon{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{2, 2}, {2, 4}, {4, 4}, {4, 2}, {2, 2}},
	}
}

func sample(t *testing.T, crs *geo.CRS) *geo.FeatureCollection {
	t.Helper()
	fc := geo.NewFeatureCollection(crs)

	a := geo.NewFeature("a", holed(), crs)
	a.Attributes.Set("name", "north")
	a.Attributes.Set("count", 3)
	a.Attributes.Set("ratio", 0.25)
	a.Attributes.Set("flag", true)
	require.NoError(t, fc.Add(a))

	b := geo.NewFeature("b", orb.Polygon{{{20, 20}, {30, 20}, {30, 30}, {20, 20}}}, crs)
	b.Attributes.Set("name", "south")
	b.Attributes.Set("count", -7)
	b.Attributes.Set("ratio", 1.5)
	require.NoError(t, fc.Add(b))
	return fc
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"geojson", FormatGeoJSON},
		{".json", FormatGeoJSON},
		{"GPKG", FormatGeoPackage},
		{"GeoPackage", FormatGeoPackage},
		{".shp", FormatShapefile},
		{"ESRI Shapefile", FormatShapefile},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseFormat("kml")
	var ufe *geo.UnsupportedFormatError
	assert.True(t, errors.As(err, &ufe))
}

func TestGeoJSONRoundTrip(t *testing.T) {
	fc := sample(t, geo.WGS84)
	path := filepath.Join(t.TempDir(), "layer.geojson")
	require.NoError(t, Save(fc, path, FormatUnknown))

	got, err := Load(path, LoadOptions{})
	require.NoError(t, err)
	require.Equal(t, fc.Len(), got.Len())
	assert.True(t, got.CRS.Equal(geo.WGS84))

	a := got.Features[0]
	assert.Equal(t, "a", a.ID)
	assert.Equal(t, holed(), a.Geometry)
	v, _ := a.Attributes.Get("name")
	assert.Equal(t, "north", v)
	v, _ = a.Attributes.Get("count")
	assert.Equal(t, 3.0, v)
	v, _ = a.Attributes.Get("ratio")
	assert.Equal(t, 0.25, v)
	v, _ = a.Attributes.Get("flag")
	assert.Equal(t, true, v)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"crs"`)
}

func TestGeoJSONCRSMember(t *testing.T) {
	fc := sample(t, utm13)
	path := filepath.Join(t.TempDir(), "layer.geojson")
	require.NoError(t, Save(fc, path, FormatGeoJSON))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "urn:ogc:def:crs:EPSG::32613")

	got, err := Load(path, LoadOptions{})
	require.NoError(t, err)
	assert.True(t, got.CRS.Equal(utm13))
	assert.Equal(t, 32613, got.Features[0].CRS.EPSG())
}

func TestGeoJSONPropertyOrder(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":7,"geometry":{"type":"Point","coordinates":[1,2]},
		 "properties":{"zeta":1,"alpha":"x","mid":null}}]}`

	fc, err := Read(strings.NewReader(doc), FormatGeoJSON, LoadOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, fc.Len())

	f := fc.Features[0]
	assert.Equal(t, "7", f.ID)
	assert.Equal(t, orb.Point{1, 2}, f.Geometry)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, f.Attributes.Keys())

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, fc))
	assert.Contains(t, buf.String(), `"properties":{"zeta":1,"alpha":"x","mid":null}`)

	again, err := Read(&buf, FormatGeoJSON, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, again.Features[0].Attributes.Keys())
	assert.Equal(t, "7", again.Features[0].ID)
}

func TestGeoJSONNullGeometry(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":null,"properties":{}}]}`

	fc, err := Read(strings.NewReader(doc), FormatGeoJSON, LoadOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, fc.Len())
	assert.True(t, geo.IsEmpty(fc.Features[0].Geometry))
}

func TestGeoPackageRoundTrip(t *testing.T) {
	fc := sample(t, utm13)
	require.NoError(t, fc.Add(geo.NewFeature("c", orb.Point{5, 6}, utm13)))

	path := filepath.Join(t.TempDir(), "parcels.gpkg")
	require.NoError(t, Save(fc, path, FormatUnknown))

	got, err := Load(path, LoadOptions{})
	require.NoError(t, err)
	require.Equal(t, fc.Len(), got.Len())
	assert.True(t, got.CRS.Equal(utm13))

	for i, f := range got.Features {
		assert.Equal(t, fc.Features[i].ID, f.ID)
		assert.Equal(t, fc.Features[i].Geometry, f.Geometry)
	}

	a := got.Features[0]
	assert.Equal(t, []string{"name", "count", "ratio", "flag"}, a.Attributes.Keys())
	v, _ := a.Attributes.Get("count")
	assert.Equal(t, int64(3), v)
	v, _ = a.Attributes.Get("ratio")
	assert.Equal(t, 0.25, v)
	v, _ = a.Attributes.Get("flag")
	assert.Equal(t, true, v)

	b := got.Features[1]
	v, ok := b.Attributes.Get("flag")
	assert.True(t, ok)
	assert.Nil(t, v)
	v, _ = b.Attributes.Get("count")
	assert.Equal(t, int64(-7), v)
}

func TestGeoPackageLayer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roads.gpkg")
	require.NoError(t, Save(sample(t, geo.WGS84), path, FormatGeoPackage))

	got, err := Load(path, LoadOptions{Layer: "roads"})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())

	_, err = Load(path, LoadOptions{Layer: "rivers"})
	var fe *geo.FormatError
	assert.True(t, errors.As(err, &fe))
}

func TestGeoPackageBlob(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
	}{
		{"point", orb.Point{1, 2}},
		{"line", orb.LineString{{0, 0}, {1, 1}, {2, 0}}},
		{"polygon", holed()},
		{"multipolygon", orb.MultiPolygon{holed(), {{{20, 20}, {21, 20}, {21, 21}, {20, 20}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := encodeGPKGGeometry(tt.geom, 4326)
			require.NoError(t, err)
			assert.Equal(t, []byte("GP"), blob[:2])
			assert.Equal(t, byte(0x03), blob[3])

			got, err := decodeGPKGGeometry(blob)
			require.NoError(t, err)
			assert.Equal(t, tt.geom, got)
		})
	}

	blob, err := encodeGPKGGeometry(geo.EmptyGeometry(), 4326)
	require.NoError(t, err)
	assert.Equal(t, byte(0x11), blob[3])
	got, err := decodeGPKGGeometry(blob)
	require.NoError(t, err)
	assert.True(t, geo.IsEmpty(got))

	_, err = decodeGPKGGeometry([]byte("XX000000"))
	assert.Error(t, err)
}

func TestShapefileRoundTrip(t *testing.T) {
	fc := sample(t, utm13)
	fc.Features[0].Attributes.Set("population_total", 1200)
	fc.Features[0].Attributes.Set("population_density", 0.5)

	dir := t.TempDir()
	path := filepath.Join(dir, "parcels.shp")
	require.NoError(t, Save(fc, path, FormatUnknown))
	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj"} {
		assert.FileExists(t, filepath.Join(dir, "parcels"+ext))
	}

	got, err := Load(path, LoadOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())
	assert.True(t, got.CRS.Equal(utm13))

	a := got.Features[0]
	assert.Equal(t, "a", a.ID)
	assert.Equal(t, holed(), a.Geometry)
	assert.Equal(t,
		[]string{"name", "count", "ratio", "flag", "population", "populati_1"},
		a.Attributes.Keys())

	v, _ := a.Attributes.Get("name")
	assert.Equal(t, "north", v)
	v, _ = a.Attributes.Get("count")
	assert.Equal(t, int64(3), v)
	v, _ = a.Attributes.Get("ratio")
	assert.InDelta(t, 0.25, v, 1e-9)
	v, _ = a.Attributes.Get("flag")
	assert.Equal(t, true, v)
	v, _ = a.Attributes.Get("population")
	assert.Equal(t, int64(1200), v)

	b := got.Features[1]
	assert.Equal(t, "b", b.ID)
	v, _ = b.Attributes.Get("flag")
	assert.Nil(t, v)
}

func TestShapefileCRS(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zones.shp")
	require.NoError(t, Save(sample(t, utm13), path, FormatShapefile))
	require.NoError(t, os.Remove(filepath.Join(dir, "zones.prj")))

	_, err := Load(path, LoadOptions{})
	var ce *geo.CRSError
	require.True(t, errors.As(err, &ce))

	got, err := Load(path, LoadOptions{DefaultCRS: geo.NAD83})
	require.NoError(t, err)
	assert.True(t, got.CRS.Equal(geo.NAD83))
}

func TestShapefileMixedDimensions(t *testing.T) {
	fc := sample(t, utm13)
	require.NoError(t, fc.Add(geo.NewFeature("p", orb.Point{1, 1}, utm13)))

	err := Save(fc, filepath.Join(t.TempDir(), "mixed.shp"), FormatShapefile)
	var ufe *geo.UnsupportedFormatError
	assert.True(t, errors.As(err, &ufe))
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.geojson")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))

	_, err := Load(bad, LoadOptions{})
	var fe *geo.FormatError
	assert.True(t, errors.As(err, &fe))

	_, err = Load(filepath.Join(dir, "x.kml"), LoadOptions{})
	var ufe *geo.UnsupportedFormatError
	assert.True(t, errors.As(err, &ufe))

	_, err = Read(strings.NewReader(""), FormatShapefile, LoadOptions{})
	assert.True(t, errors.As(err, &ufe))
}

func TestSaveErrors(t *testing.T) {
	dir := t.TempDir()

	err := Save(&geo.FeatureCollection{}, filepath.Join(dir, "a.geojson"), FormatGeoJSON)
	var ce *geo.CRSError
	assert.True(t, errors.As(err, &ce))

	err = Save(sample(t, geo.WGS84), filepath.Join(dir, "a.out"), Format(99))
	var ufe *geo.UnsupportedFormatError
	assert.True(t, errors.As(err, &ufe))
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i, name := range []string{"one.geojson", "bad.geojson", "three.gpkg"} {
		path := filepath.Join(dir, name)
		paths = append(paths, path)
		if name == "bad.geojson" {
			require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))
			continue
		}
		fc := geo.NewFeatureCollection(geo.WGS84)
		for j := 0; j <= i; j++ {
			require.NoError(t, fc.Add(geo.NewFeature("", orb.Point{float64(j), 0}, geo.WGS84)))
		}
		require.NoError(t, Save(fc, path, FormatUnknown))
	}

	for _, parallel := range []bool{false, true} {
		calls := 0
		opts := LoadOptions{Parallel: parallel, Workers: 2, SkipErrors: true, Progress: func(loaded, total int) {
			calls++
			assert.Equal(t, 3, total)
		}}
		fcs, errs := LoadAll(paths, opts)
		require.Len(t, fcs, 2)
		assert.Equal(t, 1, fcs[0].Len())
		assert.Equal(t, 3, fcs[1].Len())
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Error(), "bad.geojson")
		assert.Equal(t, 3, calls)

		opts.SkipErrors = false
		fcs, errs = LoadAll(paths, opts)
		assert.Nil(t, fcs)
		assert.Len(t, errs, 1)
	}

	fcs, errs := LoadAll(nil, DefaultLoadOptions())
	assert.Empty(t, fcs)
	assert.Nil(t, errs)
}
