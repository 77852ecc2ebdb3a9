package main

import (
	"bytes"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/raster"
	"github.com/beetlebugorg/geokit/pkg/vector"
	"github.com/jessevdk/go-flags"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var utm13 = geo.MustParseCRS("EPSG:32613")

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{out: &out}
	_, err := newParser(a).ParseArgs(append([]string{"--log-level=error"}, args...))
	return out.String(), err
}

func square(x0, y0, x1, y1 float64) orb.Polygon {
	return orb.Polygon{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
}

// fixtures writes a 4x4 DEM with 30 m cells and two zones covering its
// top-left and bottom-right quarters.
func fixtures(t *testing.T) (dir, dem, zones string) {
	t.Helper()
	dir = t.TempDir()

	r := raster.New(4, 4, 1, raster.GeoTransform{500000, 30, 0, 4000120, 0, -30}, utm13, -9999)
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			r.Set(0, col, row, float64(row*4+col+1))
		}
	}
	dem = filepath.Join(dir, "dem.tif")
	require.NoError(t, raster.Save(r, dem, raster.SaveOptions{}))

	fc := geo.NewFeatureCollection(utm13)
	for _, z := range []struct {
		id   string
		poly orb.Polygon
	}{
		{"z1", square(500000, 4000060, 500060, 4000120)},
		{"z2", square(500060, 4000000, 500120, 4000060)},
	} {
		f := geo.NewFeature(z.id, z.poly, utm13)
		f.Attributes.Set("name", "basin "+z.id)
		require.NoError(t, fc.Add(f))
	}
	zones = filepath.Join(dir, "zones.geojson")
	require.NoError(t, vector.Save(fc, zones, vector.FormatGeoJSON))
	return dir, dem, zones
}

func TestInfo(t *testing.T) {
	_, dem, zones := fixtures(t)

	out, err := run(t, "info", zones)
	require.NoError(t, err)
	assert.Contains(t, out, "features:")
	assert.Contains(t, out, "Polygon")
	assert.Contains(t, out, "name")
	assert.Contains(t, out, "POLYGON")

	out, err = run(t, "info", dem)
	require.NoError(t, err)
	assert.Contains(t, out, "4x4")
	assert.Contains(t, out, "30 -30")
}

func TestZonal(t *testing.T) {
	_, dem, zones := fixtures(t)

	out, err := run(t, "zonal", "-s", "mean", dem, zones)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "mean")
	assert.Contains(t, lines[1], "z1")
	assert.Contains(t, lines[1], "3.5")
	assert.Contains(t, lines[2], "13.5")

	out, err = run(t, "zonal", "--stat=all", dem, zones)
	require.NoError(t, err)
	assert.Contains(t, out, "majority")

	_, err = run(t, "zonal", "-s", "median", dem, zones)
	assert.Error(t, err)
}

func TestCrop(t *testing.T) {
	dir, dem, _ := fixtures(t)
	out := filepath.Join(dir, "crop.tif")

	_, err := run(t, "crop", "-b", "500000,4000060,500060,4000120", dem, out)
	require.NoError(t, err)
	r, err := raster.Load(out)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Width())
	assert.Equal(t, 2, r.Height())
	assert.Equal(t, 1.0, r.At(0, 0, 0))

	_, err = run(t, "crop", "-b", "1,2,3", dem, out)
	assert.Error(t, err)
}

func TestVectorCommands(t *testing.T) {
	dir, _, zones := fixtures(t)

	buffered := filepath.Join(dir, "buffered.gpkg")
	_, err := run(t, "buffer", "-d", "10", zones, buffered)
	require.NoError(t, err)
	fc, err := vector.Load(buffered, vector.LoadOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, fc.Len())
	assert.Greater(t, planar.Area(fc.Features[0].Geometry), 3600.0)

	simplified := filepath.Join(dir, "simplified.shp")
	_, err = run(t, "simplify", "-t", "1", buffered, simplified)
	require.NoError(t, err)
	fc, err = vector.Load(simplified, vector.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, fc.Len())

	wgs := filepath.Join(dir, "wgs84.geojson")
	_, err = run(t, "reproject", "-t", "EPSG:4326", zones, wgs)
	require.NoError(t, err)
	fc, err = vector.Load(wgs, vector.LoadOptions{})
	require.NoError(t, err)
	assert.True(t, fc.CRS.IsGeographic())

	_, err = run(t, "buffer", "-d", "10", wgs, filepath.Join(dir, "bad.geojson"))
	var ume *geo.UnitMismatchError
	assert.ErrorAs(t, err, &ume)

	out, err := run(t, "relate", "-p", "touches", zones, zones)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "touches")

	_, err = run(t, "relate", zones, wgs)
	var crsErr *geo.CRSError
	assert.ErrorAs(t, err, &crsErr)
}

func TestRender(t *testing.T) {
	dir, dem, zones := fixtures(t)

	for _, in := range []string{zones, dem} {
		out := filepath.Join(dir, filepath.Base(in)+".png")
		_, err := run(t, "render", "-W", "200", "-H", "100", in, out)
		require.NoError(t, err)

		f, err := os.Open(out)
		require.NoError(t, err)
		img, err := png.Decode(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, 200, img.Bounds().Dx())
		assert.Equal(t, 100, img.Bounds().Dy())
	}
}

func TestFetch(t *testing.T) {
	dir, _, zones := fixtures(t)
	body, err := os.ReadFile(zones)
	require.NoError(t, err)

	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/geo+json")
		w.Write(body)
	}))
	defer srv.Close()

	out := filepath.Join(dir, "fetched.gpkg")
	_, err = run(t, "fetch", "--id", "z1", "--id", "z2", "--start", "2024-05-01", "-p", "agency:usgs", srv.URL, out)
	require.NoError(t, err)
	assert.Contains(t, query, "ids=z1%2Cz2")
	assert.Contains(t, query, "startDT=2024-05-01")
	assert.Contains(t, query, "agency=usgs")

	fc, err := vector.Load(out, vector.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, fc.Len())

	_, err = run(t, "fetch", "--start", "yesterday", srv.URL, out)
	assert.Error(t, err)
}

func TestFlagErrors(t *testing.T) {
	_, err := run(t, "teleport")
	var fe *flags.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, flags.ErrUnknownCommand, fe.Type)

	_, err = run(t, "reproject", "in.geojson", "out.geojson")
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, flags.ErrRequired, fe.Type)

	_, err = run(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "info", "x.geojson")
	assert.Error(t, err)
}
