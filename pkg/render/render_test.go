package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/raster"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	red   = color.RGBA{R: 255, A: 255}
	black = color.RGBA{A: 255}
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Width, opts.Height, opts.Padding = 100, 100, 10
	opts.Background = white
	opts.Fill = red
	opts.Stroke = black
	opts.StrokeWidth = 2
	return opts
}

func assertColor(t *testing.T, want color.RGBA, img *image.RGBA, x, y int) {
	t.Helper()
	got := img.RGBAAt(x, y)
	near := func(a, b uint8) bool { return math.Abs(float64(a)-float64(b)) <= 2 }
	assert.True(t, near(want.R, got.R) && near(want.G, got.G) && near(want.B, got.B) && near(want.A, got.A),
		"pixel (%d,%d): want %v, got %v", x, y, want, got)
}

func collection(t *testing.T, geoms ...orb.Geometry) *geo.FeatureCollection {
	t.Helper()
	fc := geo.NewFeatureCollection(geo.WGS84)
	for _, g := range geoms {
		require.NoError(t, fc.Add(geo.NewFeature("", g, geo.WGS84)))
	}
	return fc
}

func TestFeaturesPolygon(t *testing.T) {
	shell := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	// Same winding as the shell; the renderer must still punch it out.
	hole := orb.Ring{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}}
	img, err := Features(collection(t, orb.Polygon{shell, hole}), testOptions())
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 100, 100), img.Bounds())
	assertColor(t, white, img, 2, 2)
	assertColor(t, red, img, 30, 30)
	assertColor(t, white, img, 50, 50)
	assertColor(t, black, img, 10, 50)
	assertColor(t, black, img, 89, 50)
}

func TestFeaturesPointsAndLines(t *testing.T) {
	img, err := Features(collection(t, orb.Point{5, 5}), testOptions())
	require.NoError(t, err)
	assertColor(t, red, img, 50, 50)
	assertColor(t, white, img, 60, 50)

	opts := testOptions()
	opts.StrokeWidth = 4
	img, err = Features(collection(t, orb.LineString{{0, 0}, {10, 0}}), opts)
	require.NoError(t, err)
	assertColor(t, black, img, 50, 49)
	assertColor(t, black, img, 50, 50)
	assertColor(t, white, img, 50, 40)

	img, err = Features(geo.NewFeatureCollection(geo.WGS84), opts)
	require.NoError(t, err)
	assertColor(t, white, img, 50, 50)
}

func TestRaster(t *testing.T) {
	r := raster.New(2, 2, 1, raster.GeoTransform{0, 1, 0, 2, 0, -1}, geo.WGS84, -1)
	r.Set(0, 0, 0, 0)
	r.Set(0, 1, 0, 1)
	r.Set(0, 0, 1, 2)
	r.Set(0, 1, 1, -1)

	opts := testOptions()
	opts.Width, opts.Height, opts.Padding = 4, 4, 0
	opts.Palette = []color.RGBA{black, white}
	img, err := Raster(r, 0, opts)
	require.NoError(t, err)

	gray := color.RGBA{R: 128, G: 128, B: 128, A: 255}
	assertColor(t, black, img, 0, 0)
	assertColor(t, black, img, 1, 1)
	assertColor(t, gray, img, 2, 0)
	assertColor(t, white, img, 0, 3)
	// nodata shows the background
	opts.Background = red
	img, err = Raster(r, 0, opts)
	require.NoError(t, err)
	assertColor(t, red, img, 3, 3)
}

func TestRasterErrors(t *testing.T) {
	r := raster.New(2, 2, 1, raster.GeoTransform{0, 1, 0, 2, 0, -1}, geo.WGS84, math.NaN())

	_, err := Raster(r, 1, testOptions())
	assert.Error(t, err)

	opts := testOptions()
	opts.Palette = opts.Palette[:1]
	_, err = Raster(r, 0, opts)
	assert.Error(t, err)

	opts = testOptions()
	opts.Padding = 50
	_, err = Features(geo.NewFeatureCollection(geo.WGS84), opts)
	assert.Error(t, err)

	opts = testOptions()
	opts.Width = 0
	_, err = Raster(r, 0, opts)
	assert.Error(t, err)
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.RGBA
		wantErr bool
	}{
		{"#ff0000", red, false},
		{"#000", black, false},
		{"  #3b82c480 ", color.RGBA{R: 0x3b, G: 0x82, B: 0xc4, A: 0x80}, false},
		{"ffffff", white, false},
		{"#12345", color.RGBA{}, true},
		{"#gggggg", color.RGBA{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWritePNG(t *testing.T) {
	img, err := Features(collection(t, orb.Point{1, 1}), testOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, img))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}
