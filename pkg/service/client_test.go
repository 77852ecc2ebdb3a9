package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/raster"
	"github.com/beetlebugorg/geokit/pkg/vector"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const basins = `{"type":"FeatureCollection","features":[
 {"type":"Feature","id":"b1","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},"properties":{"name":"upper"}},
 {"type":"Feature","id":"b2","geometry":{"type":"Polygon","coordinates":[[[2,2],[3,2],[3,3],[2,2]]]},"properties":{"name":"lower"}}]}`

func fastConfig() Config {
	return Config{
		Timeout:         5 * time.Second,
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		UserAgent:       "geokit-test",
	}
}

func serve(contentType string, body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Write(body)
	}
}

func TestFetchFeatures(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		serve("application/geo+json; charset=utf-8", []byte(basins))(w, r)
	}))
	defer srv.Close()

	c := NewClient(fastConfig())
	q := Query{
		BBox:   orb.Bound{Min: orb.Point{-106.5, 35}, Max: orb.Point{-105, 36.25}},
		IDs:    []string{"08313000", "08317400"},
		Start:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Limit:  10,
		Params: map[string][]string{"format": {"geojson"}},
	}
	res, err := c.Fetch(context.Background(), srv.URL+"/basins?agency=usgs", q, Expect{
		CRS:           geo.WGS84,
		GeometryTypes: []geo.GeometryType{geo.GeometryTypePolygon},
	})
	require.NoError(t, err)
	assert.Equal(t, KindFeatures, res.Kind)
	assert.Equal(t, "application/geo+json", res.ContentType)
	assert.Equal(t, 1, res.Attempts)
	require.Equal(t, 2, res.Features.Len())
	assert.Equal(t, "b1", res.Features.Features[0].ID)

	require.NotNil(t, got)
	assert.Equal(t, "/basins", got.URL.Path)
	params := got.URL.Query()
	assert.Equal(t, "usgs", params.Get("agency"))
	assert.Equal(t, "-106.5,35,-105,36.25", params.Get("bbox"))
	assert.Equal(t, "08313000,08317400", params.Get("ids"))
	assert.Equal(t, "2024-01-01", params.Get("startDT"))
	assert.Equal(t, "", params.Get("endDT"))
	assert.Equal(t, "10", params.Get("limit"))
	assert.Equal(t, "geojson", params.Get("format"))
	assert.Equal(t, "geokit-test", got.Header.Get("User-Agent"))
	assert.Equal(t, res.RequestID, got.Header.Get("X-Request-ID"))
	assert.NotEmpty(t, res.RequestID)
}

func TestFetchPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.ParseForm() != nil || r.PostForm.Get("ids") != "a" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		serve("application/json", []byte(basins))(w, r)
	}))
	defer srv.Close()

	fc, err := NewClient(fastConfig()).FetchFeatures(context.Background(), srv.URL, Query{IDs: []string{"a"}, Method: "post"}, Expect{})
	require.NoError(t, err)
	assert.Equal(t, 2, fc.Len())
}

func TestFetchRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			serve("application/json", []byte(basins))(w, r)
		}
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	c := NewClient(fastConfig(), WithMetrics(reg))
	res, err := c.Fetch(context.Background(), srv.URL, Query{}, Expect{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), calls.Load())

	label := srv.Listener.Addr().String()
	assert.Equal(t, 2.0, testutil.ToFloat64(c.metrics.retries.WithLabelValues(label)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.metrics.requests.WithLabelValues(label, "http_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.requests.WithLabelValues(label, "ok")))

	// A second client on the same registry shares the collectors.
	c2 := NewClient(fastConfig(), WithMetrics(reg))
	assert.NoError(t, c2.err)
}

func TestFetchUnavailable(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		attempts int
	}{
		{"server error exhausts retries", http.StatusInternalServerError, 4},
		{"not found is permanent", http.StatusNotFound, 1},
		{"bad request is permanent", http.StatusBadRequest, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewClient(fastConfig()).Fetch(context.Background(), srv.URL, Query{}, Expect{})
			var sue *geo.ServiceUnavailableError
			require.True(t, errors.As(err, &sue), "got %v", err)
			assert.Equal(t, tt.attempts, sue.Attempts)
			assert.Equal(t, int32(tt.attempts), calls.Load())
		})
	}
}

func TestFetchNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := fastConfig()
	cfg.MaxRetries = 1
	_, err := NewClient(cfg).Fetch(context.Background(), url, Query{}, Expect{})
	var sue *geo.ServiceUnavailableError
	require.True(t, errors.As(err, &sue))
	assert.Equal(t, 2, sue.Attempts)
}

func TestFetchCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := NewClient(fastConfig()).Fetch(ctx, srv.URL, Query{}, Expect{})
	assert.Nil(t, res)
	var ce *geo.CancelledError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestFetchSchemaMismatch(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		want  Expect
		field string
	}{
		{"not a collection", `{"type":"Feature","geometry":null}`, Expect{}, ""},
		{"bad geometry type", `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Circle"}}]}`, Expect{}, ""},
		{"crs", basins, Expect{CRS: geo.WebMercator}, "crs"},
		{"geometry type", basins, Expect{GeometryTypes: []geo.GeometryType{geo.GeometryTypePoint}}, "geometry type"},
		{"kind", basins, Expect{Kind: KindRaster}, "kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(serve("application/json", []byte(tt.body)))
			defer srv.Close()

			_, err := NewClient(fastConfig()).Fetch(context.Background(), srv.URL, Query{}, tt.want)
			var sme *geo.SchemaMismatchError
			require.True(t, errors.As(err, &sme), "got %v", err)
			if tt.field != "" {
				assert.Equal(t, tt.field, sme.Field)
			}
		})
	}
}

func TestFetchRaster(t *testing.T) {
	r := raster.New(3, 2, 1, raster.GeoTransform{500000, 30, 0, 4000000, 0, -30}, geo.MustParseCRS("EPSG:32613"), -9999)
	r.Set(0, 1, 1, 42)
	var buf bytes.Buffer
	require.NoError(t, raster.Encode(&buf, r, raster.SaveOptions{Compress: true}))

	srv := httptest.NewServer(serve("image/tiff", buf.Bytes()))
	defer srv.Close()

	got, err := NewClient(fastConfig()).FetchRaster(context.Background(), srv.URL, Query{}, Expect{})
	require.NoError(t, err)
	assert.Equal(t, 3, got.Width())
	assert.Equal(t, 42.0, got.At(0, 1, 1))
	assert.Equal(t, 32613, got.CRS().EPSG())
}

// patchTIFF overwrites first-IFD tags of a little-endian TIFF with LONG
// values.
func patchTIFF(data []byte, tags map[uint16]uint32) []byte {
	le := binary.LittleEndian
	off := int(le.Uint32(data[4:]))
	for i := 0; i < int(le.Uint16(data[off:])); i++ {
		e := data[off+2+12*i:]
		if v, ok := tags[le.Uint16(e)]; ok {
			le.PutUint16(e[2:], 4)
			le.PutUint32(e[4:], 1)
			le.PutUint32(e[8:], v)
		}
	}
	return data
}

func TestFetchChecksBeforeDecoding(t *testing.T) {
	r := raster.New(1, 1, 1, raster.GeoTransform{0, 1, 0, 1, 0, -1}, geo.WGS84, -9999)
	var buf bytes.Buffer
	require.NoError(t, raster.Encode(&buf, r, raster.SaveOptions{}))
	// Strip data past the end of the body: only reading cells can fail.
	unreadable := patchTIFF(bytes.Clone(buf.Bytes()), map[uint16]uint32{273: 0xFFFFFF00})
	huge := patchTIFF(bytes.Clone(buf.Bytes()), map[uint16]uint32{256: 0xFFFFFFFF, 257: 0xFFFFFFFF, 278: 0xFFFFFFFF})

	tests := []struct {
		name  string
		body  []byte
		want  Expect
		field string
	}{
		{"features wanted", huge, Expect{Kind: KindFeatures}, "kind"},
		{"crs from header", unreadable, Expect{CRS: geo.WebMercator}, "crs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(serve("image/tiff", tt.body))
			defer srv.Close()

			_, err := NewClient(fastConfig()).Fetch(context.Background(), srv.URL, Query{}, tt.want)
			var sme *geo.SchemaMismatchError
			require.True(t, errors.As(err, &sme), "got %v", err)
			assert.Equal(t, tt.field, sme.Field)
		})
	}

	srv := httptest.NewServer(serve("image/tiff", huge))
	defer srv.Close()
	_, err := NewClient(fastConfig()).FetchRaster(context.Background(), srv.URL, Query{}, Expect{})
	var fe *geo.FormatError
	assert.True(t, errors.As(err, &fe), "got %v", err)

	srv2 := httptest.NewServer(serve("image/tiff", unreadable))
	defer srv2.Close()
	_, err = NewClient(fastConfig()).FetchRaster(context.Background(), srv2.URL, Query{}, Expect{CRS: geo.WGS84})
	assert.True(t, errors.As(err, &fe), "got %v", err)
}

func zipDir(t *testing.T, dir string, names map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, src := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		f, err := os.Open(filepath.Join(dir, src))
		require.NoError(t, err)
		_, err = io.Copy(w, f)
		f.Close()
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFetchZippedShapefile(t *testing.T) {
	dir := t.TempDir()
	fc := geo.NewFeatureCollection(geo.NAD83)
	require.NoError(t, fc.Add(geo.NewFeature("g1", orb.Point{-105.9, 35.7}, geo.NAD83)))
	require.NoError(t, fc.Add(geo.NewFeature("g2", orb.Point{-106.1, 35.1}, geo.NAD83)))
	require.NoError(t, vector.Save(fc, filepath.Join(dir, "gauges.shp"), vector.FormatShapefile))

	files := map[string]string{}
	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj"} {
		files["data/gauges"+ext] = "gauges" + ext
	}
	srv := httptest.NewServer(serve("application/zip", zipDir(t, dir, files)))
	defer srv.Close()

	got, err := NewClient(fastConfig()).FetchFeatures(context.Background(), srv.URL, Query{}, Expect{CRS: geo.NAD83})
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, "g2", got.Features[1].ID)

	evil := zipDir(t, dir, map[string]string{"../escape.shp": "gauges.shp"})
	srv2 := httptest.NewServer(serve("application/zip", evil))
	defer srv2.Close()

	_, err = NewClient(fastConfig()).Fetch(context.Background(), srv2.URL, Query{}, Expect{})
	var fe *geo.FormatError
	assert.True(t, errors.As(err, &fe), "got %v", err)
}

func TestFetchRejects(t *testing.T) {
	srv := httptest.NewServer(serve("text/html", []byte("<html></html>")))
	defer srv.Close()

	_, err := NewClient(fastConfig()).Fetch(context.Background(), srv.URL, Query{}, Expect{})
	var ufe *geo.UnsupportedFormatError
	assert.True(t, errors.As(err, &ufe))

	big := httptest.NewServer(serve("application/json", []byte(basins)))
	defer big.Close()

	cfg := fastConfig()
	cfg.MaxBodyBytes = 16
	_, err = NewClient(cfg).Fetch(context.Background(), big.URL, Query{}, Expect{})
	var sue *geo.ServiceUnavailableError
	assert.True(t, errors.As(err, &sue))

	_, err = NewClient(fastConfig()).Fetch(context.Background(), big.URL, Query{Method: "DELETE"}, Expect{})
	assert.Error(t, err)
}
