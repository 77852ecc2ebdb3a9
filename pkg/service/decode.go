package service

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/raster"
	"github.com/beetlebugorg/geokit/pkg/vector"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// featureCollectionSchema is the structural subset of RFC 7946 checked
// before a payload is decoded.
const featureCollectionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type", "features"],
  "properties": {
    "type": {"const": "FeatureCollection"},
    "features": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "geometry"],
        "properties": {
          "type": {"const": "Feature"},
          "id": {"type": ["string", "number"]},
          "properties": {"type": ["object", "null"]},
          "geometry": {
            "oneOf": [
              {"type": "null"},
              {
                "type": "object",
                "required": ["type"],
                "properties": {
                  "type": {"enum": ["Point", "MultiPoint", "LineString", "MultiLineString", "Polygon", "MultiPolygon", "GeometryCollection"]},
                  "coordinates": {"type": "array"},
                  "geometries": {"type": "array"}
                }
              }
            ]
          }
        }
      }
    }
  }
}`

var geojsonSchema = mustSchema(featureCollectionSchema)

func mustSchema(s string) *gojsonschema.Schema {
	sch, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(err)
	}
	return sch
}

// payloadKind maps a media type onto the payload it carries.
func payloadKind(mediaType string) (Kind, bool) {
	switch mediaType {
	case "application/json", "application/geo+json",
		"application/zip", "application/x-zip-compressed":
		return KindFeatures, true
	case "image/tiff", "image/geotiff":
		return KindRaster, true
	}
	return KindAny, false
}

// materialize checks a response body against want and decodes it by media
// type. The kind is checked before anything is decoded and a raster's CRS
// before its cells are read.
func (c *Client) materialize(endpoint, contentType string, body []byte, want Expect) (*Result, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	kind, ok := payloadKind(mediaType)
	if !ok {
		return nil, &geo.UnsupportedFormatError{Op: "fetch " + endpoint, Format: contentType}
	}
	if err := want.checkKind(endpoint, kind); err != nil {
		return nil, err
	}

	res := &Result{Kind: kind, ContentType: mediaType}
	switch {
	case kind == KindRaster:
		d, err := raster.OpenReader(bytes.NewReader(body), endpoint)
		if err != nil {
			return nil, err
		}
		if err := want.checkCRS(endpoint, d.CRS()); err != nil {
			return nil, err
		}
		if res.Raster, err = d.ReadAll(); err != nil {
			return nil, err
		}
	case strings.HasSuffix(mediaType, "zip"):
		if res.Features, err = c.decodeZippedShapefile(body); err != nil {
			return nil, err
		}
	default:
		if res.Features, err = decodeGeoJSON(endpoint, body); err != nil {
			return nil, err
		}
	}

	if err := want.check(endpoint, res); err != nil {
		return nil, err
	}
	return res, nil
}

func decodeGeoJSON(endpoint string, body []byte) (*geo.FeatureCollection, error) {
	result, err := geojsonSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, &geo.FormatError{Op: "fetch", Path: endpoint, Err: errors.Wrap(err, "parse geojson payload")}
	}
	if !result.Valid() {
		e := result.Errors()[0]
		return nil, &geo.SchemaMismatchError{
			Endpoint: endpoint,
			Field:    e.Field(),
			Expected: e.Description(),
			Got:      fmt.Sprint(e.Value()),
		}
	}
	fc, err := vector.Read(bytes.NewReader(body), vector.FormatGeoJSON, vector.LoadOptions{})
	return fc, errors.Wrap(err, "decode geojson payload")
}

func (c *Client) decodeZippedShapefile(body []byte) (*geo.FeatureCollection, error) {
	dir, err := os.MkdirTemp("", "geokit-zip-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	shps, err := unzip(bytes.NewReader(body), int64(len(body)), dir, c.cfg.MaxBodyBytes)
	if err != nil {
		return nil, err
	}
	if len(shps) == 0 {
		return nil, &geo.FormatError{Op: "unpack zip", Err: errors.New("archive holds no .shp file")}
	}
	return vector.Load(shps[0], vector.LoadOptions{})
}

// unzip extracts an archive into dir and returns the .shp files it held,
// sorted. Entries that would land outside dir are rejected, as is more
// than limit bytes of content.
func unzip(r io.ReaderAt, size int64, dir string, limit int64) ([]string, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, &geo.FormatError{Op: "unpack zip", Err: err}
	}

	root := filepath.Clean(dir) + string(os.PathSeparator)
	var shps []string
	var total int64
	for _, f := range zr.File {
		target := filepath.Join(dir, f.Name)
		if !strings.HasPrefix(target, root) {
			return nil, &geo.FormatError{Op: "unpack zip", Path: f.Name, Err: errors.New("entry escapes the archive root")}
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, err
			}
			continue
		}
		n, err := extract(f, target, limit-total)
		if err != nil {
			return nil, errors.Wrapf(err, "unpack %s", f.Name)
		}
		total += n
		if strings.EqualFold(filepath.Ext(target), ".shp") {
			shps = append(shps, target)
		}
	}
	sort.Strings(shps)
	return shps, nil
}

func extract(f *zip.File, target string, limit int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, io.LimitReader(rc, limit+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > limit {
		err = errors.New("archive content exceeds the body limit")
	}
	return n, err
}
