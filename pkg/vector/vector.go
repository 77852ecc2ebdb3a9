package vector

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/rs/zerolog"
)

// Format identifies a vector file format.
type Format int

const (
	// FormatUnknown is the zero Format.
	FormatUnknown Format = iota

	// FormatGeoJSON is RFC 7946 GeoJSON, with the legacy crs member.
	FormatGeoJSON

	// FormatGeoPackage is an OGC GeoPackage SQLite database.
	FormatGeoPackage

	// FormatShapefile is an ESRI shapefile with .shx, .dbf and .prj
	// sidecars.
	FormatShapefile
)

func (f Format) String() string {
	switch f {
	case FormatGeoJSON:
		return "geojson"
	case FormatGeoPackage:
		return "gpkg"
	case FormatShapefile:
		return "shapefile"
	default:
		return "unknown"
	}
}

// Extension returns the canonical file extension, dot included.
func (f Format) Extension() string {
	switch f {
	case FormatGeoJSON:
		return ".geojson"
	case FormatGeoPackage:
		return ".gpkg"
	case FormatShapefile:
		return ".shp"
	default:
		return ""
	}
}

// ParseFormat resolves a format name or file extension, ignoring case.
func ParseFormat(name string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), ".") {
	case "geojson", "json":
		return FormatGeoJSON, nil
	case "gpkg", "geopackage":
		return FormatGeoPackage, nil
	case "shp", "shapefile", "esri shapefile":
		return FormatShapefile, nil
	}
	return FormatUnknown, &geo.UnsupportedFormatError{Op: "parse format", Format: name}
}

// FormatOf returns the format implied by a path's extension.
func FormatOf(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// LoadOptions controls how vector sources are read.
type LoadOptions struct {
	// DefaultCRS is used when a source carries no CRS: a shapefile
	// without .prj or a GeoPackage layer with an undefined srs_id. When
	// nil such sources fail with CRSError. GeoJSON always defaults to
	// CRS84.
	DefaultCRS *geo.CRS

	// Layer names the GeoPackage feature table. Empty selects the first
	// feature table in gpkg_contents.
	Layer string

	// Parallel enables concurrent loading in LoadAll.
	Parallel bool

	// Workers is the number of LoadAll workers. Zero means
	// runtime.NumCPU(). Only used when Parallel is true.
	Workers int

	// SkipErrors makes LoadAll continue past files that fail to load.
	// Failures are collected and returned.
	SkipErrors bool

	// Progress, when set, is called by LoadAll after each file with the
	// number of files processed so far and the total.
	Progress func(loaded, total int)

	// Logger receives LoadAll events. Nil discards them.
	Logger *zerolog.Logger
}

// DefaultLoadOptions returns options for parallel, error-tolerant loading.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Parallel:   true,
		Workers:    runtime.NumCPU(),
		SkipErrors: true,
	}
}

func (o LoadOptions) logger() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}

// Load reads the vector file at path. The format comes from the
// extension.
//
// Unreadable input fails with FormatError and a source whose CRS cannot
// be determined fails with CRSError.
func Load(path string, opts LoadOptions) (*geo.FeatureCollection, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatGeoJSON:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return readGeoJSON(f, path)
	case FormatGeoPackage:
		return loadGeoPackage(path, opts)
	default:
		return loadShapefile(path, opts)
	}
}

// Read decodes a vector payload from r. Shapefiles need their sidecar
// files and cannot be read from a stream; use Load on an extracted copy.
func Read(r io.Reader, format Format, opts LoadOptions) (*geo.FeatureCollection, error) {
	switch format {
	case FormatGeoJSON:
		return readGeoJSON(r, "")
	case FormatGeoPackage:
		tmp, err := os.CreateTemp("", "geokit-*.gpkg")
		if err != nil {
			return nil, err
		}
		defer os.Remove(tmp.Name())
		_, err = io.Copy(tmp, r)
		if cerr := tmp.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("buffer geopackage: %w", err)
		}
		return loadGeoPackage(tmp.Name(), opts)
	default:
		return nil, &geo.UnsupportedFormatError{Op: "read", Format: format.String()}
	}
}

// Save writes fc to path in the given format. FormatUnknown takes the
// format from the extension.
func Save(fc *geo.FeatureCollection, path string, format Format) error {
	if err := fc.RequireCRS("save"); err != nil {
		return err
	}
	if format == FormatUnknown {
		var err error
		if format, err = FormatOf(path); err != nil {
			return err
		}
	}
	switch format {
	case FormatGeoJSON:
		var buf bytes.Buffer
		if err := writeGeoJSON(&buf, fc); err != nil {
			return err
		}
		return os.WriteFile(path, buf.Bytes(), 0o644)
	case FormatGeoPackage:
		return saveGeoPackage(fc, path)
	case FormatShapefile:
		return saveShapefile(fc, path)
	default:
		return &geo.UnsupportedFormatError{Op: "save", Format: format.String()}
	}
}

// Write encodes fc as GeoJSON to w.
func Write(w io.Writer, fc *geo.FeatureCollection) error {
	if err := fc.RequireCRS("write"); err != nil {
		return err
	}
	return writeGeoJSON(w, fc)
}
