package raster

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/beetlebugorg/geokit/internal/geotiff"
	"github.com/beetlebugorg/geokit/pkg/geo"
)

// Dataset is a GeoTIFF opened for windowed reads. Cell data is read from
// disk one window at a time; call Close when done.
type Dataset struct {
	path   string
	src    io.ReaderAt
	closer io.Closer
	img    *geotiff.Image
	gt     GeoTransform
	crs    *geo.CRS
	nodata float64
}

// Open reads the header of the GeoTIFF at path. A file without a
// GDAL_NODATA tag uses NaN as its nodata sentinel.
func Open(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	d, err := newDataset(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	d.closer = f
	return d, nil
}

func newDataset(src io.ReaderAt, path string) (*Dataset, error) {
	img, err := geotiff.Decode(src)
	if err != nil {
		return nil, &geo.FormatError{Op: "open raster", Path: path, Err: err}
	}
	gt, err := img.Geo.GeoTransform()
	if err != nil {
		return nil, &geo.FormatError{Op: "open raster", Path: path, Err: err}
	}
	if img.Geo.EPSG == 0 {
		return nil, &geo.CRSError{Op: "open raster", CRS: path, Reason: "no EPSG code in GeoKeyDirectory"}
	}
	crs, err := geo.LookupEPSG(img.Geo.EPSG)
	if err != nil {
		return nil, fmt.Errorf("open raster %s: %w", path, err)
	}
	nodata := math.NaN()
	if img.Geo.HasNoData {
		nodata = img.Geo.NoData
	}
	return &Dataset{path: path, src: src, img: img, gt: GeoTransform(gt), crs: crs, nodata: nodata}, nil
}

// Width returns the number of columns.
func (d *Dataset) Width() int { return d.img.Width }

// Height returns the number of rows.
func (d *Dataset) Height() int { return d.img.Height }

// Bands returns the number of bands.
func (d *Dataset) Bands() int { return d.img.SamplesPerPixel }

// CRS returns the coordinate reference system.
func (d *Dataset) CRS() *geo.CRS { return d.crs }

// GeoTransform returns the transform of the full grid.
func (d *Dataset) GeoTransform() GeoTransform { return d.gt }

// NoData returns the nodata sentinel.
func (d *Dataset) NoData() float64 { return d.nodata }

// Tiles splits the grid into windows of at most size by size cells.
func (d *Dataset) Tiles(size int) []Window {
	return tiles(d.img.Width, d.img.Height, size, size)
}

// Read loads the cells of win. Only the strips holding those rows are
// read and decompressed. The result is on the dataset's lattice.
func (d *Dataset) Read(win Window) (*Raster, error) {
	bands, err := d.img.ReadWindow(d.src, win.Col, win.Row, win.Width, win.Height)
	if err != nil {
		return nil, &geo.FormatError{Op: "read raster", Path: d.path, Err: err}
	}
	return &Raster{
		width:   win.Width,
		height:  win.Height,
		data:    bands,
		lattice: d.gt,
		colOff:  win.Col,
		rowOff:  win.Row,
		crs:     d.crs,
		nodata:  d.nodata,
	}, nil
}

// ReadAll loads the whole grid.
func (d *Dataset) ReadAll() (*Raster, error) {
	return d.Read(Window{Width: d.img.Width, Height: d.img.Height})
}

// Close releases the underlying file.
func (d *Dataset) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// Load reads a whole GeoTIFF into memory.
func Load(path string) (*Raster, error) {
	d, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	return d.ReadAll()
}

// OpenReader reads the header of a GeoTIFF held in src. name only labels
// errors. The returned Dataset needs no Close.
func OpenReader(src io.ReaderAt, name string) (*Dataset, error) {
	return newDataset(src, name)
}

// Decode reads a whole GeoTIFF from src. name only labels errors.
func Decode(src io.ReaderAt, name string) (*Raster, error) {
	d, err := OpenReader(src, name)
	if err != nil {
		return nil, err
	}
	return d.ReadAll()
}

// SaveOptions controls GeoTIFF output.
type SaveOptions struct {
	// Compress DEFLATE-compresses every strip.
	Compress bool
}

// Save writes r to path as a float64 GeoTIFF. A partially written file is
// removed on error.
func Save(r *Raster, path string, opts SaveOptions) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	w := bufio.NewWriter(f)
	if err := Encode(w, r, opts); err != nil {
		return fmt.Errorf("save raster %s: %w", path, err)
	}
	return w.Flush()
}

// Encode writes r as a float64 GeoTIFF. The CRS must have an EPSG code.
func Encode(w io.Writer, r *Raster, opts SaveOptions) error {
	if r.crs == nil {
		return &geo.CRSError{Op: "encode raster", Reason: "raster has no CRS"}
	}
	if r.crs.EPSG() == 0 {
		return &geo.CRSError{Op: "encode raster", CRS: r.crs.String(), Reason: "no EPSG code to write"}
	}
	return geotiff.Encode(w, geotiff.Header{
		Width:        r.width,
		Height:       r.height,
		GeoTransform: r.GeoTransform(),
		EPSG:         r.crs.EPSG(),
		Geographic:   r.crs.IsGeographic(),
		NoData:       r.nodata,
		HasNoData:    true,
		Compress:     opts.Compress,
	}, r.data)
}
