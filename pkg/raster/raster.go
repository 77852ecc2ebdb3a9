package raster

import (
	"fmt"
	"math"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/paulmach/orb"
)

// GeoTransform is the six-term affine transform in GDAL order:
// origin x, pixel width, row rotation, origin y, column rotation, pixel
// height. Pixel height is negative for north-up grids. Rotation terms are
// always zero in this package.
type GeoTransform [6]float64

// PixelWidth returns the cell size along x.
func (gt GeoTransform) PixelWidth() float64 { return gt[1] }

// PixelHeight returns the cell size along y, negative for north-up grids.
func (gt GeoTransform) PixelHeight() float64 { return gt[5] }

// Rotated reports whether the transform has rotation or shear terms.
func (gt GeoTransform) Rotated() bool { return gt[2] != 0 || gt[4] != 0 }

// Window is a rectangular block of cells.
type Window struct {
	Col    int
	Row    int
	Width  int
	Height int
}

func (w Window) String() string {
	return fmt.Sprintf("%d,%d %dx%d", w.Col, w.Row, w.Width, w.Height)
}

// Raster is a layered grid of float64 cells stored band by band in
// row-major order.
//
// Every raster sits on a lattice: the origin and cell size of the grid it
// was loaded from, plus an integer cell offset. Crops and windowed reads
// keep the parent lattice and only change the offset, so a cell has the
// same centre coordinates, bit for bit, in the parent and in every subset.
type Raster struct {
	width, height int
	data          [][]float64

	lattice        GeoTransform
	colOff, rowOff int

	crs    *geo.CRS
	nodata float64
}

// New returns a raster with every cell set to nodata.
//
// New panics on non-positive dimensions, a zero cell size or a rotated
// transform.
func New(width, height, bands int, gt GeoTransform, crs *geo.CRS, nodata float64) *Raster {
	if width <= 0 || height <= 0 || bands <= 0 {
		panic(fmt.Sprintf("raster: bad dimensions %dx%dx%d", width, height, bands))
	}
	if gt[1] == 0 || gt[5] == 0 || gt.Rotated() {
		panic(fmt.Sprintf("raster: unsupported geotransform %v", gt))
	}
	return newOnLattice(width, height, bands, gt, 0, 0, crs, nodata)
}

func newOnLattice(width, height, bands int, lattice GeoTransform, colOff, rowOff int, crs *geo.CRS, nodata float64) *Raster {
	r := &Raster{
		width:   width,
		height:  height,
		data:    make([][]float64, bands),
		lattice: lattice,
		colOff:  colOff,
		rowOff:  rowOff,
		crs:     crs,
		nodata:  nodata,
	}
	for b := range r.data {
		band := make([]float64, width*height)
		for i := range band {
			band[i] = nodata
		}
		r.data[b] = band
	}
	return r
}

// Width returns the number of columns.
func (r *Raster) Width() int { return r.width }

// Height returns the number of rows.
func (r *Raster) Height() int { return r.height }

// Bands returns the number of bands.
func (r *Raster) Bands() int { return len(r.data) }

// CRS returns the coordinate reference system.
func (r *Raster) CRS() *geo.CRS { return r.crs }

// NoData returns the nodata sentinel.
func (r *Raster) NoData() float64 { return r.nodata }

// IsNoData reports whether v is the nodata sentinel. A NaN sentinel
// matches NaN values.
func (r *Raster) IsNoData(v float64) bool {
	if math.IsNaN(r.nodata) {
		return math.IsNaN(v)
	}
	return v == r.nodata
}

// At returns the value of a cell. Bands are numbered from 0.
func (r *Raster) At(band, col, row int) float64 {
	return r.data[band][row*r.width+col]
}

// Set stores a cell value.
func (r *Raster) Set(band, col, row int, v float64) {
	r.data[band][row*r.width+col] = v
}

// Band returns a copy of one band in row-major order.
func (r *Raster) Band(band int) []float64 {
	return append([]float64(nil), r.data[band]...)
}

// GeoTransform returns the transform of this raster's top-left cell.
func (r *Raster) GeoTransform() GeoTransform {
	gt := r.lattice
	gt[0] = r.xEdge(0)
	gt[3] = r.yEdge(0)
	return gt
}

func (r *Raster) xEdge(col int) float64 {
	return r.lattice[0] + float64(r.colOff+col)*r.lattice[1]
}

func (r *Raster) yEdge(row int) float64 {
	return r.lattice[3] + float64(r.rowOff+row)*r.lattice[5]
}

// CellCenter returns the coordinates of a cell centre.
func (r *Raster) CellCenter(col, row int) orb.Point {
	return orb.Point{
		r.lattice[0] + (float64(r.colOff+col)+0.5)*r.lattice[1],
		r.lattice[3] + (float64(r.rowOff+row)+0.5)*r.lattice[5],
	}
}

// CellBound returns the box covered by a cell.
func (r *Raster) CellBound(col, row int) orb.Bound {
	return boundOf(r.xEdge(col), r.yEdge(row), r.xEdge(col+1), r.yEdge(row+1))
}

// Extent returns the box covered by the whole grid.
func (r *Raster) Extent() orb.Bound {
	return boundOf(r.xEdge(0), r.yEdge(0), r.xEdge(r.width), r.yEdge(r.height))
}

// CellAt returns the cell containing p. Points on a shared cell edge go to
// the cell with the larger index.
func (r *Raster) CellAt(p orb.Point) (col, row int, ok bool) {
	fc := (p[0]-r.lattice[0])/r.lattice[1] - float64(r.colOff)
	fr := (p[1]-r.lattice[3])/r.lattice[5] - float64(r.rowOff)
	if math.IsNaN(fc) || math.IsNaN(fr) {
		return 0, 0, false
	}
	col, row = int(math.Floor(fc)), int(math.Floor(fr))
	if col < 0 || row < 0 || col >= r.width || row >= r.height {
		return 0, 0, false
	}
	return col, row, true
}

// Clone returns a deep copy on the same lattice.
func (r *Raster) Clone() *Raster {
	out := *r
	out.data = make([][]float64, len(r.data))
	for b := range r.data {
		out.data[b] = append([]float64(nil), r.data[b]...)
	}
	return &out
}

// Subset copies the cells of win into a new raster on the same lattice.
func (r *Raster) Subset(win Window) (*Raster, error) {
	if win.Col < 0 || win.Row < 0 || win.Width <= 0 || win.Height <= 0 ||
		win.Col+win.Width > r.width || win.Row+win.Height > r.height {
		return nil, fmt.Errorf("window %s outside %dx%d raster", win, r.width, r.height)
	}
	out := &Raster{
		width:   win.Width,
		height:  win.Height,
		data:    make([][]float64, len(r.data)),
		lattice: r.lattice,
		colOff:  r.colOff + win.Col,
		rowOff:  r.rowOff + win.Row,
		crs:     r.crs,
		nodata:  r.nodata,
	}
	for b, src := range r.data {
		dst := make([]float64, 0, win.Width*win.Height)
		for y := win.Row; y < win.Row+win.Height; y++ {
			dst = append(dst, src[y*r.width+win.Col:y*r.width+win.Col+win.Width]...)
		}
		out.data[b] = dst
	}
	return out, nil
}

// Tiles splits the grid into windows of at most size by size cells,
// row by row.
func (r *Raster) Tiles(size int) []Window {
	return tiles(r.width, r.height, size, size)
}

// RowTiles splits the grid into full-width windows of at most rows rows.
func (r *Raster) RowTiles(rows int) []Window {
	return tiles(r.width, r.height, r.width, rows)
}

func tiles(width, height, tw, th int) []Window {
	if tw <= 0 {
		tw = width
	}
	if th <= 0 {
		th = height
	}
	var out []Window
	for row := 0; row < height; row += th {
		for col := 0; col < width; col += tw {
			out = append(out, Window{
				Col:    col,
				Row:    row,
				Width:  min(tw, width-col),
				Height: min(th, height-row),
			})
		}
	}
	return out
}

// ValidCount returns the number of cells in band that are not nodata.
func (r *Raster) ValidCount(band int) int {
	n := 0
	for _, v := range r.data[band] {
		if !r.IsNoData(v) {
			n++
		}
	}
	return n
}

func boundOf(x0, y0, x1, y1 float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Min(x0, x1), math.Min(y0, y1)},
		Max: orb.Point{math.Max(x0, x1), math.Max(y0, y1)},
	}
}
