package raster

import (
	"math"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/predicate"
	"github.com/paulmach/orb"
)

// Crop returns the cells whose boxes overlap bbox. The bbox snaps outward
// to the cell lattice and the result keeps the parent's lattice.
//
// A bbox that only touches the extent along an edge or corner does not
// overlap it and fails with DisjointExtentError.
func Crop(r *Raster, bbox orb.Bound) (*Raster, error) {
	ext := r.Extent()
	if !(bbox.Min[0] < ext.Max[0] && bbox.Max[0] > ext.Min[0] &&
		bbox.Min[1] < ext.Max[1] && bbox.Max[1] > ext.Min[1]) {
		return nil, &geo.DisjointExtentError{Op: "crop", Extent: ext, BBox: bbox}
	}

	gt := r.GeoTransform()
	c0, c1 := snap((bbox.Min[0]-gt[0])/gt[1], (bbox.Max[0]-gt[0])/gt[1], r.width)
	r0, r1 := snap((bbox.Min[1]-gt[3])/gt[5], (bbox.Max[1]-gt[3])/gt[5], r.height)
	if c1 <= c0 || r1 <= r0 {
		return nil, &geo.DisjointExtentError{Op: "crop", Extent: ext, BBox: bbox}
	}
	return r.Subset(Window{Col: c0, Row: r0, Width: c1 - c0, Height: r1 - r0})
}

// snap converts two fractional cell indices to the outward integer range
// clamped to [0, n].
func snap(a, b float64, n int) (lo, hi int) {
	if a > b {
		a, b = b, a
	}
	lo = int(math.Max(0, math.Floor(a)))
	hi = int(math.Min(float64(n), math.Ceil(b)))
	return lo, hi
}

// MaskOptions controls which cells Mask keeps.
type MaskOptions struct {
	// AllTouched keeps every cell whose box intersects the geometry
	// instead of only cells whose centre it covers.
	AllTouched bool

	// Invert keeps the cells outside the geometry.
	Invert bool
}

// Mask returns a copy of r with every cell outside g set to nodata in all
// bands. A cell is inside when g covers its centre, boundary included.
//
// Masking visits every cell, so crop to the geometry's bound first when the
// geometry is small relative to the raster; Clip does both.
func Mask(r *Raster, g orb.Geometry, opts MaskOptions) (*Raster, error) {
	if g == nil {
		g = geo.EmptyGeometry()
	}
	p := predicate.Prepare(g)
	out := r.Clone()
	for row := 0; row < r.height; row++ {
		for col := 0; col < r.width; col++ {
			if Inside(r, p, col, row, opts.AllTouched) != opts.Invert {
				continue
			}
			for b := range out.data {
				out.data[b][row*r.width+col] = r.nodata
			}
		}
	}
	return out, nil
}

// Inside reports whether a cell belongs to the prepared geometry: by its
// centre, or by any part of its box when allTouched is set.
func Inside(r *Raster, p *predicate.Prepared, col, row int, allTouched bool) bool {
	if allTouched {
		return p.IntersectsBound(r.CellBound(col, row))
	}
	return p.Covers(r.CellCenter(col, row))
}

// MaskFeature masks r with a feature's geometry after checking that both
// share a CRS.
func MaskFeature(r *Raster, f *geo.Feature, opts MaskOptions) (*Raster, error) {
	if err := sameCRS("mask", r.crs, f.CRS); err != nil {
		return nil, err
	}
	return Mask(r, f.Geometry, opts)
}

// Clip crops r to the bound of g and masks the result with g. With Invert
// only the outside cells within that bound are kept.
func Clip(r *Raster, g orb.Geometry, opts MaskOptions) (*Raster, error) {
	if geo.IsEmpty(g) {
		return nil, &geo.DisjointExtentError{Op: "clip", Extent: r.Extent()}
	}
	cropped, err := Crop(r, g.Bound())
	if err != nil {
		return nil, err
	}
	return Mask(cropped, g, opts)
}

func sameCRS(op string, a, b *geo.CRS) error {
	switch {
	case a == nil:
		return &geo.CRSError{Op: op, Reason: "raster has no CRS"}
	case b == nil:
		return &geo.CRSError{Op: op, Reason: "geometry has no CRS"}
	case !a.Equal(b):
		return &geo.CRSError{Op: op, CRS: b.String(), Reason: "does not match raster CRS " + a.String()}
	}
	return nil
}
