package transform

import (
	"math"
	"sort"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Centroid returns the centre of mass of g. For concave or multi-part
// shapes it can fall outside g; use PointOnSurface when the point must be
// on the geometry.
func Centroid(g orb.Geometry) (orb.Point, error) {
	if geo.IsEmpty(g) {
		return orb.Point{}, geo.ErrEmptyGeometry
	}
	c, _ := planar.CentroidArea(geo.Normalize(g))
	return c, nil
}

// PointOnSurface returns a point guaranteed to lie in the interior or on
// the boundary of g.
//
// Polygons use a horizontal scanline placed between vertex ordinates near
// the middle of the bounding box; the midpoint of the widest interior span
// is returned. Lines return a middle vertex or the midpoint of their only
// segment, and points return the first point.
func PointOnSurface(g orb.Geometry) (orb.Point, error) {
	if geo.IsEmpty(g) {
		return orb.Point{}, geo.ErrEmptyGeometry
	}
	p := split(g)
	if len(p.polys) > 0 {
		if pt, ok := polygonInterior(p.polys); ok {
			return pt, nil
		}
		// Zero-area polygons fall back to their vertices.
		return p.polys[0][0][0], nil
	}
	if len(p.lines) > 0 {
		for _, ls := range p.lines {
			switch {
			case len(ls) > 2:
				return ls[len(ls)/2], nil
			case len(ls) == 2:
				return orb.Point{(ls[0][0] + ls[1][0]) / 2, (ls[0][1] + ls[1][1]) / 2}, nil
			case len(ls) == 1:
				return ls[0], nil
			}
		}
	}
	return p.points[0], nil
}

// polygonInterior scans the largest polygon of mp.
func polygonInterior(mp orb.MultiPolygon) (orb.Point, bool) {
	best, bestArea := -1, 0.0
	for i, p := range mp {
		if a := math.Abs(planar.Area(p)); a > bestArea {
			best, bestArea = i, a
		}
	}
	if best < 0 {
		return orb.Point{}, false
	}
	poly := mp[best]

	b := poly.Bound()
	cy := (b.Min[1] + b.Max[1]) / 2

	var ys []float64
	for _, r := range poly {
		for _, v := range r {
			ys = append(ys, v[1])
		}
	}
	sort.Float64s(ys)
	below, above := math.Inf(-1), math.Inf(1)
	for _, y := range ys {
		if y <= cy && y > below {
			below = y
		}
		if y > cy && y < above {
			above = y
		}
	}
	if math.IsInf(below, 0) || math.IsInf(above, 0) {
		return orb.Point{}, false
	}
	scan := (below + above) / 2

	var xs []float64
	for _, r := range poly {
		for i := 0; i+1 < len(r); i++ {
			a, c := r[i], r[i+1]
			if (a[1] > scan) != (c[1] > scan) {
				xs = append(xs, a[0]+(scan-a[1])*(c[0]-a[0])/(c[1]-a[1]))
			}
		}
	}
	sort.Float64s(xs)

	width := -1.0
	var pt orb.Point
	for i := 0; i+1 < len(xs); i += 2 {
		if w := xs[i+1] - xs[i]; w > width {
			width = w
			pt = orb.Point{(xs[i] + xs[i+1]) / 2, scan}
		}
	}
	return pt, width > 0
}
