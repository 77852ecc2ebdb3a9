package transform

import (
	"fmt"
	"math"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/ctessum/polyclip-go"
	"github.com/paulmach/orb"
)

// BufferOptions controls buffer construction.
type BufferOptions struct {
	// QuadrantSegments is the number of segments approximating a quarter
	// circle at vertices and points. Zero means 8.
	QuadrantSegments int
}

// Buffer returns the region within distance of g, expressed in the linear
// unit of crs.
//
// A geographic crs fails with UnitMismatchError: buffering degrees is
// meaningless, so reproject first. A positive distance grows the geometry
// and the result always covers g. A negative distance erodes polygons and
// yields the empty sentinel for points and lines.
func Buffer(g orb.Geometry, distance float64, crs *geo.CRS, opts BufferOptions) (orb.Geometry, error) {
	if crs == nil {
		return nil, &geo.CRSError{Op: "buffer", Reason: "geometry has no CRS"}
	}
	if crs.IsGeographic() {
		return nil, &geo.UnitMismatchError{Op: "buffer", CRS: crs.String(), Unit: crs.Unit()}
	}
	if math.IsNaN(distance) || math.IsInf(distance, 0) {
		return nil, fmt.Errorf("buffer: distance must be finite, got %v", distance)
	}
	if geo.IsEmpty(g) {
		return geo.EmptyGeometry(), nil
	}

	quad := opts.QuadrantSegments
	if quad <= 0 {
		quad = 8
	}

	p := split(g)
	switch {
	case distance == 0:
		return polygonal(cloneMulti(p.polys)), nil
	case distance < 0:
		return polygonal(erode(p.polys, -distance, quad)), nil
	}

	var pieces []orb.MultiPolygon
	for _, poly := range p.polys {
		pieces = append(pieces, orb.MultiPolygon{poly.Clone()})
		for _, r := range poly {
			pieces = append(pieces, strokeRing(r, distance, quad)...)
		}
	}
	for _, ls := range p.lines {
		pieces = append(pieces, stroke(ls, distance, quad)...)
	}
	for _, pt := range p.points {
		pieces = append(pieces, orb.MultiPolygon{{disc(pt, distance, quad)}})
	}

	var out orb.MultiPolygon
	for _, piece := range pieces {
		out = clip(polyclip.UNION, out, piece)
	}
	return polygonal(out), nil
}

// BufferFeature buffers a feature's geometry in the feature's CRS and
// returns a new feature.
func BufferFeature(f *geo.Feature, distance float64, opts BufferOptions) (*geo.Feature, error) {
	g, err := Buffer(f.Geometry, distance, f.CRS, opts)
	if err != nil {
		return nil, fmt.Errorf("feature %s: %w", f.ID, err)
	}
	out := f.Clone()
	out.Geometry = g
	return out, nil
}

// erode removes a band of width d along every ring of polys.
func erode(polys orb.MultiPolygon, d float64, quad int) orb.MultiPolygon {
	var band orb.MultiPolygon
	for _, poly := range polys {
		for _, r := range poly {
			for _, piece := range strokeRing(r, d, quad) {
				band = clip(polyclip.UNION, band, piece)
			}
		}
	}
	return clip(polyclip.DIFFERENCE, cloneMulti(polys), band)
}

func strokeRing(r orb.Ring, d float64, quad int) []orb.MultiPolygon {
	return stroke(orb.LineString(r), d, quad)
}

// stroke covers ls with one rectangle per segment and one disc per vertex.
func stroke(ls orb.LineString, d float64, quad int) []orb.MultiPolygon {
	ls = dropCollinear(ls)
	if len(ls) == 1 {
		return []orb.MultiPolygon{{{disc(ls[0], d, quad)}}}
	}
	var out []orb.MultiPolygon
	for i := 0; i+1 < len(ls); i++ {
		out = append(out, orb.MultiPolygon{{segmentRect(ls[i], ls[i+1], d)}})
	}
	seen := make(map[orb.Point]bool, len(ls))
	for _, v := range ls {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, orb.MultiPolygon{{disc(v, d, quad)}})
	}
	return out
}

// segmentRect returns the rectangle of half-width d around a-b.
func segmentRect(a, b orb.Point, d float64) orb.Ring {
	dx, dy := b[0]-a[0], b[1]-a[1]
	l := math.Hypot(dx, dy)
	nx, ny := -dy/l*d, dx/l*d
	return orb.Ring{
		{a[0] - nx, a[1] - ny},
		{b[0] - nx, b[1] - ny},
		{b[0] + nx, b[1] + ny},
		{a[0] + nx, a[1] + ny},
		{a[0] - nx, a[1] - ny},
	}
}

// disc returns a CCW polygon with 4*quad vertices on the circle of radius
// d around c. Vertices sit half a step off the axes so they never coincide
// with the corners of axis-aligned segment rectangles.
func disc(c orb.Point, d float64, quad int) orb.Ring {
	n := 4 * quad
	r := make(orb.Ring, 0, n+1)
	for k := 0; k < n; k++ {
		a := (float64(k) + 0.5) * 2 * math.Pi / float64(n)
		r = append(r, orb.Point{c[0] + d*math.Cos(a), c[1] + d*math.Sin(a)})
	}
	return append(r, r[0])
}

// dropCollinear removes repeated vertices and vertices that lie on the
// straight line through their neighbours.
func dropCollinear(ls orb.LineString) orb.LineString {
	out := make(orb.LineString, 0, len(ls))
	for _, p := range ls {
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		if len(out) >= 2 {
			a, b := out[len(out)-2], out[len(out)-1]
			cross := (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
			dot := (b[0]-a[0])*(p[0]-b[0]) + (b[1]-a[1])*(p[1]-b[1])
			if cross == 0 && dot > 0 {
				out[len(out)-1] = p
				continue
			}
		}
		out = append(out, p)
	}
	return out
}
