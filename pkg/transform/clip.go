package transform

import (
	"math"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/predicate"
	"github.com/ctessum/polyclip-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// toClip converts polygons to a polyclip polygon. polyclip contours are
// open, so the closing vertex is dropped.
func toClip(polys orb.MultiPolygon) polyclip.Polygon {
	var out polyclip.Polygon
	for _, p := range polys {
		for _, r := range p {
			if len(r) > 1 && r[0] == r[len(r)-1] {
				r = r[:len(r)-1]
			}
			if len(r) < 3 {
				continue
			}
			c := make(polyclip.Contour, len(r))
			for i, pt := range r {
				c[i] = polyclip.Point{X: pt[0], Y: pt[1]}
			}
			out = append(out, c)
		}
	}
	return out
}

type contour struct {
	ring   orb.Ring
	area   float64
	prep   *predicate.Prepared
	parent int
	depth  int
}

// fromClip rebuilds shells and holes from polyclip's flat contour list.
// A contour nested inside an even number of others is a shell, an odd
// number a hole of its smallest enclosing contour.
func fromClip(p polyclip.Polygon) orb.MultiPolygon {
	var cs []*contour
	for _, c := range p {
		r := make(orb.Ring, 0, len(c)+1)
		for _, pt := range c {
			q := orb.Point{pt.X, pt.Y}
			if len(r) > 0 && r[len(r)-1] == q {
				continue
			}
			r = append(r, q)
		}
		if len(r) > 1 && r[0] == r[len(r)-1] {
			r = r[:len(r)-1]
		}
		if len(r) < 3 {
			continue
		}
		r = append(r, r[0])
		area := math.Abs(planar.Area(r))
		if area <= areaEpsilon(r) {
			continue
		}
		cs = append(cs, &contour{ring: r, area: area, parent: -1})
	}
	for _, c := range cs {
		c.prep = predicate.Prepare(orb.Polygon{c.ring})
	}

	for i, c := range cs {
		for j, o := range cs {
			if i == j || o.area <= c.area || !inside(c.ring, o.prep) {
				continue
			}
			c.depth++
			if c.parent < 0 || o.area < cs[c.parent].area {
				c.parent = j
			}
		}
	}

	var out orb.MultiPolygon
	shellAt := map[int]int{}
	for i, c := range cs {
		if c.depth%2 != 0 {
			continue
		}
		if c.ring.Orientation() != orb.CCW {
			c.ring.Reverse()
		}
		shellAt[i] = len(out)
		out = append(out, orb.Polygon{c.ring})
	}
	for _, c := range cs {
		if c.depth%2 == 0 {
			continue
		}
		k, ok := shellAt[c.parent]
		if !ok {
			continue
		}
		if c.ring.Orientation() != orb.CW {
			c.ring.Reverse()
		}
		out[k] = append(out[k], c.ring)
	}
	return out
}

// inside reports whether ring r lies inside the prepared contour, judged
// by its first vertex off the contour's boundary.
func inside(r orb.Ring, prep *predicate.Prepared) bool {
	for _, v := range r {
		switch prep.Locate(v) {
		case predicate.Interior:
			return true
		case predicate.Exterior:
			return false
		}
	}
	for i := 0; i+1 < len(r); i++ {
		m := orb.Point{(r[i][0] + r[i+1][0]) / 2, (r[i][1] + r[i+1][1]) / 2}
		switch prep.Locate(m) {
		case predicate.Interior:
			return true
		case predicate.Exterior:
			return false
		}
	}
	return false
}

func areaEpsilon(r orb.Ring) float64 {
	b := r.Bound()
	scale := math.Max(1, math.Max(
		math.Max(math.Abs(b.Min[0]), math.Abs(b.Max[0])),
		math.Max(math.Abs(b.Min[1]), math.Abs(b.Max[1]))))
	return scale * scale * 1e-20
}

// clip runs a polyclip operation on two polygon sets.
func clip(op polyclip.Op, subject, clipping orb.MultiPolygon) orb.MultiPolygon {
	if len(subject) == 0 {
		if op == polyclip.UNION || op == polyclip.XOR {
			return cloneMulti(clipping)
		}
		return nil
	}
	if len(clipping) == 0 {
		if op == polyclip.INTERSECTION {
			return nil
		}
		return cloneMulti(subject)
	}
	if !subject.Bound().Intersects(clipping.Bound()) {
		switch op {
		case polyclip.INTERSECTION:
			return nil
		case polyclip.DIFFERENCE:
			return cloneMulti(subject)
		default:
			return append(cloneMulti(subject), cloneMulti(clipping)...)
		}
	}
	return fromClip(toClip(subject).Construct(op, toClip(clipping)))
}

func cloneMulti(mp orb.MultiPolygon) orb.MultiPolygon {
	if mp == nil {
		return nil
	}
	return mp.Clone()
}

// polygonal wraps a polygon set as the narrowest geometry: empty sentinel,
// Polygon or MultiPolygon.
func polygonal(mp orb.MultiPolygon) orb.Geometry {
	switch len(mp) {
	case 0:
		return geo.EmptyGeometry()
	case 1:
		return mp[0]
	default:
		return mp
	}
}
