package predicate

import (
	"github.com/paulmach/orb"
)

// Relate computes the DE-9IM intersection matrix of a and b.
//
// Both geometries are noded against each other. Every resulting
// sub-segment midpoint, node and vertex is then located against the other
// geometry, which is exact for the matrix entries of dimension 0 and 1.
// Area/area interior entries are derived from where the ring sub-edges of
// each polygon fall and, for shared edges, from which side their interiors
// lie on.
//
// Collections are treated as the union of their parts. Overlapping parts
// inside one collection are not merged.
func Relate(a, b orb.Geometry) IntersectionMatrix {
	im := newMatrix()
	im.raise(Exterior, Exterior, DimArea)

	tol := tolerance(a, b)
	ta := newTopology(a, tol)
	tb := newTopology(b, tol)

	fill(ta, tb, &im, false)
	fill(tb, ta, &im, true)
	if ta.hasArea() && tb.hasArea() {
		areaArea(ta, tb, &im)
	}
	return im
}

// fill records how the parts of x meet the locations of y. When transposed
// is set x is the second operand.
func fill(x, y *topology, im *IntersectionMatrix, transposed bool) {
	set := func(lx, ly Location, d int) {
		if transposed {
			im.raise(ly, lx, d)
		} else {
			im.raise(lx, ly, d)
		}
	}

	for _, p := range x.points {
		set(Interior, y.locate(p), DimPoint)
	}

	for _, ls := range x.lines {
		for i := 0; i+1 < len(ls); i++ {
			nodes := x.split(ls[i], ls[i+1], y)
			for j := 0; j+1 < len(nodes); j++ {
				set(Interior, y.locate(midpoint(nodes[j], nodes[j+1])), DimLine)
			}
			for _, n := range nodes {
				set(x.lineLocation(n), y.locate(n), DimPoint)
			}
		}
	}

	for _, s := range x.segs {
		if !s.ring {
			continue
		}
		nodes := x.split(s.a, s.b, y)
		for j := 0; j+1 < len(nodes); j++ {
			set(Boundary, y.locate(midpoint(nodes[j], nodes[j+1])), DimLine)
		}
		for _, n := range nodes {
			set(Boundary, y.locate(n), DimPoint)
		}
	}

	// An area always reaches past anything of lower dimension.
	if x.hasArea() && !y.hasArea() {
		set(Interior, Exterior, DimArea)
	}
}

// areaArea fills the II, IE and EI entries for two areal geometries.
func areaArea(ta, tb *topology, im *IntersectionMatrix) {
	for _, s := range ta.segs {
		if !s.ring {
			continue
		}
		nodes := ta.split(s.a, s.b, tb)
		for j := 0; j+1 < len(nodes); j++ {
			p, q := nodes[j], nodes[j+1]
			m := midpoint(p, q)
			switch tb.locate(m) {
			case Interior:
				// Both sides of this edge are inside B.
				im.raise(Interior, Interior, DimArea)
				im.raise(Exterior, Interior, DimArea)
			case Exterior:
				im.raise(Interior, Exterior, DimArea)
			case Boundary:
				bLeft, ok := tb.interiorLeftAt(m, orb.Point{q[0] - p[0], q[1] - p[1]})
				if !ok {
					continue
				}
				if bLeft == s.interiorLeft {
					im.raise(Interior, Interior, DimArea)
				} else {
					im.raise(Interior, Exterior, DimArea)
					im.raise(Exterior, Interior, DimArea)
				}
			}
		}
	}

	for _, s := range tb.segs {
		if !s.ring {
			continue
		}
		nodes := tb.split(s.a, s.b, ta)
		for j := 0; j+1 < len(nodes); j++ {
			switch ta.locate(midpoint(nodes[j], nodes[j+1])) {
			case Interior:
				im.raise(Interior, Interior, DimArea)
				im.raise(Interior, Exterior, DimArea)
			case Exterior:
				im.raise(Exterior, Interior, DimArea)
			}
		}
	}
}
