package predicate

import (
	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/paulmach/orb"
)

// Prepared is a geometry indexed once for many point and box queries, as
// done by raster masking and zonal assignment.
type Prepared struct {
	geom  orb.Geometry
	topo  *topology
	bound orb.Bound
}

// Prepare indexes g. Location queries use a tolerance scaled to g's
// coordinates.
func Prepare(g orb.Geometry) *Prepared {
	p := &Prepared{geom: g, topo: newTopology(g, tolerance(g))}
	if !geo.IsEmpty(g) {
		p.bound = g.Bound()
	}
	return p
}

// Geometry returns the prepared geometry.
func (p *Prepared) Geometry() orb.Geometry { return p.geom }

// Bound returns the bounding box of the prepared geometry.
func (p *Prepared) Bound() orb.Bound { return p.bound }

// Dimension returns the topological dimension, -1 when empty.
func (p *Prepared) Dimension() int { return p.topo.dimension() }

// Locate classifies pt against the geometry.
func (p *Prepared) Locate(pt orb.Point) Location {
	if p.topo.isEmpty() || !p.bound.Pad(p.topo.tol).Contains(pt) {
		return Exterior
	}
	return p.topo.locate(pt)
}

// Covers reports whether pt lies in the interior or on the boundary.
func (p *Prepared) Covers(pt orb.Point) bool {
	return p.Locate(pt) != Exterior
}

// IntersectsBound reports whether the closed box b shares any point with
// the geometry.
func (p *Prepared) IntersectsBound(b orb.Bound) bool {
	if p.topo.isEmpty() || !p.bound.Intersects(b) {
		return false
	}
	t := p.topo
	for _, q := range t.points {
		if b.Contains(q) {
			return true
		}
	}
	for _, h := range t.index.SearchIntersect(geo.BoundRect(b)) {
		s := h.(*segment)
		if b.Contains(s.a) || b.Contains(s.b) {
			return true
		}
	}
	corners := []orb.Point{b.Min, {b.Max[0], b.Min[1]}, b.Max, {b.Min[0], b.Max[1]}}
	if t.hasArea() {
		for _, c := range corners {
			if t.locate(c) != Exterior {
				return true
			}
		}
	}
	for i := range corners {
		c, d := corners[i], corners[(i+1)%4]
		edge := orb.Bound{Min: c, Max: c}.Extend(d).Pad(t.tol)
		for _, h := range t.index.SearchIntersect(geo.BoundRect(edge)) {
			s := h.(*segment)
			if len(intersectSegments(c, d, s.a, s.b, t.tol)) > 0 {
				return true
			}
		}
	}
	return false
}

// Node returns ls with every point where it meets the prepared geometry
// inserted as a vertex.
func (p *Prepared) Node(ls orb.LineString) orb.LineString {
	ls = dedupe(ls)
	if len(ls) < 2 {
		return ls
	}
	out := orb.LineString{ls[0]}
	for i := 0; i+1 < len(ls); i++ {
		nodes := p.topo.split(ls[i], ls[i+1], p.topo)
		out = append(out, nodes[1:]...)
	}
	return out
}
