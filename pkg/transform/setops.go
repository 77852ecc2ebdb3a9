package transform

import (
	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/predicate"
	"github.com/ctessum/polyclip-go"
	"github.com/paulmach/orb"
)

// parts is a geometry split by dimension.
type parts struct {
	points orb.MultiPoint
	lines  orb.MultiLineString
	polys  orb.MultiPolygon
}

func split(g orb.Geometry) parts {
	var p parts
	p.add(geo.Normalize(g))
	return p
}

func (p *parts) add(g orb.Geometry) {
	switch g := g.(type) {
	case orb.Point:
		p.points = append(p.points, g)
	case orb.MultiPoint:
		p.points = append(p.points, g...)
	case orb.LineString:
		if len(g) > 0 {
			p.lines = append(p.lines, g)
		}
	case orb.MultiLineString:
		for _, ls := range g {
			p.add(ls)
		}
	case orb.Polygon:
		if len(g) > 0 && len(g[0]) > 0 {
			p.polys = append(p.polys, g)
		}
	case orb.MultiPolygon:
		for _, poly := range g {
			p.add(poly)
		}
	case orb.Collection:
		for _, c := range g {
			p.add(geo.Normalize(c))
		}
	}
}

// geometry assembles parts into the narrowest geometry that holds them.
func (p parts) geometry() orb.Geometry {
	var kinds orb.Collection
	switch len(p.points) {
	case 0:
	case 1:
		kinds = append(kinds, p.points[0])
	default:
		kinds = append(kinds, p.points)
	}
	switch len(p.lines) {
	case 0:
	case 1:
		kinds = append(kinds, p.lines[0])
	default:
		kinds = append(kinds, p.lines)
	}
	if len(p.polys) > 0 {
		kinds = append(kinds, polygonal(p.polys))
	}
	switch len(kinds) {
	case 0:
		return geo.EmptyGeometry()
	case 1:
		return kinds[0]
	default:
		return kinds
	}
}

// Union returns the point set union of geoms. Polygons are merged; lines
// and points swallowed by a polygon are dropped. An empty input returns
// the empty sentinel.
func Union(geoms ...orb.Geometry) orb.Geometry {
	var all parts
	for _, g := range geoms {
		if g == nil {
			continue
		}
		p := split(geo.Clone(g))
		all.points = append(all.points, p.points...)
		all.lines = append(all.lines, p.lines...)
		all.polys = append(all.polys, p.polys...)
	}

	var merged orb.MultiPolygon
	for _, poly := range all.polys {
		merged = clip(polyclip.UNION, merged, orb.MultiPolygon{poly})
	}

	var out parts
	out.polys = merged
	area := predicate.Prepare(merged)
	for _, ls := range all.lines {
		out.lines = append(out.lines, clipLine(ls, area, exteriorOnly)...)
	}
	lines := predicate.Prepare(out.lines)
	seen := map[orb.Point]bool{}
	for _, pt := range all.points {
		if seen[pt] || area.Covers(pt) || lines.Covers(pt) {
			continue
		}
		seen[pt] = true
		out.points = append(out.points, pt)
	}
	return out.geometry()
}

// Intersection returns the points shared by a and b, or the empty
// sentinel when there are none.
func Intersection(a, b orb.Geometry) orb.Geometry {
	if geo.IsEmpty(a) || geo.IsEmpty(b) || !a.Bound().Intersects(b.Bound()) {
		return geo.EmptyGeometry()
	}
	pa, pb := split(a), split(b)
	prepA, prepB := predicate.Prepare(a), predicate.Prepare(b)
	areaA := predicate.Prepare(pa.polys)

	var out parts
	out.polys = clip(polyclip.INTERSECTION, pa.polys, pb.polys)

	for _, ls := range pa.lines {
		out.lines = append(out.lines, clipLine(ls, prepB, coveredOnly)...)
	}
	for _, ls := range pb.lines {
		out.lines = append(out.lines, clipLine(ls, areaA, coveredOnly)...)
	}

	kept := predicate.Prepare(orb.Collection{out.polys, out.lines})
	seen := map[orb.Point]bool{}
	addPoint := func(pt orb.Point) {
		if seen[pt] || kept.Covers(pt) {
			return
		}
		seen[pt] = true
		out.points = append(out.points, pt)
	}
	for _, pt := range pa.points {
		if prepB.Covers(pt) {
			addPoint(pt)
		}
	}
	for _, pt := range pb.points {
		if prepA.Covers(pt) {
			addPoint(pt)
		}
	}
	// Lines crossing lines or polygon boundaries meet at isolated nodes.
	for _, ls := range pa.lines {
		for _, v := range prepB.Node(ls) {
			if prepB.Covers(v) {
				addPoint(v)
			}
		}
	}
	if len(pa.polys) > 0 {
		for _, ls := range pb.lines {
			for _, v := range areaA.Node(ls) {
				if areaA.Covers(v) {
					addPoint(v)
				}
			}
		}
	}
	return out.geometry()
}

// Difference returns the points of a not in b, or the empty sentinel.
// Removing a lower-dimensional b from a leaves a unchanged.
func Difference(a, b orb.Geometry) orb.Geometry {
	if geo.IsEmpty(a) {
		return geo.EmptyGeometry()
	}
	if geo.IsEmpty(b) || !a.Bound().Intersects(b.Bound()) {
		return split(geo.Clone(a)).geometry()
	}
	pa, pb := split(geo.Clone(a)), split(b)
	prepB := predicate.Prepare(b)

	var out parts
	out.polys = clip(polyclip.DIFFERENCE, pa.polys, pb.polys)
	for _, ls := range pa.lines {
		out.lines = append(out.lines, clipLine(ls, prepB, exteriorOnly)...)
	}
	for _, pt := range pa.points {
		if !prepB.Covers(pt) {
			out.points = append(out.points, pt)
		}
	}
	return out.geometry()
}

// SymDifference returns the points in exactly one of a and b.
func SymDifference(a, b orb.Geometry) orb.Geometry {
	pa, pb := split(a), split(b)
	if len(pa.points)+len(pa.lines)+len(pb.points)+len(pb.lines) == 0 {
		return polygonal(clip(polyclip.XOR, pa.polys, pb.polys))
	}
	return Union(Difference(a, b), Difference(b, a))
}

func exteriorOnly(l predicate.Location) bool { return l == predicate.Exterior }
func coveredOnly(l predicate.Location) bool  { return l != predicate.Exterior }

// clipLine nodes ls against p and returns the runs of segments whose
// midpoints satisfy keep.
func clipLine(ls orb.LineString, p *predicate.Prepared, keep func(predicate.Location) bool) orb.MultiLineString {
	noded := p.Node(ls)
	if len(noded) < 2 {
		return nil
	}
	var out orb.MultiLineString
	var run orb.LineString
	for i := 0; i+1 < len(noded); i++ {
		a, b := noded[i], noded[i+1]
		m := orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
		if keep(p.Locate(m)) {
			if len(run) == 0 {
				run = orb.LineString{a}
			}
			run = append(run, b)
			continue
		}
		if len(run) > 1 {
			out = append(out, run)
		}
		run = nil
	}
	if len(run) > 1 {
		out = append(out, run)
	}
	return out
}
