package predicate

import (
	"math"
	"sort"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// segment is one edge of a linestring or polygon ring.
type segment struct {
	a, b orb.Point
	ring bool
	// interiorLeft is set for ring edges whose polygon interior lies to the
	// left of a->b.
	interiorLeft bool
	rect         rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (s *segment) Bounds() rtreego.Rect {
	return s.rect
}

// topology is a geometry flattened into its point, line and polygon parts
// with a segment index for noding and location queries.
type topology struct {
	points   []orb.Point
	lines    []orb.LineString
	polys    []orb.Polygon
	boundary []orb.Point // mod-2 line endpoints
	segs     []*segment
	index    *rtreego.Rtree
	tol      float64
}

func newTopology(g orb.Geometry, tol float64) *topology {
	t := &topology{tol: tol}
	t.add(geo.Normalize(g))
	t.buildBoundary()
	t.index = rtreego.NewTree(2, 25, 50)
	for _, ls := range t.lines {
		for i := 0; i+1 < len(ls); i++ {
			t.addSegment(ls[i], ls[i+1], false, false)
		}
	}
	for _, p := range t.polys {
		for ri, r := range p {
			left := (ri == 0) == (r.Orientation() == orb.CCW)
			for i := 0; i+1 < len(r); i++ {
				t.addSegment(r[i], r[i+1], true, left)
			}
		}
	}
	return t
}

func (t *topology) add(g orb.Geometry) {
	switch g := g.(type) {
	case orb.Point:
		t.points = append(t.points, g)
	case orb.MultiPoint:
		t.points = append(t.points, g...)
	case orb.LineString:
		ls := dedupe(g)
		switch len(ls) {
		case 0:
		case 1:
			t.points = append(t.points, ls[0])
		default:
			t.lines = append(t.lines, ls)
		}
	case orb.MultiLineString:
		for _, ls := range g {
			t.add(ls)
		}
	case orb.Polygon:
		if len(g) == 0 || len(g[0]) == 0 {
			return
		}
		p := make(orb.Polygon, 0, len(g))
		for _, r := range g {
			r = orb.Ring(dedupe(orb.LineString(r)))
			if len(r) == 0 {
				continue
			}
			if !r.Closed() {
				r = append(r[:len(r):len(r)], r[0])
			}
			p = append(p, r)
		}
		t.polys = append(t.polys, p)
	case orb.MultiPolygon:
		for _, p := range g {
			t.add(p)
		}
	case orb.Collection:
		for _, c := range g {
			t.add(geo.Normalize(c))
		}
	}
}

func (t *topology) addSegment(a, b orb.Point, ring, left bool) {
	if a == b {
		return
	}
	s := &segment{a: a, b: b, ring: ring, interiorLeft: left}
	s.rect = geo.BoundRect(orb.Bound{Min: a, Max: a}.Extend(b).Pad(t.tol))
	t.segs = append(t.segs, s)
	t.index.Insert(s)
}

// buildBoundary applies the mod-2 rule: an endpoint is on the boundary when
// it terminates an odd number of lines.
func (t *topology) buildBoundary() {
	counts := map[orb.Point]int{}
	var order []orb.Point
	for _, ls := range t.lines {
		for _, p := range []orb.Point{ls[0], ls[len(ls)-1]} {
			if counts[p] == 0 {
				order = append(order, p)
			}
			counts[p]++
		}
	}
	for _, p := range order {
		if counts[p]%2 == 1 {
			t.boundary = append(t.boundary, p)
		}
	}
}

func (t *topology) isEmpty() bool {
	return len(t.points) == 0 && len(t.lines) == 0 && len(t.polys) == 0
}

func (t *topology) hasArea() bool {
	return len(t.polys) > 0
}

// dimension returns the highest dimension present, -1 for empty.
func (t *topology) dimension() int {
	switch {
	case len(t.polys) > 0:
		return 2
	case len(t.lines) > 0:
		return 1
	case len(t.points) > 0:
		return 0
	}
	return -1
}

// near returns the indexed segments whose boxes contain p.
func (t *topology) near(p orb.Point) []*segment {
	hits := t.index.SearchIntersect(geo.BoundRect(orb.Bound{Min: p, Max: p}.Pad(t.tol)))
	out := make([]*segment, len(hits))
	for i, h := range hits {
		out[i] = h.(*segment)
	}
	return out
}

// locate classifies p against the geometry: area parts first, then lines,
// then points.
func (t *topology) locate(p orb.Point) Location {
	near := t.near(p)
	if len(t.polys) > 0 {
		for _, s := range near {
			if s.ring && onSegment(p, s.a, s.b, t.tol) {
				return Boundary
			}
		}
		for _, poly := range t.polys {
			if inPolygon(p, poly) {
				return Interior
			}
		}
	}
	if len(t.lines) > 0 {
		for _, b := range t.boundary {
			if samePoint(p, b, t.tol) {
				return Boundary
			}
		}
		for _, s := range near {
			if !s.ring && onSegment(p, s.a, s.b, t.tol) {
				return Interior
			}
		}
	}
	for _, q := range t.points {
		if samePoint(p, q, t.tol) {
			return Interior
		}
	}
	return Exterior
}

// lineLocation classifies a vertex or node of one of t's own lines.
func (t *topology) lineLocation(p orb.Point) Location {
	for _, b := range t.boundary {
		if samePoint(p, b, t.tol) {
			return Boundary
		}
	}
	return Interior
}

// interiorLeftAt reports whether the interior of t's area lies left of the
// direction dir at boundary point p.
func (t *topology) interiorLeftAt(p, dir orb.Point) (bool, bool) {
	for _, s := range t.near(p) {
		if !s.ring || !onSegment(p, s.a, s.b, t.tol) {
			continue
		}
		d := orb.Point{s.b[0] - s.a[0], s.b[1] - s.a[1]}
		if math.Abs(cross(d, dir)) > t.tol*(length(d)+length(dir)) {
			continue
		}
		if dot(d, dir) > 0 {
			return s.interiorLeft, true
		}
		return !s.interiorLeft, true
	}
	return false, false
}

// split nodes a->b against every segment of other and returns the ordered
// node list, a and b included.
func (t *topology) split(a, b orb.Point, other *topology) []orb.Point {
	box := orb.Bound{Min: a, Max: a}.Extend(b).Pad(t.tol)
	hits := other.index.SearchIntersect(geo.BoundRect(box))
	type node struct {
		t float64
		p orb.Point
	}
	d := orb.Point{b[0] - a[0], b[1] - a[1]}
	l2 := dot(d, d)
	nodes := []node{{0, a}, {1, b}}
	for _, h := range hits {
		s := h.(*segment)
		for _, p := range intersectSegments(a, b, s.a, s.b, t.tol) {
			u := dot(orb.Point{p[0] - a[0], p[1] - a[1]}, d) / l2
			nodes = append(nodes, node{u, p})
		}
	}
	for _, q := range other.points {
		if onSegment(q, a, b, t.tol) {
			u := dot(orb.Point{q[0] - a[0], q[1] - a[1]}, d) / l2
			nodes = append(nodes, node{u, q})
		}
	}
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].t < nodes[j].t })

	out := []orb.Point{a}
	for _, n := range nodes[1:] {
		if samePoint(n.p, out[len(out)-1], t.tol) {
			continue
		}
		if samePoint(n.p, b, t.tol) {
			continue
		}
		out = append(out, n.p)
	}
	return append(out, b)
}

// inPolygon is a ray-crossing test against the shell and holes. Callers
// check the boundary first.
func inPolygon(p orb.Point, poly orb.Polygon) bool {
	if len(poly) == 0 || !inRing(p, poly[0]) {
		return false
	}
	for _, h := range poly[1:] {
		if inRing(p, h) {
			return false
		}
	}
	return true
}

func inRing(p orb.Point, r orb.Ring) bool {
	in := false
	for i, j := 0, len(r)-1; i < len(r); j, i = i, i+1 {
		a, b := r[i], r[j]
		if (a[1] > p[1]) != (b[1] > p[1]) {
			x := a[0] + (p[1]-a[1])*(b[0]-a[0])/(b[1]-a[1])
			if p[0] < x {
				in = !in
			}
		}
	}
	return in
}

// intersectSegments returns the 0, 1 or 2 points where a-b and c-d meet.
// Collinear overlaps are reported by their two end points.
func intersectSegments(a, b, c, d orb.Point, tol float64) []orb.Point {
	var pts []orb.Point
	addPt := func(p orb.Point) {
		for _, q := range pts {
			if samePoint(p, q, tol) {
				return
			}
		}
		pts = append(pts, p)
	}
	for _, p := range []orb.Point{a, b} {
		if onSegment(p, c, d, tol) {
			addPt(p)
		}
	}
	for _, p := range []orb.Point{c, d} {
		if onSegment(p, a, b, tol) {
			addPt(p)
		}
	}
	if len(pts) > 0 {
		return pts
	}

	d1 := orient(c, d, a)
	d2 := orient(c, d, b)
	d3 := orient(a, b, c)
	d4 := orient(a, b, d)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		ab := orb.Point{b[0] - a[0], b[1] - a[1]}
		cd := orb.Point{d[0] - c[0], d[1] - c[1]}
		u := cross(orb.Point{c[0] - a[0], c[1] - a[1]}, cd) / cross(ab, cd)
		return []orb.Point{{a[0] + u*ab[0], a[1] + u*ab[1]}}
	}
	return nil
}

// onSegment reports whether p lies within tol of segment a-b.
func onSegment(p, a, b orb.Point, tol float64) bool {
	return distToSegment(p, a, b) <= tol
}

func distToSegment(p, a, b orb.Point) float64 {
	d := orb.Point{b[0] - a[0], b[1] - a[1]}
	l2 := dot(d, d)
	if l2 == 0 {
		return length(orb.Point{p[0] - a[0], p[1] - a[1]})
	}
	u := dot(orb.Point{p[0] - a[0], p[1] - a[1]}, d) / l2
	u = math.Max(0, math.Min(1, u))
	q := orb.Point{a[0] + u*d[0], a[1] + u*d[1]}
	return length(orb.Point{p[0] - q[0], p[1] - q[1]})
}

func samePoint(p, q orb.Point, tol float64) bool {
	return math.Abs(p[0]-q[0]) <= tol && math.Abs(p[1]-q[1]) <= tol
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func cross(u, v orb.Point) float64 { return u[0]*v[1] - u[1]*v[0] }
func dot(u, v orb.Point) float64   { return u[0]*v[0] + u[1]*v[1] }
func length(u orb.Point) float64   { return math.Hypot(u[0], u[1]) }

func midpoint(a, b orb.Point) orb.Point {
	return orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
}

// dedupe drops consecutive repeated points.
func dedupe(ls orb.LineString) orb.LineString {
	if len(ls) < 2 {
		return ls
	}
	out := make(orb.LineString, 0, len(ls))
	out = append(out, ls[0])
	for _, p := range ls[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}

// tolerance returns the coordinate comparison tolerance for a set of
// geometries: 1e-12 of the largest coordinate magnitude.
func tolerance(gs ...orb.Geometry) float64 {
	scale := 1.0
	for _, g := range gs {
		if g == nil || geo.IsEmpty(g) {
			continue
		}
		b := g.Bound()
		for _, v := range []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]} {
			scale = math.Max(scale, math.Abs(v))
		}
	}
	return scale * 1e-12
}
