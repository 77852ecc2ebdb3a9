package predicate

import (
	"fmt"
	"math"
	"strings"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// IssueKind names a reason a geometry fails a unary check.
type IssueKind int

const (
	IssueSelfIntersection IssueKind = iota + 1
	IssueUnclosedRing
	IssueHoleOutsideShell
	IssueNestedHoles
	IssueOverlappingPolygons
	IssueTooFewPoints
	IssueInvalidCoordinate
	IssueRepeatedPoint
	IssueEmptyPart
)

func (k IssueKind) String() string {
	switch k {
	case IssueSelfIntersection:
		return "self-intersection"
	case IssueUnclosedRing:
		return "unclosed ring"
	case IssueHoleOutsideShell:
		return "hole outside shell"
	case IssueNestedHoles:
		return "nested holes"
	case IssueOverlappingPolygons:
		return "overlapping polygons"
	case IssueTooFewPoints:
		return "too few points"
	case IssueInvalidCoordinate:
		return "invalid coordinate"
	case IssueRepeatedPoint:
		return "repeated point"
	case IssueEmptyPart:
		return "empty part"
	default:
		return "unknown"
	}
}

// Issue is one finding of a unary check.
type Issue struct {
	Kind     IssueKind
	Location orb.Point
	Detail   string
}

func (i Issue) String() string {
	s := fmt.Sprintf("%s at (%g %g)", i.Kind, i.Location[0], i.Location[1])
	if i.Detail != "" {
		s += ": " + i.Detail
	}
	return s
}

// Report is the result of IsSimple, IsValid or IsEmpty. Issues explain a
// false OK so callers can repair the geometry.
type Report struct {
	OK     bool
	Issues []Issue
}

func (r Report) String() string {
	if len(r.Issues) == 0 {
		return fmt.Sprintf("ok=%t", r.OK)
	}
	parts := make([]string, len(r.Issues))
	for i, is := range r.Issues {
		parts[i] = is.String()
	}
	return fmt.Sprintf("ok=%t: %s", r.OK, strings.Join(parts, "; "))
}

// Has reports whether the report contains an issue of kind k.
func (r Report) Has(k IssueKind) bool {
	for _, is := range r.Issues {
		if is.Kind == k {
			return true
		}
	}
	return false
}

type reporter struct {
	issues []Issue
}

func (r *reporter) add(k IssueKind, p orb.Point, format string, args ...any) {
	r.issues = append(r.issues, Issue{Kind: k, Location: p, Detail: fmt.Sprintf(format, args...)})
}

func (r *reporter) report() Report {
	return Report{OK: len(r.issues) == 0, Issues: r.issues}
}

// IsEmpty reports whether g has no coordinates. For a non-empty geometry
// the issues list any empty parts it carries.
func IsEmpty(g orb.Geometry) Report {
	if geo.IsEmpty(g) {
		return Report{OK: true}
	}
	var r reporter
	var walk func(orb.Geometry, string)
	walk = func(g orb.Geometry, path string) {
		switch g := g.(type) {
		case orb.MultiPoint, orb.LineString:
			if geo.IsEmpty(g) {
				r.add(IssueEmptyPart, orb.Point{}, "%s is empty", path)
			}
		case orb.MultiLineString:
			for i, ls := range g {
				walk(ls, fmt.Sprintf("%s[%d]", path, i))
			}
		case orb.Polygon:
			for i, ring := range g {
				if len(ring) == 0 {
					r.add(IssueEmptyPart, orb.Point{}, "%s ring %d is empty", path, i)
				}
			}
		case orb.MultiPolygon:
			for i, p := range g {
				if len(p) == 0 {
					r.add(IssueEmptyPart, orb.Point{}, "%s[%d] is empty", path, i)
					continue
				}
				walk(p, fmt.Sprintf("%s[%d]", path, i))
			}
		case orb.Collection:
			for i, c := range g {
				walk(c, fmt.Sprintf("%s[%d]", path, i))
			}
		}
	}
	walk(g, geo.TypeOf(g).String())
	return Report{OK: false, Issues: r.issues}
}

// IsSimple reports whether g has no anomalous self-intersection. Repeated
// points in a multipoint and lines crossing themselves or each other away
// from their endpoints make a geometry non-simple.
func IsSimple(g orb.Geometry) Report {
	var r reporter
	checkSimple(geo.Normalize(g), &r)
	return r.report()
}

func checkSimple(g orb.Geometry, r *reporter) {
	switch g := g.(type) {
	case orb.MultiPoint:
		seen := make(map[orb.Point]bool, len(g))
		for _, p := range g {
			if seen[p] {
				r.add(IssueRepeatedPoint, p, "multipoint repeats a point")
			}
			seen[p] = true
		}
	case orb.LineString:
		selfIntersections(dedupe(g), tolerance(g), r)
	case orb.MultiLineString:
		tol := tolerance(g)
		for _, ls := range g {
			selfIntersections(dedupe(ls), tol, r)
		}
		for i := range g {
			for j := i + 1; j < len(g); j++ {
				lineCrossings(dedupe(g[i]), dedupe(g[j]), tol, r)
			}
		}
	case orb.Polygon:
		tol := tolerance(g)
		for _, ring := range g {
			selfIntersections(dedupe(orb.LineString(ring)), tol, r)
		}
	case orb.MultiPolygon:
		for _, p := range g {
			checkSimple(p, r)
		}
	case orb.Collection:
		for _, c := range g {
			checkSimple(geo.Normalize(c), r)
		}
	}
}

type indexedSeg struct {
	i    int
	rect rtreego.Rect
}

func (s *indexedSeg) Bounds() rtreego.Rect { return s.rect }

// selfIntersections reports every point where two segments of ls meet
// other than the vertex consecutive segments share. A closed line may also
// meet itself at its start.
func selfIntersections(ls orb.LineString, tol float64, r *reporter) {
	n := len(ls) - 1
	if n < 2 {
		return
	}
	closed := ls[0] == ls[n]
	tree := rtreego.NewTree(2, 25, 50)
	for i := 0; i < n; i++ {
		b := orb.Bound{Min: ls[i], Max: ls[i]}.Extend(ls[i+1]).Pad(tol)
		tree.Insert(&indexedSeg{i: i, rect: geo.BoundRect(b)})
	}

	reported := map[orb.Point]bool{}
	for i := 0; i < n; i++ {
		b := orb.Bound{Min: ls[i], Max: ls[i]}.Extend(ls[i+1]).Pad(tol)
		for _, h := range tree.SearchIntersect(geo.BoundRect(b)) {
			j := h.(*indexedSeg).i
			if j <= i {
				continue
			}
			pts := intersectSegments(ls[i], ls[i+1], ls[j], ls[j+1], tol)
			for _, p := range pts {
				if j == i+1 && samePoint(p, ls[j], tol) {
					continue
				}
				if closed && i == 0 && j == n-1 && samePoint(p, ls[0], tol) {
					continue
				}
				if !reported[p] {
					reported[p] = true
					r.add(IssueSelfIntersection, p, "segments %d and %d meet", i, j)
				}
			}
		}
	}
}

// lineCrossings reports where two lines meet anywhere other than shared
// endpoints.
func lineCrossings(a, b orb.LineString, tol float64, r *reporter) {
	if len(a) < 2 || len(b) < 2 {
		return
	}
	isEnd := func(p orb.Point, ls orb.LineString) bool {
		return samePoint(p, ls[0], tol) || samePoint(p, ls[len(ls)-1], tol)
	}
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			for _, p := range intersectSegments(a[i], a[i+1], b[j], b[j+1], tol) {
				if isEnd(p, a) && isEnd(p, b) {
					continue
				}
				r.add(IssueSelfIntersection, p, "lines cross")
			}
		}
	}
}

// IsValid checks g against the OGC validity rules and reports every
// violation found.
func IsValid(g orb.Geometry) Report {
	var r reporter
	checkValid(geo.Normalize(g), &r)
	return r.report()
}

func checkValid(g orb.Geometry, r *reporter) {
	switch g := g.(type) {
	case orb.Point:
		checkCoords([]orb.Point{g}, r)
	case orb.MultiPoint:
		checkCoords(g, r)
	case orb.LineString:
		checkLine(g, r)
	case orb.MultiLineString:
		for _, ls := range g {
			checkLine(ls, r)
		}
	case orb.Polygon:
		checkPolygon(g, r)
	case orb.MultiPolygon:
		before := len(r.issues)
		for _, p := range g {
			checkPolygon(p, r)
		}
		if len(r.issues) == before {
			checkDisjointParts(g, r)
		}
	case orb.Collection:
		for _, c := range g {
			checkValid(geo.Normalize(c), r)
		}
	}
}

func checkCoords(pts []orb.Point, r *reporter) bool {
	ok := true
	for _, p := range pts {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			r.add(IssueInvalidCoordinate, p, "coordinate is not finite")
			ok = false
		}
	}
	return ok
}

func checkLine(ls orb.LineString, r *reporter) {
	if !checkCoords(ls, r) {
		return
	}
	if len(dedupe(ls)) < 2 {
		var at orb.Point
		if len(ls) > 0 {
			at = ls[0]
		}
		r.add(IssueTooFewPoints, at, "linestring needs 2 distinct points, has %d", len(dedupe(ls)))
	}
}

func checkPolygon(p orb.Polygon, r *reporter) {
	if len(p) == 0 {
		return
	}
	tol := tolerance(p)
	before := len(r.issues)
	for i, ring := range p {
		if !checkCoords(ring, r) {
			continue
		}
		if len(ring) == 0 {
			r.add(IssueTooFewPoints, orb.Point{}, "ring %d is empty", i)
			continue
		}
		if !ring.Closed() {
			r.add(IssueUnclosedRing, ring[0], "ring %d ends at (%g %g)", i, ring[len(ring)-1][0], ring[len(ring)-1][1])
			continue
		}
		if d := dedupe(orb.LineString(ring)); len(d) < 4 {
			r.add(IssueTooFewPoints, ring[0], "ring %d needs 4 points, has %d distinct", i, len(d))
			continue
		}
		selfIntersections(dedupe(orb.LineString(ring)), tol, r)
	}
	if len(r.issues) > before {
		return
	}

	// Rings may touch at single points but must not cross.
	for i := range p {
		for j := i + 1; j < len(p); j++ {
			ringCrossings(p[i], p[j], tol, r)
		}
	}
	if len(r.issues) > before {
		return
	}

	shell := newTopology(orb.Polygon{p[0]}, tol)
	for i, h := range p[1:] {
		at, ok := ringSample(h, shell)
		if ok && shell.locate(at) == Exterior {
			r.add(IssueHoleOutsideShell, at, "hole %d lies outside the shell", i+1)
		}
	}
	for i := 1; i < len(p); i++ {
		outer := newTopology(orb.Polygon{p[i]}, tol)
		for j := 1; j < len(p); j++ {
			if i == j {
				continue
			}
			at, ok := ringSample(p[j], outer)
			if ok && outer.locate(at) == Interior {
				r.add(IssueNestedHoles, at, "hole %d lies inside hole %d", j, i)
			}
		}
	}
}

// ringSample returns a vertex of ring that is not on the boundary of t,
// falling back to an edge midpoint.
func ringSample(ring orb.Ring, t *topology) (orb.Point, bool) {
	for _, v := range ring {
		if t.locate(v) != Boundary {
			return v, true
		}
	}
	for i := 0; i+1 < len(ring); i++ {
		m := midpoint(ring[i], ring[i+1])
		if t.locate(m) != Boundary {
			return m, true
		}
	}
	return orb.Point{}, false
}

// ringCrossings reports rings that cross or share an edge. A single
// touching point is allowed.
func ringCrossings(a, b orb.Ring, tol float64, r *reporter) {
	var touches []orb.Point
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			pts := intersectSegments(a[i], a[i+1], b[j], b[j+1], tol)
			if len(pts) == 2 {
				r.add(IssueSelfIntersection, pts[0], "rings share an edge")
				return
			}
			for _, p := range pts {
				dup := false
				for _, q := range touches {
					if samePoint(p, q, tol) {
						dup = true
						break
					}
				}
				if !dup {
					touches = append(touches, p)
				}
			}
		}
	}
	if len(touches) > 1 {
		r.add(IssueSelfIntersection, touches[0], "rings meet at %d points", len(touches))
	}
}

// checkDisjointParts reports multipolygon members whose interiors overlap.
func checkDisjointParts(mp orb.MultiPolygon, r *reporter) {
	for i := range mp {
		for j := i + 1; j < len(mp); j++ {
			if !mp[i].Bound().Intersects(mp[j].Bound()) {
				continue
			}
			if Relate(mp[i], mp[j]).Get(Interior, Interior) != DimFalse {
				at := mp[j][0][0]
				r.add(IssueOverlappingPolygons, at, "polygons %d and %d overlap", i, j)
			}
		}
	}
}
