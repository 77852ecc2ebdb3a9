package predicate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/paulmach/orb"
)

// UnknownPredicateError is returned by Evaluate for a name it does not
// support.
type UnknownPredicateError struct {
	Name string
}

func (e *UnknownPredicateError) Error() string {
	return fmt.Sprintf("unknown predicate %q (supported: %s)", e.Name, strings.Join(Names(), ", "))
}

// binary predicates keyed by their canonical name.
var binary = map[string]func(a, b orb.Geometry) bool{
	"contains":   Contains,
	"within":     Within,
	"intersects": Intersects,
	"disjoint":   Disjoint,
	"touches":    Touches,
	"overlaps":   Overlaps,
	"crosses":    Crosses,
	"covers":     Covers,
	"covered_by": CoveredBy,
	"equals":     Equals,
}

// parameterised predicates keyed by their canonical name.
var withParam = map[string]func(a, b orb.Geometry, v float64) bool{
	"equals_exact":       EqualsExact,
	"is_within_distance": IsWithinDistance,
}

// Names returns every predicate name accepted by Evaluate, sorted.
func Names() []string {
	names := make([]string, 0, len(binary)+len(withParam))
	for n := range binary {
		names = append(names, n)
	}
	for n := range withParam {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// canonical folds "coveredBy", "covered-by" and "Covered_By" into
// "covered_by".
func canonical(name string) string {
	if strings.ToUpper(name) == name {
		name = strings.ToLower(name)
	}
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '-' || r == ' ':
			b.WriteByte('_')
		case r >= 'A' && r <= 'Z':
			if i > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Evaluate tests the named predicate on a and b. equals_exact takes a
// tolerance and is_within_distance a distance as the single parameter.
func Evaluate(name string, a, b orb.Geometry, params ...float64) (bool, error) {
	key := canonical(name)
	if fn, ok := binary[key]; ok {
		return fn(a, b), nil
	}
	if fn, ok := withParam[key]; ok {
		if len(params) != 1 {
			return false, fmt.Errorf("predicate %s: expected 1 parameter, got %d", key, len(params))
		}
		if params[0] < 0 || math.IsNaN(params[0]) {
			return false, fmt.Errorf("predicate %s: parameter must be a non-negative number, got %v", key, params[0])
		}
		return fn(a, b, params[0]), nil
	}
	return false, &UnknownPredicateError{Name: name}
}

// EvaluateFeatures is the cross-dataset form of Evaluate. Both features
// must carry the same CRS.
func EvaluateFeatures(name string, fa, fb *geo.Feature, params ...float64) (bool, error) {
	op := "predicate " + canonical(name)
	switch {
	case fa == nil || fb == nil:
		return false, fmt.Errorf("%s: nil feature", op)
	case fa.CRS == nil:
		return false, &geo.CRSError{Op: op, CRS: fa.ID, Reason: "feature has no CRS"}
	case fb.CRS == nil:
		return false, &geo.CRSError{Op: op, CRS: fb.ID, Reason: "feature has no CRS"}
	case !fa.CRS.Equal(fb.CRS):
		return false, &geo.CRSError{
			Op:     op,
			CRS:    fb.CRS.String(),
			Reason: fmt.Sprintf("differs from %s; reproject first", fa.CRS),
		}
	}
	return Evaluate(name, fa.Geometry, fb.Geometry, params...)
}

// Intersects reports whether a and b share at least one point.
func Intersects(a, b orb.Geometry) bool {
	return !Disjoint(a, b)
}

// Disjoint reports whether a and b share no point.
func Disjoint(a, b orb.Geometry) bool {
	if isEmpty(a) || isEmpty(b) {
		return true
	}
	if !boundsMeet(a, b) {
		return true
	}
	return Relate(a, b).Matches("FF*FF****")
}

// Contains reports whether no point of b lies outside a and the interiors
// meet.
func Contains(a, b orb.Geometry) bool {
	if isEmpty(a) || isEmpty(b) || !boundsMeet(a, b) {
		return false
	}
	return Relate(a, b).Matches("T*****FF*")
}

// Within is Contains with the operands swapped.
func Within(a, b orb.Geometry) bool {
	return Contains(b, a)
}

// Covers reports whether no point of b lies outside a. Unlike Contains, b
// may lie entirely on the boundary of a.
func Covers(a, b orb.Geometry) bool {
	if isEmpty(a) || isEmpty(b) || !boundsMeet(a, b) {
		return false
	}
	im := Relate(a, b)
	return im.Matches("T*****FF*") || im.Matches("*T****FF*") ||
		im.Matches("***T**FF*") || im.Matches("****T*FF*")
}

// CoveredBy is Covers with the operands swapped.
func CoveredBy(a, b orb.Geometry) bool {
	return Covers(b, a)
}

// Touches reports whether a and b meet only at their boundaries.
func Touches(a, b orb.Geometry) bool {
	if isEmpty(a) || isEmpty(b) || !boundsMeet(a, b) {
		return false
	}
	if dimension(a) == 0 && dimension(b) == 0 {
		return false
	}
	im := Relate(a, b)
	return im.Matches("FT*******") || im.Matches("F**T*****") || im.Matches("F***T****")
}

// Crosses reports whether the interiors meet in a lower dimension than the
// larger operand and each reaches outside the other.
func Crosses(a, b orb.Geometry) bool {
	if isEmpty(a) || isEmpty(b) || !boundsMeet(a, b) {
		return false
	}
	da, db := dimension(a), dimension(b)
	im := Relate(a, b)
	switch {
	case da < db:
		return im.Matches("T*T******")
	case da > db:
		return im.Matches("T*****T**")
	case da == 1 && db == 1:
		return im.Matches("0********")
	}
	return false
}

// Overlaps reports whether a and b have the same dimension, their
// interiors meet in that dimension and neither covers the other.
func Overlaps(a, b orb.Geometry) bool {
	if isEmpty(a) || isEmpty(b) || !boundsMeet(a, b) {
		return false
	}
	da, db := dimension(a), dimension(b)
	if da != db {
		return false
	}
	im := Relate(a, b)
	if da == 1 {
		return im.Matches("1*T***T**")
	}
	return im.Matches("T*T***T**")
}

// Equals reports topological equality: same point set regardless of vertex
// order or ring start.
func Equals(a, b orb.Geometry) bool {
	if isEmpty(a) && isEmpty(b) {
		return true
	}
	if isEmpty(a) || isEmpty(b) || !boundsMeet(a, b) {
		return false
	}
	return Relate(a, b).Matches("T*F**FFF*")
}

// EqualsExact reports structural equality: same type, same part and vertex
// counts, and every vertex pair within tol.
func EqualsExact(a, b orb.Geometry, tol float64) bool {
	a, b = geo.Normalize(a), geo.Normalize(b)
	if geo.TypeOf(a) != geo.TypeOf(b) {
		return false
	}
	pa, pb := flatten(a), flatten(b)
	if len(pa) != len(pb) {
		return false
	}
	for i := range pa {
		if len(pa[i]) != len(pb[i]) {
			return false
		}
		for j := range pa[i] {
			if orbDistance(pa[i][j], pb[i][j]) > tol {
				return false
			}
		}
	}
	return true
}

// IsWithinDistance reports whether the distance between a and b is at most
// d.
func IsWithinDistance(a, b orb.Geometry, d float64) bool {
	dist := Distance(a, b)
	return !math.IsInf(dist, 1) && dist <= d
}

// Distance returns the minimum planar distance between a and b, 0 when
// they intersect and +Inf when either is empty.
func Distance(a, b orb.Geometry) float64 {
	if isEmpty(a) || isEmpty(b) {
		return math.Inf(1)
	}
	if Intersects(a, b) {
		return 0
	}
	tol := tolerance(a, b)
	ta, tb := newTopology(a, tol), newTopology(b, tol)

	best := math.Inf(1)
	pa, sa := ta.allPoints(), ta.segs
	pb, sb := tb.allPoints(), tb.segs
	for _, p := range pa {
		for _, q := range pb {
			best = math.Min(best, orbDistance(p, q))
		}
		for _, s := range sb {
			best = math.Min(best, distToSegment(p, s.a, s.b))
		}
	}
	for _, q := range pb {
		for _, s := range sa {
			best = math.Min(best, distToSegment(q, s.a, s.b))
		}
	}
	return best
}

// allPoints returns every vertex of t.
func (t *topology) allPoints() []orb.Point {
	out := append([]orb.Point(nil), t.points...)
	for _, ls := range t.lines {
		out = append(out, ls...)
	}
	for _, p := range t.polys {
		for _, r := range p {
			out = append(out, r...)
		}
	}
	return out
}

func orbDistance(p, q orb.Point) float64 {
	return math.Hypot(p[0]-q[0], p[1]-q[1])
}

func isEmpty(g orb.Geometry) bool {
	return geo.IsEmpty(g)
}

func boundsMeet(a, b orb.Geometry) bool {
	tol := tolerance(a, b)
	return a.Bound().Pad(tol).Intersects(b.Bound())
}

func dimension(g orb.Geometry) int {
	return newTopology(g, 0).dimension()
}

// flatten lists the coordinate sequences of g in order.
func flatten(g orb.Geometry) [][]orb.Point {
	switch g := g.(type) {
	case orb.Point:
		return [][]orb.Point{{g}}
	case orb.MultiPoint:
		return [][]orb.Point{g}
	case orb.LineString:
		return [][]orb.Point{g}
	case orb.MultiLineString:
		out := make([][]orb.Point, len(g))
		for i, ls := range g {
			out[i] = ls
		}
		return out
	case orb.Polygon:
		out := make([][]orb.Point, len(g))
		for i, r := range g {
			out[i] = r
		}
		return out
	case orb.MultiPolygon:
		var out [][]orb.Point
		for _, p := range g {
			out = append(out, flatten(p)...)
			out = append(out, nil) // part separator
		}
		return out
	case orb.Collection:
		var out [][]orb.Point
		for _, c := range g {
			out = append(out, flatten(geo.Normalize(c))...)
			out = append(out, nil)
		}
		return out
	}
	return nil
}
