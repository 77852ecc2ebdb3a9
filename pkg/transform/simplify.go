package transform

import (
	"fmt"
	"math"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/predicate"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// maxSimplifyRetries bounds how often Simplify halves the tolerance when a
// result would be invalid.
const maxSimplifyRetries = 8

// Simplify reduces vertices with Douglas-Peucker. The result keeps a
// subset of the original vertices, each within tolerance of the original
// boundary.
//
// A single geometry never gains self-intersections or becomes invalid: if
// it would, the tolerance is halved and the run repeated, and after
// maxSimplifyRetries attempts the original is returned. Shared borders
// between separate geometries are not kept in step, so adjacent polygons
// in a collection may develop gaps or overlaps.
func Simplify(g orb.Geometry, tolerance float64) (orb.Geometry, error) {
	if tolerance < 0 || math.IsNaN(tolerance) {
		return nil, fmt.Errorf("simplify: tolerance must be non-negative, got %v", tolerance)
	}
	if g == nil {
		return geo.EmptyGeometry(), nil
	}
	if tolerance == 0 || geo.IsEmpty(g) {
		return geo.Clone(g), nil
	}

	g = geo.Normalize(g)
	wasValid := predicate.IsValid(g).OK
	wasSimple := predicate.IsSimple(g).OK
	for i := 0; i <= maxSimplifyRetries; i++ {
		out := simplify.DouglasPeucker(tolerance).Simplify(orb.Clone(g))
		if acceptable(g, out, wasValid, wasSimple) {
			return out, nil
		}
		tolerance /= 2
	}
	return geo.Clone(g), nil
}

// acceptable rejects a simplification that dropped parts or broke the
// validity or simplicity the input had.
func acceptable(in, out orb.Geometry, wasValid, wasSimple bool) bool {
	if geo.IsEmpty(out) || geo.TypeOf(in) != geo.TypeOf(out) {
		return false
	}
	if partCount(in) != partCount(out) {
		return false
	}
	if wasValid && !predicate.IsValid(out).OK {
		return false
	}
	if wasSimple && !predicate.IsSimple(out).OK {
		return false
	}
	return true
}

func partCount(g orb.Geometry) int {
	switch g := g.(type) {
	case orb.MultiLineString:
		return len(g)
	case orb.Polygon:
		return len(g)
	case orb.MultiPolygon:
		n := 0
		for _, p := range g {
			n += len(p)
		}
		return n
	case orb.Collection:
		n := 0
		for _, c := range g {
			n += partCount(c)
		}
		return n
	}
	return 1
}

// SimplifyCollection simplifies every feature of fc independently and
// returns a new collection.
func SimplifyCollection(fc *geo.FeatureCollection, tolerance float64) (*geo.FeatureCollection, error) {
	out := geo.NewFeatureCollection(fc.CRS)
	for _, f := range fc.Features {
		g, err := Simplify(f.Geometry, tolerance)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", f.ID, err)
		}
		nf := f.Clone()
		nf.Geometry = g
		if err := out.Add(nf); err != nil {
			return nil, err
		}
	}
	return out, nil
}
