package transform

import (
	"fmt"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/paulmach/orb"
)

// Cast converts g to the target type when the conversion keeps its
// meaning: a polygon to its boundary lines, a closed line to a polygon, a
// single-part multi geometry to its part, any geometry to its vertices.
// Impossible conversions fail with IncompatibleCastError.
func Cast(g orb.Geometry, target geo.GeometryType) (orb.Geometry, error) {
	g = geo.Normalize(g)
	from := geo.TypeOf(g)
	fail := func(format string, args ...any) (orb.Geometry, error) {
		return nil, &geo.IncompatibleCastError{From: from.String(), To: target.String(), Reason: fmt.Sprintf(format, args...)}
	}
	if from == geo.GeometryTypeUnknown || target == geo.GeometryTypeUnknown {
		return fail("unknown geometry type")
	}
	if geo.IsEmpty(g) {
		return fail("geometry is empty")
	}
	if from == target {
		return geo.Clone(g), nil
	}
	if target == geo.GeometryTypeCollection {
		return orb.Collection{geo.Clone(g)}, nil
	}
	if target == geo.GeometryTypeMultiPoint {
		return vertices(g), nil
	}

	g = geo.Clone(g)
	switch g := g.(type) {
	case orb.Point:
		return fail("a point has no extent")

	case orb.MultiPoint:
		switch target {
		case geo.GeometryTypePoint:
			if len(g) != 1 {
				return fail("multipoint has %d points", len(g))
			}
			return g[0], nil
		case geo.GeometryTypeLineString:
			if len(g) < 2 {
				return fail("a line needs 2 points, have %d", len(g))
			}
			return orb.LineString(g), nil
		}

	case orb.LineString:
		switch target {
		case geo.GeometryTypePoint:
			if p, ok := degenerate(g); ok {
				return p, nil
			}
			return fail("line has length")
		case geo.GeometryTypeMultiLineString:
			return orb.MultiLineString{g}, nil
		case geo.GeometryTypePolygon:
			return lineToPolygon(g, fail)
		case geo.GeometryTypeMultiPolygon:
			p, err := lineToPolygon(g, fail)
			if err != nil {
				return nil, err
			}
			return orb.MultiPolygon{p.(orb.Polygon)}, nil
		}

	case orb.MultiLineString:
		switch target {
		case geo.GeometryTypeLineString:
			if len(g) != 1 {
				return fail("multilinestring has %d parts", len(g))
			}
			return g[0], nil
		case geo.GeometryTypePolygon:
			if len(g) != 1 {
				return fail("multilinestring has %d parts", len(g))
			}
			return lineToPolygon(g[0], fail)
		case geo.GeometryTypeMultiPolygon:
			var mp orb.MultiPolygon
			for _, ls := range g {
				p, err := lineToPolygon(ls, fail)
				if err != nil {
					return nil, err
				}
				mp = append(mp, p.(orb.Polygon))
			}
			return mp, nil
		}

	case orb.Polygon:
		switch target {
		case geo.GeometryTypePoint:
			if p, ok := degenerate(orb.LineString(g[0])); ok {
				return p, nil
			}
			return fail("polygon has area")
		case geo.GeometryTypeLineString:
			if len(g) != 1 {
				return fail("polygon has %d holes, its boundary is more than one line", len(g)-1)
			}
			return orb.LineString(g[0]), nil
		case geo.GeometryTypeMultiLineString:
			return ringsToLines(g), nil
		case geo.GeometryTypeMultiPolygon:
			return orb.MultiPolygon{g}, nil
		}

	case orb.MultiPolygon:
		switch target {
		case geo.GeometryTypePolygon:
			if len(g) != 1 {
				return fail("multipolygon has %d parts", len(g))
			}
			return g[0], nil
		case geo.GeometryTypeMultiLineString:
			var mls orb.MultiLineString
			for _, p := range g {
				mls = append(mls, ringsToLines(p)...)
			}
			return mls, nil
		case geo.GeometryTypeLineString:
			if len(g) == 1 && len(g[0]) == 1 {
				return orb.LineString(g[0][0]), nil
			}
			return fail("boundary is more than one line")
		case geo.GeometryTypePoint:
			if len(g) == 1 {
				if p, ok := degenerate(orb.LineString(g[0][0])); ok {
					return p, nil
				}
			}
			return fail("multipolygon has area")
		}

	case orb.Collection:
		if len(g) == 1 {
			return Cast(g[0], target)
		}
		return fail("collection has %d members", len(g))
	}
	return fail("no conversion defined")
}

func lineToPolygon(ls orb.LineString, fail func(string, ...any) (orb.Geometry, error)) (orb.Geometry, error) {
	if len(ls) < 4 {
		return fail("a ring needs 4 points, have %d", len(ls))
	}
	if ls[0] != ls[len(ls)-1] {
		return fail("line is not closed")
	}
	return orb.Polygon{orb.Ring(ls)}, nil
}

func ringsToLines(p orb.Polygon) orb.MultiLineString {
	out := make(orb.MultiLineString, len(p))
	for i, r := range p {
		out[i] = orb.LineString(r)
	}
	return out
}

// degenerate returns the single point a sequence collapses to.
func degenerate(pts []orb.Point) (orb.Point, bool) {
	if len(pts) == 0 {
		return orb.Point{}, false
	}
	for _, p := range pts[1:] {
		if p != pts[0] {
			return orb.Point{}, false
		}
	}
	return pts[0], true
}

// vertices lists every coordinate of g as a multipoint.
func vertices(g orb.Geometry) orb.MultiPoint {
	var out orb.MultiPoint
	switch g := g.(type) {
	case orb.Point:
		out = append(out, g)
	case orb.MultiPoint:
		out = append(out, g...)
	case orb.LineString:
		out = append(out, g...)
	case orb.MultiLineString:
		for _, ls := range g {
			out = append(out, ls...)
		}
	case orb.Polygon:
		for _, r := range g {
			out = append(out, r...)
		}
	case orb.MultiPolygon:
		for _, p := range g {
			out = append(out, vertices(p)...)
		}
	case orb.Collection:
		for _, c := range g {
			out = append(out, vertices(geo.Normalize(c))...)
		}
	}
	return out
}
