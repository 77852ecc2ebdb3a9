package geo

import (
	"strings"

	"github.com/paulmach/orb"
)

// GeometryType represents the type of a geometry.
type GeometryType int

const (
	// GeometryTypeUnknown is returned for nil or unsupported geometries.
	GeometryTypeUnknown GeometryType = iota

	// GeometryTypePoint represents a single point location.
	GeometryTypePoint

	// GeometryTypeMultiPoint represents a set of points.
	GeometryTypeMultiPoint

	// GeometryTypeLineString represents a line composed of connected points.
	GeometryTypeLineString

	// GeometryTypeMultiLineString represents a set of lines.
	GeometryTypeMultiLineString

	// GeometryTypePolygon represents an area with an exterior ring and holes.
	GeometryTypePolygon

	// GeometryTypeMultiPolygon represents a set of polygons.
	GeometryTypeMultiPolygon

	// GeometryTypeCollection represents a heterogeneous geometry collection.
	GeometryTypeCollection
)

// String returns the string representation of the geometry type.
func (g GeometryType) String() string {
	switch g {
	case GeometryTypePoint:
		return "Point"
	case GeometryTypeMultiPoint:
		return "MultiPoint"
	case GeometryTypeLineString:
		return "LineString"
	case GeometryTypeMultiLineString:
		return "MultiLineString"
	case GeometryTypePolygon:
		return "Polygon"
	case GeometryTypeMultiPolygon:
		return "MultiPolygon"
	case GeometryTypeCollection:
		return "GeometryCollection"
	default:
		return "Unknown"
	}
}

// Dimension returns the topological dimension of the type: 0 for points,
// 1 for lines, 2 for areas and -1 otherwise.
func (g GeometryType) Dimension() int {
	switch g {
	case GeometryTypePoint, GeometryTypeMultiPoint:
		return 0
	case GeometryTypeLineString, GeometryTypeMultiLineString:
		return 1
	case GeometryTypePolygon, GeometryTypeMultiPolygon:
		return 2
	default:
		return -1
	}
}

// ParseGeometryType parses a geometry type name, ignoring case. Both the
// GeoJSON spelling ("MultiPolygon") and the OGC upper-case spelling
// ("MULTIPOLYGON") are accepted.
func ParseGeometryType(s string) GeometryType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "point":
		return GeometryTypePoint
	case "multipoint":
		return GeometryTypeMultiPoint
	case "linestring", "line":
		return GeometryTypeLineString
	case "multilinestring":
		return GeometryTypeMultiLineString
	case "polygon":
		return GeometryTypePolygon
	case "multipolygon":
		return GeometryTypeMultiPolygon
	case "geometrycollection", "collection":
		return GeometryTypeCollection
	default:
		return GeometryTypeUnknown
	}
}

// TypeOf returns the GeometryType of an orb geometry. Rings and bounds are
// reported as polygons.
func TypeOf(g orb.Geometry) GeometryType {
	switch g.(type) {
	case orb.Point:
		return GeometryTypePoint
	case orb.MultiPoint:
		return GeometryTypeMultiPoint
	case orb.LineString:
		return GeometryTypeLineString
	case orb.MultiLineString:
		return GeometryTypeMultiLineString
	case orb.Polygon, orb.Ring, orb.Bound:
		return GeometryTypePolygon
	case orb.MultiPolygon:
		return GeometryTypeMultiPolygon
	case orb.Collection:
		return GeometryTypeCollection
	default:
		return GeometryTypeUnknown
	}
}

// EmptyGeometry returns the empty-geometry sentinel produced by set
// operations whose result is the empty set.
func EmptyGeometry() orb.Geometry {
	return orb.Collection{}
}

// IsEmpty reports whether g has no coordinates. A nil geometry is empty.
func IsEmpty(g orb.Geometry) bool {
	switch g := g.(type) {
	case nil:
		return true
	case orb.Point:
		return false
	case orb.MultiPoint:
		return len(g) == 0
	case orb.LineString:
		return len(g) == 0
	case orb.MultiLineString:
		for _, ls := range g {
			if len(ls) > 0 {
				return false
			}
		}
		return true
	case orb.Ring:
		return len(g) == 0
	case orb.Polygon:
		return len(g) == 0 || len(g[0]) == 0
	case orb.MultiPolygon:
		for _, p := range g {
			if len(p) > 0 && len(p[0]) > 0 {
				return false
			}
		}
		return true
	case orb.Collection:
		for _, c := range g {
			if !IsEmpty(c) {
				return false
			}
		}
		return true
	case orb.Bound:
		return false
	}
	return true
}

// Clone returns a deep copy of g. Nil is returned unchanged.
func Clone(g orb.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}
	return orb.Clone(g)
}

// Normalize converts rings and bounds to polygons so downstream code only
// deals with the GeoJSON geometry kinds.
func Normalize(g orb.Geometry) orb.Geometry {
	switch g := g.(type) {
	case orb.Ring:
		return orb.Polygon{g}
	case orb.Bound:
		return g.ToPolygon()
	case orb.Collection:
		out := make(orb.Collection, len(g))
		for i, c := range g {
			out[i] = Normalize(c)
		}
		return out
	}
	return g
}
