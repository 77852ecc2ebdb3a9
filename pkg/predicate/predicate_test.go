package predicate

import (
	"errors"
	"math"
	"testing"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(x0, y0, size float64) orb.Polygon {
	return orb.Polygon{{{x0, y0}, {x0 + size, y0}, {x0 + size, y0 + size}, {x0, y0 + size}, {x0, y0}}}
}

func TestRelateMatrix(t *testing.T) {
	tests := []struct {
		name string
		a, b orb.Geometry
		want string
	}{
		{"identical squares", square(0, 0, 2), square(0, 0, 2), "2FFF1FFF2"},
		{"overlapping squares", square(0, 0, 2), square(1, 1, 2), "212101212"},
		{"edge adjacent squares", square(0, 0, 1), square(1, 0, 1), "FF2F11212"},
		{"nested squares", square(0, 0, 4), square(1, 1, 1), "212FF1FF2"},
		{"disjoint squares", square(0, 0, 1), square(5, 5, 1), "FF2FF1212"},
		{"point inside polygon", orb.Point{1, 1}, square(0, 0, 2), "0FFFFF212"},
		{"point on polygon edge", orb.Point{0, 1}, square(0, 0, 2), "F0FFFF212"},
		{"crossing lines", orb.LineString{{0, 0}, {2, 2}}, orb.LineString{{0, 2}, {2, 0}}, "0F1FF0102"},
		{"lines end to end", orb.LineString{{0, 0}, {1, 0}}, orb.LineString{{1, 0}, {2, 0}}, "FF1F00102"},
		{"line through polygon", orb.LineString{{-1, 1}, {3, 1}}, square(0, 0, 2), "101FF0212"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Relate(tt.a, tt.b)
			assert.Equal(t, tt.want, got.String())
			assert.Equal(t, got.Transpose().String(), Relate(tt.b, tt.a).String(), "Relate(b, a) should be the transpose")
		})
	}
}

func TestNamedPredicates(t *testing.T) {
	big := square(0, 0, 4)
	inner := square(1, 1, 1)
	edge := square(0, 0, 2) // shares two edges with big
	adj := square(4, 0, 1)
	over := square(3, 3, 2)
	line := orb.LineString{{-1, 2}, {5, 2}}
	inLine := orb.LineString{{1, 1}, {3, 3}}

	tests := []struct {
		pred string
		a, b orb.Geometry
		want bool
	}{
		{"contains", big, inner, true},
		{"contains", inner, big, false},
		{"contains", big, edge, true},
		{"within", inner, big, true},
		{"covers", big, edge, true},
		{"covered_by", edge, big, true},
		{"covers", big, orb.LineString{{0, 0}, {4, 0}}, true},
		{"contains", big, orb.LineString{{0, 0}, {4, 0}}, false},
		{"touches", big, adj, true},
		{"touches", big, inner, false},
		{"touches", orb.Point{4, 2}, big, true},
		{"overlaps", big, over, true},
		{"overlaps", big, inner, false},
		{"crosses", line, big, true},
		{"crosses", inLine, big, false},
		{"crosses", orb.LineString{{0, 0}, {2, 2}}, orb.LineString{{0, 2}, {2, 0}}, true},
		{"equals", big, orb.Polygon{{{4, 4}, {0, 4}, {0, 0}, {4, 0}, {4, 4}}}, true},
		{"equals", orb.LineString{{0, 0}, {1, 1}, {2, 2}}, orb.LineString{{2, 2}, {0, 0}}, true},
		{"equals", big, inner, false},
		{"disjoint", big, square(10, 10, 1), true},
		{"intersects", big, adj, true},
		{"within", orb.Point{2, 2}, big, true},
		{"within", orb.Point{0, 2}, big, false},
		{"covered_by", orb.Point{0, 2}, big, true},
	}

	for _, tt := range tests {
		t.Run(tt.pred, func(t *testing.T) {
			got, err := Evaluate(tt.pred, tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "%s(%v, %v)", tt.pred, tt.a, tt.b)
		})
	}
}

func TestIntersectsIsNotDisjoint(t *testing.T) {
	geoms := []orb.Geometry{
		orb.Point{0, 0},
		orb.Point{1, 1},
		orb.Point{9, 9},
		orb.MultiPoint{{0, 0}, {3, 3}},
		orb.LineString{{0, 0}, {2, 2}},
		orb.LineString{{0, 2}, {2, 0}},
		orb.LineString{{5, 5}, {6, 6}},
		orb.MultiLineString{{{-1, 1}, {3, 1}}, {{8, 8}, {9, 8}}},
		square(0, 0, 2),
		square(2, 0, 2),
		square(0.5, 0.5, 0.5),
		square(10, 10, 1),
		orb.Polygon{
			{{0, 0}, {6, 0}, {6, 6}, {0, 6}, {0, 0}},
			{{2, 2}, {2, 4}, {4, 4}, {4, 2}, {2, 2}},
		},
		orb.MultiPolygon{square(-3, -3, 1), square(1, 1, 1)},
		geo.EmptyGeometry(),
	}

	for i, a := range geoms {
		for j, b := range geoms {
			if Intersects(a, b) == Disjoint(a, b) {
				t.Errorf("geoms[%d], geoms[%d]: intersects == disjoint == %v", i, j, Intersects(a, b))
			}
		}
	}
}

func TestHoleIsExterior(t *testing.T) {
	donut := orb.Polygon{
		{{0, 0}, {6, 0}, {6, 6}, {0, 6}, {0, 0}},
		{{2, 2}, {2, 4}, {4, 4}, {4, 2}, {2, 2}},
	}
	assert.True(t, Disjoint(orb.Point{3, 3}, donut))
	assert.True(t, Touches(orb.Point{2, 3}, donut))
	assert.True(t, Within(orb.Point{1, 1}, donut))
	assert.False(t, Contains(donut, square(2.5, 2.5, 1)))
	assert.True(t, Disjoint(donut, square(2.5, 2.5, 1)))
}

func TestEvaluateErrors(t *testing.T) {
	_, err := Evaluate("near", orb.Point{}, orb.Point{})
	var unknown *UnknownPredicateError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "near", unknown.Name)

	_, err = Evaluate("is_within_distance", orb.Point{}, orb.Point{1, 0})
	assert.Error(t, err, "missing distance parameter")

	ok, err := Evaluate("isWithinDistance", orb.Point{}, orb.Point{3, 4}, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Evaluate("COVERED_BY", orb.Point{1, 1}, square(0, 0, 2))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateFeaturesRequiresCRS(t *testing.T) {
	a := geo.NewFeature("a", orb.Point{1, 1}, geo.WGS84)
	b := geo.NewFeature("b", square(0, 0, 2), nil)

	_, err := EvaluateFeatures("within", a, b)
	var crsErr *geo.CRSError
	require.True(t, errors.As(err, &crsErr))

	b.CRS = geo.WebMercator
	_, err = EvaluateFeatures("within", a, b)
	require.True(t, errors.As(err, &crsErr))

	b.CRS = geo.WGS84
	ok, err := EvaluateFeatures("within", a, b)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b orb.Geometry
		want float64
	}{
		{"points", orb.Point{0, 0}, orb.Point{3, 4}, 5},
		{"point to segment", orb.Point{1, 5}, orb.LineString{{0, 0}, {4, 0}}, 5},
		{"squares", square(0, 0, 1), square(3, 0, 1), 2},
		{"intersecting", square(0, 0, 2), square(1, 1, 2), 0},
		{"inside hole", orb.Point{3, 3}, orb.Polygon{
			{{0, 0}, {6, 0}, {6, 6}, {0, 6}, {0, 0}},
			{{2, 2}, {2, 4}, {4, 4}, {4, 2}, {2, 2}},
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Distance(tt.a, tt.b), 1e-12)
		})
	}
	assert.True(t, math.IsInf(Distance(geo.EmptyGeometry(), orb.Point{}), 1))
	assert.True(t, IsWithinDistance(square(0, 0, 1), square(3, 0, 1), 2))
	assert.False(t, IsWithinDistance(square(0, 0, 1), square(3, 0, 1), 1.999))
}

func TestEqualsExact(t *testing.T) {
	a := orb.LineString{{0, 0}, {1, 1}}
	assert.True(t, EqualsExact(a, orb.LineString{{0, 0}, {1, 1.0005}}, 0.001))
	assert.False(t, EqualsExact(a, orb.LineString{{0, 0}, {1, 1.01}}, 0.001))
	assert.False(t, EqualsExact(a, orb.LineString{{1, 1}, {0, 0}}, 0.001), "vertex order matters")
	assert.False(t, EqualsExact(a, orb.MultiLineString{a}, 0.001), "type matters")
	assert.True(t, Equals(a, orb.LineString{{1, 1}, {0, 0}}), "topological equality ignores order")
}

func TestMatchesPattern(t *testing.T) {
	im := Relate(square(0, 0, 2), square(1, 1, 2))
	assert.True(t, im.Matches("T*T***T**"))
	assert.True(t, im.Matches("212101212"))
	assert.False(t, im.Matches("FF*FF****"))
	assert.Panics(t, func() { im.Matches("T*") })
}
