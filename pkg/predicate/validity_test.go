package predicate

import (
	"math"
	"testing"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/paulmach/orb"
)

func TestIsSimple(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
		want bool
		kind IssueKind
	}{
		{
			name: "bow tie",
			geom: orb.LineString{{0, 0}, {1, 1}, {2, 2}, {0, 2}, {1, 1}, {2, 0}},
			want: false,
			kind: IssueSelfIntersection,
		},
		{"straight line", orb.LineString{{0, 0}, {1, 1}, {2, 2}}, true, 0},
		{"closed ring line", orb.LineString{{0, 0}, {1, 0}, {1, 1}, {0, 0}}, true, 0},
		{"repeated vertex", orb.LineString{{0, 0}, {1, 0}, {1, 0}, {2, 0}}, true, 0},
		{"x shape", orb.LineString{{0, 0}, {2, 2}, {2, 0}, {0, 2}}, false, IssueSelfIntersection},
		{"doubles back", orb.LineString{{0, 0}, {2, 0}, {1, 0}}, false, IssueSelfIntersection},
		{
			name: "lines meeting at endpoints",
			geom: orb.MultiLineString{{{0, 0}, {1, 0}}, {{1, 0}, {2, 1}}},
			want: true,
		},
		{
			name: "lines crossing",
			geom: orb.MultiLineString{{{0, 0}, {2, 2}}, {{0, 2}, {2, 0}}},
			want: false,
			kind: IssueSelfIntersection,
		},
		{"distinct points", orb.MultiPoint{{0, 0}, {1, 1}}, true, 0},
		{"repeated points", orb.MultiPoint{{0, 0}, {1, 1}, {0, 0}}, false, IssueRepeatedPoint},
		{"square", square(0, 0, 1), true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsSimple(tt.geom)
			if got.OK != tt.want {
				t.Fatalf("IsSimple() = %v, want OK=%v", got, tt.want)
			}
			if !tt.want && !got.Has(tt.kind) {
				t.Errorf("IsSimple() = %v, want an issue of kind %v", got, tt.kind)
			}
		})
	}
}

func TestBowTieReportsLocation(t *testing.T) {
	r := IsSimple(orb.LineString{{0, 0}, {1, 1}, {2, 2}, {0, 2}, {1, 1}, {2, 0}})
	if len(r.Issues) == 0 {
		t.Fatal("expected issues")
	}
	if r.Issues[0].Location != (orb.Point{1, 1}) {
		t.Errorf("Location = %v, want (1 1)", r.Issues[0].Location)
	}
}

func TestIsValid(t *testing.T) {
	shell := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	hole := orb.Ring{{2, 2}, {2, 4}, {4, 4}, {4, 2}, {2, 2}}

	tests := []struct {
		name string
		geom orb.Geometry
		want bool
		kind IssueKind
	}{
		{"point", orb.Point{1, 2}, true, 0},
		{"nan point", orb.Point{math.NaN(), 0}, false, IssueInvalidCoordinate},
		{"line", orb.LineString{{0, 0}, {1, 1}}, true, 0},
		{"degenerate line", orb.LineString{{1, 1}, {1, 1}}, false, IssueTooFewPoints},
		{"polygon with hole", orb.Polygon{shell, hole}, true, 0},
		{"unclosed ring", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}}}, false, IssueUnclosedRing},
		{"too few points", orb.Polygon{{{0, 0}, {1, 0}, {0, 0}}}, false, IssueTooFewPoints},
		{
			name: "bow tie polygon",
			geom: orb.Polygon{{{0, 0}, {2, 2}, {2, 0}, {0, 2}, {0, 0}}},
			want: false,
			kind: IssueSelfIntersection,
		},
		{
			name: "hole outside shell",
			geom: orb.Polygon{shell, {{20, 20}, {20, 22}, {22, 22}, {22, 20}, {20, 20}}},
			want: false,
			kind: IssueHoleOutsideShell,
		},
		{
			name: "nested holes",
			geom: orb.Polygon{shell, {{1, 1}, {1, 8}, {8, 8}, {8, 1}, {1, 1}}, hole},
			want: false,
			kind: IssueNestedHoles,
		},
		{
			name: "hole crossing shell",
			geom: orb.Polygon{shell, {{8, 8}, {8, 12}, {12, 12}, {12, 8}, {8, 8}}},
			want: false,
			kind: IssueSelfIntersection,
		},
		{
			name: "hole touching shell at one point",
			geom: orb.Polygon{shell, {{0, 5}, {3, 6}, {3, 4}, {0, 5}}},
			want: true,
		},
		{
			name: "overlapping multipolygon",
			geom: orb.MultiPolygon{square(0, 0, 2), square(1, 1, 2)},
			want: false,
			kind: IssueOverlappingPolygons,
		},
		{
			name: "adjacent multipolygon",
			geom: orb.MultiPolygon{square(0, 0, 1), square(1, 0, 1)},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValid(tt.geom)
			if got.OK != tt.want {
				t.Fatalf("IsValid() = %v, want OK=%v", got, tt.want)
			}
			if !tt.want && !got.Has(tt.kind) {
				t.Errorf("IsValid() = %v, want an issue of kind %v", got, tt.kind)
			}
		})
	}
}

func TestIsEmpty(t *testing.T) {
	if r := IsEmpty(geo.EmptyGeometry()); !r.OK {
		t.Errorf("empty sentinel: %v", r)
	}
	if r := IsEmpty(orb.Point{}); r.OK {
		t.Errorf("origin point is not empty: %v", r)
	}
	r := IsEmpty(orb.MultiLineString{{{0, 0}, {1, 1}}, {}})
	if r.OK || !r.Has(IssueEmptyPart) {
		t.Errorf("expected an empty part issue, got %v", r)
	}
}
