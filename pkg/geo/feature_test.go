package geo

import (
	"errors"
	"reflect"
	"testing"

	"github.com/paulmach/orb"
)

func TestAttributesOrder(t *testing.T) {
	a := NewAttributes()
	a.Set("name", "Boulder Creek")
	a.Set("flow", 12.5)
	a.Set("active", true)
	a.Set("name", "South Boulder Creek") // replace keeps position

	want := []string{"name", "flow", "active"}
	if got := a.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	if v, _ := a.Get("name"); v != "South Boulder Creek" {
		t.Errorf("Get(name) = %v", v)
	}

	a.Delete("flow")
	if got := a.Keys(); !reflect.DeepEqual(got, []string{"name", "active"}) {
		t.Errorf("Keys() after Delete = %v", got)
	}

	var zero Attributes
	zero.Set("x", 1)
	if zero.Len() != 1 {
		t.Errorf("zero value Attributes should accept Set")
	}
}

func TestFeatureCollectionAdd(t *testing.T) {
	fc := NewFeatureCollection(WGS84)

	f := NewFeature("a", orb.Point{1, 2}, nil)
	if err := fc.Add(f); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if !f.CRS.Equal(WGS84) {
		t.Errorf("feature without CRS should adopt collection CRS, got %s", f.CRS)
	}

	other := NewFeature("b", orb.Point{500000, 0}, MustParseCRS("EPSG:32633"))
	err := fc.Add(other)
	var crsErr *CRSError
	if !errors.As(err, &crsErr) {
		t.Fatalf("expected *CRSError, got %v", err)
	}
	if fc.Len() != 1 {
		t.Errorf("Len() = %d, want 1", fc.Len())
	}
}

func TestFeatureCloneIsDeep(t *testing.T) {
	f := NewFeature("a", orb.LineString{{0, 0}, {1, 1}}, WGS84)
	f.Attributes.Set("k", "v")

	c := f.Clone()
	c.Geometry.(orb.LineString)[0] = orb.Point{9, 9}
	c.Attributes.Set("k", "changed")

	if f.Geometry.(orb.LineString)[0] != (orb.Point{0, 0}) {
		t.Errorf("clone shares geometry with original")
	}
	if v, _ := f.Attributes.Get("k"); v != "v" {
		t.Errorf("clone shares attributes with original")
	}
}

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
		want bool
	}{
		{"nil", nil, true},
		{"sentinel", EmptyGeometry(), true},
		{"point", orb.Point{0, 0}, false},
		{"empty line", orb.LineString{}, true},
		{"empty polygon", orb.Polygon{}, true},
		{"polygon", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, false},
		{"collection of empties", orb.Collection{orb.MultiPoint{}, orb.LineString{}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEmpty(tt.geom); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGeometryTypes(t *testing.T) {
	tests := []struct {
		geom orb.Geometry
		want GeometryType
		dim  int
	}{
		{orb.Point{}, GeometryTypePoint, 0},
		{orb.MultiPoint{}, GeometryTypeMultiPoint, 0},
		{orb.LineString{}, GeometryTypeLineString, 1},
		{orb.MultiLineString{}, GeometryTypeMultiLineString, 1},
		{orb.Ring{}, GeometryTypePolygon, 2},
		{orb.Polygon{}, GeometryTypePolygon, 2},
		{orb.MultiPolygon{}, GeometryTypeMultiPolygon, 2},
		{orb.Collection{}, GeometryTypeCollection, -1},
	}
	for _, tt := range tests {
		got := TypeOf(tt.geom)
		if got != tt.want {
			t.Errorf("TypeOf(%T) = %v, want %v", tt.geom, got, tt.want)
		}
		if got.Dimension() != tt.dim {
			t.Errorf("%v.Dimension() = %d, want %d", got, got.Dimension(), tt.dim)
		}
		if ParseGeometryType(got.String()) != got {
			t.Errorf("ParseGeometryType(%q) did not round trip", got.String())
		}
	}
}

func TestIndexSearch(t *testing.T) {
	fc := NewFeatureCollection(WGS84)
	for i, p := range []orb.Point{{0, 0}, {5, 5}, {10, 10}, {2, 2}} {
		f := NewFeature(string(rune('a'+i)), p, WGS84)
		if err := fc.Add(f); err != nil {
			t.Fatal(err)
		}
	}
	// A polygon whose edge touches the query box.
	square := NewFeature("sq", orb.Polygon{{{3, 0}, {4, 0}, {4, 1}, {3, 1}, {3, 0}}}, WGS84)
	if err := fc.Add(square); err != nil {
		t.Fatal(err)
	}

	idx := NewIndex(fc)
	if idx.Size() != 5 {
		t.Fatalf("Size() = %d, want 5", idx.Size())
	}

	got := idx.Search(orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{3, 3}})
	var ids []string
	for _, f := range got {
		ids = append(ids, f.ID)
	}
	want := []string{"a", "d", "sq"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("Search() = %v, want %v (collection order, touching included)", ids, want)
	}

	nearest := idx.Nearest(orb.Point{9, 9}, 1)
	if len(nearest) != 1 || nearest[0].ID != "c" {
		t.Errorf("Nearest() = %v, want [c]", nearest)
	}
}
