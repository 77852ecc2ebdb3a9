package table

import (
	"errors"
	"testing"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/predicate"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var utm13 = geo.MustParseCRS("EPSG:32613")

func square(x0, y0, x1, y1 float64) orb.Polygon {
	return orb.Polygon{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
}

func gauges(t *testing.T) *PlainTable {
	t.Helper()
	tbl := NewPlainTable("site", "basin", "flow")
	rows := [][]any{
		{"08313000", "rio grande", 412.0},
		{"08317400", "rio grande", nil},
		{"08330000", "rio grande", 380.5},
		{"09379500", "san juan", int64(1520)},
	}
	for _, r := range rows {
		require.NoError(t, tbl.AppendRow(r...))
	}
	return tbl
}

func parcels(t *testing.T) *SpatialTable {
	t.Helper()
	fc := geo.NewFeatureCollection(utm13)
	add := func(id string, g orb.Geometry, zone string, area float64) {
		f := geo.NewFeature(id, g, utm13)
		f.Attributes.Set("zone", zone)
		f.Attributes.Set("area", area)
		require.NoError(t, fc.Add(f))
	}
	add("p1", square(0, 0, 2, 2), "r1", 4)
	add("p2", square(1, 1, 3, 3), "r1", 4)
	add("p3", square(10, 10, 11, 11), "c2", 1)
	return NewSpatialTable(fc)
}

func ids(tbl Table) []string {
	out := make([]string, tbl.Len())
	for i := range out {
		out[i] = tbl.Row(i).ID
	}
	return out
}

func column(tbl Table, col string) []any {
	out := make([]any, tbl.Len())
	for i := range out {
		out[i] = tbl.Row(i).Get(col)
	}
	return out
}

func TestPlainVerbs(t *testing.T) {
	tbl := gauges(t)
	assert.Equal(t, 4, tbl.Len())
	assert.Equal(t, []string{"site", "basin", "flow"}, tbl.Columns())
	assert.Error(t, tbl.AppendRow("only one"))

	rg := tbl.Filter(func(r Row) bool { return r.String("basin") == "rio grande" })
	assert.Equal(t, 3, rg.Len())
	assert.Equal(t, 4, tbl.Len())

	sel, err := tbl.Select("flow", "site")
	require.NoError(t, err)
	assert.Equal(t, []string{"flow", "site"}, sel.Columns())
	assert.Equal(t, []string{"flow", "site"}, sel.Row(0).Attributes().Keys())

	_, err = tbl.Select("stage")
	var uce *UnknownColumnError
	require.True(t, errors.As(err, &uce))
	assert.Equal(t, "stage", uce.Column)

	asc := tbl.Arrange("flow", false)
	assert.Equal(t, []any{380.5, 412.0, int64(1520), nil}, column(asc, "flow"))
	desc := tbl.Arrange("flow", true)
	assert.Equal(t, []any{int64(1520), 412.0, 380.5, nil}, column(desc, "flow"))

	cfs := tbl.Mutate("cms", func(r Row) any {
		v, ok := r.Float("flow")
		if !ok {
			return nil
		}
		return v * 0.0283168
	})
	assert.Equal(t, []string{"site", "basin", "flow", "cms"}, cfs.Columns())
	assert.InDelta(t, 412.0*0.0283168, cfs.Row(0).Get("cms"), 1e-9)
	assert.Nil(t, cfs.Row(1).Get("cms"))

	assert.Equal(t, 2, tbl.Head(2).Len())
	assert.Equal(t, 4, tbl.Head(10).Len())
	assert.Equal(t, 0, tbl.Head(-1).Len())
}

func TestPlainSummarise(t *testing.T) {
	tbl := gauges(t)
	sum, err := tbl.Summarise("basin",
		Count("n"),
		Sum("total", "flow"),
		Mean("mean", "flow"),
		Min("low", "flow"),
		Max("high", "flow"),
		First("first", "site"),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"basin", "n", "total", "mean", "low", "high", "first"}, sum.Columns())
	require.Equal(t, 2, sum.Len())

	rg := sum.Row(0)
	assert.Equal(t, "rio grande", rg.Get("basin"))
	assert.Equal(t, int64(3), rg.Get("n"))
	assert.InDelta(t, 792.5, rg.Get("total"), 1e-9)
	assert.InDelta(t, 396.25, rg.Get("mean"), 1e-9)
	assert.Equal(t, 380.5, rg.Get("low"))
	assert.Equal(t, 412.0, rg.Get("high"))
	assert.Equal(t, "08313000", rg.Get("first"))

	all, err := tbl.Summarise("", Count("n"))
	require.NoError(t, err)
	require.Equal(t, 1, all.Len())
	assert.Equal(t, int64(4), all.Row(0).Get("n"))

	_, err = tbl.Summarise("region", Count("n"))
	assert.Error(t, err)
	_, err = tbl.Summarise("basin", Sum("x", "stage"))
	assert.Error(t, err)
	_, err = tbl.Summarise("basin", Aggregation{Name: "broken"})
	assert.Error(t, err)
}

func TestSpatialStickyGeometry(t *testing.T) {
	tbl := parcels(t)
	assert.Equal(t, []string{"zone", "area", GeometryColumn}, tbl.Columns())

	sel, err := tbl.Select("area")
	require.NoError(t, err)
	st := sel.(*SpatialTable)
	assert.Equal(t, []string{"area", GeometryColumn}, st.Columns())
	assert.Equal(t, square(0, 0, 2, 2), st.Row(0).Geometry)
	assert.Nil(t, st.Row(0).Get("zone"))

	sel, err = tbl.Select(GeometryColumn)
	require.NoError(t, err)
	assert.Equal(t, []string{GeometryColumn}, sel.Columns())
	assert.Equal(t, 3, sel.Len())

	plain := tbl.Drop()
	assert.Equal(t, []string{"zone", "area"}, plain.Columns())
	assert.Nil(t, plain.Row(0).Geometry)

	for _, derived := range []Table{
		tbl.Filter(func(r Row) bool { return r.String("zone") == "r1" }),
		tbl.Arrange("area", false),
		tbl.Head(2),
		tbl.Mutate("double", func(r Row) any { v, _ := r.Float("area"); return 2 * v }),
	} {
		_, ok := derived.(*SpatialTable)
		assert.True(t, ok)
		assert.NotNil(t, derived.Row(0).Geometry)
	}

	arranged := tbl.Arrange("area", false)
	assert.Equal(t, []string{"p3", "p1", "p2"}, ids(arranged))
}

func TestSpatialSummariseDissolves(t *testing.T) {
	tbl := parcels(t)
	out, err := tbl.Summarise("zone", Count("n"), Sum("area", "area"))
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, []string{"r1", "c2"}, ids(out))

	r1 := out.Row(0)
	assert.Equal(t, int64(2), r1.Get("n"))
	assert.Equal(t, 8.0, r1.Get("area"))
	assert.InDelta(t, 7.0, planar.Area(r1.Geometry), 1e-9)
	assert.InDelta(t, 1.0, planar.Area(out.Row(1).Geometry), 1e-9)
}

func TestSpatialJoin(t *testing.T) {
	left := parcels(t)

	fc := geo.NewFeatureCollection(utm13)
	for _, p := range []struct {
		id   string
		pt   orb.Point
		zone string
	}{
		{"w1", orb.Point{0.5, 0.5}, "well"},
		{"w2", orb.Point{2.5, 1.5}, "well"},
		{"w3", orb.Point{50, 50}, "well"},
	} {
		f := geo.NewFeature(p.id, p.pt, utm13)
		f.Attributes.Set("zone", p.zone)
		f.Attributes.Set("depth", 30.0)
		require.NoError(t, fc.Add(f))
	}
	right := NewSpatialTable(fc)

	joined, err := left.Join(right, "contains")
	require.NoError(t, err)
	assert.Equal(t, []string{"zone", "area", "zone_right", "depth", GeometryColumn}, joined.Columns())
	assert.Equal(t, []string{"p1", "p2"}, ids(joined))
	assert.Equal(t, "r1", joined.Row(0).Get("zone"))
	assert.Equal(t, "well", joined.Row(0).Get("zone_right"))

	near, err := left.Join(right, "is_within_distance", 40)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p1", "p2", "p2", "p3", "p3"}, ids(near))

	disjoint, err := left.Join(right, "disjoint")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p1", "p2", "p2", "p3", "p3", "p3"}, ids(disjoint))

	_, err = left.Join(right, "nearby")
	var upe *predicate.UnknownPredicateError
	assert.True(t, errors.As(err, &upe))

	other := NewSpatialTable(geo.NewFeatureCollection(geo.WGS84))
	_, err = left.Join(other, "intersects")
	var crsErr *geo.CRSError
	assert.True(t, errors.As(err, &crsErr))
}
