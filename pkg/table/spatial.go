package table

import (
	"fmt"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/predicate"
	"github.com/beetlebugorg/geokit/pkg/transform"
	"github.com/paulmach/orb"
)

// SpatialTable is a table view of a feature collection. The geometry
// column is sticky: Select always keeps it and only Drop removes it.
type SpatialTable struct {
	fc   *geo.FeatureCollection
	cols []string
}

var _ Table = (*SpatialTable)(nil)

// NewSpatialTable wraps fc. Columns are the attribute names in first-seen
// order.
func NewSpatialTable(fc *geo.FeatureCollection) *SpatialTable {
	seen := map[string]bool{}
	var cols []string
	for _, f := range fc.Features {
		for _, k := range f.Attributes.Keys() {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return &SpatialTable{fc: fc, cols: cols}
}

// Collection returns the features behind the table.
func (t *SpatialTable) Collection() *geo.FeatureCollection { return t.fc }

func (t *SpatialTable) Len() int { return t.fc.Len() }

// Columns returns the attribute columns followed by GeometryColumn.
func (t *SpatialTable) Columns() []string {
	return append(append([]string(nil), t.cols...), GeometryColumn)
}

func (t *SpatialTable) Row(i int) Row {
	f := t.fc.Features[i]
	return Row{ID: f.ID, Geometry: f.Geometry, attrs: f.Attributes}
}

func (t *SpatialTable) with(features []*geo.Feature, cols []string) *SpatialTable {
	return &SpatialTable{
		fc:   &geo.FeatureCollection{CRS: t.fc.CRS, Features: features},
		cols: cols,
	}
}

func (t *SpatialTable) attrCols() []string {
	return append([]string(nil), t.cols...)
}

func (t *SpatialTable) Filter(keep func(Row) bool) Table {
	var out []*geo.Feature
	for i, f := range t.fc.Features {
		if keep(t.Row(i)) {
			out = append(out, f.Clone())
		}
	}
	return t.with(out, t.attrCols())
}

// Select keeps cols and the geometry. Naming GeometryColumn is allowed
// and changes nothing.
func (t *SpatialTable) Select(cols ...string) (Table, error) {
	var keep []string
	for _, c := range cols {
		if c != GeometryColumn {
			keep = append(keep, c)
		}
	}
	if err := checkColumns(t.cols, keep...); err != nil {
		return nil, err
	}
	out := make([]*geo.Feature, len(t.fc.Features))
	for i, f := range t.fc.Features {
		nf := geo.NewFeature(f.ID, geo.Clone(f.Geometry), f.CRS)
		for _, c := range keep {
			v, _ := f.Attributes.Get(c)
			nf.Attributes.Set(c, v)
		}
		out[i] = nf
	}
	return t.with(out, keep), nil
}

// Arrange sorts features by col. An unknown column leaves the order
// unchanged.
func (t *SpatialTable) Arrange(col string, desc bool) Table {
	order := arrange(t.Len(), func(i int) any { return t.Row(i).Get(col) }, desc)
	out := make([]*geo.Feature, len(order))
	for j, i := range order {
		out[j] = t.fc.Features[i].Clone()
	}
	return t.with(out, t.attrCols())
}

func (t *SpatialTable) Mutate(col string, fn func(Row) any) Table {
	cols := t.attrCols()
	if checkColumns(cols, col) != nil {
		cols = append(cols, col)
	}
	out := make([]*geo.Feature, t.Len())
	for i, f := range t.fc.Features {
		nf := f.Clone()
		nf.Attributes.Set(col, fn(t.Row(i)))
		out[i] = nf
	}
	return t.with(out, cols)
}

func (t *SpatialTable) Head(n int) Table {
	n = max(0, min(n, t.Len()))
	out := make([]*geo.Feature, n)
	for i := range out {
		out[i] = t.fc.Features[i].Clone()
	}
	return t.with(out, t.attrCols())
}

// Summarise groups features by the value of by and reduces each group
// with aggs. The geometry of each output feature is the union of its
// group's geometries, and its ID is the group key.
func (t *SpatialTable) Summarise(by string, aggs ...Aggregation) (Table, error) {
	if err := checkColumns(t.cols, by); err != nil {
		return nil, err
	}
	if err := checkAggregations(t.cols, aggs); err != nil {
		return nil, err
	}
	var cols []string
	if by != "" {
		cols = append(cols, by)
	}
	for _, a := range aggs {
		cols = append(cols, a.Name)
	}

	groups := groupBy(t.Len(), func(i int) any { return t.Row(i).Get(by) }, by)
	out := make([]*geo.Feature, 0, len(groups))
	for n, g := range groups {
		geoms := make([]orb.Geometry, len(g.rows))
		for j, i := range g.rows {
			geoms[j] = t.fc.Features[i].Geometry
		}
		id := fmt.Sprint(n)
		if by != "" {
			id = fmt.Sprint(g.key)
		}
		f := geo.NewFeature(id, transform.Union(geoms...), t.fc.CRS)
		f.Attributes = summarise(g, by, aggs, t.Row)
		out = append(out, f)
	}
	return t.with(out, cols), nil
}

// Drop removes the geometry and returns the attributes as a PlainTable.
func (t *SpatialTable) Drop() *PlainTable {
	out := NewPlainTable(t.cols...)
	for _, f := range t.fc.Features {
		attrs := geo.NewAttributes()
		for _, c := range t.cols {
			v, _ := f.Attributes.Get(c)
			attrs.Set(c, v)
		}
		out.rows = append(out.rows, attrs)
	}
	return out
}

// Join pairs every feature of t with every feature of other for which the
// named predicate holds, in the order (t feature, other feature). Each
// output feature keeps the left geometry and ID and carries both sets of
// attributes; a right column whose name is taken gets a "_right" suffix.
// Left features without a match are dropped.
//
// Parameterised predicates take their parameter in params, as for
// predicate.Evaluate. Both tables must share a CRS.
func (t *SpatialTable) Join(other *SpatialTable, name string, params ...float64) (*SpatialTable, error) {
	if err := t.fc.RequireCRS("join"); err != nil {
		return nil, err
	}
	if err := other.fc.RequireCRS("join"); err != nil {
		return nil, err
	}
	if !t.fc.CRS.Equal(other.fc.CRS) {
		return nil, &geo.CRSError{
			Op:     "join",
			CRS:    other.fc.CRS.String(),
			Reason: fmt.Sprintf("differs from %s; reproject first", t.fc.CRS),
		}
	}

	// A predicate that holds for two far-apart points cannot be narrowed
	// with the bounding-box index.
	var pad float64
	if len(params) > 0 {
		pad = params[0]
	}
	apart, err := predicate.Evaluate(name, orb.Point{0, 0}, orb.Point{2*pad + 1, 0}, params...)
	if err != nil {
		return nil, err
	}

	cols := t.attrCols()
	taken := map[string]bool{}
	for _, c := range cols {
		taken[c] = true
	}
	rename := make(map[string]string, len(other.cols))
	for _, c := range other.cols {
		col := c
		if taken[col] {
			col += "_right"
		}
		taken[col] = true
		rename[c] = col
		cols = append(cols, col)
	}

	idx := geo.NewIndex(other.fc)
	var out []*geo.Feature
	for _, lf := range t.fc.Features {
		var candidates []int
		if apart || geo.IsEmpty(lf.Geometry) {
			candidates = make([]int, other.Len())
			for i := range candidates {
				candidates[i] = i
			}
		} else {
			candidates = idx.SearchPositions(lf.Bound().Pad(pad))
		}
		for _, i := range candidates {
			rf := other.fc.Features[i]
			ok, err := predicate.Evaluate(name, lf.Geometry, rf.Geometry, params...)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			nf := lf.Clone()
			for _, c := range rf.Attributes.Keys() {
				v, _ := rf.Attributes.Get(c)
				nf.Attributes.Set(rename[c], v)
			}
			out = append(out, nf)
		}
	}
	return t.with(out, cols), nil
}
