package table

import (
	"fmt"

	"github.com/beetlebugorg/geokit/pkg/geo"
)

// PlainTable is a table of attribute rows without geometry.
type PlainTable struct {
	cols []string
	rows []*geo.Attributes
}

var _ Table = (*PlainTable)(nil)

// NewPlainTable creates an empty table with the given columns.
func NewPlainTable(cols ...string) *PlainTable {
	return &PlainTable{cols: append([]string(nil), cols...)}
}

// AppendRow adds a row with one value per column, in column order.
func (t *PlainTable) AppendRow(values ...any) error {
	if len(values) != len(t.cols) {
		return fmt.Errorf("append row: got %d values for %d columns", len(values), len(t.cols))
	}
	attrs := geo.NewAttributes()
	for i, c := range t.cols {
		attrs.Set(c, values[i])
	}
	t.rows = append(t.rows, attrs)
	return nil
}

func (t *PlainTable) Len() int { return len(t.rows) }

func (t *PlainTable) Columns() []string {
	return append([]string(nil), t.cols...)
}

func (t *PlainTable) Row(i int) Row {
	return Row{attrs: t.rows[i]}
}

func (t *PlainTable) with(rows []*geo.Attributes) *PlainTable {
	return &PlainTable{cols: t.Columns(), rows: rows}
}

func (t *PlainTable) Filter(keep func(Row) bool) Table {
	var rows []*geo.Attributes
	for i, r := range t.rows {
		if keep(t.Row(i)) {
			rows = append(rows, r.Clone())
		}
	}
	return t.with(rows)
}

func (t *PlainTable) Select(cols ...string) (Table, error) {
	if err := checkColumns(t.cols, cols...); err != nil {
		return nil, err
	}
	out := NewPlainTable(cols...)
	for _, r := range t.rows {
		attrs := geo.NewAttributes()
		for _, c := range cols {
			v, _ := r.Get(c)
			attrs.Set(c, v)
		}
		out.rows = append(out.rows, attrs)
	}
	return out, nil
}

// Arrange sorts rows by col. An unknown column leaves the order unchanged.
func (t *PlainTable) Arrange(col string, desc bool) Table {
	order := arrange(len(t.rows), func(i int) any { return t.Row(i).Get(col) }, desc)
	rows := make([]*geo.Attributes, len(order))
	for j, i := range order {
		rows[j] = t.rows[i].Clone()
	}
	return t.with(rows)
}

// Mutate sets col on every row to fn's result, adding the column when it
// is new.
func (t *PlainTable) Mutate(col string, fn func(Row) any) Table {
	out := t.with(make([]*geo.Attributes, len(t.rows)))
	if checkColumns(t.cols, col) != nil {
		out.cols = append(out.cols, col)
	}
	for i, r := range t.rows {
		attrs := r.Clone()
		attrs.Set(col, fn(t.Row(i)))
		out.rows[i] = attrs
	}
	return out
}

func (t *PlainTable) Head(n int) Table {
	n = max(0, min(n, len(t.rows)))
	rows := make([]*geo.Attributes, n)
	for i := range rows {
		rows[i] = t.rows[i].Clone()
	}
	return t.with(rows)
}

// Summarise groups rows by the value of by, or treats the whole table as
// one group when by is empty, and reduces each group with aggs. The
// result has the by column followed by one column per aggregation.
func (t *PlainTable) Summarise(by string, aggs ...Aggregation) (Table, error) {
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
	out := NewPlainTable(cols...)
	for _, g := range groupBy(len(t.rows), func(i int) any { return t.Row(i).Get(by) }, by) {
		out.rows = append(out.rows, summarise(g, by, aggs, t.Row))
	}
	return out, nil
}
