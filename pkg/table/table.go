package table

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/paulmach/orb"
)

// GeometryColumn is the name a SpatialTable reports for its geometry.
const GeometryColumn = "geometry"

// Table is the set of verbs shared by attribute-only and spatial tables.
// Verbs never modify the receiver; each returns a new table of the same
// kind.
type Table interface {
	Len() int
	Columns() []string
	Row(i int) Row

	Filter(keep func(Row) bool) Table
	Select(cols ...string) (Table, error)
	Arrange(col string, desc bool) Table
	Mutate(col string, fn func(Row) any) Table
	Head(n int) Table
	Summarise(by string, aggs ...Aggregation) (Table, error)
}

// UnknownColumnError is returned when a verb names a column the table does
// not have.
type UnknownColumnError struct {
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column %q", e.Column)
}

// Row is a read-only view of one table row. Geometry is nil for rows of a
// PlainTable.
type Row struct {
	ID       string
	Geometry orb.Geometry
	attrs    *geo.Attributes
}

// Get returns the value of col, or nil when the row has none.
func (r Row) Get(col string) any {
	v, _ := r.attrs.Get(col)
	return v
}

// Float returns the value of col as a float64 when it is numeric.
func (r Row) Float(col string) (float64, bool) {
	return number(r.Get(col))
}

// String returns the value of col formatted with fmt, or "" for nil.
func (r Row) String(col string) string {
	v := r.Get(col)
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Attributes returns a copy of the row's attributes.
func (r Row) Attributes() *geo.Attributes {
	return r.attrs.Clone()
}

// Aggregation reduces the values of Column within a group to one value
// named Name. Fn receives one value per row, nil included.
type Aggregation struct {
	Name   string
	Column string
	Fn     func(values []any) any
}

// Count counts the rows of each group.
func Count(name string) Aggregation {
	return Aggregation{Name: name, Fn: func(values []any) any {
		return int64(len(values))
	}}
}

// Sum adds the numeric values of col. Non-numeric values are skipped.
func Sum(name, col string) Aggregation {
	return Aggregation{Name: name, Column: col, Fn: func(values []any) any {
		var s float64
		for _, v := range values {
			if f, ok := number(v); ok {
				s += f
			}
		}
		return s
	}}
}

// Mean averages the numeric values of col, or yields nil when there are
// none.
func Mean(name, col string) Aggregation {
	return Aggregation{Name: name, Column: col, Fn: func(values []any) any {
		var s float64
		n := 0
		for _, v := range values {
			if f, ok := number(v); ok {
				s += f
				n++
			}
		}
		if n == 0 {
			return nil
		}
		return s / float64(n)
	}}
}

// Min yields the smallest value of col by the same ordering as Arrange.
func Min(name, col string) Aggregation {
	return Aggregation{Name: name, Column: col, Fn: func(values []any) any {
		return extreme(values, -1)
	}}
}

// Max yields the largest value of col by the same ordering as Arrange.
func Max(name, col string) Aggregation {
	return Aggregation{Name: name, Column: col, Fn: func(values []any) any {
		return extreme(values, 1)
	}}
}

// First yields the first non-nil value of col.
func First(name, col string) Aggregation {
	return Aggregation{Name: name, Column: col, Fn: func(values []any) any {
		for _, v := range values {
			if v != nil {
				return v
			}
		}
		return nil
	}}
}

func extreme(values []any, sign int) any {
	var best any
	for _, v := range values {
		if v == nil {
			continue
		}
		if best == nil || compare(v, best)*sign > 0 {
			best = v
		}
	}
	return best
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// rank orders values of different kinds: numbers, strings, booleans,
// anything else, then nil.
func rank(v any) int {
	if v == nil {
		return 4
	}
	if _, ok := number(v); ok {
		return 0
	}
	switch v.(type) {
	case string:
		return 1
	case bool:
		return 2
	}
	return 3
}

func compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0:
		fa, _ := number(a)
		fb, _ := number(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 1:
		return strings.Compare(a.(string), b.(string))
	case 2:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		}
		return 1
	case 3:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
	return 0
}

// arrange returns row positions sorted by col. Nil values sort last in
// both directions and ties keep their input order.
func arrange(n int, get func(i int) any, desc bool) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool {
		a, b := get(order[x]), get(order[y])
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		c := compare(a, b)
		if desc {
			return c > 0
		}
		return c < 0
	})
	return order
}

// group is one Summarise group: the key value and its row positions.
type group struct {
	key  any
	rows []int
}

// groupBy partitions rows by the value of by, in first-seen order. An
// empty by puts every row in one group.
func groupBy(n int, get func(i int) any, by string) []*group {
	if by == "" {
		g := &group{}
		for i := 0; i < n; i++ {
			g.rows = append(g.rows, i)
		}
		return []*group{g}
	}
	index := map[string]*group{}
	var out []*group
	for i := 0; i < n; i++ {
		v := get(i)
		k := fmt.Sprintf("%T:%v", v, v)
		g, ok := index[k]
		if !ok {
			g = &group{key: v}
			index[k] = g
			out = append(out, g)
		}
		g.rows = append(g.rows, i)
	}
	return out
}

// summarise computes the output attributes of one group.
func summarise(g *group, by string, aggs []Aggregation, row func(i int) Row) *geo.Attributes {
	out := geo.NewAttributes()
	if by != "" {
		out.Set(by, g.key)
	}
	for _, a := range aggs {
		values := make([]any, len(g.rows))
		for j, i := range g.rows {
			if a.Column != "" {
				values[j] = row(i).Get(a.Column)
			}
		}
		out.Set(a.Name, a.Fn(values))
	}
	return out
}

func checkColumns(have []string, want ...string) error {
	known := make(map[string]bool, len(have))
	for _, c := range have {
		known[c] = true
	}
	for _, c := range want {
		if c != "" && !known[c] {
			return &UnknownColumnError{Column: c}
		}
	}
	return nil
}

func checkAggregations(cols []string, aggs []Aggregation) error {
	for _, a := range aggs {
		if a.Name == "" || a.Fn == nil {
			return fmt.Errorf("aggregation over %q needs a name and a function", a.Column)
		}
		if err := checkColumns(cols, a.Column); err != nil {
			return err
		}
	}
	return nil
}
