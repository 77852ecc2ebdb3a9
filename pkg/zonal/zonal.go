package zonal

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/predicate"
	"github.com/beetlebugorg/geokit/pkg/raster"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultTileRows is the number of raster rows per work unit.
const DefaultTileRows = 256

// Statistic names a per-zone aggregate.
type Statistic int

const (
	Mean Statistic = iota
	Sum
	Min
	Max
	Count
	Majority
)

var statNames = [...]string{"mean", "sum", "min", "max", "count", "majority"}

func (s Statistic) String() string {
	if s < 0 || int(s) >= len(statNames) {
		return "Statistic(" + strconv.Itoa(int(s)) + ")"
	}
	return statNames[s]
}

// ParseStatistic resolves a statistic name, ignoring case. "mode" is an
// alias for majority.
func ParseStatistic(name string) (Statistic, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "mode" {
		return Majority, nil
	}
	for i, s := range statNames {
		if s == n {
			return Statistic(i), nil
		}
	}
	return 0, &UnknownStatisticError{Name: name}
}

// UnknownStatisticError reports a statistic name that is not supported.
type UnknownStatisticError struct {
	Name string
}

func (e *UnknownStatisticError) Error() string {
	return fmt.Sprintf("unknown zonal statistic %q", e.Name)
}

// DuplicateZoneError reports two zones with the same ID.
type DuplicateZoneError struct {
	ID            string
	First, Second int
}

func (e *DuplicateZoneError) Error() string {
	return fmt.Sprintf("duplicate zone id %q at features %d and %d", e.ID, e.First, e.Second)
}

// Options controls zonal aggregation.
type Options struct {
	// AllTouched assigns a cell to every zone its box intersects. A cell
	// on a shared border is then counted once per zone, so per-zone counts
	// can add up to more than the raster holds. When false a cell goes to
	// the first zone, in collection order, that covers its centre.
	AllTouched bool

	// IncludeNoData aggregates nodata cells at their sentinel value
	// instead of skipping them.
	IncludeNoData bool

	// Band selects the raster band, from 0.
	Band int

	// Parallel aggregates row tiles on a worker pool.
	Parallel bool

	// Workers bounds the pool. Zero means runtime.NumCPU().
	Workers int

	// TileSize is the number of rows per tile. Zero means DefaultTileRows.
	TileSize int

	// Logger receives per-tile debug events. Nil discards them.
	Logger *zerolog.Logger
}

// ZoneSummary holds every statistic for one zone.
type ZoneSummary struct {
	ID       string
	Count    int
	Sum      float64
	Mean     float64
	Min      float64
	Max      float64
	Majority float64
}

// Value returns the named statistic.
func (z ZoneSummary) Value(s Statistic) float64 {
	switch s {
	case Sum:
		return z.Sum
	case Min:
		return z.Min
	case Max:
		return z.Max
	case Count:
		return float64(z.Count)
	case Majority:
		return z.Majority
	}
	return z.Mean
}

// Aggregate computes one statistic for each zone of zones over band
// opts.Band of r, keyed by zone ID. Zones with no cells get NaN, except
// for count and sum which are 0.
func Aggregate(r *raster.Raster, zones *geo.FeatureCollection, stat Statistic, opts Options) (map[string]float64, error) {
	if stat < Mean || stat > Majority {
		return nil, &UnknownStatisticError{Name: stat.String()}
	}
	summaries, err := Summarize(r, zones, opts)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(summaries))
	for _, s := range summaries {
		out[s.ID] = s.Value(stat)
	}
	return out, nil
}

// Summarize computes every statistic for each zone, in collection order.
func Summarize(r *raster.Raster, zones *geo.FeatureCollection, opts Options) ([]ZoneSummary, error) {
	if err := checkCRS(r, zones); err != nil {
		return nil, err
	}
	if opts.Band < 0 || opts.Band >= r.Bands() {
		return nil, fmt.Errorf("zonal: band %d out of range [0,%d)", opts.Band, r.Bands())
	}
	ids, err := zoneIDs(zones)
	if err != nil {
		return nil, err
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	rows := opts.TileSize
	if rows <= 0 {
		rows = DefaultTileRows
	}

	z := &zoner{
		r:     r,
		index: geo.NewIndex(zones),
		zones: make([]*predicate.Prepared, zones.Len()),
		opts:  opts,
	}
	for i, f := range zones.Features {
		z.zones[i] = predicate.Prepare(f.Geometry)
	}

	windows := r.RowTiles(rows)
	partial := make([][]accumulator, len(windows))

	run := func(i int) {
		partial[i] = z.tile(windows[i])
		log.Debug().
			Str("window", windows[i].String()).
			Int("tile", i).
			Msg("Zonal tile aggregated")
	}

	if opts.Parallel {
		workers := opts.Workers
		if workers <= 0 {
			workers = runtime.NumCPU()
		}
		g, ctx := errgroup.WithContext(context.Background())
		g.SetLimit(workers)
		for i := range windows {
			i := i
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				run(i)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range windows {
			run(i)
		}
	}

	total := make([]accumulator, zones.Len())
	for _, p := range partial {
		for j := range total {
			total[j].merge(&p[j])
		}
	}

	out := make([]ZoneSummary, len(total))
	for j := range total {
		out[j] = total[j].summary(ids[j])
	}
	log.Debug().Int("zones", len(out)).Int("tiles", len(windows)).Msg("Zonal statistics computed")
	return out, nil
}

func checkCRS(r *raster.Raster, zones *geo.FeatureCollection) error {
	if r.CRS() == nil {
		return &geo.CRSError{Op: "zonal", Reason: "raster has no CRS"}
	}
	if err := zones.RequireCRS("zonal"); err != nil {
		return err
	}
	if !r.CRS().Equal(zones.CRS) {
		return &geo.CRSError{Op: "zonal", CRS: zones.CRS.String(), Reason: "zones do not match raster CRS " + r.CRS().String()}
	}
	return nil
}

// zoneIDs returns the feature IDs, using the decimal position for features
// without one.
func zoneIDs(zones *geo.FeatureCollection) ([]string, error) {
	ids := make([]string, zones.Len())
	seen := make(map[string]int, zones.Len())
	for i, f := range zones.Features {
		id := f.ID
		if id == "" {
			id = strconv.Itoa(i)
		}
		if first, ok := seen[id]; ok {
			return nil, &DuplicateZoneError{ID: id, First: first, Second: i}
		}
		seen[id] = i
		ids[i] = id
	}
	return ids, nil
}

type zoner struct {
	r     *raster.Raster
	index *geo.Index
	zones []*predicate.Prepared
	opts  Options
}

// tile accumulates one window. It only reads shared state.
func (z *zoner) tile(win raster.Window) []accumulator {
	acc := make([]accumulator, len(z.zones))
	b0 := z.r.CellBound(win.Col, win.Row)
	b1 := z.r.CellBound(win.Col+win.Width-1, win.Row+win.Height-1)
	candidates := z.index.SearchPositions(b0.Union(b1))
	if len(candidates) == 0 {
		return acc
	}

	for row := win.Row; row < win.Row+win.Height; row++ {
		for col := win.Col; col < win.Col+win.Width; col++ {
			v := z.r.At(z.opts.Band, col, row)
			if !z.opts.IncludeNoData && z.r.IsNoData(v) {
				continue
			}
			cell := z.r.CellBound(col, row)
			for _, j := range candidates {
				p := z.zones[j]
				if !p.Bound().Intersects(cell) {
					continue
				}
				if !raster.Inside(z.r, p, col, row, z.opts.AllTouched) {
					continue
				}
				acc[j].add(v)
				if !z.opts.AllTouched {
					break
				}
			}
		}
	}
	return acc
}

type accumulator struct {
	count    int
	sum      float64
	min, max float64
	nan      int
	hist     map[float64]int
}

func (a *accumulator) add(v float64) {
	a.count++
	a.sum += v
	if math.IsNaN(v) {
		a.nan++
		return
	}
	if a.count-a.nan == 1 {
		a.min, a.max = v, v
	} else {
		a.min = math.Min(a.min, v)
		a.max = math.Max(a.max, v)
	}
	if a.hist == nil {
		a.hist = make(map[float64]int)
	}
	a.hist[v]++
}

func (a *accumulator) merge(o *accumulator) {
	if o.count == 0 {
		return
	}
	if o.count > o.nan {
		if a.count == a.nan {
			a.min, a.max = o.min, o.max
		} else {
			a.min = math.Min(a.min, o.min)
			a.max = math.Max(a.max, o.max)
		}
	}
	a.count += o.count
	a.sum += o.sum
	a.nan += o.nan
	if len(o.hist) > 0 && a.hist == nil {
		a.hist = make(map[float64]int, len(o.hist))
	}
	for v, n := range o.hist {
		a.hist[v] += n
	}
}

// majority returns the most frequent value, the smallest on ties.
func (a *accumulator) majority() float64 {
	values := make([]float64, 0, len(a.hist))
	for v := range a.hist {
		values = append(values, v)
	}
	sort.Float64s(values)
	best, bestN := math.NaN(), a.nan
	for _, v := range values {
		if n := a.hist[v]; n > bestN || (n == bestN && math.IsNaN(best)) {
			best, bestN = v, n
		}
	}
	return best
}

func (a *accumulator) summary(id string) ZoneSummary {
	s := ZoneSummary{ID: id, Count: a.count, Sum: a.sum}
	if a.count == 0 {
		nan := math.NaN()
		s.Mean, s.Min, s.Max, s.Majority = nan, nan, nan, nan
		return s
	}
	s.Mean = a.sum / float64(a.count)
	s.Min, s.Max = math.NaN(), math.NaN()
	if a.count > a.nan {
		s.Min, s.Max = a.min, a.max
	}
	s.Majority = a.majority()
	return s
}
