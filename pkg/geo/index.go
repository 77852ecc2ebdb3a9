package geo

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// Index provides O(log n) bounding-box queries over a feature collection
// using an R-tree.
//
// Results come back in collection order, so code that assigns features by
// "first match wins" stays deterministic.
//
// Example:
//
//	idx := geo.NewIndex(fc)
//	for _, f := range idx.Search(viewport) {
//	    fmt.Println(f.ID)
//	}
type Index struct {
	rtree    *rtreego.Rtree
	features []*Feature
}

// indexedFeature wraps a feature for R-tree storage.
type indexedFeature struct {
	pos  int
	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (f *indexedFeature) Bounds() rtreego.Rect {
	return f.rect
}

// NewIndex builds an index over every non-empty feature of fc.
func NewIndex(fc *FeatureCollection) *Index {
	idx := &Index{
		rtree:    rtreego.NewTree(2, 25, 50),
		features: fc.Features,
	}
	for i, f := range fc.Features {
		if IsEmpty(f.Geometry) {
			continue
		}
		idx.rtree.Insert(&indexedFeature{pos: i, rect: BoundRect(f.Geometry.Bound())})
	}
	return idx
}

// Size returns the number of indexed features.
func (idx *Index) Size() int {
	return idx.rtree.Size()
}

// Search returns the features whose bounding boxes intersect b, touching
// included, in collection order.
func (idx *Index) Search(b orb.Bound) []*Feature {
	positions := idx.SearchPositions(b)
	out := make([]*Feature, len(positions))
	for i, p := range positions {
		out[i] = idx.features[p]
	}
	return out
}

// SearchPositions is like Search but returns collection positions.
func (idx *Index) SearchPositions(b orb.Bound) []int {
	hits := idx.rtree.SearchIntersect(BoundRect(b))
	positions := make([]int, len(hits))
	for i, h := range hits {
		positions[i] = h.(*indexedFeature).pos
	}
	sort.Ints(positions)
	return positions
}

// Nearest returns up to k features whose bounding boxes are closest to p.
func (idx *Index) Nearest(p orb.Point, k int) []*Feature {
	if k <= 0 || idx.rtree.Size() == 0 {
		return nil
	}
	hits := idx.rtree.NearestNeighbors(k, rtreego.Point{p[0], p[1]})
	out := make([]*Feature, 0, len(hits))
	for _, h := range hits {
		if h == nil {
			continue
		}
		out = append(out, idx.features[h.(*indexedFeature).pos])
	}
	return out
}

// BoundRect converts a bound to an R-tree rectangle. The rectangle is
// padded by a relative epsilon on every side because rtreego treats
// touching rectangles as disjoint and rejects zero-length sides.
func BoundRect(b orb.Bound) rtreego.Rect {
	scale := math.Max(1, math.Max(
		math.Max(math.Abs(b.Min[0]), math.Abs(b.Max[0])),
		math.Max(math.Abs(b.Min[1]), math.Abs(b.Max[1]))))
	pad := scale * 1e-9
	rect, _ := rtreego.NewRectFromPoints(
		rtreego.Point{b.Min[0] - pad, b.Min[1] - pad},
		rtreego.Point{b.Max[0] + pad, b.Max[1] + pad},
	)
	return rect
}
