package geo

import (
	"testing"

	"github.com/paulmach/orb"
)

// gridCollection spreads n unit squares over a 100 by 100 degree area.
func gridCollection(n int) *FeatureCollection {
	fc := NewFeatureCollection(WGS84)
	side := 1
	for side*side < n {
		side++
	}
	step := 100.0 / float64(side)
	for i := 0; i < n; i++ {
		x := -100 + float64(i%side)*step
		y := float64(i/side) * step * 0.75
		poly := orb.Polygon{{{x, y}, {x + 0.5, y}, {x + 0.5, y + 0.5}, {x, y + 0.5}, {x, y}}}
		_ = fc.Add(NewFeature("", poly, nil))
	}
	return fc
}

// linearSearch is the scan the index replaces.
func linearSearch(fc *FeatureCollection, b orb.Bound) []*Feature {
	var out []*Feature
	for _, f := range fc.Features {
		if f.Bound().Intersects(b) {
			out = append(out, f)
		}
	}
	return out
}

var (
	smallViewport = orb.Bound{Min: orb.Point{-60, 20}, Max: orb.Point{-55, 25}}
	largeViewport = orb.Bound{Min: orb.Point{-80, 10}, Max: orb.Point{-30, 60}}
)

func BenchmarkSearchIndex(b *testing.B) {
	idx := NewIndex(gridCollection(10000))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = idx.Search(smallViewport)
	}
}

func BenchmarkSearchLinear(b *testing.B) {
	fc := gridCollection(10000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = linearSearch(fc, smallViewport)
	}
}

func BenchmarkSearchIndexLargeViewport(b *testing.B) {
	idx := NewIndex(gridCollection(10000))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = idx.Search(largeViewport)
	}
}

func BenchmarkSearchLinearLargeViewport(b *testing.B) {
	fc := gridCollection(10000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = linearSearch(fc, largeViewport)
	}
}

func BenchmarkNewIndex(b *testing.B) {
	fc := gridCollection(10000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = NewIndex(fc)
	}
}

func TestIndexMatchesLinearScan(t *testing.T) {
	fc := gridCollection(2500)
	idx := NewIndex(fc)
	for _, vp := range []orb.Bound{smallViewport, largeViewport} {
		got := idx.Search(vp)
		want := linearSearch(fc, vp)
		if len(got) != len(want) {
			t.Fatalf("index returned %d features, scan %d", len(got), len(want))
		}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("result %d differs from scan order", i)
			}
		}
	}
}
