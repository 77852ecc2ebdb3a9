package transform

import (
	"fmt"
	"math"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Reproject returns a new collection with every geometry transformed to
// target. Reprojecting to the collection's own CRS returns an unchanged
// copy.
func Reproject(fc *geo.FeatureCollection, target *geo.CRS) (*geo.FeatureCollection, error) {
	if err := fc.RequireCRS("reproject"); err != nil {
		return nil, err
	}
	if target == nil {
		return nil, &geo.CRSError{Op: "reproject", Reason: "target CRS is required"}
	}
	if fc.CRS.Equal(target) {
		return fc.Clone(), nil
	}

	proj, err := geo.Transformer(fc.CRS, target)
	if err != nil {
		return nil, err
	}

	out := geo.NewFeatureCollection(target)
	for _, f := range fc.Features {
		g, err := apply(f.Geometry, proj, fc.CRS, target)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", f.ID, err)
		}
		nf := f.Clone()
		nf.Geometry = g
		nf.CRS = target
		if err := out.Add(nf); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReprojectGeometry transforms a single geometry from src to dst and
// returns a new geometry.
func ReprojectGeometry(g orb.Geometry, src, dst *geo.CRS) (orb.Geometry, error) {
	proj, err := geo.Transformer(src, dst)
	if err != nil {
		return nil, err
	}
	if src.Equal(dst) {
		return geo.Clone(g), nil
	}
	return apply(g, proj, src, dst)
}

// ReprojectFeature returns a copy of f in dst.
func ReprojectFeature(f *geo.Feature, dst *geo.CRS) (*geo.Feature, error) {
	if f.CRS == nil {
		return nil, &geo.CRSError{Op: "reproject", CRS: f.ID, Reason: "feature has no CRS"}
	}
	g, err := ReprojectGeometry(f.Geometry, f.CRS, dst)
	if err != nil {
		return nil, err
	}
	out := f.Clone()
	out.Geometry = g
	out.CRS = dst
	return out, nil
}

// apply projects a clone of g and rejects non-finite results.
func apply(g orb.Geometry, proj orb.Projection, src, dst *geo.CRS) (orb.Geometry, error) {
	if geo.IsEmpty(g) {
		return geo.Clone(g), nil
	}
	out := project.Geometry(orb.Clone(g), proj)
	for _, p := range vertices(geo.Normalize(out)) {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return nil, &geo.ProjectionError{
				From:   src.String(),
				To:     dst.String(),
				Reason: "coordinate outside the projection domain",
			}
		}
	}
	return out, nil
}
