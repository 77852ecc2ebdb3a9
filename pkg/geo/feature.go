package geo

import (
	"bytes"
	"encoding/json"

	"github.com/paulmach/orb"
)

// Attributes is an ordered mapping of attribute name to value. Iteration
// order is insertion order, which is what file formats with a fixed column
// order (DBF, GeoPackage tables) need when writing.
//
// The zero value is ready to use.
type Attributes struct {
	keys   []string
	values map[string]any
}

// NewAttributes creates an empty attribute set.
func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]any)}
}

// Set adds or replaces an attribute. New names are appended to the order.
func (a *Attributes) Set(name string, value any) {
	if a.values == nil {
		a.values = make(map[string]any)
	}
	if _, ok := a.values[name]; !ok {
		a.keys = append(a.keys, name)
	}
	a.values[name] = value
}

// Get returns the value for name and whether it exists.
func (a *Attributes) Get(name string) (any, bool) {
	if a == nil || a.values == nil {
		return nil, false
	}
	v, ok := a.values[name]
	return v, ok
}

// Delete removes an attribute, keeping the order of the others.
func (a *Attributes) Delete(name string) {
	if a == nil || a.values == nil {
		return
	}
	if _, ok := a.values[name]; !ok {
		return
	}
	delete(a.values, name)
	for i, k := range a.keys {
		if k == name {
			a.keys = append(a.keys[:i:i], a.keys[i+1:]...)
			break
		}
	}
}

// Keys returns attribute names in insertion order.
func (a *Attributes) Keys() []string {
	if a == nil {
		return nil
	}
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Len returns the number of attributes.
func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Map returns the attributes as a plain map.
func (a *Attributes) Map() map[string]any {
	out := make(map[string]any, a.Len())
	if a == nil {
		return out
	}
	for _, k := range a.keys {
		out[k] = a.values[k]
	}
	return out
}

// MarshalJSON encodes the attributes as a JSON object with keys in
// insertion order.
func (a *Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(a.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Clone returns a copy of the attribute set. Values are copied shallowly.
func (a *Attributes) Clone() *Attributes {
	out := NewAttributes()
	if a == nil {
		return out
	}
	for _, k := range a.keys {
		out.Set(k, a.values[k])
	}
	return out
}

// Feature is a geometry with an identifier, a CRS and ordered attributes.
//
// Geometry coordinates are always interpreted relative to CRS. A feature
// without a CRS cannot take part in cross-dataset operations.
type Feature struct {
	ID         string
	Geometry   orb.Geometry
	CRS        *CRS
	Attributes *Attributes
}

// NewFeature creates a feature with an empty attribute set.
func NewFeature(id string, g orb.Geometry, crs *CRS) *Feature {
	return &Feature{
		ID:         id,
		Geometry:   g,
		CRS:        crs,
		Attributes: NewAttributes(),
	}
}

// Clone returns a deep copy of the feature geometry and a copy of its
// attributes. The CRS is shared, CRS values are immutable.
func (f *Feature) Clone() *Feature {
	return &Feature{
		ID:         f.ID,
		Geometry:   Clone(f.Geometry),
		CRS:        f.CRS,
		Attributes: f.Attributes.Clone(),
	}
}

// Bound returns the bounding box of the feature geometry.
func (f *Feature) Bound() orb.Bound {
	if IsEmpty(f.Geometry) {
		return orb.Bound{}
	}
	return f.Geometry.Bound()
}

// FeatureCollection is an ordered sequence of features sharing one CRS.
type FeatureCollection struct {
	CRS      *CRS
	Features []*Feature
}

// NewFeatureCollection creates an empty collection in the given CRS.
func NewFeatureCollection(crs *CRS) *FeatureCollection {
	return &FeatureCollection{CRS: crs}
}

// Add appends a feature. A feature with no CRS adopts the collection CRS;
// a feature with a different CRS is rejected.
func (fc *FeatureCollection) Add(f *Feature) error {
	if f.CRS == nil {
		f.CRS = fc.CRS
	} else if !f.CRS.Equal(fc.CRS) {
		return &CRSError{
			Op:     "add feature",
			CRS:    f.CRS.String(),
			Reason: "feature CRS differs from collection CRS " + fc.CRS.String(),
		}
	}
	fc.Features = append(fc.Features, f)
	return nil
}

// Len returns the number of features.
func (fc *FeatureCollection) Len() int {
	return len(fc.Features)
}

// Bound returns the union of all feature bounds.
func (fc *FeatureCollection) Bound() orb.Bound {
	var b orb.Bound
	first := true
	for _, f := range fc.Features {
		if IsEmpty(f.Geometry) {
			continue
		}
		if first {
			b = f.Geometry.Bound()
			first = false
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b
}

// Clone returns a deep copy of the collection.
func (fc *FeatureCollection) Clone() *FeatureCollection {
	out := &FeatureCollection{
		CRS:      fc.CRS,
		Features: make([]*Feature, len(fc.Features)),
	}
	for i, f := range fc.Features {
		out.Features[i] = f.Clone()
	}
	return out
}

// GeometryTypes returns the distinct geometry types present, in first-seen
// order.
func (fc *FeatureCollection) GeometryTypes() []GeometryType {
	seen := make(map[GeometryType]bool)
	var out []GeometryType
	for _, f := range fc.Features {
		t := TypeOf(f.Geometry)
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// RequireCRS returns a CRSError when the collection has no CRS.
func (fc *FeatureCollection) RequireCRS(op string) error {
	if fc == nil || fc.CRS == nil {
		return &CRSError{Op: op, Reason: "collection has no coordinate reference system"}
	}
	return nil
}
