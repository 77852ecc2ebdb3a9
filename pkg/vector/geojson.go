package vector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/paulmach/orb/geojson"
)

func readGeoJSON(r io.Reader, path string) (*geo.FeatureCollection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &geo.FormatError{Op: "load geojson", Path: path, Err: err}
	}
	gfc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, &geo.FormatError{Op: "load geojson", Path: path, Err: err}
	}

	crs, err := geojsonCRS(gfc.ExtraMembers)
	if err != nil {
		return nil, err
	}

	// orb decodes properties into a map; recover the document's key order.
	order, err := propertyOrder(data)
	if err != nil {
		return nil, &geo.FormatError{Op: "load geojson", Path: path, Err: err}
	}

	fc := geo.NewFeatureCollection(crs)
	for i, gf := range gfc.Features {
		g := gf.Geometry
		if g == nil {
			g = geo.EmptyGeometry()
		}
		f := geo.NewFeature(featureID(gf.ID), g, crs)
		var keys []string
		if i < len(order) {
			keys = order[i]
		}
		setProperties(f.Attributes, gf.Properties, keys)
		if err := fc.Add(f); err != nil {
			return nil, err
		}
	}
	return fc, nil
}

// geojsonCRS resolves the legacy named crs member, defaulting to CRS84.
func geojsonCRS(extra geojson.Properties) (*geo.CRS, error) {
	raw, ok := extra["crs"]
	if !ok || raw == nil {
		return geo.WGS84, nil
	}
	m, _ := raw.(map[string]any)
	props, _ := m["properties"].(map[string]any)
	name, _ := props["name"].(string)
	if t, _ := m["type"].(string); t != "name" || name == "" {
		return nil, &geo.CRSError{Op: "load geojson", Reason: "only named crs members are supported"}
	}
	return geo.ParseCRS(name)
}

func featureID(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func setProperties(attrs *geo.Attributes, props geojson.Properties, order []string) {
	for _, k := range order {
		if v, ok := props[k]; ok {
			attrs.Set(k, v)
		}
	}
	if attrs.Len() == len(props) {
		return
	}
	rest := make([]string, 0, len(props))
	for k := range props {
		if _, ok := attrs.Get(k); !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		attrs.Set(k, props[k])
	}
}

// propertyOrder returns, per feature, the property names in document
// order.
func propertyOrder(data []byte) ([][]string, error) {
	var doc struct {
		Features []struct {
			Properties json.RawMessage `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := make([][]string, len(doc.Features))
	for i, f := range doc.Features {
		keys, err := objectKeys(f.Properties)
		if err != nil {
			return nil, fmt.Errorf("feature %d properties: %w", i, err)
		}
		out[i] = keys
	}
	return out, nil
}

func objectKeys(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// geojsonFeature mirrors geojson.Feature but keeps attribute order.
type geojsonFeature struct {
	ID         any               `json:"id,omitempty"`
	Type       string            `json:"type"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties *geo.Attributes   `json:"properties"`
}

type geojsonCollection struct {
	Type     string           `json:"type"`
	CRS      any              `json:"crs,omitempty"`
	Features []geojsonFeature `json:"features"`
}

func writeGeoJSON(w io.Writer, fc *geo.FeatureCollection) error {
	out := geojsonCollection{Type: "FeatureCollection", Features: make([]geojsonFeature, 0, fc.Len())}
	if !fc.CRS.Equal(geo.WGS84) {
		if fc.CRS.EPSG() == 0 {
			return &geo.CRSError{Op: "write geojson", CRS: fc.CRS.String(), Reason: "a crs member needs an EPSG code"}
		}
		out.CRS = map[string]any{
			"type":       "name",
			"properties": map[string]any{"name": fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", fc.CRS.EPSG())},
		}
	}
	for _, f := range fc.Features {
		gf := geojsonFeature{
			Type:       "Feature",
			Geometry:   geojson.NewGeometry(f.Geometry),
			Properties: f.Attributes,
		}
		if f.ID != "" {
			gf.ID = f.ID
		}
		if gf.Properties == nil {
			gf.Properties = geo.NewAttributes()
		}
		out.Features = append(out.Features, gf)
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	return nil
}
