package vector

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const (
	maxFieldName   = 10
	maxFieldSize   = 254
	floatFieldSize = 40
	floatPrecision = 12
)

func shapefileBase(path string) string {
	if strings.EqualFold(path[max(0, len(path)-4):], ".shp") {
		return path[:len(path)-4]
	}
	return path
}

func loadShapefile(path string, opts LoadOptions) (*geo.FeatureCollection, error) {
	base := shapefileBase(path)
	fail := func(err error) (*geo.FeatureCollection, error) {
		return nil, &geo.FormatError{Op: "load shapefile", Path: path, Err: err}
	}

	crs, err := prjCRS(base, opts)
	if err != nil {
		return nil, err
	}
	// go-shp reads the dbf lazily and does not report a missing one.
	if _, err := os.Stat(base + ".dbf"); err != nil {
		return fail(err)
	}

	r, err := shp.Open(base + ".shp")
	if err != nil {
		return fail(err)
	}
	defer r.Close()

	fields := r.Fields()
	idField := -1
	for i, f := range fields {
		if strings.EqualFold(f.String(), idColumn) {
			idField = i
			break
		}
	}

	fc := geo.NewFeatureCollection(crs)
	for r.Next() {
		n, s := r.Shape()
		g, err := fromShape(s)
		if err != nil {
			return fail(fmt.Errorf("record %d: %w", n, err))
		}
		f := geo.NewFeature(strconv.Itoa(n), g, crs)
		for i, field := range fields {
			raw := strings.Trim(r.ReadAttribute(n, i), " \x00")
			if i == idField {
				if raw != "" {
					f.ID = raw
				}
				continue
			}
			f.Attributes.Set(field.String(), fromDBF(raw, field))
		}
		if err := fc.Add(f); err != nil {
			return nil, err
		}
	}
	if err := r.Err(); err != nil {
		return fail(err)
	}
	return fc, nil
}

func prjCRS(base string, opts LoadOptions) (*geo.CRS, error) {
	data, err := os.ReadFile(base + ".prj")
	if errors.Is(err, os.ErrNotExist) {
		if opts.DefaultCRS != nil {
			return opts.DefaultCRS, nil
		}
		return nil, &geo.CRSError{Op: "load shapefile", Reason: "no .prj sidecar"}
	}
	if err != nil {
		return nil, &geo.FormatError{Op: "load shapefile", Path: base + ".prj", Err: err}
	}
	return geo.ParseCRS(strings.TrimSpace(string(data)))
}

func fromDBF(raw string, f shp.Field) any {
	switch f.Fieldtype {
	case 'N', 'F':
		if raw == "" {
			return nil
		}
		if f.Precision == 0 {
			if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return v
			}
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
		return nil
	case 'L':
		switch raw {
		case "T", "t", "Y", "y":
			return true
		case "F", "f", "N", "n":
			return false
		}
		return nil
	}
	return raw
}

func toPoints(pts []shp.Point) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = orb.Point{p.X, p.Y}
	}
	return out
}

func splitParts(parts []int32, pts []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(pts))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || end > int32(len(pts)) {
			continue
		}
		out = append(out, toPoints(pts[start:end]))
	}
	return out
}

// fromShape converts a shape record to orb. Z and M values are dropped.
func fromShape(s shp.Shape) (orb.Geometry, error) {
	switch s := s.(type) {
	case *shp.Null:
		return geo.EmptyGeometry(), nil
	case *shp.Point:
		return orb.Point{s.X, s.Y}, nil
	case *shp.PointZ:
		return orb.Point{s.X, s.Y}, nil
	case *shp.PointM:
		return orb.Point{s.X, s.Y}, nil
	case *shp.MultiPoint:
		return orb.MultiPoint(toPoints(s.Points)), nil
	case *shp.MultiPointZ:
		return orb.MultiPoint(toPoints(s.Points)), nil
	case *shp.MultiPointM:
		return orb.MultiPoint(toPoints(s.Points)), nil
	case *shp.PolyLine:
		return lines(splitParts(s.Parts, s.Points)), nil
	case *shp.PolyLineZ:
		return lines(splitParts(s.Parts, s.Points)), nil
	case *shp.PolyLineM:
		return lines(splitParts(s.Parts, s.Points)), nil
	case *shp.Polygon:
		return polygons(splitParts(s.Parts, s.Points)), nil
	case *shp.PolygonZ:
		return polygons(splitParts(s.Parts, s.Points)), nil
	case *shp.PolygonM:
		return polygons(splitParts(s.Parts, s.Points)), nil
	}
	return nil, fmt.Errorf("unsupported shape %T", s)
}

func lines(parts [][]orb.Point) orb.Geometry {
	switch len(parts) {
	case 0:
		return geo.EmptyGeometry()
	case 1:
		return orb.LineString(parts[0])
	}
	mls := make(orb.MultiLineString, len(parts))
	for i, p := range parts {
		mls[i] = p
	}
	return mls
}

// polygons rebuilds polygons from shapefile rings: clockwise rings are
// shells and the rest are holes of the smallest shell holding them.
// Shells come back counter-clockwise and holes clockwise.
func polygons(parts [][]orb.Point) orb.Geometry {
	var shells orb.MultiPolygon
	var holes []orb.Ring
	for _, p := range parts {
		r := orb.Ring(p)
		if len(r) < 4 {
			continue
		}
		if r.Orientation() == orb.CW {
			r.Reverse()
			shells = append(shells, orb.Polygon{r})
		} else {
			holes = append(holes, r)
		}
	}
	for _, h := range holes {
		best, area := -1, math.Inf(1)
		for i, s := range shells {
			a := math.Abs(planar.Area(s[0]))
			if a < area && planar.RingContains(s[0], h[0]) {
				best, area = i, a
			}
		}
		if best < 0 {
			// A hole with no shell is read as a shell.
			shells = append(shells, orb.Polygon{h})
			continue
		}
		h.Reverse()
		shells[best] = append(shells[best], h)
	}
	switch len(shells) {
	case 0:
		return geo.EmptyGeometry()
	case 1:
		return shells[0]
	}
	return shells
}

func saveShapefile(fc *geo.FeatureCollection, path string) error {
	base := shapefileBase(path)
	shapeType, err := shapeTypeOf(fc)
	if err != nil {
		return err
	}

	w, err := shp.Create(base+".shp", shapeType)
	if err != nil {
		return err
	}
	fields, names := dbfFields(fc)
	closed := false
	finish := func() error {
		if closed {
			return nil
		}
		closed = true
		w.Close()
		// go-shp names the table "<base>dbf".
		return os.Rename(base+"dbf", base+".dbf")
	}
	defer finish()

	if err := w.SetFields(fields); err != nil {
		return fmt.Errorf("save shapefile: %w", err)
	}
	for _, f := range fc.Features {
		s, err := toShape(f.Geometry, shapeType)
		if err != nil {
			return &geo.FormatError{Op: "save shapefile", Path: path, Err: fmt.Errorf("feature %s: %w", f.ID, err)}
		}
		row := int(w.Write(s))
		if err := w.WriteAttribute(row, 0, f.ID); err != nil {
			return fmt.Errorf("save shapefile: feature %s: %w", f.ID, err)
		}
		for i, name := range names {
			v, ok := f.Attributes.Get(name)
			if !ok || v == nil {
				continue
			}
			if err := w.WriteAttribute(row, i+1, dbfValue(v, fields[i+1])); err != nil {
				return fmt.Errorf("save shapefile: feature %s field %s: %w", f.ID, name, err)
			}
		}
	}
	if err := finish(); err != nil {
		return err
	}
	return os.WriteFile(base+".prj", []byte(fc.CRS.WKT()), 0o644)
}

func shapeTypeOf(fc *geo.FeatureCollection) (shp.ShapeType, error) {
	var dims []geo.GeometryType
	for _, t := range fc.GeometryTypes() {
		if t == geo.GeometryTypeCollection || t == geo.GeometryTypeUnknown {
			continue
		}
		dims = append(dims, t)
	}
	if len(dims) == 0 {
		return shp.NULL, nil
	}
	d := dims[0].Dimension()
	multi := false
	for _, t := range dims {
		if t.Dimension() != d {
			return shp.NULL, &geo.UnsupportedFormatError{Op: "save shapefile", Format: "mixed geometry dimensions"}
		}
		multi = multi || t == geo.GeometryTypeMultiPoint
	}
	switch d {
	case 0:
		if multi {
			return shp.MULTIPOINT, nil
		}
		return shp.POINT, nil
	case 1:
		return shp.POLYLINE, nil
	}
	return shp.POLYGON, nil
}

func fromPoints(pts []orb.Point) []shp.Point {
	out := make([]shp.Point, len(pts))
	for i, p := range pts {
		out[i] = shp.Point{X: p[0], Y: p[1]}
	}
	return out
}

func toShape(g orb.Geometry, t shp.ShapeType) (shp.Shape, error) {
	if g == nil {
		g = geo.EmptyGeometry()
	}
	g = geo.Normalize(g)
	if t == shp.NULL {
		if !geo.IsEmpty(g) {
			return nil, fmt.Errorf("geometry %s in a null layer", geo.TypeOf(g))
		}
		return &shp.Null{}, nil
	}

	switch g := g.(type) {
	case orb.Point:
		if t == shp.MULTIPOINT {
			return &shp.MultiPoint{Box: shp.Box{MinX: g[0], MinY: g[1], MaxX: g[0], MaxY: g[1]}, NumPoints: 1, Points: fromPoints([]orb.Point{g})}, nil
		}
		return &shp.Point{X: g[0], Y: g[1]}, nil
	case orb.MultiPoint:
		if t != shp.MULTIPOINT {
			break
		}
		pts := fromPoints(g)
		return &shp.MultiPoint{Box: shp.BBoxFromPoints(pts), NumPoints: int32(len(pts)), Points: pts}, nil
	case orb.LineString:
		return shp.NewPolyLine([][]shp.Point{fromPoints(g)}), nil
	case orb.MultiLineString:
		parts := make([][]shp.Point, 0, len(g))
		for _, ls := range g {
			parts = append(parts, fromPoints(ls))
		}
		return shp.NewPolyLine(parts), nil
	case orb.Polygon:
		return polygonShape(orb.MultiPolygon{g}), nil
	case orb.MultiPolygon:
		return polygonShape(g), nil
	case orb.Collection:
		if len(g) == 0 && t != shp.POINT {
			if t == shp.MULTIPOINT {
				return &shp.MultiPoint{}, nil
			}
			pl := shp.NewPolyLine(nil)
			if t == shp.POLYGON {
				return (*shp.Polygon)(pl), nil
			}
			return pl, nil
		}
	}
	return nil, fmt.Errorf("cannot store %s as shape type %d", geo.TypeOf(g), t)
}

// polygonShape writes shells clockwise and holes counter-clockwise.
func polygonShape(mp orb.MultiPolygon) *shp.Polygon {
	var parts [][]shp.Point
	for _, p := range mp {
		for i, r := range p {
			r = r.Clone()
			if len(r) > 0 && r[0] != r[len(r)-1] {
				r = append(r, r[0])
			}
			want := orb.CW
			if i > 0 {
				want = orb.CCW
			}
			if r.Orientation() != want {
				r.Reverse()
			}
			parts = append(parts, fromPoints(r))
		}
	}
	return (*shp.Polygon)(shp.NewPolyLine(parts))
}

// dbfFields builds the dbf schema: the feature ID first, then one field per
// attribute with names cut to ten characters and made unique.
func dbfFields(fc *geo.FeatureCollection) ([]shp.Field, []string) {
	idSize := 1
	var order []string
	values := make(map[string][]any)
	for _, f := range fc.Features {
		idSize = max(idSize, len(f.ID))
		for _, k := range f.Attributes.Keys() {
			if strings.EqualFold(k, idColumn) {
				continue
			}
			if _, ok := values[k]; !ok {
				order = append(order, k)
			}
			v, _ := f.Attributes.Get(k)
			values[k] = append(values[k], v)
		}
	}

	fields := []shp.Field{shp.StringField(idColumn, uint8(min(idSize, maxFieldSize)))}
	used := map[string]bool{idColumn: true}
	for _, k := range order {
		name := uniqueFieldName(k, used)
		switch sqlType(values[k]) {
		case "BOOLEAN":
			f := shp.Field{Fieldtype: 'L', Size: 1}
			copy(f.Name[:], name)
			fields = append(fields, f)
		case "INTEGER":
			fields = append(fields, shp.NumberField(name, 20))
		case "REAL":
			fields = append(fields, shp.FloatField(name, floatFieldSize, floatPrecision))
		default:
			size := 1
			for _, v := range values[k] {
				size = max(size, len(textValue(v)))
			}
			fields = append(fields, shp.StringField(name, uint8(min(size, maxFieldSize))))
		}
	}
	return fields, order
}

func uniqueFieldName(name string, used map[string]bool) string {
	base := name
	if len(base) > maxFieldName {
		base = base[:maxFieldName]
	}
	candidate := base
	for i := 1; used[strings.ToLower(candidate)]; i++ {
		suffix := "_" + strconv.Itoa(i)
		candidate = base[:min(len(base), maxFieldName-len(suffix))] + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func textValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := sqlValue(v, "TEXT").(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func dbfValue(v any, f shp.Field) any {
	switch f.Fieldtype {
	case 'L':
		if b, ok := v.(bool); ok && b {
			return "T"
		}
		return "F"
	case 'N':
		switch n := v.(type) {
		case int:
			return n
		case int8:
			return int(n)
		case int16:
			return int(n)
		case int32:
			return int(n)
		case int64:
			return int(n)
		case uint8:
			return int(n)
		case uint16:
			return int(n)
		case uint32:
			return int(n)
		}
	case 'F':
		if x, ok := toFloat(v); ok {
			return x
		}
	}
	s := textValue(v)
	if len(s) > int(f.Size) {
		s = s[:f.Size]
	}
	return s
}
