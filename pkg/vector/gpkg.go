package vector

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	_ "modernc.org/sqlite"
)

const (
	gpkgApplicationID = 0x47504B47 // "GPKG"
	gpkgUserVersion   = 10300
	gpkgCustomSRS     = 100000
	geometryColumn    = "geom"
	idColumn          = "id"
)

var gpkgSchema = []string{
	`CREATE TABLE gpkg_spatial_ref_sys (
		srs_name TEXT NOT NULL,
		srs_id INTEGER NOT NULL PRIMARY KEY,
		organization TEXT NOT NULL,
		organization_coordsys_id INTEGER NOT NULL,
		definition TEXT NOT NULL,
		description TEXT
	)`,
	`CREATE TABLE gpkg_contents (
		table_name TEXT NOT NULL PRIMARY KEY,
		data_type TEXT NOT NULL,
		identifier TEXT UNIQUE,
		description TEXT DEFAULT '',
		last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
		srs_id INTEGER,
		CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
	)`,
	`CREATE TABLE gpkg_geometry_columns (
		table_name TEXT NOT NULL,
		column_name TEXT NOT NULL,
		geometry_type_name TEXT NOT NULL,
		srs_id INTEGER NOT NULL,
		z TINYINT NOT NULL,
		m TINYINT NOT NULL,
		CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
		CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
		CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
	)`,
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// column is a feature-table attribute column.
type column struct {
	name string
	decl string
}

func saveGeoPackage(fc *geo.FeatureCollection, path string) (err error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	pragmas := fmt.Sprintf("PRAGMA application_id = %d; PRAGMA user_version = %d", gpkgApplicationID, gpkgUserVersion)
	if _, err := db.Exec(pragmas); err != nil {
		return fmt.Errorf("save geopackage: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range gpkgSchema {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("save geopackage: create metadata: %w", err)
		}
	}

	srsID, err := insertSRS(tx, fc.CRS)
	if err != nil {
		return fmt.Errorf("save geopackage: %w", err)
	}

	table := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	cols := attributeColumns(fc)

	defs := []string{"fid INTEGER PRIMARY KEY AUTOINCREMENT", quote(geometryColumn) + " BLOB", quote(idColumn) + " TEXT"}
	for _, c := range cols {
		defs = append(defs, quote(c.name)+" "+c.decl)
	}
	if _, err := tx.Exec(fmt.Sprintf("CREATE TABLE %s (%s)", quote(table), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("save geopackage: create table: %w", err)
	}

	b := fc.Bound()
	if _, err := tx.Exec(`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
		VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`,
		table, table, b.Min[0], b.Min[1], b.Max[0], b.Max[1], srsID); err != nil {
		return fmt.Errorf("save geopackage: contents: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO gpkg_geometry_columns VALUES (?, ?, ?, ?, 0, 0)`,
		table, geometryColumn, geometryTypeName(fc), srsID); err != nil {
		return fmt.Errorf("save geopackage: geometry columns: %w", err)
	}

	names := []string{quote(geometryColumn), quote(idColumn)}
	marks := []string{"?", "?"}
	for _, c := range cols {
		names = append(names, quote(c.name))
		marks = append(marks, "?")
	}
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(table), strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("save geopackage: %w", err)
	}
	defer stmt.Close()

	for _, f := range fc.Features {
		blob, err := encodeGPKGGeometry(f.Geometry, int32(srsID))
		if err != nil {
			return fmt.Errorf("save geopackage: feature %s: %w", f.ID, err)
		}
		args := []any{blob, f.ID}
		for _, c := range cols {
			v, _ := f.Attributes.Get(c.name)
			args = append(args, sqlValue(v, c.decl))
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("save geopackage: feature %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

func insertSRS(tx *sql.Tx, crs *geo.CRS) (int, error) {
	rows := [][]any{
		{"Undefined cartesian SRS", -1, "NONE", -1, "undefined"},
		{"Undefined geographic SRS", 0, "NONE", 0, "undefined"},
		{"WGS 84 geodetic", 4326, "EPSG", 4326, geo.WGS84.WKT()},
	}
	id := crs.EPSG()
	switch {
	case id == 4326:
	case id != 0:
		rows = append(rows, []any{crs.Name(), id, "EPSG", id, crs.WKT()})
	default:
		id = gpkgCustomSRS
		rows = append(rows, []any{crs.Name(), id, "NONE", id, crs.WKT()})
	}
	for _, r := range rows {
		if _, err := tx.Exec(`INSERT INTO gpkg_spatial_ref_sys
			(srs_name, srs_id, organization, organization_coordsys_id, definition)
			VALUES (?, ?, ?, ?, ?)`, r...); err != nil {
			return 0, fmt.Errorf("spatial ref sys: %w", err)
		}
	}
	return id, nil
}

// attributeColumns lists attribute names in first-seen order with the
// SQLite type that holds every value seen for them.
func attributeColumns(fc *geo.FeatureCollection) []column {
	var order []string
	values := make(map[string][]any)
	for _, f := range fc.Features {
		for _, k := range f.Attributes.Keys() {
			if strings.EqualFold(k, idColumn) || strings.EqualFold(k, "fid") || k == geometryColumn {
				continue
			}
			if _, ok := values[k]; !ok {
				order = append(order, k)
			}
			v, _ := f.Attributes.Get(k)
			values[k] = append(values[k], v)
		}
	}
	cols := make([]column, len(order))
	for i, k := range order {
		cols[i] = column{name: k, decl: sqlType(values[k])}
	}
	return cols
}

func sqlType(values []any) string {
	kind := ""
	for _, v := range values {
		var k string
		switch v.(type) {
		case nil:
			continue
		case bool:
			k = "BOOLEAN"
		case int, int8, int16, int32, int64, uint8, uint16, uint32:
			k = "INTEGER"
		case float32, float64:
			k = "REAL"
		default:
			return "TEXT"
		}
		switch {
		case kind == "" || kind == k:
			kind = k
		case (kind == "INTEGER" && k == "REAL") || (kind == "REAL" && k == "INTEGER"):
			kind = "REAL"
		default:
			return "TEXT"
		}
	}
	if kind == "" {
		return "TEXT"
	}
	return kind
}

func sqlValue(v any, decl string) any {
	if v == nil {
		return nil
	}
	switch decl {
	case "REAL":
		if f, ok := toFloat(v); ok {
			return f
		}
	case "TEXT":
		switch v := v.(type) {
		case string:
			return v
		case fmt.Stringer:
			return v.String()
		}
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprint(v)
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
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
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	}
	return 0, false
}

func geometryTypeName(fc *geo.FeatureCollection) string {
	types := fc.GeometryTypes()
	if len(types) != 1 || types[0] == geo.GeometryTypeUnknown {
		return "GEOMETRY"
	}
	return strings.ToUpper(types[0].String())
}

// encodeGPKGGeometry builds a GeoPackage geometry blob: the GP header with
// an xy envelope, then little-endian WKB.
func encodeGPKGGeometry(g orb.Geometry, srsID int32) ([]byte, error) {
	if g == nil {
		g = geo.EmptyGeometry()
	}
	g = geo.Normalize(g)
	empty := geo.IsEmpty(g)

	flags := byte(1)
	if empty {
		flags |= 1 << 4
	} else {
		flags |= 1 << 1
	}
	buf := []byte{'G', 'P', 0, flags}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(srsID))
	if !empty {
		b := g.Bound()
		for _, v := range []float64{b.Min[0], b.Max[0], b.Min[1], b.Max[1]} {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}
	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	return append(buf, body...), nil
}

var envelopeSize = [...]int{0, 32, 48, 48, 64}

func decodeGPKGGeometry(b []byte) (orb.Geometry, error) {
	if len(b) == 0 {
		return geo.EmptyGeometry(), nil
	}
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, errors.New("missing GP header")
	}
	if b[2] != 0 {
		return nil, fmt.Errorf("unsupported geometry blob version %d", b[2])
	}
	flags := b[3]
	if flags&(1<<5) != 0 {
		return nil, errors.New("extended geometry types are not supported")
	}
	ind := int(flags>>1) & 7
	if ind >= len(envelopeSize) {
		return nil, fmt.Errorf("bad envelope indicator %d", ind)
	}
	if flags&(1<<4) != 0 {
		return geo.EmptyGeometry(), nil
	}
	start := 8 + envelopeSize[ind]
	if len(b) < start {
		return nil, errors.New("truncated geometry blob")
	}
	return wkb.Unmarshal(b[start:])
}

type tableColumn struct {
	name string
	decl string
	pk   bool
}

func loadGeoPackage(path string, opts LoadOptions) (fc *geo.FeatureCollection, err error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &geo.FormatError{Op: "load geopackage", Path: path, Err: err}
	}
	defer db.Close()

	fail := func(err error) (*geo.FeatureCollection, error) {
		return nil, &geo.FormatError{Op: "load geopackage", Path: path, Err: err}
	}

	query := `SELECT c.table_name, g.column_name, g.srs_id
		FROM gpkg_contents c JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
		WHERE c.data_type = 'features'`
	args := []any{}
	if opts.Layer != "" {
		query += ` AND c.table_name = ?`
		args = append(args, opts.Layer)
	}
	query += ` ORDER BY c.table_name LIMIT 1`

	var table, geomCol string
	var srsID int
	if err := db.QueryRow(query, args...).Scan(&table, &geomCol, &srsID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fail(fmt.Errorf("no feature table %q", opts.Layer))
		}
		return fail(err)
	}

	crs, err := gpkgCRS(db, srsID, opts)
	if err != nil {
		return nil, err
	}

	cols, err := tableColumns(db, table)
	if err != nil {
		return fail(err)
	}

	var names []string
	pk := "rowid"
	for _, c := range cols {
		names = append(names, quote(c.name))
		if c.pk {
			pk = quote(c.name)
		}
	}
	rows, err := db.Query(fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(names, ", "), quote(table), pk))
	if err != nil {
		return fail(err)
	}
	defer rows.Close()

	fc = geo.NewFeatureCollection(crs)
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fail(err)
		}
		f := geo.NewFeature("", nil, crs)
		var fid string
		for i, c := range cols {
			v := vals[i]
			switch {
			case c.name == geomCol:
				blob, _ := v.([]byte)
				g, err := decodeGPKGGeometry(blob)
				if err != nil {
					return fail(fmt.Errorf("row %d: %w", fc.Len()+1, err))
				}
				f.Geometry = g
			case c.pk:
				fid = fmt.Sprint(v)
			case strings.EqualFold(c.name, idColumn):
				if v != nil {
					f.ID = fmt.Sprint(v)
				}
			default:
				f.Attributes.Set(c.name, fromSQL(v, c.decl))
			}
		}
		if f.ID == "" {
			f.ID = fid
		}
		if f.Geometry == nil {
			f.Geometry = geo.EmptyGeometry()
		}
		if err := fc.Add(f); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return fail(err)
	}
	return fc, nil
}

func gpkgCRS(db *sql.DB, srsID int, opts LoadOptions) (*geo.CRS, error) {
	undefined := func() (*geo.CRS, error) {
		if opts.DefaultCRS != nil {
			return opts.DefaultCRS, nil
		}
		return nil, &geo.CRSError{Op: "load geopackage", CRS: strconv.Itoa(srsID), Reason: "undefined spatial reference system"}
	}
	if srsID == -1 || srsID == 0 {
		return undefined()
	}

	var org, def string
	var code int
	err := db.QueryRow(`SELECT organization, organization_coordsys_id, definition
		FROM gpkg_spatial_ref_sys WHERE srs_id = ?`, srsID).Scan(&org, &code, &def)
	if errors.Is(err, sql.ErrNoRows) {
		return undefined()
	}
	if err != nil {
		return nil, &geo.FormatError{Op: "load geopackage", Err: err}
	}
	if crs, err := geo.ParseCRS(def); err == nil {
		return crs, nil
	}
	if strings.EqualFold(org, "EPSG") {
		return geo.LookupEPSG(code)
	}
	return undefined()
}

func tableColumns(db *sql.DB, table string) ([]tableColumn, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", quote(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []tableColumn
	for rows.Next() {
		var (
			cid     int
			name    string
			decl    string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &decl, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, tableColumn{name: name, decl: strings.ToUpper(decl), pk: pk > 0})
	}
	return cols, rows.Err()
}

// fromSQL maps a scanned value to the attribute type for its declared
// column type.
func fromSQL(v any, decl string) any {
	switch v := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(v)
	case int64:
		switch {
		case decl == "BOOLEAN":
			return v != 0
		case strings.Contains(decl, "REAL") || strings.Contains(decl, "DOUBLE") || strings.Contains(decl, "FLOAT"):
			return float64(v)
		}
		return v
	}
	return v
}
