package geo

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// wktNode is one KEYWORD[...] element of a WKT CRS definition. Args holds
// strings, float64 numbers and nested nodes in source order.
type wktNode struct {
	Keyword string
	Args    []any
}

func (n *wktNode) child(keywords ...string) *wktNode {
	for _, a := range n.Args {
		c, ok := a.(*wktNode)
		if !ok {
			continue
		}
		for _, k := range keywords {
			if strings.EqualFold(c.Keyword, k) {
				return c
			}
		}
	}
	return nil
}

func (n *wktNode) children(keyword string) []*wktNode {
	var out []*wktNode
	for _, a := range n.Args {
		if c, ok := a.(*wktNode); ok && strings.EqualFold(c.Keyword, keyword) {
			out = append(out, c)
		}
	}
	return out
}

func (n *wktNode) str(i int) string {
	if n == nil || i >= len(n.Args) {
		return ""
	}
	switch v := n.Args[i].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func (n *wktNode) num(i int) (float64, bool) {
	if n == nil || i >= len(n.Args) {
		return 0, false
	}
	switch v := n.Args[i].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

func looksLikeWKT(s string) bool {
	u := strings.ToUpper(s)
	for _, p := range []string{"GEOGCS", "PROJCS", "GEOGCRS", "PROJCRS", "GEODCRS", "GEODETICCRS", "PROJECTEDCRS"} {
		if strings.HasPrefix(u, p) {
			return true
		}
	}
	return false
}

type wktLexer struct {
	src string
	pos int
}

func (l *wktLexer) skipSpace() {
	for l.pos < len(l.src) && unicode.IsSpace(rune(l.src[l.pos])) {
		l.pos++
	}
}

func (l *wktLexer) parseNode() (*wktNode, error) {
	l.skipSpace()
	start := l.pos
	for l.pos < len(l.src) && (unicode.IsLetter(rune(l.src[l.pos])) || unicode.IsDigit(rune(l.src[l.pos])) || l.src[l.pos] == '_') {
		l.pos++
	}
	if start == l.pos {
		return nil, fmt.Errorf("expected keyword at offset %d", l.pos)
	}
	node := &wktNode{Keyword: l.src[start:l.pos]}

	l.skipSpace()
	if l.pos >= len(l.src) || (l.src[l.pos] != '[' && l.src[l.pos] != '(') {
		return node, nil
	}
	closer := byte(']')
	if l.src[l.pos] == '(' {
		closer = ')'
	}
	l.pos++

	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			return nil, fmt.Errorf("unterminated %s", node.Keyword)
		}
		c := l.src[l.pos]
		switch {
		case c == closer:
			l.pos++
			return node, nil
		case c == ',':
			l.pos++
			continue
		case c == '"':
			s, err := l.parseString()
			if err != nil {
				return nil, err
			}
			node.Args = append(node.Args, s)
		case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
			start := l.pos
			l.pos++
			for l.pos < len(l.src) && strings.IndexByte("0123456789.eE+-", l.src[l.pos]) >= 0 {
				l.pos++
			}
			f, err := strconv.ParseFloat(l.src[start:l.pos], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", l.src[start:l.pos])
			}
			node.Args = append(node.Args, f)
		default:
			child, err := l.parseNode()
			if err != nil {
				return nil, err
			}
			if len(child.Args) == 0 {
				// Bare enumeration such as NORTH or EAST.
				node.Args = append(node.Args, child.Keyword)
			} else {
				node.Args = append(node.Args, child)
			}
		}
	}
}

func (l *wktLexer) parseString() (string, error) {
	l.pos++ // opening quote
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		l.pos++
		if c == '"' {
			if l.pos < len(l.src) && l.src[l.pos] == '"' {
				b.WriteByte('"')
				l.pos++
				continue
			}
			return b.String(), nil
		}
		b.WriteByte(c)
	}
	return "", fmt.Errorf("unterminated string")
}

// parseWKT resolves a WKT1 or WKT2 CRS. An EPSG authority on the root node
// wins; otherwise the datum, projection and parameters are read
// structurally.
func parseWKT(s string) (*CRS, error) {
	lex := &wktLexer{src: s}
	root, err := lex.parseNode()
	if err != nil {
		return nil, &CRSError{Op: "parse wkt", CRS: abbreviate(s), Reason: err.Error()}
	}
	fail := func(reason string) (*CRS, error) {
		return nil, &CRSError{Op: "parse wkt", CRS: abbreviate(s), Reason: reason}
	}

	if auth := root.child("AUTHORITY", "ID"); auth != nil && strings.EqualFold(auth.str(0), "EPSG") {
		if code, err := strconv.Atoi(auth.str(1)); err == nil {
			if c, ok := registry[code]; ok {
				return c, nil
			}
		}
	}

	kw := strings.ToUpper(root.Keyword)
	switch kw {
	case "GEOGCS", "GEOGCRS", "GEODCRS", "GEODETICCRS":
		datum, ok := wktDatum(root)
		if !ok {
			return fail("unsupported datum")
		}
		return identify(&CRS{name: root.str(0), datum: datum, method: MethodLongLat}), nil

	case "PROJCS", "PROJCRS", "PROJECTEDCRS":
		base := root.child("GEOGCS", "BASEGEOGCRS", "BASEGEODCRS")
		if base == nil {
			return fail("projected CRS without a base geographic CRS")
		}
		datum, ok := wktDatum(base)
		if !ok {
			return fail("unsupported datum")
		}
		if unit := root.child("UNIT", "LENGTHUNIT"); unit != nil {
			if f, ok := unit.num(1); ok && f != 1 {
				return fail("unsupported linear unit " + unit.str(0))
			}
		}

		projNode := root.child("PROJECTION", "METHOD")
		params := make(map[string]float64)
		paramHolder := root
		if conv := root.child("CONVERSION"); conv != nil {
			projNode = conv.child("METHOD")
			paramHolder = conv
		}
		if projNode == nil {
			return fail("missing projection")
		}
		for _, p := range paramHolder.children("PARAMETER") {
			if f, ok := p.num(1); ok {
				params[normalizeParam(p.str(0))] = f
			}
		}

		method := strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(projNode.str(0)))
		switch {
		case strings.Contains(method, "pseudo_mercator") || strings.Contains(method, "auxiliary_sphere") ||
			strings.Contains(method, "mercator_1sp") && root.str(0) == "WGS 84 / Pseudo-Mercator":
			return WebMercator, nil
		case strings.Contains(method, "transverse_mercator"):
			p := projParams{
				Lat0: params["latitude_of_origin"],
				Lon0: params["central_meridian"],
				K0:   paramOr(params, "scale_factor", 1),
				X0:   params["false_easting"],
				Y0:   params["false_northing"],
			}
			return identify(&CRS{name: root.str(0), datum: datum, method: MethodTransverseMercator, params: p}), nil
		case strings.Contains(method, "albers"):
			p := projParams{
				Lat0: params["latitude_of_origin"],
				Lon0: params["central_meridian"],
				Lat1: params["standard_parallel_1"],
				Lat2: params["standard_parallel_2"],
				X0:   params["false_easting"],
				Y0:   params["false_northing"],
			}
			return identify(&CRS{name: root.str(0), datum: datum, method: MethodAlbers, params: p}), nil
		}
		return fail("unsupported projection " + projNode.str(0))
	}
	return fail("unsupported root element " + root.Keyword)
}

// normalizeParam maps WKT1, ESRI and WKT2 parameter names onto one
// vocabulary.
func normalizeParam(name string) string {
	n := strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(name))
	switch n {
	case "latitude_of_center", "latitude_of_natural_origin", "latitude_of_false_origin":
		return "latitude_of_origin"
	case "longitude_of_center", "longitude_of_natural_origin", "longitude_of_false_origin":
		return "central_meridian"
	case "scale_factor_at_natural_origin":
		return "scale_factor"
	case "latitude_of_1st_standard_parallel":
		return "standard_parallel_1"
	case "latitude_of_2nd_standard_parallel":
		return "standard_parallel_2"
	case "false_easting", "easting_at_false_origin":
		return "false_easting"
	case "false_northing", "northing_at_false_origin":
		return "false_northing"
	}
	return n
}

func paramOr(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

func wktDatum(n *wktNode) (Datum, bool) {
	d := n.child("DATUM", "ENSEMBLE")
	if d == nil {
		return DatumUnknown, false
	}
	name := strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_").Replace(d.str(0)))
	name = strings.TrimPrefix(name, "D_")
	switch {
	case strings.Contains(name, "WGS_1984") || strings.Contains(name, "WGS84") || strings.Contains(name, "WORLD_GEODETIC_SYSTEM_1984"):
		return DatumWGS84, true
	case strings.Contains(name, "NORTH_AMERICAN_DATUM_1983") || name == "NAD83" || strings.Contains(name, "NORTH_AMERICAN_1983"):
		return DatumNAD83, true
	case strings.Contains(name, "NORTH_AMERICAN_DATUM_1927") || name == "NAD27" || strings.Contains(name, "NORTH_AMERICAN_1927"):
		return DatumNAD27, true
	}
	return DatumUnknown, false
}

func abbreviate(s string) string {
	if len(s) > 48 {
		return s[:45] + "..."
	}
	return s
}

// WKT returns an OGC WKT1 definition. Registered systems carry an EPSG
// AUTHORITY so that readers resolve them by code.
func (c *CRS) WKT() string {
	var datumWKT string
	switch c.datum {
	case DatumNAD83:
		datumWKT = `DATUM["North_American_Datum_1983",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],AUTHORITY["EPSG","6269"]]`
	case DatumNAD27:
		datumWKT = `DATUM["North_American_Datum_1927",SPHEROID["Clarke 1866",6378206.4,294.978698213898,AUTHORITY["EPSG","7008"]],AUTHORITY["EPSG","6267"]]`
	default:
		datumWKT = `DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]]`
	}
	geogName := map[Datum]string{DatumWGS84: "WGS 84", DatumNAD83: "NAD83", DatumNAD27: "NAD27"}[c.datum]
	geogCode := map[Datum]int{DatumWGS84: 4326, DatumNAD83: 4269, DatumNAD27: 4267}[c.datum]
	geog := fmt.Sprintf(`GEOGCS["%s",%s,PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","%d"]]`,
		geogName, datumWKT, geogCode)

	authority := ""
	if c.code != 0 {
		authority = fmt.Sprintf(`,AUTHORITY["EPSG","%d"]`, c.code)
	}
	name := c.name
	if name == "" {
		name = "unnamed"
	}

	p := c.params
	param := func(k string, v float64) string {
		return fmt.Sprintf(`,PARAMETER["%s",%s]`, k, ftoa(v))
	}
	switch c.method {
	case MethodLongLat:
		return geog
	case MethodWebMercator:
		return fmt.Sprintf(`PROJCS["%s",%s,PROJECTION["Mercator_1SP"]%s%s%s%s%s,UNIT["metre",1]%s]`,
			name, geog,
			param("central_meridian", 0), param("scale_factor", 1),
			param("false_easting", 0), param("false_northing", 0),
			`,EXTENSION["PROJ4","+proj=merc +a=6378137 +b=6378137"]`, authority)
	case MethodTransverseMercator:
		return fmt.Sprintf(`PROJCS["%s",%s,PROJECTION["Transverse_Mercator"]%s%s%s%s%s,UNIT["metre",1]%s]`,
			name, geog,
			param("latitude_of_origin", p.Lat0), param("central_meridian", p.Lon0),
			param("scale_factor", p.K0), param("false_easting", p.X0), param("false_northing", p.Y0),
			authority)
	case MethodAlbers:
		return fmt.Sprintf(`PROJCS["%s",%s,PROJECTION["Albers_Conic_Equal_Area"]%s%s%s%s%s%s,UNIT["metre",1]%s]`,
			name, geog,
			param("latitude_of_center", p.Lat0), param("longitude_of_center", p.Lon0),
			param("standard_parallel_1", p.Lat1), param("standard_parallel_2", p.Lat2),
			param("false_easting", p.X0), param("false_northing", p.Y0),
			authority)
	}
	return ""
}
