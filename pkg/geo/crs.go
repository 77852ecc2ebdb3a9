package geo

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/wroge/wgs84"
)

// Datum identifies the geodetic datum of a CRS.
type Datum int

const (
	DatumUnknown Datum = iota
	DatumWGS84
	DatumNAD83
	DatumNAD27
)

// String returns the PROJ datum name.
func (d Datum) String() string {
	switch d {
	case DatumWGS84:
		return "WGS84"
	case DatumNAD83:
		return "NAD83"
	case DatumNAD27:
		return "NAD27"
	default:
		return "unknown"
	}
}

// reference returns the datum as a wgs84 reference: its spheroid and a
// zero Helmert shift, so systems of one family stay coincident.
func (d Datum) reference() wgs84.Datum {
	switch d {
	case DatumNAD83:
		return wgs84.NAD83()
	case DatumNAD27:
		return wgs84.Datum{Spheroid: wgs84.Clarke1866{}}
	default:
		return wgs84.WGS84()
	}
}

// family groups datums that are interchangeable without a grid shift at
// the accuracy this package targets.
func (d Datum) family() int {
	switch d {
	case DatumWGS84, DatumNAD83:
		return 1
	case DatumNAD27:
		return 2
	default:
		return 0
	}
}

// Method identifies the map projection of a CRS.
type Method int

const (
	// MethodLongLat is an unprojected geographic system in degrees.
	MethodLongLat Method = iota

	// MethodWebMercator is the spherical Pseudo-Mercator of web maps.
	MethodWebMercator

	// MethodTransverseMercator covers UTM and other tmerc systems.
	MethodTransverseMercator

	// MethodAlbers is the Albers conic equal-area projection.
	MethodAlbers
)

func (m Method) String() string {
	switch m {
	case MethodLongLat:
		return "longlat"
	case MethodWebMercator:
		return "merc"
	case MethodTransverseMercator:
		return "tmerc"
	case MethodAlbers:
		return "aea"
	default:
		return "unknown"
	}
}

// projParams holds the projection parameters in degrees and metres.
type projParams struct {
	Lon0 float64
	Lat0 float64
	Lat1 float64
	Lat2 float64
	K0   float64
	X0   float64
	Y0   float64
}

func (p projParams) equal(o projParams) bool {
	const eps = 1e-9
	return math.Abs(p.Lon0-o.Lon0) < eps &&
		math.Abs(p.Lat0-o.Lat0) < eps &&
		math.Abs(p.Lat1-o.Lat1) < eps &&
		math.Abs(p.Lat2-o.Lat2) < eps &&
		math.Abs(p.K0-o.K0) < eps &&
		math.Abs(p.X0-o.X0) < 1e-6 &&
		math.Abs(p.Y0-o.Y0) < 1e-6
}

// CRS is a resolved coordinate reference system.
//
// CRS values are immutable and safe to share. Two CRS values are Equal when
// they resolve to the same datum, projection method and parameters,
// regardless of whether they were parsed from an EPSG code, a PROJ string
// or WKT.
//
// Example:
//
//	a, _ := geo.ParseCRS("EPSG:32633")
//	b, _ := geo.ParseCRS("+proj=utm +zone=33 +datum=WGS84 +units=m")
//	a.Equal(b) // true
type CRS struct {
	code   int
	name   string
	datum  Datum
	method Method
	params projParams
}

// Common reference systems.
var (
	WGS84       = mustLookup(4326)
	NAD83       = mustLookup(4269)
	WebMercator = mustLookup(3857)
)

// EPSG returns the EPSG code, or 0 for a system without a known code.
func (c *CRS) EPSG() int { return c.code }

// Name returns the human-readable name.
func (c *CRS) Name() string { return c.name }

// Datum returns the geodetic datum.
func (c *CRS) Datum() Datum { return c.datum }

// Method returns the projection method.
func (c *CRS) Method() Method { return c.method }

// IsGeographic reports whether coordinates are angular (degrees).
func (c *CRS) IsGeographic() bool { return c.method == MethodLongLat }

// Unit returns the linear unit name: "degree" or "metre".
func (c *CRS) Unit() string {
	if c.IsGeographic() {
		return "degree"
	}
	return "metre"
}

// Equal reports whether two systems resolve to the same definition.
// Two nil systems are equal.
func (c *CRS) Equal(o *CRS) bool {
	if c == nil || o == nil {
		return c == nil && o == nil
	}
	if c.datum != o.datum || c.method != o.method {
		return false
	}
	return c.params.equal(o.params)
}

// String returns the authority form ("EPSG:4326") when a code is known and
// the PROJ form otherwise.
func (c *CRS) String() string {
	if c == nil {
		return "<nil>"
	}
	if c.code != 0 {
		return "EPSG:" + strconv.Itoa(c.code)
	}
	return c.Proj()
}

// Proj returns the PROJ parameter string.
func (c *CRS) Proj() string {
	var b strings.Builder
	p := c.params
	switch c.method {
	case MethodLongLat:
		b.WriteString("+proj=longlat")
	case MethodWebMercator:
		b.WriteString("+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1")
	case MethodTransverseMercator:
		if zone, south, ok := c.utmZone(); ok {
			fmt.Fprintf(&b, "+proj=utm +zone=%d", zone)
			if south {
				b.WriteString(" +south")
			}
		} else {
			fmt.Fprintf(&b, "+proj=tmerc +lat_0=%s +lon_0=%s +k=%s +x_0=%s +y_0=%s",
				ftoa(p.Lat0), ftoa(p.Lon0), ftoa(p.K0), ftoa(p.X0), ftoa(p.Y0))
		}
	case MethodAlbers:
		fmt.Fprintf(&b, "+proj=aea +lat_0=%s +lon_0=%s +lat_1=%s +lat_2=%s +x_0=%s +y_0=%s",
			ftoa(p.Lat0), ftoa(p.Lon0), ftoa(p.Lat1), ftoa(p.Lat2), ftoa(p.X0), ftoa(p.Y0))
	}
	if c.method != MethodWebMercator {
		fmt.Fprintf(&b, " +datum=%s", c.datum)
	}
	if c.IsGeographic() {
		b.WriteString(" +no_defs")
	} else {
		b.WriteString(" +units=m +no_defs")
	}
	return b.String()
}

// utmZone reports the UTM zone when the transverse Mercator parameters
// match a standard zone.
func (c *CRS) utmZone() (zone int, south bool, ok bool) {
	p := c.params
	if c.method != MethodTransverseMercator || p.Lat0 != 0 || p.K0 != 0.9996 || p.X0 != 500000 {
		return 0, false, false
	}
	z := (p.Lon0 + 183) / 6
	if z != math.Trunc(z) || z < 1 || z > 60 {
		return 0, false, false
	}
	switch p.Y0 {
	case 0:
		return int(z), false, true
	case 10000000:
		return int(z), true, true
	}
	return 0, false, false
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var epsgPattern = regexp.MustCompile(`(?i)^(?:EPSG:{1,2}|urn:ogc:def:crs:EPSG:[0-9.]*:|https?://www\.opengis\.net/def/crs/EPSG/0/)(\d+)$`)

func isCRS84(s string) bool {
	switch strings.ToLower(s) {
	case "crs84", "ogc:crs84", "urn:ogc:def:crs:ogc:1.3:crs84", "urn:ogc:def:crs:ogc::crs84",
		"http://www.opengis.net/def/crs/ogc/1.3/crs84":
		return true
	}
	return false
}

// ParseCRS resolves a CRS identifier given as an authority:code pair, a
// PROJ parameter string or OGC Well-Known Text.
//
// Example:
//
//	crs, err := geo.ParseCRS("EPSG:5070")
//	crs, err := geo.ParseCRS("+proj=longlat +datum=NAD83")
//	crs, err := geo.ParseCRS(`GEOGCS["WGS 84",DATUM["WGS_1984",...],AUTHORITY["EPSG","4326"]]`)
func ParseCRS(s string) (*CRS, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &CRSError{Op: "parse crs", Reason: "empty identifier"}
	}

	if isCRS84(s) {
		return WGS84, nil
	}
	if m := epsgPattern.FindStringSubmatch(s); m != nil {
		code, _ := strconv.Atoi(m[1])
		return LookupEPSG(code)
	}
	if strings.HasPrefix(s, "+") {
		return parseProj(s)
	}
	if looksLikeWKT(s) {
		return parseWKT(s)
	}
	return nil, &CRSError{Op: "parse crs", CRS: s, Reason: "unrecognised identifier form"}
}

// MustParseCRS is like ParseCRS but panics on error. Intended for
// constants in tests and examples.
func MustParseCRS(s string) *CRS {
	c, err := ParseCRS(s)
	if err != nil {
		panic(err)
	}
	return c
}

// LookupEPSG returns the registered CRS for an EPSG code.
func LookupEPSG(code int) (*CRS, error) {
	if c, ok := registry[code]; ok {
		return c, nil
	}
	return nil, &CRSError{
		Op:     "lookup crs",
		CRS:    "EPSG:" + strconv.Itoa(code),
		Reason: "code is not in the registry",
	}
}

// identify attaches a registered code and name to a structurally parsed
// system when one matches.
func identify(c *CRS) *CRS {
	for _, code := range registryOrder {
		r := registry[code]
		if r.Equal(c) {
			return r
		}
	}
	return c
}
