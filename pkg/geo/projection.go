package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/wroge/wgs84"
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

// Transformer returns a projection function mapping coordinates in src to
// coordinates in dst.
//
// A path exists when both systems share a datum, or when both datums belong
// to the WGS84/NAD83 family, which are treated as coincident. Anything else,
// NAD27 to WGS84 for example, needs a grid shift and fails with
// ProjectionError. Identical systems return the identity function.
func Transformer(src, dst *CRS) (orb.Projection, error) {
	if src == nil || dst == nil {
		return nil, &CRSError{Op: "transform", Reason: "source and target CRS are required"}
	}
	if src.Equal(dst) {
		return func(p orb.Point) orb.Point { return p }, nil
	}
	if src.datum != dst.datum && (src.datum.family() == 0 || src.datum.family() != dst.datum.family()) {
		return nil, &ProjectionError{
			From:   src.String(),
			To:     dst.String(),
			Reason: "no datum transformation between " + src.datum.String() + " and " + dst.datum.String(),
		}
	}

	if src.datum != dst.datum {
		// Through geocentric coordinates on each datum's own spheroid.
		fn := wgs84.Transform(src.reference(), dst.reference())
		return func(p orb.Point) orb.Point {
			x, y, _ := fn(p[0], p[1], 0)
			return orb.Point{x, y}
		}, nil
	}

	sph := src.datum.reference()
	inverse, forward := src.projection(), dst.projection()
	return func(p orb.Point) orb.Point {
		lon, lat := p[0], p[1]
		if inverse != nil {
			lon, lat = inverse.ToLonLat(p[0], p[1], sph)
		}
		if forward == nil {
			return orb.Point{lon, lat}
		}
		x, y := forward.FromLonLat(lon, lat, sph)
		return orb.Point{x, y}
	}, nil
}

// projection returns the map projection of c, nil for a geographic system.
func (c *CRS) projection() wgs84.Projection {
	d := c.datum.reference()
	p := c.params
	switch c.method {
	case MethodWebMercator:
		return d.WebMercator().Projection
	case MethodTransverseMercator:
		return transverseMercator{params: p}
	case MethodAlbers:
		return d.AlbersEqualAreaConic(p.Lon0, p.Lat0, p.Lat1, p.Lat2, p.X0, p.Y0).Projection
	default:
		return nil
	}
}

// reference returns c as a wgs84 coordinate reference system.
func (c *CRS) reference() wgs84.CoordinateReferenceSystem {
	d := c.datum.reference()
	if proj := c.projection(); proj != nil {
		return wgs84.ProjectedReferenceSystem{Datum: d, Projection: proj}
	}
	return d.LonLat()
}

// transverseMercator implements the ellipsoidal series of Snyder,
// "Map Projections: A Working Manual", equations 8-5 to 8-25, as a
// wgs84.Projection.
type transverseMercator struct {
	params projParams
}

func (t transverseMercator) FromLonLat(lon, lat float64, s wgs84.Spheroid) (east, north float64) {
	p := newTMSeries(t.params, s).forward(orb.Point{lon, lat})
	return p[0], p[1]
}

func (t transverseMercator) ToLonLat(east, north float64, s wgs84.Spheroid) (lon, lat float64) {
	p := newTMSeries(t.params, s).inverse(orb.Point{east, north})
	return p[0], p[1]
}

type tmSeries struct {
	a, e2, ep2     float64
	k0, lon0, lat0 float64
	x0, y0, m0     float64
	c1, c2, c3, c4 float64 // meridian arc coefficients
	e1             float64
}

func newTMSeries(p projParams, s wgs84.Spheroid) *tmSeries {
	a, f := s.A(), 1/s.Fi()
	e2 := f * (2 - f)
	e4 := e2 * e2
	e6 := e4 * e2
	tm := &tmSeries{
		a:    a,
		e2:   e2,
		ep2:  e2 / (1 - e2),
		k0:   p.K0,
		lon0: p.Lon0 * deg2rad,
		lat0: p.Lat0 * deg2rad,
		x0:   p.X0,
		y0:   p.Y0,
		c1:   1 - e2/4 - 3*e4/64 - 5*e6/256,
		c2:   3*e2/8 + 3*e4/32 + 45*e6/1024,
		c3:   15*e4/256 + 45*e6/1024,
		c4:   35 * e6 / 3072,
	}
	sq := math.Sqrt(1 - e2)
	tm.e1 = (1 - sq) / (1 + sq)
	tm.m0 = tm.arc(tm.lat0)
	return tm
}

func (t *tmSeries) arc(phi float64) float64 {
	return t.a * (t.c1*phi - t.c2*math.Sin(2*phi) + t.c3*math.Sin(4*phi) - t.c4*math.Sin(6*phi))
}

func (t *tmSeries) forward(p orb.Point) orb.Point {
	phi := p[1] * deg2rad
	lam := p[0] * deg2rad
	sin, cos := math.Sin(phi), math.Cos(phi)
	tan := math.Tan(phi)

	n := t.a / math.Sqrt(1-t.e2*sin*sin)
	T := tan * tan
	C := t.ep2 * cos * cos
	A := (lam - t.lon0) * cos
	M := t.arc(phi)

	A2 := A * A
	A3 := A2 * A
	A4 := A3 * A
	A5 := A4 * A
	A6 := A5 * A

	x := t.k0*n*(A+(1-T+C)*A3/6+(5-18*T+T*T+72*C-58*t.ep2)*A5/120) + t.x0
	y := t.k0*(M-t.m0+n*tan*(A2/2+(5-T+9*C+4*C*C)*A4/24+(61-58*T+T*T+600*C-330*t.ep2)*A6/720)) + t.y0
	return orb.Point{x, y}
}

func (t *tmSeries) inverse(p orb.Point) orb.Point {
	M := t.m0 + (p[1]-t.y0)/t.k0
	mu := M / (t.a * t.c1)
	e1 := t.e1
	phi1 := mu + (3*e1/2-27*e1*e1*e1/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*e1*e1*e1*e1/32)*math.Sin(4*mu) +
		(151*e1*e1*e1/96)*math.Sin(6*mu) +
		(1097*e1*e1*e1*e1/512)*math.Sin(8*mu)

	sin, cos := math.Sin(phi1), math.Cos(phi1)
	tan := math.Tan(phi1)
	C1 := t.ep2 * cos * cos
	T1 := tan * tan
	N1 := t.a / math.Sqrt(1-t.e2*sin*sin)
	R1 := t.a * (1 - t.e2) / math.Pow(1-t.e2*sin*sin, 1.5)
	D := (p[0] - t.x0) / (N1 * t.k0)

	D2 := D * D
	D3 := D2 * D
	D4 := D3 * D
	D5 := D4 * D
	D6 := D5 * D

	phi := phi1 - (N1*tan/R1)*(D2/2-(5+3*T1+10*C1-4*C1*C1-9*t.ep2)*D4/24+
		(61+90*T1+298*C1+45*T1*T1-252*t.ep2-3*C1*C1)*D6/720)
	lam := t.lon0 + (D-(1+2*T1+C1)*D3/6+(5-2*C1+28*T1-3*C1*C1+8*t.ep2+24*T1*T1)*D5/120)/cos
	return orb.Point{lam * rad2deg, phi * rad2deg}
}
