package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/wroge/wgs84"
)

func TestParseCRSForms(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantEPSG int
		wantErr  bool
	}{
		{"epsg", "EPSG:4326", 4326, false},
		{"epsg lowercase", "epsg:3857", 3857, false},
		{"urn", "urn:ogc:def:crs:EPSG::32633", 32633, false},
		{"opengis uri", "http://www.opengis.net/def/crs/EPSG/0/5070", 5070, false},
		{"crs84", "OGC:CRS84", 4326, false},
		{"crs84 urn", "urn:ogc:def:crs:OGC:1.3:CRS84", 4326, false},
		{"proj longlat", "+proj=longlat +datum=WGS84 +no_defs", 4326, false},
		{"proj nad83", "+proj=longlat +datum=NAD83 +no_defs", 4269, false},
		{"proj utm", "+proj=utm +zone=33 +datum=WGS84 +units=m +no_defs", 32633, false},
		{"proj utm south", "+proj=utm +zone=33 +south +datum=WGS84", 32733, false},
		{"proj merc", "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m", 3857, false},
		{"proj aea", "+proj=aea +lat_0=23 +lon_0=-96 +lat_1=29.5 +lat_2=45.5 +x_0=0 +y_0=0 +datum=NAD83 +units=m", 5070, false},
		{"proj init", "+init=epsg:26913", 26913, false},
		{"proj custom tmerc", "+proj=tmerc +lat_0=0 +lon_0=10 +k=1 +x_0=0 +y_0=0 +datum=WGS84", 0, false},
		{"unknown code", "EPSG:999999", 0, true},
		{"empty", "", 0, true},
		{"garbage", "not a crs", 0, true},
		{"feet", "+proj=utm +zone=13 +datum=NAD83 +units=us-ft", 0, true},
		{"ellipsoidal merc", "+proj=merc +datum=WGS84", 0, true},
		{"unknown datum", "+proj=longlat +datum=OSGB36", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crs, err := ParseCRS(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCRS(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				var crsErr *CRSError
				if !errors.As(err, &crsErr) {
					t.Errorf("expected *CRSError, got %T", err)
				}
				return
			}
			if crs.EPSG() != tt.wantEPSG {
				t.Errorf("EPSG() = %d, want %d", crs.EPSG(), tt.wantEPSG)
			}
		})
	}
}

func TestCRSFormsAreEquivalent(t *testing.T) {
	for _, code := range []int{4326, 4269, 4267, 3857, 32613, 32733, 26918, 26715, 5070} {
		byCode, err := LookupEPSG(code)
		if err != nil {
			t.Fatalf("LookupEPSG(%d): %v", code, err)
		}

		fromProj, err := ParseCRS(byCode.Proj())
		if err != nil {
			t.Fatalf("ParseCRS(Proj() of %d): %v", code, err)
		}
		if !fromProj.Equal(byCode) {
			t.Errorf("EPSG:%d: PROJ form %q resolved to %s", code, byCode.Proj(), fromProj)
		}

		fromWKT, err := ParseCRS(byCode.WKT())
		if err != nil {
			t.Fatalf("ParseCRS(WKT() of %d): %v", code, err)
		}
		if !fromWKT.Equal(byCode) {
			t.Errorf("EPSG:%d: WKT form resolved to %s", code, fromWKT)
		}
	}
}

func TestParseWKTStructural(t *testing.T) {
	// ESRI-flavoured .prj without authority codes.
	prj := `PROJCS["NAD_1983_UTM_Zone_13N",GEOGCS["GCS_North_American_1983",` +
		`DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],` +
		`PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],` +
		`PROJECTION["Transverse_Mercator"],PARAMETER["False_Easting",500000.0],` +
		`PARAMETER["False_Northing",0.0],PARAMETER["Central_Meridian",-105.0],` +
		`PARAMETER["Scale_Factor",0.9996],PARAMETER["Latitude_Of_Origin",0.0],UNIT["Meter",1.0]]`

	crs, err := ParseCRS(prj)
	if err != nil {
		t.Fatalf("ParseCRS() error = %v", err)
	}
	if crs.EPSG() != 26913 {
		t.Errorf("EPSG() = %d, want 26913", crs.EPSG())
	}

	geog := `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],` +
		`PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`
	crs, err = ParseCRS(geog)
	if err != nil {
		t.Fatalf("ParseCRS() error = %v", err)
	}
	if !crs.Equal(WGS84) {
		t.Errorf("got %s, want EPSG:4326", crs)
	}
}

func TestCRSUnits(t *testing.T) {
	if !WGS84.IsGeographic() || WGS84.Unit() != "degree" {
		t.Errorf("WGS84 should be geographic with degree units")
	}
	if WebMercator.IsGeographic() || WebMercator.Unit() != "metre" {
		t.Errorf("Web Mercator should be projected with metre units")
	}
}

func TestTransformerIdentity(t *testing.T) {
	proj, err := Transformer(WGS84, MustParseCRS("OGC:CRS84"))
	if err != nil {
		t.Fatalf("Transformer() error = %v", err)
	}
	p := orb.Point{-105.27, 40.01}
	if got := proj(p); got != p {
		t.Errorf("identity transform moved %v to %v", p, got)
	}
}

func TestTransformerRoundTrip(t *testing.T) {
	conus := []orb.Point{{-105.27, 40.01}, {-74.0, 40.7}, {-96.0, 23.0}, {-120.5, 47.2}}
	tests := []struct {
		target string
		points []orb.Point
	}{
		{"EPSG:3857", conus},
		{"EPSG:4269", conus},
		{"EPSG:5070", conus},
		{"EPSG:32613", []orb.Point{{-105.27, 40.01}, {-104.0, 38.5}}},
		{"EPSG:26913", []orb.Point{{-105.27, 40.01}, {-106.5, 35.1}}},
		{"EPSG:32618", []orb.Point{{-74.0, 40.7}, {-76.5, 42.4}}},
		{"EPSG:32756", []orb.Point{{151.2, -33.9}}},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			dst := MustParseCRS(tt.target)
			fwd, err := Transformer(WGS84, dst)
			if err != nil {
				t.Fatalf("Transformer(WGS84, %s) error = %v", tt.target, err)
			}
			inv, err := Transformer(dst, WGS84)
			if err != nil {
				t.Fatalf("Transformer(%s, WGS84) error = %v", tt.target, err)
			}
			for _, p := range tt.points {
				back := inv(fwd(p))
				if math.Abs(back[0]-p[0]) > 1e-6 || math.Abs(back[1]-p[1]) > 1e-6 {
					t.Errorf("round trip of %v gave %v", p, back)
				}
			}
		})
	}
}

func TestTransverseMercatorKnownValues(t *testing.T) {
	utm33 := MustParseCRS("EPSG:32633")
	fwd, err := Transformer(WGS84, utm33)
	if err != nil {
		t.Fatal(err)
	}

	// On the central meridian at the equator.
	got := fwd(orb.Point{15, 0})
	if math.Abs(got[0]-500000) > 1e-6 || math.Abs(got[1]) > 1e-6 {
		t.Errorf("central meridian origin = %v, want (500000, 0)", got)
	}

	// Easting grows east of the central meridian, northing grows north.
	east := fwd(orb.Point{16, 10})
	if east[0] <= 500000 || east[1] <= 0 {
		t.Errorf("point NE of origin projected to %v", east)
	}
}

func TestTransformerMatchesEPSGRepository(t *testing.T) {
	repo := wgs84.EPSG()
	tests := []struct {
		name  string
		src   *CRS
		dst   string
		code  int
		point orb.Point
	}{
		{"web mercator", WGS84, "EPSG:3857", 3857, orb.Point{-105.27, 40.01}},
		{"utm north", WGS84, "EPSG:32613", 32613, orb.Point{-105.27, 40.01}},
		{"utm south", WGS84, "EPSG:32756", 32756, orb.Point{151.2, -33.9}},
		{"nad83 geographic", WGS84, "EPSG:4269", 4269, orb.Point{-74.0, 40.7}},
		{
			"california albers", NAD83,
			"+proj=aea +lat_1=34 +lat_2=40.5 +lat_0=0 +lon_0=-120 +x_0=0 +y_0=-4000000 +datum=NAD83 +units=m +no_defs",
			6414, orb.Point{-121.5, 38.6},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst, err := ParseCRS(tt.dst)
			if err != nil {
				t.Fatalf("ParseCRS(%q) error = %v", tt.dst, err)
			}
			fwd, err := Transformer(tt.src, dst)
			if err != nil {
				t.Fatalf("Transformer() error = %v", err)
			}
			got := fwd(tt.point)

			x, y, _ := wgs84.Transform(repo.Code(4326), repo.Code(tt.code))(tt.point[0], tt.point[1], 0)
			if math.Abs(got[0]-x) > 1e-3 || math.Abs(got[1]-y) > 1e-3 {
				t.Errorf("projected %v to %v, EPSG:%d gives (%v, %v)", tt.point, got, tt.code, x, y)
			}
		})
	}
}

func TestTransverseMercatorInverseNearZoneEdge(t *testing.T) {
	inv, err := Transformer(MustParseCRS("EPSG:32633"), WGS84)
	if err != nil {
		t.Fatal(err)
	}
	fwd, err := Transformer(WGS84, MustParseCRS("EPSG:32633"))
	if err != nil {
		t.Fatal(err)
	}

	// Three degrees off the central meridian, where a wrong radius of
	// curvature shows up as metres of error.
	p := orb.Point{17.9, 60}
	back := inv(fwd(p))
	if math.Abs(back[0]-p[0]) > 1e-7 || math.Abs(back[1]-p[1]) > 1e-7 {
		t.Errorf("round trip of %v gave %v", p, back)
	}
}

func TestAlbersOrigin(t *testing.T) {
	fwd, err := Transformer(NAD83, MustParseCRS("EPSG:5070"))
	if err != nil {
		t.Fatal(err)
	}
	got := fwd(orb.Point{-96, 23})
	if math.Abs(got[0]) > 1e-6 || math.Abs(got[1]) > 1e-6 {
		t.Errorf("projection origin = %v, want (0, 0)", got)
	}
}

func TestTransformerNoPath(t *testing.T) {
	nad27 := MustParseCRS("EPSG:4267")
	_, err := Transformer(nad27, WGS84)
	var projErr *ProjectionError
	if !errors.As(err, &projErr) {
		t.Fatalf("expected *ProjectionError, got %v", err)
	}

	_, err = Transformer(nil, WGS84)
	var crsErr *CRSError
	if !errors.As(err, &crsErr) {
		t.Fatalf("expected *CRSError for nil source, got %v", err)
	}
}

func TestUTMZone(t *testing.T) {
	if got := UTMZone(-105.27, 40.01).EPSG(); got != 32613 {
		t.Errorf("UTMZone(Boulder) = %d, want 32613", got)
	}
	if got := UTMZone(151.2, -33.9).EPSG(); got != 32756 {
		t.Errorf("UTMZone(Sydney) = %d, want 32756", got)
	}
}
