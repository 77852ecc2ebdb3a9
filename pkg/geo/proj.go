package geo

import (
	"strconv"
	"strings"
)

// parseProj resolves a PROJ parameter string such as
// "+proj=utm +zone=18 +datum=NAD83 +units=m +no_defs".
func parseProj(s string) (*CRS, error) {
	params := make(map[string]string)
	for _, tok := range strings.Fields(s) {
		tok = strings.TrimPrefix(tok, "+")
		if tok == "" {
			continue
		}
		k, v, _ := strings.Cut(tok, "=")
		params[strings.ToLower(k)] = v
	}

	fail := func(reason string) (*CRS, error) {
		return nil, &CRSError{Op: "parse proj", CRS: s, Reason: reason}
	}

	if init, ok := params["init"]; ok {
		k, v, found := strings.Cut(strings.ToLower(init), ":")
		if !found || k != "epsg" {
			return fail("unsupported init authority " + init)
		}
		code, err := strconv.Atoi(v)
		if err != nil {
			return fail("invalid init code " + v)
		}
		return LookupEPSG(code)
	}

	if u, ok := params["units"]; ok && u != "m" {
		return fail("unsupported linear unit " + u)
	}

	num := func(key string, def float64) (float64, error) {
		v, ok := params[key]
		if !ok {
			return def, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, &CRSError{Op: "parse proj", CRS: s, Reason: "invalid +" + key + " value " + v}
		}
		return f, nil
	}

	proj := params["proj"]
	switch proj {
	case "longlat", "latlong", "lonlat", "latlon":
		datum, err := projDatum(s, params)
		if err != nil {
			return nil, err
		}
		return identify(&CRS{name: "custom geographic", datum: datum, method: MethodLongLat}), nil

	case "merc":
		a, _ := num("a", 0)
		b, _ := num("b", 0)
		r, _ := num("r", 0)
		spherical := (a == 6378137 && b == 6378137) || r == 6378137
		if !spherical {
			return fail("only the spherical Web Mercator is supported")
		}
		return WebMercator, nil

	case "utm":
		zone, err := strconv.Atoi(params["zone"])
		if err != nil || zone < 1 || zone > 60 {
			return fail("utm requires +zone between 1 and 60")
		}
		datum, err := projDatum(s, params)
		if err != nil {
			return nil, err
		}
		_, south := params["south"]
		c := utm(0, datum.String(), datum, zone, south)
		return identify(c), nil

	case "tmerc":
		datum, err := projDatum(s, params)
		if err != nil {
			return nil, err
		}
		var p projParams
		var errs [5]error
		p.Lat0, errs[0] = num("lat_0", 0)
		p.Lon0, errs[1] = num("lon_0", 0)
		p.K0, errs[2] = num("k", 1)
		if _, ok := params["k_0"]; ok {
			p.K0, errs[2] = num("k_0", 1)
		}
		p.X0, errs[3] = num("x_0", 0)
		p.Y0, errs[4] = num("y_0", 0)
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
		return identify(&CRS{name: "custom transverse mercator", datum: datum, method: MethodTransverseMercator, params: p}), nil

	case "aea":
		datum, err := projDatum(s, params)
		if err != nil {
			return nil, err
		}
		var p projParams
		var errs [6]error
		p.Lat0, errs[0] = num("lat_0", 0)
		p.Lon0, errs[1] = num("lon_0", 0)
		p.Lat1, errs[2] = num("lat_1", 0)
		p.Lat2, errs[3] = num("lat_2", 0)
		p.X0, errs[4] = num("x_0", 0)
		p.Y0, errs[5] = num("y_0", 0)
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
		return identify(&CRS{name: "custom albers", datum: datum, method: MethodAlbers, params: p}), nil

	case "":
		return fail("missing +proj")
	default:
		return fail("unsupported projection " + proj)
	}
}

// projDatum resolves +datum, +ellps and +towgs84 to a Datum. With none of
// them present PROJ defaults to WGS84.
func projDatum(s string, params map[string]string) (Datum, error) {
	if d, ok := params["datum"]; ok {
		switch strings.ToUpper(d) {
		case "WGS84":
			return DatumWGS84, nil
		case "NAD83":
			return DatumNAD83, nil
		case "NAD27":
			return DatumNAD27, nil
		}
		return DatumUnknown, &CRSError{Op: "parse proj", CRS: s, Reason: "unsupported datum " + d}
	}
	if e, ok := params["ellps"]; ok {
		switch strings.ToUpper(e) {
		case "WGS84":
			return DatumWGS84, nil
		case "GRS80":
			return DatumNAD83, nil
		case "CLRK66":
			return DatumNAD27, nil
		}
		return DatumUnknown, &CRSError{Op: "parse proj", CRS: s, Reason: "unsupported ellipsoid " + e}
	}
	return DatumWGS84, nil
}
