package geo

import (
	"fmt"
	"sort"
)

// registry maps EPSG codes to resolved systems. It covers the geographic
// systems, Web Mercator, UTM zones and CONUS Albers on the supported datums.
var registry, registryOrder = buildRegistry()

func buildRegistry() (map[int]*CRS, []int) {
	reg := make(map[int]*CRS)
	add := func(c *CRS) { reg[c.code] = c }

	add(&CRS{code: 4326, name: "WGS 84", datum: DatumWGS84, method: MethodLongLat})
	add(&CRS{code: 4269, name: "NAD83", datum: DatumNAD83, method: MethodLongLat})
	add(&CRS{code: 4267, name: "NAD27", datum: DatumNAD27, method: MethodLongLat})
	add(&CRS{code: 3857, name: "WGS 84 / Pseudo-Mercator", datum: DatumWGS84, method: MethodWebMercator})

	for zone := 1; zone <= 60; zone++ {
		add(utm(32600+zone, "WGS 84", DatumWGS84, zone, false))
		add(utm(32700+zone, "WGS 84", DatumWGS84, zone, true))
	}
	for zone := 1; zone <= 23; zone++ {
		add(utm(26900+zone, "NAD83", DatumNAD83, zone, false))
	}
	for zone := 1; zone <= 22; zone++ {
		add(utm(26700+zone, "NAD27", DatumNAD27, zone, false))
	}

	conus := projParams{Lon0: -96, Lat0: 23, Lat1: 29.5, Lat2: 45.5}
	add(&CRS{code: 5070, name: "NAD83 / Conus Albers", datum: DatumNAD83, method: MethodAlbers, params: conus})
	add(&CRS{code: 5069, name: "NAD27 / Conus Albers", datum: DatumNAD27, method: MethodAlbers, params: conus})

	order := make([]int, 0, len(reg))
	for code := range reg {
		order = append(order, code)
	}
	sort.Ints(order)
	return reg, order
}

func utm(code int, datumName string, datum Datum, zone int, south bool) *CRS {
	hemi := "N"
	y0 := 0.0
	if south {
		hemi = "S"
		y0 = 10000000
	}
	return &CRS{
		code:   code,
		name:   fmt.Sprintf("%s / UTM zone %d%s", datumName, zone, hemi),
		datum:  datum,
		method: MethodTransverseMercator,
		params: projParams{
			Lon0: float64(zone*6 - 183),
			K0:   0.9996,
			X0:   500000,
			Y0:   y0,
		},
	}
}

// UTMZone returns the WGS 84 UTM system whose zone contains lon/lat.
func UTMZone(lon, lat float64) *CRS {
	zone := int((lon+180)/6) + 1
	if zone > 60 {
		zone = 60
	}
	if zone < 1 {
		zone = 1
	}
	code := 32600 + zone
	if lat < 0 {
		code = 32700 + zone
	}
	return registry[code]
}

func mustLookup(code int) *CRS {
	c, err := LookupEPSG(code)
	if err != nil {
		panic(err)
	}
	return c
}
