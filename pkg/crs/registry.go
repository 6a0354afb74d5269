package crs

import (
	"github.com/wroge/wgs84"

	"github.com/mapweave/mapweave/pkg/geo"
)

// LonLatSegment is one piece of a CRS's area of use expressed in CRS:84
// longitude/latitude. Areas that cross the antimeridian carry two segments.
type LonLatSegment struct {
	West  float64
	South float64
	East  float64
	North float64
}

type registryEntry struct {
	name     string
	kind     Kind
	latLong  bool // authority declares Lat/Long or Northing/Easting order
	unit     Units
	segments []LonLatSegment
	// build returns the wgs84 coordinate reference system used for point
	// transforms when the wgs84 EPSG repository does not carry the code.
	build func() wgs84.CoordinateReferenceSystem
}

type spheroid struct{ a, fi float64 }

func (s spheroid) A() float64  { return s.a }
func (s spheroid) Fi() float64 { return s.fi }

var (
	grs80     = spheroid{a: 6378137, fi: 298.257222101}
	wgs84Sph  = spheroid{a: 6378137, fi: 298.257223563}
	meterUnit = Units{Name: "metre", ToSI: 1}
	degUnit   = Units{Name: "degree", ToSI: 0.0174532925199433}
)

func worldSegment() []LonLatSegment {
	return []LonLatSegment{{West: -180, South: -90, East: 180, North: 90}}
}

// epsgRegistry carries the codes the weaver meets in the wild. Codes
// outside the table still resolve through WKT or the wgs84 EPSG repository;
// they fall back to conservative area and axis metadata.
var epsgRegistry = map[int]registryEntry{
	4326: {
		name: "WGS 84", kind: KindGeographic, latLong: true, unit: degUnit,
		segments: worldSegment(),
		build:    func() wgs84.CoordinateReferenceSystem { return wgs84.LonLat() },
	},
	4258: {
		name: "ETRS89", kind: KindGeographic, latLong: true, unit: degUnit,
		segments: []LonLatSegment{{West: -16.1, South: 32.88, East: 40.18, North: 84.73}},
	},
	4269: {
		name: "NAD83", kind: KindGeographic, latLong: true, unit: degUnit,
		segments: []LonLatSegment{
			{West: 167.65, South: 14.92, East: 180, North: 86.46},
			{West: -180, South: 14.92, East: -47.74, North: 86.46},
		},
		build: func() wgs84.CoordinateReferenceSystem {
			return wgs84.Datum{Spheroid: grs80}.LonLat()
		},
	},
	4490: {
		name: "China Geodetic Coordinate System 2000", kind: KindGeographic, latLong: true, unit: degUnit,
		segments: []LonLatSegment{{West: 73.62, South: 16.7, East: 134.77, North: 53.56}},
		build: func() wgs84.CoordinateReferenceSystem {
			return wgs84.Datum{Spheroid: grs80}.LonLat()
		},
	},
	4167: {
		name: "NZGD2000", kind: KindGeographic, latLong: true, unit: degUnit,
		segments: []LonLatSegment{
			{West: 160.6, South: -55.95, East: 180, North: -25.88},
			{West: -180, South: -55.95, East: -171.2, North: -25.88},
		},
		build: func() wgs84.CoordinateReferenceSystem {
			return wgs84.Datum{Spheroid: grs80}.LonLat()
		},
	},
	3857: {
		name: "WGS 84 / Pseudo-Mercator", kind: KindProjected, latLong: false, unit: meterUnit,
		segments: []LonLatSegment{{West: -180, South: -85.06, East: 180, North: 85.06}},
		build:    func() wgs84.CoordinateReferenceSystem { return wgs84.WebMercator() },
	},
	900913: {
		name: "Google Maps Global Mercator", kind: KindProjected, latLong: false, unit: meterUnit,
		segments: []LonLatSegment{{West: -180, South: -85.06, East: 180, North: 85.06}},
		build:    func() wgs84.CoordinateReferenceSystem { return wgs84.WebMercator() },
	},
	3035: {
		name: "ETRS89-extended / LAEA Europe", kind: KindProjected, latLong: true, unit: meterUnit,
		segments: []LonLatSegment{{West: -35.58, South: 24.6, East: 44.83, North: 84.73}},
	},
	2154: {
		name: "RGF93 v1 / Lambert-93", kind: KindProjected, latLong: false, unit: meterUnit,
		segments: []LonLatSegment{{West: -9.86, South: 41.15, East: 10.38, North: 51.56}},
	},
	27700: {
		name: "OSGB36 / British National Grid", kind: KindProjected, latLong: false, unit: meterUnit,
		segments: []LonLatSegment{{West: -9, South: 49.75, East: 2.01, North: 61.01}},
	},
	2193: {
		name: "NZGD2000 / New Zealand Transverse Mercator 2000", kind: KindProjected, latLong: true, unit: meterUnit,
		segments: []LonLatSegment{{West: 166.37, South: -47.33, East: 178.63, North: -34.1}},
		build: func() wgs84.CoordinateReferenceSystem {
			return wgs84.Datum{Spheroid: grs80}.TransverseMercator(173, 0, 0.9996, 1600000, 10000000)
		},
	},
}

func init() {
	// CGCS2000 3-degree Gauss-Krueger zones, authority Northing/Easting.
	for code := 4513; code <= 4533; code++ {
		zone := code - 4513 + 25
		lon := float64(zone * 3)
		epsgRegistry[code] = registryEntry{
			name: "CGCS2000 / 3-degree Gauss-Kruger", kind: KindProjected, latLong: true, unit: meterUnit,
			segments: []LonLatSegment{{West: lon - 1.5, South: 16.7, East: lon + 1.5, North: 53.56}},
			build: func() wgs84.CoordinateReferenceSystem {
				return wgs84.Datum{Spheroid: grs80}.TransverseMercator(lon, 0, 1, 500000, 0)
			},
		}
	}
	// WGS84 UTM north and south zones.
	for zone := 1; zone <= 60; zone++ {
		lon := float64(zone)*6 - 183
		west, east := lon-3, lon+3
		epsgRegistry[32600+zone] = registryEntry{
			name: "WGS 84 / UTM north", kind: KindProjected, latLong: false, unit: meterUnit,
			segments: []LonLatSegment{{West: west, South: 0, East: east, North: 84}},
			build: func() wgs84.CoordinateReferenceSystem {
				return wgs84.Datum{Spheroid: wgs84Sph}.TransverseMercator(lon, 0, 0.9996, 500000, 0)
			},
		}
		epsgRegistry[32700+zone] = registryEntry{
			name: "WGS 84 / UTM south", kind: KindProjected, latLong: false, unit: meterUnit,
			segments: []LonLatSegment{{West: west, South: -80, East: east, North: 0}},
			build: func() wgs84.CoordinateReferenceSystem {
				return wgs84.Datum{Spheroid: wgs84Sph}.TransverseMercator(lon, 0, 0.9996, 500000, 10000000)
			},
		}
	}
}

func lookupRegistry(code int) (registryEntry, bool) {
	e, ok := epsgRegistry[code]
	return e, ok
}

// coordinateSystemFor returns the wgs84 projection math for an EPSG code,
// preferring the library's own repository and falling back to the registry
// builders. Returns nil when the code has no transform support.
func coordinateSystemFor(code int) wgs84.CoordinateReferenceSystem {
	if sys := wgs84.EPSG().Code(code); sys != nil {
		return sys
	}
	if e, ok := epsgRegistry[code]; ok && e.build != nil {
		return e.build()
	}
	return nil
}

func segmentRects(segs []LonLatSegment) []geo.Rectangle {
	out := make([]geo.Rectangle, 0, len(segs))
	for _, s := range segs {
		out = append(out, geo.NewRectangle(s.West, s.South, s.East, s.North, false))
	}
	return out
}
