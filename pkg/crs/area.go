package crs

import (
	"math"

	"github.com/mapweave/mapweave/pkg/geo"
)

// ValidAreaLonLatSegments returns the CRS's authority area of use in CRS:84
// longitude/latitude, as one rectangle, or two when the area crosses the
// antimeridian.
func ValidAreaLonLatSegments(c *Crs) []geo.Rectangle {
	if c == nil {
		return nil
	}
	if e, ok := lookupRegistry(c.epsgCode); ok {
		return segmentRects(e.segments)
	}
	return segmentRects(worldSegment())
}

// ValidAreaLonLat returns the area of use as a single CRS:84 rectangle.
// Areas crossing the antimeridian collapse to the conservative
// [-180, south, 180, north] form.
func ValidAreaLonLat(c *Crs) geo.Rectangle {
	segs := ValidAreaLonLatSegments(c)
	if len(segs) == 0 {
		return geo.NewRectangle(-180, -90, 180, 90, false)
	}
	if len(segs) == 1 {
		return segs[0]
	}
	south, north := segs[0].MinY, segs[0].MaxY
	for _, s := range segs[1:] {
		south = math.Min(south, s.MinY)
		north = math.Max(north, s.MaxY)
	}
	return geo.NewRectangle(-180, south, 180, north, false)
}

// validAreaGridN is the per-side sample count used to project an area of
// use into a projected CRS's own coordinates.
const validAreaGridN = 21

// ValidArea returns the area of use in the CRS's own coordinates. For
// geographic CRSes this is the lon/lat area itself, axis-swapped when the
// policy is authority-compliant. For projected and local CRSes every
// lon/lat segment is sampled on a 21x21 grid, projected from EPSG:4326, and
// the axis-aligned hull of the finite results is returned. An invalid
// bounding box signals that no grid point survived projection.
func ValidArea(c *Crs) geo.BoundingBox {
	if c == nil {
		return geo.BoundingBox{}
	}
	id := AuthorityID(c)
	if id == "" {
		id = c.Uid()
	}

	if c.IsGeographic() {
		rect := ValidAreaLonLat(c)
		if c.policy == AuthorityCompliant && c.authorityLatLong {
			rect = rect.Invert()
		}
		return geo.BoundingBox{CrsID: id, Rect: rect}
	}

	src, err := Resolve("EPSG:4326")
	if err != nil {
		return geo.BoundingBox{}
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	any := false
	for _, seg := range ValidAreaLonLatSegments(c) {
		for i := 0; i < validAreaGridN; i++ {
			for j := 0; j < validAreaGridN; j++ {
				lon := seg.MinX + seg.Width()*float64(i)/(validAreaGridN-1)
				lat := seg.MinY + seg.Height()*float64(j)/(validAreaGridN-1)
				p, err := TransformPoint(src, c, geo.Point2d{X: lon, Y: lat})
				if err != nil || !p.Valid() || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
					continue
				}
				any = true
				minX, minY = math.Min(minX, p.X), math.Min(minY, p.Y)
				maxX, maxY = math.Max(maxX, p.X), math.Max(maxY, p.Y)
			}
		}
	}
	if !any {
		return geo.BoundingBox{}
	}
	return geo.BoundingBox{CrsID: id, Rect: geo.NewRectangle(minX, minY, maxX, maxY, false)}
}
