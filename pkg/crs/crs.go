// Package crs resolves opaque coordinate reference system identifiers into
// normalized definitions and answers the identity, axis-order, unit and
// validity-area questions the capabilities parser and the tile planner
// depend on. Resolution results are cached per process.
package crs

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// Kind classifies a CRS by its coordinate space.
type Kind int

const (
	KindUnknown Kind = iota
	KindGeographic
	KindProjected
	KindLocal
)

// AxisOrderPolicy says how the first/second coordinate of a CRS is to be
// read. TraditionalGis means X=longitude/easting, Y=latitude/northing
// regardless of what the authority declares.
type AxisOrderPolicy int

const (
	TraditionalGis AxisOrderPolicy = iota
	AuthorityCompliant
	AxisOrderUnknown
)

// Units describes a linear or angular unit by its conversion factor to the
// SI base (meters or radians).
type Units struct {
	Name string
	ToSI float64
}

// Crs is a resolved coordinate reference system. Values are immutable after
// resolution; compare them with Equal rather than ==.
type Crs struct {
	kind     Kind
	epsgCode int // 0 when no EPSG authority code is known
	name     string
	wkt      string // normalized definition text, empty for registry-built CRSes
	policy   AxisOrderPolicy

	linearUnits  Units
	angularUnits Units

	// authorityLatLong is true when the authority declares the axis order
	// as Lat/Long or Northing/Easting.
	authorityLatLong bool
}

// Uid returns the canonical identifier: "EPSG:<n>" when an EPSG authority
// code is known, otherwise a deterministic FNV-1a 64-bit hash of the
// definition text.
func (c *Crs) Uid() string {
	if c.epsgCode > 0 {
		return fmt.Sprintf("EPSG:%d", c.epsgCode)
	}
	h := fnv.New64a()
	h.Write([]byte(normalizeDefinition(c.wkt)))
	return fmt.Sprintf("WKT2_2018_HASH:%016x", h.Sum64())
}

// Equal reports whether two CRSes denote the same geodetic definition,
// ignoring axis ordering.
func (c *Crs) Equal(o *Crs) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.Uid() == o.Uid() {
		return true
	}
	// Same kind, same units, same normalized definition modulo axis order.
	return c.kind == o.kind &&
		c.linearUnits.ToSI == o.linearUnits.ToSI &&
		normalizeDefinition(c.wkt) != "" &&
		normalizeDefinition(c.wkt) == normalizeDefinition(o.wkt)
}

// Name returns the human-readable CRS name, which may be empty.
func (c *Crs) Name() string { return c.name }

// EpsgCode returns the EPSG authority code, 0 when none is known.
func (c *Crs) EpsgCode() int { return c.epsgCode }

// IsGeographic reports whether the CRS uses angular coordinates.
func (c *Crs) IsGeographic() bool { return c.kind == KindGeographic }

// IsProjected reports whether the CRS uses projected planar coordinates.
func (c *Crs) IsProjected() bool { return c.kind == KindProjected }

// IsLocal reports whether the CRS is an engineering/local system.
func (c *Crs) IsLocal() bool { return c.kind == KindLocal }

// LinearUnits returns the linear unit; ToSI converts to meters.
func (c *Crs) LinearUnits() Units { return c.linearUnits }

// AngularUnits returns the angular unit; ToSI converts to radians.
func (c *Crs) AngularUnits() Units { return c.angularUnits }

// AxisOrder returns the axis-order policy attached to this CRS value. The
// default is TraditionalGis.
func (c *Crs) AxisOrder() AxisOrderPolicy { return c.policy }

// WithAxisOrder returns a copy of the CRS carrying the given policy.
func (c *Crs) WithAxisOrder(p AxisOrderPolicy) *Crs {
	out := *c
	out.policy = p
	return &out
}

// ShouldInvertAxes reports whether the authority declares this CRS with a
// Lat/Long or Northing/Easting axis order, which callers writing
// version-sensitive BBOX strings must compensate for.
func (c *Crs) ShouldInvertAxes() bool { return c.authorityLatLong }

// MetersPerUnit returns the ground distance represented by one CRS unit for
// scale computations: a fixed equatorial degree length for geographic
// CRSes, the linear unit factor otherwise.
func (c *Crs) MetersPerUnit() float64 {
	if c.IsGeographic() {
		return MetersPerDegree
	}
	if c.linearUnits.ToSI > 0 {
		return c.linearUnits.ToSI
	}
	return 1
}

// MetersPerDegree is the length of one degree along the equator on the
// WGS84 ellipsoid, used to turn scale denominators into angular pixel
// sizes.
const MetersPerDegree = 111319.49079327358

func normalizeDefinition(def string) string {
	return strings.Join(strings.Fields(def), " ")
}
