// Package geo holds the planar primitives the rest of mapweave is built on:
// points, axis-aligned rectangles, and CRS-tagged bounding boxes.
package geo

import (
	"fmt"
	"math"
	"strings"
)

// Point2d is a coordinate pair in some unspecified planar or angular CRS.
type Point2d struct {
	X float64
	Y float64
}

// Valid reports whether neither coordinate is NaN.
func (p Point2d) Valid() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y)
}

// Scale returns the point with both coordinates multiplied by s.
func (p Point2d) Scale(s float64) Point2d {
	return Point2d{X: p.X * s, Y: p.Y * s}
}

// Rectangle is an axis-aligned rectangle. MinX <= MaxX and MinY <= MaxY is
// guaranteed only when constructed through NewRectangle with normalize set.
type Rectangle struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// NewRectangle builds a rectangle from two opposite corners. With normalize
// set, min/max pairs are swapped into order.
func NewRectangle(minX, minY, maxX, maxY float64, normalize bool) Rectangle {
	r := Rectangle{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
	if normalize {
		if r.MinX > r.MaxX {
			r.MinX, r.MaxX = r.MaxX, r.MinX
		}
		if r.MinY > r.MaxY {
			r.MinY, r.MaxY = r.MaxY, r.MinY
		}
	}
	return r
}

// NewRectangleFromPoints builds a rectangle spanning the two corner points.
func NewRectangleFromPoints(min, max Point2d, normalize bool) Rectangle {
	return NewRectangle(min.X, min.Y, max.X, max.Y, normalize)
}

// Valid reports whether all four edges are finite and width/height are
// non-negative.
func (r Rectangle) Valid() bool {
	for _, v := range [...]float64{r.MinX, r.MinY, r.MaxX, r.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.MaxX >= r.MinX && r.MaxY >= r.MinY
}

// Width returns MaxX - MinX.
func (r Rectangle) Width() float64 { return r.MaxX - r.MinX }

// Height returns MaxY - MinY.
func (r Rectangle) Height() float64 { return r.MaxY - r.MinY }

// Area returns the rectangle's area.
func (r Rectangle) Area() float64 { return r.Width() * r.Height() }

// Center returns the rectangle's center point.
func (r Rectangle) Center() Point2d {
	return Point2d{X: (r.MinX + r.MaxX) / 2, Y: (r.MinY + r.MaxY) / 2}
}

// Min returns the (MinX, MinY) corner.
func (r Rectangle) Min() Point2d { return Point2d{X: r.MinX, Y: r.MinY} }

// Max returns the (MaxX, MaxY) corner.
func (r Rectangle) Max() Point2d { return Point2d{X: r.MaxX, Y: r.MaxY} }

// Invert swaps the X and Y axes, turning an (x, y) rectangle into a (y, x)
// one. Used when rendering BBOX parameters for lat/long ordered CRSes.
func (r Rectangle) Invert() Rectangle {
	return Rectangle{MinX: r.MinY, MinY: r.MinX, MaxX: r.MaxY, MaxY: r.MaxX}
}

// Intersect returns the overlap of two rectangles. The second return is
// false when they do not overlap.
func (r Rectangle) Intersect(o Rectangle) (Rectangle, bool) {
	out := Rectangle{
		MinX: math.Max(r.MinX, o.MinX),
		MinY: math.Max(r.MinY, o.MinY),
		MaxX: math.Min(r.MaxX, o.MaxX),
		MaxY: math.Min(r.MaxY, o.MaxY),
	}
	if out.MinX > out.MaxX || out.MinY > out.MaxY {
		return Rectangle{}, false
	}
	return out, true
}

// String renders the rectangle as "minx,miny,maxx,maxy", the textual form
// used for WMS BBOX parameters and scratch file names.
func (r Rectangle) String() string {
	return fmt.Sprintf("%s,%s,%s,%s", trimFloat(r.MinX), trimFloat(r.MinY), trimFloat(r.MaxX), trimFloat(r.MaxY))
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.6f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// BoundingBox is a rectangle tagged with an opaque CRS identifier. An empty
// CrsID means the CRS is unknown.
type BoundingBox struct {
	CrsID string
	Rect  Rectangle
}

// NewBoundingBox builds a bounding box from a CRS id and four edges.
func NewBoundingBox(crsID string, minX, minY, maxX, maxY float64) BoundingBox {
	return BoundingBox{CrsID: crsID, Rect: NewRectangle(minX, minY, maxX, maxY, false)}
}

// Valid reports whether the CRS id is non-empty and the rectangle is valid.
// Whether the CRS id resolves is not checked here; see crs.Resolve.
func (b BoundingBox) Valid() bool {
	return b.CrsID != "" && b.Rect.Valid()
}

// Overlap returns the intersection of two bounding boxes that share a CRS
// id. The second return is false when the ids differ or nothing overlaps.
func Overlap(a, b BoundingBox) (BoundingBox, bool) {
	if a.CrsID != b.CrsID {
		return BoundingBox{}, false
	}
	rect, ok := a.Rect.Intersect(b.Rect)
	if !ok {
		return BoundingBox{}, false
	}
	return BoundingBox{CrsID: a.CrsID, Rect: rect}, true
}
