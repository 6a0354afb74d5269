package crs

import (
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/wroge/wgs84"

	"github.com/mapweave/mapweave/pkg/geo"
)

// pointTransform converts a traditional-GIS-ordered coordinate pair from
// one CRS to another.
type pointTransform func(x, y float64) (float64, float64, error)

// transformMemo caches built transform closures per (srcUid, dstUid). The
// closures themselves are stateless, so sharing them across goroutines is
// safe; the memo only saves the repository lookups.
var transformMemo, _ = lru.New[[2]string, pointTransform](256)

func transformFor(src, dst *Crs) (pointTransform, error) {
	if src == nil || dst == nil {
		return nil, errors.Wrap(ErrCrsUnknown, "nil CRS")
	}
	key := [2]string{src.Uid(), dst.Uid()}
	if fn, ok := transformMemo.Get(key); ok {
		return fn, nil
	}

	if src.Uid() == dst.Uid() {
		identity := func(x, y float64) (float64, float64, error) { return x, y, nil }
		transformMemo.Add(key, identity)
		return identity, nil
	}

	from := coordinateSystemFor(src.epsgCode)
	to := coordinateSystemFor(dst.epsgCode)
	if from == nil || to == nil {
		return nil, errors.Wrapf(ErrTransformFailure, "no projection math for %s -> %s", src.Uid(), dst.Uid())
	}
	raw := wgs84.Transform(from, to)
	fn := func(x, y float64) (float64, float64, error) {
		ox, oy, _ := raw(x, y, 0)
		if math.IsNaN(ox) || math.IsNaN(oy) || math.IsInf(ox, 0) || math.IsInf(oy, 0) {
			return 0, 0, errors.Wrapf(ErrTransformFailure, "point (%v, %v) did not transform", x, y)
		}
		return ox, oy, nil
	}
	transformMemo.Add(key, fn)
	return fn, nil
}

// TransformPoint converts p from src to dst. Both sides are read and
// written in traditional GIS axis order (X=longitude/easting).
func TransformPoint(src, dst *Crs, p geo.Point2d) (geo.Point2d, error) {
	if !p.Valid() {
		return geo.Point2d{}, errors.Wrap(ErrTransformFailure, "non-finite input point")
	}
	fn, err := transformFor(src, dst)
	if err != nil {
		return geo.Point2d{}, err
	}
	x, y, err := fn(p.X, p.Y)
	if err != nil {
		return geo.Point2d{}, err
	}
	return geo.Point2d{X: x, Y: y}, nil
}

// bboxGridN is the per-side sample count for bounding box transforms.
const bboxGridN = 11

// TransformBoundingBox converts a bounding box into the CRS identified by
// dstCrsID. The source rectangle is clipped to the source CRS's valid area
// first; the clipped rectangle is sampled on an 11x11 grid, every point is
// transformed, and the hull of the finite successes is returned. When the
// destination is geographic and the resulting longitude span exceeds 180
// degrees the longitude axis collapses to [-180, 180].
func TransformBoundingBox(src geo.BoundingBox, dstCrsID string) (geo.BoundingBox, error) {
	srcCrs, err := Resolve(src.CrsID)
	if err != nil {
		return geo.BoundingBox{}, err
	}
	dstCrs, err := Resolve(dstCrsID)
	if err != nil {
		return geo.BoundingBox{}, err
	}

	outID := AuthorityID(dstCrs)
	if outID == "" {
		outID = dstCrs.Uid()
	}

	clip := src.Rect
	if valid := ValidArea(srcCrs); valid.Rect.Valid() {
		var ok bool
		clip, ok = src.Rect.Intersect(valid.Rect)
		if !ok {
			return geo.BoundingBox{}, errors.Wrapf(ErrTransformFailure,
				"bbox %v does not overlap the valid area of %s", src.Rect, srcCrs.Uid())
		}
	}

	if srcCrs.Uid() == dstCrs.Uid() {
		return geo.BoundingBox{CrsID: outID, Rect: clip}, nil
	}

	fn, err := transformFor(srcCrs, dstCrs)
	if err != nil {
		return geo.BoundingBox{}, err
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	any := false
	for i := 0; i < bboxGridN; i++ {
		for j := 0; j < bboxGridN; j++ {
			x := clip.MinX + clip.Width()*float64(i)/(bboxGridN-1)
			y := clip.MinY + clip.Height()*float64(j)/(bboxGridN-1)
			ox, oy, err := fn(x, y)
			if err != nil {
				continue
			}
			any = true
			minX, minY = math.Min(minX, ox), math.Min(minY, oy)
			maxX, maxY = math.Max(maxX, ox), math.Max(maxY, oy)
		}
	}
	if !any {
		return geo.BoundingBox{}, errors.Wrapf(ErrTransformFailure,
			"no grid point of %v survived %s -> %s", src.Rect, srcCrs.Uid(), dstCrs.Uid())
	}

	if dstCrs.IsGeographic() && maxX-minX > 180 {
		// Antimeridian guard: a source area wrapping the dateline smears
		// into a near-global longitude span; collapse it.
		minX, maxX = -180, 180
	}
	return geo.BoundingBox{CrsID: outID, Rect: geo.NewRectangle(minX, minY, maxX, maxY, false)}, nil
}
