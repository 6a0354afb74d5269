package raster

import (
	"math"

	"github.com/pkg/errors"

	"github.com/mapweave/mapweave/pkg/crs"
	"github.com/mapweave/mapweave/pkg/geo"
)

// Warp reprojects inPath into dstCrsID and writes the result at outPath as
// a GeoTIFF. The output grid keeps the input pixel count; each output pixel
// center is inverse-projected into the source CRS and sampled by nearest
// neighbour. Pixels that fall outside the source stay fully transparent.
func (b GoBackend) Warp(inPath, outPath, srcCrsID, dstCrsID string, opts WarpOptions) error {
	src, err := b.OpenReadOnly(inPath)
	if err != nil {
		return err
	}
	defer src.Close()

	srcGT, ok := src.GeoTransform()
	if opts.SourceGeoTransform != nil {
		srcGT, ok = *opts.SourceGeoTransform, true
	}
	if !ok {
		return errors.Errorf("raster %s has no georeferencing", inPath)
	}
	if srcCrsID == "" {
		srcCrsID = src.Projection()
	}
	if srcCrsID == "" {
		return errors.Errorf("raster %s has no source CRS", inPath)
	}

	srcCrs, err := crs.Resolve(srcCrsID)
	if err != nil {
		return errors.Wrapf(err, "warp source CRS %q", srcCrsID)
	}
	dstCrs, err := crs.Resolve(dstCrsID)
	if err != nil {
		return errors.Wrapf(err, "warp target CRS %q", dstCrsID)
	}

	w, h := src.Width(), src.Height()

	// Same CRS: a warp degenerates to a re-encode with the source grid.
	if srcCrs.Equal(dstCrs) {
		return b.copyGeoTiff(src, outPath, srcGT, dstCrsID)
	}

	// Destination bounds from the projected source extent.
	srcExtent := geo.NewRectangle(
		srcGT[0],
		srcGT[3]+float64(h)*srcGT[5],
		srcGT[0]+float64(w)*srcGT[1],
		srcGT[3],
		true,
	)
	dstBox, err := crs.TransformBoundingBox(geo.BoundingBox{CrsID: srcCrsID, Rect: srcExtent}, dstCrsID)
	if err != nil {
		return errors.Wrapf(err, "warp extent %s -> %s", srcCrsID, dstCrsID)
	}
	dstRect := dstBox.Rect
	if !dstRect.Valid() || dstRect.Width() <= 0 || dstRect.Height() <= 0 {
		return errors.Errorf("warp produced an empty extent for %s", inPath)
	}

	dstGT := GeoTransform{
		dstRect.MinX, dstRect.Width() / float64(w), 0,
		dstRect.MaxY, 0, -dstRect.Height() / float64(h),
	}
	invSrc, ok := srcGT.Invert()
	if !ok {
		return errors.Errorf("raster %s has a singular geotransform", inPath)
	}

	sr, sg, sb, sa, err := src.RGBA()
	if err != nil {
		return err
	}

	out, err := b.CreateGeoTiff(outPath, w, h, 4)
	if err != nil {
		return err
	}
	dr := make([]byte, w*h)
	dg := make([]byte, w*h)
	db := make([]byte, w*h)
	da := make([]byte, w*h)

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			gx, gy := dstGT.Apply(float64(col)+0.5, float64(row)+0.5)
			p, err := crs.TransformPoint(dstCrs, srcCrs, geo.Point2d{X: gx, Y: gy})
			if err != nil {
				continue
			}
			sx, sy := invSrc.Apply(p.X, p.Y)
			scol := int(math.Floor(sx))
			srow := int(math.Floor(sy))
			if scol < 0 || scol >= w || srow < 0 || srow >= h {
				continue
			}
			di := row*w + col
			si := srow*w + scol
			dr[di], dg[di], db[di], da[di] = sr[si], sg[si], sb[si], sa[si]
		}
	}

	out.WriteBand(1, dr)
	out.WriteBand(2, dg)
	out.WriteBand(3, db)
	out.WriteBand(4, da)
	out.SetGeoTransform(dstGT)
	out.SetProjection(dstCrsID)
	return out.Close()
}

func (b GoBackend) copyGeoTiff(src Dataset, outPath string, gt GeoTransform, crsID string) error {
	w, h := src.Width(), src.Height()
	r, g, bb, a, err := src.RGBA()
	if err != nil {
		return err
	}
	out, err := b.CreateGeoTiff(outPath, w, h, 4)
	if err != nil {
		return err
	}
	out.WriteBand(1, r)
	out.WriteBand(2, g)
	out.WriteBand(3, bb)
	out.WriteBand(4, a)
	out.SetGeoTransform(gt)
	out.SetProjection(crsID)
	return out.Close()
}
