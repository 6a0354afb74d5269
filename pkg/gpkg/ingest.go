package gpkg

import (
	"bytes"
	"image"
	"image/png"
	"math"

	"github.com/pkg/errors"

	"github.com/mapweave/mapweave/pkg/geo"
	"github.com/mapweave/mapweave/pkg/raster"
)

const (
	webMercatorMax = 20037508.342789244
	gpkgTileSize   = 256
)

// IngestMosaic slices an EPSG:3857 mosaic into the GoogleMapsCompatible
// grid at the given zoom level and writes the covered tiles into the
// GeoPackage. Fully transparent tiles are dropped.
func IngestMosaic(w *Writer, backend raster.Backend, mosaicPath string, zoom int) error {
	if zoom < 0 || zoom > 30 {
		return errors.Errorf("zoom level %d out of range", zoom)
	}
	ds, err := backend.OpenReadOnly(mosaicPath)
	if err != nil {
		return err
	}
	defer ds.Close()

	gt, ok := ds.GeoTransform()
	if !ok {
		return errors.Errorf("mosaic %s has no georeferencing", mosaicPath)
	}
	inv, ok := gt.Invert()
	if !ok {
		return errors.Errorf("mosaic %s has a singular geotransform", mosaicPath)
	}
	r, g, b, a, err := ds.RGBA()
	if err != nil {
		return err
	}
	width, height := ds.Width(), ds.Height()

	matrixSize := 1 << uint(zoom)
	tileSpan := 2 * webMercatorMax / float64(matrixSize)

	minX := gt[0]
	maxY := gt[3]
	maxX := gt[0] + float64(width)*gt[1]
	minY := gt[3] + float64(height)*gt[5]

	startCol := clampInt(int(math.Floor((minX+webMercatorMax)/tileSpan)), 0, matrixSize-1)
	endCol := clampInt(int(math.Floor((maxX+webMercatorMax)/tileSpan)), 0, matrixSize-1)
	startRow := clampInt(int(math.Floor((webMercatorMax-maxY)/tileSpan)), 0, matrixSize-1)
	endRow := clampInt(int(math.Floor((webMercatorMax-minY)/tileSpan)), 0, matrixSize-1)

	tiles := map[[2]int][]byte{}
	for row := startRow; row <= endRow; row++ {
		for col := startCol; col <= endCol; col++ {
			tileMinX := -webMercatorMax + float64(col)*tileSpan
			tileMaxY := webMercatorMax - float64(row)*tileSpan
			pixel := tileSpan / gpkgTileSize

			img := image.NewNRGBA(image.Rect(0, 0, gpkgTileSize, gpkgTileSize))
			empty := true
			for py := 0; py < gpkgTileSize; py++ {
				for px := 0; px < gpkgTileSize; px++ {
					gx := tileMinX + (float64(px)+0.5)*pixel
					gy := tileMaxY - (float64(py)+0.5)*pixel
					sx, sy := inv.Apply(gx, gy)
					scol, srow := int(math.Floor(sx)), int(math.Floor(sy))
					if scol < 0 || scol >= width || srow < 0 || srow >= height {
						continue
					}
					si := srow*width + scol
					di := py*img.Stride + px*4
					img.Pix[di+0] = r[si]
					img.Pix[di+1] = g[si]
					img.Pix[di+2] = b[si]
					img.Pix[di+3] = a[si]
					if a[si] != 0 {
						empty = false
					}
				}
			}
			if empty {
				continue
			}
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err != nil {
				return errors.Wrapf(err, "failed encoding gpkg tile %d/%d", row, col)
			}
			tiles[[2]int{row, col}] = buf.Bytes()
		}
	}
	if len(tiles) == 0 {
		return errors.New("mosaic does not intersect the tiling scheme")
	}

	set := TileSet{
		ZoomLevel:    zoom,
		TileWidth:    gpkgTileSize,
		TileHeight:   gpkgTileSize,
		MatrixWidth:  matrixSize,
		MatrixHeight: matrixSize,
		Extent:       geo.NewRectangle(-webMercatorMax, -webMercatorMax, webMercatorMax, webMercatorMax, false),
	}
	return w.WriteTileSet(set, tiles)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
