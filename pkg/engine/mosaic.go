package engine

import (
	"path/filepath"

	"github.com/pkg/errors"
)

// mosaic splices the successfully downloaded tiles into one RGBA GeoTIFF
// in the tile CRS. Tiles that fail to read are skipped; their pixels stay
// transparent. Tiles are processed in (row, col) order so the output bytes
// are deterministic.
func (e *Engine) mosaic(results []TileResult) (string, error) {
	if len(results) == 0 {
		return "", errors.New("no tiles to mosaic")
	}

	first := results[0].Tile
	tileW, tileH := first.NumWidthPixels, first.NumHeightPixels

	minCol, maxCol := first.Col, first.Col
	minRow, maxRow := first.Row, first.Row
	for _, r := range results {
		t := r.Tile
		if t.NumWidthPixels != tileW || t.NumHeightPixels != tileH {
			return "", errors.Errorf("tile %d/%d is %dx%d, want %dx%d",
				t.Row, t.Col, t.NumWidthPixels, t.NumHeightPixels, tileW, tileH)
		}
		if t.Col < minCol {
			minCol = t.Col
		}
		if t.Col > maxCol {
			maxCol = t.Col
		}
		if t.Row < minRow {
			minRow = t.Row
		}
		if t.Row > maxRow {
			maxRow = t.Row
		}
	}

	canvasW := tileW * (maxCol - minCol + 1)
	canvasH := tileH * (maxRow - minRow + 1)
	if canvasW <= 0 || canvasH <= 0 {
		return "", errors.Errorf("degenerate mosaic canvas %dx%d", canvasW, canvasH)
	}

	outPath := filepath.Join(filepath.Dir(first.FilePath), "splice_tile.tiff")
	canvas, err := e.Backend.CreateGeoTiff(outPath, canvasW, canvasH, 4)
	if err != nil {
		return "", errors.Wrap(err, "failed creating mosaic canvas")
	}

	n := canvasW * canvasH
	planes := [4][]byte{make([]byte, n), make([]byte, n), make([]byte, n), make([]byte, n)}

	// Origin and resolution come from the top-left tile of the set.
	originX, originY := first.LeftTopPtX, first.LeftTopPtY
	for _, r := range results {
		if r.Tile.LeftTopPtX < originX {
			originX = r.Tile.LeftTopPtX
		}
		if r.Tile.LeftTopPtY > originY {
			originY = r.Tile.LeftTopPtY
		}
	}

	for _, r := range results {
		t := r.Tile
		ds, err := e.Backend.OpenReadOnly(t.FilePath)
		if err != nil {
			e.Logger.Warn().Str("file", t.FilePath).Err(err).Msg("skipping unreadable tile in mosaic")
			continue
		}
		tr, tg, tb, ta, err := ds.RGBA()
		if err != nil || ds.Width() != tileW || ds.Height() != tileH {
			ds.Close()
			e.Logger.Warn().Str("file", t.FilePath).Msg("skipping tile with unexpected pixel layout")
			continue
		}
		offX := (t.Col - minCol) * tileW
		offY := (t.Row - minRow) * tileH
		for row := 0; row < tileH; row++ {
			dstStart := (offY+row)*canvasW + offX
			srcStart := row * tileW
			copy(planes[0][dstStart:dstStart+tileW], tr[srcStart:srcStart+tileW])
			copy(planes[1][dstStart:dstStart+tileW], tg[srcStart:srcStart+tileW])
			copy(planes[2][dstStart:dstStart+tileW], tb[srcStart:srcStart+tileW])
			copy(planes[3][dstStart:dstStart+tileW], ta[srcStart:srcStart+tileW])
		}
		ds.Close()
	}

	for i, plane := range planes {
		if err := canvas.WriteBand(i+1, plane); err != nil {
			canvas.Close()
			return "", errors.Wrapf(err, "failed writing mosaic band %d", i+1)
		}
	}

	resX := first.Bbox.Rect.Width() / float64(tileW)
	resY := first.Bbox.Rect.Height() / float64(tileH)
	canvas.SetGeoTransform([6]float64{originX, resX, 0, originY, 0, -resY})
	canvas.SetProjection(first.Bbox.CrsID)
	if err := canvas.Close(); err != nil {
		return "", errors.Wrap(err, "failed encoding mosaic")
	}

	e.Logger.Info().
		Int("tiles", len(results)).
		Int("width", canvasW).
		Int("height", canvasH).
		Str("file", outPath).
		Msg("mosaic assembled")
	return outPath, nil
}
