package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mapweave/mapweave/pkg/ogc"
	"github.com/mapweave/mapweave/pkg/raster"
	"github.com/mapweave/mapweave/pkg/transport"
)

const downloadRounds = 3

// Engine downloads a tile plan, reprojects each tile, and mosaics the
// results.
type Engine struct {
	Backend     raster.Backend
	Client      *transport.Client
	Proxy       *transport.Proxy
	Concurrency int
	Logger      zerolog.Logger

	// Replan is consulted once when every tile of a submission came back
	// as an XML body: it re-derives the plan preferring the service
	// document's xlink:href endpoints.
	Replan func(useXlinkHref bool) ([]ogc.TileRequest, error)

	// OnTileDone, when set, is called after each tile reaches a terminal
	// state. Used for progress reporting.
	OnTileDone func()
}

// TileResult is the terminal state of one tile task.
type TileResult struct {
	Tile       ogc.TileRequest
	WarpedPath string
	Err        error
}

// Result is what Execute hands back: the mosaic (reprojected into the
// target CRS), the per-tile outcomes, and the aggregated error for tiles
// that failed. Partial failures do not fail the run.
type Result struct {
	MosaicPath string
	Tiles      []TileResult
	TileErrors error
}

// Execute realizes the plan against targetCrsID. The returned error is
// terminal (nothing usable was produced); per-tile failures live in
// Result.TileErrors.
func (e *Engine) Execute(plan []ogc.TileRequest, targetCrsID string) (*Result, error) {
	if len(plan) == 0 {
		return nil, errors.Wrap(ogc.ErrEmptyPlan, "nothing to download")
	}
	e.Backend.RegisterDrivers()

	results := e.run(plan, targetCrsID)

	if allXML(results) && e.Replan != nil {
		e.Logger.Warn().Msg("every tile returned XML; replanning against the service's advertised endpoints")
		replanned, err := e.Replan(true)
		if err == nil && len(replanned) > 0 {
			results = e.run(replanned, targetCrsID)
		}
	}

	var ok []TileResult
	var tileErrs *multiError
	for _, r := range results {
		if r.Err != nil {
			tileErrs = tileErrs.append(errors.Wrapf(r.Err, "tile z=%d row=%d col=%d", r.Tile.Level, r.Tile.Row, r.Tile.Col))
			continue
		}
		ok = append(ok, r)
	}
	if len(ok) == 0 {
		if tileErrs != nil {
			return nil, tileErrs
		}
		return nil, errors.New("no tile succeeded")
	}

	mosaicPath, err := e.mosaic(ok)
	if err != nil {
		return nil, err
	}

	finalPath, err := e.reprojectMosaic(mosaicPath, targetCrsID)
	if err != nil {
		return nil, err
	}

	res := &Result{MosaicPath: finalPath, Tiles: results}
	if tileErrs != nil {
		res.TileErrors = tileErrs
	}
	return res, nil
}

func (e *Engine) run(plan []ogc.TileRequest, targetCrsID string) []TileResult {
	n := e.Concurrency
	if n < 1 {
		n = 1
	}
	pool := NewPool(n)
	defer pool.Close()

	results := make([]TileResult, len(plan))
	for i := range plan {
		i := i
		tile := plan[i]
		results[i].Tile = tile
		pool.Enqueue(func() {
			if e.OnTileDone != nil {
				defer e.OnTileDone()
			}
			if pool.Closed() {
				results[i].Err = ErrPoolClosed
				return
			}
			warped, err := e.processTile(tile, targetCrsID)
			results[i].WarpedPath = warped
			results[i].Err = err
		})
	}
	pool.WaitAll()
	return results
}

// processTile downloads one tile (direct first, proxy on classified
// network errors, up to three rounds), sniffs the body, writes it
// atomically, and warps it into the target CRS alongside the original.
func (e *Engine) processTile(tile ogc.TileRequest, targetCrsID string) (string, error) {
	body, err := e.download(tile.URL)
	if err != nil {
		return "", err
	}
	if err := transport.SniffBody(body); err != nil {
		return "", err
	}
	if err := writeFileAtomic(tile.FilePath, body); err != nil {
		return "", errors.Wrap(err, "Failed to write file")
	}

	e.Logger.Debug().
		Str("url", tile.URL).
		Str("file", filepath.Base(tile.FilePath)).
		Int("bytes", len(body)).
		Msg("tile downloaded")

	warped := reprojPath(tile.FilePath)
	gt := tileGeoTransform(tile)
	err = e.Backend.Warp(tile.FilePath, warped, tile.Bbox.CrsID, targetCrsID, raster.WarpOptions{
		Resampling:         raster.NearestNeighbour,
		ErrorThreshold:     0.5,
		SourceGeoTransform: &gt,
	})
	if err != nil {
		return "", errors.Wrap(err, "tile reprojection failed")
	}
	return warped, nil
}

func (e *Engine) download(url string) ([]byte, error) {
	var lastErr error
	for round := 0; round < downloadRounds; round++ {
		body, _, err := e.Client.GetBinary(url, nil)
		if err == nil {
			return body, nil
		}
		lastErr = err

		// Only network-class failures earn the proxy fallback; everything
		// else (bad URL, unsupported protocol, SSL) just retries direct
		// until the rounds run out.
		te, ok := transport.AsError(err)
		if ok && te.IsNetwork() && !e.Proxy.Empty() {
			body, _, perr := e.Client.GetBinary(url, e.Proxy)
			if perr == nil {
				return body, nil
			}
			lastErr = perr
		}
	}
	return nil, lastErr
}

// tileGeoTransform derives the affine for a tile from its top-left corner
// and pixel size.
func tileGeoTransform(tile ogc.TileRequest) raster.GeoTransform {
	psX := tile.Bbox.Rect.Width() / float64(tile.NumWidthPixels)
	psY := tile.Bbox.Rect.Height() / float64(tile.NumHeightPixels)
	return raster.GeoTransform{tile.LeftTopPtX, psX, 0, tile.LeftTopPtY, 0, -psY}
}

func reprojPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_reproj.tiff"
}

func (e *Engine) reprojectMosaic(mosaicPath, targetCrsID string) (string, error) {
	out := reprojPath(mosaicPath)
	err := e.Backend.Warp(mosaicPath, out, "", targetCrsID, raster.WarpOptions{
		Resampling:     raster.NearestNeighbour,
		ErrorThreshold: 0.5,
	})
	if err != nil {
		return "", errors.Wrap(err, "mosaic reprojection failed")
	}
	return out, nil
}

func allXML(results []TileResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		te, ok := transport.AsError(r.Err)
		if !ok || te.Kind != transport.KindXMLBody {
			return false
		}
	}
	return true
}

// writeFileAtomic writes via a temp file and rename so a crashed task never
// leaves a half-written tile behind.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.partial", path)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// multiError aggregates per-tile failures; nil until the first append.
type multiError struct {
	errs []error
}

func (m *multiError) append(err error) *multiError {
	if err == nil {
		return m
	}
	if m == nil {
		return &multiError{errs: []error{err}}
	}
	m.errs = append(m.errs, err)
	return m
}

func (m *multiError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d error(s) during tile realization:\n", len(m.errs))
	for i, err := range m.errs {
		fmt.Fprintf(&sb, "\terror %d: %v\n", i+1, err)
	}
	return sb.String()
}
