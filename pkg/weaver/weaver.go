// Package weaver is the public facade: fetch a service's capabilities,
// inspect its layers, plan a tile set for a viewport, and execute the plan
// into a georeferenced mosaic.
package weaver

import (
	"math"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mapweave/mapweave/pkg/crs"
	"github.com/mapweave/mapweave/pkg/engine"
	"github.com/mapweave/mapweave/pkg/geo"
	"github.com/mapweave/mapweave/pkg/gpkg"
	"github.com/mapweave/mapweave/pkg/ogc"
	"github.com/mapweave/mapweave/pkg/raster"
	"github.com/mapweave/mapweave/pkg/transport"
)

// Weaver drives one service end to end.
type Weaver struct {
	Client  *transport.Client
	Proxy   *transport.Proxy
	Backend raster.Backend
	TempDir string
	Logger  zerolog.Logger

	serviceURL string
	model      *ogc.ServiceModel
}

// New builds a Weaver with the pure-Go raster backend.
func New(tempDir string, proxy *transport.Proxy, logger zerolog.Logger) *Weaver {
	return &Weaver{
		Client:  &transport.Client{},
		Proxy:   proxy,
		Backend: raster.GoBackend{},
		TempDir: tempDir,
		Logger:  logger,
	}
}

// Fetch downloads the Capabilities XML for url.
func (w *Weaver) Fetch(url string) (string, error) {
	w.serviceURL = url
	return ogc.FetchCapabilities(w.Client, url, w.Proxy)
}

// Parse ingests a Capabilities body and retains the model.
func (w *Weaver) Parse(xmlBody string) (*ogc.ServiceModel, error) {
	model, err := ogc.Parse(xmlBody)
	if err != nil {
		return nil, err
	}
	w.model = model
	return model, nil
}

// Model returns the parsed service model, nil before Parse.
func (w *Weaver) Model() *ogc.ServiceModel { return w.model }

func (w *Weaver) requireModel() error {
	if w.model == nil {
		return errors.New("no capabilities parsed yet")
	}
	return nil
}

// ListRootLayers lists the selectable top-level layer titles.
func (w *Weaver) ListRootLayers() []string {
	if w.model == nil {
		return nil
	}
	return w.model.RootLayerTitles()
}

// ListChildLayers lists a WMS layer's direct child titles.
func (w *Weaver) ListChildLayers(layerTitle string) []string {
	if w.model == nil {
		return nil
	}
	return w.model.ChildLayerTitles(layerTitle)
}

// ListFormats lists the layer's offered formats.
func (w *Weaver) ListFormats(layerTitle string) []string {
	if w.model == nil {
		return nil
	}
	return w.model.LayerFormats(layerTitle)
}

// ListStyles lists the layer's offered styles.
func (w *Weaver) ListStyles(layerTitle string) []string {
	if w.model == nil {
		return nil
	}
	return w.model.LayerStyles(layerTitle)
}

// ListTileMatrixSets lists the matrix sets a WMTS layer links to.
func (w *Weaver) ListTileMatrixSets(layerTitle string) []string {
	if w.model == nil {
		return nil
	}
	return w.model.LayerTileMatrixSets(layerTitle)
}

// IsWmtsLayer reports whether the title names a WMTS layer.
func (w *Weaver) IsWmtsLayer(layerTitle string) bool {
	return w.model != nil && w.model.IsWmtsLayer(layerTitle)
}

// LayerBoundingBoxInCrs84 returns the layer extent in CRS:84.
func (w *Weaver) LayerBoundingBoxInCrs84(layerTitle, tileMatrixSetName string) (geo.BoundingBox, bool) {
	if w.model == nil {
		return geo.BoundingBox{}, false
	}
	return w.model.LayerBoundingBoxCrs84(layerTitle, tileMatrixSetName)
}

// LayerCrs returns the CRS tiles will be requested in.
func (w *Weaver) LayerCrs(layerTitle, tileMatrixSetName string) string {
	if w.model == nil {
		return ""
	}
	return w.model.LayerCrs(layerTitle, tileMatrixSetName)
}

// PlanRequest bundles the inputs of Plan.
type PlanRequest struct {
	LayerTitle        string
	TileMatrixSetName string
	Format            string
	Style             string
	Viewport          geo.BoundingBox
	TargetCrsID       string
	UseXlinkHref      bool
}

// Plan clamps the viewport to the usable area and derives the tile
// requests. The usable area is the overlap of the target CRS's valid area,
// the layer's extent and the requested viewport, all in CRS:84.
func (w *Weaver) Plan(req PlanRequest) ([]ogc.TileRequest, error) {
	if err := w.requireModel(); err != nil {
		return nil, err
	}

	viewport, err := w.clampViewport(req)
	if err != nil {
		return nil, err
	}

	planner := &ogc.Planner{Model: w.model, TempDir: w.TempDir}
	return planner.Plan(req.LayerTitle, req.TileMatrixSetName, req.Format, req.Style,
		viewport, w.serviceURL, req.UseXlinkHref)
}

func (w *Weaver) clampViewport(req PlanRequest) (geo.BoundingBox, error) {
	view84, err := crs.TransformBoundingBox(req.Viewport, "CRS:84")
	if err != nil {
		return geo.BoundingBox{}, errors.Wrap(err, "viewport cannot be expressed in CRS:84")
	}
	view84.CrsID = "CRS:84"

	if req.TargetCrsID != "" {
		target, err := crs.Resolve(req.TargetCrsID)
		if err != nil {
			return geo.BoundingBox{}, errors.Wrapf(err, "target CRS %q", req.TargetCrsID)
		}
		targetArea := geo.BoundingBox{CrsID: "CRS:84", Rect: crs.ValidAreaLonLat(target)}
		clamped, ok := geo.Overlap(view84, targetArea)
		if !ok {
			return geo.BoundingBox{}, errors.New("viewport does not overlap the target CRS's valid area")
		}
		view84 = clamped
	}

	if layerBox, ok := w.model.LayerBoundingBoxCrs84(req.LayerTitle, req.TileMatrixSetName); ok {
		layerBox.CrsID = "CRS:84"
		clamped, ok := geo.Overlap(view84, layerBox)
		if !ok {
			return geo.BoundingBox{}, errors.New("viewport does not overlap the layer's extent")
		}
		view84 = clamped
	}
	return view84, nil
}

// ExecuteOptions tune Execute.
type ExecuteOptions struct {
	TargetCrsID string
	Concurrency int
	OnTileDone  func()
}

// Execute downloads the plan, mosaics the tiles, and reprojects the mosaic
// into the target CRS. The returned result carries the mosaic path and the
// per-tile outcomes.
func (w *Weaver) Execute(plan []ogc.TileRequest, req PlanRequest, opts ExecuteOptions) (*engine.Result, error) {
	if err := w.requireModel(); err != nil {
		return nil, err
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 6
	}
	target := opts.TargetCrsID
	if target == "" {
		target = "EPSG:4326"
	}

	eng := &engine.Engine{
		Backend:     w.Backend,
		Client:      w.Client,
		Proxy:       w.Proxy,
		Concurrency: opts.Concurrency,
		Logger:      w.Logger,
		OnTileDone:  opts.OnTileDone,
		Replan: func(useXlinkHref bool) ([]ogc.TileRequest, error) {
			retry := req
			retry.UseXlinkHref = useXlinkHref
			return w.Plan(retry)
		},
	}
	return eng.Execute(plan, target)
}

// WriteGeoPackage reprojects a mosaic into EPSG:3857 and ingests it as a
// tiles_level_<zoom> pyramid level of the GeoPackage at gpkgPath, appending
// when the file already exists.
func (w *Weaver) WriteGeoPackage(mosaicPath, gpkgPath string, zoom int) error {
	mercPath := strings.TrimSuffix(mosaicPath, filepath.Ext(mosaicPath)) + "_3857.tiff"
	if err := w.Backend.Warp(mosaicPath, mercPath, "", "EPSG:3857", raster.WarpOptions{
		Resampling:     raster.NearestNeighbour,
		ErrorThreshold: 0.5,
	}); err != nil {
		return errors.Wrap(err, "failed reprojecting mosaic to EPSG:3857")
	}

	writer, err := gpkg.Open(gpkgPath)
	if err != nil {
		return err
	}
	defer writer.Close()
	if err := gpkg.IngestMosaic(writer, w.Backend, mercPath, zoom); err != nil {
		return err
	}
	w.Logger.Info().Str("file", gpkgPath).Int("zoom", zoom).Msg("geopackage level written")
	return nil
}

// WebMercatorMatrixSize returns the GoogleMapsCompatible matrix dimension
// at zoom level z.
func WebMercatorMatrixSize(z int) int {
	if z < 0 {
		return 1
	}
	return 1 << uint(math.Min(float64(z), 30))
}
