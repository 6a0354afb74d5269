package ogc

import (
	"crypto/md5"
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mapweave/mapweave/pkg/crs"
	"github.com/mapweave/mapweave/pkg/geo"
)

// Planner failure sentinels. All are non-fatal and side-effect free.
var (
	ErrCrsUnresolvable   = errors.New("no usable tile CRS")
	ErrLevelOutOfRange   = errors.New("no tile matrix level fits the viewport")
	ErrNoViewportOverlap = errors.New("viewport does not overlap the layer")
	ErrEmptyPlan         = errors.New("tile range is empty")
)

const (
	// Density targets: at the chosen level the viewport should span more
	// than this many tiles along its shorter/longer side.
	maxTileRowsInView = 2
	maxTileColsInView = 8

	maxLevel     = 25
	minWmtsLevel = 2

	// WMS requests use one fixed 16:9 frame.
	wmsFrameWidth  = 1600
	wmsFrameHeight = wmsFrameWidth * 1080 / 1920
)

// Planner turns a layer choice plus viewport into the ordered tile request
// list the engine downloads.
type Planner struct {
	Model   *ServiceModel
	TempDir string
}

// Plan computes the tile requests covering viewport for the given layer.
// The viewport may be in any resolvable CRS. For WMS layers the plan is a
// single fixed-size GetMap frame.
func (p *Planner) Plan(layerTitle, tileMatrixSetName, format, style string, viewport geo.BoundingBox, serviceURL string, useXlinkHref bool) ([]TileRequest, error) {
	tileCrsID := p.Model.LayerCrs(layerTitle, tileMatrixSetName)
	if tileCrsID == "" {
		return nil, errors.Wrapf(ErrCrsUnresolvable, "layer %q matrix set %q", layerTitle, tileMatrixSetName)
	}

	view := viewport
	if view.CrsID != tileCrsID {
		out, err := crs.TransformBoundingBox(viewport, tileCrsID)
		if err != nil {
			return nil, errors.Wrapf(ErrNoViewportOverlap, "viewport cannot be expressed in %s: %v", tileCrsID, err)
		}
		view = out
		view.CrsID = tileCrsID
	}
	if !view.Rect.Valid() {
		return nil, errors.Wrap(ErrNoViewportOverlap, "viewport collapsed during reprojection")
	}

	if p.Model.IsWmtsLayer(layerTitle) {
		return p.planWmts(layerTitle, tileMatrixSetName, format, style, view, serviceURL, useXlinkHref)
	}
	return p.planWms(layerTitle, format, style, view, serviceURL, useXlinkHref)
}

func (p *Planner) planWmts(layerTitle, tileMatrixSetName, format, style string, view geo.BoundingBox, serviceURL string, useXlinkHref bool) ([]TileRequest, error) {
	level, err := p.chooseLevel(layerTitle, tileMatrixSetName, view.Rect)
	if err != nil {
		return nil, err
	}
	if level < minWmtsLevel {
		level = minWmtsLevel
	}

	set, ok := p.Model.TileMatrixSets[tileMatrixSetName]
	if !ok {
		return nil, errors.Wrapf(ErrCrsUnresolvable, "unknown tile matrix set %q", tileMatrixSetName)
	}
	tm := set.MatrixByIdentifier(strconv.Itoa(level))
	if tm == nil {
		return nil, errors.Wrapf(ErrLevelOutOfRange, "matrix set %q has no level %d", tileMatrixSetName, level)
	}

	tileW := tm.PixelSize * float64(tm.TileWidth)
	tileH := tm.PixelSize * float64(tm.TileHeight)

	startX := int(math.Floor((view.Rect.MinX - tm.TopLeft.X) / tileW))
	if startX < 0 {
		startX = 0
	}
	endX := int(math.Floor((view.Rect.MaxX - tm.TopLeft.X) / tileW))
	startY := int(math.Floor((tm.TopLeft.Y - view.Rect.MaxY) / tileH))
	if startY < 0 {
		startY = 0
	}
	endY := int(math.Floor((tm.TopLeft.Y - view.Rect.MinY) / tileH))

	if endX > startX+tm.MatrixWidth-1 {
		endX = startX + tm.MatrixWidth - 1
	}
	if endY > startY+tm.MatrixHeight-1 {
		endY = startY + tm.MatrixHeight - 1
	}

	if limits := p.Model.MatrixLimits(layerTitle, tileMatrixSetName, level); limits.Valid() {
		if limits.MinCol > startX {
			startX = limits.MinCol
		}
		if limits.MaxCol < endX {
			endX = limits.MaxCol
		}
		if limits.MinRow > startY {
			startY = limits.MinRow
		}
		if limits.MaxRow < endY {
			endY = limits.MaxRow
		}
	}

	if startX < 0 || endX < 0 || startY < 0 || endY < 0 || startX > endX || startY > endY {
		return nil, errors.Wrapf(ErrEmptyPlan, "rows [%d,%d] cols [%d,%d]", startY, endY, startX, endX)
	}

	base := TileRequest{
		Level:           level,
		NumWidthPixels:  tm.TileWidth,
		NumHeightPixels: tm.TileHeight,
		LayerTitle:      layerTitle,
		LayerName:       p.Model.WmtsLayerName(layerTitle),
		TileMatrixSetID: set.Identifier,
		Format:          format,
		Style:           style,
		Version:         p.Model.Version,
	}

	var tiles []TileRequest
	for row := startY; row <= endY; row++ {
		for col := startX; col <= endX; col++ {
			t := base
			t.Row = row
			t.Col = col
			t.LeftTopPtX = tm.TopLeft.X + float64(col)*tileW
			t.LeftTopPtY = tm.TopLeft.Y - float64(row)*tileH
			t.Bbox = geo.BoundingBox{
				CrsID: set.CrsID,
				Rect:  geo.NewRectangle(t.LeftTopPtX, t.LeftTopPtY-tileH, t.LeftTopPtX+tileW, t.LeftTopPtY, true),
			}
			t.FilePath = p.wmtsFilePath(t)
			t.URL = p.wmtsTileURL(serviceURL, t, useXlinkHref)
			tiles = append(tiles, t)
		}
	}
	return tiles, nil
}

func (p *Planner) planWms(layerTitle, format, style string, view geo.BoundingBox, serviceURL string, useXlinkHref bool) ([]TileRequest, error) {
	t := TileRequest{
		Level:           0,
		Row:             0,
		Col:             0,
		NumWidthPixels:  wmsFrameWidth,
		NumHeightPixels: wmsFrameHeight,
		LayerTitle:      layerTitle,
		LayerName:       p.Model.WmsLayerName(layerTitle),
		Format:          format,
		Style:           style,
		Version:         p.Model.Version,
		LeftTopPtX:      view.Rect.MinX,
		LeftTopPtY:      view.Rect.MaxY,
		Bbox:            view,
	}
	t.FilePath = p.wmsFilePath(t)
	url, err := p.wmsMapURL(serviceURL, t, useXlinkHref)
	if err != nil {
		return nil, err
	}
	t.URL = url
	return []TileRequest{t}, nil
}

// chooseLevel picks the coarsest level dense enough for the viewport: the
// first matrix, walking coarse to fine, whose tiles are small enough that
// the viewport spans more than the density target.
func (p *Planner) chooseLevel(layerTitle, tileMatrixSetName string, view geo.Rectangle) (int, error) {
	if !view.Valid() {
		return 0, errors.Wrap(ErrNoViewportOverlap, "invalid viewport")
	}
	if !p.Model.IsWmtsLayer(layerTitle) {
		return 0, nil
	}

	layer := p.Model.wmtsLayerByTitle(layerTitle)
	if layer == nil {
		return 0, errors.Wrapf(ErrCrsUnresolvable, "unknown layer %q", layerTitle)
	}
	if _, ok := layer.MatrixSetLinks[tileMatrixSetName]; !ok {
		return 0, errors.Wrapf(ErrCrsUnresolvable, "layer %q does not link matrix set %q", layerTitle, tileMatrixSetName)
	}
	set, ok := p.Model.TileMatrixSets[tileMatrixSetName]
	if !ok {
		return 0, errors.Wrapf(ErrCrsUnresolvable, "unknown tile matrix set %q", tileMatrixSetName)
	}

	lengthX, lengthY := view.Width(), view.Height()
	shorter, longer := lengthY, lengthX
	if lengthX < lengthY {
		shorter, longer = lengthX, lengthY
	}

	// Walk matrices coarse to fine.
	for pair := set.Matrices.Newest(); pair != nil; pair = pair.Prev() {
		tm := pair.Value
		if shorter > tm.PixelSize*float64(tm.TileHeight)*maxTileRowsInView ||
			longer > tm.PixelSize*float64(tm.TileWidth)*maxTileColsInView {
			level := LevelOf(tm.Identifier)
			if level < 0 || level > maxLevel {
				continue
			}
			return level, nil
		}
	}
	return 0, errors.Wrapf(ErrLevelOutOfRange, "matrix set %q", tileMatrixSetName)
}

// isKVP reports whether GetTile may be issued as a KVP request: a DCP
// endpoint exists and the allowed encodings, when declared, include KVP.
func (p *Planner) isKVP() bool {
	op := p.Model.Request.GetTile
	if len(op.DcpType) == 0 {
		return false
	}
	if len(op.AllowedEncodings) == 0 {
		return true
	}
	return containsString(op.AllowedEncodings, "KVP")
}

func (p *Planner) wmtsTileURL(serviceURL string, t TileRequest, useXlinkHref bool) string {
	if p.isKVP() {
		requestURL := baseURL(serviceURL)
		if useXlinkHref && len(p.Model.Request.GetTile.DcpType) > 0 {
			requestURL = p.Model.Request.GetTile.DcpType[0].Get
		}
		requestURL = addQueryParam(requestURL, "SERVICE", "WMTS")
		requestURL = addQueryParam(requestURL, "REQUEST", "GetTile")
		requestURL = addQueryParam(requestURL, "VERSION", p.Model.Version)
		requestURL = addQueryParam(requestURL, "LAYER", escape(t.LayerName))
		if t.Style != "" {
			requestURL = addQueryParam(requestURL, "STYLE", escape(t.Style))
		}
		requestURL = addQueryParam(requestURL, "FORMAT", escape(t.Format))
		requestURL = addQueryParam(requestURL, "TILEMATRIXSET", escape(t.TileMatrixSetID))
		requestURL = addQueryParam(requestURL, "TILEMATRIX", escape(p.tileMatrixName(t.TileMatrixSetID, t.Level)))
		requestURL = addQueryParam(requestURL, "TILEROW", strconv.Itoa(t.Row))
		requestURL = addQueryParam(requestURL, "TILECOL", strconv.Itoa(t.Col))
		if token := extractToken(serviceURL); token != "" {
			requestURL = addQueryParam(requestURL, "tk", token)
		}
		return requestURL
	}

	// REST: substitute the template registered for the format.
	layer := p.Model.wmtsLayerByTitle(t.LayerTitle)
	if layer == nil {
		return ""
	}
	template, ok := layer.GetTileTemplates[t.Format]
	if !ok {
		return ""
	}
	url := template
	url = replacePlaceholder(url, "{layer}", escape(t.LayerName))
	url = replacePlaceholder(url, "{style}", escape(t.Style))
	url = replacePlaceholder(url, "{tilematrixset}", escape(t.TileMatrixSetID))
	url = replacePlaceholder(url, "{tilematrix}", escape(p.tileMatrixName(t.TileMatrixSetID, t.Level)))
	url = replacePlaceholder(url, "{tilerow}", strconv.Itoa(t.Row))
	url = replacePlaceholder(url, "{tilecol}", strconv.Itoa(t.Col))
	return url
}

// tileMatrixName maps a numeric level back to the matrix's own identifier,
// which may be "5", "05" or "EPSG:4326:5".
func (p *Planner) tileMatrixName(tileMatrixSetName string, level int) string {
	set, ok := p.Model.TileMatrixSets[tileMatrixSetName]
	if !ok || set.Matrices == nil {
		return strconv.Itoa(level)
	}
	want := strconv.Itoa(level)
	for pair := set.Matrices.Oldest(); pair != nil; pair = pair.Next() {
		id := pair.Value.Identifier
		if id == "" {
			continue
		}
		if id == want {
			return id
		}
		trimmed := id
		if idx := strings.LastIndex(trimmed, ":"); idx >= 0 && idx < len(trimmed)-1 {
			trimmed = trimmed[idx+1:]
		}
		if trimmed == want || trimmed == "0"+want {
			return id
		}
	}
	return want
}

func (p *Planner) wmsMapURL(serviceURL string, t TileRequest, useXlinkHref bool) (string, error) {
	const dpi = 96
	if t.Bbox.CrsID == "" {
		return "", errors.Wrap(ErrCrsUnresolvable, "tile bbox has no CRS")
	}
	tileCrs, err := crs.Resolve(t.Bbox.CrsID)
	if err != nil {
		return "", errors.Wrapf(ErrCrsUnresolvable, "tile CRS %q", t.Bbox.CrsID)
	}

	requestURL := baseURL(serviceURL)
	if useXlinkHref && len(p.Model.Request.GetMap.DcpType) > 0 {
		requestURL = p.Model.Request.GetMap.DcpType[0].Get
	}
	requestURL = addQueryParam(requestURL, "SERVICE", "WMS")
	requestURL = addQueryParam(requestURL, "VERSION", p.Model.Version)
	requestURL = addQueryParam(requestURL, "REQUEST", "GetMap")

	rect := t.Bbox.Rect
	if p.is13() && tileCrs.ShouldInvertAxes() {
		rect = rect.Invert()
	}
	requestURL = addQueryParam(requestURL, "BBOX", rect.String())

	crsKey := "SRS"
	if p.is13() {
		crsKey = "CRS"
	}
	requestURL = addQueryParam(requestURL, crsKey, t.Bbox.CrsID)
	requestURL = addQueryParam(requestURL, "WIDTH", strconv.Itoa(t.NumWidthPixels))
	requestURL = addQueryParam(requestURL, "HEIGHT", strconv.Itoa(t.NumHeightPixels))
	requestURL = addQueryParam(requestURL, "LAYERS", escape(t.LayerName))
	if t.Style != "" {
		requestURL = addQueryParam(requestURL, "STYLES", escape(t.Style))
	}
	requestURL = addQueryParam(requestURL, "FORMAT", escape(t.Format))
	requestURL = addQueryParam(requestURL, "DPI", strconv.Itoa(dpi))
	requestURL = addQueryParam(requestURL, "MAP_RESOLUTION", strconv.Itoa(dpi))
	requestURL = addQueryParam(requestURL, "FORMAT_OPTIONS", fmt.Sprintf("dpi:%d", dpi))

	// Transparency keys off the style string, not the format; observable
	// behavior kept as-is (see release notes).
	lowerStyle := strings.ToLower(t.Style)
	if t.Style == "image/x-jpegorpng" ||
		(!strings.Contains(lowerStyle, "jpeg") && !strings.Contains(lowerStyle, "jpg")) {
		requestURL = addQueryParam(requestURL, "TRANSPARENT", "TRUE")
	}
	return requestURL, nil
}

func (p *Planner) is13() bool {
	return strings.HasPrefix(p.Model.Version, "1.3")
}

// wmtsFilePath keys the scratch file by a fingerprint of layer and matrix
// set plus the tile address.
func (p *Planner) wmtsFilePath(t TileRequest) string {
	fp := md5Hex(t.LayerTitle + "_" + t.TileMatrixSetID)
	name := fmt.Sprintf("%s_%d_%d_%d%s", fp, t.Level, t.Row, t.Col, formatExtension(t.Format))
	return path.Join(p.TempDir, name)
}

// wmsFilePath keys the scratch file by layer fingerprint plus the frame's
// bbox text.
func (p *Planner) wmsFilePath(t TileRequest) string {
	fp := md5Hex(t.LayerTitle + "_" + t.LayerName)
	name := fp + "_" + t.Bbox.Rect.String() + formatExtension(t.Format)
	return path.Join(p.TempDir, name)
}

func md5Hex(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// formatExtension maps a MIME-ish format string to a scratch file
// extension.
func formatExtension(format string) string {
	switch {
	case strings.Contains(format, "webp"):
		return ".webp"
	case strings.Contains(format, "jpg"), strings.Contains(format, "jpeg"):
		return ".jpg"
	case strings.Contains(format, "tif"):
		return ".tif"
	default:
		return ".png"
	}
}
