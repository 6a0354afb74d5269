package ogc

import (
	"encoding/xml"
	"io"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/pkg/errors"

	"github.com/mapweave/mapweave/pkg/crs"
	"github.com/mapweave/mapweave/pkg/geo"
)

// Parser failure sentinels. A failed parse never yields a partial model.
var (
	ErrNotCapabilities     = errors.New("body is an HTML page, not a capabilities document")
	ErrBadRootTag          = errors.New("unrecognized capabilities root tag")
	ErrMalformedXml        = errors.New("malformed capabilities XML")
	ErrInconsistentVersion = errors.New("capabilities version missing or inconsistent")
)

// kPixelSizeOGC converts a scale denominator to a pixel size using the
// standardized 0.28 mm rendering pixel.
const kPixelSizeOGC = 0.00028

// kPixelSizeTianditu is the 96 DPI pixel the Tianditu service actually
// renders with, despite advertising standard scale denominators.
const kPixelSizeTianditu = 0.0254 / 96

// Parse ingests a raw Capabilities XML body and produces the immutable
// service model. All three dialects (WMS 1.1.1, WMS 1.3.0, WMTS 1.0.0) are
// normalized into the same model.
func Parse(body string) (*ServiceModel, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil, errors.Wrap(ErrMalformedXml, "empty capabilities document")
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "<html>") || strings.HasPrefix(lower, "<html ") {
		return nil, ErrNotCapabilities
	}

	raw, version, err := decodeCapabilities(trimmed)
	if err != nil {
		// Some producers prepend a DTD subset the reader chokes on; strip
		// it and try once more.
		stripped, ok := stripDTD(trimmed)
		if !ok {
			return nil, err
		}
		raw, version, err = decodeCapabilities(stripped)
		if err != nil {
			return nil, err
		}
	}

	p := &parser{version: version}
	model := &ServiceModel{
		Version:        version,
		TileMatrixSets: map[string]*TileMatrixSet{},
		layerParents:   map[int]int{},
	}

	if raw.Service != nil {
		mergeService(&model.Service, raw.Service)
	}
	if raw.ServiceIdentification != nil {
		mergeService(&model.Service, raw.ServiceIdentification)
	}
	if raw.ServiceProvider != nil {
		mergeService(&model.Service, raw.ServiceProvider)
	}

	if raw.Capability != nil {
		p.convertRequest(&raw.Capability.Request, &model.Request)
	}
	if raw.OperationsMetadata != nil {
		p.convertOwsOperations(raw.OperationsMetadata, &model.Request)
	}

	if raw.Capability != nil {
		for i := range raw.Capability.Layers {
			p.convertWmsLayer(&raw.Capability.Layers[i], nil, model)
		}
	}

	if raw.Contents != nil {
		p.convertContents(raw.Contents, model)
	}

	sort.Slice(model.WmsLayers, func(i, j int) bool {
		return model.WmsLayers[i].OrderID < model.WmsLayers[j].OrderID
	})

	allIDs := make([]int, 0, len(model.WmsLayers))
	for _, l := range model.WmsLayers {
		allIDs = append(allIDs, l.OrderID)
	}
	model.LayerTrees = buildLayerTrees(model.layerParents, allIDs)

	backfillWmtsDescriptions(model)

	return model, nil
}

func decodeCapabilities(body string) (*capsXML, string, error) {
	dec := xml.NewDecoder(strings.NewReader(body))
	dec.Strict = false

	var start xml.StartElement
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, "", errors.Wrap(ErrMalformedXml, "no root element")
		}
		if err != nil {
			return nil, "", errors.Wrap(ErrMalformedXml, err.Error())
		}
		if se, ok := tok.(xml.StartElement); ok {
			start = se
			break
		}
	}

	switch strings.ToLower(start.Name.Local) {
	case "wms_capabilities", "wmt_ms_capabilities", "capabilities":
	default:
		return nil, "", errors.Wrapf(ErrBadRootTag, "root element %q", start.Name.Local)
	}

	version := ""
	for _, attr := range start.Attr {
		if strings.EqualFold(attr.Name.Local, "version") {
			version = attr.Value
		}
	}

	var raw capsXML
	if err := dec.DecodeElement(&raw, &start); err != nil {
		return nil, "", errors.Wrap(ErrMalformedXml, err.Error())
	}
	return &raw, version, nil
}

// stripDTD removes a <!DOCTYPE ...> declaration, including an internal
// subset in brackets. The second return is false when there is nothing to
// strip.
func stripDTD(body string) (string, bool) {
	idx := strings.Index(body, "<!DOCTYPE")
	if idx < 0 {
		return body, false
	}
	depth := 0
	for i := idx; i < len(body); i++ {
		switch body[i] {
		case '[':
			depth++
		case ']':
			depth--
		case '>':
			if depth <= 0 {
				return body[:idx] + body[i+1:], true
			}
		}
	}
	return body, false
}

func mergeService(dst *ServiceMetadata, src *serviceXML) {
	if src.Title != "" {
		dst.Title = src.Title
	}
	if src.Abstract != "" {
		dst.Abstract = src.Abstract
	}
	keywords := src.KeywordList.Keywords
	if len(keywords) == 0 {
		keywords = src.Keywords.Keywords
	}
	if len(keywords) > 0 {
		dst.Keywords = append([]string(nil), keywords...)
	}
	if src.Fees != "" {
		dst.Fees = src.Fees
	}
	if src.AccessConstraints != "" {
		dst.AccessConstraints = src.AccessConstraints
	}
	if src.OnlineResource.Href != "" {
		dst.OnlineResource = src.OnlineResource.Href
	}
	if src.LayerLimit != "" {
		dst.LayerLimit = atoiDefault(src.LayerLimit, 0)
	}
	if src.MaxWidth != "" {
		dst.MaxWidth = atoiDefault(src.MaxWidth, 0)
	}
	if src.MaxHeight != "" {
		dst.MaxHeight = atoiDefault(src.MaxHeight, 0)
	}
}

type parser struct {
	version string
	orderID int
}

func (p *parser) is13() bool {
	return strings.HasPrefix(p.version, "1.3")
}

func (p *parser) convertRequest(raw *requestXML, out *OperationSet) {
	conv := func(op *wmsOperationXML) Operation {
		var o Operation
		if op == nil {
			return o
		}
		for _, f := range op.Formats {
			if f != "" {
				o.Formats = append(o.Formats, f)
			}
		}
		for _, dcp := range op.DCPTypes {
			ep := DcpEndpoint{}
			if dcp.HTTP.Get != nil {
				ep.Get = dcp.HTTP.Get.OnlineResource.Href
			}
			if dcp.HTTP.Post != nil {
				ep.Post = dcp.HTTP.Post.OnlineResource.Href
			}
			o.DcpType = append(o.DcpType, ep)
		}
		return o
	}
	out.GetMap = conv(raw.GetMap)
	out.GetFeatureInfo = conv(raw.GetFeatureInfo)
	out.GetLegendGraphic = conv(raw.GetLegendGraphic)
}

func (p *parser) convertOwsOperations(raw *operationsMetaXML, out *OperationSet) {
	for _, op := range raw.Operations {
		var target *Operation
		switch op.Name {
		case "GetTile":
			target = &out.GetTile
		case "GetFeatureInfo":
			target = &out.GetFeatureInfo
		case "GetLegendGraphic", "sld:GetLegendGraphic":
			target = &out.GetLegendGraphic
		default:
			continue
		}
		for _, dcp := range op.DCPs {
			for _, get := range dcp.HTTP.Gets {
				if get.Href == "" {
					continue
				}
				target.DcpType = append(target.DcpType, DcpEndpoint{Get: get.Href})
				target.AllowedEncodings = nil
				for _, con := range get.Constraints {
					for _, v := range con.AllowedValues.Values {
						if v == "" {
							continue
						}
						if strings.EqualFold(v, "kvp") {
							v = "KVP"
						}
						target.AllowedEncodings = append(target.AllowedEncodings, v)
					}
				}
			}
		}
	}
}

// convertWmsLayer walks one <Layer> subtree, assigning orderIds in document
// order and folding parent state into children.
func (p *parser) convertWmsLayer(raw *wmsLayerXML, parent *WmsLayer, model *ServiceModel) *WmsLayer {
	p.orderID++
	layer := &WmsLayer{
		OrderID:       p.orderID,
		Name:          raw.Name,
		Title:         raw.Title,
		Abstract:      raw.Abstract,
		Keywords:      append([]string(nil), raw.KeywordList.Keywords...),
		BoundingBoxes: map[string]geo.BoundingBox{},
		Queryable:     boolAttr(raw.Queryable),
		Cascaded:      atoiDefault(raw.Cascaded, 0),
		Opaque:        boolAttr(raw.Opaque),
		NoSubsets:     boolAttr(raw.NoSubsets),
		FixedWidth:    atoiDefault(raw.FixedWidth, 0),
		FixedHeight:   atoiDefault(raw.FixedHeight, 0),
	}

	if parent != nil {
		model.layerParents[layer.OrderID] = parent.OrderID
		layer.CrsIDs = append(layer.CrsIDs, parent.CrsIDs...)
		for k, v := range parent.BoundingBoxes {
			layer.BoundingBoxes[k] = v
		}
		layer.ExGeographicBoundingBox = parent.ExGeographicBoundingBox
		layer.Styles = inheritStyles(parent.Styles, raw.Name)
	}

	// A <CRS> or <SRS> element may hold several whitespace-separated ids
	// (deprecated WMS 1.1.1 form, still seen in the wild).
	for _, decl := range append(append([]string(nil), raw.CRS...), raw.SRS...) {
		for _, id := range strings.Fields(decl) {
			if !containsString(layer.CrsIDs, id) {
				layer.CrsIDs = append(layer.CrsIDs, id)
			}
		}
	}

	if b := raw.LatLonBoundingBox; b != nil && b.MinX != nil && b.MinY != nil && b.MaxX != nil && b.MaxY != nil {
		rect := geo.NewRectangle(float64(*b.MinX), float64(*b.MinY), float64(*b.MaxX), float64(*b.MaxY), false)
		if b.SRS != "" && b.SRS != "CRS:84" {
			if out, err := crs.TransformBoundingBox(geo.BoundingBox{CrsID: b.SRS, Rect: rect}, "CRS:84"); err == nil {
				rect = out.Rect
			}
		}
		layer.ExGeographicBoundingBox = rect
	}

	if b := raw.ExGeographic; b != nil && b.West != nil && b.East != nil && b.South != nil && b.North != nil {
		layer.ExGeographicBoundingBox = geo.NewRectangle(float64(*b.West), float64(*b.South), float64(*b.East), float64(*b.North), false)
	}

	for _, b := range raw.BoundingBoxes {
		id := b.crsID()
		if id == "" || b.MinX == nil || b.MinY == nil || b.MaxX == nil || b.MaxY == nil {
			continue
		}
		rect := geo.NewRectangle(float64(*b.MinX), float64(*b.MinY), float64(*b.MaxX), float64(*b.MaxY), false)
		if p.is13() {
			if resolved, err := crs.Resolve(id); err == nil && resolved.ShouldInvertAxes() {
				rect = rect.Invert()
			}
		}
		// One box per CRS id; a re-declaration wins.
		layer.BoundingBoxes[id] = geo.BoundingBox{CrsID: id, Rect: rect}
	}

	for _, m := range raw.MetadataURLs {
		layer.MetadataURLs = append(layer.MetadataURLs, MetadataURL{
			Format: m.Format, Type: m.Type, Href: m.OnlineResource.Href,
		})
	}

	for _, s := range raw.Styles {
		style := WmsStyle{Name: s.Name, Title: s.Title, Abstract: s.Abstract}
		for _, l := range s.LegendURLs {
			style.LegendURLs = append(style.LegendURLs, LegendURL{
				Format: l.Format,
				Width:  atoiDefault(l.Width, -1),
				Height: atoiDefault(l.Height, -1),
				Href:   l.OnlineResource.Href,
			})
		}
		// An own style replaces an inherited style of the same name; per
		// the WMS spec this should not occur, but Mapserver emits it.
		for i := range layer.Styles {
			if layer.Styles[i].Name == style.Name {
				layer.Styles = append(layer.Styles[:i], layer.Styles[i+1:]...)
				break
			}
		}
		layer.Styles = append(layer.Styles, style)
	}

	for i := range raw.Layers {
		child := p.convertWmsLayer(&raw.Layers[i], layer, model)
		layer.Children = append(layer.Children, child)
	}

	// Group layers (no Name) stay in the list: the tree navigation and
	// title lookups need them, they are just not requestable.
	model.WmsLayers = append(model.WmsLayers, layer)
	return layer
}

// inheritStyles copies the parent styles for a child layer, rewriting each
// legend URL's "layer" query parameter to the child's name.
func inheritStyles(parentStyles []WmsStyle, childName string) []WmsStyle {
	if len(parentStyles) == 0 {
		return nil
	}
	out := make([]WmsStyle, len(parentStyles))
	for i, s := range parentStyles {
		cp := s
		cp.LegendURLs = append([]LegendURL(nil), s.LegendURLs...)
		if childName != "" {
			for j := range cp.LegendURLs {
				if _, ok := queryParam(cp.LegendURLs[j].Href, "layer"); ok {
					cp.LegendURLs[j].Href = setQueryParam(cp.LegendURLs[j].Href, "layer", childName)
				}
			}
		}
		out[i] = cp
	}
	return out
}

func (p *parser) convertContents(raw *contentsXML, model *ServiceModel) {
	tianditu := isTianditu(model)

	for i := range raw.TileMatrixSets {
		set := p.convertTileMatrixSet(&raw.TileMatrixSets[i], tianditu)
		if set != nil {
			model.TileMatrixSets[set.Identifier] = set
		}
	}

	for i := range raw.Layers {
		layer := p.convertWmtsLayer(&raw.Layers[i], model)
		model.WmtsLayers = append(model.WmtsLayers, layer)
	}

	// Every layer ends up with at least one bounding box: derived from a
	// linked matrix set when possible, the whole world otherwise.
	for _, layer := range model.WmtsLayers {
		if len(layer.BoundingBoxes) > 0 {
			continue
		}
		if box, ok := deriveLayerBoundingBox(layer, model); ok {
			layer.BoundingBoxes = append(layer.BoundingBoxes, box)
			continue
		}
		layer.BoundingBoxes = append(layer.BoundingBoxes,
			geo.NewBoundingBox("CRS:84", -180, -90, 180, 90))
	}
}

func (p *parser) convertTileMatrixSet(raw *tileMatrixSetXML, tianditu bool) *TileMatrixSet {
	resolved, err := crs.Resolve(raw.SupportedCRS)
	if err != nil {
		return nil
	}
	crsID := crs.AuthorityID(resolved)
	if crsID == "" {
		crsID = resolved.Uid()
	}

	metersPerUnit := resolved.MetersPerUnit()
	invertAxes := resolved.ShouldInvertAxes()

	set := &TileMatrixSet{
		Identifier:        raw.Identifier,
		Title:             raw.Title,
		Abstract:          raw.Abstract,
		Keywords:          append([]string(nil), raw.Keywords.Keywords...),
		WellKnownScaleSet: raw.WellKnownScaleSet,
		CrsID:             crsID,
		Matrices:          orderedmap.New[float64, *TileMatrix](),
	}

	matrices := make([]*TileMatrix, 0, len(raw.TileMatrices))
	for _, m := range raw.TileMatrices {
		tm := &TileMatrix{
			Identifier:   m.Identifier,
			Title:        m.Title,
			Abstract:     m.Abstract,
			Keywords:     append([]string(nil), m.Keywords.Keywords...),
			TileWidth:    m.TileWidth,
			TileHeight:   m.TileHeight,
			MatrixWidth:  m.MatrixWidth,
			MatrixHeight: m.MatrixHeight,
		}
		if m.ScaleDenominator != nil {
			tm.ScaleDenominator = float64(*m.ScaleDenominator)
		}
		if corner := strings.Fields(m.TopLeftCorner); len(corner) == 2 {
			x, errX := parseCommaFloat(corner[0])
			y, errY := parseCommaFloat(corner[1])
			if errX == nil && errY == nil {
				if invertAxes {
					x, y = y, x
				}
				if tianditu {
					// Tianditu publishes TopLeftCorner with the axes
					// already swapped; undo it.
					x, y = y, x
				}
				tm.TopLeft = geo.Point2d{X: x, Y: y}
			}
		}
		k := kPixelSizeOGC
		if tianditu {
			k = kPixelSizeTianditu
		}
		tm.PixelSize = tm.ScaleDenominator * k / metersPerUnit
		matrices = append(matrices, tm)
	}

	sort.Slice(matrices, func(i, j int) bool { return matrices[i].PixelSize < matrices[j].PixelSize })
	for _, tm := range matrices {
		set.Matrices.Set(tm.PixelSize, tm)
	}
	return set
}

func (p *parser) convertWmtsLayer(raw *wmtsLayerXML, model *ServiceModel) *WmtsTileLayer {
	layer := &WmtsTileLayer{
		Identifier:              raw.Identifier,
		Title:                   raw.Title,
		Abstract:                raw.Abstract,
		Keywords:                append([]string(nil), raw.Keywords.Keywords...),
		Styles:                  map[string]*WmtsStyle{},
		MatrixSetLinks:          map[string]*TileMatrixSetLink{},
		GetTileTemplates:        map[string]string{},
		GetFeatureInfoTemplates: map[string]string{},
	}

	if b := raw.WGS84BoundingBox; b != nil {
		lower := strings.Fields(b.LowerCorner)
		upper := strings.Fields(b.UpperCorner)
		if len(lower) == 2 && len(upper) == 2 {
			minX, err1 := parseCommaFloat(lower[0])
			minY, err2 := parseCommaFloat(lower[1])
			maxX, err3 := parseCommaFloat(upper[0])
			maxY, err4 := parseCommaFloat(upper[1])
			if err1 == nil && err2 == nil && err3 == nil && err4 == nil {
				layer.BoundingBoxes = append(layer.BoundingBoxes,
					geo.NewBoundingBox("CRS:84", minX, minY, maxX, maxY))
			}
		}
	}

	for _, b := range raw.OwsBoundingBoxes {
		id := b.crsID()
		lower := strings.Fields(b.LowerCorner)
		upper := strings.Fields(b.UpperCorner)
		if id == "" || len(lower) != 2 || len(upper) != 2 {
			continue
		}
		minX, err1 := parseCommaFloat(lower[0])
		minY, err2 := parseCommaFloat(lower[1])
		maxX, err3 := parseCommaFloat(upper[0])
		maxY, err4 := parseCommaFloat(upper[1])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		resolved, err := crs.Resolve(id)
		if err != nil {
			continue
		}
		if canonical := crs.AuthorityID(resolved); canonical != "" {
			id = canonical
		}
		rect := geo.NewRectangle(minX, minY, maxX, maxY, false)
		if resolved.ShouldInvertAxes() {
			rect = rect.Invert()
		}
		layer.BoundingBoxes = append(layer.BoundingBoxes, geo.BoundingBox{CrsID: id, Rect: rect})
	}

	for _, s := range raw.Styles {
		style := &WmtsStyle{
			Identifier: s.Identifier,
			Title:      s.Title,
			Abstract:   s.Abstract,
			Keywords:   append([]string(nil), s.Keywords.Keywords...),
			IsDefault:  s.IsDefault == "true",
		}
		for _, l := range s.LegacyLegendURLs {
			legend := WmtsLegendURL{Format: l.Format, Href: l.Href, Width: l.Width, Height: l.Height}
			if l.MinScale != nil {
				legend.MinScale = float64(*l.MinScale)
			}
			if l.MaxScale != nil {
				legend.MaxScale = float64(*l.MaxScale)
			}
			style.LegendURLs = append(style.LegendURLs, legend)
		}
		for _, l := range s.LegendURLs {
			minScale, _ := parseCommaFloat(l.MinScale)
			maxScale, _ := parseCommaFloat(l.MaxScale)
			style.LegendURLs = append(style.LegendURLs, WmtsLegendURL{
				Format:   l.Format,
				Href:     l.Href,
				MinScale: minScale,
				MaxScale: maxScale,
				Width:    atoiDefault(l.Width, 0),
				Height:   atoiDefault(l.Height, 0),
			})
		}
		layer.Styles[style.Identifier] = style
		if style.IsDefault {
			layer.DefaultStyle = style.Identifier
		}
	}
	if len(layer.Styles) == 0 {
		layer.Styles["default"] = &WmtsStyle{
			Identifier: "default",
			Title:      "Generated default style",
			Abstract:   "Style was missing in capabilities",
		}
	}

	seenFormats := map[string]bool{}
	for _, f := range raw.Formats {
		if f == "" || seenFormats[f] {
			continue
		}
		seenFormats[f] = true
		layer.Formats = append(layer.Formats, f)
	}

	for _, link := range raw.TileMatrixSetLinks {
		set, ok := model.TileMatrixSets[link.TileMatrixSet]
		if !ok {
			continue
		}
		out := &TileMatrixSetLink{TileMatrixSet: link.TileMatrixSet, Limits: map[string]TileMatrixLimits{}}
		for _, setLimits := range link.Limits {
			for _, lim := range setLimits.TileMatrixLimits {
				if lim.TileMatrix == "" {
					continue
				}
				matrix := set.MatrixByIdentifier(lim.TileMatrix)
				if matrix == nil {
					continue
				}
				if lim.MinTileRow == nil || lim.MaxTileRow == nil || lim.MinTileCol == nil || lim.MaxTileCol == nil {
					continue
				}
				out2 := TileMatrixLimits{
					TileMatrix: lim.TileMatrix,
					MinRow:     *lim.MinTileRow,
					MaxRow:     *lim.MaxTileRow,
					MinCol:     *lim.MinTileCol,
					MaxCol:     *lim.MaxTileCol,
				}
				if !out2.Valid() ||
					out2.MaxCol >= matrix.MatrixWidth || out2.MaxRow >= matrix.MatrixHeight {
					continue
				}
				out.Limits[lim.TileMatrix] = out2
			}
		}
		layer.MatrixSetLinks[link.TileMatrixSet] = out
	}

	for _, r := range raw.ResourceURLs {
		if r.Format == "" || r.ResourceType == "" || r.Template == "" {
			continue
		}
		switch strings.ToLower(r.ResourceType) {
		case "tile":
			layer.GetTileTemplates[r.Format] = r.Template
		case "featureinfo":
			layer.GetFeatureInfoTemplates[r.Format] = r.Template
		}
	}
	return layer
}

// deriveLayerBoundingBox falls back to the extent implied by the coarsest
// matrix of the layer's first linked matrix set.
func deriveLayerBoundingBox(layer *WmtsTileLayer, model *ServiceModel) (geo.BoundingBox, bool) {
	names := make([]string, 0, len(layer.MatrixSetLinks))
	for name := range layer.MatrixSetLinks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		set, ok := model.TileMatrixSets[name]
		if !ok || set.Matrices == nil {
			continue
		}
		pair := set.Matrices.Newest() // largest pixel size = coarsest
		if pair == nil {
			continue
		}
		tm := pair.Value
		bottomRight := geo.Point2d{
			X: tm.TopLeft.X + tm.PixelSize*float64(tm.TileWidth)*float64(tm.MatrixWidth),
			Y: tm.TopLeft.Y - tm.PixelSize*float64(tm.TileHeight)*float64(tm.MatrixHeight),
		}
		rect := geo.NewRectangleFromPoints(tm.TopLeft, bottomRight, true)
		return geo.BoundingBox{CrsID: set.CrsID, Rect: rect}, true
	}
	return geo.BoundingBox{}, false
}

// isTianditu detects the Tianditu service by its GetTile endpoint. The
// provider needs two workarounds: a 96 DPI pixel size and a swapped
// TopLeftCorner.
func isTianditu(model *ServiceModel) bool {
	if len(model.Request.GetTile.DcpType) != 1 {
		return false
	}
	return strings.Contains(strings.ToLower(model.Request.GetTile.DcpType[0].Get), "tianditu")
}

// backfillWmtsDescriptions fills empty WMTS titles and abstracts from WMS
// layers sharing the identifier as their name.
func backfillWmtsDescriptions(model *ServiceModel) {
	if len(model.WmtsLayers) == 0 || len(model.WmsLayers) == 0 {
		return
	}
	titles := map[string]string{}
	abstracts := map[string]string{}
	for _, l := range model.WmsLayers {
		if l.Name == "" {
			continue
		}
		if l.Title != "" {
			titles[l.Name] = l.Title
		}
		if l.Abstract != "" {
			abstracts[l.Name] = l.Abstract
		}
	}
	for _, tl := range model.WmtsLayers {
		if tl.Title == "" {
			if t, ok := titles[tl.Identifier]; ok {
				tl.Title = t
			}
		}
		if tl.Abstract == "" {
			if a, ok := abstracts[tl.Identifier]; ok {
				tl.Abstract = a
			}
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
