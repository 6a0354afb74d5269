package ogc

import (
	"sort"

	"github.com/mapweave/mapweave/pkg/crs"
	"github.com/mapweave/mapweave/pkg/geo"
)

// Query helpers over the parsed service model. Layers are addressed by
// title, the way a user picks them from a listing.

// wmsLayerByTitle returns the first WMS layer with the given title.
func (m *ServiceModel) wmsLayerByTitle(title string) *WmsLayer {
	for _, l := range m.WmsLayers {
		if l.Title == title {
			return l
		}
	}
	return nil
}

// wmtsLayerByTitle returns the first WMTS layer with the given title.
func (m *ServiceModel) wmtsLayerByTitle(title string) *WmtsTileLayer {
	for _, l := range m.WmtsLayers {
		if l.Title == title {
			return l
		}
	}
	return nil
}

// RootLayerTitles lists the titles of the WMS forest roots plus every WMTS
// layer, sorted.
func (m *ServiceModel) RootLayerTitles() []string {
	var out []string
	for _, root := range m.LayerTrees {
		if title, ok := m.LayerTitleByID(root.OrderID); ok {
			out = append(out, title)
		}
	}
	for _, l := range m.WmtsLayers {
		out = append(out, l.Title)
	}
	sort.Strings(out)
	return out
}

// ChildLayerTitles lists the sorted titles of a WMS layer's direct
// children. WMTS layers have none.
func (m *ServiceModel) ChildLayerTitles(layerTitle string) []string {
	layer := m.wmsLayerByTitle(layerTitle)
	if layer == nil {
		return nil
	}
	var out []string
	for _, child := range layer.Children {
		out = append(out, child.Title)
	}
	sort.Strings(out)
	return out
}

// LayerTitleByID resolves a WMS layer orderId to its title.
func (m *ServiceModel) LayerTitleByID(orderID int) (string, bool) {
	for _, l := range m.WmsLayers {
		if l.OrderID == orderID {
			return l.Title, true
		}
	}
	return "", false
}

// LayerIDByTitle resolves a WMS layer title to its orderId.
func (m *ServiceModel) LayerIDByTitle(title string) (int, bool) {
	if l := m.wmsLayerByTitle(title); l != nil {
		return l.OrderID, true
	}
	return 0, false
}

// IsWmtsLayer reports whether the title names a WMTS layer.
func (m *ServiceModel) IsWmtsLayer(layerTitle string) bool {
	return m.wmtsLayerByTitle(layerTitle) != nil
}

// LayerTileMatrixSets lists the matrix set names a WMTS layer links to,
// sorted for stable prompting.
func (m *ServiceModel) LayerTileMatrixSets(layerTitle string) []string {
	layer := m.wmtsLayerByTitle(layerTitle)
	if layer == nil {
		return nil
	}
	out := make([]string, 0, len(layer.MatrixSetLinks))
	for name := range layer.MatrixSetLinks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// WmsLayerName maps a WMS layer title to its requestable name.
func (m *ServiceModel) WmsLayerName(layerTitle string) string {
	if l := m.wmsLayerByTitle(layerTitle); l != nil {
		return l.Name
	}
	return ""
}

// WmtsLayerName maps a WMTS layer title to its identifier.
func (m *ServiceModel) WmtsLayerName(layerTitle string) string {
	if l := m.wmtsLayerByTitle(layerTitle); l != nil {
		return l.Identifier
	}
	return ""
}

// LayerFormats lists the image formats a layer offers. For WMS layers the
// style legends are consulted first, then the GetMap operation formats; for
// WMTS layers the layer's own format list is returned.
func (m *ServiceModel) LayerFormats(layerTitle string) []string {
	if layer := m.wmsLayerByTitle(layerTitle); layer != nil {
		var out []string
		for _, style := range layer.Styles {
			for _, legend := range style.LegendURLs {
				if legend.Format != "" {
					out = append(out, legend.Format)
				}
			}
		}
		if len(out) == 0 {
			out = append(out, m.Request.GetMap.Formats...)
		}
		return out
	}
	if layer := m.wmtsLayerByTitle(layerTitle); layer != nil {
		return append([]string(nil), layer.Formats...)
	}
	return nil
}

// LayerStyles lists the style names a layer offers.
func (m *ServiceModel) LayerStyles(layerTitle string) []string {
	if layer := m.wmsLayerByTitle(layerTitle); layer != nil {
		var out []string
		for _, s := range layer.Styles {
			out = append(out, s.Name)
		}
		return out
	}
	if layer := m.wmtsLayerByTitle(layerTitle); layer != nil {
		out := make([]string, 0, len(layer.Styles))
		for id := range layer.Styles {
			out = append(out, id)
		}
		sort.Strings(out)
		return out
	}
	return nil
}

// LayerBoundingBoxCrs84 returns the layer's extent in CRS:84 longitude and
// latitude. WMS layers answer from the geographic bounding box when it is
// plausible; WMTS layers transform the first convertible declared box.
func (m *ServiceModel) LayerBoundingBoxCrs84(layerTitle, tileMatrixSetName string) (geo.BoundingBox, bool) {
	if layer := m.wmsLayerByTitle(layerTitle); layer != nil {
		r := layer.ExGeographicBoundingBox
		if r.Valid() && r.MinX < r.MaxX && r.MinY < r.MaxY &&
			r.MinX >= -180 && r.MaxX <= 180 && r.MinY >= -90 && r.MaxY <= 90 {
			return geo.BoundingBox{CrsID: "CRS:84", Rect: r}, true
		}
	}
	if _, ok := m.TileMatrixSets[tileMatrixSetName]; !ok {
		return geo.BoundingBox{}, false
	}
	layer := m.wmtsLayerByTitle(layerTitle)
	if layer == nil {
		return geo.BoundingBox{}, false
	}
	for _, box := range layer.BoundingBoxes {
		if !box.Valid() {
			continue
		}
		out, err := crs.TransformBoundingBox(box, "CRS:84")
		if err != nil || !out.Rect.Valid() {
			continue
		}
		out.CrsID = "CRS:84"
		return out, true
	}
	return geo.BoundingBox{}, false
}

// LayerCrs picks the CRS tiles will be requested in. WMS layers follow the
// preference order sole-declared > EPSG:4326 > EPSG:3857 (when CRS:84 or
// 3857 is declared) > first resolvable declaration; WMTS layers use their
// matrix set's CRS.
func (m *ServiceModel) LayerCrs(layerTitle, tileMatrixSetName string) string {
	if layer := m.wmsLayerByTitle(layerTitle); layer != nil {
		if len(layer.CrsIDs) == 0 {
			return "EPSG:4326"
		}
		if len(layer.CrsIDs) == 1 {
			return layer.CrsIDs[0]
		}
		if containsString(layer.CrsIDs, "EPSG:4326") {
			return "EPSG:4326"
		}
		if containsString(layer.CrsIDs, "CRS:84") || containsString(layer.CrsIDs, "EPSG:3857") {
			return "EPSG:3857"
		}
		for _, id := range layer.CrsIDs {
			resolved, err := crs.Resolve(id)
			if err != nil {
				continue
			}
			if canonical := crs.AuthorityID(resolved); canonical != "" {
				return canonical
			}
		}
		return "EPSG:4326"
	}
	set, ok := m.TileMatrixSets[tileMatrixSetName]
	if !ok {
		return ""
	}
	return set.CrsID
}

// MatrixLimits returns the declared row/col limits of the given layer,
// matrix set and level. The zero value is returned when none are declared.
func (m *ServiceModel) MatrixLimits(layerTitle, tileMatrixSetName string, level int) TileMatrixLimits {
	layer := m.wmtsLayerByTitle(layerTitle)
	if layer == nil {
		return TileMatrixLimits{}
	}
	link, ok := layer.MatrixSetLinks[tileMatrixSetName]
	if !ok {
		return TileMatrixLimits{}
	}
	for id, lim := range link.Limits {
		if LevelOf(id) == level {
			return lim
		}
	}
	return TileMatrixLimits{}
}
