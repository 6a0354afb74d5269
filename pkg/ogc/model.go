// Package ogc models WMS 1.1.1 / 1.3.0 and WMTS 1.0.0 services: it parses
// Capabilities documents from either dialect into one service model and
// plans the tile requests needed to cover a viewport.
package ogc

import (
	"sort"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/mapweave/mapweave/pkg/geo"
)

// ServiceModel is the normalized, dialect-free view of a map service. It is
// immutable after parsing.
type ServiceModel struct {
	Version string
	Service ServiceMetadata
	Request OperationSet

	// WmsLayers is the flattened WMS layer list in document order,
	// including unnamed group layers. Group structure lives in
	// LayerTrees; only layers with a non-empty Name are requestable.
	WmsLayers []*WmsLayer
	// LayerTrees indexes the WMS layer forest by orderId with stable root
	// ordering.
	LayerTrees []*LayerTree
	// layerParents maps a layer's orderId to its parent's orderId.
	layerParents map[int]int

	WmtsLayers     []*WmtsTileLayer
	TileMatrixSets map[string]*TileMatrixSet
}

// ServiceMetadata carries the informational service block.
type ServiceMetadata struct {
	Title             string
	Abstract          string
	Keywords          []string
	Fees              string
	AccessConstraints string
	OnlineResource    string
	LayerLimit        int
	MaxWidth          int
	MaxHeight         int
}

// OperationSet holds the advertised operations by name.
type OperationSet struct {
	GetMap           Operation
	GetFeatureInfo   Operation
	GetTile          Operation
	GetLegendGraphic Operation
}

// Operation is one advertised operation with its formats and endpoints.
type Operation struct {
	Formats []string
	DcpType []DcpEndpoint
	// AllowedEncodings is WMTS-only; values are uppercased with "KVP"
	// canonical. Empty means unrestricted.
	AllowedEncodings []string
}

// DcpEndpoint is one DCP HTTP binding.
type DcpEndpoint struct {
	Get  string
	Post string
}

// WmsLayer is one <Layer> with inherited state folded in.
type WmsLayer struct {
	OrderID  int
	Name     string // empty for group layers; only named layers are requestable
	Title    string
	Abstract string
	Keywords []string

	CrsIDs []string
	// ExGeographicBoundingBox is the CRS:84 extent.
	ExGeographicBoundingBox geo.Rectangle
	// BoundingBoxes maps a CRS id to the one bounding box declared for it;
	// a re-declaration replaces the earlier one.
	BoundingBoxes map[string]geo.BoundingBox

	Styles   []WmsStyle
	Children []*WmsLayer

	MetadataURLs []MetadataURL

	Queryable   bool
	Cascaded    int
	Opaque      bool
	NoSubsets   bool
	FixedWidth  int
	FixedHeight int
}

// WmsStyle is a WMS layer style.
type WmsStyle struct {
	Name       string
	Title      string
	Abstract   string
	LegendURLs []LegendURL
}

// LegendURL points at a rendered legend image.
type LegendURL struct {
	Format string
	Width  int
	Height int
	Href   string
}

// MetadataURL points at layer metadata.
type MetadataURL struct {
	Format string
	Type   string
	Href   string
}

// LayerTree is one root of the WMS layer forest, referencing layers by
// orderId.
type LayerTree struct {
	OrderID  int
	Children []*LayerTree
}

// buildLayerTrees turns the parent index into a multi-root forest with
// children sorted by orderId recursively.
func buildLayerTrees(parents map[int]int, all []int) []*LayerTree {
	nodes := make(map[int]*LayerTree, len(all))
	for _, id := range all {
		nodes[id] = &LayerTree{OrderID: id}
	}
	var roots []*LayerTree
	for _, id := range all {
		if parentID, ok := parents[id]; ok {
			if parent := nodes[parentID]; parent != nil {
				parent.Children = append(parent.Children, nodes[id])
				continue
			}
		}
		roots = append(roots, nodes[id])
	}
	var sortTree func(ts []*LayerTree)
	sortTree = func(ts []*LayerTree) {
		sort.Slice(ts, func(i, j int) bool { return ts[i].OrderID < ts[j].OrderID })
		for _, t := range ts {
			sortTree(t.Children)
		}
	}
	sortTree(roots)
	return roots
}

// WmtsTileLayer is one WMTS <Layer> from <Contents>.
type WmtsTileLayer struct {
	Identifier string
	Title      string
	Abstract   string
	Keywords   []string

	// Formats preserves first-seen order with duplicates dropped.
	Formats []string

	Styles       map[string]*WmtsStyle
	DefaultStyle string

	// BoundingBoxes includes the CRS:84 box derived from WGS84BoundingBox
	// when declared. Parsing guarantees at least one entry.
	BoundingBoxes []geo.BoundingBox

	MatrixSetLinks map[string]*TileMatrixSetLink

	// GetTileTemplates maps a format to its REST tile URL template.
	GetTileTemplates map[string]string
	// GetFeatureInfoTemplates maps a format to its FeatureInfo template.
	GetFeatureInfoTemplates map[string]string
}

// WmtsStyle is a WMTS layer style.
type WmtsStyle struct {
	Identifier string
	Title      string
	Abstract   string
	Keywords   []string
	IsDefault  bool
	LegendURLs []WmtsLegendURL
}

// WmtsLegendURL is a WMTS legend resource.
type WmtsLegendURL struct {
	Format   string
	Href     string
	MinScale float64
	MaxScale float64
	Width    int
	Height   int
}

// TileMatrixSetLink ties a layer to a TileMatrixSet, optionally with
// per-matrix row/col limits.
type TileMatrixSetLink struct {
	TileMatrixSet string
	Limits        map[string]TileMatrixLimits
}

// TileMatrixLimits restricts the valid tile range of one matrix.
type TileMatrixLimits struct {
	TileMatrix string
	MinRow     int
	MaxRow     int
	MinCol     int
	MaxCol     int
}

// Valid reports whether the limits are well-formed.
func (l TileMatrixLimits) Valid() bool {
	return l.TileMatrix != "" &&
		l.MinRow >= 0 && l.MaxRow >= 0 && l.MinCol >= 0 && l.MaxCol >= 0 &&
		l.MinRow <= l.MaxRow && l.MinCol <= l.MaxCol
}

// ValidForLevel additionally requires the limits to belong to the matrix
// whose extracted level equals level.
func (l TileMatrixLimits) ValidForLevel(level int) bool {
	return l.Valid() && LevelOf(l.TileMatrix) == level
}

// TileMatrixSet is an ordered collection of tile matrices sharing a CRS.
type TileMatrixSet struct {
	Identifier        string
	Title             string
	Abstract          string
	Keywords          []string
	WellKnownScaleSet string
	// CrsID is the canonical AUTH:CODE form.
	CrsID string

	// Matrices is keyed by pixel size in ascending order (finest first).
	Matrices *orderedmap.OrderedMap[float64, *TileMatrix]
}

// TileMatrix is one zoom level of a TileMatrixSet.
type TileMatrix struct {
	Identifier       string
	Title            string
	Abstract         string
	Keywords         []string
	ScaleDenominator float64
	PixelSize        float64
	TopLeft          geo.Point2d
	TileWidth        int
	TileHeight       int
	MatrixWidth      int
	MatrixHeight     int
}

// MatrixByIdentifier finds the matrix whose identifier matches id, either
// verbatim or by the trailing colon-separated segment (the
// "EPSG:4326:<n>" spelling).
func (s *TileMatrixSet) MatrixByIdentifier(id string) *TileMatrix {
	if s.Matrices == nil {
		return nil
	}
	for pair := s.Matrices.Oldest(); pair != nil; pair = pair.Next() {
		tm := pair.Value
		if tm.Identifier == "" {
			continue
		}
		if tm.Identifier == id {
			return tm
		}
		if idx := strings.LastIndex(tm.Identifier, ":"); idx >= 0 && idx < len(tm.Identifier)-1 {
			if tm.Identifier[idx+1:] == id {
				return tm
			}
		}
	}
	return nil
}

// LevelOf extracts the integer level from a matrix identifier, supporting
// both the bare "<n>" and the "EPSG:4326:<n>" spellings. Returns -1 when no
// trailing integer is found.
func LevelOf(identifier string) int {
	s := identifier
	if idx := strings.LastIndex(s, ":"); idx >= 0 && idx < len(s)-1 {
		s = s[idx+1:]
	}
	level, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return level
}

// TileRequest is one planned download. Immutable after planning; the engine
// only reads it.
type TileRequest struct {
	Level           int
	Row             int
	Col             int
	NumWidthPixels  int
	NumHeightPixels int
	LeftTopPtX      float64
	LeftTopPtY      float64
	Bbox            geo.BoundingBox
	URL             string
	FilePath        string
	LayerTitle      string
	LayerName       string
	TileMatrixSetID string
	Format          string
	Style           string
	Version         string
}

// Valid reports whether the request carries everything the engine needs.
func (t TileRequest) Valid() bool {
	return t.Level >= 0 && t.Row >= 0 && t.Col >= 0 &&
		t.NumWidthPixels > 0 && t.NumHeightPixels > 0 &&
		t.URL != "" && t.FilePath != "" && t.Bbox.Valid()
}
