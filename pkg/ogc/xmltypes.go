package ogc

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// The raw decode layer. Field tags carry no namespace so wms:, ows: and
// unprefixed spellings of the same element all land in the same field;
// encoding/xml matches on the local name.

// commaFloat parses a decimal that may use a comma as the decimal
// separator, which some locale-encoded producers emit.
type commaFloat float64

func parseCommaFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	return strconv.ParseFloat(s, 64)
}

func (f *commaFloat) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return err
	}
	v, err := parseCommaFloat(s)
	if err != nil {
		return err
	}
	*f = commaFloat(v)
	return nil
}

func (f *commaFloat) UnmarshalXMLAttr(attr xml.Attr) error {
	v, err := parseCommaFloat(attr.Value)
	if err != nil {
		return err
	}
	*f = commaFloat(v)
	return nil
}

type capsXML struct {
	Service               *serviceXML         `xml:"Service"`
	ServiceIdentification *serviceXML         `xml:"ServiceIdentification"`
	ServiceProvider       *serviceXML         `xml:"ServiceProvider"`
	Capability            *capabilityXML      `xml:"Capability"`
	OperationsMetadata    *operationsMetaXML  `xml:"OperationsMetadata"`
	Contents              *contentsXML        `xml:"Contents"`
}

type serviceXML struct {
	Title             string         `xml:"Title"`
	Abstract          string         `xml:"Abstract"`
	KeywordList       keywordListXML `xml:"KeywordList"`
	Keywords          keywordListXML `xml:"Keywords"`
	OnlineResource    xlinkResource  `xml:"OnlineResource"`
	Fees              string         `xml:"Fees"`
	AccessConstraints string         `xml:"AccessConstraints"`
	LayerLimit        string         `xml:"LayerLimit"`
	MaxWidth          string         `xml:"MaxWidth"`
	MaxHeight         string         `xml:"MaxHeight"`
}

type keywordListXML struct {
	Keywords []string `xml:"Keyword"`
}

type xlinkResource struct {
	Href string `xml:"href,attr"`
}

type capabilityXML struct {
	Request requestXML    `xml:"Request"`
	Layers  []wmsLayerXML `xml:"Layer"`
}

type requestXML struct {
	GetMap           *wmsOperationXML `xml:"GetMap"`
	GetFeatureInfo   *wmsOperationXML `xml:"GetFeatureInfo"`
	GetLegendGraphic *wmsOperationXML `xml:"GetLegendGraphic"`
}

type wmsOperationXML struct {
	Formats  []string     `xml:"Format"`
	DCPTypes []dcpTypeXML `xml:"DCPType"`
}

type dcpTypeXML struct {
	HTTP dcpHTTPXML `xml:"HTTP"`
}

type dcpHTTPXML struct {
	Get  *resourceHolderXML `xml:"Get"`
	Post *resourceHolderXML `xml:"Post"`
}

type resourceHolderXML struct {
	OnlineResource xlinkResource `xml:"OnlineResource"`
}

type operationsMetaXML struct {
	Operations []owsOperationXML `xml:"Operation"`
}

type owsOperationXML struct {
	Name string      `xml:"name,attr"`
	DCPs []owsDcpXML `xml:"DCP"`
}

type owsDcpXML struct {
	HTTP owsHTTPXML `xml:"HTTP"`
}

type owsHTTPXML struct {
	Gets []owsGetXML `xml:"Get"`
}

type owsGetXML struct {
	Href        string             `xml:"href,attr"`
	Constraints []owsConstraintXML `xml:"Constraint"`
}

type owsConstraintXML struct {
	Name          string `xml:"name,attr"`
	AllowedValues struct {
		Values []string `xml:"Value"`
	} `xml:"AllowedValues"`
}

type wmsLayerXML struct {
	Queryable   string `xml:"queryable,attr"`
	Cascaded    string `xml:"cascaded,attr"`
	Opaque      string `xml:"opaque,attr"`
	NoSubsets   string `xml:"noSubsets,attr"`
	FixedWidth  string `xml:"fixedWidth,attr"`
	FixedHeight string `xml:"fixedHeight,attr"`

	Name        string         `xml:"Name"`
	Title       string         `xml:"Title"`
	Abstract    string         `xml:"Abstract"`
	KeywordList keywordListXML `xml:"KeywordList"`

	CRS []string `xml:"CRS"`
	SRS []string `xml:"SRS"`

	LatLonBoundingBox *latLonBBoxXML `xml:"LatLonBoundingBox"`
	ExGeographic      *exGeoBBoxXML  `xml:"EX_GeographicBoundingBox"`
	BoundingBoxes     []wmsBBoxXML   `xml:"BoundingBox"`

	MetadataURLs []metadataURLXML `xml:"MetadataURL"`
	Styles       []wmsStyleXML    `xml:"Style"`
	Layers       []wmsLayerXML    `xml:"Layer"`
}

type latLonBBoxXML struct {
	MinX *commaFloat `xml:"minx,attr"`
	MinY *commaFloat `xml:"miny,attr"`
	MaxX *commaFloat `xml:"maxx,attr"`
	MaxY *commaFloat `xml:"maxy,attr"`
	SRS  string      `xml:"SRS,attr"`
}

type exGeoBBoxXML struct {
	West  *commaFloat `xml:"westBoundLongitude"`
	East  *commaFloat `xml:"eastBoundLongitude"`
	South *commaFloat `xml:"southBoundLatitude"`
	North *commaFloat `xml:"northBoundLatitude"`
}

type wmsBBoxXML struct {
	MinX *commaFloat `xml:"minx,attr"`
	MinY *commaFloat `xml:"miny,attr"`
	MaxX *commaFloat `xml:"maxx,attr"`
	MaxY *commaFloat `xml:"maxy,attr"`
	// Attribute names are case-sensitive; both spellings occur.
	CRSUpper string `xml:"CRS,attr"`
	CrsLower string `xml:"crs,attr"`
	SRSUpper string `xml:"SRS,attr"`
	SrsLower string `xml:"srs,attr"`
}

func (b wmsBBoxXML) crsID() string {
	for _, v := range [...]string{b.CRSUpper, b.CrsLower, b.SRSUpper, b.SrsLower} {
		if v != "" {
			return v
		}
	}
	return ""
}

type metadataURLXML struct {
	Type           string        `xml:"type,attr"`
	Format         string        `xml:"Format"`
	OnlineResource xlinkResource `xml:"OnlineResource"`
}

type wmsStyleXML struct {
	Name       string         `xml:"Name"`
	Title      string         `xml:"Title"`
	Abstract   string         `xml:"Abstract"`
	LegendURLs []legendURLXML `xml:"LegendURL"`
}

type legendURLXML struct {
	Width          string        `xml:"width,attr"`
	Height         string        `xml:"height,attr"`
	Format         string        `xml:"Format"`
	OnlineResource xlinkResource `xml:"OnlineResource"`
}

type contentsXML struct {
	TileMatrixSets []tileMatrixSetXML `xml:"TileMatrixSet"`
	Layers         []wmtsLayerXML     `xml:"Layer"`
}

type tileMatrixSetXML struct {
	Identifier        string          `xml:"Identifier"`
	Title             string          `xml:"Title"`
	Abstract          string          `xml:"Abstract"`
	Keywords          keywordListXML  `xml:"Keywords"`
	SupportedCRS      string          `xml:"SupportedCRS"`
	WellKnownScaleSet string          `xml:"WellKnownScaleSet"`
	TileMatrices      []tileMatrixXML `xml:"TileMatrix"`
}

type tileMatrixXML struct {
	Identifier       string         `xml:"Identifier"`
	Title            string         `xml:"Title"`
	Abstract         string         `xml:"Abstract"`
	Keywords         keywordListXML `xml:"Keywords"`
	ScaleDenominator *commaFloat    `xml:"ScaleDenominator"`
	TopLeftCorner    string         `xml:"TopLeftCorner"`
	TileWidth        int            `xml:"TileWidth"`
	TileHeight       int            `xml:"TileHeight"`
	MatrixWidth      int            `xml:"MatrixWidth"`
	MatrixHeight     int            `xml:"MatrixHeight"`
}

type wmtsLayerXML struct {
	Identifier string         `xml:"Identifier"`
	Title      string         `xml:"Title"`
	Abstract   string         `xml:"Abstract"`
	Keywords   keywordListXML `xml:"Keywords"`

	WGS84BoundingBox   *owsBBoxXML  `xml:"WGS84BoundingBox"`
	OwsBoundingBoxes   []owsBBoxXML `xml:"BoundingBox"`
	Styles             []wmtsStyleXML `xml:"Style"`
	Formats            []string       `xml:"Format"`
	InfoFormats        []string       `xml:"InfoFormat"`
	TileMatrixSetLinks []tmsLinkXML   `xml:"TileMatrixSetLink"`
	ResourceURLs       []resourceURLXML `xml:"ResourceURL"`
}

type owsBBoxXML struct {
	LowerCorner string `xml:"LowerCorner"`
	UpperCorner string `xml:"UpperCorner"`
	CRSUpper    string `xml:"CRS,attr"`
	CrsLower    string `xml:"crs,attr"`
	SRSUpper    string `xml:"SRS,attr"`
	SrsLower    string `xml:"srs,attr"`
}

func (b owsBBoxXML) crsID() string {
	for _, v := range [...]string{b.SRSUpper, b.SrsLower, b.CRSUpper, b.CrsLower} {
		if v != "" {
			return v
		}
	}
	return ""
}

type wmtsStyleXML struct {
	IsDefault  string            `xml:"isDefault,attr"`
	Identifier string            `xml:"Identifier"`
	Title      string            `xml:"Title"`
	Abstract   string            `xml:"Abstract"`
	Keywords   keywordListXML    `xml:"Keywords"`
	LegendURLs []wmtsLegendURLXML `xml:"LegendURL"`
	// legendURL (lowercase l) is the pre-1.0 spelling with child elements.
	LegacyLegendURLs []legacyLegendURLXML `xml:"legendURL"`
}

type wmtsLegendURLXML struct {
	Format   string `xml:"format,attr"`
	Href     string `xml:"href,attr"`
	MinScale string `xml:"minScaleDenominator,attr"`
	MaxScale string `xml:"maxScaleDenominator,attr"`
	Width    string `xml:"width,attr"`
	Height   string `xml:"height,attr"`
}

type legacyLegendURLXML struct {
	Format   string      `xml:"format"`
	Href     string      `xml:"href"`
	MinScale *commaFloat `xml:"minScale"`
	MaxScale *commaFloat `xml:"maxScale"`
	Width    int         `xml:"width"`
	Height   int         `xml:"height"`
}

type tmsLinkXML struct {
	TileMatrixSet string              `xml:"TileMatrixSet"`
	Limits        []tmsSetLimitsXML   `xml:"TileMatrixSetLimits"`
}

type tmsSetLimitsXML struct {
	TileMatrixLimits []tmsLimitsXML `xml:"TileMatrixLimits"`
}

type tmsLimitsXML struct {
	TileMatrix string `xml:"TileMatrix"`
	MinTileRow *int   `xml:"MinTileRow"`
	MaxTileRow *int   `xml:"MaxTileRow"`
	MinTileCol *int   `xml:"MinTileCol"`
	MaxTileCol *int   `xml:"MaxTileCol"`
}

type resourceURLXML struct {
	Format       string `xml:"format,attr"`
	ResourceType string `xml:"resourceType,attr"`
	Template     string `xml:"template,attr"`
}

func atoiDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func boolAttr(s string) bool {
	return s == "1" || strings.EqualFold(s, "true")
}
