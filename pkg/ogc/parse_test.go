package ogc

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mapweave/mapweave/pkg/geo"
)

const wms130Doc = `<?xml version="1.0" encoding="UTF-8"?>
<WMS_Capabilities version="1.3.0" xmlns="http://www.opengis.net/wms" xmlns:xlink="http://www.w3.org/1999/xlink">
  <Service>
    <Name>WMS</Name>
    <Title>Test Server</Title>
    <Abstract>A WMS for tests</Abstract>
    <KeywordList><Keyword>test</Keyword><Keyword>wms</Keyword></KeywordList>
    <Fees>none</Fees>
    <AccessConstraints>none</AccessConstraints>
    <LayerLimit>16</LayerLimit>
    <MaxWidth>4096</MaxWidth>
    <MaxHeight>4096</MaxHeight>
  </Service>
  <Capability>
    <Request>
      <GetMap>
        <Format>image/png</Format>
        <Format>image/jpeg</Format>
        <DCPType><HTTP><Get><OnlineResource xlink:href="https://example.com/geoserver/wms?"/></Get></HTTP></DCPType>
      </GetMap>
      <GetFeatureInfo>
        <Format>text/plain</Format>
        <DCPType><HTTP><Get><OnlineResource xlink:href="https://example.com/geoserver/wms?"/></Get></HTTP></DCPType>
      </GetFeatureInfo>
    </Request>
    <Layer queryable="1">
      <Title>Root Group</Title>
      <CRS>EPSG:4326</CRS>
      <CRS>EPSG:3857</CRS>
      <EX_GeographicBoundingBox>
        <westBoundLongitude>-125</westBoundLongitude>
        <eastBoundLongitude>-66</eastBoundLongitude>
        <southBoundLatitude>24</southBoundLatitude>
        <northBoundLatitude>50</northBoundLatitude>
      </EX_GeographicBoundingBox>
      <BoundingBox CRS="EPSG:4326" minx="24" miny="-125" maxx="50" maxy="-66"/>
      <Style>
        <Name>basic</Name>
        <Title>Basic Style</Title>
        <LegendURL width="20" height="20">
          <Format>image/png</Format>
          <OnlineResource xlink:href="https://srv/legend?layer=parent&amp;style=basic"/>
        </LegendURL>
      </Style>
      <Layer queryable="1" opaque="1" cascaded="2">
        <Name>child</Name>
        <Title>Child Layer</Title>
        <Abstract>first child</Abstract>
        <CRS>EPSG:2193</CRS>
      </Layer>
      <Layer>
        <Name>other</Name>
        <Title>Other Layer</Title>
        <Style>
          <Name>basic</Name>
          <Title>Replaced Basic</Title>
        </Style>
      </Layer>
    </Layer>
  </Capability>
</WMS_Capabilities>`

func parseDoc(t *testing.T, doc string) *ServiceModel {
	t.Helper()
	model, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return model
}

func TestParseWms130Service(t *testing.T) {
	model := parseDoc(t, wms130Doc)

	if model.Version != "1.3.0" {
		t.Fatalf("version = %q", model.Version)
	}
	if model.Service.Title != "Test Server" {
		t.Fatalf("service title = %q", model.Service.Title)
	}
	if model.Service.LayerLimit != 16 || model.Service.MaxWidth != 4096 {
		t.Fatalf("service limits = %+v", model.Service)
	}
	if diff := cmp.Diff([]string{"image/png", "image/jpeg"}, model.Request.GetMap.Formats); diff != "" {
		t.Fatalf("GetMap formats mismatch (-want +got):\n%s", diff)
	}
	if got := model.Request.GetMap.DcpType[0].Get; got != "https://example.com/geoserver/wms?" {
		t.Fatalf("GetMap DCP = %q", got)
	}
}

func TestParseWms130LayerTree(t *testing.T) {
	model := parseDoc(t, wms130Doc)

	// Every layer in document order; the unnamed root group stays for
	// tree navigation.
	var names []string
	var orderIDs []int
	for _, l := range model.WmsLayers {
		names = append(names, l.Name)
		orderIDs = append(orderIDs, l.OrderID)
	}
	if diff := cmp.Diff([]string{"", "child", "other"}, names); diff != "" {
		t.Fatalf("layer names mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, orderIDs); diff != "" {
		t.Fatalf("orderIds mismatch (-want +got):\n%s", diff)
	}

	if len(model.LayerTrees) != 1 {
		t.Fatalf("want 1 root tree, got %d", len(model.LayerTrees))
	}
	root := model.LayerTrees[0]
	if root.OrderID != 1 || len(root.Children) != 2 {
		t.Fatalf("unexpected tree shape: %+v", root)
	}
}

func TestParseWms130Inheritance(t *testing.T) {
	model := parseDoc(t, wms130Doc)

	child := model.wmsLayerByTitle("Child Layer")
	if child == nil || child.Name != "child" {
		t.Fatalf("child layer not found")
	}
	// Parent CRSes inherited before the child's own declaration.
	if diff := cmp.Diff([]string{"EPSG:4326", "EPSG:3857", "EPSG:2193"}, child.CrsIDs); diff != "" {
		t.Fatalf("child CRS list mismatch (-want +got):\n%s", diff)
	}
	wantRect := geo.NewRectangle(-125, 24, -66, 50, false)
	if child.ExGeographicBoundingBox != wantRect {
		t.Fatalf("child exGeographicBoundingBox = %+v", child.ExGeographicBoundingBox)
	}
	if !child.Opaque || child.Cascaded != 2 || !child.Queryable {
		t.Fatalf("child attributes = %+v", child)
	}
}

func TestParseWms130AxisSwapOnBoundingBox(t *testing.T) {
	model := parseDoc(t, wms130Doc)

	child := model.wmsLayerByTitle("Child Layer")
	box, ok := child.BoundingBoxes["EPSG:4326"]
	if !ok {
		t.Fatal("child lost the inherited EPSG:4326 bounding box")
	}
	// The document declares lat-first (24,-125)-(50,-66); parsing must
	// re-order to X=lon.
	want := geo.NewRectangle(-125, 24, -66, 50, false)
	if box.Rect != want {
		t.Fatalf("bounding box = %+v, want %+v", box.Rect, want)
	}
}

func TestParseLegendUrlRewrittenForChild(t *testing.T) {
	model := parseDoc(t, wms130Doc)

	child := model.wmsLayerByTitle("Child Layer")
	if len(child.Styles) == 0 || len(child.Styles[0].LegendURLs) == 0 {
		t.Fatal("child did not inherit the parent style")
	}
	got := child.Styles[0].LegendURLs[0].Href
	want := "https://srv/legend?layer=child&style=basic"
	if got != want {
		t.Fatalf("legend url = %q, want %q", got, want)
	}
}

func TestParseStyleReplacement(t *testing.T) {
	model := parseDoc(t, wms130Doc)

	other := model.wmsLayerByTitle("Other Layer")
	if other == nil || other.Name != "other" {
		t.Fatalf("other layer not found")
	}
	if len(other.Styles) != 1 {
		t.Fatalf("want 1 style after replacement, got %d", len(other.Styles))
	}
	if other.Styles[0].Title != "Replaced Basic" {
		t.Fatalf("style was not replaced: %+v", other.Styles[0])
	}
}

const wms111Doc = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE WMT_MS_Capabilities SYSTEM "http://schemas.opengis.net/wms/1.1.1/WMS_MS_Capabilities.dtd"
 [
 <!ELEMENT VendorSpecificCapabilities EMPTY>
 ]>
<WMT_MS_Capabilities version="1.1.1">
  <Service><Title>Old Server</Title></Service>
  <Capability>
    <Request>
      <GetMap>
        <Format>image/png</Format>
        <DCPType><HTTP><Get><OnlineResource xlink:href="http://old.example.com/wms"/></Get></HTTP></DCPType>
      </GetMap>
    </Request>
    <Layer>
      <Name>roads</Name>
      <Title>Roads</Title>
      <SRS>EPSG:4326 EPSG:3857</SRS>
      <LatLonBoundingBox minx="5,5" miny="45,25" maxx="10,5" maxy="48,75"/>
      <BoundingBox SRS="EPSG:4326" minx="5.5" miny="45.25" maxx="10.5" maxy="48.75"/>
    </Layer>
  </Capability>
</WMT_MS_Capabilities>`

func TestParseWms111(t *testing.T) {
	model := parseDoc(t, wms111Doc)

	if model.Version != "1.1.1" {
		t.Fatalf("version = %q", model.Version)
	}
	layer := model.wmsLayerByTitle("Roads")
	// Whitespace-separated SRS list splits into individual ids.
	if diff := cmp.Diff([]string{"EPSG:4326", "EPSG:3857"}, layer.CrsIDs); diff != "" {
		t.Fatalf("SRS split mismatch (-want +got):\n%s", diff)
	}
	// Comma decimal separators are tolerated.
	want := geo.NewRectangle(5.5, 45.25, 10.5, 48.75, false)
	if layer.ExGeographicBoundingBox != want {
		t.Fatalf("LatLonBoundingBox = %+v, want %+v", layer.ExGeographicBoundingBox, want)
	}
	// 1.1.1 never swaps BoundingBox axes.
	if box := layer.BoundingBoxes["EPSG:4326"]; box.Rect != want {
		t.Fatalf("BoundingBox = %+v, want %+v", box.Rect, want)
	}
}

func TestParseRejectsHtml(t *testing.T) {
	_, err := Parse("<html><body>login required</body></html>")
	if err == nil || !strings.Contains(err.Error(), "HTML") {
		t.Fatalf("want NotCapabilities error, got %v", err)
	}
}

func TestParseRejectsBadRoot(t *testing.T) {
	_, err := Parse(`<?xml version="1.0"?><WFS_Capabilities version="2.0.0"/>`)
	if err == nil || !strings.Contains(err.Error(), "root") {
		t.Fatalf("want BadRootTag error, got %v", err)
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	if _, err := Parse("   "); err == nil {
		t.Fatal("empty body must fail")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("<WMS_Capabilities><unclosed"); err == nil {
		t.Fatal("malformed XML must fail")
	}
}

func TestStripDTD(t *testing.T) {
	stripped, ok := stripDTD(wms111Doc)
	if !ok {
		t.Fatal("stripDTD found nothing to strip")
	}
	if strings.Contains(stripped, "DOCTYPE") {
		t.Fatal("DTD is still present after stripping")
	}
	if !strings.Contains(stripped, "<WMT_MS_Capabilities") {
		t.Fatal("root element was lost while stripping")
	}
}
