package weaver

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mapweave/mapweave/pkg/geo"
)

func capabilitiesXML(baseURL string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Capabilities xmlns="http://www.opengis.net/wmts/1.0"
              xmlns:ows="http://www.opengis.net/ows/1.1"
              xmlns:xlink="http://www.w3.org/1999/xlink" version="1.0.0">
  <ows:ServiceIdentification><ows:Title>weave test</ows:Title></ows:ServiceIdentification>
  <ows:OperationsMetadata>
    <ows:Operation name="GetTile">
      <ows:DCP><ows:HTTP><ows:Get xlink:href="%s/"/></ows:HTTP></ows:DCP>
    </ows:Operation>
  </ows:OperationsMetadata>
  <Contents>
    <Layer>
      <ows:Identifier>img</ows:Identifier>
      <ows:Title>Imagery</ows:Title>
      <ows:WGS84BoundingBox>
        <ows:LowerCorner>-180 -85</ows:LowerCorner>
        <ows:UpperCorner>180 85</ows:UpperCorner>
      </ows:WGS84BoundingBox>
      <Style isDefault="true"><ows:Identifier>default</ows:Identifier></Style>
      <Format>image/png</Format>
      <TileMatrixSetLink><TileMatrixSet>GoogleMapsCompatible</TileMatrixSet></TileMatrixSetLink>
    </Layer>
    <TileMatrixSet>
      <ows:Identifier>GoogleMapsCompatible</ows:Identifier>
      <ows:SupportedCRS>urn:ogc:def:crs:EPSG::3857</ows:SupportedCRS>
      <TileMatrix>
        <ows:Identifier>2</ows:Identifier>
        <ScaleDenominator>139770566.00717944</ScaleDenominator>
        <TopLeftCorner>-20037508.342789244 20037508.342789244</TopLeftCorner>
        <TileWidth>256</TileWidth>
        <TileHeight>256</TileHeight>
        <MatrixWidth>4</MatrixWidth>
        <MatrixHeight>4</MatrixHeight>
      </TileMatrix>
      <TileMatrix>
        <ows:Identifier>3</ows:Identifier>
        <ScaleDenominator>69885283.00358972</ScaleDenominator>
        <TopLeftCorner>-20037508.342789244 20037508.342789244</TopLeftCorner>
        <TileWidth>256</TileWidth>
        <TileHeight>256</TileHeight>
        <MatrixWidth>8</MatrixWidth>
        <MatrixHeight>8</MatrixHeight>
      </TileMatrix>
    </TileMatrixSet>
  </Contents>
</Capabilities>`, baseURL)
}

func tinyPNG() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 256, 256))
	for i := 0; i < 256*256; i++ {
		img.Pix[i*4] = 128
		img.Pix[i*4+3] = 255
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func TestWeaverEndToEnd(t *testing.T) {
	tile := tinyPNG()
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("REQUEST") == "GetTile":
			w.Write(tile)
		default:
			w.Write([]byte(capabilitiesXML(ts.URL)))
		}
	}))
	defer ts.Close()

	w := New(t.TempDir(), nil, zerolog.Nop())

	xml, err := w.Fetch(ts.URL + "/wmts?SERVICE=WMTS&REQUEST=GetCapabilities")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if _, err := w.Parse(xml); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if !w.IsWmtsLayer("Imagery") {
		t.Fatal("Imagery should be a WMTS layer")
	}
	if got := w.ListTileMatrixSets("Imagery"); len(got) != 1 || got[0] != "GoogleMapsCompatible" {
		t.Fatalf("matrix sets = %v", got)
	}
	if got := w.LayerCrs("Imagery", "GoogleMapsCompatible"); got != "EPSG:3857" {
		t.Fatalf("layer CRS = %q", got)
	}

	req := PlanRequest{
		LayerTitle:        "Imagery",
		TileMatrixSetName: "GoogleMapsCompatible",
		Format:            "image/png",
		Style:             "default",
		Viewport:          geo.NewBoundingBox("CRS:84", -50, -40, 50, 40),
		TargetCrsID:       "EPSG:3857",
	}
	plan, err := w.Plan(req)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan) == 0 {
		t.Fatal("empty plan")
	}

	var ticks int
	result, err := w.Execute(plan, req, ExecuteOptions{
		TargetCrsID: "EPSG:3857",
		Concurrency: 3,
		OnTileDone:  func() { ticks++ },
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.TileErrors != nil {
		t.Fatalf("tile errors: %v", result.TileErrors)
	}
	if result.MosaicPath == "" {
		t.Fatal("no mosaic produced")
	}

	ds, err := w.Backend.OpenReadOnly(result.MosaicPath)
	if err != nil {
		t.Fatalf("mosaic unreadable: %v", err)
	}
	defer ds.Close()
	if ds.Width() == 0 || ds.Height() == 0 {
		t.Fatal("empty mosaic")
	}
}

func TestClampViewportRespectsLayerExtent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	w := New(t.TempDir(), nil, zerolog.Nop())
	if _, err := w.Parse(capabilitiesXML("https://example.com")); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// A viewport entirely outside the layer extent must fail the plan.
	req := PlanRequest{
		LayerTitle:        "Imagery",
		TileMatrixSetName: "GoogleMapsCompatible",
		Format:            "image/png",
		Viewport:          geo.NewBoundingBox("CRS:84", -179, 88, -178, 89),
		TargetCrsID:       "EPSG:4326",
	}
	if _, err := w.Plan(req); err == nil {
		t.Fatal("plan must fail for a viewport outside the layer extent")
	}
}
