package ogc

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func wmtsDoc(getTileURL string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Capabilities xmlns="http://www.opengis.net/wmts/1.0"
              xmlns:ows="http://www.opengis.net/ows/1.1"
              xmlns:xlink="http://www.w3.org/1999/xlink" version="1.0.0">
  <ows:ServiceIdentification>
    <ows:Title>Tile Server</ows:Title>
  </ows:ServiceIdentification>
  <ows:OperationsMetadata>
    <ows:Operation name="GetTile">
      <ows:DCP>
        <ows:HTTP>
          <ows:Get xlink:href="%s">
            <ows:Constraint name="GetEncoding">
              <ows:AllowedValues><ows:Value>kvp</ows:Value></ows:AllowedValues>
            </ows:Constraint>
          </ows:Get>
        </ows:HTTP>
      </ows:DCP>
    </ows:Operation>
  </ows:OperationsMetadata>
  <Contents>
    <Layer>
      <ows:Identifier>img</ows:Identifier>
      <ows:Title>Imagery</ows:Title>
      <ows:WGS84BoundingBox>
        <ows:LowerCorner>-180 -85.05</ows:LowerCorner>
        <ows:UpperCorner>180 85.05</ows:UpperCorner>
      </ows:WGS84BoundingBox>
      <Style isDefault="true">
        <ows:Identifier>default</ows:Identifier>
      </Style>
      <Format>image/png</Format>
      <Format>image/jpeg</Format>
      <Format>image/png</Format>
      <TileMatrixSetLink>
        <TileMatrixSet>GoogleMapsCompatible</TileMatrixSet>
        <TileMatrixSetLimits>
          <TileMatrixLimits>
            <TileMatrix>5</TileMatrix>
            <MinTileRow>10</MinTileRow>
            <MaxTileRow>14</MaxTileRow>
            <MinTileCol>6</MinTileCol>
            <MaxTileCol>9</MaxTileCol>
          </TileMatrixLimits>
          <TileMatrixLimits>
            <TileMatrix>6</TileMatrix>
            <MinTileRow>100</MinTileRow>
            <MaxTileRow>100</MaxTileRow>
            <MinTileCol>600</MinTileCol>
            <MaxTileCol>600</MaxTileCol>
          </TileMatrixLimits>
        </TileMatrixSetLimits>
      </TileMatrixSetLink>
      <ResourceURL format="image/png" resourceType="tile"
        template="https://t0.example.com/{layer}/{style}/{TileMatrixSet}/{TileMatrix}/{TileRow}/{TileCol}.png"/>
    </Layer>
    <Layer>
      <ows:Identifier>bare</ows:Identifier>
      <ows:Title>No Style No Box</ows:Title>
      <Format>image/png</Format>
    </Layer>
    <TileMatrixSet>
      <ows:Identifier>GoogleMapsCompatible</ows:Identifier>
      <ows:SupportedCRS>urn:ogc:def:crs:EPSG::3857</ows:SupportedCRS>
      <TileMatrix>
        <ows:Identifier>5</ows:Identifier>
        <ScaleDenominator>17471320.75089743</ScaleDenominator>
        <TopLeftCorner>-20037508.342789244 20037508.342789244</TopLeftCorner>
        <TileWidth>256</TileWidth>
        <TileHeight>256</TileHeight>
        <MatrixWidth>32</MatrixWidth>
        <MatrixHeight>32</MatrixHeight>
      </TileMatrix>
      <TileMatrix>
        <ows:Identifier>6</ows:Identifier>
        <ScaleDenominator>8735660.375448715</ScaleDenominator>
        <TopLeftCorner>-20037508.342789244 20037508.342789244</TopLeftCorner>
        <TileWidth>256</TileWidth>
        <TileHeight>256</TileHeight>
        <MatrixWidth>64</MatrixWidth>
        <MatrixHeight>64</MatrixHeight>
      </TileMatrix>
    </TileMatrixSet>
  </Contents>
</Capabilities>`, getTileURL)
}

func TestParseWmtsTileMatrixSet(t *testing.T) {
	model := parseDoc(t, wmtsDoc("https://example.com/wmts"))

	set, ok := model.TileMatrixSets["GoogleMapsCompatible"]
	if !ok {
		t.Fatal("GoogleMapsCompatible matrix set missing")
	}
	if set.CrsID != "EPSG:3857" {
		t.Fatalf("matrix set CRS = %q", set.CrsID)
	}

	// Ascending pixel size, levels finest first, scale denominators
	// decreasing with the level number increasing.
	var levels []int
	prevPixel := 0.0
	for pair := set.Matrices.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key <= prevPixel {
			t.Fatalf("pixel sizes not strictly ascending: %v after %v", pair.Key, prevPixel)
		}
		prevPixel = pair.Key
		levels = append(levels, LevelOf(pair.Value.Identifier))
	}
	if diff := cmp.Diff([]int{6, 5}, levels); diff != "" {
		t.Fatalf("level order mismatch (-want +got):\n%s", diff)
	}

	// pixelSize = scaleDenominator * 0.00028 for a meter-unit CRS.
	tm := set.MatrixByIdentifier("5")
	if tm == nil {
		t.Fatal("matrix 5 missing")
	}
	wantPixel := 17471320.75089743 * 0.00028
	if math.Abs(tm.PixelSize-wantPixel) > 1e-6 {
		t.Fatalf("pixelSize = %v, want %v", tm.PixelSize, wantPixel)
	}
}

func TestParseWmtsLayer(t *testing.T) {
	model := parseDoc(t, wmtsDoc("https://example.com/wmts"))

	if len(model.WmtsLayers) != 2 {
		t.Fatalf("want 2 WMTS layers, got %d", len(model.WmtsLayers))
	}
	img := model.WmtsLayers[0]

	// Formats are unique, first-seen order.
	if diff := cmp.Diff([]string{"image/png", "image/jpeg"}, img.Formats); diff != "" {
		t.Fatalf("formats mismatch (-want +got):\n%s", diff)
	}
	if img.DefaultStyle != "default" {
		t.Fatalf("default style = %q", img.DefaultStyle)
	}
	if len(img.BoundingBoxes) == 0 || img.BoundingBoxes[0].CrsID != "CRS:84" {
		t.Fatalf("WGS84BoundingBox missing: %+v", img.BoundingBoxes)
	}

	link, ok := img.MatrixSetLinks["GoogleMapsCompatible"]
	if !ok {
		t.Fatal("matrix set link missing")
	}
	// Limits on matrix 5 are inside its 32x32 dimensions and survive;
	// limits on matrix 6 point far outside 64x64 and are dropped.
	if _, ok := link.Limits["5"]; !ok {
		t.Fatal("valid limits for matrix 5 were dropped")
	}
	if _, ok := link.Limits["6"]; ok {
		t.Fatal("out-of-range limits for matrix 6 were kept")
	}

	if tpl, ok := img.GetTileTemplates["image/png"]; !ok || !strings.Contains(tpl, "{TileRow}") {
		t.Fatalf("REST template missing: %q", tpl)
	}
}

func TestParseWmtsAllowedEncodings(t *testing.T) {
	model := parseDoc(t, wmtsDoc("https://example.com/wmts"))
	if diff := cmp.Diff([]string{"KVP"}, model.Request.GetTile.AllowedEncodings); diff != "" {
		t.Fatalf("allowed encodings mismatch (-want +got):\n%s", diff)
	}
	if got := model.Request.GetTile.DcpType[0].Get; got != "https://example.com/wmts" {
		t.Fatalf("GetTile DCP = %q", got)
	}
}

func TestParseWmtsSyntheticStyleAndBoundingBoxFallback(t *testing.T) {
	model := parseDoc(t, wmtsDoc("https://example.com/wmts"))

	bare := model.WmtsLayers[1]
	style, ok := bare.Styles["default"]
	if !ok {
		t.Fatalf("synthetic default style missing: %+v", bare.Styles)
	}
	if style.Title != "Generated default style" {
		t.Fatalf("synthetic style title = %q", style.Title)
	}

	// No declared box and no matrix links: world fallback.
	if len(bare.BoundingBoxes) != 1 {
		t.Fatalf("want world fallback box, got %+v", bare.BoundingBoxes)
	}
	box := bare.BoundingBoxes[0]
	if box.CrsID != "CRS:84" || box.Rect.MinX != -180 || box.Rect.MaxY != 90 {
		t.Fatalf("fallback box = %+v", box)
	}
}

func TestParseWmtsTiandituPixelSize(t *testing.T) {
	model := parseDoc(t, wmtsDoc("https://t0.tianditu.gov.cn/img_w/wmts"))

	set := model.TileMatrixSets["GoogleMapsCompatible"]
	tm := set.MatrixByIdentifier("5")
	wantPixel := 17471320.75089743 * (0.0254 / 96)
	if math.Abs(tm.PixelSize-wantPixel) > 1e-6 {
		t.Fatalf("tianditu pixelSize = %v, want %v", tm.PixelSize, wantPixel)
	}
}
