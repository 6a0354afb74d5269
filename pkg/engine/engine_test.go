package engine

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mapweave/mapweave/pkg/geo"
	"github.com/mapweave/mapweave/pkg/ogc"
	"github.com/mapweave/mapweave/pkg/raster"
	"github.com/mapweave/mapweave/pkg/transport"
)

const testTileSize = 4

func tilePNG(c color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, testTileSize, testTileSize))
	for i := 0; i < testTileSize*testTileSize; i++ {
		img.Pix[i*4+0] = c.R
		img.Pix[i*4+1] = c.G
		img.Pix[i*4+2] = c.B
		img.Pix[i*4+3] = c.A
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

// testPlan builds a 2x1 tile plan in EPSG:3857 addressed at the given
// server.
func testPlan(t *testing.T, dir, serverURL string) []ogc.TileRequest {
	t.Helper()
	const span = 100.0 // geo units per tile
	var plan []ogc.TileRequest
	for col := 0; col < 2; col++ {
		left := float64(col) * span
		plan = append(plan, ogc.TileRequest{
			Level:           2,
			Row:             0,
			Col:             col,
			NumWidthPixels:  testTileSize,
			NumHeightPixels: testTileSize,
			LeftTopPtX:      left,
			LeftTopPtY:      span,
			Bbox:            geo.NewBoundingBox("EPSG:3857", left, 0, left+span, span),
			URL:             fmt.Sprintf("%s/tile/0/%d", serverURL, col),
			FilePath:        filepath.Join(dir, fmt.Sprintf("tile_2_0_%d.png", col)),
			LayerTitle:      "img",
			LayerName:       "img",
			TileMatrixSetID: "GoogleMapsCompatible",
			Format:          "image/png",
			Style:           "default",
			Version:         "1.0.0",
		})
	}
	return plan
}

func newTestEngine() *Engine {
	return &Engine{
		Backend:     raster.GoBackend{},
		Client:      &transport.Client{},
		Concurrency: 4,
		Logger:      zerolog.Nop(),
	}
}

func TestExecuteDownloadsAndMosaics(t *testing.T) {
	red := tilePNG(color.NRGBA{R: 255, A: 255})
	blue := tilePNG(color.NRGBA{B: 255, A: 255})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tile/0/0" {
			w.Write(red)
			return
		}
		w.Write(blue)
	}))
	defer ts.Close()

	dir := t.TempDir()
	plan := testPlan(t, dir, ts.URL)

	eng := newTestEngine()
	result, err := eng.Execute(plan, "EPSG:3857")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.TileErrors != nil {
		t.Fatalf("unexpected tile errors: %v", result.TileErrors)
	}

	ds, err := eng.Backend.OpenReadOnly(result.MosaicPath)
	if err != nil {
		t.Fatalf("cannot open mosaic: %v", err)
	}
	defer ds.Close()

	if ds.Width() != 2*testTileSize || ds.Height() != testTileSize {
		t.Fatalf("mosaic size = %dx%d", ds.Width(), ds.Height())
	}
	r, _, b, _, err := ds.RGBA()
	if err != nil {
		t.Fatal(err)
	}
	// Left tile red, right tile blue.
	if r[0] != 255 || b[0] != 0 {
		t.Fatalf("left tile pixel = r%d b%d", r[0], b[0])
	}
	right := testTileSize + 1
	if r[right] != 0 || b[right] != 255 {
		t.Fatalf("right tile pixel = r%d b%d", r[right], b[right])
	}

	gt, ok := ds.GeoTransform()
	if !ok {
		t.Fatal("mosaic lost its georeferencing")
	}
	if gt[0] != 0 || gt[3] != 100 {
		t.Fatalf("mosaic origin = (%v, %v)", gt[0], gt[3])
	}
	if gt[1] != 100.0/testTileSize {
		t.Fatalf("mosaic pixel size = %v", gt[1])
	}
}

func TestExecuteKeepsPartialFailures(t *testing.T) {
	good := tilePNG(color.NRGBA{G: 255, A: 255})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tile/0/0" {
			w.Write(good)
			return
		}
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	dir := t.TempDir()
	plan := testPlan(t, dir, ts.URL)

	eng := newTestEngine()
	result, err := eng.Execute(plan, "EPSG:3857")
	if err != nil {
		t.Fatalf("Execute failed despite one good tile: %v", err)
	}
	if result.TileErrors == nil {
		t.Fatal("missing aggregated error for the failed tile")
	}

	ds, err := eng.Backend.OpenReadOnly(result.MosaicPath)
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()
	// The failed tile is left out of the mosaic; the canvas spans only the
	// good tile.
	if ds.Width() != testTileSize {
		t.Fatalf("mosaic width = %d", ds.Width())
	}
}

func TestExecuteReplansWhenAllTilesAreXml(t *testing.T) {
	xmlBody := []byte(`<?xml version="1.0"?><ServiceExceptionReport/>`)
	good := tilePNG(color.NRGBA{R: 1, G: 2, B: 3, A: 255})

	var replans int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("good") == "1" {
			w.Write(good)
			return
		}
		w.Write(xmlBody)
	}))
	defer ts.Close()

	dir := t.TempDir()
	plan := testPlan(t, dir, ts.URL)

	eng := newTestEngine()
	eng.Replan = func(useXlinkHref bool) ([]ogc.TileRequest, error) {
		atomic.AddInt32(&replans, 1)
		if !useXlinkHref {
			t.Error("replan must prefer the xlink:href endpoints")
		}
		fixed := testPlan(t, dir, ts.URL)
		for i := range fixed {
			fixed[i].URL += "?good=1"
		}
		return fixed, nil
	}

	result, err := eng.Execute(plan, "EPSG:3857")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := atomic.LoadInt32(&replans); got != 1 {
		t.Fatalf("replanned %d times, want exactly 1", got)
	}
	if result.TileErrors != nil {
		t.Fatalf("tiles failed after replan: %v", result.TileErrors)
	}
}

func TestProcessTileRejectsXmlBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?><err/>`))
	}))
	defer ts.Close()

	dir := t.TempDir()
	plan := testPlan(t, dir, ts.URL)

	eng := newTestEngine()
	_, err := eng.processTile(plan[0], "EPSG:3857")
	te, ok := transport.AsError(err)
	if !ok || te.Kind != transport.KindXMLBody {
		t.Fatalf("want XML classification, got %v", err)
	}
}
