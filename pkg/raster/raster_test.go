package raster

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPNG(t *testing.T, path string, w, h int, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		img.Pix[i*4+0] = c.R
		img.Pix[i*4+1] = c.G
		img.Pix[i*4+2] = c.B
		img.Pix[i*4+3] = c.A
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestOpenReadOnlyPNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tile.png")
	writeTestPNG(t, path, 8, 4, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	var backend GoBackend
	ds, err := backend.OpenReadOnly(path)
	require.NoError(t, err)
	defer ds.Close()

	assert.Equal(t, 8, ds.Width())
	assert.Equal(t, 4, ds.Height())

	r, g, b, a, err := ds.RGBA()
	require.NoError(t, err)
	assert.Equal(t, uint8(10), r[0])
	assert.Equal(t, uint8(20), g[0])
	assert.Equal(t, uint8(30), b[0])
	assert.Equal(t, uint8(255), a[0])
}

func TestOpenReadOnlyPaletted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pal.png")

	img := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{
		color.NRGBA{R: 255, A: 255},
		color.NRGBA{G: 255, A: 255},
	})
	for i := range img.Pix {
		img.Pix[i] = 1
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	var backend GoBackend
	ds, err := backend.OpenReadOnly(path)
	require.NoError(t, err)
	defer ds.Close()

	assert.Equal(t, 1, ds.BandCount())
	require.NotNil(t, ds.ColorTable(1))

	_, g, _, a, err := ds.RGBA()
	require.NoError(t, err)
	assert.Equal(t, uint8(255), g[0], "palette entry 1 is green")
	assert.Equal(t, uint8(255), a[0])
}

func TestGeoTiffRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.tiff")

	var backend GoBackend
	ds, err := backend.CreateGeoTiff(path, 4, 3, 4)
	require.NoError(t, err)

	n := 4 * 3
	for band := 1; band <= 4; band++ {
		plane := make([]byte, n)
		for i := range plane {
			plane[i] = byte(band * 10)
		}
		require.NoError(t, ds.WriteBand(band, plane))
	}
	gt := GeoTransform{100, 0.5, 0, 200, 0, -0.25}
	ds.SetGeoTransform(gt)
	ds.SetProjection("EPSG:3857")
	require.NoError(t, ds.Close())

	back, err := backend.OpenReadOnly(path)
	require.NoError(t, err)
	defer back.Close()

	assert.Equal(t, 4, back.Width())
	assert.Equal(t, 3, back.Height())

	gotGT, ok := back.GeoTransform()
	require.True(t, ok, "georeferencing must survive the round trip")
	for i := range gt {
		assert.InDelta(t, gt[i], gotGT[i], 1e-9, "gt[%d]", i)
	}
	assert.Equal(t, "EPSG:3857", back.Projection())

	r, g, b, a, err := back.RGBA()
	require.NoError(t, err)
	assert.Equal(t, uint8(10), r[0])
	assert.Equal(t, uint8(20), g[0])
	assert.Equal(t, uint8(30), b[0])
	assert.Equal(t, uint8(40), a[0])
}

func TestGeoTransformInvert(t *testing.T) {
	gt := GeoTransform{100, 0.5, 0, 200, 0, -0.25}
	inv, ok := gt.Invert()
	require.True(t, ok)

	x, y := gt.Apply(10, 20)
	col, row := inv.Apply(x, y)
	assert.InDelta(t, 10, col, 1e-9)
	assert.InDelta(t, 20, row, 1e-9)

	_, ok = (GeoTransform{0, 0, 0, 0, 0, 0}).Invert()
	assert.False(t, ok, "singular transform must not invert")
}

func TestWarpIdentity(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.tiff")
	writeTestPNG(t, in, 4, 4, color.NRGBA{R: 77, G: 88, B: 99, A: 255})

	var backend GoBackend
	gt := GeoTransform{0, 10, 0, 40, 0, -10}
	err := backend.Warp(in, out, "EPSG:3857", "EPSG:3857", WarpOptions{
		Resampling:         NearestNeighbour,
		SourceGeoTransform: &gt,
	})
	require.NoError(t, err)

	ds, err := backend.OpenReadOnly(out)
	require.NoError(t, err)
	defer ds.Close()

	r, _, _, a, err := ds.RGBA()
	require.NoError(t, err)
	assert.Equal(t, uint8(77), r[0])
	assert.Equal(t, uint8(255), a[0])

	gotGT, ok := ds.GeoTransform()
	require.True(t, ok)
	assert.InDelta(t, 10.0, gotGT[1], 1e-9)
}

func TestWarpReprojects(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.tiff")
	writeTestPNG(t, in, 16, 16, color.NRGBA{R: 200, A: 255})

	var backend GoBackend
	// One degree square at the equator.
	gt := GeoTransform{0, 1.0 / 16, 0, 1, 0, -1.0 / 16}
	err := backend.Warp(in, out, "EPSG:4326", "EPSG:3857", WarpOptions{
		Resampling:         NearestNeighbour,
		SourceGeoTransform: &gt,
	})
	require.NoError(t, err)

	ds, err := backend.OpenReadOnly(out)
	require.NoError(t, err)
	defer ds.Close()

	gotGT, ok := ds.GeoTransform()
	require.True(t, ok)
	// One degree is ~111.3 km in Web Mercator at the equator.
	assert.InDelta(t, 111319.49, gotGT[1]*16, 200)
	assert.Equal(t, "EPSG:3857", ds.Projection())

	// The center pixel survives with its color.
	r, _, _, _, err := ds.RGBA()
	require.NoError(t, err)
	assert.Equal(t, uint8(200), r[8*16+8])
}
