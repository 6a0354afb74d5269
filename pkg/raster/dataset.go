package raster

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
	"golang.org/x/image/tiff"
)

// GoBackend is the pure-Go raster backend.
type GoBackend struct{}

var registerOnce sync.Once

// RegisterDrivers is a no-op for the pure-Go backend beyond satisfying the
// once-only contract.
func (GoBackend) RegisterDrivers() {
	registerOnce.Do(func() {})
}

// memDataset holds a decoded raster in band planes.
type memDataset struct {
	path      string
	width     int
	height    int
	bandCount int
	bands     [][]byte
	palette   ColorTable

	projection string
	gt         GeoTransform
	hasGT      bool

	// writable datasets are encoded to disk on Close
	writable bool
	closed   bool
}

func (d *memDataset) Width() int     { return d.width }
func (d *memDataset) Height() int    { return d.height }
func (d *memDataset) BandCount() int { return d.bandCount }

func (d *memDataset) ReadBand(i int) ([]byte, error) {
	if i < 1 || i > d.bandCount {
		return nil, errors.Errorf("band %d out of range 1..%d", i, d.bandCount)
	}
	out := make([]byte, len(d.bands[i-1]))
	copy(out, d.bands[i-1])
	return out, nil
}

func (d *memDataset) WriteBand(i int, pixels []byte) error {
	if i < 1 || i > d.bandCount {
		return errors.Errorf("band %d out of range 1..%d", i, d.bandCount)
	}
	if len(pixels) != d.width*d.height {
		return errors.Errorf("band %d: got %d pixels, want %d", i, len(pixels), d.width*d.height)
	}
	copy(d.bands[i-1], pixels)
	return nil
}

func (d *memDataset) ColorTable(i int) ColorTable {
	if i != 1 {
		return nil
	}
	return d.palette
}

func (d *memDataset) RGBA() (r, g, b, a []byte, err error) {
	n := d.width * d.height
	switch d.bandCount {
	case 1:
		idx := d.bands[0]
		r = make([]byte, n)
		g = make([]byte, n)
		b = make([]byte, n)
		a = make([]byte, n)
		if d.palette != nil {
			for i, v := range idx {
				if int(v) < len(d.palette) {
					e := d.palette[v]
					r[i], g[i], b[i], a[i] = e[0], e[1], e[2], e[3]
				}
			}
		} else {
			copy(r, idx)
			copy(g, idx)
			copy(b, idx)
			copy(a, idx)
		}
		return r, g, b, a, nil
	case 3:
		a = make([]byte, n)
		for i := range a {
			a[i] = 255
		}
		return d.bands[0], d.bands[1], d.bands[2], a, nil
	case 4:
		return d.bands[0], d.bands[1], d.bands[2], d.bands[3], nil
	}
	return nil, nil, nil, nil, errors.Errorf("unsupported band count %d", d.bandCount)
}

func (d *memDataset) SetProjection(crsID string) { d.projection = crsID }
func (d *memDataset) Projection() string         { return d.projection }

func (d *memDataset) SetGeoTransform(gt GeoTransform) {
	d.gt = gt
	d.hasGT = true
}

func (d *memDataset) GeoTransform() (GeoTransform, bool) { return d.gt, d.hasGT }

func (d *memDataset) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if !d.writable {
		return nil
	}
	return writeGeoTiff(d)
}

// OpenReadOnly decodes a tile image from disk. GeoTIFF files keep their
// georeferencing; other formats open without one.
func (GoBackend) OpenReadOnly(path string) (Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed opening raster %s", path)
	}
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".tif" || ext == ".tiff" {
		return openTiff(path, data)
	}

	var img image.Image
	switch ext {
	case ".png":
		img, err = png.Decode(bytes.NewReader(data))
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	case ".webp":
		img, err = webp.Decode(bytes.NewReader(data))
	default:
		// Trust the magic bytes over the extension.
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed decoding raster %s", path)
	}
	return datasetFromImage(path, img), nil
}

func openTiff(path string, data []byte) (Dataset, error) {
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "failed decoding tiff %s", path)
	}
	ds := datasetFromImage(path, img)
	md := ds.(*memDataset)
	if gt, proj, ok := readGeoTiffTags(data); ok {
		md.gt = gt
		md.hasGT = true
		md.projection = proj
	}
	return ds, nil
}

// datasetFromImage splits a decoded image into band planes, keeping
// paletted and gray sources as single-band data.
func datasetFromImage(path string, img image.Image) Dataset {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	d := &memDataset{path: path, width: w, height: h}

	switch src := img.(type) {
	case *image.Paletted:
		d.bandCount = 1
		plane := make([]byte, w*h)
		for y := 0; y < h; y++ {
			copy(plane[y*w:(y+1)*w], src.Pix[y*src.Stride:y*src.Stride+w])
		}
		d.bands = [][]byte{plane}
		d.palette = make(ColorTable, len(src.Palette))
		for i, c := range src.Palette {
			r, g, b, a := c.RGBA()
			d.palette[i] = [4]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
		}
		return d
	case *image.Gray:
		d.bandCount = 1
		plane := make([]byte, w*h)
		for y := 0; y < h; y++ {
			copy(plane[y*w:(y+1)*w], src.Pix[y*src.Stride:y*src.Stride+w])
		}
		d.bands = [][]byte{plane}
		return d
	}

	if src, ok := img.(*image.NRGBA); ok {
		// Straight (non-premultiplied) channels copied verbatim so low
		// alpha values survive.
		d.bandCount = 4
		r := make([]byte, w*h)
		g := make([]byte, w*h)
		b := make([]byte, w*h)
		a := make([]byte, w*h)
		for y := 0; y < h; y++ {
			rowStart := y * src.Stride
			for x := 0; x < w; x++ {
				i := y*w + x
				p := rowStart + x*4
				r[i], g[i], b[i], a[i] = src.Pix[p], src.Pix[p+1], src.Pix[p+2], src.Pix[p+3]
			}
		}
		d.bands = [][]byte{r, g, b, a}
		return d
	}

	// Everything else lands in four planes via the generic accessor.
	d.bandCount = 4
	r := make([]byte, w*h)
	g := make([]byte, w*h)
	b := make([]byte, w*h)
	a := make([]byte, w*h)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			cr, cg, cb, ca := img.At(x, y).RGBA()
			r[i], g[i], b[i], a[i] = uint8(cr>>8), uint8(cg>>8), uint8(cb>>8), uint8(ca>>8)
			i++
		}
	}
	d.bands = [][]byte{r, g, b, a}
	return d
}

// CreateGeoTiff makes a writable dataset persisted as a GeoTIFF on Close.
func (GoBackend) CreateGeoTiff(path string, width, height, bandCount int) (Dataset, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid raster size %dx%d", width, height)
	}
	if bandCount != 4 {
		return nil, errors.Errorf("GeoTIFF output supports 4 bands, got %d", bandCount)
	}
	d := &memDataset{
		path:      path,
		width:     width,
		height:    height,
		bandCount: bandCount,
		writable:  true,
	}
	d.bands = make([][]byte, bandCount)
	for i := range d.bands {
		d.bands[i] = make([]byte, width*height)
	}
	return d, nil
}
