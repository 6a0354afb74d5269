// Package raster is the minimal raster contract the download engine needs:
// open tile images, create GeoTIFF outputs, and warp between coordinate
// reference systems. The default backend is pure Go; a GDAL-backed
// implementation can be swapped in behind the same interface.
package raster

// Resampling names the warp resampling method.
type Resampling int

const (
	NearestNeighbour Resampling = iota
	Bilinear
)

// GeoTransform is the 6-element affine mapping pixel to geo coordinates:
// xGeo = gt[0] + col*gt[1] + row*gt[2]; yGeo = gt[3] + col*gt[4] + row*gt[5].
type GeoTransform [6]float64

// Apply maps a pixel coordinate to geo coordinates.
func (gt GeoTransform) Apply(col, row float64) (float64, float64) {
	return gt[0] + gt[1]*col + gt[2]*row, gt[3] + gt[4]*col + gt[5]*row
}

// Invert returns the inverse transform. The second return is false when the
// transform is singular.
func (gt GeoTransform) Invert() (GeoTransform, bool) {
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if det == 0 {
		return GeoTransform{}, false
	}
	inv := 1 / det
	return GeoTransform{
		(gt[2]*gt[3] - gt[0]*gt[5]) * inv,
		gt[5] * inv,
		-gt[2] * inv,
		(gt[0]*gt[4] - gt[1]*gt[3]) * inv,
		-gt[4] * inv,
		gt[1] * inv,
	}, true
}

// ColorTable maps palette indices to RGBA entries.
type ColorTable [][4]uint8

// Dataset is one opened raster. Band indices are 1-based, GDAL style.
type Dataset interface {
	Width() int
	Height() int
	BandCount() int

	// ReadBand returns the u8 pixels of band i, row-major.
	ReadBand(i int) ([]byte, error)
	// WriteBand replaces the u8 pixels of band i.
	WriteBand(i int, pixels []byte) error
	// ColorTable returns the palette attached to band i, nil when none.
	ColorTable(i int) ColorTable

	// RGBA returns the dataset expanded to four row-major band planes
	// following the usual conventions: palette lookup for 1-band paletted,
	// gray broadcast with alpha=gray for bare 1-band, opaque for 3-band,
	// passthrough for 4-band.
	RGBA() (r, g, b, a []byte, err error)

	SetProjection(crsID string)
	Projection() string
	SetGeoTransform(gt GeoTransform)
	GeoTransform() (GeoTransform, bool)

	Close() error
}

// WarpOptions tune Backend.Warp.
type WarpOptions struct {
	Resampling     Resampling
	ErrorThreshold float64
	// SourceGeoTransform supplies the input georeferencing when the input
	// file format cannot carry one (plain png/jpg/webp tiles).
	SourceGeoTransform *GeoTransform
}

// Backend is the raster library contract.
type Backend interface {
	// RegisterDrivers is idempotent global setup.
	RegisterDrivers()

	OpenReadOnly(path string) (Dataset, error)

	// CreateGeoTiff makes a writable u8 dataset that is encoded to path as
	// a GeoTIFF on Close.
	CreateGeoTiff(path string, width, height, bandCount int) (Dataset, error)

	// Warp reprojects inPath into dstCrsID and writes a GeoTIFF at
	// outPath.
	Warp(inPath, outPath, srcCrsID, dstCrsID string, opts WarpOptions) error
}
