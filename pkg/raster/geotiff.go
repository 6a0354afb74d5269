package raster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/mapweave/mapweave/pkg/crs"
)

// Minimal GeoTIFF I/O: uncompressed chunky RGBA strips plus the
// ModelPixelScale / ModelTiepoint / GeoKeyDirectory tags. Enough for the
// scratch mosaics this tool produces and reads back.

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagExtraSamples    = 338
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGeoAsciiParams  = 34737

	typeShort  = 3
	typeLong   = 4
	typeAscii  = 2
	typeDouble = 12

	geoKeyModelType      = 1024
	geoKeyRasterType     = 1025
	geoKeyCitation       = 1026
	geoKeyGeographicType = 2048
	geoKeyProjectedType  = 3072
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	// value holds the raw little-endian payload; 4 bytes or less stay
	// inline, larger payloads move to the overflow area.
	value []byte
}

func shortEntry(tag uint16, vals ...uint16) ifdEntry {
	buf := new(bytes.Buffer)
	for _, v := range vals {
		binary.Write(buf, binary.LittleEndian, v)
	}
	return ifdEntry{tag: tag, typ: typeShort, count: uint32(len(vals)), value: buf.Bytes()}
}

func longEntry(tag uint16, vals ...uint32) ifdEntry {
	buf := new(bytes.Buffer)
	for _, v := range vals {
		binary.Write(buf, binary.LittleEndian, v)
	}
	return ifdEntry{tag: tag, typ: typeLong, count: uint32(len(vals)), value: buf.Bytes()}
}

func doubleEntry(tag uint16, vals ...float64) ifdEntry {
	buf := new(bytes.Buffer)
	for _, v := range vals {
		binary.Write(buf, binary.LittleEndian, v)
	}
	return ifdEntry{tag: tag, typ: typeDouble, count: uint32(len(vals)), value: buf.Bytes()}
}

func asciiEntry(tag uint16, s string) ifdEntry {
	b := append([]byte(s), 0)
	return ifdEntry{tag: tag, typ: typeAscii, count: uint32(len(b)), value: b}
}

// writeGeoTiff encodes a 4-band memDataset as an uncompressed GeoTIFF.
func writeGeoTiff(d *memDataset) error {
	if d.bandCount != 4 {
		return errors.Errorf("GeoTIFF writer needs 4 bands, got %d", d.bandCount)
	}
	n := d.width * d.height
	pixels := make([]byte, n*4)
	for i := 0; i < n; i++ {
		pixels[i*4+0] = d.bands[0][i]
		pixels[i*4+1] = d.bands[1][i]
		pixels[i*4+2] = d.bands[2][i]
		pixels[i*4+3] = d.bands[3][i]
	}

	entries := []ifdEntry{
		longEntry(tagImageWidth, uint32(d.width)),
		longEntry(tagImageLength, uint32(d.height)),
		shortEntry(tagBitsPerSample, 8, 8, 8, 8),
		shortEntry(tagCompression, 1),
		shortEntry(tagPhotometric, 2),
		longEntry(tagStripOffsets, 0), // fixed up below
		shortEntry(tagSamplesPerPixel, 4),
		longEntry(tagRowsPerStrip, uint32(d.height)),
		longEntry(tagStripByteCounts, uint32(len(pixels))),
		shortEntry(tagPlanarConfig, 1),
		shortEntry(tagExtraSamples, 2),
	}

	if d.hasGT {
		// Only axis-aligned transforms occur here; the shear terms of the
		// planner affines are always zero.
		entries = append(entries,
			doubleEntry(tagModelPixelScale, d.gt[1], -d.gt[5], 0),
			doubleEntry(tagModelTiepoint, 0, 0, 0, d.gt[0], d.gt[3], 0),
		)
	}
	if d.projection != "" {
		entries = append(entries, geoKeyEntries(d.projection)...)
	}

	// Layout: header (8) + entry count (2) + entries (12 each) + next IFD
	// pointer (4) + overflow payloads + pixel strip.
	numEntries := len(entries)
	overflowStart := uint32(8 + 2 + numEntries*12 + 4)
	overflow := new(bytes.Buffer)
	for i := range entries {
		if len(entries[i].value) > 4 {
			offset := overflowStart + uint32(overflow.Len())
			payload := entries[i].value
			entries[i].value = make([]byte, 4)
			binary.LittleEndian.PutUint32(entries[i].value, offset)
			overflow.Write(payload)
			if overflow.Len()%2 == 1 {
				overflow.WriteByte(0)
			}
		}
	}
	stripOffset := overflowStart + uint32(overflow.Len())
	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			binary.LittleEndian.PutUint32(entries[i].value, stripOffset)
		}
	}

	out := new(bytes.Buffer)
	out.WriteString("II")
	binary.Write(out, binary.LittleEndian, uint16(42))
	binary.Write(out, binary.LittleEndian, uint32(8))
	binary.Write(out, binary.LittleEndian, uint16(numEntries))
	for _, e := range entries {
		binary.Write(out, binary.LittleEndian, e.tag)
		binary.Write(out, binary.LittleEndian, e.typ)
		binary.Write(out, binary.LittleEndian, e.count)
		v := e.value
		for len(v) < 4 {
			v = append(v, 0)
		}
		out.Write(v[:4])
	}
	binary.Write(out, binary.LittleEndian, uint32(0))
	out.Write(overflow.Bytes())
	out.Write(pixels)

	if err := os.WriteFile(d.path, out.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "failed writing geotiff %s", d.path)
	}
	return nil
}

// geoKeyEntries renders the projection as GeoTIFF keys: the EPSG code when
// the CRS carries one, a citation string otherwise.
func geoKeyEntries(crsID string) []ifdEntry {
	resolved, err := crs.Resolve(crsID)
	if err != nil {
		return []ifdEntry{asciiEntry(tagGeoAsciiParams, crsID)}
	}

	modelType := uint16(1)
	codeKey := uint16(geoKeyProjectedType)
	if resolved.IsGeographic() {
		modelType = 2
		codeKey = geoKeyGeographicType
	}

	keys := []uint16{
		1, 1, 0, 3, // version, revision, minor, key count
		geoKeyModelType, 0, 1, modelType,
		geoKeyRasterType, 0, 1, 1,
	}
	if code := resolved.EpsgCode(); code > 0 && code <= 65535 {
		keys = append(keys, codeKey, 0, 1, uint16(code))
	} else {
		keys = append(keys, geoKeyCitation, tagGeoAsciiParams, uint16(len(crsID)+1), 0)
		keys[3] = 3
		return []ifdEntry{
			shortEntry(tagGeoKeyDirectory, keys...),
			asciiEntry(tagGeoAsciiParams, crsID+"|"),
		}
	}
	return []ifdEntry{shortEntry(tagGeoKeyDirectory, keys...)}
}

// readGeoTiffTags extracts the geotransform and projection from a GeoTIFF,
// returning ok=false when the file carries no georeferencing.
func readGeoTiffTags(data []byte) (GeoTransform, string, bool) {
	if len(data) < 8 {
		return GeoTransform{}, "", false
	}
	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return GeoTransform{}, "", false
	}
	if order.Uint16(data[2:4]) != 42 {
		return GeoTransform{}, "", false
	}
	ifdOffset := order.Uint32(data[4:8])
	if int(ifdOffset)+2 > len(data) {
		return GeoTransform{}, "", false
	}
	numEntries := int(order.Uint16(data[ifdOffset : ifdOffset+2]))

	var scale, tiepoint []float64
	var geoKeys []uint16
	var asciiParams string

	for i := 0; i < numEntries; i++ {
		base := int(ifdOffset) + 2 + i*12
		if base+12 > len(data) {
			break
		}
		tag := order.Uint16(data[base : base+2])
		typ := order.Uint16(data[base+2 : base+4])
		count := order.Uint32(data[base+4 : base+8])

		payloadLen := int(count) * typeSize(typ)
		var payload []byte
		if payloadLen <= 4 {
			payload = data[base+8 : base+8+payloadLen]
		} else {
			off := order.Uint32(data[base+8 : base+12])
			if int(off)+payloadLen > len(data) {
				continue
			}
			payload = data[off : int(off)+payloadLen]
		}

		switch tag {
		case tagModelPixelScale:
			scale = readDoubles(payload, order)
		case tagModelTiepoint:
			tiepoint = readDoubles(payload, order)
		case tagGeoKeyDirectory:
			geoKeys = readShorts(payload, order)
		case tagGeoAsciiParams:
			asciiParams = strings.TrimRight(string(payload), "\x00")
		}
	}

	if len(scale) < 2 || len(tiepoint) < 6 {
		return GeoTransform{}, "", false
	}
	gt := GeoTransform{
		tiepoint[3] - tiepoint[0]*scale[0],
		scale[0],
		0,
		tiepoint[4] + tiepoint[1]*scale[1],
		0,
		-scale[1],
	}

	proj := ""
	for i := 4; i+4 <= len(geoKeys); i += 4 {
		key, loc, _, value := geoKeys[i], geoKeys[i+1], geoKeys[i+2], geoKeys[i+3]
		switch key {
		case geoKeyGeographicType, geoKeyProjectedType:
			if loc == 0 && value > 0 && value < 32767 {
				proj = fmt.Sprintf("EPSG:%d", value)
			}
		case geoKeyCitation:
			if loc == tagGeoAsciiParams && proj == "" && asciiParams != "" {
				proj = strings.TrimSuffix(asciiParams, "|")
			}
		}
	}
	return gt, proj, true
}

func typeSize(typ uint16) int {
	switch typ {
	case typeShort:
		return 2
	case typeLong:
		return 4
	case typeDouble:
		return 8
	case typeAscii:
		return 1
	default:
		return 1
	}
}

func readDoubles(payload []byte, order binary.ByteOrder) []float64 {
	out := make([]float64, 0, len(payload)/8)
	for i := 0; i+8 <= len(payload); i += 8 {
		bits := order.Uint64(payload[i : i+8])
		out = append(out, float64FromBits(bits))
	}
	return out
}

func readShorts(payload []byte, order binary.ByteOrder) []uint16 {
	out := make([]uint16, 0, len(payload)/2)
	for i := 0; i+2 <= len(payload); i += 2 {
		out = append(out, order.Uint16(payload[i:i+2]))
	}
	return out
}

func float64FromBits(bits uint64) float64 {
	return math.Float64frombits(bits)
}
