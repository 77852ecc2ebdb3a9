package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
)

// stripTarget is the approximate uncompressed size of one written strip.
const stripTarget = 64 << 10

// Header describes an image to encode.
type Header struct {
	Width        int
	Height       int
	GeoTransform [6]float64
	EPSG         int
	Geographic   bool
	NoData       float64
	HasNoData    bool
	Compress     bool
}

type field struct {
	tag   uint16
	typ   uint16
	count int
	data  []byte
}

// Encode writes a little-endian, strip-organised, pixel-interleaved TIFF
// of float64 samples, one sample per band.
func Encode(w io.Writer, h Header, bands [][]float64) error {
	if h.Width <= 0 || h.Height <= 0 {
		return fmt.Errorf("bad image size %dx%d", h.Width, h.Height)
	}
	if len(bands) == 0 || len(bands) > math.MaxUint16 {
		return fmt.Errorf("bad band count %d", len(bands))
	}
	for i, b := range bands {
		if len(b) != h.Width*h.Height {
			return fmt.Errorf("band %d has %d samples, want %d", i+1, len(b), h.Width*h.Height)
		}
	}
	if h.GeoTransform[2] != 0 || h.GeoTransform[4] != 0 {
		return errors.New("rotated geotransform is not supported")
	}
	if h.EPSG <= 0 || h.EPSG >= userDefined {
		return fmt.Errorf("EPSG code %d cannot be written", h.EPSG)
	}

	spp := len(bands)
	rowBytes := h.Width * spp * 8
	rps := max(1, min(h.Height, stripTarget/rowBytes))
	nstrips := (h.Height + rps - 1) / rps

	strips := make([][]byte, nstrips)
	for s := range strips {
		raw := make([]byte, 0, rps*rowBytes)
		for y := s * rps; y < min(h.Height, (s+1)*rps); y++ {
			for x := 0; x < h.Width; x++ {
				for _, b := range bands {
					raw = binary.LittleEndian.AppendUint64(raw, math.Float64bits(b[y*h.Width+x]))
				}
			}
		}
		if h.Compress {
			var buf bytes.Buffer
			zw := zlib.NewWriter(&buf)
			if _, err := zw.Write(raw); err != nil {
				return err
			}
			if err := zw.Close(); err != nil {
				return err
			}
			raw = buf.Bytes()
		}
		strips[s] = raw
	}

	compression := uint16(CompressionNone)
	if h.Compress {
		compression = CompressionDeflate
	}
	repeat := func(v uint16) []uint16 {
		out := make([]uint16, spp)
		for i := range out {
			out[i] = v
		}
		return out
	}

	fields := []field{
		longs(tagImageWidth, uint32(h.Width)),
		longs(tagImageLength, uint32(h.Height)),
		shorts(tagBitsPerSample, repeat(64)...),
		shorts(tagCompression, compression),
		shorts(tagPhotometricInterpretation, 1),
		longs(tagStripOffsets, make([]uint32, nstrips)...),
		shorts(tagSamplesPerPixel, uint16(spp)),
		longs(tagRowsPerStrip, uint32(rps)),
		longs(tagStripByteCounts, stripSizes(strips)...),
		shorts(tagPlanarConfiguration, 1),
		shorts(tagSampleFormat, repeat(SampleFloat)...),
	}
	if spp > 1 {
		fields = append(fields, shorts(tagExtraSamples, make([]uint16, spp-1)...))
	}
	fields = append(fields, geoFields(h)...)
	sort.Slice(fields, func(i, j int) bool { return fields[i].tag < fields[j].tag })

	// Layout: header, IFD, out-of-line values, strip data.
	const ifdOffset = 8
	pos := ifdOffset + 2 + 12*len(fields) + 4
	valueAt := make([]int, len(fields))
	for i, f := range fields {
		if len(f.data) > 4 {
			pos += pos & 1
			valueAt[i] = pos
			pos += len(f.data)
		}
	}
	offsets := make([]uint32, nstrips)
	for s, strip := range strips {
		pos += pos & 1
		if int64(pos)+int64(len(strip)) > math.MaxUint32 {
			return errors.New("image exceeds 4 GiB, BigTIFF is not supported")
		}
		offsets[s] = uint32(pos)
		pos += len(strip)
	}
	for i := range fields {
		if fields[i].tag == tagStripOffsets {
			fields[i] = longs(tagStripOffsets, offsets...)
		}
	}

	out := &countingWriter{w: w}
	out.write([]byte("II*\x00"))
	out.u32(ifdOffset)
	out.u16(uint16(len(fields)))
	for i, f := range fields {
		out.u16(f.tag)
		out.u16(f.typ)
		out.u32(uint32(f.count))
		if len(f.data) > 4 {
			out.u32(uint32(valueAt[i]))
		} else {
			var inline [4]byte
			copy(inline[:], f.data)
			out.write(inline[:])
		}
	}
	out.u32(0)
	for i, f := range fields {
		if len(f.data) > 4 {
			out.pad(valueAt[i])
			out.write(f.data)
		}
	}
	for s, strip := range strips {
		out.pad(int(offsets[s]))
		out.write(strip)
	}
	return out.err
}

func geoFields(h Header) []field {
	gt := h.GeoTransform
	model, key := uint16(modelProjected), uint16(keyProjectedType)
	if h.Geographic {
		model, key = modelGeographic, keyGeographicType
	}
	fields := []field{
		doubles(tagModelPixelScale, gt[1], -gt[5], 0),
		doubles(tagModelTiepoint, 0, 0, 0, gt[0], gt[3], 0),
		shorts(tagGeoKeyDirectory,
			1, 1, 0, 3,
			keyModelType, 0, 1, model,
			keyRasterType, 0, 1, rasterPixelIsArea,
			key, 0, 1, uint16(h.EPSG),
		),
	}
	if h.HasNoData {
		s := strconv.FormatFloat(h.NoData, 'g', -1, 64)
		if math.IsNaN(h.NoData) {
			s = "nan"
		}
		fields = append(fields, field{tag: tagGDALNoData, typ: typeASCII, count: len(s) + 1, data: append([]byte(s), 0)})
	}
	return fields
}

func stripSizes(strips [][]byte) []uint32 {
	out := make([]uint32, len(strips))
	for i, s := range strips {
		out[i] = uint32(len(s))
	}
	return out
}

func shorts(tag uint16, v ...uint16) field {
	data := make([]byte, 0, 2*len(v))
	for _, x := range v {
		data = binary.LittleEndian.AppendUint16(data, x)
	}
	return field{tag: tag, typ: typeShort, count: len(v), data: data}
}

func longs(tag uint16, v ...uint32) field {
	data := make([]byte, 0, 4*len(v))
	for _, x := range v {
		data = binary.LittleEndian.AppendUint32(data, x)
	}
	return field{tag: tag, typ: typeLong, count: len(v), data: data}
}

func doubles(tag uint16, v ...float64) field {
	data := make([]byte, 0, 8*len(v))
	for _, x := range v {
		data = binary.LittleEndian.AppendUint64(data, math.Float64bits(x))
	}
	return field{tag: tag, typ: typeDouble, count: len(v), data: data}
}

// countingWriter tracks the write position and keeps the first error.
type countingWriter struct {
	w   io.Writer
	n   int
	err error
}

func (c *countingWriter) write(b []byte) {
	if c.err != nil {
		return
	}
	n, err := c.w.Write(b)
	c.n += n
	c.err = err
}

func (c *countingWriter) u16(v uint16) { c.write(binary.LittleEndian.AppendUint16(nil, v)) }
func (c *countingWriter) u32(v uint32) { c.write(binary.LittleEndian.AppendUint32(nil, v)) }

// pad writes zero bytes up to offset at.
func (c *countingWriter) pad(at int) {
	if at > c.n {
		c.write(make([]byte, at-c.n))
	}
}
