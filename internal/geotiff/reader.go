package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/tiff/lzw"
)

// Image describes the first image of a strip-organised TIFF. Sample data
// stays on disk until ReadWindow asks for it.
type Image struct {
	Width           int
	Height          int
	SamplesPerPixel int
	BitsPerSample   int
	SampleFormat    int
	Planar          bool
	Compression     int
	Predictor       int
	RowsPerStrip    int
	StripOffsets    []uint64
	StripByteCounts []uint64
	Geo             GeoInfo

	order binary.ByteOrder
}

// GeoInfo holds the georeferencing tags of an image.
type GeoInfo struct {
	PixelScale     []float64
	Tiepoint       []float64
	Transformation []float64

	ModelType    int
	EPSG         int
	PixelIsPoint bool

	NoData    float64
	HasNoData bool
}

type entry struct {
	tag   uint16
	typ   uint16
	count uint64
	data  []byte
}

// Decode reads the TIFF header and first IFD from r.
func Decode(r io.ReaderAt) (*Image, error) {
	var hdr [8]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var order binary.ByteOrder
	switch string(hdr[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, errors.New("not a TIFF file")
	}
	switch magic := order.Uint16(hdr[2:]); magic {
	case 42:
	case 43:
		return nil, errors.New("BigTIFF is not supported")
	default:
		return nil, fmt.Errorf("bad TIFF magic %d", magic)
	}

	entries, err := readIFD(r, order, int64(order.Uint32(hdr[4:])))
	if err != nil {
		return nil, err
	}
	return newImage(entries, order)
}

func readIFD(r io.ReaderAt, order binary.ByteOrder, off int64) (map[uint16]*entry, error) {
	var nbuf [2]byte
	if _, err := r.ReadAt(nbuf[:], off); err != nil {
		return nil, fmt.Errorf("read IFD: %w", err)
	}
	n := int(order.Uint16(nbuf[:]))
	raw := make([]byte, 12*n)
	if _, err := r.ReadAt(raw, off+2); err != nil {
		return nil, fmt.Errorf("read IFD entries: %w", err)
	}

	entries := make(map[uint16]*entry, n)
	for i := 0; i < n; i++ {
		b := raw[12*i : 12*i+12]
		e := &entry{
			tag:   order.Uint16(b[0:]),
			typ:   order.Uint16(b[2:]),
			count: uint64(order.Uint32(b[4:])),
		}
		size, ok := typeSize[e.typ]
		if !ok {
			continue
		}
		total := uint64(size) * e.count
		if total > 1<<28 {
			return nil, fmt.Errorf("tag %d: value too large", e.tag)
		}
		if total <= 4 {
			e.data = append([]byte(nil), b[8:8+total]...)
		} else {
			e.data = make([]byte, total)
			if _, err := r.ReadAt(e.data, int64(order.Uint32(b[8:]))); err != nil {
				return nil, fmt.Errorf("tag %d: %w", e.tag, err)
			}
		}
		entries[e.tag] = e
	}
	return entries, nil
}

func (e *entry) uints(order binary.ByteOrder) []uint64 {
	out := make([]uint64, 0, e.count)
	for i := uint64(0); i < e.count; i++ {
		switch e.typ {
		case typeByte, typeUndefined:
			out = append(out, uint64(e.data[i]))
		case typeShort:
			out = append(out, uint64(order.Uint16(e.data[2*i:])))
		case typeLong:
			out = append(out, uint64(order.Uint32(e.data[4*i:])))
		case typeLong8:
			out = append(out, order.Uint64(e.data[8*i:]))
		}
	}
	return out
}

func (e *entry) floats(order binary.ByteOrder) []float64 {
	out := make([]float64, 0, e.count)
	for i := uint64(0); i < e.count; i++ {
		switch e.typ {
		case typeDouble:
			out = append(out, math.Float64frombits(order.Uint64(e.data[8*i:])))
		case typeFloat:
			out = append(out, float64(math.Float32frombits(order.Uint32(e.data[4*i:]))))
		}
	}
	return out
}

func (e *entry) ascii() string {
	return strings.TrimRight(string(e.data), "\x00 ")
}

const (
	// maxSamples caps Width*Height*SamplesPerPixel, about 2 GiB of decoded
	// float64 cells.
	maxSamples = 1 << 28

	// maxCompressionRatio bounds how far DEFLATE or LZW data can expand.
	maxCompressionRatio = 4096
)

func newImage(entries map[uint16]*entry, order binary.ByteOrder) (*Image, error) {
	first := func(tag uint16, def uint64) uint64 {
		if e, ok := entries[tag]; ok {
			if v := e.uints(order); len(v) > 0 {
				return v[0]
			}
		}
		return def
	}

	if _, tiled := entries[tagTileWidth]; tiled {
		return nil, errors.New("tiled TIFF layout is not supported")
	}

	w, h, spp := first(tagImageWidth, 0), first(tagImageLength, 0), first(tagSamplesPerPixel, 1)
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("bad image size %dx%d", w, h)
	}
	if spp == 0 {
		return nil, errors.New("bad samples per pixel 0")
	}
	if w > maxSamples || h > maxSamples/w || spp > maxSamples/(w*h) {
		return nil, fmt.Errorf("image of %dx%d with %d samples exceeds the %d sample limit", w, h, spp, maxSamples)
	}

	im := &Image{
		Width:           int(w),
		Height:          int(h),
		SamplesPerPixel: int(spp),
		SampleFormat:    int(first(tagSampleFormat, SampleUint)),
		Planar:          first(tagPlanarConfiguration, 1) == 2,
		Compression:     int(first(tagCompression, CompressionNone)),
		Predictor:       int(first(tagPredictor, 1)),
		order:           order,
	}
	if rps := first(tagRowsPerStrip, h); rps == 0 || rps > h {
		im.RowsPerStrip = im.Height
	} else {
		im.RowsPerStrip = int(rps)
	}

	bps, ok := entries[tagBitsPerSample]
	if !ok {
		return nil, errors.New("missing BitsPerSample")
	}
	bits := bps.uints(order)
	if len(bits) == 0 {
		return nil, errors.New("empty BitsPerSample")
	}
	for _, b := range bits[1:] {
		if b != bits[0] {
			return nil, errors.New("mixed BitsPerSample is not supported")
		}
	}
	im.BitsPerSample = int(bits[0])
	if err := im.checkSampleType(); err != nil {
		return nil, err
	}

	switch im.Compression {
	case CompressionNone, CompressionLZW, CompressionDeflate, compressionDeflateX:
	default:
		return nil, fmt.Errorf("compression %d is not supported", im.Compression)
	}
	switch im.Predictor {
	case 1:
	case 2:
		if im.SampleFormat == SampleFloat {
			return nil, errors.New("horizontal predictor on float samples is not supported")
		}
	default:
		return nil, fmt.Errorf("predictor %d is not supported", im.Predictor)
	}

	offs, ok1 := entries[tagStripOffsets]
	counts, ok2 := entries[tagStripByteCounts]
	if !ok1 || !ok2 {
		return nil, errors.New("missing strip offsets")
	}
	im.StripOffsets = offs.uints(order)
	im.StripByteCounts = counts.uints(order)
	want := im.stripsPerPlane()
	if im.Planar {
		want *= im.SamplesPerPixel
	}
	if len(im.StripOffsets) != want || len(im.StripByteCounts) != want {
		return nil, fmt.Errorf("expected %d strips, found %d", want, len(im.StripOffsets))
	}
	if err := im.checkStripSizes(); err != nil {
		return nil, err
	}

	geo, err := readGeo(entries, order)
	if err != nil {
		return nil, err
	}
	im.Geo = geo
	return im, nil
}

// checkStripSizes rejects strips too small to hold the rows they claim.
// An uncompressed strip must hold every byte; a compressed one cannot
// expand past maxCompressionRatio.
func (im *Image) checkStripSizes() error {
	per := im.stripsPerPlane()
	for i, n := range im.StripByteCounts {
		rows := min(im.RowsPerStrip, im.Height-(i%per)*im.RowsPerStrip)
		need := uint64(rows) * uint64(im.rowBytes())
		if im.Compression != CompressionNone {
			need = (need + maxCompressionRatio - 1) / maxCompressionRatio
		}
		if n < need {
			return fmt.Errorf("strip %d holds %d bytes, %d rows need at least %d", i, n, rows, need)
		}
	}
	return nil
}

func (im *Image) checkSampleType() error {
	switch im.SampleFormat {
	case SampleUint, SampleInt:
		switch im.BitsPerSample {
		case 8, 16, 32:
			return nil
		}
	case SampleFloat:
		switch im.BitsPerSample {
		case 32, 64:
			return nil
		}
	}
	return fmt.Errorf("sample format %d with %d bits is not supported", im.SampleFormat, im.BitsPerSample)
}

func readGeo(entries map[uint16]*entry, order binary.ByteOrder) (GeoInfo, error) {
	var g GeoInfo
	if e, ok := entries[tagModelPixelScale]; ok {
		g.PixelScale = e.floats(order)
	}
	if e, ok := entries[tagModelTiepoint]; ok {
		g.Tiepoint = e.floats(order)
	}
	if e, ok := entries[tagModelTransformation]; ok {
		g.Transformation = e.floats(order)
	}
	if e, ok := entries[tagGDALNoData]; ok {
		s := e.ascii()
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return g, fmt.Errorf("bad GDAL_NODATA %q", s)
		}
		g.NoData, g.HasNoData = v, true
	}

	dir, ok := entries[tagGeoKeyDirectory]
	if !ok {
		return g, nil
	}
	keys := dir.uints(order)
	if len(keys) < 4 {
		return g, errors.New("short GeoKeyDirectory")
	}
	n := int(keys[3])
	if len(keys) < 4+4*n {
		return g, errors.New("truncated GeoKeyDirectory")
	}
	for i := 0; i < n; i++ {
		k := keys[4+4*i : 8+4*i]
		id, loc, value := k[0], k[1], k[3]
		if loc != 0 {
			// Keys stored in the double or ASCII params are citations
			// and user-defined parameters, neither of which is read.
			continue
		}
		switch id {
		case keyModelType:
			g.ModelType = int(value)
		case keyRasterType:
			g.PixelIsPoint = value == rasterPixelIsPoint
		case keyGeographicType, keyProjectedType:
			if value != userDefined && value != 0 {
				g.EPSG = int(value)
			}
		}
	}
	return g, nil
}

// GeoTransform returns the six-term affine transform in GDAL order. A
// rotated or sheared transform is an error.
func (g GeoInfo) GeoTransform() ([6]float64, error) {
	var gt [6]float64
	switch {
	case len(g.Transformation) >= 16:
		m := g.Transformation
		if m[1] != 0 || m[4] != 0 {
			return gt, errors.New("rotated geotransform is not supported")
		}
		gt = [6]float64{m[3], m[0], 0, m[7], 0, m[5]}
	case len(g.PixelScale) >= 2 && len(g.Tiepoint) >= 6:
		sx, sy := g.PixelScale[0], g.PixelScale[1]
		t := g.Tiepoint
		gt = [6]float64{t[3] - t[0]*sx, sx, 0, t[4] + t[1]*sy, 0, -sy}
	default:
		return gt, errors.New("missing georeferencing tags")
	}
	if gt[1] == 0 || gt[5] == 0 {
		return gt, errors.New("zero pixel size")
	}
	if g.PixelIsPoint {
		gt[0] -= gt[1] / 2
		gt[3] -= gt[5] / 2
	}
	return gt, nil
}

func (im *Image) stripsPerPlane() int {
	return (im.Height + im.RowsPerStrip - 1) / im.RowsPerStrip
}

func (im *Image) bytesPerSample() int { return im.BitsPerSample / 8 }

// rowBytes is the byte length of one decoded row of a strip.
func (im *Image) rowBytes() int {
	if im.Planar {
		return im.Width * im.bytesPerSample()
	}
	return im.Width * im.SamplesPerPixel * im.bytesPerSample()
}

// ReadWindow decodes the cols [col, col+w) of rows [row, row+h) into one
// row-major slice per sample. Only the strips covering those rows are read.
func (im *Image) ReadWindow(r io.ReaderAt, col, row, w, h int) ([][]float64, error) {
	if col < 0 || row < 0 || w <= 0 || h <= 0 || col+w > im.Width || row+h > im.Height {
		return nil, fmt.Errorf("window %d,%d %dx%d outside %dx%d image", col, row, w, h, im.Width, im.Height)
	}

	out := make([][]float64, im.SamplesPerPixel)
	for b := range out {
		out[b] = make([]float64, w*h)
	}

	planes := 1
	if im.Planar {
		planes = im.SamplesPerPixel
	}
	per := im.stripsPerPlane()
	first, last := row/im.RowsPerStrip, (row+h-1)/im.RowsPerStrip

	for plane := 0; plane < planes; plane++ {
		for s := first; s <= last; s++ {
			buf, err := im.readStrip(r, plane*per+s)
			if err != nil {
				return nil, fmt.Errorf("strip %d: %w", plane*per+s, err)
			}
			stripRow := s * im.RowsPerStrip
			for y := max(row, stripRow); y < min(row+h, stripRow+im.RowsPerStrip, im.Height); y++ {
				line := buf[(y-stripRow)*im.rowBytes():]
				im.decodeRow(line, col, w, plane, out, (y-row)*w)
			}
		}
	}
	return out, nil
}

func (im *Image) readStrip(r io.ReaderAt, i int) ([]byte, error) {
	rows := min(im.RowsPerStrip, im.Height-(i%im.stripsPerPlane())*im.RowsPerStrip)
	size := rows * im.rowBytes()
	sec := io.NewSectionReader(r, int64(im.StripOffsets[i]), int64(im.StripByteCounts[i]))

	var src io.Reader = sec
	switch im.Compression {
	case CompressionDeflate, compressionDeflateX:
		zr, err := zlib.NewReader(sec)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		src = zr
	case CompressionLZW:
		lr := lzw.NewReader(sec, lzw.MSB, 8)
		defer lr.Close()
		src = lr
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(src, buf); err != nil {
		return nil, err
	}
	if im.Predictor == 2 {
		im.undoPredictor(buf, rows)
	}
	return buf, nil
}

// undoPredictor reverses horizontal differencing in place.
func (im *Image) undoPredictor(buf []byte, rows int) {
	stride := im.SamplesPerPixel
	if im.Planar {
		stride = 1
	}
	n := im.rowBytes() / im.bytesPerSample()
	for y := 0; y < rows; y++ {
		line := buf[y*im.rowBytes() : (y+1)*im.rowBytes()]
		for i := stride; i < n; i++ {
			switch im.BitsPerSample {
			case 8:
				line[i] += line[i-stride]
			case 16:
				v := im.order.Uint16(line[2*i:]) + im.order.Uint16(line[2*(i-stride):])
				im.order.PutUint16(line[2*i:], v)
			case 32:
				v := im.order.Uint32(line[4*i:]) + im.order.Uint32(line[4*(i-stride):])
				im.order.PutUint32(line[4*i:], v)
			}
		}
	}
}

func (im *Image) decodeRow(line []byte, col, w, plane int, out [][]float64, at int) {
	bs := im.bytesPerSample()
	if im.Planar {
		for x := 0; x < w; x++ {
			out[plane][at+x] = im.sample(line[(col+x)*bs:])
		}
		return
	}
	spp := im.SamplesPerPixel
	for x := 0; x < w; x++ {
		px := line[(col+x)*spp*bs:]
		for b := 0; b < spp; b++ {
			out[b][at+x] = im.sample(px[b*bs:])
		}
	}
}

func (im *Image) sample(b []byte) float64 {
	o := im.order
	switch im.SampleFormat {
	case SampleFloat:
		if im.BitsPerSample == 32 {
			return float64(math.Float32frombits(o.Uint32(b)))
		}
		return math.Float64frombits(o.Uint64(b))
	case SampleInt:
		switch im.BitsPerSample {
		case 8:
			return float64(int8(b[0]))
		case 16:
			return float64(int16(o.Uint16(b)))
		default:
			return float64(int32(o.Uint32(b)))
		}
	default:
		switch im.BitsPerSample {
		case 8:
			return float64(b[0])
		case 16:
			return float64(o.Uint16(b))
		default:
			return float64(o.Uint32(b))
		}
	}
}

// IsTIFF reports whether b starts with a TIFF byte-order mark and magic.
func IsTIFF(b []byte) bool {
	return len(b) >= 4 && (bytes.HasPrefix(b, []byte("II*\x00")) || bytes.HasPrefix(b, []byte("MM\x00*")))
}
