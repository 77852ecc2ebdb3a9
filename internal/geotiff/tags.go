package geotiff

// TIFF tags read or written by this package.
const (
	tagImageWidth                = 256
	tagImageLength               = 257
	tagBitsPerSample             = 258
	tagCompression               = 259
	tagPhotometricInterpretation = 262
	tagStripOffsets              = 273
	tagSamplesPerPixel           = 277
	tagRowsPerStrip              = 278
	tagStripByteCounts           = 279
	tagPlanarConfiguration       = 284
	tagPredictor                 = 317
	tagTileWidth                 = 322
	tagExtraSamples              = 338
	tagSampleFormat              = 339

	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGeoDoubleParams     = 34736
	tagGeoASCIIParams      = 34737
	tagGDALNoData          = 42113
)

// Field types.
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeSByte     = 6
	typeUndefined = 7
	typeSShort    = 8
	typeSLong     = 9
	typeSRational = 10
	typeFloat     = 11
	typeDouble    = 12
	typeLong8     = 16
)

var typeSize = map[uint16]int{
	typeByte:      1,
	typeASCII:     1,
	typeShort:     2,
	typeLong:      4,
	typeRational:  8,
	typeSByte:     1,
	typeUndefined: 1,
	typeSShort:    2,
	typeSLong:     4,
	typeSRational: 8,
	typeFloat:     4,
	typeDouble:    8,
	typeLong8:     8,
}

// Compression schemes.
const (
	CompressionNone     = 1
	CompressionLZW      = 5
	CompressionDeflate  = 8
	compressionDeflateX = 32946
)

// Sample formats.
const (
	SampleUint  = 1
	SampleInt   = 2
	SampleFloat = 3
)

// GeoKeys.
const (
	keyModelType      = 1024
	keyRasterType     = 1025
	keyGeographicType = 2048
	keyProjectedType  = 3072

	modelProjected  = 1
	modelGeographic = 2

	rasterPixelIsArea  = 1
	rasterPixelIsPoint = 2

	userDefined = 32767
)
