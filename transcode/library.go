package transcode

import (
	"fmt"

	"github.com/cocosip/go-dicom-codec/codec"
	"github.com/cocosip/go-dicom-codec/jpeg/baseline"
	"github.com/cocosip/go-dicom-codec/jpeg/extended"
	jpeglossless "github.com/cocosip/go-dicom-codec/jpeg/lossless"
	"github.com/cocosip/go-dicom-codec/jpeg/lossless14sv1"
	"github.com/cocosip/go-dicom-codec/jpeg2000"
	jlslossless "github.com/cocosip/go-dicom-codec/jpegls/lossless"
	"github.com/cocosip/go-dicom-codec/jpegls/nearlossless"

	"github.com/meigma/dicomblob/internal/part10"
)

// DefaultJPEGQuality is the quality used for lossy encodes when none is set.
const DefaultJPEGQuality = 90

const (
	// First-order prediction, the selection value SV1 syntax fixes.
	jpegLosslessPredictor = 1
	// Maximum per-sample error for JPEG-LS near-lossless.
	jpegLSNear = 2
)

// LibrarySyntaxes are the transfer syntaxes served by go-dicom-codec.
var LibrarySyntaxes = []string{
	part10.JPEGBaseline8Bit,
	part10.JPEGExtended12Bit,
	part10.JPEGLossless,
	part10.JPEGLosslessSV1,
	part10.JPEGLSLossless,
	part10.JPEGLSNearLossless,
	part10.JPEG2000Lossless,
	part10.JPEG2000,
}

// decodedFrame is what a library decoder reports.
type decodedFrame struct {
	pixels     []byte
	width      int
	height     int
	components int
	bitDepth   int
}

// frameFuncs binds one transfer syntax to go-dicom-codec's package-level
// encoder and decoder. Samples wider than 8 bits are 16-bit little endian
// on both sides.
type frameFuncs struct {
	encode func(pixels []byte, info part10.PixelInfo, bitDepth, quality int) ([]byte, error)
	decode func(frame []byte) (decodedFrame, error)
}

var libraryFuncs = map[string]frameFuncs{
	part10.JPEGBaseline8Bit: {
		encode: func(pixels []byte, info part10.PixelInfo, _, quality int) ([]byte, error) {
			return baseline.Encode(pixels, info.Columns, info.Rows, info.SamplesPerPixel, quality)
		},
		decode: func(frame []byte) (decodedFrame, error) {
			pix, w, h, c, err := baseline.Decode(frame)
			return decodedFrame{pix, w, h, c, 8}, err
		},
	},
	part10.JPEGExtended12Bit: {
		encode: func(pixels []byte, info part10.PixelInfo, bitDepth, quality int) ([]byte, error) {
			return extended.Encode(pixels, info.Columns, info.Rows, info.SamplesPerPixel, bitDepth, quality)
		},
		decode: decodeWith(extended.Decode),
	},
	part10.JPEGLossless: {
		encode: func(pixels []byte, info part10.PixelInfo, bitDepth, _ int) ([]byte, error) {
			return jpeglossless.Encode(pixels, info.Columns, info.Rows, info.SamplesPerPixel, bitDepth, jpegLosslessPredictor)
		},
		decode: decodeWith(jpeglossless.Decode),
	},
	part10.JPEGLosslessSV1: {
		encode: func(pixels []byte, info part10.PixelInfo, bitDepth, _ int) ([]byte, error) {
			return lossless14sv1.Encode(pixels, info.Columns, info.Rows, info.SamplesPerPixel, bitDepth)
		},
		decode: decodeWith(lossless14sv1.Decode),
	},
	part10.JPEGLSLossless: {
		encode: func(pixels []byte, info part10.PixelInfo, bitDepth, _ int) ([]byte, error) {
			return jlslossless.Encode(pixels, info.Columns, info.Rows, info.SamplesPerPixel, bitDepth)
		},
		decode: decodeWith(jlslossless.Decode),
	},
	part10.JPEGLSNearLossless: {
		encode: func(pixels []byte, info part10.PixelInfo, bitDepth, _ int) ([]byte, error) {
			return nearlossless.Encode(pixels, info.Columns, info.Rows, info.SamplesPerPixel, bitDepth, jpegLSNear)
		},
		decode: func(frame []byte) (decodedFrame, error) {
			pix, w, h, c, bits, _, err := nearlossless.Decode(frame)
			return decodedFrame{pix, w, h, c, bits}, err
		},
	},
	part10.JPEG2000Lossless: {
		encode: func(pixels []byte, info part10.PixelInfo, bitDepth, _ int) ([]byte, error) {
			return encodeJ2K(pixels, info, bitDepth, true, 0)
		},
		decode: decodeJ2K,
	},
	part10.JPEG2000: {
		encode: func(pixels []byte, info part10.PixelInfo, bitDepth, quality int) ([]byte, error) {
			return encodeJ2K(pixels, info, bitDepth, false, quality)
		},
		decode: decodeJ2K,
	},
}

func decodeWith(fn func([]byte) ([]byte, int, int, int, int, error)) func([]byte) (decodedFrame, error) {
	return func(frame []byte) (decodedFrame, error) {
		pix, w, h, c, bits, err := fn(frame)
		return decodedFrame{pix, w, h, c, bits}, err
	}
}

// encodeJ2K encodes without the multi-component transform so color output
// stays RGB.
func encodeJ2K(pixels []byte, info part10.PixelInfo, bitDepth int, lossless bool, quality int) ([]byte, error) {
	params := jpeg2000.DefaultEncodeParams(info.Columns, info.Rows, info.SamplesPerPixel, bitDepth, info.PixelRepresentation == 1)
	params.Lossless = lossless
	params.EnableMCT = false
	if !lossless {
		params.Quality = quality
	}
	return jpeg2000.NewEncoder(params).Encode(pixels)
}

func decodeJ2K(frame []byte) (decodedFrame, error) {
	d := jpeg2000.NewDecoder()
	if err := d.Decode(frame); err != nil {
		return decodedFrame{}, err
	}
	return decodedFrame{d.GetPixelData(), d.Width(), d.Height(), d.Components(), d.BitDepth()}, nil
}

// FrameCodec adapts a go-dicom-codec encoder and decoder pair to the
// engine's frame contract.
type FrameCodec struct {
	funcs   frameFuncs
	ts      part10.TransferSyntax
	quality int
}

// NewFrameCodec returns the library codec for uid. quality applies to lossy
// JPEG and JPEG 2000 encodes only.
func NewFrameCodec(uid string, quality int) (*FrameCodec, error) {
	ts, ok := part10.LookupTransferSyntax(uid)
	if !ok || !ts.Encapsulated {
		return nil, fmt.Errorf("%w: %s", errPixelLayout, uid)
	}
	funcs, ok := libraryFuncs[uid]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ts, codec.ErrCodecNotFound)
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &FrameCodec{funcs: funcs, ts: ts, quality: quality}, nil
}

// JPEGBaseline returns the JPEG Baseline codec at quality.
func JPEGBaseline(quality int) (*FrameCodec, error) {
	return NewFrameCodec(part10.JPEGBaseline8Bit, quality)
}

// UID implements Codec.
func (c *FrameCodec) UID() string { return c.ts.UID }

// Name implements Codec.
func (c *FrameCodec) Name() string { return c.ts.Name }

// Quality returns the lossy encode quality.
func (c *FrameCodec) Quality() int { return c.quality }

// Decode implements Codec. Color output is interleaved RGB.
func (c *FrameCodec) Decode(frame []byte, info part10.PixelInfo) ([]byte, part10.PixelInfo, error) {
	res, err := c.funcs.decode(frame)
	if err != nil {
		return nil, info, fmt.Errorf("%w: %v", errCorruptFrame, err)
	}
	if res.width != info.Columns || res.height != info.Rows || res.components != info.SamplesPerPixel {
		return nil, info, fmt.Errorf("%w: decoded %dx%dx%d, object declares %dx%dx%d", errCorruptFrame,
			res.width, res.height, res.components, info.Columns, info.Rows, info.SamplesPerPixel)
	}
	if (res.bitDepth > 8) != (info.BitsAllocated > 8) {
		return nil, info, fmt.Errorf("%w: decoded %d-bit samples, object allocates %d bits", errCorruptFrame,
			res.bitDepth, info.BitsAllocated)
	}

	decoded := info
	decoded.PlanarConfiguration = 0
	if decoded.SamplesPerPixel == 3 {
		decoded.PhotometricInterpretation = "RGB"
	}
	if res.bitDepth > 0 && res.bitDepth < decoded.BitsStored {
		decoded.BitsStored = res.bitDepth
		decoded.HighBit = res.bitDepth - 1
	}
	size := decoded.FrameSize()
	if len(res.pixels) < size {
		return nil, info, fmt.Errorf("%w: decoded %d bytes, want %d", errCorruptFrame, len(res.pixels), size)
	}
	return res.pixels[:size], decoded, nil
}

// Encode implements Codec. Planar and YBR_FULL input is converted to
// interleaved RGB first.
func (c *FrameCodec) Encode(native []byte, info part10.PixelInfo) ([]byte, part10.PixelInfo, error) {
	if err := c.checkLayout(info); err != nil {
		return nil, info, err
	}
	if len(native) < info.FrameSize() {
		return nil, info, fmt.Errorf("%w: frame has %d bytes, want %d", errCorruptFrame, len(native), info.FrameSize())
	}
	pixels, err := interleavedRGB(native[:info.FrameSize()], info)
	if err != nil {
		return nil, info, err
	}

	encoded, err := c.funcs.encode(pixels, info, c.bitDepth(info), c.quality)
	if err != nil {
		return nil, info, fmt.Errorf("%w: %v", errPixelLayout, err)
	}

	out := info
	out.PlanarConfiguration = 0
	if out.SamplesPerPixel == 3 {
		out.PhotometricInterpretation = "RGB"
		if c.ts.UID == part10.JPEGBaseline8Bit || c.ts.UID == part10.JPEGExtended12Bit {
			out.PhotometricInterpretation = "YBR_FULL_422"
		}
	}
	return encoded, out, nil
}

// bitDepth is the sample precision handed to the encoder. JPEG Extended
// only knows 8 and 12 bit precision.
func (c *FrameCodec) bitDepth(info part10.PixelInfo) int {
	if c.ts.UID == part10.JPEGExtended12Bit {
		if info.BitsAllocated == 8 {
			return 8
		}
		return 12
	}
	return info.BitsStored
}

// checkLayout rejects layouts the library would misread. Its decoders take
// one byte per sample up to 8 bits and two above, so BitsStored has to
// agree with BitsAllocated.
func (c *FrameCodec) checkLayout(info part10.PixelInfo) error {
	if info.SamplesPerPixel != 1 && info.SamplesPerPixel != 3 {
		return fmt.Errorf("%w: %s cannot hold %d samples per pixel", errPixelLayout, c.ts, info.SamplesPerPixel)
	}
	maxBits := 16
	switch c.ts.UID {
	case part10.JPEGBaseline8Bit:
		maxBits = 8
	case part10.JPEGExtended12Bit:
		maxBits = 12
	}
	wide := info.BitsAllocated == 16 && info.BitsStored > 8
	narrow := info.BitsAllocated == 8 && info.BitsStored <= 8
	if !wide && !narrow || info.BitsStored > maxBits || info.BitsStored < 2 {
		return fmt.Errorf("%w: %s cannot hold %d of %d bits", errPixelLayout, c.ts, info.BitsStored, info.BitsAllocated)
	}
	return nil
}

// interleavedRGB returns 3-sample data as interleaved RGB. Single-sample
// data is returned as is.
func interleavedRGB(native []byte, info part10.PixelInfo) ([]byte, error) {
	if info.SamplesPerPixel != 3 {
		return native, nil
	}
	if info.BitsAllocated != 8 {
		return nil, fmt.Errorf("%w: color data must be 8 bits, got %d", errPixelLayout, info.BitsAllocated)
	}
	n := info.Rows * info.Columns
	out := make([]byte, 3*n)
	for p := range n {
		var s [3]byte
		if info.PlanarConfiguration == 1 {
			s = [3]byte{native[p], native[n+p], native[2*n+p]}
		} else {
			s = [3]byte{native[3*p], native[3*p+1], native[3*p+2]}
		}
		if info.PhotometricInterpretation == "YBR_FULL" {
			s = ybrToRGB(s)
		}
		copy(out[3*p:], s[:])
	}
	return out, nil
}

func ybrToRGB(s [3]byte) [3]byte {
	y, cb, cr := float64(s[0]), float64(s[1])-128, float64(s[2])-128
	return [3]byte{
		clampByte(y + 1.402*cr),
		clampByte(y - 0.344136*cb - 0.714136*cr),
		clampByte(y + 1.772*cb),
	}
}

func clampByte(v float64) byte {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return byte(v + 0.5)
	}
}
