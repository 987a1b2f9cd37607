package transcode

import (
	"errors"
	"testing"

	"github.com/cocosip/go-dicom-codec/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/dicomblob/internal/part10"
)

type encodeCall struct {
	pixels   []byte
	info     part10.PixelInfo
	bitDepth int
	quality  int
}

func stubFrameCodec(uid string, funcs frameFuncs) *FrameCodec {
	return &FrameCodec{funcs: funcs, ts: part10.MustTransferSyntax(uid), quality: 80}
}

func rgbInfo() part10.PixelInfo {
	return part10.PixelInfo{
		Rows: 1, Columns: 2, SamplesPerPixel: 3, BitsAllocated: 8, BitsStored: 8, HighBit: 7,
		PhotometricInterpretation: "RGB", NumberOfFrames: 1,
	}
}

func TestNewFrameCodec(t *testing.T) {
	t.Parallel()

	_, err := NewFrameCodec(part10.ExplicitVRLittleEndian, 90)
	require.ErrorIs(t, err, errPixelLayout)
	_, err = NewFrameCodec("1.2.3", 90)
	require.ErrorIs(t, err, errPixelLayout)
	_, err = NewFrameCodec(part10.HTJ2KLossless, 90)
	require.ErrorIs(t, err, codec.ErrCodecNotFound)

	c, err := NewFrameCodec(part10.JPEG2000, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultJPEGQuality, c.Quality())
	assert.Equal(t, part10.JPEG2000, c.UID())
}

func TestFrameCodecEncodeArguments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		uid        string
		info       part10.PixelInfo
		native     []byte
		wantPixels []byte
		wantDepth  int
		wantPhoto  string
	}{
		{
			name:       "planar rgb is interleaved",
			uid:        part10.JPEG2000,
			info:       func() part10.PixelInfo { i := rgbInfo(); i.PlanarConfiguration = 1; return i }(),
			native:     []byte{1, 2, 3, 4, 5, 6},
			wantPixels: []byte{1, 3, 5, 2, 4, 6},
			wantDepth:  8,
			wantPhoto:  "RGB",
		},
		{
			name:       "ybr full is converted",
			uid:        part10.JPEGBaseline8Bit,
			info:       func() part10.PixelInfo { i := rgbInfo(); i.PhotometricInterpretation = "YBR_FULL"; return i }(),
			native:     []byte{128, 128, 128, 255, 128, 128},
			wantPixels: []byte{128, 128, 128, 255, 255, 255},
			wantDepth:  8,
			wantPhoto:  "YBR_FULL_422",
		},
		{
			name: "extended widens to 12 bits",
			uid:  part10.JPEGExtended12Bit,
			info: part10.PixelInfo{
				Rows: 1, Columns: 2, SamplesPerPixel: 1, BitsAllocated: 16, BitsStored: 10, HighBit: 9,
				PhotometricInterpretation: "MONOCHROME2", NumberOfFrames: 1,
			},
			native:     []byte{1, 0, 2, 0},
			wantPixels: []byte{1, 0, 2, 0},
			wantDepth:  12,
			wantPhoto:  "MONOCHROME2",
		},
		{
			name: "jpeg-ls keeps stored bits",
			uid:  part10.JPEGLSLossless,
			info: part10.PixelInfo{
				Rows: 1, Columns: 2, SamplesPerPixel: 1, BitsAllocated: 16, BitsStored: 12, HighBit: 11,
				PhotometricInterpretation: "MONOCHROME2", NumberOfFrames: 1,
			},
			native:     []byte{1, 0, 2, 0},
			wantPixels: []byte{1, 0, 2, 0},
			wantDepth:  12,
			wantPhoto:  "MONOCHROME2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got encodeCall
			c := stubFrameCodec(tt.uid, frameFuncs{
				encode: func(pixels []byte, info part10.PixelInfo, bitDepth, quality int) ([]byte, error) {
					got = encodeCall{pixels, info, bitDepth, quality}
					return []byte{0xFF, 0xD8}, nil
				},
			})

			out, info, err := c.Encode(tt.native, tt.info)
			require.NoError(t, err)
			assert.Equal(t, []byte{0xFF, 0xD8}, out)
			assert.Equal(t, tt.wantPixels, got.pixels)
			assert.Equal(t, tt.info.Columns, got.info.Columns)
			assert.Equal(t, tt.info.Rows, got.info.Rows)
			assert.Equal(t, tt.wantDepth, got.bitDepth)
			assert.Equal(t, 80, got.quality)
			assert.Equal(t, tt.wantPhoto, info.PhotometricInterpretation)
			assert.Equal(t, 0, info.PlanarConfiguration)
		})
	}
}

func TestFrameCodecEncodeRejectsLayout(t *testing.T) {
	t.Parallel()

	never := frameFuncs{encode: func([]byte, part10.PixelInfo, int, int) ([]byte, error) {
		t.Error("encoder called")
		return nil, nil
	}}

	tests := []struct {
		name string
		uid  string
		info part10.PixelInfo
	}{
		{
			name: "baseline 12-bit",
			uid:  part10.JPEGBaseline8Bit,
			info: part10.PixelInfo{Rows: 1, Columns: 1, SamplesPerPixel: 1, BitsAllocated: 16, BitsStored: 12},
		},
		{
			name: "extended 16-bit",
			uid:  part10.JPEGExtended12Bit,
			info: part10.PixelInfo{Rows: 1, Columns: 1, SamplesPerPixel: 1, BitsAllocated: 16, BitsStored: 16},
		},
		{
			name: "8 stored in 16 allocated",
			uid:  part10.JPEGLSLossless,
			info: part10.PixelInfo{Rows: 1, Columns: 1, SamplesPerPixel: 1, BitsAllocated: 16, BitsStored: 8},
		},
		{
			name: "two samples",
			uid:  part10.JPEG2000Lossless,
			info: part10.PixelInfo{Rows: 1, Columns: 1, SamplesPerPixel: 2, BitsAllocated: 8, BitsStored: 8},
		},
		{
			name: "32-bit",
			uid:  part10.JPEG2000Lossless,
			info: part10.PixelInfo{Rows: 1, Columns: 1, SamplesPerPixel: 1, BitsAllocated: 32, BitsStored: 32},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := stubFrameCodec(tt.uid, never).Encode(make([]byte, 8), tt.info)
			require.ErrorIs(t, err, errPixelLayout)
		})
	}
}

func TestFrameCodecEncodeWrapsLibraryError(t *testing.T) {
	t.Parallel()

	c := stubFrameCodec(part10.JPEGLossless, frameFuncs{
		encode: func([]byte, part10.PixelInfo, int, int) ([]byte, error) {
			return nil, errors.New("invalid bit depth")
		},
	})
	info := part10.PixelInfo{Rows: 1, Columns: 1, SamplesPerPixel: 1, BitsAllocated: 8, BitsStored: 8}
	_, _, err := c.Encode([]byte{7}, info)
	require.ErrorIs(t, err, errPixelLayout)
	assert.ErrorContains(t, err, "invalid bit depth")
}

func TestFrameCodecDecode(t *testing.T) {
	t.Parallel()

	info := rgbInfo()
	info.PhotometricInterpretation = "YBR_FULL_422"
	info.PlanarConfiguration = 1

	tests := []struct {
		name    string
		result  decodedFrame
		err     error
		wantErr bool
	}{
		{
			name:   "matching dimensions",
			result: decodedFrame{pixels: []byte{1, 2, 3, 4, 5, 6, 7}, width: 2, height: 1, components: 3, bitDepth: 8},
		},
		{
			name:    "wrong width",
			result:  decodedFrame{pixels: make([]byte, 9), width: 3, height: 1, components: 3, bitDepth: 8},
			wantErr: true,
		},
		{
			name:    "wide samples in 8-bit object",
			result:  decodedFrame{pixels: make([]byte, 12), width: 2, height: 1, components: 3, bitDepth: 12},
			wantErr: true,
		},
		{
			name:    "short output",
			result:  decodedFrame{pixels: make([]byte, 4), width: 2, height: 1, components: 3, bitDepth: 8},
			wantErr: true,
		},
		{name: "library error", err: errors.New("bad marker"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := stubFrameCodec(part10.JPEGBaseline8Bit, frameFuncs{
				decode: func([]byte) (decodedFrame, error) { return tt.result, tt.err },
			})
			out, decoded, err := c.Decode([]byte{0xFF, 0xD8}, info)
			if tt.wantErr {
				require.ErrorIs(t, err, errCorruptFrame)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, out)
			assert.Equal(t, "RGB", decoded.PhotometricInterpretation)
			assert.Equal(t, 0, decoded.PlanarConfiguration)
		})
	}
}

func TestFrameCodecDecodeLowersStoredBits(t *testing.T) {
	t.Parallel()

	info := part10.PixelInfo{
		Rows: 1, Columns: 1, SamplesPerPixel: 1, BitsAllocated: 16, BitsStored: 16, HighBit: 15,
		PhotometricInterpretation: "MONOCHROME2", NumberOfFrames: 1,
	}
	c := stubFrameCodec(part10.JPEGExtended12Bit, frameFuncs{
		decode: func([]byte) (decodedFrame, error) {
			return decodedFrame{pixels: []byte{0x34, 0x02}, width: 1, height: 1, components: 1, bitDepth: 12}, nil
		},
	})

	out, decoded, err := c.Decode([]byte{0xFF, 0xD8}, info)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x34, 0x02}, out)
	assert.Equal(t, 12, decoded.BitsStored)
	assert.Equal(t, 11, decoded.HighBit)
}
