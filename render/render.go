// Package render turns DICOM frames into 8-bit images for export.
package render

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/internal/part10"
	"github.com/meigma/dicomblob/transcode"
)

// DefaultQuality is the JPEG quality used for exported images.
const DefaultQuality = 90

// ErrUnsupportedLayout is returned for pixel layouts that cannot be rendered.
var ErrUnsupportedLayout = errors.New("render: unsupported pixel layout")

// window maps stored values to display values.
type window struct {
	center, width float64
}

// Frame decodes frame index of f to native pixels through engine and maps
// it to an 8-bit image. Monochrome frames are rescaled and windowed with the
// first window in the object, or the frame's value range when none is set.
func Frame(f *part10.File, index int, engine *transcode.Engine) (image.Image, error) {
	fb, err := engine.ExtractFrame(f, index, part10.ExplicitVRLittleEndian)
	if err != nil {
		return nil, err
	}
	info := fb.Info
	pixels := info.Rows * info.Columns
	if len(fb.Data) < pixels*info.SamplesPerPixel*info.BytesPerSample() {
		return nil, fmt.Errorf("%w: frame %d has %d bytes", core.ErrStructureInvalid, index, len(fb.Data))
	}

	switch info.SamplesPerPixel {
	case 1:
		slope, intercept := rescale(f)
		return gray(fb.Data, info, slope, intercept, firstWindow(f))
	case 3:
		return rgb(fb.Data, info)
	default:
		return nil, fmt.Errorf("%w: %d samples per pixel", ErrUnsupportedLayout, info.SamplesPerPixel)
	}
}

// EncodeJPEG writes img to w as a baseline JPEG. Quality outside 1..100
// uses DefaultQuality. Only *image.Gray and *image.RGBA are accepted, as
// produced by Frame.
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	codec, err := transcode.JPEGBaseline(quality)
	if err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	b := img.Bounds()
	info := part10.PixelInfo{
		Rows:           b.Dy(),
		Columns:        b.Dx(),
		BitsAllocated:  8,
		BitsStored:     8,
		HighBit:        7,
		NumberOfFrames: 1,
	}
	var pixels []byte
	switch m := img.(type) {
	case *image.Gray:
		info.SamplesPerPixel = 1
		info.PhotometricInterpretation = "MONOCHROME2"
		pixels = m.Pix
	case *image.RGBA:
		info.SamplesPerPixel = 3
		info.PhotometricInterpretation = "RGB"
		pixels = make([]byte, 0, 3*len(m.Pix)/4)
		for i := 0; i+3 < len(m.Pix); i += 4 {
			pixels = append(pixels, m.Pix[i], m.Pix[i+1], m.Pix[i+2])
		}
	default:
		return fmt.Errorf("%w: image type %T", ErrUnsupportedLayout, img)
	}
	data, _, err := codec.Encode(pixels, info)
	if err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write jpeg: %w", err)
	}
	return nil
}

func rescale(f *part10.File) (float64, float64) {
	slope, err := f.Float(tag.RescaleSlope)
	if err != nil || slope == 0 {
		slope = 1
	}
	intercept, err := f.Float(tag.RescaleIntercept)
	if err != nil {
		intercept = 0
	}
	return slope, intercept
}

func firstWindow(f *part10.File) *window {
	c, err := f.Float(tag.WindowCenter)
	if err != nil {
		return nil
	}
	w, err := f.Float(tag.WindowWidth)
	if err != nil || w < 1 {
		return nil
	}
	return &window{center: c, width: w}
}

// apply is the linear VOI function.
func (w *window) apply(x float64) uint8 {
	lo := w.center - 0.5 - (w.width-1)/2
	hi := w.center - 0.5 + (w.width-1)/2
	switch {
	case x <= lo:
		return 0
	case x > hi:
		return 255
	}
	return clamp(((x-(w.center-0.5))/(w.width-1) + 0.5) * 255)
}

func gray(data []byte, info part10.PixelInfo, slope, intercept float64, win *window) (image.Image, error) {
	bps := info.BytesPerSample()
	switch bps {
	case 1, 2, 4:
	default:
		return nil, fmt.Errorf("%w: %d bits allocated", ErrUnsupportedLayout, info.BitsAllocated)
	}
	stored := info.BitsStored
	if stored <= 0 || stored > info.BitsAllocated {
		stored = info.BitsAllocated
	}
	mask := uint32(1)<<stored - 1
	if stored >= 32 {
		mask = math.MaxUint32
	}
	signBit := uint32(1) << (stored - 1)

	n := info.Rows * info.Columns
	values := make([]float64, n)
	for i := range n {
		var raw uint32
		switch bps {
		case 1:
			raw = uint32(data[i])
		case 2:
			raw = uint32(binary.LittleEndian.Uint16(data[2*i:]))
		case 4:
			raw = binary.LittleEndian.Uint32(data[4*i:])
		}
		raw &= mask
		v := float64(raw)
		if info.PixelRepresentation == 1 && raw&signBit != 0 {
			v -= float64(uint64(mask) + 1)
		}
		values[i] = v*slope + intercept
	}

	if win == nil {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range values {
			lo = min(lo, v)
			hi = max(hi, v)
		}
		if n > 0 && hi > lo {
			win = &window{center: (lo + hi + 1) / 2, width: hi - lo + 1}
		}
	}

	img := image.NewGray(image.Rect(0, 0, info.Columns, info.Rows))
	invert := info.PhotometricInterpretation == "MONOCHROME1"
	for i, v := range values {
		var g uint8
		if win != nil {
			g = win.apply(v)
		}
		if invert {
			g = 255 - g
		}
		img.Pix[i] = g
	}
	return img, nil
}

func rgb(data []byte, info part10.PixelInfo) (image.Image, error) {
	if info.BitsAllocated != 8 {
		return nil, fmt.Errorf("%w: %d-bit color", ErrUnsupportedLayout, info.BitsAllocated)
	}
	var ybr bool
	switch info.PhotometricInterpretation {
	case "RGB":
	case "YBR_FULL":
		ybr = true
	default:
		return nil, fmt.Errorf("%w: photometric interpretation %s", ErrUnsupportedLayout, info.PhotometricInterpretation)
	}

	n := info.Rows * info.Columns
	img := image.NewRGBA(image.Rect(0, 0, info.Columns, info.Rows))
	for i := range n {
		var a, b, c uint8
		if info.PlanarConfiguration == 1 {
			a, b, c = data[i], data[n+i], data[2*n+i]
		} else {
			a, b, c = data[3*i], data[3*i+1], data[3*i+2]
		}
		if ybr {
			a, b, c = color.YCbCrToRGB(a, b, c)
		}
		img.Pix[4*i], img.Pix[4*i+1], img.Pix[4*i+2], img.Pix[4*i+3] = a, b, c, 255
	}
	return img, nil
}

func clamp(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(math.Round(v))
}
