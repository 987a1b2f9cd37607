package part10

import (
	"fmt"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// PixelInfo holds the image pixel attributes needed to interpret frames.
type PixelInfo struct {
	Rows                      int
	Columns                   int
	SamplesPerPixel           int
	BitsAllocated             int
	BitsStored                int
	HighBit                   int
	PixelRepresentation       int
	PlanarConfiguration       int
	PhotometricInterpretation string
	NumberOfFrames            int
}

// ReadPixelInfo reads the image pixel module from f. Rows, Columns and
// BitsAllocated are required; the rest default to single-sample unsigned
// data with BitsStored equal to BitsAllocated and one frame.
func ReadPixelInfo(f *File) (PixelInfo, error) {
	var p PixelInfo
	var err error
	if p.Rows, err = f.Int(tag.Rows); err != nil {
		return PixelInfo{}, err
	}
	if p.Columns, err = f.Int(tag.Columns); err != nil {
		return PixelInfo{}, err
	}
	if p.BitsAllocated, err = f.Int(tag.BitsAllocated); err != nil {
		return PixelInfo{}, err
	}
	p.SamplesPerPixel = intOr(f, tag.SamplesPerPixel, 1)
	p.BitsStored = intOr(f, tag.BitsStored, p.BitsAllocated)
	p.HighBit = intOr(f, tag.HighBit, p.BitsStored-1)
	p.PixelRepresentation = intOr(f, tag.PixelRepresentation, 0)
	p.PlanarConfiguration = intOr(f, tag.PlanarConfiguration, 0)
	p.NumberOfFrames = max(intOr(f, tag.NumberOfFrames, 1), 1)
	p.PhotometricInterpretation, _ = f.String(tag.PhotometricInterpretation)
	if p.PhotometricInterpretation == "" {
		if p.SamplesPerPixel == 3 {
			p.PhotometricInterpretation = "RGB"
		} else {
			p.PhotometricInterpretation = "MONOCHROME2"
		}
	}
	if p.Rows <= 0 || p.Columns <= 0 || p.BitsAllocated <= 0 || p.SamplesPerPixel <= 0 {
		return PixelInfo{}, fmt.Errorf("%w: image %dx%d, %d bits, %d samples", ErrMalformed,
			p.Columns, p.Rows, p.BitsAllocated, p.SamplesPerPixel)
	}
	return p, nil
}

// FrameSize returns the byte length of one native frame.
func (p PixelInfo) FrameSize() int {
	bits := p.Rows * p.Columns * p.SamplesPerPixel * p.BitsAllocated
	return (bits + 7) / 8
}

// BytesPerSample returns the storage size of one sample.
func (p PixelInfo) BytesPerSample() int {
	return (p.BitsAllocated + 7) / 8
}

// Apply writes the attributes back to f.
func (p PixelInfo) Apply(f *File) error {
	values := []tagValue{
		{tag.Rows, []int{p.Rows}},
		{tag.Columns, []int{p.Columns}},
		{tag.SamplesPerPixel, []int{p.SamplesPerPixel}},
		{tag.BitsAllocated, []int{p.BitsAllocated}},
		{tag.BitsStored, []int{p.BitsStored}},
		{tag.HighBit, []int{p.HighBit}},
		{tag.PixelRepresentation, []int{p.PixelRepresentation}},
		{tag.PhotometricInterpretation, []string{p.PhotometricInterpretation}},
	}
	if p.SamplesPerPixel > 1 {
		values = append(values, tagValue{tag.PlanarConfiguration, []int{p.PlanarConfiguration}})
	} else {
		f.Remove(tag.PlanarConfiguration)
	}
	return f.setValues(values)
}

func intOr(f *File, t tag.Tag, def int) int {
	v, err := f.Int(t)
	if err != nil {
		return def
	}
	return v
}
