package part10

import (
	"fmt"
	"slices"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// PixelData is the undecoded content of the Pixel Data element. Exactly one
// of Native and Fragments is set.
type PixelData struct {
	VR        string
	Native    []byte
	Fragments *Fragments
}

// IsEncapsulated reports whether the pixel data is held as fragments.
func (p *PixelData) IsEncapsulated() bool { return p.Fragments != nil }

// PixelData returns the pixel data of f.
func (f *File) PixelData() (*PixelData, bool) {
	e, ok := f.Element(tag.PixelData)
	if !ok || e.Value == nil {
		return nil, false
	}
	info, ok := e.Value.GetValue().(dicom.PixelDataInfo)
	if !ok {
		return nil, false
	}
	pd := &PixelData{VR: e.RawValueRepresentation}
	switch {
	case info.IsEncapsulated:
		items := make([][]byte, 0, len(info.Frames))
		for _, fr := range info.Frames {
			items = append(items, fr.EncapsulatedData.Data)
		}
		pd.Fragments = &Fragments{Offsets: info.Offsets, Items: items}
	case info.IntentionallyUnprocessed:
		pd.Native = info.UnprocessedValueData
	default:
		return nil, false
	}
	return pd, true
}

// SetNativePixels replaces the pixel data with uncompressed bytes. The VR is
// OW for samples wider than 8 bits and OB otherwise.
func (f *File) SetNativePixels(data []byte, bitsAllocated int) error {
	vr := "OB"
	if bitsAllocated > 8 {
		vr = "OW"
	}
	if len(data)%2 != 0 {
		data = append(slices.Clip(data), 0x00)
	}
	return f.setPixelData(vr, uint32(len(data)), dicom.PixelDataInfo{
		IntentionallyUnprocessed: true,
		UnprocessedValueData:     data,
	})
}

// SetEncapsulatedPixels replaces the pixel data with one fragment per
// compressed frame and a basic offset table.
func (f *File) SetEncapsulatedPixels(frames [][]byte) error {
	frags := NewFragments(frames)
	info := dicom.PixelDataInfo{IsEncapsulated: true, Offsets: frags.Offsets}
	for _, item := range frags.Items {
		info.Frames = append(info.Frames, &frame.Frame{
			Encapsulated:     true,
			EncapsulatedData: frame.EncapsulatedFrame{Data: item},
		})
	}
	return f.setPixelData("OB", tag.VLUndefinedLength, info)
}

func (f *File) setPixelData(vr string, length uint32, info dicom.PixelDataInfo) error {
	e, err := dicom.NewElement(tag.PixelData, info)
	if err != nil {
		return fmt.Errorf("set pixel data: %w", err)
	}
	e.RawValueRepresentation = vr
	e.ValueLength = length
	f.Set(e)
	return nil
}
