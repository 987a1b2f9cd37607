// Package part10test builds synthetic Part 10 objects for tests.
package part10test

import (
	"slices"
	"strconv"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/internal/part10"
)

// Options describes a synthetic object.
type Options struct {
	ID core.ResourceIdentifier
	// Info defaults to a 4x4 single-frame 8-bit MONOCHROME2 image.
	Info part10.PixelInfo
	// TransferSyntax defaults to Explicit VR Little Endian.
	TransferSyntax string
	// Fragments holds one pre-encoded frame per entry for encapsulated
	// transfer syntaxes. Ignored for native syntaxes.
	Fragments [][]byte
	// Pixels replaces the generated native pixel data.
	Pixels []byte
	// Omit removes these tags from the dataset.
	Omit []tag.Tag
}

// DefaultID is the identifier used when Options.ID is empty.
var DefaultID = core.NewResourceIdentifier("1.2.3", "1.2.3.4", "1.2.3.4.5")

// DefaultInfo is the pixel layout used when Options.Info is empty.
var DefaultInfo = part10.PixelInfo{
	Rows:                      4,
	Columns:                   4,
	SamplesPerPixel:           1,
	BitsAllocated:             8,
	BitsStored:                8,
	HighBit:                   7,
	PhotometricInterpretation: "MONOCHROME2",
	NumberOfFrames:            1,
}

// Frames returns deterministic native pixel data for every frame of info.
func Frames(info part10.PixelInfo) [][]byte {
	size := info.FrameSize()
	frames := make([][]byte, info.NumberOfFrames)
	for f := range frames {
		b := make([]byte, size)
		for i := range b {
			b[i] = byte(f*37 + i*3)
		}
		frames[f] = b
	}
	return frames
}

// File builds the object described by opts.
func File(tb testing.TB, opts Options) *part10.File {
	tb.Helper()

	id := opts.ID
	if id == (core.ResourceIdentifier{}) {
		id = DefaultID
	}
	info := opts.Info
	if info.Rows == 0 {
		info = DefaultInfo
	}
	uid := opts.TransferSyntax
	if uid == "" {
		uid = part10.ExplicitVRLittleEndian
	}
	ts, ok := part10.LookupTransferSyntax(uid)
	if !ok {
		tb.Fatalf("part10test: unknown transfer syntax %s", uid)
	}

	elems := []*dicom.Element{
		element(tb, tag.SOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.7"}),
		element(tb, tag.SOPInstanceUID, []string{id.SOPInstanceUID}),
		element(tb, tag.Modality, []string{"OT"}),
		element(tb, tag.PatientName, []string{"Test^Patient"}),
		element(tb, tag.StudyInstanceUID, []string{id.StudyUID}),
		element(tb, tag.SeriesInstanceUID, []string{id.SeriesUID}),
	}
	if info.NumberOfFrames > 1 {
		elems = append(elems, element(tb, tag.NumberOfFrames, []string{strconv.Itoa(info.NumberOfFrames)}))
	}
	f, err := part10.NewFile(elems, ts)
	if err != nil {
		tb.Fatalf("part10test: %v", err)
	}
	if err := info.Apply(f); err != nil {
		tb.Fatalf("part10test: %v", err)
	}

	if ts.Encapsulated {
		if len(opts.Fragments) == 0 {
			tb.Fatalf("part10test: %s needs fragments", ts.Name)
		}
		err = f.SetEncapsulatedPixels(opts.Fragments)
	} else {
		pixels := opts.Pixels
		if pixels == nil {
			pixels = slices.Concat(Frames(info)...)
		}
		err = f.SetNativePixels(pixels, info.BitsAllocated)
	}
	if err != nil {
		tb.Fatalf("part10test: %v", err)
	}

	for _, t := range opts.Omit {
		f.Remove(t)
	}
	return f
}

// Bytes builds and encodes the object described by opts.
func Bytes(tb testing.TB, opts Options) []byte {
	tb.Helper()

	data, err := File(tb, opts).Bytes()
	if err != nil {
		tb.Fatalf("part10test: encode: %v", err)
	}
	return data
}

// Set replaces t in f with v, failing the test on error.
func Set(tb testing.TB, f *part10.File, t tag.Tag, v any) {
	tb.Helper()

	if err := f.SetValue(t, v); err != nil {
		tb.Fatalf("part10test: %v", err)
	}
}

func element(tb testing.TB, t tag.Tag, v any) *dicom.Element {
	tb.Helper()

	e, err := dicom.NewElement(t, v)
	if err != nil {
		tb.Fatalf("part10test: %v", err)
	}
	return e
}
