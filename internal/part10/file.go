package part10

import (
	"bytes"
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

const preambleLen = 128

var magic = []byte("DICM")

// ImplementationUID identifies objects written by this package.
const ImplementationUID = "2.25.210947310291487362918472651938475610293"

// Pixel data is never decoded by the parser; frames are selected from the
// raw value instead.
var parseOptions = []dicom.ParseOption{dicom.SkipProcessingPixelDataValue()}

var writeOptions = []dicom.WriteOption{dicom.SkipVRVerification(), dicom.SkipValueTypeVerification()}

// File is a parsed Part 10 object. Dataset holds the file meta group
// followed by the body, in tag order.
type File struct {
	Dataset        dicom.Dataset
	TransferSyntax TransferSyntax
}

// HasPart10Header reports whether data starts with a preamble and the DICM
// prefix.
func HasPart10Header(data []byte) bool {
	return len(data) >= preambleLen+len(magic) && bytes.Equal(data[preambleLen:preambleLen+len(magic)], magic)
}

// ReadTransferSyntax returns the transfer syntax declared in the file meta
// group without parsing the body.
func ReadTransferSyntax(data []byte) (TransferSyntax, error) {
	if !HasPart10Header(data) {
		return TransferSyntax{}, ErrNotPart10
	}
	p, err := dicom.NewParser(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		return TransferSyntax{}, fmt.Errorf("%w: meta group: %v", ErrMalformed, err)
	}
	meta := p.GetMetadata()
	return metaTransferSyntax(&meta)
}

// Parse decodes a Part 10 object. Deflated and big endian bodies are
// rejected with ErrUnsupportedTransferSyntax.
func Parse(data []byte) (*File, error) {
	ts, err := ReadTransferSyntax(data)
	if err != nil {
		return nil, err
	}
	if !ts.Parsable() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTransferSyntax, ts)
	}
	ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil, parseOptions...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &File{Dataset: ds, TransferSyntax: ts}, nil
}

func metaTransferSyntax(meta *dicom.Dataset) (TransferSyntax, error) {
	e, err := meta.FindElementByTag(tag.TransferSyntaxUID)
	if err != nil {
		return TransferSyntax{}, fmt.Errorf("%w: no transfer syntax in meta group", ErrMalformed)
	}
	id := firstString(e)
	ts, ok := LookupTransferSyntax(id)
	if !ok {
		return TransferSyntax{}, fmt.Errorf("%w: %q", ErrUnsupportedTransferSyntax, id)
	}
	return ts, nil
}

// NewFile returns a File holding elems in ts, with a meta group derived from
// the SOP class and instance UIDs among them.
func NewFile(elems []*dicom.Element, ts TransferSyntax) (*File, error) {
	f := &File{}
	for _, e := range elems {
		f.Set(e)
	}
	sopClass, _ := f.String(tag.SOPClassUID)
	sop, _ := f.String(tag.SOPInstanceUID)
	if err := f.setValues([]tagValue{
		{tag.FileMetaInformationVersion, []byte{0x00, 0x01}},
		{tag.MediaStorageSOPClassUID, []string{sopClass}},
		{tag.MediaStorageSOPInstanceUID, []string{sop}},
		{tag.ImplementationClassUID, []string{ImplementationUID}},
	}); err != nil {
		return nil, err
	}
	if err := f.SetTransferSyntax(ts); err != nil {
		return nil, err
	}
	return f, nil
}

// Clone returns a copy of f whose element list can be modified without
// affecting f. Elements themselves are shared.
func (f *File) Clone() *File {
	return &File{
		Dataset:        dicom.Dataset{Elements: slices.Clone(f.Dataset.Elements)},
		TransferSyntax: f.TransferSyntax,
	}
}

// SetTransferSyntax changes the syntax f is written in.
func (f *File) SetTransferSyntax(ts TransferSyntax) error {
	if err := f.SetValue(tag.TransferSyntaxUID, []string{ts.UID}); err != nil {
		return err
	}
	f.TransferSyntax = ts
	return nil
}

// Encode writes f as a Part 10 object in f.TransferSyntax.
func (f *File) Encode(w io.Writer) error {
	if !f.TransferSyntax.Parsable() {
		return fmt.Errorf("%w: %s", ErrUnsupportedTransferSyntax, f.TransferSyntax)
	}
	if err := dicom.Write(w, f.Dataset, writeOptions...); err != nil {
		return fmt.Errorf("write %s: %w", f.TransferSyntax, err)
	}
	return nil
}

// Bytes returns the encoded object.
func (f *File) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Element returns the top-level element for t.
func (f *File) Element(t tag.Tag) (*dicom.Element, bool) {
	e, err := f.Dataset.FindElementByTag(t)
	if err != nil || e == nil {
		return nil, false
	}
	return e, true
}

// Contains reports whether t is present.
func (f *File) Contains(t tag.Tag) bool {
	_, ok := f.Element(t)
	return ok
}

// Set adds e, replacing any element with the same tag and keeping the
// element list in tag order.
func (f *File) Set(e *dicom.Element) {
	elems := f.Dataset.Elements
	i, found := slices.BinarySearchFunc(elems, e.Tag, func(el *dicom.Element, t tag.Tag) int {
		return compareTags(el.Tag, t)
	})
	if found {
		elems[i] = e
		return
	}
	f.Dataset.Elements = slices.Insert(elems, i, e)
}

// SetValue sets t to v. v must be a value type accepted by
// dicom.NewElement for the tag's VR.
func (f *File) SetValue(t tag.Tag, v any) error {
	e, err := dicom.NewElement(t, v)
	if err != nil {
		return fmt.Errorf("set %s: %w", t, err)
	}
	f.Set(e)
	return nil
}

type tagValue struct {
	t tag.Tag
	v any
}

func (f *File) setValues(values []tagValue) error {
	for _, v := range values {
		if err := f.SetValue(v.t, v.v); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes t if present.
func (f *File) Remove(t tag.Tag) {
	f.Dataset.Elements = slices.DeleteFunc(f.Dataset.Elements, func(e *dicom.Element) bool {
		return e.Tag == t
	})
}

// String returns the first value of a text element with padding removed.
func (f *File) String(t tag.Tag) (string, error) {
	vals, err := f.Strings(t)
	if err != nil {
		return "", err
	}
	if len(vals) == 0 {
		return "", nil
	}
	return vals[0], nil
}

// Strings returns the values of a text element.
func (f *File) Strings(t tag.Tag) ([]string, error) {
	e, ok := f.Element(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, t)
	}
	if e.Value == nil {
		return nil, nil
	}
	vals, ok := e.Value.GetValue().([]string)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not text", ErrMalformed, t)
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = strings.TrimRight(strings.TrimSpace(v), "\x00")
	}
	return out, nil
}

// Int returns the first value of a numeric element as an int. IS and DS
// values are parsed.
func (f *File) Int(t tag.Tag) (int, error) {
	e, ok := f.Element(t)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrElementNotFound, t)
	}
	if e.Value == nil {
		return 0, fmt.Errorf("%w: %s is empty", ErrElementNotFound, t)
	}
	if vals, ok := e.Value.GetValue().([]int); ok {
		if len(vals) == 0 {
			return 0, fmt.Errorf("%w: %s is empty", ErrElementNotFound, t)
		}
		return vals[0], nil
	}
	v, err := f.Float(t)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// Float returns the first value of a decimal, integer string, or binary
// numeric element.
func (f *File) Float(t tag.Tag) (float64, error) {
	e, ok := f.Element(t)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrElementNotFound, t)
	}
	if e.Value == nil {
		return 0, fmt.Errorf("%w: %s is empty", ErrElementNotFound, t)
	}
	switch vals := e.Value.GetValue().(type) {
	case []float64:
		if len(vals) > 0 {
			return vals[0], nil
		}
	case []int:
		if len(vals) > 0 {
			return float64(vals[0]), nil
		}
	case []string:
		if len(vals) > 0 {
			v, err := strconv.ParseFloat(strings.TrimSpace(vals[0]), 64)
			if err != nil {
				return 0, fmt.Errorf("%w: %s: %v", ErrMalformed, t, err)
			}
			return v, nil
		}
	default:
		return 0, fmt.Errorf("%w: %s is not numeric", ErrMalformed, t)
	}
	return 0, fmt.Errorf("%w: %s is empty", ErrElementNotFound, t)
}

func firstString(e *dicom.Element) string {
	if e == nil || e.Value == nil {
		return ""
	}
	vals, ok := e.Value.GetValue().([]string)
	if !ok || len(vals) == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(vals[0]), "\x00")
}

func compareTags(a, b tag.Tag) int {
	return cmp.Or(cmp.Compare(a.Group, b.Group), cmp.Compare(a.Element, b.Element))
}
