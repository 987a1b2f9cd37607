package part10

import (
	"fmt"
	"slices"
)

// Fragments is the content of encapsulated pixel data. Offsets is the basic
// offset table, which may be empty; Items are the compressed fragments in
// stream order.
type Fragments struct {
	Offsets []uint32
	Items   [][]byte
}

// NewFragments builds encapsulated pixel data with one fragment per frame
// and a populated basic offset table.
func NewFragments(frames [][]byte) *Fragments {
	f := &Fragments{
		Offsets: make([]uint32, len(frames)),
		Items:   make([][]byte, len(frames)),
	}
	var pos uint32
	for i, frame := range frames {
		if len(frame)%2 != 0 {
			frame = append(slices.Clip(frame), 0x00)
		}
		f.Offsets[i] = pos
		f.Items[i] = frame
		pos += 8 + uint32(len(frame))
	}
	return f
}

// Frame returns the compressed bytes of one frame by concatenating the
// fragments that belong to it. Only that frame's fragments are touched.
func (f *Fragments) Frame(index, frameCount int) ([]byte, error) {
	ranges, err := f.frameRanges(frameCount)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(ranges) {
		return nil, fmt.Errorf("%w: frame %d of %d", ErrMalformed, index, len(ranges))
	}
	r := ranges[index]
	if r[1]-r[0] == 1 {
		return f.Items[r[0]], nil
	}
	var size int
	for _, item := range f.Items[r[0]:r[1]] {
		size += len(item)
	}
	out := make([]byte, 0, size)
	for _, item := range f.Items[r[0]:r[1]] {
		out = append(out, item...)
	}
	return out, nil
}

// frameRanges maps frames to half-open fragment index ranges. It uses the
// basic offset table when present, otherwise one fragment per frame, a
// single multi-fragment frame, or JPEG start-of-image markers.
func (f *Fragments) frameRanges(frameCount int) ([][2]int, error) {
	if frameCount <= 0 {
		return nil, fmt.Errorf("%w: frame count %d", ErrMalformed, frameCount)
	}
	n := len(f.Items)
	if n == 0 {
		return nil, fmt.Errorf("%w: no fragments", ErrMalformed)
	}

	if len(f.Offsets) == frameCount {
		return f.rangesFromOffsets(f.Offsets)
	}

	switch {
	case frameCount == 1:
		return [][2]int{{0, n}}, nil
	case n == frameCount:
		out := make([][2]int, n)
		for i := range n {
			out[i] = [2]int{i, i + 1}
		}
		return out, nil
	}

	var starts []int
	for i, item := range f.Items {
		if len(item) >= 2 && item[0] == 0xFF && item[1] == 0xD8 {
			starts = append(starts, i)
		}
	}
	if len(starts) != frameCount || starts[0] != 0 {
		return nil, fmt.Errorf("%w: cannot map %d fragments to %d frames", ErrMalformed, n, frameCount)
	}
	out := make([][2]int, frameCount)
	for i, s := range starts {
		end := n
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		out[i] = [2]int{s, end}
	}
	return out, nil
}

func (f *Fragments) rangesFromOffsets(offsets []uint32) ([][2]int, error) {
	itemAt := make(map[uint32]int, len(f.Items))
	var pos uint32
	for i, item := range f.Items {
		itemAt[pos] = i
		pos += 8 + uint32(len(item))
	}
	out := make([][2]int, len(offsets))
	for i, off := range offsets {
		start, ok := itemAt[off]
		if !ok {
			return nil, fmt.Errorf("%w: offset %d does not start a fragment", ErrMalformed, off)
		}
		out[i][0] = start
		if i > 0 {
			if start <= out[i-1][0] {
				return nil, fmt.Errorf("%w: offset table not increasing", ErrMalformed)
			}
			out[i-1][1] = start
		}
	}
	out[len(out)-1][1] = len(f.Items)
	return out, nil
}
