package transcode

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/dicomblob/internal/part10"
)

const (
	rleHeaderLen   = 64
	rleMaxSegments = 15
)

// RLELossless handles RLE Lossless frames. Each sample byte plane is a
// PackBits segment, most significant byte first.
type RLELossless struct{}

// UID implements Codec.
func (RLELossless) UID() string { return part10.RLELossless }

// Name implements Codec.
func (RLELossless) Name() string { return "RLE Lossless" }

// Decode implements Codec. Output is interleaved (planar configuration 0).
func (RLELossless) Decode(frame []byte, info part10.PixelInfo) ([]byte, part10.PixelInfo, error) {
	if len(frame) < rleHeaderLen {
		return nil, info, fmt.Errorf("%w: RLE header is %d bytes", errCorruptFrame, len(frame))
	}
	bps := info.BytesPerSample()
	samples := info.SamplesPerPixel
	want := bps * samples
	segments := int(binary.LittleEndian.Uint32(frame))
	if segments != want || segments > rleMaxSegments {
		return nil, info, fmt.Errorf("%w: %d RLE segments, want %d", errCorruptFrame, segments, want)
	}
	offsets := make([]int, segments+1)
	for i := range segments {
		offsets[i] = int(binary.LittleEndian.Uint32(frame[4+4*i:]))
	}
	offsets[segments] = len(frame)

	pixels := info.Rows * info.Columns
	out := make([]byte, pixels*want)
	for s := range samples {
		for b := range bps {
			seg := s*bps + b
			start, end := offsets[seg], offsets[seg+1]
			if start < rleHeaderLen || start > end || end > len(frame) {
				return nil, info, fmt.Errorf("%w: RLE segment %d spans %d..%d", errCorruptFrame, seg, start, end)
			}
			plane, err := unpackBits(frame[start:end], pixels)
			if err != nil {
				return nil, info, fmt.Errorf("RLE segment %d: %w", seg, err)
			}
			// Segment 0 of a sample is its most significant byte.
			pos := bps - 1 - b
			for p, v := range plane {
				out[(p*samples+s)*bps+pos] = v
			}
		}
	}

	decoded := info
	decoded.PlanarConfiguration = 0
	return out, decoded, nil
}

// Encode implements Codec. Rows are packed separately.
func (RLELossless) Encode(native []byte, info part10.PixelInfo) ([]byte, part10.PixelInfo, error) {
	bps := info.BytesPerSample()
	samples := info.SamplesPerPixel
	segments := bps * samples
	if segments > rleMaxSegments || info.BitsAllocated%8 != 0 {
		return nil, info, fmt.Errorf("%w: RLE cannot hold %d samples of %d bits", errPixelLayout, samples, info.BitsAllocated)
	}
	if len(native) < info.FrameSize() {
		return nil, info, fmt.Errorf("%w: frame has %d bytes, want %d", errCorruptFrame, len(native), info.FrameSize())
	}

	pixels := info.Rows * info.Columns
	header := make([]byte, rleHeaderLen)
	binary.LittleEndian.PutUint32(header, uint32(segments))
	body := make([]byte, 0, len(native))
	plane := make([]byte, pixels)
	for s := range samples {
		for b := range bps {
			seg := s*bps + b
			pos := bps - 1 - b
			for p := range pixels {
				var idx int
				if info.PlanarConfiguration == 1 && samples > 1 {
					idx = (s*pixels+p)*bps + pos
				} else {
					idx = (p*samples+s)*bps + pos
				}
				plane[p] = native[idx]
			}
			binary.LittleEndian.PutUint32(header[4+4*seg:], uint32(rleHeaderLen+len(body)))
			for r := range info.Rows {
				body = packBits(body, plane[r*info.Columns:(r+1)*info.Columns])
			}
			if len(body)%2 != 0 {
				body = append(body, 0x00)
			}
		}
	}

	encoded := info
	encoded.PlanarConfiguration = 0
	return append(header, body...), encoded, nil
}

// unpackBits decodes a PackBits segment into exactly n bytes.
func unpackBits(src []byte, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for i := 0; i < len(src) && len(out) < n; {
		c := int8(src[i])
		i++
		switch {
		case c >= 0:
			cnt := int(c) + 1
			if i+cnt > len(src) {
				return nil, fmt.Errorf("%w: literal run past end of segment", errCorruptFrame)
			}
			out = append(out, src[i:i+cnt]...)
			i += cnt
		case c != -128:
			if i >= len(src) {
				return nil, fmt.Errorf("%w: replicate run past end of segment", errCorruptFrame)
			}
			for range 1 - int(c) {
				out = append(out, src[i])
			}
			i++
		}
	}
	if len(out) < n {
		return nil, fmt.Errorf("%w: segment decodes to %d bytes, want %d", errCorruptFrame, len(out), n)
	}
	return out[:n], nil
}

// packBits appends the PackBits encoding of row to dst.
func packBits(dst, row []byte) []byte {
	n := len(row)
	for i := 0; i < n; {
		j := i + 1
		for j < n && j-i < 128 && row[j] == row[i] {
			j++
		}
		if run := j - i; run >= 2 {
			dst = append(dst, byte(int8(1-run)), row[i])
			i = j
			continue
		}
		start := i
		for i < n && i-start < 128 {
			if i+2 < n && row[i] == row[i+1] && row[i] == row[i+2] {
				break
			}
			i++
		}
		dst = append(dst, byte(i-start-1))
		dst = append(dst, row[start:i]...)
	}
	return dst
}
