package transcode

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/internal/part10"
)

// FrameBuffer is one extracted frame.
type FrameBuffer struct {
	Index int
	// TransferSyntax is the UID the Data is encoded in.
	TransferSyntax string
	Data           []byte
	// Info describes the pixel layout of Data.
	Info part10.PixelInfo
}

// Engine converts objects and frames between transfer syntaxes using its
// registered codecs. It holds no per-call state and is safe for concurrent
// use once constructed.
type Engine struct {
	codecs  map[string]Codec
	quality int
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCodec registers c, replacing any codec for the same UID.
func WithCodec(c Codec) Option {
	return func(e *Engine) {
		e.codecs[c.UID()] = c
	}
}

// WithJPEGQuality sets the quality of the lossy library codecs.
func WithJPEGQuality(quality int) Option {
	return func(e *Engine) {
		e.quality = quality
	}
}

// WithLogger sets the logger for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New returns an Engine with the go-dicom-codec codecs and RLE Lossless
// registered. Codecs from opts take precedence over the defaults.
func New(opts ...Option) *Engine {
	e := &Engine{codecs: make(map[string]Codec), quality: DefaultJPEGQuality}
	for _, opt := range opts {
		opt(e)
	}
	for _, uid := range LibrarySyntaxes {
		if _, ok := e.codecs[uid]; ok {
			continue
		}
		c, err := NewFrameCodec(uid, e.quality)
		if err != nil {
			e.log().Warn("codec unavailable", "syntax", uid, "error", err)
			continue
		}
		e.codecs[uid] = c
	}
	if _, ok := e.codecs[part10.RLELossless]; !ok {
		e.codecs[part10.RLELossless] = RLELossless{}
	}
	return e
}

func (e *Engine) log() *slog.Logger {
	if e.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.logger
}

// Codec returns the codec registered for uid.
func (e *Engine) Codec(uid string) (Codec, bool) {
	c, ok := e.codecs[uid]
	return c, ok
}

// CanTranscode reports whether a codec path connects current and requested.
func (e *Engine) CanTranscode(current, requested string) bool {
	if current == requested || requested == core.AsStored {
		return true
	}
	_, _, err := e.path(current, requested)
	return err == nil
}

func (e *Engine) path(current, requested string) (part10.TransferSyntax, part10.TransferSyntax, error) {
	cur, ok := part10.LookupTransferSyntax(current)
	if !ok || !cur.Parsable() {
		return cur, cur, fmt.Errorf("%w: from %s", core.ErrUnsupportedTranscode, current)
	}
	req, ok := part10.LookupTransferSyntax(requested)
	if !ok || !req.Parsable() {
		return cur, req, fmt.Errorf("%w: to %s", core.ErrUnsupportedTranscode, requested)
	}
	if cur.Encapsulated {
		if _, ok := e.codecs[cur.UID]; !ok {
			return cur, req, fmt.Errorf("%w: no decoder for %s", core.ErrUnsupportedTranscode, cur)
		}
	}
	if req.Encapsulated {
		if _, ok := e.codecs[req.UID]; !ok {
			return cur, req, fmt.Errorf("%w: no encoder for %s", core.ErrUnsupportedTranscode, req)
		}
	}
	return cur, req, nil
}

// Transcode converts a Part 10 object from current to requested. Equal
// syntaxes, or requested == core.AsStored, return data itself without
// parsing it.
func (e *Engine) Transcode(data []byte, current, requested string) ([]byte, error) {
	if current == requested || requested == core.AsStored {
		e.log().Debug("transcode passthrough", "syntax", current, "size", len(data))
		return data, nil
	}
	if _, _, err := e.path(current, requested); err != nil {
		return nil, err
	}

	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if f.TransferSyntax.UID != current {
		e.log().Debug("declared transfer syntax differs from header",
			"declared", current, "header", f.TransferSyntax.UID)
		if f.TransferSyntax.UID == requested {
			return data, nil
		}
		if _, _, err := e.path(f.TransferSyntax.UID, requested); err != nil {
			return nil, err
		}
	}

	out, err := e.convert(f, part10.MustTransferSyntax(requested))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(data))
	if err := out.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode %s: %w", requested, err)
	}
	e.log().Debug("transcoded object", "from", f.TransferSyntax.UID, "to", requested,
		"in", len(data), "out", buf.Len())
	return buf.Bytes(), nil
}

// Parse parses a Part 10 object, mapping parse failures to core errors.
func Parse(data []byte) (*part10.File, error) {
	f, err := part10.Parse(data)
	if err != nil {
		return nil, parseError(err)
	}
	return f, nil
}

// TranscodeObject converts data to requested, reading the current transfer
// syntax from the file meta group.
func (e *Engine) TranscodeObject(data []byte, requested string) ([]byte, error) {
	if requested == core.AsStored {
		return data, nil
	}
	ts, err := part10.ReadTransferSyntax(data)
	if err != nil {
		return nil, parseError(err)
	}
	return e.Transcode(data, ts.UID, requested)
}

// convert re-encodes the pixel data of f for req and returns a new File.
func (e *Engine) convert(f *part10.File, req part10.TransferSyntax) (*part10.File, error) {
	cur := f.TransferSyntax
	out := f.Clone()
	if err := out.SetTransferSyntax(req); err != nil {
		return nil, err
	}

	pd, ok := out.PixelData()
	if !ok {
		return out, nil
	}
	info, err := part10.ReadPixelInfo(out)
	if !cur.Encapsulated && !req.Encapsulated {
		// Implicit VR pixel data carries no VR; declare it from BitsAllocated.
		if err == nil && !pd.IsEncapsulated() {
			if err := out.SetNativePixels(pd.Native, info.BitsAllocated); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStructureInvalid, err)
	}

	frames := make([][]byte, info.NumberOfFrames)
	if cur.Encapsulated {
		if !pd.IsEncapsulated() {
			return nil, fmt.Errorf("%w: %s object has native pixel data", core.ErrStructureInvalid, cur)
		}
		codec := e.codecs[cur.UID]
		decodedInfo := info
		for i := range frames {
			frag, err := pd.Fragments.Frame(i, info.NumberOfFrames)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", core.ErrStructureInvalid, err)
			}
			if frames[i], decodedInfo, err = codec.Decode(frag, info); err != nil {
				return nil, codecError("decode", codec, err)
			}
		}
		info = decodedInfo
	} else {
		if pd.IsEncapsulated() {
			return nil, fmt.Errorf("%w: %s object has encapsulated pixel data", core.ErrStructureInvalid, cur)
		}
		size := info.FrameSize()
		if len(pd.Native) < size*len(frames) {
			return nil, fmt.Errorf("%w: pixel data has %d bytes, %d frames need %d",
				core.ErrStructureInvalid, len(pd.Native), len(frames), size*len(frames))
		}
		for i := range frames {
			frames[i] = pd.Native[i*size : (i+1)*size]
		}
	}

	if req.Encapsulated {
		codec := e.codecs[req.UID]
		encodedInfo := info
		encoded := make([][]byte, len(frames))
		for i, native := range frames {
			var err error
			if encoded[i], encodedInfo, err = codec.Encode(native, info); err != nil {
				return nil, codecError("encode", codec, err)
			}
		}
		info = encodedInfo
		if err := out.SetEncapsulatedPixels(encoded); err != nil {
			return nil, err
		}
		if req.Lossy {
			if err := out.SetValue(tag.LossyImageCompression, []string{"01"}); err != nil {
				return nil, err
			}
		}
	} else {
		pixels := make([]byte, 0, info.FrameSize()*len(frames))
		for _, native := range frames {
			pixels = append(pixels, native...)
		}
		if err := out.SetNativePixels(pixels, info.BitsAllocated); err != nil {
			return nil, err
		}
	}
	if err := info.Apply(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExtractFrame returns frame index of f in requested. Encapsulated pixel
// data has only that frame's fragments decoded; native pixel data is sliced
// from the flat buffer. The index is range-checked here as well as by
// Validate.
func (e *Engine) ExtractFrame(f *part10.File, index int, requested string) (FrameBuffer, error) {
	pd, ok := f.PixelData()
	if !ok {
		return FrameBuffer{}, fmt.Errorf("%w: missing %s", core.ErrStructureInvalid, tag.PixelData)
	}
	info, err := part10.ReadPixelInfo(f)
	if err != nil {
		return FrameBuffer{}, fmt.Errorf("%w: %v", core.ErrStructureInvalid, err)
	}
	if index < 0 || index >= info.NumberOfFrames {
		return FrameBuffer{}, core.NewFrameNotFoundError([]int{index})
	}

	cur := f.TransferSyntax
	switch requested {
	case "":
		requested = core.DefaultTransferSyntax
	case core.AsStored:
		requested = cur.UID
	}
	req, ok := part10.LookupTransferSyntax(requested)
	if !ok || !req.Parsable() {
		return FrameBuffer{}, fmt.Errorf("%w: to %s", core.ErrUnsupportedTranscode, requested)
	}

	if pd.IsEncapsulated() {
		frag, err := pd.Fragments.Frame(index, info.NumberOfFrames)
		if err != nil {
			return FrameBuffer{}, fmt.Errorf("%w: %v", core.ErrStructureInvalid, err)
		}
		if req.UID == cur.UID {
			return FrameBuffer{Index: index, TransferSyntax: cur.UID, Data: frag, Info: info}, nil
		}
		codec, ok := e.codecs[cur.UID]
		if !ok {
			return FrameBuffer{}, fmt.Errorf("%w: no decoder for %s", core.ErrCodecUnsupported, cur)
		}
		native, nativeInfo, err := codec.Decode(frag, info)
		if err != nil {
			return FrameBuffer{}, codecError("decode", codec, err)
		}
		e.log().Debug("decoded frame", "index", index, "from", cur.UID, "size", len(native))
		return e.frameIn(index, native, nativeInfo, req)
	}

	size := info.FrameSize()
	start := index * size
	if start+size > len(pd.Native) {
		return FrameBuffer{}, core.NewFrameNotFoundError([]int{index})
	}
	return e.frameIn(index, pd.Native[start:start+size], info, req)
}

// frameIn returns a native frame encoded for req.
func (e *Engine) frameIn(index int, native []byte, info part10.PixelInfo, req part10.TransferSyntax) (FrameBuffer, error) {
	if !req.Encapsulated {
		return FrameBuffer{Index: index, TransferSyntax: req.UID, Data: native, Info: info}, nil
	}
	codec, ok := e.codecs[req.UID]
	if !ok {
		return FrameBuffer{}, fmt.Errorf("%w: no encoder for %s", core.ErrCodecUnsupported, req)
	}
	encoded, encodedInfo, err := codec.Encode(native, info)
	if err != nil {
		return FrameBuffer{}, codecError("encode", codec, err)
	}
	return FrameBuffer{Index: index, TransferSyntax: req.UID, Data: encoded, Info: encodedInfo}, nil
}
