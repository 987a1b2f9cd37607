package transcode

import (
	"errors"

	"github.com/meigma/dicomblob/internal/part10"
)

// Codec compresses and decompresses single frames of one encapsulated
// transfer syntax.
type Codec interface {
	// UID returns the transfer syntax UID the codec handles.
	UID() string

	// Name returns a human-readable name.
	Name() string

	// Decode decompresses one frame into native little endian pixel data.
	// The returned PixelInfo describes the decoded layout.
	Decode(frame []byte, info part10.PixelInfo) ([]byte, part10.PixelInfo, error)

	// Encode compresses one native frame. The returned PixelInfo describes
	// the attributes the encoded object must declare.
	Encode(native []byte, info part10.PixelInfo) ([]byte, part10.PixelInfo, error)
}

var (
	// errCorruptFrame is returned by codecs for undecodable input.
	errCorruptFrame = errors.New("corrupt frame")

	// errPixelLayout is returned by codecs for pixel layouts they cannot encode.
	errPixelLayout = errors.New("unsupported pixel layout")
)
