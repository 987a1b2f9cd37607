package dicomblob

import (
	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/sink"
)

// Errors re-exported from core.
var (
	// ErrNotFound is returned when a resource is absent from the index or store.
	ErrNotFound = core.ErrNotFound

	// ErrInvalidRequest is returned when a request is malformed.
	ErrInvalidRequest = core.ErrInvalidRequest

	// ErrInvalidReference is returned when an instance reference is not study/series/sop.
	ErrInvalidReference = core.ErrInvalidReference

	// ErrStructureInvalid is returned when an object lacks the attributes required for frame access.
	ErrStructureInvalid = core.ErrStructureInvalid

	// ErrFrameNotFound is returned when requested frames are out of range.
	ErrFrameNotFound = core.ErrFrameNotFound

	// ErrUnsupportedTranscode is returned when no codec path connects two transfer syntaxes.
	ErrUnsupportedTranscode = core.ErrUnsupportedTranscode

	// ErrCodecUnsupported is returned when no codec is available for an encapsulated syntax.
	ErrCodecUnsupported = core.ErrCodecUnsupported

	// ErrStorageFailure is returned when a store or sink write fails.
	ErrStorageFailure = core.ErrStorageFailure
)

// ErrUnsupportedConnection is returned when an export destination cannot
// be opened from its connection string.
var ErrUnsupportedConnection = sink.ErrUnsupportedConnection

// FrameNotFoundError lists every requested frame that does not exist.
type FrameNotFoundError = core.FrameNotFoundError
