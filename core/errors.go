package core

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Sentinel errors for retrieve and export operations.
var (
	// ErrNotFound is returned when a resource is absent from the index or store.
	ErrNotFound = errors.New("dicomblob: not found")

	// ErrInvalidRequest is returned when a retrieve request is malformed.
	ErrInvalidRequest = errors.New("dicomblob: invalid request")

	// ErrInvalidReference is returned when an instance reference is not study/series/sop.
	ErrInvalidReference = errors.New("dicomblob: invalid instance reference")

	// ErrStructureInvalid is returned when an object lacks the attributes
	// required for frame access.
	ErrStructureInvalid = errors.New("dicomblob: invalid structure")

	// ErrFrameNotFound is returned when requested frame indices are out of range.
	ErrFrameNotFound = errors.New("dicomblob: frame not found")

	// ErrUnsupportedTranscode is returned when no codec path connects two
	// transfer syntaxes.
	ErrUnsupportedTranscode = errors.New("dicomblob: unsupported transcode")

	// ErrCodecUnsupported is returned when no codec is available for an
	// encapsulated transfer syntax.
	ErrCodecUnsupported = errors.New("dicomblob: codec unsupported")

	// ErrStorageFailure is returned when a sink or store write fails.
	ErrStorageFailure = errors.New("dicomblob: storage failure")
)

// FrameNotFoundError reports every requested frame index that does not exist.
type FrameNotFoundError struct {
	Missing []int
}

func (e *FrameNotFoundError) Error() string {
	parts := make([]string, len(e.Missing))
	for i, idx := range e.Missing {
		parts[i] = strconv.Itoa(idx)
	}
	return fmt.Sprintf("%v: [%s]", ErrFrameNotFound, strings.Join(parts, ","))
}

// Is reports whether target is ErrFrameNotFound.
func (e *FrameNotFoundError) Is(target error) bool {
	return target == ErrFrameNotFound
}

// NewFrameNotFoundError returns a FrameNotFoundError with a copy of missing.
func NewFrameNotFoundError(missing []int) *FrameNotFoundError {
	return &FrameNotFoundError{Missing: slices.Clone(missing)}
}
