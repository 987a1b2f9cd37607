package core

import (
	"context"
	"io"
)

// MetadataIndex lists stored instances by study and series.
type MetadataIndex interface {
	// ListInstances returns the instances of a study, or of one series when
	// series is non-empty, in index order. No matches is an empty slice.
	ListInstances(ctx context.Context, study, series string) ([]ResourceIdentifier, error)

	// Add records an instance. Adding an existing instance is a no-op.
	Add(ctx context.Context, id ResourceIdentifier) error
}

// BlobStore holds the raw Part 10 bytes of stored instances.
type BlobStore interface {
	// Get opens the stored bytes of id. The caller closes the reader.
	// Returns ErrNotFound when absent.
	Get(ctx context.Context, id ResourceIdentifier) (io.ReadCloser, error)

	// Exists reports whether id is stored.
	Exists(ctx context.Context, id ResourceIdentifier) (bool, error)

	// Put stores the bytes read from r under id, replacing any previous value.
	Put(ctx context.Context, id ResourceIdentifier, r io.Reader) error
}

// ExportSink receives exported objects.
type ExportSink interface {
	// Put writes the content of r to key with the given content type.
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
}

// Media types used for stored and exported content.
const (
	MediaTypeDICOM       = "application/dicom"
	MediaTypeJPEG        = "image/jpeg"
	MediaTypeOctetStream = "application/octet-stream"
)
