package registry

import (
	"context"
	"io"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// OCIClient is the registry transport behind Client. The oras package
// implements it; tests use registrytest.Memory.
type OCIClient interface {
	// PushBlob uploads r as the blob described by desc. desc carries the
	// digest and size computed by the caller.
	PushBlob(ctx context.Context, repoRef string, desc *ocispec.Descriptor, r io.Reader) error

	// FetchBlob opens the blob described by desc. The caller closes it.
	FetchBlob(ctx context.Context, repoRef string, desc *ocispec.Descriptor) (io.ReadCloser, error)

	// PushManifest uploads manifest and tags it.
	PushManifest(ctx context.Context, repoRef, tag string, manifest *ocispec.Manifest) (ocispec.Descriptor, error)

	// FetchManifest fetches and decodes the manifest described by expected,
	// returning the raw bytes as well.
	FetchManifest(ctx context.Context, repoRef string, expected *ocispec.Descriptor) (ocispec.Manifest, []byte, error)

	// Resolve returns the manifest descriptor for a tag or digest.
	Resolve(ctx context.Context, repoRef, ref string) (ocispec.Descriptor, error)
}
