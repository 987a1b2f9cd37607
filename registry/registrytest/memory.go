// Package registrytest provides an in-memory OCI client for tests.
package registrytest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/meigma/dicomblob/registry/oras"
)

// Memory is an in-memory registry.OCIClient. Repositories are keyed by the
// repository part of each reference.
type Memory struct {
	mu        sync.Mutex
	blobs     map[digest.Digest][]byte
	manifests map[digest.Digest][]byte
	tags      map[string]ocispec.Descriptor

	// PushBlobErr, when set, is returned by PushBlob.
	PushBlobErr error
}

// NewMemory returns an empty Memory registry.
func NewMemory() *Memory {
	return &Memory{
		blobs:     make(map[digest.Digest][]byte),
		manifests: make(map[digest.Digest][]byte),
		tags:      make(map[string]ocispec.Descriptor),
	}
}

func repoKey(repoRef string) (string, error) {
	r, err := oras.ParseReference(repoRef)
	if err != nil {
		return "", err
	}
	return r.Registry + "/" + r.Repository, nil
}

// PushBlob implements registry.OCIClient.
func (m *Memory) PushBlob(_ context.Context, _ string, desc *ocispec.Descriptor, r io.Reader) error {
	if m.PushBlobErr != nil {
		return m.PushBlobErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if digest.FromBytes(data) != desc.Digest || int64(len(data)) != desc.Size {
		return fmt.Errorf("%w: blob does not match descriptor", oras.ErrInvalidDescriptor)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[desc.Digest] = data
	return nil
}

// FetchBlob implements registry.OCIClient.
func (m *Memory) FetchBlob(_ context.Context, _ string, desc *ocispec.Descriptor) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[desc.Digest]
	if !ok {
		return nil, fmt.Errorf("%w: blob %s", oras.ErrNotFound, desc.Digest)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// PushManifest implements registry.OCIClient.
func (m *Memory) PushManifest(_ context.Context, repoRef, tag string, manifest *ocispec.Manifest) (ocispec.Descriptor, error) {
	repo, err := repoKey(repoRef)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	raw, err := json.Marshal(manifest)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	desc := ocispec.Descriptor{
		MediaType:    ocispec.MediaTypeImageManifest,
		ArtifactType: manifest.ArtifactType,
		Digest:       digest.FromBytes(raw),
		Size:         int64(len(raw)),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifests[desc.Digest] = raw
	m.tags[repo+":"+tag] = desc
	return desc, nil
}

// FetchManifest implements registry.OCIClient.
func (m *Memory) FetchManifest(_ context.Context, _ string, expected *ocispec.Descriptor) (ocispec.Manifest, []byte, error) {
	m.mu.Lock()
	raw, ok := m.manifests[expected.Digest]
	m.mu.Unlock()
	if !ok {
		return ocispec.Manifest{}, nil, fmt.Errorf("%w: manifest %s", oras.ErrNotFound, expected.Digest)
	}
	var manifest ocispec.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return ocispec.Manifest{}, nil, fmt.Errorf("%w: %v", oras.ErrManifestInvalid, err)
	}
	return manifest, raw, nil
}

// Resolve implements registry.OCIClient.
func (m *Memory) Resolve(_ context.Context, repoRef, ref string) (ocispec.Descriptor, error) {
	repo, err := repoKey(repoRef)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	desc, ok := m.tags[repo+":"+ref]
	if !ok {
		return ocispec.Descriptor{}, fmt.Errorf("%w: %s:%s", oras.ErrNotFound, repo, ref)
	}
	return desc, nil
}

// Tags returns the number of tags across all repositories.
func (m *Memory) Tags() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tags)
}

// CorruptBlob replaces the content of the blob with digest d.
func (m *Memory) CorruptBlob(d digest.Digest, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[d] = data
}
