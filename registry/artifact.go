package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Artifact describes a single-layer artifact to push.
type Artifact struct {
	// ArtifactType is the manifest artifact type.
	ArtifactType string
	// MediaType is the layer media type.
	MediaType string
	// Title, when set, is recorded as the layer's title annotation.
	Title string
	// Annotations are added to the manifest.
	Annotations map[string]string
}

// Fetched describes an artifact opened by Fetch.
type Fetched struct {
	Manifest ocispec.Manifest
	Layer    ocispec.Descriptor
}

// Push pushes content as a single-layer artifact. The ref must include a
// tag (e.g., "registry.com/repo:tag").
func (c *Client) Push(ctx context.Context, ref string, a Artifact, content []byte) (ocispec.Descriptor, error) {
	parsed, err := parseClientRef(ref)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	tag := parsed.reference
	if tag == "" || isDigest(tag) {
		return ocispec.Descriptor{}, fmt.Errorf("%w: reference must include a tag", ErrInvalidReference)
	}

	configDesc, err := c.pushEmptyConfig(ctx, ref)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("push config: %w", err)
	}

	layer := ocispec.Descriptor{
		MediaType: a.MediaType,
		Digest:    digest.FromBytes(content),
		Size:      int64(len(content)),
	}
	if layer.MediaType == "" {
		layer.MediaType = "application/octet-stream"
	}
	if a.Title != "" {
		layer.Annotations = map[string]string{ocispec.AnnotationTitle: a.Title}
	}
	if err := c.oci.PushBlob(ctx, ref, &layer, bytes.NewReader(content)); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("push layer: %w", mapOCIError(err))
	}

	manifest := buildManifest(&configDesc, &layer, a.ArtifactType, a.Annotations)
	desc, err := c.oci.PushManifest(ctx, ref, tag, &manifest)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("push manifest: %w", mapOCIError(err))
	}
	c.log().Debug("pushed artifact", "ref", ref, "digest", desc.Digest.String(), "size", layer.Size)
	return desc, nil
}

// Fetch resolves ref and opens its single layer. The returned reader fails
// with ErrDigestMismatch at EOF when the content does not match the layer
// descriptor. The caller closes the reader.
func (c *Client) Fetch(ctx context.Context, ref string) (io.ReadCloser, *Fetched, error) {
	parsed, err := parseClientRef(ref)
	if err != nil {
		return nil, nil, err
	}
	if parsed.reference == "" {
		return nil, nil, fmt.Errorf("%w: reference must include a tag or digest", ErrInvalidReference)
	}

	desc, err := c.oci.Resolve(ctx, ref, parsed.reference)
	if err != nil {
		return nil, nil, mapOCIError(err)
	}
	manifest, _, err := c.oci.FetchManifest(ctx, ref, &desc)
	if err != nil {
		return nil, nil, mapOCIError(err)
	}
	if len(manifest.Layers) != 1 {
		return nil, nil, fmt.Errorf("%w: %d layers", ErrInvalidManifest, len(manifest.Layers))
	}

	layer := manifest.Layers[0]
	rc, err := c.oci.FetchBlob(ctx, ref, &layer)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch layer: %w", mapOCIError(err))
	}
	c.log().Debug("fetched artifact", "ref", ref, "digest", layer.Digest.String(), "size", layer.Size)
	return newVerifyingReader(rc, layer), &Fetched{Manifest: manifest, Layer: layer}, nil
}

// Exists reports whether ref resolves to a manifest.
func (c *Client) Exists(ctx context.Context, ref string) (bool, error) {
	parsed, err := parseClientRef(ref)
	if err != nil {
		return false, err
	}
	if _, err := c.oci.Resolve(ctx, ref, parsed.reference); err != nil {
		err = mapOCIError(err)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// pushEmptyConfig pushes the empty JSON config blob required by OCI manifests.
func (c *Client) pushEmptyConfig(ctx context.Context, ref string) (ocispec.Descriptor, error) {
	desc := ocispec.DescriptorEmptyJSON
	if err := c.oci.PushBlob(ctx, ref, &desc, bytes.NewReader(desc.Data)); err != nil {
		return ocispec.Descriptor{}, mapOCIError(err)
	}
	desc.Data = nil
	return desc, nil
}

// buildManifest creates a single-layer artifact manifest.
func buildManifest(configDesc, layer *ocispec.Descriptor, artifactType string, customAnnotations map[string]string) ocispec.Manifest {
	annotations := make(map[string]string, len(customAnnotations)+1)
	maps.Copy(annotations, customAnnotations)
	if _, ok := annotations[ocispec.AnnotationCreated]; !ok {
		annotations[ocispec.AnnotationCreated] = time.Now().UTC().Format(time.RFC3339)
	}

	return ocispec.Manifest{
		Versioned:    specs.Versioned{SchemaVersion: 2},
		MediaType:    ocispec.MediaTypeImageManifest,
		ArtifactType: artifactType,
		Config:       *configDesc,
		Layers:       []ocispec.Descriptor{*layer},
		Annotations:  annotations,
	}
}

// verifyingReader checks size and digest of a layer as it is read.
type verifyingReader struct {
	rc       io.ReadCloser
	verifier digest.Verifier
	desc     ocispec.Descriptor
	read     int64
}

func newVerifyingReader(rc io.ReadCloser, desc ocispec.Descriptor) *verifyingReader {
	return &verifyingReader{rc: rc, verifier: desc.Digest.Verifier(), desc: desc}
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	n, err := v.rc.Read(p)
	if n > 0 {
		_, _ = v.verifier.Write(p[:n])
		v.read += int64(n)
	}
	if v.read > v.desc.Size {
		return n, fmt.Errorf("%w: layer larger than %d bytes", ErrDigestMismatch, v.desc.Size)
	}
	if errors.Is(err, io.EOF) {
		if v.read != v.desc.Size || !v.verifier.Verified() {
			return n, fmt.Errorf("%w: %s", ErrDigestMismatch, v.desc.Digest)
		}
	}
	return n, err
}

func (v *verifyingReader) Close() error {
	return v.rc.Close()
}
