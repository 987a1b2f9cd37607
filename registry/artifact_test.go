package registry

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/dicomblob/registry/oras"
	"github.com/meigma/dicomblob/registry/registrytest"
)

const testRepo = "registry.example.com/dicom"

// mockOCIClient is a minimal OCIClient whose methods are configured via
// function fields and return errNotImplemented by default.
type mockOCIClient struct {
	PushBlobFunc      func(ctx context.Context, repoRef string, desc *ocispec.Descriptor, r io.Reader) error
	FetchBlobFunc     func(ctx context.Context, repoRef string, desc *ocispec.Descriptor) (io.ReadCloser, error)
	PushManifestFunc  func(ctx context.Context, repoRef, tag string, manifest *ocispec.Manifest) (ocispec.Descriptor, error)
	FetchManifestFunc func(ctx context.Context, repoRef string, expected *ocispec.Descriptor) (ocispec.Manifest, []byte, error)
	ResolveFunc       func(ctx context.Context, repoRef, ref string) (ocispec.Descriptor, error)
}

var errNotImplemented = errors.New("not implemented in mock")

func (m *mockOCIClient) PushBlob(ctx context.Context, repoRef string, desc *ocispec.Descriptor, r io.Reader) error {
	if m.PushBlobFunc != nil {
		return m.PushBlobFunc(ctx, repoRef, desc, r)
	}
	return errNotImplemented
}

func (m *mockOCIClient) FetchBlob(ctx context.Context, repoRef string, desc *ocispec.Descriptor) (io.ReadCloser, error) {
	if m.FetchBlobFunc != nil {
		return m.FetchBlobFunc(ctx, repoRef, desc)
	}
	return nil, errNotImplemented
}

func (m *mockOCIClient) PushManifest(ctx context.Context, repoRef, tag string, manifest *ocispec.Manifest) (ocispec.Descriptor, error) {
	if m.PushManifestFunc != nil {
		return m.PushManifestFunc(ctx, repoRef, tag, manifest)
	}
	return ocispec.Descriptor{}, errNotImplemented
}

func (m *mockOCIClient) FetchManifest(ctx context.Context, repoRef string, expected *ocispec.Descriptor) (ocispec.Manifest, []byte, error) {
	if m.FetchManifestFunc != nil {
		return m.FetchManifestFunc(ctx, repoRef, expected)
	}
	return ocispec.Manifest{}, nil, errNotImplemented
}

func (m *mockOCIClient) Resolve(ctx context.Context, repoRef, ref string) (ocispec.Descriptor, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, repoRef, ref)
	}
	return ocispec.Descriptor{}, errNotImplemented
}

func TestClient_PushFetch(t *testing.T) {
	t.Parallel()

	mem := registrytest.NewMemory()
	c := New(WithOCIClient(mem))
	content := []byte("DICM payload")
	ref := Reference(testRepo, "1.2.3")

	_, err := c.Push(t.Context(), ref, Artifact{
		ArtifactType: ArtifactTypeInstance,
		MediaType:    MediaTypeDICOM,
		Title:        "1.2.3.dcm",
		Annotations:  map[string]string{AnnotationSOPInstanceUID: "1.2.3"},
	}, content)
	require.NoError(t, err)

	exists, err := c.Exists(t.Context(), ref)
	require.NoError(t, err)
	assert.True(t, exists)

	rc, fetched, err := c.Fetch(t.Context(), ref)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	assert.Equal(t, ArtifactTypeInstance, fetched.Manifest.ArtifactType)
	assert.Equal(t, ocispec.MediaTypeEmptyJSON, fetched.Manifest.Config.MediaType)
	assert.Equal(t, "1.2.3", fetched.Manifest.Annotations[AnnotationSOPInstanceUID])
	assert.NotEmpty(t, fetched.Manifest.Annotations[ocispec.AnnotationCreated])
	assert.Equal(t, MediaTypeDICOM, fetched.Layer.MediaType)
	assert.Equal(t, "1.2.3.dcm", fetched.Layer.Annotations[ocispec.AnnotationTitle])
}

func TestClient_FetchDetectsCorruption(t *testing.T) {
	t.Parallel()

	mem := registrytest.NewMemory()
	c := New(WithOCIClient(mem))
	content := []byte("original content")
	ref := Reference(testRepo, "x")
	_, err := c.Push(t.Context(), ref, Artifact{MediaType: MediaTypeDICOM}, content)
	require.NoError(t, err)

	mem.CorruptBlob(digest.FromBytes(content), []byte("tampered content"))

	rc, _, err := c.Fetch(t.Context(), ref)
	require.NoError(t, err)
	defer rc.Close()
	_, err = io.ReadAll(rc)
	require.ErrorIs(t, err, ErrDigestMismatch)
}

func TestClient_FetchErrors(t *testing.T) {
	t.Parallel()

	layer := ocispec.Descriptor{MediaType: MediaTypeDICOM, Digest: digest.FromString("x"), Size: 1}
	tests := []struct {
		name      string
		ref       string
		setupMock func(*mockOCIClient)
		wantErr   error
	}{
		{
			name:    "missing tag",
			ref:     testRepo,
			wantErr: ErrInvalidReference,
		},
		{
			name: "not found",
			ref:  Reference(testRepo, "missing"),
			setupMock: func(m *mockOCIClient) {
				m.ResolveFunc = func(context.Context, string, string) (ocispec.Descriptor, error) {
					return ocispec.Descriptor{}, oras.ErrNotFound
				}
			},
			wantErr: ErrNotFound,
		},
		{
			name: "two layers",
			ref:  Reference(testRepo, "t"),
			setupMock: func(m *mockOCIClient) {
				m.ResolveFunc = func(context.Context, string, string) (ocispec.Descriptor, error) {
					return ocispec.Descriptor{Digest: digest.FromString("m"), Size: 10}, nil
				}
				m.FetchManifestFunc = func(context.Context, string, *ocispec.Descriptor) (ocispec.Manifest, []byte, error) {
					return ocispec.Manifest{Layers: []ocispec.Descriptor{layer, layer}}, nil, nil
				}
			},
			wantErr: ErrInvalidManifest,
		},
		{
			name: "layer missing",
			ref:  Reference(testRepo, "t"),
			setupMock: func(m *mockOCIClient) {
				m.ResolveFunc = func(context.Context, string, string) (ocispec.Descriptor, error) {
					return ocispec.Descriptor{Digest: digest.FromString("m"), Size: 10}, nil
				}
				m.FetchManifestFunc = func(context.Context, string, *ocispec.Descriptor) (ocispec.Manifest, []byte, error) {
					return ocispec.Manifest{Layers: []ocispec.Descriptor{layer}}, nil, nil
				}
				m.FetchBlobFunc = func(context.Context, string, *ocispec.Descriptor) (io.ReadCloser, error) {
					return nil, oras.ErrNotFound
				}
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := &mockOCIClient{}
			if tt.setupMock != nil {
				tt.setupMock(mock)
			}
			_, _, err := New(WithOCIClient(mock)).Fetch(t.Context(), tt.ref)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_PushErrors(t *testing.T) {
	t.Parallel()

	t.Run("digest reference", func(t *testing.T) {
		t.Parallel()
		ref := testRepo + "@" + digest.FromString("x").String()
		_, err := New(WithOCIClient(&mockOCIClient{})).Push(t.Context(), ref, Artifact{}, []byte("x"))
		require.ErrorIs(t, err, ErrInvalidReference)
	})

	t.Run("blob push failure", func(t *testing.T) {
		t.Parallel()
		mem := registrytest.NewMemory()
		mem.PushBlobErr = errors.New("quota exceeded")
		_, err := New(WithOCIClient(mem)).Push(t.Context(), Reference(testRepo, "t"), Artifact{}, []byte("x"))
		require.ErrorContains(t, err, "quota exceeded")
		assert.Zero(t, mem.Tags())
	})

	t.Run("manifest push failure", func(t *testing.T) {
		t.Parallel()
		var pushed []string
		mock := &mockOCIClient{
			PushBlobFunc: func(_ context.Context, _ string, desc *ocispec.Descriptor, r io.Reader) error {
				_, _ = io.Copy(io.Discard, r)
				pushed = append(pushed, desc.MediaType)
				return nil
			},
			PushManifestFunc: func(context.Context, string, string, *ocispec.Manifest) (ocispec.Descriptor, error) {
				return ocispec.Descriptor{}, oras.ErrInvalidReference
			},
		}
		_, err := New(WithOCIClient(mock)).Push(t.Context(), Reference(testRepo, "t"), Artifact{}, []byte("x"))
		require.ErrorIs(t, err, ErrInvalidReference)
		assert.Equal(t, []string{ocispec.MediaTypeEmptyJSON, "application/octet-stream"}, pushed)
	})
}

func TestClient_ExistsMissing(t *testing.T) {
	t.Parallel()

	exists, err := New(WithOCIClient(registrytest.NewMemory())).Exists(t.Context(), Reference(testRepo, "nope"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTagFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "uid", in: "1.2.840.113619.2.55.3", want: "1.2.840.113619.2.55.3"},
		{name: "file name", in: "1.2-3.4-5.6.dcm", want: "1.2-3.4-5.6.dcm"},
		{name: "label", in: "batchA/1.2-3.4-5.6.jpeg", want: "sha256-" + digest.FromString("batchA/1.2-3.4-5.6.jpeg").Encoded()},
		{name: "leading dot", in: ".hidden", want: "sha256-" + digest.FromString(".hidden").Encoded()},
		{name: "too long", in: strings.Repeat("1", 129), want: "sha256-" + digest.FromString(strings.Repeat("1", 129)).Encoded()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, TagFor(tt.in))
		})
	}
}
