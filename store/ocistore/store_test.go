package ocistore

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/registry"
	"github.com/meigma/dicomblob/registry/registrytest"
)

const testRepo = "registry.example.com/pacs/instances"

func newTestStore(t *testing.T) (*Store, *registrytest.Memory) {
	t.Helper()
	mem := registrytest.NewMemory()
	s, err := New(registry.New(registry.WithOCIClient(mem)), testRepo)
	require.NoError(t, err)
	return s, mem
}

func TestStorePutGet(t *testing.T) {
	t.Parallel()

	s, mem := newTestStore(t)
	id := core.NewResourceIdentifier("1.2", "3.4", "5.6")
	content := []byte("DICM instance bytes")

	require.NoError(t, s.Put(t.Context(), id, bytes.NewReader(content)))
	assert.Equal(t, 1, mem.Tags())

	rc, err := s.Get(t.Context(), id)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	exists, err := s.Exists(t.Context(), id)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStoreAnnotationMismatch(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	stored := core.NewResourceIdentifier("1.2", "3.4", "5.6")
	require.NoError(t, s.Put(t.Context(), stored, bytes.NewReader([]byte("x"))))

	_, err := s.Get(t.Context(), core.NewResourceIdentifier("9.9", "3.4", "5.6"))
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestStoreMissing(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	id := core.NewResourceIdentifier("1", "2", "3")

	_, err := s.Get(t.Context(), id)
	require.ErrorIs(t, err, core.ErrNotFound)

	exists, err := s.Exists(t.Context(), id)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStoreInvalidIdentifier(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	_, err := s.Get(t.Context(), core.NewResourceIdentifier("1", "", "3"))
	require.ErrorIs(t, err, core.ErrInvalidRequest)
}

func TestStorePushFailure(t *testing.T) {
	t.Parallel()

	s, mem := newTestStore(t)
	mem.PushBlobErr = assert.AnError
	err := s.Put(t.Context(), core.NewResourceIdentifier("1", "2", "3"), bytes.NewReader([]byte("x")))
	require.ErrorIs(t, err, core.ErrStorageFailure)
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(nil, testRepo)
	require.Error(t, err)
	_, err = New(registry.New(), "")
	require.Error(t, err)
}

func TestRef(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	assert.Equal(t, testRepo+":5.6", s.Ref(core.NewResourceIdentifier("1.2", "3.4", "5.6")))
}
