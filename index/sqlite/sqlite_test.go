package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/dicomblob/core"
)

func openTemp(t *testing.T) (*Index, string) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "index.db")
	idx, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx, dsn
}

func TestListInstancesOrder(t *testing.T) {
	t.Parallel()

	idx, _ := openTemp(t)
	ids := []core.ResourceIdentifier{
		core.NewResourceIdentifier("1", "1.1", "C"),
		core.NewResourceIdentifier("1", "1.2", "A"),
		core.NewResourceIdentifier("1", "1.1", "B"),
		core.NewResourceIdentifier("2", "2.1", "D"),
	}
	for _, id := range ids {
		require.NoError(t, idx.Add(t.Context(), id))
	}

	tests := []struct {
		name   string
		study  string
		series string
		want   []core.ResourceIdentifier
	}{
		{name: "study keeps insertion order", study: "1", want: ids[:3]},
		{name: "series", study: "1", series: "1.1", want: []core.ResourceIdentifier{ids[0], ids[2]}},
		{name: "no match", study: "3", want: []core.ResourceIdentifier{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := idx.ListInstances(t.Context(), tt.study, tt.series)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddDuplicate(t *testing.T) {
	t.Parallel()

	idx, _ := openTemp(t)
	id := core.NewResourceIdentifier("1", "1.1", "A")
	require.NoError(t, idx.Add(t.Context(), id))
	require.NoError(t, idx.Add(t.Context(), id))

	got, err := idx.ListInstances(t.Context(), "1", "")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestAddInvalid(t *testing.T) {
	t.Parallel()

	idx, _ := openTemp(t)
	require.ErrorIs(t, idx.Add(t.Context(), core.NewResourceIdentifier("1", "", "A")), core.ErrInvalidRequest)
}

func TestReopen(t *testing.T) {
	t.Parallel()

	idx, dsn := openTemp(t)
	id := core.NewResourceIdentifier("1", "1.1", "A")
	require.NoError(t, idx.Add(t.Context(), id))
	require.NoError(t, idx.Close())

	reopened, err := Open(dsn)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.ListInstances(t.Context(), "1", "1.1")
	require.NoError(t, err)
	assert.Equal(t, []core.ResourceIdentifier{id}, got)
}

func TestOpenMemory(t *testing.T) {
	t.Parallel()

	idx, err := Open(MemoryDSN)
	require.NoError(t, err)
	defer idx.Close()

	id := core.NewResourceIdentifier("1", "1.1", "A")
	require.NoError(t, idx.Add(t.Context(), id))
	got, err := idx.ListInstances(t.Context(), "1", "")
	require.NoError(t, err)
	assert.Equal(t, []core.ResourceIdentifier{id}, got)

	_, err = Open("")
	require.Error(t, err)
}
