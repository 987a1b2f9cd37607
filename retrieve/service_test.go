package retrieve

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/internal/part10"
	"github.com/meigma/dicomblob/internal/part10/part10test"
	"github.com/meigma/dicomblob/transcode"
)

var (
	idA = core.NewResourceIdentifier("1.2", "3.4", "5.6.1")
	idB = core.NewResourceIdentifier("1.2", "3.4", "5.6.2")
	idC = core.NewResourceIdentifier("1.2", "3.4", "5.6.3")
)

func threeFrameInfo() part10.PixelInfo {
	info := part10test.DefaultInfo
	info.NumberOfFrames = 3
	return info
}

func TestRetrieveSeriesPreservesOrder(t *testing.T) {
	t.Parallel()

	objects := map[core.ResourceIdentifier][]byte{
		idA: part10test.Bytes(t, part10test.Options{ID: idA}),
		idB: part10test.Bytes(t, part10test.Options{ID: idB}),
		idC: part10test.Bytes(t, part10test.Options{ID: idC}),
	}
	bDone := make(chan struct{})
	inner := mapStore(objects)
	store := &mockStore{getFunc: func(ctx context.Context, id core.ResourceIdentifier) (io.ReadCloser, error) {
		if id == idB {
			defer close(bDone)
		} else {
			select {
			case <-bDone:
			case <-time.After(5 * time.Second):
				return nil, fmt.Errorf("timed out waiting for B")
			}
		}
		return inner.getFunc(ctx, id)
	}}

	svc := New(staticIndex(idA, idB, idC), store, WithMaxConcurrency(3))
	resp := svc.Retrieve(t.Context(), core.RetrieveRequest{
		Resource:       core.Series{StudyUID: "1.2", SeriesUID: "3.4"},
		TransferSyntax: core.AsStored,
	})
	require.NoError(t, resp.Err)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, resp.Streams, 3)
	defer resp.Close()

	for i, id := range []core.ResourceIdentifier{idA, idB, idC} {
		assert.Equal(t, id, resp.Parts[i].ID)
		assert.Equal(t, -1, resp.Parts[i].Frame)
		data, err := io.ReadAll(resp.Streams[i])
		require.NoError(t, err)
		assert.Equal(t, objects[id], data, "stream %d", i)
	}
}

func TestRetrieveIsLazy(t *testing.T) {
	t.Parallel()

	counting := &countingCodec{Codec: transcode.RLELossless{}}
	engine := transcode.New(transcode.WithCodec(counting))
	objects := map[core.ResourceIdentifier][]byte{
		idA: part10test.Bytes(t, part10test.Options{ID: idA}),
	}
	svc := New(nil, mapStore(objects), WithEngine(engine))

	resp := svc.Retrieve(t.Context(), core.RetrieveRequest{
		Resource:       core.Instance{ID: idA},
		TransferSyntax: part10.RLELossless,
	})
	require.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, resp.Streams, 1)
	assert.False(t, resp.Streams[0].Materialized())
	assert.Zero(t, counting.encodes.Load())

	first, err := io.ReadAll(resp.Streams[0])
	require.NoError(t, err)
	assert.Equal(t, int32(1), counting.encodes.Load())
	assert.True(t, resp.Streams[0].Materialized())

	ts, err := part10.ReadTransferSyntax(first)
	require.NoError(t, err)
	assert.Equal(t, part10.RLELossless, ts.UID)

	_, err = resp.Streams[0].Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, int32(1), counting.encodes.Load())
	require.NoError(t, resp.Close())
}

func TestRetrieveDefaultSyntaxPassthrough(t *testing.T) {
	t.Parallel()

	data := part10test.Bytes(t, part10test.Options{ID: idA})
	svc := New(nil, mapStore(map[core.ResourceIdentifier][]byte{idA: data}))

	resp := svc.Retrieve(t.Context(), core.RetrieveRequest{Resource: core.Instance{ID: idA}})
	require.Equal(t, http.StatusOK, resp.Status)
	defer resp.Close()
	assert.Equal(t, core.DefaultTransferSyntax, resp.Parts[0].TransferSyntax)

	got, err := io.ReadAll(resp.Streams[0])
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestRetrieveFailures(t *testing.T) {
	t.Parallel()

	objects := map[core.ResourceIdentifier][]byte{
		idA: part10test.Bytes(t, part10test.Options{ID: idA}),
		idC: part10test.Bytes(t, part10test.Options{ID: idC}),
	}

	tests := []struct {
		name       string
		index      *mockIndex
		req        core.RetrieveRequest
		wantStatus int
		wantErr    error
	}{
		{
			name:       "empty study",
			index:      staticIndex(),
			req:        core.RetrieveRequest{Resource: core.Study{StudyUID: "1.2"}},
			wantStatus: http.StatusNotFound,
			wantErr:    core.ErrNotFound,
		},
		{
			name:       "one instance missing",
			index:      staticIndex(idA, idB, idC),
			req:        core.RetrieveRequest{Resource: core.Study{StudyUID: "1.2"}},
			wantStatus: http.StatusNotFound,
			wantErr:    core.ErrNotFound,
		},
		{
			name:       "missing instance",
			req:        core.RetrieveRequest{Resource: core.Instance{ID: idB}},
			wantStatus: http.StatusNotFound,
			wantErr:    core.ErrNotFound,
		},
		{
			name:       "nil resource",
			req:        core.RetrieveRequest{},
			wantStatus: http.StatusBadRequest,
			wantErr:    core.ErrInvalidRequest,
		},
		{
			name:       "empty frame list",
			req:        core.RetrieveRequest{Resource: core.Frames{ID: idA}},
			wantStatus: http.StatusBadRequest,
			wantErr:    core.ErrInvalidRequest,
		},
		{
			name:       "unknown transfer syntax",
			req:        core.RetrieveRequest{Resource: core.Instance{ID: idA}, TransferSyntax: "1.2.3.4.5.6"},
			wantStatus: http.StatusNotAcceptable,
			wantErr:    core.ErrUnsupportedTranscode,
		},
		{
			name:       "big endian",
			req:        core.RetrieveRequest{Resource: core.Instance{ID: idA}, TransferSyntax: part10.ExplicitVRBigEndian},
			wantStatus: http.StatusNotAcceptable,
			wantErr:    core.ErrUnsupportedTranscode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			index := tt.index
			if index == nil {
				index = staticIndex()
			}
			store := mapStore(objects)
			resp := New(index, store).Retrieve(t.Context(), tt.req)
			assert.Equal(t, tt.wantStatus, resp.Status)
			require.ErrorIs(t, resp.Err, tt.wantErr)
			assert.Empty(t, resp.Streams)
			assert.True(t, store.allClosed(), "opened readers must be closed on failure")
		})
	}
}

func TestRetrieveCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	store := &mockStore{getFunc: func(ctx context.Context, _ core.ResourceIdentifier) (io.ReadCloser, error) {
		cancel()
		return nil, ctx.Err()
	}}

	resp := New(staticIndex(idA), store).Retrieve(ctx, core.RetrieveRequest{Resource: core.Instance{ID: idA}})
	assert.Equal(t, StatusClientClosedRequest, resp.Status)
	require.ErrorIs(t, resp.Err, context.Canceled)
}

func TestRetrieveTranscodeFailureSurfacesOnRead(t *testing.T) {
	t.Parallel()

	objects := map[core.ResourceIdentifier][]byte{
		idA: part10test.Bytes(t, part10test.Options{
			ID:             idA,
			TransferSyntax: part10.HEVCH265Main,
			Fragments:      [][]byte{{0x00, 0x00, 0x01}},
		}),
	}
	resp := New(nil, mapStore(objects)).Retrieve(t.Context(), core.RetrieveRequest{Resource: core.Instance{ID: idA}})
	require.Equal(t, http.StatusOK, resp.Status)
	defer resp.Close()

	_, err := io.ReadAll(resp.Streams[0])
	require.ErrorIs(t, err, core.ErrUnsupportedTranscode)
	assert.Equal(t, http.StatusNotAcceptable, StatusFromError(err))
}

func TestRetrieveFrames(t *testing.T) {
	t.Parallel()

	info := threeFrameInfo()
	objects := map[core.ResourceIdentifier][]byte{
		idA: part10test.Bytes(t, part10test.Options{ID: idA, Info: info}),
	}
	frames := part10test.Frames(info)
	svc := New(nil, mapStore(objects))

	resp := svc.Retrieve(t.Context(), core.RetrieveRequest{
		Resource: core.Frames{ID: idA, Indices: []int{2, 0}},
	})
	require.NoError(t, resp.Err)
	require.Len(t, resp.Streams, 2)
	defer resp.Close()

	for i, want := range []int{2, 0} {
		assert.Equal(t, want, resp.Parts[i].Frame)
		assert.Equal(t, core.DefaultTransferSyntax, resp.Parts[i].TransferSyntax)
		got, err := io.ReadAll(resp.Streams[i])
		require.NoError(t, err)
		assert.Equal(t, frames[want], got)
	}
}

func TestRetrieveFramesAsStored(t *testing.T) {
	t.Parallel()

	info := threeFrameInfo()
	objects := map[core.ResourceIdentifier][]byte{
		idA: part10test.Bytes(t, part10test.Options{ID: idA, Info: info}),
	}
	resp := New(nil, mapStore(objects)).Retrieve(t.Context(), core.RetrieveRequest{
		Resource:       core.Frames{ID: idA, Indices: []int{1}},
		TransferSyntax: core.AsStored,
	})
	require.Equal(t, http.StatusOK, resp.Status)
	defer resp.Close()
	assert.Equal(t, part10.ExplicitVRLittleEndian, resp.Parts[0].TransferSyntax)
}

func TestRetrieveFramesOutOfRange(t *testing.T) {
	t.Parallel()

	objects := map[core.ResourceIdentifier][]byte{
		idA: part10test.Bytes(t, part10test.Options{ID: idA, Info: threeFrameInfo()}),
	}
	resp := New(nil, mapStore(objects)).Retrieve(t.Context(), core.RetrieveRequest{
		Resource: core.Frames{ID: idA, Indices: []int{0, 5, 7}},
	})

	assert.Equal(t, http.StatusNotFound, resp.Status)
	var fnf *core.FrameNotFoundError
	require.ErrorAs(t, resp.Err, &fnf)
	assert.Equal(t, []int{5, 7}, fnf.Missing)
	assert.Empty(t, resp.Streams)
}

func TestRetrieveFramesMissingPixelData(t *testing.T) {
	t.Parallel()

	counting := &countingCodec{Codec: transcode.RLELossless{}}
	objects := map[core.ResourceIdentifier][]byte{
		idA: part10test.Bytes(t, part10test.Options{ID: idA, Omit: []tag.Tag{tag.PixelData}}),
	}
	svc := New(nil, mapStore(objects), WithEngine(transcode.New(transcode.WithCodec(counting))))

	resp := svc.Retrieve(t.Context(), core.RetrieveRequest{
		Resource:       core.Frames{ID: idA, Indices: []int{0}},
		TransferSyntax: part10.RLELossless,
	})
	assert.Equal(t, http.StatusNotFound, resp.Status)
	require.ErrorIs(t, resp.Err, core.ErrStructureInvalid)
	assert.Zero(t, counting.encodes.Load())
	assert.Zero(t, counting.decodes.Load())
}

func TestRetrieveFramesNotDICOM(t *testing.T) {
	t.Parallel()

	objects := map[core.ResourceIdentifier][]byte{idA: bytes.Repeat([]byte{1}, 16)}
	resp := New(nil, mapStore(objects)).Retrieve(t.Context(), core.RetrieveRequest{
		Resource: core.Frames{ID: idA, Indices: []int{0}},
	})
	assert.Equal(t, http.StatusNotFound, resp.Status)
	require.ErrorIs(t, resp.Err, core.ErrStructureInvalid)
}

type countingCodec struct {
	transcode.Codec
	decodes atomic.Int32
	encodes atomic.Int32
}

func (c *countingCodec) Decode(frame []byte, info part10.PixelInfo) ([]byte, part10.PixelInfo, error) {
	c.decodes.Add(1)
	return c.Codec.Decode(frame, info)
}

func (c *countingCodec) Encode(native []byte, info part10.PixelInfo) ([]byte, part10.PixelInfo, error) {
	c.encodes.Add(1)
	return c.Codec.Encode(native, info)
}
