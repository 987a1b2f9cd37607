package retrieve

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/meigma/dicomblob/core"
)

type mockIndex struct {
	listFunc func(ctx context.Context, study, series string) ([]core.ResourceIdentifier, error)
	calls    atomic.Int32
}

func (m *mockIndex) ListInstances(ctx context.Context, study, series string) ([]core.ResourceIdentifier, error) {
	m.calls.Add(1)
	if m.listFunc != nil {
		return m.listFunc(ctx, study, series)
	}
	return nil, nil
}

func (m *mockIndex) Add(context.Context, core.ResourceIdentifier) error {
	return nil
}

type mockStore struct {
	getFunc func(ctx context.Context, id core.ResourceIdentifier) (io.ReadCloser, error)

	mu     sync.Mutex
	opened []*trackedReader
}

func (m *mockStore) Get(ctx context.Context, id core.ResourceIdentifier) (io.ReadCloser, error) {
	rc, err := m.getFunc(ctx, id)
	if err != nil {
		return nil, err
	}
	tr := &trackedReader{ReadCloser: rc}
	m.mu.Lock()
	m.opened = append(m.opened, tr)
	m.mu.Unlock()
	return tr, nil
}

func (m *mockStore) Exists(ctx context.Context, id core.ResourceIdentifier) (bool, error) {
	_, err := m.getFunc(ctx, id)
	return err == nil, nil
}

func (m *mockStore) Put(context.Context, core.ResourceIdentifier, io.Reader) error {
	return fmt.Errorf("mockStore: read only")
}

func (m *mockStore) allClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tr := range m.opened {
		if !tr.closed.Load() {
			return false
		}
	}
	return true
}

type trackedReader struct {
	io.ReadCloser
	closed atomic.Bool
}

func (r *trackedReader) Close() error {
	r.closed.Store(true)
	return r.ReadCloser.Close()
}

// mapStore serves objects from a map keyed by identifier.
func mapStore(objects map[core.ResourceIdentifier][]byte) *mockStore {
	return &mockStore{
		getFunc: func(_ context.Context, id core.ResourceIdentifier) (io.ReadCloser, error) {
			data, ok := objects[id]
			if !ok {
				return nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
			}
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func staticIndex(ids ...core.ResourceIdentifier) *mockIndex {
	return &mockIndex{
		listFunc: func(_ context.Context, study, series string) ([]core.ResourceIdentifier, error) {
			var out []core.ResourceIdentifier
			for _, id := range ids {
				if id.StudyUID == study && (series == "" || id.SeriesUID == series) {
					out = append(out, id)
				}
			}
			return out, nil
		},
	}
}
