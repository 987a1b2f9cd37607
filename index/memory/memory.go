// Package memory implements core.MetadataIndex in memory.
package memory

import (
	"context"
	"sync"

	"github.com/meigma/dicomblob/core"
)

// Index lists instances in insertion order. It is safe for concurrent use.
type Index struct {
	mu        sync.RWMutex
	instances []core.ResourceIdentifier
	seen      map[core.ResourceIdentifier]struct{}
}

// New returns an Index holding ids in the given order. Duplicates are
// dropped.
func New(ids ...core.ResourceIdentifier) *Index {
	idx := &Index{seen: make(map[core.ResourceIdentifier]struct{}, len(ids))}
	for _, id := range ids {
		idx.add(id)
	}
	return idx
}

// ListInstances returns the instances of study, or of one series when
// series is non-empty.
func (idx *Index) ListInstances(ctx context.Context, study, series string) ([]core.ResourceIdentifier, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := []core.ResourceIdentifier{}
	for _, id := range idx.instances {
		if id.StudyUID != study {
			continue
		}
		if series != "" && id.SeriesUID != series {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// Add appends id unless it is already indexed.
func (idx *Index) Add(ctx context.Context, id core.ResourceIdentifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := id.Validate(); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.add(id)
	return nil
}

func (idx *Index) add(id core.ResourceIdentifier) {
	if _, ok := idx.seen[id]; ok {
		return
	}
	idx.seen[id] = struct{}{}
	idx.instances = append(idx.instances, id)
}

// Len returns the number of indexed instances.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.instances)
}
