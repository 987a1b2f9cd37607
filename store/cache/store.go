// Package cache wraps a core.BlobStore with a local disk cache.
//
// Entries are keyed by the digest of the instance identifier and stored
// zstd-compressed. Concurrent misses for the same instance share one fetch
// from the wrapped store.
package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/dicomblob/core"
)

// Store is a caching core.BlobStore.
type Store struct {
	source core.BlobStore
	disk   *Disk
	group  singleflight.Group
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for cache hit and miss output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Wrap returns source cached in disk. A nil disk returns source unchanged.
func Wrap(source core.BlobStore, disk *Disk, opts ...Option) core.BlobStore {
	if disk == nil {
		return source
	}
	s := &Store{source: source, disk: disk}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Key returns the cache key for id.
func Key(id core.ResourceIdentifier) digest.Digest {
	return digest.FromString(id.String())
}

// Get returns the cached bytes of id, fetching them from the wrapped store
// on a miss.
func (s *Store) Get(ctx context.Context, id core.ResourceIdentifier) (io.ReadCloser, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	key := Key(id)
	if rc, ok := s.disk.Get(key); ok {
		s.log().Debug("cache hit", "id", id.String())
		return rc, nil
	}

	v, err, shared := s.group.Do(key.String(), func() (any, error) {
		return s.fill(ctx, id, key)
	})
	if err != nil {
		return nil, err
	}
	s.log().Debug("cache miss", "id", id.String(), "shared", shared)
	return io.NopCloser(bytes.NewReader(v.([]byte))), nil
}

// fill reads id from the wrapped store and stores it in the cache. Failing
// to cache is logged and does not fail the fetch.
func (s *Store) fill(ctx context.Context, id core.ResourceIdentifier, key digest.Digest) ([]byte, error) {
	rc, err := s.source.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", id, err)
	}
	stored, err := s.disk.Put(key, bytes.NewReader(data))
	switch {
	case err != nil:
		s.log().Warn("cache write failed", "id", id.String(), "error", err)
	case !stored:
		s.log().Debug("instance larger than cache", "id", id.String(), "size", len(data))
	}
	return data, nil
}

// Exists reports a cached instance as present without asking the wrapped
// store.
func (s *Store) Exists(ctx context.Context, id core.ResourceIdentifier) (bool, error) {
	if err := id.Validate(); err != nil {
		return false, err
	}
	if rc, ok := s.disk.Get(Key(id)); ok {
		rc.Close()
		return true, nil
	}
	return s.source.Exists(ctx, id)
}

// Put writes through to the wrapped store and drops any cached copy.
func (s *Store) Put(ctx context.Context, id core.ResourceIdentifier, r io.Reader) error {
	if err := s.source.Put(ctx, id, r); err != nil {
		return err
	}
	if err := s.disk.Delete(Key(id)); err != nil {
		s.log().Warn("cache invalidate failed", "id", id.String(), "error", err)
	}
	return nil
}
