package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/meigma/dicomblob"
	"github.com/meigma/dicomblob/config"
	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/index/memory"
	"github.com/meigma/dicomblob/index/sqlite"
	"github.com/meigma/dicomblob/registry"
	"github.com/meigma/dicomblob/store/fsstore"
	"github.com/meigma/dicomblob/store/httpstore"
	"github.com/meigma/dicomblob/store/ocistore"
)

// env is everything a command needs, built from the configuration.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *dicomblob.Client
	closers []io.Closer
}

// Close releases the index and any other resources held by e.
func (e *env) Close() error {
	var errs []error
	for _, c := range e.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// newEnv builds the client described by cfg.
func newEnv(ctx context.Context, cfg *config.Config, logOut io.Writer) (*env, error) {
	e := &env{cfg: cfg, logger: newLogger(logOut, cfg.Log)}

	store, err := openStore(cfg.Store, e.logger)
	if err != nil {
		return nil, err
	}
	index, err := e.openIndex(ctx, store)
	if err != nil {
		return nil, err
	}

	opts := []dicomblob.Option{
		dicomblob.WithBlobStore(store),
		dicomblob.WithMetadataIndex(index),
		dicomblob.WithLogger(e.logger),
		dicomblob.WithMaxConcurrency(cfg.Retrieve.MaxConcurrency),
		dicomblob.WithJPEGQuality(cfg.Export.JPEGQuality),
		dicomblob.WithDockerConfig(),
		dicomblob.WithUserAgent("dicomblob/" + version),
	}
	if cfg.Cache.Enabled {
		limit, err := cfg.Cache.Limit()
		if err != nil {
			_ = e.Close()
			return nil, err
		}
		opts = append(opts, dicomblob.WithCacheDir(cfg.Cache.Dir, limit))
	}
	if e.client, err = dicomblob.NewClient(opts...); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func openStore(cfg config.StoreConfig, logger *slog.Logger) (core.BlobStore, error) {
	switch cfg.Backend {
	case config.StoreFS:
		return fsstore.NewDir(cfg.Dir, fsstore.WithLogger(logger))
	case config.StoreOCI:
		client := registry.New(
			registry.WithLogger(logger),
			registry.WithPlainHTTP(cfg.PlainHTTP),
			registry.WithDockerConfig(),
			registry.WithUserAgent("dicomblob/"+version),
		)
		return ocistore.New(client, path.Join(cfg.Registry, cfg.Repository), ocistore.WithLogger(logger))
	case config.StoreHTTP:
		return httpstore.New(cfg.BaseURL, httpstore.WithLogger(logger))
	}
	return nil, fmt.Errorf("%w: unknown store.backend %q", config.ErrInvalid, cfg.Backend)
}

// openIndex opens the configured index. A memory index over a filesystem
// store is seeded with every stored instance.
func (e *env) openIndex(ctx context.Context, store core.BlobStore) (core.MetadataIndex, error) {
	cfg := e.cfg.Index
	switch cfg.Backend {
	case config.IndexSQLite:
		if cfg.DSN != sqlite.MemoryDSN {
			if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o750); err != nil {
				return nil, err
			}
		}
		idx, err := sqlite.Open(cfg.DSN, sqlite.WithLogger(e.logger))
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, idx)
		return idx, nil

	case config.IndexMemory:
		idx := memory.New()
		fs, ok := store.(*fsstore.Store)
		if !ok {
			e.logger.Warn("memory index starts empty for this store backend", "backend", e.cfg.Store.Backend)
			return idx, nil
		}
		if err := fs.Walk(ctx, func(id core.ResourceIdentifier) error {
			return idx.Add(ctx, id)
		}); err != nil {
			return nil, fmt.Errorf("seed index: %w", err)
		}
		e.logger.Debug("seeded memory index", "instances", idx.Len())
		return idx, nil
	}
	return nil, fmt.Errorf("%w: unknown index.backend %q", config.ErrInvalid, cfg.Backend)
}
