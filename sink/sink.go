// Package sink opens export destinations from connection strings.
//
// Supported connections:
//
//	file:///path/to/dir       files below dir/<container>
//	mem://                    an in-memory filesystem, for dry runs and tests
//	oci://host[/namespace]    artifacts in host/namespace/<container>
//	oci+http://host[/ns]      the same over plain HTTP
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/registry"
	"github.com/meigma/dicomblob/sink/fssink"
	"github.com/meigma/dicomblob/sink/ocisink"
)

// ErrUnsupportedConnection is returned for an unknown or malformed
// connection string.
var ErrUnsupportedConnection = errors.New("sink: unsupported connection")

type config struct {
	memFs        afero.Fs
	registryOpts []registry.Option
	logger       *slog.Logger
}

// Option configures Open.
type Option func(*config)

// WithMemFs sets the filesystem used for mem:// connections. By default each
// Open gets a fresh in-memory filesystem.
func WithMemFs(fsys afero.Fs) Option {
	return func(c *config) {
		c.memFs = fsys
	}
}

// WithRegistryOptions adds options for the registry client of oci://
// connections.
func WithRegistryOptions(opts ...registry.Option) Option {
	return func(c *config) {
		c.registryOpts = append(c.registryOpts, opts...)
	}
}

// WithLogger sets the logger passed to the opened sink.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// Open returns the sink for connection, scoped to container.
func Open(_ context.Context, connection, container string, opts ...Option) (core.ExportSink, error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	u, err := url.Parse(connection)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedConnection, err)
	}
	container = strings.Trim(container, "/")
	if strings.Contains(container, "..") {
		return nil, fmt.Errorf("%w: invalid container %q", ErrUnsupportedConnection, container)
	}

	switch u.Scheme {
	case "file":
		dir := u.Path
		if u.Host != "" {
			// file://relative/dir
			dir = u.Host + u.Path
		}
		if dir == "" {
			return nil, fmt.Errorf("%w: %q has no path", ErrUnsupportedConnection, connection)
		}
		logger.Debug("opening file sink", "dir", dir, "container", container)
		return fssink.NewDir(filepath.Join(filepath.FromSlash(dir), filepath.FromSlash(container)), fssink.WithLogger(logger))

	case "mem":
		fsys := cfg.memFs
		if fsys == nil {
			fsys = afero.NewMemMapFs()
		}
		if container != "" {
			fsys = afero.NewBasePathFs(fsys, "/"+container)
		}
		return fssink.New(fsys, fssink.WithLogger(logger)), nil

	case "oci", "oci+http":
		if u.Host == "" {
			return nil, fmt.Errorf("%w: %q has no registry host", ErrUnsupportedConnection, connection)
		}
		if container == "" {
			return nil, fmt.Errorf("%w: oci sink needs a container", ErrUnsupportedConnection)
		}
		repository := path.Join(u.Host, strings.Trim(u.Path, "/"), container)
		regOpts := append([]registry.Option{registry.WithLogger(logger)}, cfg.registryOpts...)
		if u.Scheme == "oci+http" {
			regOpts = append(regOpts, registry.WithPlainHTTP(true))
		}
		logger.Debug("opening oci sink", "repository", repository)
		return ocisink.New(registry.New(regOpts...), repository, ocisink.WithLogger(logger))
	}
	return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedConnection, u.Scheme)
}
