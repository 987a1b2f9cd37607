package dicomblob

import (
	"errors"
	"log/slog"
	"os"

	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/registry"
	"github.com/meigma/dicomblob/sink"
	"github.com/meigma/dicomblob/store/cache"
	"github.com/meigma/dicomblob/transcode"
)

// Option configures a Client.
type Option func(*Client) error

// DefaultCacheSize is the instance cache limit used by the CLI and server
// when none is configured.
const DefaultCacheSize int64 = 1 << 30 // 1 GB

// --- Collaborators ---

// WithBlobStore sets the store instances are read from and ingested into.
func WithBlobStore(store core.BlobStore) Option {
	return func(c *Client) error {
		if store == nil {
			return errors.New("blob store is nil")
		}
		c.store = store
		return nil
	}
}

// WithMetadataIndex sets the index used to resolve studies and series.
func WithMetadataIndex(index core.MetadataIndex) Option {
	return func(c *Client) error {
		c.index = index
		return nil
	}
}

// WithLogger sets the logger passed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// --- Retrieval Options ---

// WithMaxConcurrency bounds concurrent instance fetches per request.
func WithMaxConcurrency(n int) Option {
	return func(c *Client) error {
		if n < 1 {
			return errors.New("max concurrency must be positive")
		}
		c.maxConcurrency = n
		return nil
	}
}

// WithCodec registers an additional codec, replacing any built-in codec for
// the same transfer syntax.
func WithCodec(codec transcode.Codec) Option {
	return func(c *Client) error {
		if codec == nil {
			return errors.New("codec is nil")
		}
		c.codecs = append(c.codecs, codec)
		return nil
	}
}

// WithJPEGQuality sets the quality of images rendered for JPEG export.
func WithJPEGQuality(q int) Option {
	return func(c *Client) error {
		if q < 1 || q > 100 {
			return errors.New("jpeg quality must be between 1 and 100")
		}
		c.jpegQuality = q
		return nil
	}
}

// --- Caching Options ---

// WithCacheDir caches fetched instances in dir, compressed, up to maxBytes
// (0 = unlimited).
func WithCacheDir(dir string, maxBytes int64) Option {
	return func(c *Client) error {
		if dir == "" {
			return errors.New("cache dir is empty")
		}
		if maxBytes < 0 {
			return errors.New("cache size must be non-negative")
		}
		c.cacheDir = dir
		c.cacheMaxBytes = maxBytes
		return nil
	}
}

func newCachedStore(store core.BlobStore, dir string, maxBytes int64, logger *slog.Logger) (core.BlobStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	disk, err := cache.NewDisk(dir, cache.WithMaxBytes(maxBytes))
	if err != nil {
		return nil, err
	}
	return cache.Wrap(store, disk, cache.WithLogger(logger)), nil
}

// --- Export Destination Options ---

// WithSinkOptions adds options used when opening export destinations.
func WithSinkOptions(opts ...sink.Option) Option {
	return func(c *Client) error {
		c.sinkOpts = append(c.sinkOpts, opts...)
		return nil
	}
}

// WithDockerConfig reads registry credentials for oci:// destinations from
// ~/.docker/config.json.
func WithDockerConfig() Option {
	return func(c *Client) error {
		c.registryOpts = append(c.registryOpts, registry.WithDockerConfig())
		return nil
	}
}

// WithStaticCredentials sets username/password credentials for a registry
// host used by oci:// destinations.
func WithStaticCredentials(host, username, password string) Option {
	return func(c *Client) error {
		c.registryOpts = append(c.registryOpts, registry.WithStaticCredentials(host, username, password))
		return nil
	}
}

// WithStaticToken sets a bearer token for a registry host used by oci://
// destinations.
func WithStaticToken(host, token string) Option {
	return func(c *Client) error {
		c.registryOpts = append(c.registryOpts, registry.WithStaticToken(host, token))
		return nil
	}
}

// WithAnonymous forces anonymous registry access for oci:// destinations.
func WithAnonymous() Option {
	return func(c *Client) error {
		c.registryOpts = append(c.registryOpts, registry.WithAnonymous())
		return nil
	}
}

// WithUserAgent sets the User-Agent header for registry requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.registryOpts = append(c.registryOpts, registry.WithUserAgent(ua))
		return nil
	}
}
