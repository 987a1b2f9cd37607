package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Store backends.
const (
	StoreFS   = "fs"
	StoreOCI  = "oci"
	StoreHTTP = "http"
)

// Index backends.
const (
	IndexMemory = "memory"
	IndexSQLite = "sqlite"
)

// Config represents the dicomblob configuration.
// Use mapstructure tags for Viper unmarshaling.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Index    IndexConfig    `mapstructure:"index" yaml:"index"`
	Retrieve RetrieveConfig `mapstructure:"retrieve" yaml:"retrieve"`
	Export   ExportConfig   `mapstructure:"export" yaml:"export"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// StoreConfig selects and configures the blob store.
type StoreConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"`
	Dir        string `mapstructure:"dir" yaml:"dir"`
	Registry   string `mapstructure:"registry" yaml:"registry"`
	Repository string `mapstructure:"repository" yaml:"repository"`
	PlainHTTP  bool   `mapstructure:"plain_http" yaml:"plain_http"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
}

// CacheConfig holds instance cache settings. MaxBytes accepts sizes such
// as "512MB".
type CacheConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir      string `mapstructure:"dir" yaml:"dir"`
	MaxBytes string `mapstructure:"max_bytes" yaml:"max_bytes"`
}

// IndexConfig selects and configures the metadata index.
type IndexConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// RetrieveConfig holds retrieve settings.
type RetrieveConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency" yaml:"max_concurrency"`
}

// ExportConfig holds export settings.
type ExportConfig struct {
	JPEGQuality int `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid")

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case StoreFS:
		if c.Store.Dir == "" {
			errs = append(errs, fmt.Errorf("%w: store.dir is required for the fs backend", ErrInvalid))
		}
	case StoreOCI:
		if c.Store.Registry == "" || c.Store.Repository == "" {
			errs = append(errs, fmt.Errorf("%w: store.registry and store.repository are required for the oci backend", ErrInvalid))
		}
	case StoreHTTP:
		if c.Store.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%w: store.base_url is required for the http backend", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown store.backend %q", ErrInvalid, c.Store.Backend))
	}

	switch c.Index.Backend {
	case IndexMemory:
	case IndexSQLite:
		if c.Index.DSN == "" {
			errs = append(errs, fmt.Errorf("%w: index.dsn is required for the sqlite backend", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown index.backend %q", ErrInvalid, c.Index.Backend))
	}

	if c.Cache.Enabled {
		if _, err := c.Cache.Limit(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Retrieve.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("%w: retrieve.max_concurrency must be positive", ErrInvalid))
	}
	if q := c.Export.JPEGQuality; q < 1 || q > 100 {
		errs = append(errs, fmt.Errorf("%w: export.jpeg_quality must be between 1 and 100", ErrInvalid))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown log.format %q", ErrInvalid, c.Log.Format))
	}
	return errors.Join(errs...)
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: unknown log.level %q", ErrInvalid, s)
	}
	return level, nil
}
