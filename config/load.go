package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. DICOMBLOB_STORE_BACKEND.
const EnvPrefix = "DICOMBLOB"

// DefaultCacheSize is the cache limit used when cache.max_bytes is empty.
const DefaultCacheSize = "1GiB"

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) error {
	dataDir, err := DataDir()
	if err != nil {
		return err
	}
	cacheDir, err := CacheDir()
	if err != nil {
		return err
	}

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("store.backend", StoreFS)
	v.SetDefault("store.dir", filepath.Join(dataDir, "instances"))
	v.SetDefault("store.registry", "")
	v.SetDefault("store.repository", "")
	v.SetDefault("store.plain_http", false)
	v.SetDefault("store.base_url", "")
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.dir", cacheDir)
	v.SetDefault("cache.max_bytes", DefaultCacheSize)
	v.SetDefault("index.backend", IndexSQLite)
	v.SetDefault("index.dsn", filepath.Join(dataDir, "index.db"))
	v.SetDefault("retrieve.max_concurrency", max(runtime.NumCPU(), 4))
	v.SetDefault("export.jpeg_quality", 90)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	return nil
}

// New returns a viper instance with defaults and environment overrides
// configured. When file is empty the default config file is read if it
// exists; a named file must exist.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	if err := SetDefaults(v); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
		return v, nil
	}

	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Limit returns MaxBytes in bytes. Empty means DefaultCacheSize; "0" means
// unlimited.
func (c CacheConfig) Limit() (int64, error) {
	s := c.MaxBytes
	if s == "" {
		s = DefaultCacheSize
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: cache.max_bytes: %v", ErrInvalid, err)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("%w: cache.max_bytes %q is too large", ErrInvalid, s)
	}
	return int64(n), nil
}
