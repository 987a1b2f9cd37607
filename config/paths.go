// Package config loads dicomblob settings from defaults, an optional YAML
// file, and DICOMBLOB_* environment variables.
package config

import (
	"os"
	"path/filepath"
)

// CacheDir returns the dicomblob cache directory.
// Uses XDG_CACHE_HOME/dicomblob, defaulting to ~/.cache/dicomblob.
func CacheDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "dicomblob"), nil
}

// Dir returns the dicomblob config directory.
// Uses XDG_CONFIG_HOME/dicomblob, defaulting to ~/.config/dicomblob.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "dicomblob"), nil
}

// DataDir returns the default directory for stored instances and the index.
// Uses XDG_DATA_HOME/dicomblob, defaulting to ~/.local/share/dicomblob.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "dicomblob"), nil
}

// File returns the default config file path.
func File() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}
