// Package fssink implements core.ExportSink on an afero filesystem. Keys
// are slash-separated relative paths.
package fssink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"

	"github.com/meigma/dicomblob/core"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

// Sink writes each key to a file below its root.
type Sink struct {
	fs     afero.Fs
	logger *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets the logger for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// New returns a Sink writing to fsys.
func New(fsys afero.Fs, opts ...Option) *Sink {
	s := &Sink{fs: fsys}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDir returns a Sink rooted at dir on the OS filesystem.
func NewDir(dir string, opts ...Option) (*Sink, error) {
	if dir == "" {
		return nil, errors.New("fssink: dir is empty")
	}
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), dir), opts...), nil
}

func (s *Sink) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Fs returns the filesystem the sink writes to.
func (s *Sink) Fs() afero.Fs {
	return s.fs
}

// CleanKey validates key and returns it in clean form.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", fmt.Errorf("%w: invalid key %q", core.ErrStorageFailure, key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: invalid key %q", core.ErrStorageFailure, key)
	}
	return cleaned, nil
}

// Put writes r to the file named key, replacing it atomically.
func (s *Sink) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := CleanKey(key)
	if err != nil {
		return err
	}
	dir := path.Dir(p)
	if err := s.fs.MkdirAll(dir, defaultDirPerm); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".export-*")
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
	}
	tmpPath := tmp.Name()
	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("%w: write %s: %v", core.ErrStorageFailure, key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
	}
	if err := s.fs.Rename(tmpPath, p); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
	}
	_ = s.fs.Chmod(p, defaultFilePerm)
	s.log().Debug("wrote export object", "key", p, "content_type", contentType, "size", written)
	return nil
}
