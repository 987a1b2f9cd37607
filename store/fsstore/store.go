// Package fsstore implements core.BlobStore on an afero filesystem.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/meigma/dicomblob/core"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
	extension       = ".dcm"
)

// Store keeps instances at {study}/{series}/{sop}.dcm below its root.
type Store struct {
	fs     afero.Fs
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New returns a Store backed by fsys. Paths are relative to the root of fsys.
func New(fsys afero.Fs, opts ...Option) *Store {
	s := &Store{fs: fsys}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDir returns a Store rooted at dir on the OS filesystem, creating dir
// when it does not exist.
func NewDir(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("fsstore: dir is empty")
	}
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return nil, fmt.Errorf("fsstore: %w", err)
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), dir), opts...), nil
}

func (s *Store) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Path returns the relative path of id.
func Path(id core.ResourceIdentifier) (string, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	for _, uid := range []string{id.StudyUID, id.SeriesUID, id.SOPInstanceUID} {
		if strings.ContainsAny(uid, `/\`) || uid == "." || uid == ".." {
			return "", fmt.Errorf("%w: %q is not a valid path element", core.ErrInvalidRequest, uid)
		}
	}
	return path.Join(id.StudyUID, id.SeriesUID, id.SOPInstanceUID+extension), nil
}

// Get opens the file for id.
func (s *Store) Get(ctx context.Context, id core.ResourceIdentifier) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := Path(id)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(p)
	if err != nil {
		return nil, mapError(id, err)
	}
	s.log().Debug("opened instance", "id", id.String(), "path", p)
	return f, nil
}

// Exists reports whether the file for id exists.
func (s *Store) Exists(ctx context.Context, id core.ResourceIdentifier) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := Path(id)
	if err != nil {
		return false, err
	}
	info, err := s.fs.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// Put writes r to the file for id. The content is written to a temporary
// file in the same directory and renamed into place.
func (s *Store) Put(ctx context.Context, id core.ResourceIdentifier, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := Path(id)
	if err != nil {
		return err
	}
	dir := path.Dir(p)
	if err := s.fs.MkdirAll(dir, defaultDirPerm); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".put-*")
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
	}
	tmpPath := tmp.Name()
	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("%w: write %s: %v", core.ErrStorageFailure, p, err)
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
	s.log().Debug("stored instance", "id", id.String(), "path", p, "size", written)
	return nil
}

// Walk calls fn for every stored instance, in lexical path order. Files
// outside the {study}/{series}/{sop}.dcm layout are skipped.
func (s *Store) Walk(ctx context.Context, fn func(core.ResourceIdentifier) error) error {
	return afero.Walk(s.fs, ".", func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		id, ok := identifierFromPath(p)
		if !ok {
			return nil
		}
		return fn(id)
	})
}

// identifierFromPath is the inverse of Path.
func identifierFromPath(p string) (core.ResourceIdentifier, bool) {
	parts := strings.Split(strings.Trim(filepath.ToSlash(p), "/"), "/")
	if len(parts) != 3 {
		return core.ResourceIdentifier{}, false
	}
	name := parts[2]
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, extension) {
		return core.ResourceIdentifier{}, false
	}
	id := core.NewResourceIdentifier(parts[0], parts[1], strings.TrimSuffix(name, extension))
	if id.Validate() != nil {
		return core.ResourceIdentifier{}, false
	}
	return id, true
}

func mapError(id core.ResourceIdentifier, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return err
}
