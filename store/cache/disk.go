package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
)

// Disk stores zstd-compressed entries in a directory hierarchy sharded by
// digest prefix. Sizes are accounted in compressed bytes. Disk is safe for
// concurrent use.
type Disk struct {
	dir            string
	shardPrefixLen int
	dirPerm        os.FileMode
	maxBytes       int64
	level          zstd.EncoderLevel
	bytes          atomic.Int64
	pruneMu        sync.Mutex
}

// DiskOption configures a Disk.
type DiskOption func(*Disk)

// WithShardPrefixLen sets the number of hex characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) DiskOption {
	return func(d *Disk) {
		d.shardPrefixLen = n
	}
}

// WithDirPerm sets the permissions of created directories.
func WithDirPerm(mode os.FileMode) DiskOption {
	return func(d *Disk) {
		d.dirPerm = mode
	}
}

// WithMaxBytes sets the maximum cache size in bytes. Use 0 to disable the
// limit.
func WithMaxBytes(n int64) DiskOption {
	return func(d *Disk) {
		d.maxBytes = n
	}
}

// WithEncoderLevel sets the zstd level used for new entries.
func WithEncoderLevel(level zstd.EncoderLevel) DiskOption {
	return func(d *Disk) {
		d.level = level
	}
}

// NewDisk returns a Disk rooted at dir, creating it when needed. The size of
// entries already present counts against the limit.
func NewDisk(dir string, opts ...DiskOption) (*Disk, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	d := &Disk{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
		level:          zstd.SpeedDefault,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.shardPrefixLen < 0 {
		return nil, errors.New("shard prefix length must be >= 0")
	}
	if d.maxBytes < 0 {
		return nil, errors.New("max bytes must be >= 0")
	}
	if err := os.MkdirAll(dir, d.dirPerm); err != nil {
		return nil, err
	}
	size, err := dirSize(dir)
	if err != nil {
		return nil, err
	}
	d.bytes.Store(size)
	return d, nil
}

// Get opens the entry for key. It returns false when the entry is absent or
// cannot be opened.
func (d *Disk) Get(key digest.Digest) (io.ReadCloser, bool) {
	path, err := d.path(key)
	if err != nil {
		return nil, false
	}
	f, err := os.Open(path) //nolint:gosec // path is derived from a digest
	if err != nil {
		return nil, false
	}
	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		f.Close()
		return nil, false
	}
	return &entryReader{dec: dec, f: f}, true
}

// Put compresses the content of r into the entry for key. An existing entry
// is left in place. Content larger than the limit is not stored and Put
// returns false.
func (d *Disk) Put(key digest.Digest, r io.Reader) (bool, error) {
	path, err := d.path(key)
	if err != nil {
		return false, err
	}
	if _, statErr := os.Stat(path); statErr == nil {
		return true, nil
	}

	dir := filepath.Dir(path)
	if mkdirErr := os.MkdirAll(dir, d.dirPerm); mkdirErr != nil {
		return false, mkdirErr
	}
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return false, err
	}
	tmpPath := tmp.Name()

	written, err := d.compress(tmp, r)
	if err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return false, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return false, err
	}

	if ok, err := d.ensureCapacity(written); err != nil || !ok {
		_ = os.Remove(tmpPath)
		return false, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		if _, statErr := os.Stat(path); statErr == nil {
			return true, nil
		}
		return false, err
	}
	d.bytes.Add(written)
	return true, nil
}

func (d *Disk) compress(f *os.File, r io.Reader) (int64, error) {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(d.level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(enc, r); err != nil {
		enc.Close()
		return 0, err
	}
	if err := enc.Close(); err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Delete removes the entry for key. Missing entries are a no-op.
func (d *Disk) Delete(key digest.Digest) error {
	path, err := d.path(key)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	d.bytes.Add(-info.Size())
	return nil
}

// MaxBytes returns the configured size limit (0 = unlimited).
func (d *Disk) MaxBytes() int64 {
	return d.maxBytes
}

// SizeBytes returns the current size of all entries in bytes.
func (d *Disk) SizeBytes() int64 {
	return d.bytes.Load()
}

// Prune removes the oldest entries until the cache is at or below
// targetBytes and returns the number of bytes freed.
func (d *Disk) Prune(targetBytes int64) (int64, error) {
	d.pruneMu.Lock()
	defer d.pruneMu.Unlock()

	freed, remaining, err := pruneDir(d.dir, targetBytes)
	if err != nil {
		return 0, err
	}
	d.bytes.Store(remaining)
	return freed, nil
}

func (d *Disk) path(key digest.Digest) (string, error) {
	if err := key.Validate(); err != nil {
		return "", fmt.Errorf("cache key: %w", err)
	}
	name := key.Encoded()
	if d.shardPrefixLen <= 0 {
		return filepath.Join(d.dir, name), nil
	}
	prefixLen := min(d.shardPrefixLen, len(name))
	return filepath.Join(d.dir, name[:prefixLen], name), nil
}

func (d *Disk) ensureCapacity(need int64) (bool, error) {
	if d.maxBytes <= 0 {
		return true, nil
	}
	if need > d.maxBytes {
		return false, nil
	}
	if d.SizeBytes()+need <= d.maxBytes {
		return true, nil
	}
	if _, err := d.Prune(d.maxBytes - need); err != nil {
		return false, err
	}
	return d.SizeBytes()+need <= d.maxBytes, nil
}

// entryReader decompresses one cache entry.
type entryReader struct {
	dec *zstd.Decoder
	f   *os.File
}

func (r *entryReader) Read(p []byte) (int, error) {
	return r.dec.Read(p)
}

func (r *entryReader) Close() error {
	r.dec.Close()
	return r.f.Close()
}
