// Package lazy provides a reader whose content is produced on first read.
//
// A Stream pairs a source with a transform. Construction does no work: the
// transform runs exactly once, on the first call to Materialize or Read, and
// its result (or error) is kept for every later call. Callers that hold a
// request context pass it to Materialize; Read on its own runs the transform
// with context.Background.
package lazy

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Read after Close.
var ErrClosed = errors.New("lazy: stream closed")

// Transform produces the content of a Stream from its source. Once called,
// the transform owns src and is responsible for releasing it.
type Transform[S any] func(ctx context.Context, src S) (io.ReadCloser, error)

// Option configures a Stream.
type Option func(*Stream)

// WithRelease sets a function called by Close when the transform never ran,
// so an unread source can still be released.
func WithRelease(fn func() error) Option {
	return func(s *Stream) {
		s.release = fn
	}
}

// Stream is an io.ReadCloser that runs its transform on first read.
type Stream struct {
	run     func(context.Context) (io.ReadCloser, error)
	release func() error

	mu     sync.Mutex
	once   sync.Once
	rc     io.ReadCloser
	err    error
	ran    atomic.Bool
	closed bool
}

// New returns a Stream over src. The transform is not called.
func New[S any](src S, transform Transform[S], opts ...Option) *Stream {
	s := &Stream{
		run: func(ctx context.Context) (io.ReadCloser, error) {
			return transform(ctx, src)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Materialized reports whether the transform has run.
func (s *Stream) Materialized() bool {
	return s.ran.Load()
}

// Err returns the transform error, if the transform has run and failed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Materialize runs the transform with ctx if it has not run yet and
// returns its error. A canceled ctx fails the stream without running the
// transform, leaving the source for Close to release.
func (s *Stream) Materialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.materialize(ctx)
	return s.err
}

// materialize must be called with s.mu held.
func (s *Stream) materialize(ctx context.Context) {
	s.once.Do(func() {
		if err := ctx.Err(); err != nil {
			s.err = err
			return
		}
		run := s.run
		// The closure holds the source; drop it once the transform owns it.
		s.run = nil
		s.release = nil
		s.ran.Store(true)
		s.rc, s.err = run(ctx)
	})
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	s.materialize(context.Background())
	rc, err := s.rc, s.err
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return rc.Read(p)
}

// Close closes the materialized content, or releases the source when the
// transform never ran. Calling Close more than once is a no-op.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.rc != nil {
		return s.rc.Close()
	}
	if s.release != nil {
		release := s.release
		s.release = nil
		s.run = nil
		return release()
	}
	return nil
}
