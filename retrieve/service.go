package retrieve

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/internal/part10"
	"github.com/meigma/dicomblob/lazy"
	"github.com/meigma/dicomblob/transcode"
)

// DefaultMaxConcurrency bounds concurrent instance fetches.
const DefaultMaxConcurrency = 8

// Service retrieves resources from a blob store.
type Service struct {
	store          core.BlobStore
	resolver       *Resolver
	engine         *transcode.Engine
	maxConcurrency int
	logger         *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithEngine sets the transcoding engine. The default is transcode.New().
func WithEngine(e *transcode.Engine) Option {
	return func(s *Service) {
		s.engine = e
	}
}

// WithMaxConcurrency bounds concurrent fetches. Values < 1 use
// DefaultMaxConcurrency.
func WithMaxConcurrency(n int) Option {
	return func(s *Service) {
		s.maxConcurrency = n
	}
}

// WithLogger sets the logger for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New returns a Service reading instances from store and resolving studies
// and series through index.
func New(index core.MetadataIndex, store core.BlobStore, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = transcode.New(transcode.WithLogger(s.logger))
	}
	if s.maxConcurrency < 1 {
		s.maxConcurrency = DefaultMaxConcurrency
	}
	s.resolver = NewResolver(index, s.logger)
	return s
}

func (s *Service) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Engine returns the transcoding engine used by s.
func (s *Service) Engine() *transcode.Engine {
	return s.engine
}

// Retrieve resolves req, fetches the selected instances, and returns one
// lazy stream per instance, or per frame for a Frames request. Nothing is
// transcoded until a stream is read. Retrieve never returns nil.
func (s *Service) Retrieve(ctx context.Context, req core.RetrieveRequest) *Response {
	if req.Resource == nil {
		return failed(fmt.Errorf("%w: no resource", core.ErrInvalidRequest))
	}
	if err := req.Resource.Validate(); err != nil {
		return failed(err)
	}
	requested := req.RequestedSyntax()
	if requested != core.AsStored {
		if ts, ok := part10.LookupTransferSyntax(requested); !ok || !ts.Parsable() {
			return failed(fmt.Errorf("%w: transfer syntax %s", core.ErrUnsupportedTranscode, requested))
		}
	}

	ids, err := s.resolver.Resolve(ctx, req.Resource)
	if err != nil {
		return failed(s.fetchError(ctx, err))
	}
	if len(ids) == 0 {
		return failed(fmt.Errorf("%w: no instances match request", core.ErrNotFound))
	}

	if frames, ok := req.Resource.(core.Frames); ok {
		return s.retrieveFrames(ctx, frames, requested)
	}
	return s.retrieveInstances(ctx, ids, requested)
}

// retrieveInstances fetches ids concurrently and wraps each reader in a lazy
// transcoding stream, keeping resolution order.
func (s *Service) retrieveInstances(ctx context.Context, ids []core.ResourceIdentifier, requested string) *Response {
	readers := make([]io.ReadCloser, len(ids))

	// A plain Group: WithContext would cancel ctx after Wait, and the
	// readers must stay usable after the fan-out returns.
	var g errgroup.Group
	g.SetLimit(s.maxConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			rc, err := s.store.Get(ctx, id)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", id, err)
			}
			readers[i] = rc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeAll(readers)
		s.log().Debug("fetch failed", "instances", len(ids), "error", err)
		return failed(s.fetchError(ctx, err))
	}
	s.log().Debug("fetched instances", "instances", len(ids), "transfer_syntax", requested)

	resp := &Response{
		Status:  http.StatusOK,
		Streams: make([]*lazy.Stream, len(ids)),
		Parts:   make([]Part, len(ids)),
	}
	for i, id := range ids {
		resp.Streams[i] = lazy.New(readers[i], s.instanceTransform(id, requested),
			lazy.WithRelease(readers[i].Close))
		resp.Parts[i] = Part{ID: id, Frame: -1, TransferSyntax: requested}
	}
	return resp
}

func (s *Service) instanceTransform(id core.ResourceIdentifier, requested string) lazy.Transform[io.ReadCloser] {
	return func(_ context.Context, rc io.ReadCloser) (io.ReadCloser, error) {
		if requested == core.AsStored {
			return rc, nil
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", id, err)
		}
		out, err := s.engine.TranscodeObject(data, requested)
		if err != nil {
			s.log().Debug("transcode failed", "instance", id.String(), "error", err)
			return nil, fmt.Errorf("instance %s: %w", id, err)
		}
		return io.NopCloser(bytes.NewReader(out)), nil
	}
}

// retrieveFrames fetches and parses one instance, validates the requested
// indices, and returns one stream per frame sharing the parsed object.
func (s *Service) retrieveFrames(ctx context.Context, req core.Frames, requested string) *Response {
	f, err := s.load(ctx, req.ID)
	if err != nil {
		return failed(err)
	}
	if err := transcode.Validate(f, req.Indices); err != nil {
		return failed(err)
	}

	syntax := requested
	if requested == core.AsStored {
		syntax = f.TransferSyntax.UID
	}
	resp := &Response{
		Status:  http.StatusOK,
		Streams: make([]*lazy.Stream, len(req.Indices)),
		Parts:   make([]Part, len(req.Indices)),
	}
	for i, index := range req.Indices {
		resp.Streams[i] = lazy.New(f, s.frameTransform(index, requested))
		resp.Parts[i] = Part{ID: req.ID, Frame: index, TransferSyntax: syntax}
	}
	return resp
}

func (s *Service) frameTransform(index int, requested string) lazy.Transform[*part10.File] {
	return func(_ context.Context, f *part10.File) (io.ReadCloser, error) {
		fb, err := s.engine.ExtractFrame(f, index, requested)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(fb.Data)), nil
	}
}

// load fetches and parses one instance.
func (s *Service) load(ctx context.Context, id core.ResourceIdentifier) (*part10.File, error) {
	rc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.fetchError(ctx, fmt.Errorf("fetch %s: %w", id, err))
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, s.fetchError(ctx, fmt.Errorf("read %s: %w", id, err))
	}
	f, err := transcode.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", id, err)
	}
	return f, nil
}

// fetchError reports cancellation as such and any other fetch failure as
// not found.
func (s *Service) fetchError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, core.ErrNotFound) || errors.Is(err, errNoIndex) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrNotFound, err)
}

func closeAll(readers []io.ReadCloser) {
	for _, rc := range readers {
		if rc != nil {
			_ = rc.Close()
		}
	}
}
