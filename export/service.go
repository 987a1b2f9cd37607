package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/render"
	"github.com/meigma/dicomblob/retrieve"
	"github.com/meigma/dicomblob/transcode"
)

// ContentKind selects what is written for each exported instance.
type ContentKind string

const (
	// ContentDICOM exports the stored object unchanged.
	ContentDICOM ContentKind = "dicom"
	// ContentJPEG exports the first frame rendered as a JPEG image.
	ContentJPEG ContentKind = "jpeg"
)

// ErrUnknownContentKind is returned by ParseContentKind.
var ErrUnknownContentKind = errors.New("export: unknown content kind")

// ParseContentKind accepts a kind name or its media type. Empty is
// ContentDICOM.
func ParseContentKind(s string) (ContentKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dicom", core.MediaTypeDICOM:
		return ContentDICOM, nil
	case "jpeg", "jpg", core.MediaTypeJPEG:
		return ContentJPEG, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownContentKind, s)
	}
}

// MediaType returns the content type uploaded for k.
func (k ContentKind) MediaType() string {
	if k == ContentJPEG {
		return core.MediaTypeJPEG
	}
	return core.MediaTypeDICOM
}

// Extension returns the file extension used in keys for k.
func (k ContentKind) Extension() string {
	if k == ContentJPEG {
		return "jpeg"
	}
	return "dcm"
}

// Options configures one export job.
type Options struct {
	ContentKind ContentKind
	// Label, when set, prefixes every key as a folder.
	Label string
}

// Key returns the sink key for id: {label/}{study}-{series}-{sop}.{ext}.
func Key(id core.ResourceIdentifier, kind ContentKind, label string) string {
	name := fmt.Sprintf("%s-%s-%s.%s", id.StudyUID, id.SeriesUID, id.SOPInstanceUID, kind.Extension())
	if label = strings.Trim(label, "/"); label != "" {
		return label + "/" + name
	}
	return name
}

// Retriever is the retrieve capability export depends on.
type Retriever interface {
	Retrieve(ctx context.Context, req core.RetrieveRequest) *retrieve.Response
}

// Service runs export jobs.
type Service struct {
	retriever Retriever
	engine    *transcode.Engine
	quality   int
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithEngine sets the engine used to decode frames for rendering.
func WithEngine(e *transcode.Engine) Option {
	return func(s *Service) {
		s.engine = e
	}
}

// WithQuality sets the JPEG quality for rendered images.
func WithQuality(q int) Option {
	return func(s *Service) {
		s.quality = q
	}
}

// WithLogger sets the logger. Item failures are logged at error level.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New returns a Service that fetches instances through r.
func New(r Retriever, opts ...Option) *Service {
	s := &Service{retriever: r, quality: render.DefaultQuality}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = transcode.New(transcode.WithLogger(s.logger))
	}
	return s
}

func (s *Service) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Export writes each instance named in refs ("study/series/sop") to sink.
// A failing item does not stop the others; every item has an Outcome in the
// returned Report, in the order of refs.
func (s *Service) Export(ctx context.Context, refs []string, sink core.ExportSink, opts Options) *Report {
	if opts.ContentKind == "" {
		opts.ContentKind = ContentDICOM
	}
	report := &Report{JobID: uuid.NewString(), Started: time.Now()}
	logger := s.log().With("job", report.JobID, "content", string(opts.ContentKind))
	logger.Info("export started", "instances", len(refs))

	report.Outcomes = Run(ctx, refs, func(ctx context.Context, ref string) Outcome {
		out := s.exportOne(ctx, ref, sink, opts)
		if out.Err != nil {
			logger.Error("export item failed", "ref", ref, "error", out.Err)
		} else {
			logger.Debug("exported item", "ref", ref, "key", out.Key, "size", out.Size)
		}
		return out
	})

	report.Finished = time.Now()
	logger.Info("export finished",
		"succeeded", report.Succeeded(),
		"failed", report.Failed(),
		"elapsed", report.Finished.Sub(report.Started))
	return report
}

func (s *Service) exportOne(ctx context.Context, ref string, sink core.ExportSink, opts Options) (out Outcome) {
	out = Outcome{Ref: ref}
	defer func() {
		if r := recover(); r != nil {
			out.Err = panicError(r)
		}
	}()
	id, err := core.ParseReference(ref)
	if err != nil {
		out.Err = err
		return out
	}
	out.Identifier = id
	out.Key = Key(id, opts.ContentKind, opts.Label)
	out.ContentType = opts.ContentKind.MediaType()

	resp := s.retriever.Retrieve(ctx, core.RetrieveRequest{
		Resource:       core.Instance{ID: id},
		TransferSyntax: core.AsStored,
	})
	defer resp.Close()
	if resp.Status != http.StatusOK {
		out.Err = fmt.Errorf("retrieve %s: status %d: %w", id, resp.Status, resp.Err)
		return out
	}
	if len(resp.Streams) == 0 {
		out.Err = fmt.Errorf("retrieve %s: %w: empty response", id, core.ErrNotFound)
		return out
	}
	if err := resp.Streams[0].Materialize(ctx); err != nil {
		out.Err = fmt.Errorf("retrieve %s: %w", id, err)
		return out
	}

	var body io.Reader
	switch opts.ContentKind {
	case ContentDICOM:
		body = resp.Streams[0]
	case ContentJPEG:
		buf, err := s.renderJPEG(resp.Streams[0])
		if err != nil {
			out.Err = fmt.Errorf("render %s: %w", id, err)
			return out
		}
		body = buf
	default:
		out.Err = fmt.Errorf("%w: %q", ErrUnknownContentKind, opts.ContentKind)
		return out
	}

	cr := &countingReader{r: body}
	if err := sink.Put(ctx, out.Key, cr, out.ContentType); err != nil {
		if !errors.Is(err, core.ErrStorageFailure) {
			err = fmt.Errorf("%w: %w", core.ErrStorageFailure, err)
		}
		out.Err = fmt.Errorf("upload %s: %w", out.Key, err)
		return out
	}
	out.Size = cr.n
	return out
}

// renderJPEG renders frame 0 of the object read from r.
func (s *Service) renderJPEG(r io.Reader) (*bytes.Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f, err := transcode.Parse(data)
	if err != nil {
		return nil, err
	}
	img, err := render.Frame(f, 0, s.engine)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := render.EncodeJPEG(&buf, img, s.quality); err != nil {
		return nil, err
	}
	return &buf, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
