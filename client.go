package dicomblob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/export"
	"github.com/meigma/dicomblob/registry"
	"github.com/meigma/dicomblob/retrieve"
	"github.com/meigma/dicomblob/sink"
	"github.com/meigma/dicomblob/transcode"
)

// Types re-exported from core.
type (
	ResourceIdentifier = core.ResourceIdentifier
	RetrieveRequest    = core.RetrieveRequest
	Resource           = core.Resource
	Study              = core.Study
	Series             = core.Series
	Instance           = core.Instance
	Frames             = core.Frames
)

// Response is the result of Retrieve.
type Response = retrieve.Response

// Report is the result of Export.
type Report = export.Report

const (
	// AsStored requests objects in their stored transfer syntax.
	AsStored = core.AsStored
	// DefaultTransferSyntax is used when a request names none.
	DefaultTransferSyntax = core.DefaultTransferSyntax
)

// ExportRequest describes one export job.
type ExportRequest struct {
	// Instances are "study/series/sop" references.
	Instances []string `json:"instances"`
	// DestinationConnection selects the sink, e.g. "file:///exports".
	DestinationConnection string `json:"destinationConnection"`
	// DestinationContainer scopes keys within the destination.
	DestinationContainer string `json:"destinationContainer"`
	// ContentType is "dicom" (default) or "jpeg".
	ContentType string `json:"contentType,omitempty"`
	// Label, when set, prefixes every key as a folder.
	Label string `json:"label,omitempty"`
}

// Client retrieves, exports, and ingests DICOM instances.
type Client struct {
	index  core.MetadataIndex
	store  core.BlobStore
	logger *slog.Logger

	codecs         []transcode.Codec
	maxConcurrency int
	jpegQuality    int

	cacheDir      string
	cacheMaxBytes int64

	sinkOpts     []sink.Option
	registryOpts []registry.Option

	engine   *transcode.Engine
	retrieve *retrieve.Service
	export   *export.Service
}

// NewClient creates a client with the given options. A blob store is
// required. Without a metadata index only instance and frame requests can
// be served.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{maxConcurrency: retrieve.DefaultMaxConcurrency}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.store == nil {
		return nil, errors.New("dicomblob: a blob store is required")
	}
	if c.cacheDir != "" {
		store, err := newCachedStore(c.store, c.cacheDir, c.cacheMaxBytes, c.logger)
		if err != nil {
			return nil, err
		}
		c.store = store
	}

	engineOpts := []transcode.Option{transcode.WithLogger(c.logger)}
	if c.jpegQuality > 0 {
		engineOpts = append(engineOpts, transcode.WithJPEGQuality(c.jpegQuality))
	}
	for _, codec := range c.codecs {
		engineOpts = append(engineOpts, transcode.WithCodec(codec))
	}
	c.engine = transcode.New(engineOpts...)
	c.retrieve = retrieve.New(c.index, c.store,
		retrieve.WithEngine(c.engine),
		retrieve.WithMaxConcurrency(c.maxConcurrency),
		retrieve.WithLogger(c.logger),
	)
	exportOpts := []export.Option{export.WithEngine(c.engine), export.WithLogger(c.logger)}
	if c.jpegQuality > 0 {
		exportOpts = append(exportOpts, export.WithQuality(c.jpegQuality))
	}
	c.export = export.New(c.retrieve, exportOpts...)
	return c, nil
}

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Engine returns the transcoding engine shared by retrieve and export.
func (c *Client) Engine() *transcode.Engine {
	return c.engine
}

// Retrieve resolves req and returns one lazy stream per part. The caller
// closes the response.
func (c *Client) Retrieve(ctx context.Context, req RetrieveRequest) *Response {
	return c.retrieve.Retrieve(ctx, req)
}

// Export writes every requested instance to the destination. Item failures
// are recorded in the report; an error is returned only when the request
// is invalid or the destination cannot be opened.
func (c *Client) Export(ctx context.Context, req ExportRequest) (*Report, error) {
	kind, err := export.ParseContentKind(req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
	}
	opts := append([]sink.Option{
		sink.WithLogger(c.logger),
		sink.WithRegistryOptions(c.registryOpts...),
	}, c.sinkOpts...)
	dest, err := sink.Open(ctx, req.DestinationConnection, req.DestinationContainer, opts...)
	if err != nil {
		return nil, err
	}
	return c.export.Export(ctx, req.Instances, dest, export.Options{
		ContentKind: kind,
		Label:       req.Label,
	}), nil
}

// Ingest reads a Part 10 object from r, stores it, and records it in the
// index. It returns the identifier read from the object.
func (c *Client) Ingest(ctx context.Context, r io.Reader) (ResourceIdentifier, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ResourceIdentifier{}, fmt.Errorf("read object: %w", err)
	}
	id, err := Identify(data)
	if err != nil {
		return ResourceIdentifier{}, err
	}
	start := time.Now()
	if err := c.store.Put(ctx, id, bytes.NewReader(data)); err != nil {
		return ResourceIdentifier{}, fmt.Errorf("store %s: %w", id, err)
	}
	if c.index != nil {
		if err := c.index.Add(ctx, id); err != nil {
			return ResourceIdentifier{}, fmt.Errorf("index %s: %w", id, err)
		}
	}
	c.log().Info("ingested instance", "id", id.String(), "size", len(data), "duration", time.Since(start))
	return id, nil
}

// Identify reads the study, series, and SOP instance UIDs of a Part 10
// object.
func Identify(data []byte) (ResourceIdentifier, error) {
	f, err := transcode.Parse(data)
	if err != nil {
		return ResourceIdentifier{}, err
	}
	var uids [3]string
	for i, t := range []tag.Tag{tag.StudyInstanceUID, tag.SeriesInstanceUID, tag.SOPInstanceUID} {
		if uids[i], err = f.String(t); err != nil {
			return ResourceIdentifier{}, fmt.Errorf("%w: %v", core.ErrStructureInvalid, err)
		}
	}
	id := core.NewResourceIdentifier(uids[0], uids[1], uids[2])
	if err := id.Validate(); err != nil {
		return ResourceIdentifier{}, fmt.Errorf("%w: %v", core.ErrStructureInvalid, err)
	}
	return id, nil
}
