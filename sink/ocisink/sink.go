// Package ocisink implements core.ExportSink on an OCI registry. Each key
// becomes a single-layer artifact whose title annotation is the key.
package ocisink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/registry"
)

// AnnotationKey records the export key on the manifest.
const AnnotationKey = "io.meigma.dicomblob.export.key"

// Sink pushes exported objects to one repository.
type Sink struct {
	client     *registry.Client
	repository string
	logger     *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets the logger for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// New returns a Sink for repository ("host/path").
func New(client *registry.Client, repository string, opts ...Option) (*Sink, error) {
	if client == nil {
		return nil, errors.New("ocisink: client is nil")
	}
	if repository == "" {
		return nil, errors.New("ocisink: repository is empty")
	}
	s := &Sink{client: client, repository: repository}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Sink) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Ref returns the artifact reference key is pushed to.
func (s *Sink) Ref(key string) string {
	return registry.Reference(s.repository, registry.TagFor(key))
}

// Put pushes the content of r as the artifact for key.
func (s *Sink) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", core.ErrStorageFailure)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", core.ErrStorageFailure, key, err)
	}
	ref := s.Ref(key)
	desc, err := s.client.Push(ctx, ref, registry.Artifact{
		ArtifactType: registry.ArtifactTypeExport,
		MediaType:    contentType,
		Title:        key,
		Annotations:  map[string]string{AnnotationKey: key},
	}, content)
	if err != nil {
		return fmt.Errorf("%w: push %s: %v", core.ErrStorageFailure, ref, err)
	}
	s.log().Debug("pushed export object", "key", key, "ref", ref, "digest", desc.Digest.String())
	return nil
}
