// Package ocistore implements core.BlobStore on an OCI registry. Each
// instance is a single-layer artifact tagged with its SOP Instance UID and
// annotated with its study, series, and SOP UIDs.
package ocistore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/registry"
)

// Store keeps instances in one OCI repository.
type Store struct {
	client     *registry.Client
	repository string
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New returns a Store for repository ("host/path") using client.
func New(client *registry.Client, repository string, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("ocistore: client is nil")
	}
	if repository == "" {
		return nil, errors.New("ocistore: repository is empty")
	}
	s := &Store{client: client, repository: repository}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Ref returns the artifact reference for id.
func (s *Store) Ref(id core.ResourceIdentifier) string {
	return registry.Reference(s.repository, registry.TagFor(id.SOPInstanceUID))
}

// Get opens the layer of the artifact for id. The returned reader fails at
// EOF when the content does not match its digest.
func (s *Store) Get(ctx context.Context, id core.ResourceIdentifier) (io.ReadCloser, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	ref := s.Ref(id)
	rc, fetched, err := s.client.Fetch(ctx, ref)
	if err != nil {
		return nil, mapError(id, err)
	}
	if !matches(fetched.Manifest.Annotations, id) {
		rc.Close()
		return nil, fmt.Errorf("%w: %s holds a different instance", core.ErrNotFound, ref)
	}
	s.log().Debug("fetched instance", "id", id.String(), "ref", ref, "size", fetched.Layer.Size)
	return rc, nil
}

// Exists reports whether an artifact for id exists.
func (s *Store) Exists(ctx context.Context, id core.ResourceIdentifier) (bool, error) {
	if err := id.Validate(); err != nil {
		return false, err
	}
	ok, err := s.client.Exists(ctx, s.Ref(id))
	if err != nil {
		return false, mapError(id, err)
	}
	return ok, nil
}

// Put pushes the content of r as the artifact for id, replacing the tag.
func (s *Store) Put(ctx context.Context, id core.ResourceIdentifier, r io.Reader) error {
	if err := id.Validate(); err != nil {
		return err
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read instance: %w", err)
	}
	ref := s.Ref(id)
	desc, err := s.client.Push(ctx, ref, registry.Artifact{
		ArtifactType: registry.ArtifactTypeInstance,
		MediaType:    registry.MediaTypeDICOM,
		Title:        id.SOPInstanceUID + ".dcm",
		Annotations:  Annotations(id),
	}, content)
	if err != nil {
		return fmt.Errorf("%w: push %s: %v", core.ErrStorageFailure, ref, err)
	}
	s.log().Debug("stored instance", "id", id.String(), "ref", ref, "digest", desc.Digest.String())
	return nil
}

// Annotations returns the manifest annotations recorded for id.
func Annotations(id core.ResourceIdentifier) map[string]string {
	return map[string]string{
		registry.AnnotationStudyUID:       id.StudyUID,
		registry.AnnotationSeriesUID:      id.SeriesUID,
		registry.AnnotationSOPInstanceUID: id.SOPInstanceUID,
	}
}

func matches(annotations map[string]string, id core.ResourceIdentifier) bool {
	return annotations[registry.AnnotationStudyUID] == id.StudyUID &&
		annotations[registry.AnnotationSeriesUID] == id.SeriesUID &&
		annotations[registry.AnnotationSOPInstanceUID] == id.SOPInstanceUID
}

func mapError(id core.ResourceIdentifier, err error) error {
	if errors.Is(err, registry.ErrNotFound) {
		return fmt.Errorf("%w: %s: %v", core.ErrNotFound, id, err)
	}
	return err
}
