// Package httpstore implements core.BlobStore against a plain HTTP origin
// that serves instances at {base}/{study}/{series}/{sop}.
package httpstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/meigma/dicomblob/core"
)

// Store reads and writes instances over HTTP.
type Store struct {
	base    string
	client  *http.Client
	headers http.Header
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClient sets the HTTP client used for requests.
func WithClient(client *http.Client) Option {
	return func(s *Store) {
		s.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers http.Header) Option {
	return func(s *Store) {
		if headers == nil {
			return
		}
		s.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(s *Store) {
		if s.headers == nil {
			s.headers = make(http.Header)
		}
		s.headers.Set(key, value)
	}
}

// WithLogger sets the logger for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New returns a Store for the origin at base.
func New(base string, opts ...Option) (*Store, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("httpstore: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("httpstore: unsupported scheme %q", u.Scheme)
	}
	s := &Store{
		base:   strings.TrimSuffix(base, "/"),
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}
	return s, nil
}

func (s *Store) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// URL returns the location of id.
func (s *Store) URL(id core.ResourceIdentifier) string {
	return s.base + "/" + url.PathEscape(id.StudyUID) +
		"/" + url.PathEscape(id.SeriesUID) +
		"/" + url.PathEscape(id.SOPInstanceUID)
}

// Get issues a GET for id and returns the response body.
func (s *Store) Get(ctx context.Context, id core.ResourceIdentifier) (io.ReadCloser, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	req, err := s.newRequest(ctx, http.MethodGet, id, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		drain(resp)
		return nil, statusError(id, resp)
	}
	s.log().Debug("fetched instance", "id", id.String(), "url", req.URL.String(), "size", resp.ContentLength)
	return resp.Body, nil
}

// Exists issues a HEAD for id.
func (s *Store) Exists(ctx context.Context, id core.ResourceIdentifier) (bool, error) {
	if err := id.Validate(); err != nil {
		return false, err
	}
	req, err := s.newRequest(ctx, http.MethodHead, id, nil)
	if err != nil {
		return false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	drain(resp)
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, statusError(id, resp)
}

// Put uploads the content of r to id with PUT.
func (s *Store) Put(ctx context.Context, id core.ResourceIdentifier, r io.Reader) error {
	if err := id.Validate(); err != nil {
		return err
	}
	req, err := s.newRequest(ctx, http.MethodPut, id, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", core.MediaTypeDICOM)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
	}
	drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: put %s: %s", core.ErrStorageFailure, id, resp.Status)
	}
	return nil
}

func (s *Store) newRequest(ctx context.Context, method string, id core.ResourceIdentifier, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.URL(id), body)
	if err != nil {
		return nil, err
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", core.MediaTypeDICOM)
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	return req, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

var errStatus = errors.New("httpstore: unexpected status")

func statusError(id core.ResourceIdentifier, resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return fmt.Errorf("%w: %s: %s", errStatus, id, resp.Status)
}
