// Package server exposes retrieve and export over HTTP.
//
// Routes:
//
//	GET  /studies/{study}
//	GET  /studies/{study}/series/{series}
//	GET  /studies/{study}/series/{series}/instances/{instance}
//	GET  /studies/{study}/series/{series}/instances/{instance}/frames/{frames}
//	POST /export
//	GET  /healthz
//
// Retrieve responses are multipart/related. The transfer syntax is taken
// from the transfer-syntax parameter of the Accept header, or the
// transfer-syntax query parameter, and defaults to Explicit VR Little
// Endian. Frame numbers in the path are 1-based.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/meigma/dicomblob"
)

// Backend is the client capability the server exposes.
type Backend interface {
	Retrieve(ctx context.Context, req dicomblob.RetrieveRequest) *dicomblob.Response
	Export(ctx context.Context, req dicomblob.ExportRequest) (*dicomblob.Report, error)
}

// DefaultMaxExportBody limits the size of an export request body.
const DefaultMaxExportBody int64 = 4 << 20

// Server routes HTTP requests to a Backend.
type Server struct {
	backend       Backend
	mux           *http.ServeMux
	maxExportBody int64
	logger        *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for request logs.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxExportBody limits the size of export request bodies.
func WithMaxExportBody(n int64) Option {
	return func(s *Server) {
		s.maxExportBody = n
	}
}

// New returns a handler serving backend.
func New(backend Backend, opts ...Option) *Server {
	s := &Server{
		backend:       backend,
		mux:           http.NewServeMux(),
		maxExportBody: DefaultMaxExportBody,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /studies/{study}", s.handleStudy)
	s.mux.HandleFunc("GET /studies/{study}/series/{series}", s.handleSeries)
	s.mux.HandleFunc("GET /studies/{study}/series/{series}/instances/{instance}", s.handleInstance)
	s.mux.HandleFunc("GET /studies/{study}/series/{series}/instances/{instance}/frames/{frames}", s.handleFrames)
	s.mux.HandleFunc("POST /export", s.handleExport)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return s
}

func (s *Server) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.log().Debug("request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"bytes", rec.written,
		"duration", time.Since(start))
}

// statusRecorder captures the status and size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.written += int64(n)
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
