package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/meigma/dicomblob"
	"github.com/meigma/dicomblob/retrieve"
)

// errorBody is the JSON body of an error response.
type errorBody struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
	// Missing lists the 1-based frame numbers that do not exist.
	Missing []int `json:"missingFrames,omitempty"`
}

// statusFromError extends retrieve.StatusFromError with export errors.
func statusFromError(err error) int {
	if errors.Is(err, dicomblob.ErrUnsupportedConnection) {
		return http.StatusBadRequest
	}
	return retrieve.StatusFromError(err)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)
	if status == retrieve.StatusClientClosedRequest {
		// Nobody is listening.
		s.log().Debug("client went away", "path", r.URL.Path)
		w.WriteHeader(status)
		return
	}
	if status >= http.StatusInternalServerError {
		s.log().Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		s.log().Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}

	body := errorBody{Status: status, Error: err.Error()}
	var fnf *dicomblob.FrameNotFoundError
	if errors.As(err, &fnf) {
		body.Missing = make([]int, len(fnf.Missing))
		for i, idx := range fnf.Missing {
			body.Missing[i] = idx + 1
		}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
