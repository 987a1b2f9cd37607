package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/meigma/dicomblob"
	"github.com/meigma/dicomblob/core"
)

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req dicomblob.ExportRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxExportBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
				Status: http.StatusRequestEntityTooLarge,
				Error:  err.Error(),
			})
			return
		}
		s.writeError(w, r, fmt.Errorf("%w: decode export request: %v", core.ErrInvalidRequest, err))
		return
	}

	report, err := s.backend.Export(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log().Info("export finished",
		"destination", req.DestinationConnection,
		"container", req.DestinationContainer,
		"succeeded", report.Succeeded(),
		"failed", report.Failed())
	writeJSON(w, http.StatusOK, report)
}
