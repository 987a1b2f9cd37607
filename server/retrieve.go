package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/meigma/dicomblob"
	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/retrieve"
)

const (
	mediaTypeDICOM  = "application/dicom"
	mediaTypeOctets = "application/octet-stream"
)

func (s *Server) handleStudy(w http.ResponseWriter, r *http.Request) {
	s.retrieve(w, r, core.Study{StudyUID: r.PathValue("study")}, mediaTypeDICOM)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	s.retrieve(w, r, core.Series{
		StudyUID:  r.PathValue("study"),
		SeriesUID: r.PathValue("series"),
	}, mediaTypeDICOM)
}

func (s *Server) handleInstance(w http.ResponseWriter, r *http.Request) {
	s.retrieve(w, r, core.Instance{ID: instanceID(r)}, mediaTypeDICOM)
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	indices, err := core.ParseFrameNumbers(r.PathValue("frames"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.retrieve(w, r, core.Frames{ID: instanceID(r), Indices: indices}, mediaTypeOctets)
}

func instanceID(r *http.Request) core.ResourceIdentifier {
	return core.NewResourceIdentifier(r.PathValue("study"), r.PathValue("series"), r.PathValue("instance"))
}

// retrieve runs the request and writes the response as multipart/related
// with one part per stream.
func (s *Server) retrieve(w http.ResponseWriter, r *http.Request, res core.Resource, partType string) {
	ts, err := transferSyntax(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := s.backend.Retrieve(r.Context(), dicomblob.RetrieveRequest{Resource: res, TransferSyntax: ts})
	defer resp.Close()
	if resp.Status != http.StatusOK {
		s.writeError(w, r, resp.Err)
		return
	}

	// Failures on the first part still get a proper status.
	if len(resp.Streams) > 0 {
		if err := resp.Streams[0].Materialize(r.Context()); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", fmt.Sprintf("multipart/related; type=%q; boundary=%s", partType, mw.Boundary()))
	w.WriteHeader(http.StatusOK)

	for i, stream := range resp.Streams {
		err := stream.Materialize(r.Context())
		var part io.Writer
		if err == nil {
			part, err = mw.CreatePart(partHeader(partType, resp.Parts[i]))
		}
		if err == nil {
			_, err = io.Copy(part, stream)
		}
		if err != nil {
			s.log().Warn("retrieve aborted after headers",
				"path", r.URL.Path, "part", i, "error", err)
			// Headers are gone; only the connection can signal failure.
			panic(http.ErrAbortHandler)
		}
	}
	if err := mw.Close(); err != nil && !errors.Is(err, r.Context().Err()) {
		s.log().Debug("close multipart", "error", err)
	}
}

func partHeader(partType string, p retrieve.Part) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	ct := partType
	if p.TransferSyntax != "" && p.TransferSyntax != core.AsStored {
		ct = fmt.Sprintf("%s; transfer-syntax=%s", partType, p.TransferSyntax)
	}
	h.Set("Content-Type", ct)
	loc := fmt.Sprintf("/studies/%s/series/%s/instances/%s", p.ID.StudyUID, p.ID.SeriesUID, p.ID.SOPInstanceUID)
	if p.Frame >= 0 {
		loc += fmt.Sprintf("/frames/%d", p.Frame+1)
	}
	h.Set("Content-Location", loc)
	return h
}
