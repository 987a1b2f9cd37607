package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/dicomblob"
	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/index/memory"
	"github.com/meigma/dicomblob/internal/part10"
	"github.com/meigma/dicomblob/internal/part10/part10test"
	"github.com/meigma/dicomblob/sink"
	"github.com/meigma/dicomblob/store/fsstore"
)

var (
	instanceA = core.NewResourceIdentifier("1.2", "3.4", "5.6")
	instanceB = core.NewResourceIdentifier("1.2", "3.4", "5.7")
)

type fixture struct {
	srv  *httptest.Server
	out  afero.Fs
	data map[core.ResourceIdentifier][]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	out := afero.NewMemMapFs()
	c, err := dicomblob.NewClient(
		dicomblob.WithBlobStore(fsstore.New(afero.NewMemMapFs())),
		dicomblob.WithMetadataIndex(memory.New()),
		dicomblob.WithSinkOptions(sink.WithMemFs(out)),
	)
	require.NoError(t, err)

	f := &fixture{out: out, data: make(map[core.ResourceIdentifier][]byte)}
	for _, id := range []core.ResourceIdentifier{instanceA, instanceB} {
		data := part10test.Bytes(t, part10test.Options{ID: id})
		_, err := c.Ingest(t.Context(), bytes.NewReader(data))
		require.NoError(t, err)
		f.data[id] = data
	}

	f.srv = httptest.NewServer(New(c))
	t.Cleanup(f.srv.Close)
	return f
}

type part struct {
	contentType string
	location    string
	body        []byte
}

func (f *fixture) get(t *testing.T, path, accept string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, f.srv.URL+path, nil)
	require.NoError(t, err)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readParts(t *testing.T, resp *http.Response, wantType string) []part {
	t.Helper()
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/related", mediaType)
	require.Equal(t, wantType, params["type"])

	var parts []part
	mr := multipart.NewReader(resp.Body, params["boundary"])
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return parts
		}
		require.NoError(t, err)
		body, err := io.ReadAll(p)
		require.NoError(t, err)
		parts = append(parts, part{
			contentType: p.Header.Get("Content-Type"),
			location:    p.Header.Get("Content-Location"),
			body:        body,
		})
	}
}

func TestRetrieveInstance(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	resp := f.get(t, "/studies/1.2/series/3.4/instances/5.6", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	parts := readParts(t, resp, "application/dicom")
	require.Len(t, parts, 1)
	assert.Equal(t, "application/dicom; transfer-syntax=1.2.840.10008.1.2.1", parts[0].contentType)
	assert.Equal(t, "/studies/1.2/series/3.4/instances/5.6", parts[0].location)
	assert.Equal(t, f.data[instanceA], parts[0].body)
}

func TestRetrieveAsStored(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	resp := f.get(t, "/studies/1.2", `multipart/related; type="application/dicom"; transfer-syntax=*`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	parts := readParts(t, resp, "application/dicom")
	require.Len(t, parts, 2)
	for i, id := range []core.ResourceIdentifier{instanceA, instanceB} {
		assert.Equal(t, "application/dicom", parts[i].contentType)
		assert.Equal(t, f.data[id], parts[i].body)
	}
}

func TestRetrieveSeriesImplicit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	resp := f.get(t, "/studies/1.2/series/3.4?transfer-syntax="+part10.ImplicitVRLittleEndian, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	parts := readParts(t, resp, "application/dicom")
	require.Len(t, parts, 2)
	for _, p := range parts {
		assert.Contains(t, p.contentType, "transfer-syntax="+part10.ImplicitVRLittleEndian)
		parsed, err := part10.Parse(p.body)
		require.NoError(t, err)
		assert.Equal(t, part10.ImplicitVRLittleEndian, parsed.TransferSyntax.UID)
	}
}

func TestRetrieveFrames(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	resp := f.get(t, "/studies/1.2/series/3.4/instances/5.6/frames/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	parts := readParts(t, resp, "application/octet-stream")
	require.Len(t, parts, 1)
	assert.Equal(t, "application/octet-stream; transfer-syntax=1.2.840.10008.1.2.1", parts[0].contentType)
	assert.Equal(t, "/studies/1.2/series/3.4/instances/5.6/frames/1", parts[0].location)
	assert.Equal(t, part10test.Frames(part10test.DefaultInfo)[0], parts[0].body)
}

func TestRetrieveErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tests := []struct {
		name        string
		path        string
		accept      string
		wantStatus  int
		wantMissing []int
	}{
		{name: "unknown study", path: "/studies/9.9", wantStatus: http.StatusNotFound},
		{name: "unknown instance", path: "/studies/1.2/series/3.4/instances/0.0", wantStatus: http.StatusNotFound},
		{
			name:        "frame out of range",
			path:        "/studies/1.2/series/3.4/instances/5.6/frames/1,3",
			wantStatus:  http.StatusNotFound,
			wantMissing: []int{3},
		},
		{name: "frame zero", path: "/studies/1.2/series/3.4/instances/5.6/frames/0", wantStatus: http.StatusBadRequest},
		{name: "frame not a number", path: "/studies/1.2/series/3.4/instances/5.6/frames/x", wantStatus: http.StatusBadRequest},
		{
			name:       "unknown transfer syntax",
			path:       "/studies/1.2/series/3.4/instances/5.6",
			accept:     `multipart/related; type="application/dicom"; transfer-syntax=1.2.3.999`,
			wantStatus: http.StatusNotAcceptable,
		},
		{name: "bad accept", path: "/studies/1.2", accept: "multipart/related; =", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := f.get(t, tt.path, tt.accept)
			require.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			var body errorBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, tt.wantMissing, body.Missing)
		})
	}
}

func (f *fixture) post(t *testing.T, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, f.srv.URL+"/export", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestExport(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	resp := f.post(t, `{
		"instances": ["1.2/3.4/5.6", "1.2/3.4/0.0"],
		"destinationConnection": "mem://",
		"destinationContainer": "exports",
		"contentType": "dicom",
		"label": "run1"
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report struct {
		JobID    string `json:"jobId"`
		Outcomes []struct {
			Ref   string `json:"ref"`
			Key   string `json:"key"`
			Error string `json:"error"`
		} `json:"outcomes"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.NotEmpty(t, report.JobID)
	require.Len(t, report.Outcomes, 2)
	assert.Empty(t, report.Outcomes[0].Error)
	assert.NotEmpty(t, report.Outcomes[1].Error)

	got, err := afero.ReadFile(f.out, "/exports/"+report.Outcomes[0].Key)
	require.NoError(t, err)
	assert.Equal(t, f.data[instanceA], got)
}

func TestExportErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "malformed json", body: `{"instances":`, wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: `{"bogus": true}`, wantStatus: http.StatusBadRequest},
		{name: "bad content type", body: `{"destinationConnection":"mem://","contentType":"tiff"}`, wantStatus: http.StatusBadRequest},
		{name: "unsupported connection", body: `{"destinationConnection":"ftp://host"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := f.post(t, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestExportBodyLimit(t *testing.T) {
	t.Parallel()

	h := New(nil, WithMaxExportBody(16))
	req := httptest.NewRequest(http.MethodPost, "/export",
		strings.NewReader(`{"instances":["`+strings.Repeat("1", 64)+`"]}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	New(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestTransferSyntax(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		query  string
		accept string
		want   string
	}{
		{name: "default", want: core.DefaultTransferSyntax},
		{name: "accept star", accept: `multipart/related; type="application/dicom"; transfer-syntax=*`, want: core.AsStored},
		{
			name:   "first with parameter wins",
			accept: `multipart/related; type="application/dicom", multipart/related; type="application/dicom"; transfer-syntax=1.2.840.10008.1.2`,
			want:   "1.2.840.10008.1.2",
		},
		{name: "query overrides", query: "?transfer-syntax=*", accept: `multipart/related; transfer-syntax=1.2.840.10008.1.2`, want: core.AsStored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/studies/1"+tt.query, nil)
			if tt.accept != "" {
				r.Header.Set("Accept", tt.accept)
			}
			got, err := transferSyntax(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
