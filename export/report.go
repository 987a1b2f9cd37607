package export

import (
	"encoding/json"
	"time"

	"github.com/meigma/dicomblob/core"
)

// Outcome is the result of exporting one reference.
type Outcome struct {
	Ref         string
	Identifier  core.ResourceIdentifier
	Key         string
	ContentType string
	Size        int64
	Err         error
}

// OK reports whether the item was uploaded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

type outcomeJSON struct {
	Ref         string                   `json:"ref"`
	Identifier  *core.ResourceIdentifier `json:"identifier,omitempty"`
	Key         string                   `json:"key,omitempty"`
	ContentType string                   `json:"contentType,omitempty"`
	Size        int64                    `json:"size,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

// MarshalJSON implements json.Marshaler. Err is rendered as its message.
func (o Outcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{
		Ref:         o.Ref,
		Key:         o.Key,
		ContentType: o.ContentType,
		Size:        o.Size,
	}
	if o.Identifier != (core.ResourceIdentifier{}) {
		id := o.Identifier
		out.Identifier = &id
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return json.Marshal(out)
}

// Report summarizes an export job.
type Report struct {
	JobID    string    `json:"jobId"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Outcomes []Outcome `json:"outcomes"`
}

// Succeeded returns the number of uploaded items.
func (r *Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failed returns the number of items that were not uploaded.
func (r *Report) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}
