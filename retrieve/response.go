package retrieve

import (
	"errors"

	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/lazy"
)

// Part describes one stream of a Response.
type Part struct {
	ID core.ResourceIdentifier
	// Frame is the zero-based frame index, or -1 for a whole instance.
	Frame int
	// TransferSyntax is the syntax the stream is produced in, or core.AsStored
	// when instances are returned unchanged.
	TransferSyntax string
}

// Response is the outcome of a retrieve. Streams and Parts are parallel and
// in resolution order. When Status is not 200, Err is set and Streams is
// empty.
type Response struct {
	Status  int
	Streams []*lazy.Stream
	Parts   []Part
	Err     error
}

// Close closes every stream.
func (r *Response) Close() error {
	var errs []error
	for _, s := range r.Streams {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func failed(err error) *Response {
	return &Response{Status: StatusFromError(err), Err: err}
}
