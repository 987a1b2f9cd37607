package retrieve

import (
	"context"
	"errors"
	"net/http"

	"github.com/meigma/dicomblob/core"
)

// StatusClientClosedRequest is reported when the caller cancels a request.
const StatusClientClosedRequest = 499

// StatusFromError maps an error to the status reported for it. A nil error
// is http.StatusOK.
func StatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case errors.Is(err, core.ErrInvalidRequest), errors.Is(err, core.ErrInvalidReference):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound),
		errors.Is(err, core.ErrStructureInvalid),
		errors.Is(err, core.ErrFrameNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrCodecUnsupported), errors.Is(err, core.ErrUnsupportedTranscode):
		return http.StatusNotAcceptable
	default:
		return http.StatusInternalServerError
	}
}
