package retrieve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meigma/dicomblob/core"
)

func TestStatusFromError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "not found", err: fmt.Errorf("fetch: %w", core.ErrNotFound), want: http.StatusNotFound},
		{name: "structure", err: core.ErrStructureInvalid, want: http.StatusNotFound},
		{name: "frame", err: core.NewFrameNotFoundError([]int{3}), want: http.StatusNotFound},
		{name: "codec", err: core.ErrCodecUnsupported, want: http.StatusNotAcceptable},
		{name: "transcode", err: core.ErrUnsupportedTranscode, want: http.StatusNotAcceptable},
		{name: "invalid request", err: core.ErrInvalidRequest, want: http.StatusBadRequest},
		{name: "invalid reference", err: core.ErrInvalidReference, want: http.StatusBadRequest},
		{name: "canceled", err: fmt.Errorf("%w: %w", context.Canceled, core.ErrNotFound), want: StatusClientClosedRequest},
		{name: "other", err: errors.New("disk on fire"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StatusFromError(tt.err))
		})
	}
}
