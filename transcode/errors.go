package transcode

import (
	"errors"
	"fmt"

	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/internal/part10"
)

// parseError maps DICOM parse failures onto core sentinels.
func parseError(err error) error {
	if errors.Is(err, part10.ErrUnsupportedTransferSyntax) {
		return fmt.Errorf("%w: %v", core.ErrUnsupportedTranscode, err)
	}
	return fmt.Errorf("%w: %v", core.ErrStructureInvalid, err)
}

// codecError maps a codec failure onto ErrCodecUnsupported so it surfaces
// as "exists but cannot be produced in the requested form".
func codecError(op string, c Codec, err error) error {
	return fmt.Errorf("%w: %s %s: %v", core.ErrCodecUnsupported, op, c.Name(), err)
}
