package transcode

import (
	"fmt"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/meigma/dicomblob/core"
	"github.com/meigma/dicomblob/internal/part10"
)

// RequiredFrameTags must be present before any frame of an object can be
// addressed.
var RequiredFrameTags = []tag.Tag{
	tag.BitsAllocated,
	tag.Columns,
	tag.Rows,
	tag.PixelData,
}

// Validate checks that f carries the attributes needed for frame access and
// that every index in frames is in range. All out-of-range indices are
// reported together in a *core.FrameNotFoundError.
func Validate(f *part10.File, frames []int) error {
	if f == nil || len(f.Dataset.Elements) == 0 {
		return fmt.Errorf("%w: no dataset", core.ErrStructureInvalid)
	}
	var missing []string
	for _, t := range RequiredFrameTags {
		if !f.Contains(t) {
			missing = append(missing, tagName(t))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", core.ErrStructureInvalid, strings.Join(missing, ", "))
	}

	info, err := part10.ReadPixelInfo(f)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStructureInvalid, err)
	}

	var bad []int
	for _, idx := range frames {
		if idx < 0 || idx >= info.NumberOfFrames {
			bad = append(bad, idx)
		}
	}
	if len(bad) > 0 {
		return core.NewFrameNotFoundError(bad)
	}
	return nil
}

func tagName(t tag.Tag) string {
	if info, err := tag.Find(t); err == nil {
		return info.Name
	}
	return t.String()
}
