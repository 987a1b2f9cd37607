package core

import (
	"fmt"
	"strings"
)

// ResourceIdentifier addresses exactly one stored DICOM instance.
type ResourceIdentifier struct {
	StudyUID       string `json:"studyInstanceUid"`
	SeriesUID      string `json:"seriesInstanceUid"`
	SOPInstanceUID string `json:"sopInstanceUid"`
}

// NewResourceIdentifier returns an identifier for the given UIDs.
func NewResourceIdentifier(study, series, sop string) ResourceIdentifier {
	return ResourceIdentifier{StudyUID: study, SeriesUID: series, SOPInstanceUID: sop}
}

// Validate reports whether all three UIDs are present.
func (id ResourceIdentifier) Validate() error {
	switch {
	case id.StudyUID == "":
		return fmt.Errorf("%w: empty study UID", ErrInvalidRequest)
	case id.SeriesUID == "":
		return fmt.Errorf("%w: empty series UID", ErrInvalidRequest)
	case id.SOPInstanceUID == "":
		return fmt.Errorf("%w: empty SOP instance UID", ErrInvalidRequest)
	}
	return nil
}

// String returns the identifier as study/series/sop.
func (id ResourceIdentifier) String() string {
	return id.StudyUID + "/" + id.SeriesUID + "/" + id.SOPInstanceUID
}

// ParseReference parses a "study/series/sop" instance reference.
func ParseReference(ref string) (ResourceIdentifier, error) {
	parts := strings.Split(strings.TrimSpace(ref), "/")
	if len(parts) != 3 {
		return ResourceIdentifier{}, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	for _, p := range parts {
		if p == "" {
			return ResourceIdentifier{}, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
		}
	}
	return NewResourceIdentifier(parts[0], parts[1], parts[2]), nil
}
