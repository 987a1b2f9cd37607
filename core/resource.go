package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Resource is the closed set of retrievable resource kinds: Study, Series,
// Instance, and Frames. The unexported marker method keeps implementations
// inside this package; match sites use a type switch with a default case
// returning ErrInvalidRequest.
type Resource interface {
	resource()
	// Validate reports whether the resource carries every UID it needs.
	Validate() error
}

// Study selects every instance of a study.
type Study struct {
	StudyUID string
}

// Series selects every instance of a series.
type Series struct {
	StudyUID  string
	SeriesUID string
}

// Instance selects one instance.
type Instance struct {
	ID ResourceIdentifier
}

// Frames selects frames of one instance by zero-based index.
type Frames struct {
	ID      ResourceIdentifier
	Indices []int
}

func (Study) resource()    {}
func (Series) resource()   {}
func (Instance) resource() {}
func (Frames) resource()   {}

// Validate implements Resource.
func (s Study) Validate() error {
	if s.StudyUID == "" {
		return fmt.Errorf("%w: empty study UID", ErrInvalidRequest)
	}
	return nil
}

// Validate implements Resource.
func (s Series) Validate() error {
	if s.StudyUID == "" || s.SeriesUID == "" {
		return fmt.Errorf("%w: series requires study and series UIDs", ErrInvalidRequest)
	}
	return nil
}

// Validate implements Resource.
func (i Instance) Validate() error {
	return i.ID.Validate()
}

// Validate implements Resource. Frame index range is checked against the
// object, not here.
func (f Frames) Validate() error {
	if err := f.ID.Validate(); err != nil {
		return err
	}
	if len(f.Indices) == 0 {
		return fmt.Errorf("%w: no frames requested", ErrInvalidRequest)
	}
	return nil
}

// Transfer syntax selectors understood by retrieve requests.
const (
	// DefaultTransferSyntax is used when a request names no transfer syntax.
	DefaultTransferSyntax = "1.2.840.10008.1.2.1"

	// AsStored requests objects in the transfer syntax they were stored with.
	AsStored = "*"
)

// RetrieveRequest asks for a resource in a transfer syntax.
type RetrieveRequest struct {
	Resource Resource
	// TransferSyntax is a transfer syntax UID, AsStored, or empty for
	// DefaultTransferSyntax.
	TransferSyntax string
}

// RequestedSyntax returns the effective transfer syntax of the request.
func (r RetrieveRequest) RequestedSyntax() string {
	if r.TransferSyntax == "" {
		return DefaultTransferSyntax
	}
	return r.TransferSyntax
}

// ParseFrameNumbers converts a comma-separated list of 1-based frame
// numbers, as used in DICOMweb paths, to zero-based indices.
func ParseFrameNumbers(s string) ([]int, error) {
	fields := strings.Split(s, ",")
	indices := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: frame number %q", ErrInvalidRequest, f)
		}
		indices = append(indices, n-1)
	}
	return indices, nil
}
