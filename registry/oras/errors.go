package oras

import "errors"

// Errors returned by Client, mapped from registry responses.
var (
	ErrNotFound         = errors.New("oras: not found")
	ErrUnauthorized     = errors.New("oras: unauthorized")
	ErrForbidden        = errors.New("oras: forbidden")
	ErrInvalidReference = errors.New("oras: invalid reference")

	// ErrInvalidDescriptor is returned for a nil descriptor or one whose
	// digest or size does not match the content.
	ErrInvalidDescriptor = errors.New("oras: invalid descriptor")

	// ErrManifestInvalid is returned when a fetched manifest does not decode.
	ErrManifestInvalid = errors.New("oras: invalid manifest")
)
