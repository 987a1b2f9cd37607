// Package registry stores DICOM instances and exported files as OCI
// artifacts.
//
// Each artifact is a manifest with an empty config and a single layer. The
// client uses the oras subpackage for low-level OCI operations and adds
// artifact naming, annotations, and content verification.
package registry
