// Package store groups the core.BlobStore adapters.
//
// Each subpackage stores raw Part 10 bytes keyed by a
// core.ResourceIdentifier:
//
//   - fsstore keeps one file per instance on an afero filesystem.
//   - ocistore keeps one single-layer OCI artifact per instance.
//   - httpstore reads instances from a plain HTTP origin.
//   - cache wraps any BlobStore with a compressed, content-addressed
//     disk cache.
package store
