// Package oras provides a generic OCI client layer wrapping the ORAS library.
//
// Client provides content-agnostic operations for pushing and fetching blobs
// and manifests, handling authentication transparently.
package oras
