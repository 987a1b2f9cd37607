// Package retrieve resolves DICOM resources to stored instances and returns
// them as lazily transcoded streams.
//
// A [Service] answers a [core.RetrieveRequest] with a [Response] carrying an
// HTTP-style status and one [lazy.Stream] per instance or frame. Fetches run
// concurrently; transcoding is deferred until a stream is first read.
package retrieve
