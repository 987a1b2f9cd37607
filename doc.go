// Package dicomblob retrieves stored DICOM objects, transcodes them on
// demand, and exports them to external storage.
//
// [Client] ties together a metadata index, a blob store, and the
// transcoding engine. Retrieval is lazy: a response holds one stream per
// part, and fetched bytes are only transcoded when a stream is first read.
//
// # Quick Start
//
// Serve a study from files on disk, indexed in SQLite:
//
//	store, err := fsstore.NewDir("/var/lib/dicomblob/instances")
//	if err != nil {
//	    return err
//	}
//	idx, err := sqlite.Open("/var/lib/dicomblob/index.db")
//	if err != nil {
//	    return err
//	}
//	c, err := dicomblob.NewClient(
//	    dicomblob.WithBlobStore(store),
//	    dicomblob.WithMetadataIndex(idx),
//	)
//	if err != nil {
//	    return err
//	}
//	resp := c.Retrieve(ctx, dicomblob.RetrieveRequest{
//	    Resource: dicomblob.Study{StudyUID: "1.2.840.1"},
//	})
//	defer resp.Close()
//
// # Transfer Syntaxes
//
// An empty transfer syntax requests Explicit VR Little Endian. The value
// [AsStored] ("*") returns objects exactly as stored. JPEG Baseline and RLE
// Lossless are supported out of the box; further codecs are added with
// [WithCodec].
//
// # Export
//
// Export copies instances, or first frames rendered as JPEG, to a
// destination opened from a connection string such as "file:///exports" or
// "oci://registry.example.com/pacs":
//
//	report, err := c.Export(ctx, dicomblob.ExportRequest{
//	    Instances:             []string{"1.2/3.4/5.6"},
//	    DestinationConnection: "file:///exports",
//	    DestinationContainer:  "batch-7",
//	    ContentType:           "jpeg",
//	})
//
// Every item is attempted; failures are recorded per item in the report.
//
// # Caching
//
// Use [WithCacheDir] to keep fetched instances in a compressed local cache:
//
//	c, err := dicomblob.NewClient(
//	    dicomblob.WithBlobStore(ocistore),
//	    dicomblob.WithCacheDir("/var/cache/dicomblob", dicomblob.DefaultCacheSize),
//	)
package dicomblob
