package registry

// Artifact and layer types.
const (
	// ArtifactTypeInstance identifies a stored DICOM instance.
	ArtifactTypeInstance = "application/vnd.meigma.dicomblob.instance.v1"

	// ArtifactTypeExport identifies a file written by an export job.
	ArtifactTypeExport = "application/vnd.meigma.dicomblob.export.v1"

	// MediaTypeDICOM is the layer media type of a Part 10 object.
	MediaTypeDICOM = "application/dicom"
)

// Manifest annotations set on instance artifacts.
const (
	AnnotationStudyUID       = "io.meigma.dicomblob.study"
	AnnotationSeriesUID      = "io.meigma.dicomblob.series"
	AnnotationSOPInstanceUID = "io.meigma.dicomblob.sop"
)
