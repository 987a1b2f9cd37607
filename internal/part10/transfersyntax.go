package part10

// Transfer syntax UIDs.
const (
	ImplicitVRLittleEndian         = "1.2.840.10008.1.2"      // uid.ImplicitVRLittleEndian
	ExplicitVRLittleEndian         = "1.2.840.10008.1.2.1"    // uid.ExplicitVRLittleEndian
	DeflatedExplicitVRLittleEndian = "1.2.840.10008.1.2.1.99" // uid.DeflatedExplicitVRLittleEndian
	ExplicitVRBigEndian            = "1.2.840.10008.1.2.2"    // uid.ExplicitVRBigEndian

	JPEGBaseline8Bit   = "1.2.840.10008.1.2.4.50"
	JPEGExtended12Bit  = "1.2.840.10008.1.2.4.51"
	JPEGLossless       = "1.2.840.10008.1.2.4.57"
	JPEGLosslessSV1    = "1.2.840.10008.1.2.4.70"
	JPEGLSLossless     = "1.2.840.10008.1.2.4.80"
	JPEGLSNearLossless = "1.2.840.10008.1.2.4.81"
	JPEG2000Lossless   = "1.2.840.10008.1.2.4.90"
	JPEG2000           = "1.2.840.10008.1.2.4.91"
	HTJ2KLossless      = "1.2.840.10008.1.2.4.201"
	HTJ2K              = "1.2.840.10008.1.2.4.203"
	MPEG2MainProfile   = "1.2.840.10008.1.2.4.100"
	MPEG4AVCH264High   = "1.2.840.10008.1.2.4.102"
	HEVCH265Main       = "1.2.840.10008.1.2.4.107"
	RLELossless        = "1.2.840.10008.1.2.5"
)

// TransferSyntax describes how an object's body is encoded.
type TransferSyntax struct {
	UID  string
	Name string
	// Explicit is true when elements carry their VR.
	Explicit bool
	// BigEndian is true for the retired big endian encoding.
	BigEndian bool
	// Deflated is true when the body is deflate-compressed.
	Deflated bool
	// Encapsulated is true when pixel data is stored as compressed fragments.
	Encapsulated bool
	Lossy        bool
	Retired      bool
}

// Parsable reports whether objects in ts can be parsed and written.
// Deflated and big endian bodies are recognized but served as stored only.
func (ts TransferSyntax) Parsable() bool { return !ts.Deflated && !ts.BigEndian }

// Equal reports whether two transfer syntaxes have the same UID.
func (ts TransferSyntax) Equal(o TransferSyntax) bool { return ts.UID == o.UID }

// String returns the syntax name, or the UID when the name is unknown.
func (ts TransferSyntax) String() string {
	if ts.Name != "" {
		return ts.Name
	}
	return ts.UID
}

var transferSyntaxes = map[string]TransferSyntax{}

func register(ts TransferSyntax) { transferSyntaxes[ts.UID] = ts }

func init() {
	register(TransferSyntax{UID: ImplicitVRLittleEndian, Name: "Implicit VR Little Endian"})
	register(TransferSyntax{UID: ExplicitVRLittleEndian, Name: "Explicit VR Little Endian", Explicit: true})
	register(TransferSyntax{UID: DeflatedExplicitVRLittleEndian, Name: "Deflated Explicit VR Little Endian", Explicit: true, Deflated: true})
	register(TransferSyntax{UID: ExplicitVRBigEndian, Name: "Explicit VR Big Endian", Explicit: true, BigEndian: true, Retired: true})

	encapsulated := []struct {
		id, name string
		lossy    bool
	}{
		{JPEGBaseline8Bit, "JPEG Baseline (Process 1)", true},
		{JPEGExtended12Bit, "JPEG Extended (Process 2 & 4)", true},
		{JPEGLossless, "JPEG Lossless (Process 14)", false},
		{JPEGLosslessSV1, "JPEG Lossless SV1", false},
		{JPEGLSLossless, "JPEG-LS Lossless", false},
		{JPEGLSNearLossless, "JPEG-LS Near-Lossless", true},
		{JPEG2000Lossless, "JPEG 2000 Lossless", false},
		{JPEG2000, "JPEG 2000", true},
		{HTJ2KLossless, "HTJ2K Lossless", false},
		{HTJ2K, "HTJ2K", true},
		{MPEG2MainProfile, "MPEG2 Main Profile", true},
		{MPEG4AVCH264High, "MPEG-4 AVC/H.264 High Profile", true},
		{HEVCH265Main, "HEVC/H.265 Main Profile", true},
		{RLELossless, "RLE Lossless", false},
	}
	for _, e := range encapsulated {
		register(TransferSyntax{UID: e.id, Name: e.name, Explicit: true, Encapsulated: true, Lossy: e.lossy})
	}
}

// LookupTransferSyntax returns the registered transfer syntax for id.
func LookupTransferSyntax(id string) (TransferSyntax, bool) {
	ts, ok := transferSyntaxes[id]
	return ts, ok
}

// MustTransferSyntax returns the registered transfer syntax for id and
// panics when it is unknown. Intended for package-level constants.
func MustTransferSyntax(id string) TransferSyntax {
	ts, ok := LookupTransferSyntax(id)
	if !ok {
		panic("part10: unknown transfer syntax " + id)
	}
	return ts
}
