package part10

import "errors"

var (
	// ErrNotPart10 is returned when data lacks the preamble and DICM prefix.
	ErrNotPart10 = errors.New("dicom: not a part 10 object")

	// ErrMalformed is returned when the object cannot be parsed or a value
	// is inconsistent.
	ErrMalformed = errors.New("dicom: malformed data")

	// ErrUnsupportedTransferSyntax is returned for transfer syntaxes this
	// package cannot parse or write.
	ErrUnsupportedTransferSyntax = errors.New("dicom: unsupported transfer syntax")

	// ErrElementNotFound is returned by typed accessors for absent elements.
	ErrElementNotFound = errors.New("dicom: element not found")
)
