// Package export copies stored instances to an export sink, either as the
// original DICOM objects or as rendered JPEG images.
//
// Items are processed one at a time by [Run]. A failing item is recorded in
// its [Outcome] and logged; it never stops the remaining items.
package export
