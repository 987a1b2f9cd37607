// Package part10 reads and writes DICOM Part 10 objects on top of
// github.com/suyashkumar/dicom.
//
// Pixel data is kept undecoded. Native pixel data stays as its raw bytes and
// encapsulated pixel data as its fragments, so single frames can be selected
// and re-encoded without touching the rest of the object.
package part10
