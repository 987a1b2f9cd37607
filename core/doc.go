// Package core defines the types shared by the retrieve and export paths:
// resource identifiers, the closed set of retrievable resource kinds, the
// external collaborator interfaces (metadata index, blob store, export sink),
// and the sentinel errors every adapter maps its failures onto.
//
// Keeping these in a leaf package lets store, index, and sink adapters be
// implemented without importing the orchestrators.
package core
