// Package index groups the core.MetadataIndex adapters: an in-memory index
// for tests and single-process use, and a SQLite index backed by gorm.
package index
