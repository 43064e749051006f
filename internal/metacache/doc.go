// Package metacache persists extraction results in SQLite so repeated scans
// skip images that have not changed.
//
// Entries are keyed by absolute path and invalidated when the file size or
// modification time differs from the cached values. Images without metadata
// are cached too (with a nil Metadata) so misses are not re-decoded either.
package metacache
