// Package export writes scan results as the two table files produced for a
// directory: a CSV of resolved prompt fields and a TSV of raw metadata JSON.
//
// WriteFiles replaces both files atomically while holding an exclusive lock
// on the output directory, so concurrent scans targeting the same directory
// never interleave their output.
package export
