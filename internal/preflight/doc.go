// Package preflight provides readiness checks for the filesystem paths,
// cache database, and listen address that naimeta depends on.
//
// The CLI "naimeta check" command runs RunAll and renders each Result; the
// scan and serve commands call individual checks before starting work so a
// misconfigured path fails fast instead of after a long scan.
//
// Each check is gated by its config toggle -- disabled features are skipped.
package preflight
