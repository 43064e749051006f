// Package logging assembles structured slog loggers and formatting helpers used
// across naimeta commands and the HTTP server.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so request handlers can tag log
// lines with correlation IDs. Every logger built from config also carries a
// session_id so lines from one CLI invocation can be grouped in naimeta.log.
// The package also provides a no-op logger for tests and library code that is
// handed no logger.
package logging
