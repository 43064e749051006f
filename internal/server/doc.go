// Package server exposes metadata extraction over HTTP.
//
// POST /api/extract accepts a JSON body carrying a base64-encoded PNG and
// answers with the resolved prompt fields and the raw metadata document.
// GET /api/health reports liveness. Every response carries the configured
// CORS origin and an X-Request-ID header that also appears in the logs as
// correlation_id.
package server
