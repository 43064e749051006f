// Package textutil provides small text helpers shared by the CLI and the HTTP
// server, chiefly filename sanitizing for names supplied by clients.
package textutil
