// Package main hosts the naimeta CLI entrypoint and command graph.
//
// The Cobra-based command tree reads NovelAI generation metadata out of PNG
// files (single files, whole directories, or over HTTP), writes stealth
// payloads into images, and manages the extraction cache and configuration.
// It centralizes configuration resolution and structured logging setup so
// subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
// Command results go to stdout; logs go to stderr and the log file.
package main
