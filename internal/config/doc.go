// Package config loads, normalizes, and validates naimeta configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// NAIMETA_LOG_LEVEL and NAIMETA_SERVER_BIND. The Config type centralizes every
// knob the CLI and HTTP server need: scan behaviour, export names, the cache
// database location, and logging.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
