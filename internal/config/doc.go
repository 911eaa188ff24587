// Package config loads, normalizes, and validates shelfscan configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SHELFSCAN_DATABASE_DSN. The Config type centralizes every knob the capture
// daemon and the CLI need, so camera, QR label, bridge and database settings
// are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
