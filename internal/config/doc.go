// Package config loads, normalizes, and validates stemsplit configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for
// credentials (STEMSPLIT_S3_ACCESS_KEY, STEMSPLIT_S3_SECRET_KEY,
// STEMSPLIT_DATABASE_URL). The Config type centralizes every knob the CLI and
// pipeline need so directories and external service settings are resolved in
// one pass.
package config
