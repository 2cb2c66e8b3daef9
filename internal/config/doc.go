// Package config loads, normalizes, and validates collage configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// REDIS_URL and UPLOAD_DIR. The Config type centralizes every knob the worker
// daemon and CLI need, so upload, artifact, and state directories plus the queue
// backend are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
