// Package services defines shared utilities consumed by the queue backends,
// the compositing worker, and the status tracker.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, worker names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     (validation, decode, render, not found) consistently across packages.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability) stays uniform.
package services
