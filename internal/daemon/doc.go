// Package daemon coordinates the long-running collage worker process.
//
// It wires configuration, the task queue, and the workflow manager into a
// single lifecycle with flock-based locking so only one daemon serves a state
// directory at a time. Rendering lives in the workflow package; the daemon
// focuses on startup, shutdown, and status reporting.
package daemon
