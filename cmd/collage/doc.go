// Command collage submits image compositing jobs, polls their status, and
// runs the worker daemon that renders them.
//
// Producers and workers share the queue named in the configuration file, so
// `collage submit` and `collage status` work whether or not a daemon is
// running in the same process.
package main
