// Package queue persists collage jobs and drives their lifecycle.
//
// The Store is the SQLite task queue: it assigns job identity at enqueue,
// hands each queued job to exactly one worker through an atomic claim, renews
// worker leases through heartbeats, and records the terminal COMPLETED or
// FAILED transition together with its result reference or error message.
// Active jobs whose lease expires are returned to the queue by ReclaimStale.
//
// The types in this file set (Job, Spec, Input, State, Layout) are shared by
// every queue backend, including the Redis implementation in queue/redisq.
//
// The database is transient storage for in-flight and recently finished jobs.
// Schema changes bump the version in schema.go; operators clear the database to
// adopt the new schema.
package queue
