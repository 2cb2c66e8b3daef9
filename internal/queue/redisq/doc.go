// Package redisq is the Redis task queue backend.
//
// Jobs live in a hash per id, queued ids in a FIFO list, and leases in a sorted
// set scored by last heartbeat. Every state transition runs as a Lua script so
// the check and the write happen atomically on the server, which gives the same
// exactly-once claim and lease semantics as the SQLite store.
package redisq
