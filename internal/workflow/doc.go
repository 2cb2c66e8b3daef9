// Package workflow runs the collage worker pool.
//
// The Manager starts a fixed number of workers. Each worker dequeues one job at
// a time, renews its lease with a heartbeat while the Processor decodes,
// normalizes, composes, and persists the collage, and then records the
// COMPLETED or FAILED transition on the queue. A reclaimer returns jobs whose
// lease expired (for example after a worker crash) to the queue.
//
// Terminal transitions are reported as Outcome values from Processor.Run and as
// Events on the Manager's subscription stream; a single job's failure never
// stops the worker that ran it.
package workflow
