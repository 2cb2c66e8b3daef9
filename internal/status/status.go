// Package status projects job records into the read-only view polled by clients.
package status

import (
	"context"
	"fmt"
	"os"

	"collage/internal/artifact"
	"collage/internal/queue"
	"collage/internal/services"
)

// StateNotFound is reported for identifiers the queue has never seen.
const StateNotFound = "not_found"

// Report is the status of a single job as seen by a polling client.
type Report struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	ResultRef string `json:"result_ref,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Found reports whether the queue knows the job.
func (r Report) Found() bool {
	return r.State != StateNotFound
}

// Terminal reports whether the job reached COMPLETED or FAILED.
func (r Report) Terminal() bool {
	state, ok := queue.ParseState(r.State)
	return ok && state.IsTerminal()
}

// JobGetter reads a job record without side effects.
type JobGetter interface {
	Get(ctx context.Context, id string) (*queue.Job, error)
}

// Tracker answers status and artifact lookups.
type Tracker struct {
	jobs      JobGetter
	artifacts *artifact.Store
}

// NewTracker constructs a tracker over jobs and artifacts.
func NewTracker(jobs JobGetter, artifacts *artifact.Store) *Tracker {
	return &Tracker{jobs: jobs, artifacts: artifacts}
}

// Status returns the current report for id. Unknown identifiers yield a
// not_found report rather than an error.
func (t *Tracker) Status(ctx context.Context, id string) (Report, error) {
	job, err := t.jobs.Get(ctx, id)
	if err != nil {
		return Report{}, fmt.Errorf("get job %s: %w", id, err)
	}
	if job == nil {
		return Report{ID: id, State: StateNotFound}, nil
	}
	report := Report{ID: job.ID, State: string(job.State)}
	switch job.State {
	case queue.StateCompleted:
		report.ResultRef = job.ResultRef
	case queue.StateFailed:
		report.Error = job.Error
	}
	return report, nil
}

// Artifact returns the path of the rendered collage for id.
func (t *Tracker) Artifact(ctx context.Context, id string) (string, error) {
	ref, err := t.completedRef(ctx, id)
	if err != nil {
		return "", err
	}
	return t.artifacts.Path(ref)
}

// OpenArtifact streams the rendered collage for id. The caller closes it.
func (t *Tracker) OpenArtifact(ctx context.Context, id string) (*os.File, error) {
	ref, err := t.completedRef(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.artifacts.Open(ref)
}

// completedRef resolves the artifact identifier of a COMPLETED job whose file
// is on disk; every other case is ErrNotFound.
func (t *Tracker) completedRef(ctx context.Context, id string) (string, error) {
	report, err := t.Status(ctx, id)
	if err != nil {
		return "", err
	}
	if !report.Found() {
		return "", services.Wrap(services.ErrNotFound, "status", "artifact", "unknown job "+id, nil)
	}
	if report.State != string(queue.StateCompleted) {
		return "", services.Wrap(services.ErrNotFound, "status", "artifact", fmt.Sprintf("job %s is %s", id, report.State), nil)
	}
	ref := report.ResultRef
	if ref == "" {
		ref = report.ID
	}
	exists, err := t.artifacts.Exists(ref)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", services.Wrap(services.ErrNotFound, "status", "artifact", "artifact missing for job "+id, nil)
	}
	return ref, nil
}
