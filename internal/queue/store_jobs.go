package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enqueue validates spec, assigns a fresh identifier, and stores the job as QUEUED.
func (s *Store) Enqueue(ctx context.Context, spec Spec) (*Job, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	now, timestamp := s.timestamp()
	job := NewJob(uuid.NewString(), spec, now)

	inputsJSON, err := json.Marshal(job.Inputs)
	if err != nil {
		return nil, fmt.Errorf("marshal inputs: %w", err)
	}

	if _, err := s.exec(
		ctx,
		`INSERT INTO jobs (
            id, inputs_json, layout, border_width, border_color, cleanup_inputs,
            state, attempt, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		job.ID,
		string(inputsJSON),
		job.Layout,
		job.BorderWidth,
		EncodeColor(job.BorderColor),
		boolToInt(job.CleanupInputs),
		StateQueued,
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.Get(ctx, job.ID)
}

// Get fetches a job by identifier. Unknown identifiers return nil without error.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs in submission order, optionally filtered by state.
func (s *Store) List(ctx context.Context, states ...State) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		query += ` WHERE state IN (` + makePlaceholders(len(states)) + `)`
		for _, state := range states {
			args = append(args, state)
		}
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// Claim atomically moves the oldest QUEUED job to ACTIVE and returns it.
// It returns nil without error when nothing is queued.
func (s *Store) Claim(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)
	_, timestamp := s.timestamp()

	var job *Job
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(
			ctx,
			`UPDATE jobs
            SET state = ?, attempt = attempt + 1, started_at = ?, heartbeat_at = ?, updated_at = ?
            WHERE seq = (SELECT seq FROM jobs WHERE state = ? ORDER BY seq LIMIT 1) AND state = ?
            RETURNING `+jobColumns,
			StateActive,
			timestamp,
			timestamp,
			timestamp,
			StateQueued,
			StateQueued,
		)
		claimed, scanErr := scanJob(row)
		if scanErr != nil {
			return scanErr
		}
		job = claimed
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Dequeue blocks until a job can be claimed or ctx is done.
func (s *Store) Dequeue(ctx context.Context) (*Job, error) {
	return PollClaim(ctx, s.pollInterval, s.Claim)
}

// PollClaim repeats claim every interval until it yields a job or ctx is done.
// Backends without a native blocking claim share it.
func PollClaim(ctx context.Context, interval time.Duration, claim func(context.Context) (*Job, error)) (*Job, error) {
	ctx = ensureContext(ctx)
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
		job, err := claim(ctx)
		if err != nil || job != nil {
			return job, err
		}
		timer.Reset(interval)
	}
}
