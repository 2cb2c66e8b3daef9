package queue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Complete records the COMPLETED transition for a job the caller holds.
// ErrLeaseLost is returned when the lease no longer belongs to job.Attempt.
func (s *Store) Complete(ctx context.Context, job *Job, resultRef string) error {
	if job == nil {
		return errors.New("job is nil")
	}
	now, timestamp := s.timestamp()
	res, err := s.exec(
		ctx,
		`UPDATE jobs
        SET state = ?, result_ref = ?, error_message = NULL, finished_at = ?, updated_at = ?, heartbeat_at = NULL
        WHERE id = ? AND state = ? AND attempt = ?`,
		StateCompleted,
		resultRef,
		timestamp,
		timestamp,
		job.ID,
		StateActive,
		job.Attempt,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if err := requireLease(res.RowsAffected()); err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	MarkCompleted(job, resultRef, now)
	return nil
}

// Fail records the FAILED transition with a human-readable message.
func (s *Store) Fail(ctx context.Context, job *Job, message string) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if message == "" {
		message = "unknown error"
	}
	now, timestamp := s.timestamp()
	res, err := s.exec(
		ctx,
		`UPDATE jobs
        SET state = ?, error_message = ?, result_ref = NULL, finished_at = ?, updated_at = ?, heartbeat_at = NULL
        WHERE id = ? AND state = ? AND attempt = ?`,
		StateFailed,
		message,
		timestamp,
		timestamp,
		job.ID,
		StateActive,
		job.Attempt,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if err := requireLease(res.RowsAffected()); err != nil {
		return fmt.Errorf("fail job %s: %w", job.ID, err)
	}
	MarkFailed(job, message, now)
	return nil
}

// Heartbeat renews the lease on an active job.
func (s *Store) Heartbeat(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	now, timestamp := s.timestamp()
	res, err := s.exec(
		ctx,
		`UPDATE jobs SET heartbeat_at = ?, updated_at = ? WHERE id = ? AND state = ? AND attempt = ?`,
		timestamp,
		timestamp,
		job.ID,
		StateActive,
		job.Attempt,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	if err := requireLease(res.RowsAffected()); err != nil {
		return fmt.Errorf("heartbeat job %s: %w", job.ID, err)
	}
	job.HeartbeatAt = &now
	job.UpdatedAt = now
	return nil
}

// ReclaimStale returns active jobs whose last heartbeat is older than cutoff to
// the queue so another worker can claim them.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	_, timestamp := s.timestamp()
	res, err := s.exec(
		ctx,
		`UPDATE jobs
        SET state = ?, started_at = NULL, heartbeat_at = NULL, updated_at = ?
        WHERE state = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)`,
		StateQueued,
		timestamp,
		StateActive,
		FormatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func requireLease(rows int64, err error) error {
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrLeaseLost
	}
	return nil
}
