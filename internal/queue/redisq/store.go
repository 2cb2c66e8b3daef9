package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"collage/internal/config"
	"collage/internal/queue"
)

// Store is a Redis-backed task queue.
type Store struct {
	rdb          *redis.Client
	prefix       string
	pollInterval time.Duration
	now          func() time.Time
}

// Open connects to the Redis server named by cfg.Queue.RedisURL.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	opts, err := redis.ParseURL(cfg.Queue.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	store := New(redis.NewClient(opts), cfg.Queue.RedisPrefix, cfg.PollInterval())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing client. The prefix namespaces every key.
func New(rdb *redis.Client, prefix string, pollInterval time.Duration) *Store {
	return &Store{
		rdb:          rdb,
		prefix:       prefix,
		pollInterval: pollInterval,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Close releases the client connection pool.
func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Ping verifies the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (s *Store) jobKey(id string) string { return s.prefix + "job:" + id }
func (s *Store) queuedKey() string { return s.prefix + "queued" }
func (s *Store) activeKey() string { return s.prefix + "active" }
func (s *Store) indexKey() string { return s.prefix + "jobs" }
func (s *Store) seqKey() string { return s.prefix + "seq" }

// Enqueue validates spec, assigns a fresh identifier, and stores the job as QUEUED.
func (s *Store) Enqueue(ctx context.Context, spec queue.Spec) (*queue.Job, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	job := queue.NewJob(uuid.NewString(), spec, s.now())
	fields, err := encodeJob(job)
	if err != nil {
		return nil, err
	}

	args := append([]any{job.ID}, fields...)
	keys := []string{s.jobKey(job.ID), s.queuedKey(), s.indexKey(), s.seqKey()}
	if err := enqueueScript.Run(ctx, s.rdb, keys, args...).Err(); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// Get fetches a job by identifier. Unknown identifiers return nil without error.
func (s *Store) Get(ctx context.Context, id string) (*queue.Job, error) {
	values, err := s.rdb.HGetAll(ctx, s.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return decodeJob(values)
}

// List returns jobs in submission order, optionally filtered by state.
func (s *Store) List(ctx context.Context, states ...queue.State) ([]*queue.Job, error) {
	ids, err := s.rdb.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	if _, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.jobKey(id))
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	wanted := make(map[queue.State]struct{}, len(states))
	for _, state := range states {
		wanted[state] = struct{}{}
	}
	jobs := make([]*queue.Job, 0, len(ids))
	for _, cmd := range cmds {
		values := cmd.Val()
		if len(values) == 0 {
			continue
		}
		job, err := decodeJob(values)
		if err != nil {
			return nil, err
		}
		if len(wanted) > 0 {
			if _, ok := wanted[job.State]; !ok {
				continue
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Claim atomically moves the oldest QUEUED job to ACTIVE and returns it.
// It returns nil without error when nothing is queued.
func (s *Store) Claim(ctx context.Context) (*queue.Job, error) {
	now := s.now()
	res, err := claimScript.Run(ctx, s.rdb,
		[]string{s.queuedKey(), s.activeKey()},
		s.prefix, queue.FormatTime(now), leaseScore(now),
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	values := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		values[res[i]] = res[i+1]
	}
	return decodeJob(values)
}

// Dequeue blocks until a job can be claimed or ctx is done.
func (s *Store) Dequeue(ctx context.Context) (*queue.Job, error) {
	return queue.PollClaim(ctx, s.pollInterval, s.Claim)
}

// Complete records the COMPLETED transition for a job the caller holds.
func (s *Store) Complete(ctx context.Context, job *queue.Job, resultRef string) error {
	if job == nil {
		return errors.New("job is nil")
	}
	now := s.now()
	if err := s.finish(ctx, job, queue.StateCompleted, resultRef, "", now); err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	queue.MarkCompleted(job, resultRef, now)
	return nil
}

// Fail records the FAILED transition with a human-readable message.
func (s *Store) Fail(ctx context.Context, job *queue.Job, message string) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if message == "" {
		message = "unknown error"
	}
	now := s.now()
	if err := s.finish(ctx, job, queue.StateFailed, "", message, now); err != nil {
		return fmt.Errorf("fail job %s: %w", job.ID, err)
	}
	queue.MarkFailed(job, message, now)
	return nil
}

func (s *Store) finish(ctx context.Context, job *queue.Job, state queue.State, resultRef, message string, now time.Time) error {
	ok, err := finishScript.Run(ctx, s.rdb,
		[]string{s.jobKey(job.ID), s.activeKey()},
		job.ID, job.Attempt, string(state), resultRef, message, queue.FormatTime(now),
	).Int64()
	if err != nil {
		return err
	}
	if ok == 0 {
		return queue.ErrLeaseLost
	}
	return nil
}

// Heartbeat renews the lease on an active job.
func (s *Store) Heartbeat(ctx context.Context, job *queue.Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	now := s.now()
	ok, err := heartbeatScript.Run(ctx, s.rdb,
		[]string{s.jobKey(job.ID), s.activeKey()},
		job.ID, job.Attempt, queue.FormatTime(now), leaseScore(now),
	).Int64()
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	if ok == 0 {
		return fmt.Errorf("heartbeat job %s: %w", job.ID, queue.ErrLeaseLost)
	}
	job.HeartbeatAt = &now
	job.UpdatedAt = now
	return nil
}

// ReclaimStale returns active jobs whose last heartbeat is older than cutoff to
// the head of the queue.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	count, err := reclaimScript.Run(ctx, s.rdb,
		[]string{s.activeKey(), s.queuedKey()},
		s.prefix, leaseScore(cutoff), queue.FormatTime(s.now()),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return count, nil
}

// Stats returns a count of jobs grouped by state.
func (s *Store) Stats(ctx context.Context) (map[queue.State]int, error) {
	ids, err := s.rdb.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	cmds := make([]*redis.StringCmd, len(ids))
	if _, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGet(ctx, s.jobKey(id), "state")
		}
		return nil
	}); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	stats := make(map[queue.State]int)
	for _, cmd := range cmds {
		if state := cmd.Val(); state != "" {
			stats[queue.State(state)]++
		}
	}
	return stats, nil
}

// Remove deletes a job that no worker holds.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := removeScript.Run(ctx, s.rdb,
		[]string{s.jobKey(id), s.queuedKey(), s.indexKey()}, id,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("remove job: %w", err)
	}
	switch res {
	case -1:
		return false, queue.ErrJobActive
	case 0:
		return false, nil
	default:
		return true, nil
	}
}

// ClearTerminal deletes every COMPLETED and FAILED job.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	count, err := clearTerminalScript.Run(ctx, s.rdb, []string{s.indexKey()}, s.prefix).Int64()
	if err != nil {
		return 0, fmt.Errorf("clear terminal jobs: %w", err)
	}
	return count, nil
}

func leaseScore(t time.Time) int64 {
	return t.UnixMilli()
}

func encodeJob(job *queue.Job) ([]any, error) {
	inputs, err := json.Marshal(job.Inputs)
	if err != nil {
		return nil, fmt.Errorf("marshal inputs: %w", err)
	}
	cleanup := "0"
	if job.CleanupInputs {
		cleanup = "1"
	}
	return []any{
		"id", job.ID,
		"inputs", string(inputs),
		"layout", string(job.Layout),
		"border_width", job.BorderWidth,
		"border_color", queue.EncodeColor(job.BorderColor),
		"cleanup_inputs", cleanup,
		"state", string(job.State),
		"attempt", job.Attempt,
		"result_ref", job.ResultRef,
		"error", job.Error,
		"created_at", queue.FormatTime(job.CreatedAt),
		"updated_at", queue.FormatTime(job.UpdatedAt),
		"started_at", "",
		"finished_at", "",
		"heartbeat_at", "",
	}, nil
}

func decodeJob(values map[string]string) (*queue.Job, error) {
	id := values["id"]
	job := &queue.Job{
		ID:            id,
		Layout:        queue.Layout(values["layout"]),
		State:         queue.State(values["state"]),
		ResultRef:     values["result_ref"],
		Error:         values["error"],
		CleanupInputs: values["cleanup_inputs"] == "1",
	}
	var err error
	if job.BorderWidth, err = strconv.Atoi(values["border_width"]); err != nil {
		return nil, fmt.Errorf("job %s: border width: %w", id, err)
	}
	if job.Attempt, err = strconv.Atoi(values["attempt"]); err != nil {
		return nil, fmt.Errorf("job %s: attempt: %w", id, err)
	}
	if job.BorderColor, err = queue.DecodeColor(values["border_color"]); err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(values["inputs"]), &job.Inputs); err != nil {
		return nil, fmt.Errorf("decode inputs for job %s: %w", id, err)
	}
	if created, err := queue.ParseTime(values["created_at"]); err == nil {
		job.CreatedAt = created
	}
	if updated, err := queue.ParseTime(values["updated_at"]); err == nil {
		job.UpdatedAt = updated
	}
	job.StartedAt = optionalTime(values["started_at"])
	job.FinishedAt = optionalTime(values["finished_at"])
	job.HeartbeatAt = optionalTime(values["heartbeat_at"])
	return job, nil
}

func optionalTime(value string) *time.Time {
	parsed, err := queue.ParseTime(value)
	if err != nil {
		return nil
	}
	return &parsed
}
