// Package queueaccess opens the task queue backend named in configuration.
package queueaccess

import (
	"context"
	"fmt"
	"time"

	"collage/internal/config"
	"collage/internal/queue"
	"collage/internal/queue/redisq"
)

// Queue is the task queue contract shared by the SQLite and Redis backends.
type Queue interface {
	Enqueue(ctx context.Context, spec queue.Spec) (*queue.Job, error)
	Get(ctx context.Context, id string) (*queue.Job, error)
	List(ctx context.Context, states ...queue.State) ([]*queue.Job, error)
	Claim(ctx context.Context) (*queue.Job, error)
	Dequeue(ctx context.Context) (*queue.Job, error)
	Complete(ctx context.Context, job *queue.Job, resultRef string) error
	Fail(ctx context.Context, job *queue.Job, message string) error
	Heartbeat(ctx context.Context, job *queue.Job) error
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context) (map[queue.State]int, error)
	Remove(ctx context.Context, id string) (bool, error)
	ClearTerminal(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Queue = (*queue.Store)(nil)
	_ Queue = (*redisq.Store)(nil)
)

// Open returns the backend selected by cfg.Queue.Backend.
func Open(ctx context.Context, cfg *config.Config) (Queue, error) {
	switch cfg.Queue.Backend {
	case config.BackendSQLite, "":
		store, err := queue.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite queue: %w", err)
		}
		return store, nil
	case config.BackendRedis:
		store, err := redisq.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open redis queue: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported queue backend %q", cfg.Queue.Backend)
	}
}

// Describe names the backend location for logs and CLI output.
func Describe(cfg *config.Config) string {
	if cfg.Queue.Backend == config.BackendRedis {
		return "redis " + redactURL(cfg.Queue.RedisURL)
	}
	return "sqlite " + cfg.QueueDBPath()
}
