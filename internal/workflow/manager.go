package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"collage/internal/artifact"
	"collage/internal/config"
	"collage/internal/imaging"
	"collage/internal/logging"
	"collage/internal/queue"
)

// Queue is the subset of the task queue the worker pool drives.
type Queue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Complete(ctx context.Context, job *queue.Job, resultRef string) error
	Fail(ctx context.Context, job *queue.Job, message string) error
	Heartbeat(ctx context.Context, job *queue.Job) error
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context) (map[queue.State]int, error)
	Ping(ctx context.Context) error
}

// Manager coordinates the worker pool over a task queue.
type Manager struct {
	cfg        *config.Config
	queue      Queue
	artifacts  *artifact.Store
	processor  *Processor
	logger     *slog.Logger
	retryDelay time.Duration

	heartbeat *HeartbeatMonitor
	events    *eventHub

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastErr   error
	lastJob   *queue.Job
	busy      int
	processed int64
	failed    int64
}

// NewManager constructs a new workflow manager.
func NewManager(cfg *config.Config, q Queue, artifacts *artifact.Store, logger *slog.Logger) *Manager {
	logger = logging.NewComponentLogger(logger, "workflow-manager")
	return &Manager{
		cfg:        cfg,
		queue:      q,
		artifacts:  artifacts,
		processor:  NewProcessor(artifacts, logger, imaging.Decoder{MaxPixels: cfg.Workflow.MaxInputPixels}, cfg.Workflow.DecodeConcurrency),
		logger:     logger,
		retryDelay: cfg.ErrorRetryInterval(),
		heartbeat:  NewHeartbeatMonitor(q, logger, cfg.HeartbeatInterval(), cfg.HeartbeatTimeout()),
		events:     newEventHub(),
	}
}

// Subscribe returns a stream of job transitions and a function that ends the
// subscription. Events are dropped for subscribers that fall behind by more
// than buffer entries.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	return m.events.subscribe(buffer)
}
