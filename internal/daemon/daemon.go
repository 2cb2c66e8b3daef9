package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"collage/internal/config"
	"collage/internal/logging"
	"collage/internal/queueaccess"
	"collage/internal/workflow"
)

// Daemon coordinates the worker pool and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	queue    queueaccess.Queue
	workflow *workflow.Manager

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	QueueBackend string
	ArtifactDir  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, q queueaccess.Queue, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || q == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, queue, logger, and workflow manager")
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		queue:    q,
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the workflow manager.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another collage daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	events, unsubscribe := d.workflow.Subscribe(64)
	if err := d.workflow.Start(runCtx); err != nil {
		unsubscribe()
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.cancel = cancel

	d.wg.Add(1)
	go d.watchEvents(runCtx, events, unsubscribe)

	d.running.Store(true)
	d.logger.Info("collage daemon started",
		logging.String("lock", d.lockPath),
		logging.String("queue", queueaccess.Describe(d.cfg)),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// watchEvents records job transitions until the daemon stops.
func (d *Daemon) watchEvents(ctx context.Context, events <-chan workflow.Event, unsubscribe func()) {
	defer d.wg.Done()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			d.logger.Debug("job transition",
				logging.String(logging.FieldJobID, evt.JobID),
				logging.String("state", string(evt.State)),
				logging.String(logging.FieldWorker, evt.Worker),
				logging.Int("attempt", evt.Attempt),
			)
		}
	}
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("collage daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and closes the queue.
func (d *Daemon) Close() error {
	d.Stop()
	if d.queue != nil {
		return d.queue.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Status(ctx),
		QueueBackend: queueaccess.Describe(d.cfg),
		ArtifactDir:  d.cfg.Paths.ArtifactDir,
		LockFilePath: d.lockPath,
	}
}
