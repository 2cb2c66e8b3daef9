package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"collage/internal/logging"
	"collage/internal/queue"
)

type leaseStore interface {
	Heartbeat(ctx context.Context, job *queue.Job) error
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// HeartbeatMonitor renews job leases and returns expired ones to the queue.
type HeartbeatMonitor struct {
	store             leaseStore
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store leaseStore, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:             store,
		logger:            logging.NewComponentLogger(logger, "workflow-heartbeat"),
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// ReclaimStale requeues active jobs whose heartbeat is older than the timeout.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context) (int64, error) {
	if h.heartbeatTimeout <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-h.heartbeatTimeout)
	reclaimed, err := h.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale jobs",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "lease_reclaimed"),
		)
	}
	return reclaimed, nil
}

// RunReclaimer calls ReclaimStale every heartbeat interval until ctx is done.
func (h *HeartbeatMonitor) RunReclaimer(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	interval := h.heartbeatInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := h.ReclaimStale(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(h.logger, "reclaim stale jobs failed; stuck jobs may remain", "heartbeat_reclaim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue backend access"),
				logging.String(logging.FieldImpact, "jobs of crashed workers stay active until the next pass"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// StartLoop renews the lease on job until ctx is cancelled. onLost is called
// once if the queue reports the lease no longer belongs to this worker.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, job *queue.Job, onLost func()) {
	defer wg.Done()
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger)
	// Heartbeats update a private copy so the worker's job record is never
	// written from two goroutines.
	lease := *job

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := h.store.Heartbeat(ctx, &lease)
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				logger.Debug("heartbeat update cancelled")
				return
			case errors.Is(err, queue.ErrLeaseLost):
				logging.WarnWithContext(logger, "job lease lost", "lease_lost",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "raise workflow.heartbeat_timeout if jobs run longer than it"),
					logging.String(logging.FieldImpact, "this worker's result will be discarded"),
				)
				if onLost != nil {
					onLost()
				}
				return
			default:
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
