package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"collage/internal/logging"
	"collage/internal/queue"
	"collage/internal/services"
)

// Start begins background processing with the configured number of workers.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	workers := m.cfg.Workflow.Workers
	if workers <= 0 {
		m.mu.Unlock()
		return errors.New("workflow.workers must be positive")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(workers + 1)
	m.mu.Unlock()

	go m.heartbeat.RunReclaimer(runCtx, &m.wg)
	for i := 0; i < workers; i++ {
		go m.runWorker(runCtx, fmt.Sprintf("worker-%d", i+1))
	}

	m.logger.Info("workflow started",
		logging.Int("workers", workers),
		logging.Duration("heartbeat_interval", m.cfg.HeartbeatInterval()),
		logging.Duration("heartbeat_timeout", m.cfg.HeartbeatTimeout()),
		logging.String(logging.FieldEventType, "workflow_started"),
	)
	return nil
}

// Stop terminates background processing and waits for workers to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stopped"))
}

func (m *Manager) runWorker(ctx context.Context, name string) {
	defer m.wg.Done()
	workerCtx := services.WithWorker(ctx, name)
	logger := logging.WithContext(workerCtx, m.logger)

	for {
		job, err := m.queue.Dequeue(workerCtx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleDequeueError(ctx, logger, err)
			continue
		}
		if job == nil {
			continue
		}
		m.processJob(workerCtx, name, job)
	}
}

func (m *Manager) handleDequeueError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logging.ErrorWithContext(logger, "failed to fetch next job", "queue_fetch_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check queue backend access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(m.retryDelay):
	}
}

func (m *Manager) processJob(ctx context.Context, worker string, job *queue.Job) {
	jobCtx := services.WithJobID(ctx, job.ID)
	// Each claim of a job gets its own correlation id.
	jobCtx = services.WithRequestID(jobCtx, fmt.Sprintf("%s/%d", job.ID, job.Attempt))
	logger := logging.WithContext(jobCtx, m.logger)
	m.setBusy(1)
	defer m.setBusy(-1)

	logger.Info("job active",
		logging.Int("inputs", len(job.Inputs)),
		logging.String("layout", string(job.Layout)),
		logging.Int("attempt", job.Attempt),
		logging.String(logging.FieldEventType, "job_active"),
	)
	m.publish(worker, job, queue.StateActive, "", "")

	runCtx, cancelRun := context.WithCancel(jobCtx)
	var hb sync.WaitGroup
	hb.Add(1)
	go m.heartbeat.StartLoop(runCtx, &hb, job, cancelRun)
	outcome := m.processor.Run(runCtx, job)
	cancelRun()
	hb.Wait()

	if outcome.State == queue.StateFailed && interrupted(runCtx, outcome.Err) {
		if ctx.Err() != nil {
			logger.Info("job interrupted by shutdown; lease will expire and requeue it",
				logging.String(logging.FieldEventType, "job_interrupted"))
		}
		return
	}

	m.recordOutcome(jobCtx, logger, worker, job, outcome)
}

// persistTimeout bounds a terminal write that was started before shutdown.
const persistTimeout = 5 * time.Second

func (m *Manager) recordOutcome(ctx context.Context, logger *slog.Logger, worker string, job *queue.Job, outcome Outcome) {
	// The rendered result is recorded even when the worker is stopping.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	var err error
	if outcome.State == queue.StateCompleted {
		err = m.queue.Complete(persistCtx, job, outcome.ResultRef)
	} else {
		err = m.queue.Fail(persistCtx, job, outcome.Message())
	}
	if err != nil {
		if errors.Is(err, queue.ErrLeaseLost) {
			logging.WarnWithContext(logger, "job result discarded; lease moved to another worker", "lease_lost",
				logging.Error(err),
				logging.String(logging.FieldImpact, "another attempt owns this job"),
			)
			return
		}
		m.setLastError(err)
		logging.ErrorWithContext(logger, "failed to persist job outcome", "job_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue backend access; the lease will expire and requeue the job"),
		)
		return
	}

	m.setLastJob(job)
	if outcome.State == queue.StateCompleted {
		// A later attempt may still need the inputs until COMPLETED is stored.
		m.processor.ReleaseInputs(ctx, job)
		m.countOutcome(false)
		logger.Info("job completed",
			logging.String("result_ref", outcome.ResultRef),
			logging.String("artifact", outcome.ArtifactPath),
			logging.Duration("duration", outcome.Duration),
			logging.String(logging.FieldEventType, "job_completed"),
		)
		m.publish(worker, job, queue.StateCompleted, outcome.ResultRef, "")
		return
	}

	m.countOutcome(true)
	logging.ErrorWithContext(logger, "job failed", "job_failed",
		logging.Error(outcome.Err),
		logging.String("error_kind", services.Kind(outcome.Err)),
		logging.Duration("duration", outcome.Duration),
		logging.String(logging.FieldErrorHint, "inspect the job inputs"),
	)
	m.publish(worker, job, queue.StateFailed, "", outcome.Message())
}

func (m *Manager) publish(worker string, job *queue.Job, state queue.State, resultRef, message string) {
	m.events.publish(Event{
		JobID:     job.ID,
		State:     state,
		ResultRef: resultRef,
		Error:     message,
		Worker:    worker,
		Attempt:   job.Attempt,
		At:        time.Now().UTC(),
	})
}
