package workflow

import (
	"context"

	"collage/internal/logging"
	"collage/internal/queue"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running       bool
	Workers       int
	Busy          int
	Processed     int64
	Failed        int64
	DroppedEvents int64
	LastError     string
	LastJob       *queue.Job
	QueueStats    map[queue.State]int
	Health        Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:   m.running,
		Workers:   m.cfg.Workflow.Workers,
		Busy:      m.busy,
		Processed: m.processed,
		Failed:    m.failed,
	}
	lastErr := m.lastErr
	lastJob := m.lastJob
	m.mu.RUnlock()

	stats, err := m.queue.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats
	summary.Health = m.Health(ctx)
	summary.DroppedEvents = m.events.droppedCount()

	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastJob != nil {
		snapshot := *lastJob
		summary.LastJob = &snapshot
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	m.mu.Lock()
	if job != nil {
		snapshot := *job
		m.lastJob = &snapshot
	} else {
		m.lastJob = nil
	}
	m.mu.Unlock()
}

func (m *Manager) setBusy(delta int) {
	m.mu.Lock()
	m.busy += delta
	m.mu.Unlock()
}

func (m *Manager) countOutcome(failed bool) {
	m.mu.Lock()
	if failed {
		m.failed++
	} else {
		m.processed++
	}
	m.mu.Unlock()
}
