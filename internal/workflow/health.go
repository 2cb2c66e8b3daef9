package workflow

import (
	"context"
	"os"
	"time"
)

// Health summarizes whether the worker pool can make progress.
type Health struct {
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy() Health {
	return Health{Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(detail string) Health {
	return Health{Ready: false, Detail: detail}
}

// Health checks queue reachability and the artifact directory.
func (m *Manager) Health(ctx context.Context) Health {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := m.queue.Ping(pingCtx); err != nil {
		return Unhealthy("queue unreachable: " + err.Error())
	}
	info, err := os.Stat(m.artifacts.Root())
	if err != nil {
		return Unhealthy("artifact directory unavailable: " + err.Error())
	}
	if !info.IsDir() {
		return Unhealthy("artifact path is not a directory: " + m.artifacts.Root())
	}
	return Healthy()
}
