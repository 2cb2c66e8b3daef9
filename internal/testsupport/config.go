package testsupport

import (
	"path/filepath"
	"testing"

	"collage/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Heartbeat and poll intervals are shortened so lease tests run quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.UploadDir = filepath.Join(base, "uploads")
	cfgVal.Paths.ArtifactDir = filepath.Join(base, "artifacts")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Queue.PollIntervalMs = 10
	cfgVal.Workflow.Workers = 2
	cfgVal.Workflow.HeartbeatInterval = 1
	cfgVal.Workflow.HeartbeatTimeout = 5
	cfgVal.Workflow.ErrorRetryInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithWorkers overrides the worker pool size.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.Workers = n
	}
}

// WithRedis switches the queue backend to Redis at the given address.
func WithRedis(addr string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.Backend = config.BackendRedis
		b.cfg.Queue.RedisURL = "redis://" + addr + "/0"
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
