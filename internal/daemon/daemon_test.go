package daemon_test

import (
	"context"
	"testing"

	"collage/internal/artifact"
	"collage/internal/config"
	"collage/internal/daemon"
	"collage/internal/logging"
	"collage/internal/testsupport"
	"collage/internal/workflow"
)

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, artifact.NewStore(cfg.Paths.ArtifactDir), logger)
	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running || !status.Workflow.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("expected lock %s, got %s", cfg.LockPath(), status.LockFilePath)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonLockExcludesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	second := newDaemon(t, cfg)
	ctx := context.Background()

	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected second daemon on the same state dir to fail")
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := daemon.New(nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
