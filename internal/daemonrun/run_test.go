package daemonrun_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"collage/internal/daemonrun"
	"collage/internal/testsupport"
)

func TestRunRequiresConfig(t *testing.T) {
	if err := daemonrun.Run(context.Background(), nil, daemonrun.Options{}); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- daemonrun.Run(ctx, cfg, daemonrun.Options{LogLevel: "error"})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(cfg.QueueDBPath()); err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("queue database was never created")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, "collage.log")); err != nil {
		t.Fatalf("expected log file: %v", err)
	}
}
