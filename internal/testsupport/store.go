package testsupport

import (
	"context"
	"testing"

	"collage/internal/config"
	"collage/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustEnqueue submits spec and fails the test on error.
func MustEnqueue(t testing.TB, store interface {
	Enqueue(context.Context, queue.Spec) (*queue.Job, error)
}, spec queue.Spec) *queue.Job {
	t.Helper()

	job, err := store.Enqueue(context.Background(), spec)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return job
}

// PathSpec builds a horizontal spec over the given input paths.
func PathSpec(paths ...string) queue.Spec {
	inputs := make([]queue.Input, 0, len(paths))
	for _, p := range paths {
		inputs = append(inputs, queue.Input{Path: p})
	}
	return queue.Spec{
		Inputs:      inputs,
		Layout:      queue.LayoutHorizontal,
		BorderWidth: 10,
		BorderColor: White,
	}
}
