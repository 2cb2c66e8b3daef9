package redisq_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"collage/internal/queue"
	"collage/internal/queue/redisq"
	"collage/internal/services"
	"collage/internal/testsupport"
)

func newStore(t *testing.T) (*redisq.Store, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	store := redisq.New(redis.NewClient(&redis.Options{Addr: server.Addr()}), "test:", 10*time.Millisecond)
	t.Cleanup(func() { _ = store.Close() })
	return store, server
}

func TestOpenUsesConfiguredURL(t *testing.T) {
	server := miniredis.RunT(t)
	cfg := testsupport.NewConfig(t, testsupport.WithRedis(server.Addr()))

	store, err := redisq.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	job := testsupport.MustEnqueue(t, store, testsupport.PathSpec("a.png"))
	if !server.Exists(cfg.Queue.RedisPrefix + "job:" + job.ID) {
		t.Fatalf("expected job hash under prefix %q", cfg.Queue.RedisPrefix)
	}
}

func TestOpenFailsWhenServerUnreachable(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRedis("127.0.0.1:1"))
	if _, err := redisq.Open(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unreachable server")
	}
}

func TestEnqueueGetRoundTrip(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	spec := testsupport.PathSpec("a.png", "b.png")
	spec.CleanupInputs = true
	job := testsupport.MustEnqueue(t, store, spec)

	fetched, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched == nil || fetched.State != queue.StateQueued {
		t.Fatalf("unexpected job: %#v", fetched)
	}
	if len(fetched.Inputs) != 2 || fetched.Inputs[1].Path != "b.png" {
		t.Fatalf("unexpected inputs: %#v", fetched.Inputs)
	}
	if fetched.BorderColor != testsupport.White || !fetched.CleanupInputs || fetched.BorderWidth != 10 {
		t.Fatalf("unexpected fields: %#v", fetched)
	}
	if fetched.StartedAt != nil || fetched.FinishedAt != nil {
		t.Fatal("expected unset lifecycle timestamps")
	}

	missing, err := store.Get(ctx, "unknown")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown id, got %#v %v", missing, err)
	}
}

func TestEnqueueRejectsEmptyInputs(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.Enqueue(context.Background(), queue.Spec{Layout: queue.LayoutHorizontal})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClaimFIFOAndTerminalTransitions(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	first := testsupport.MustEnqueue(t, store, testsupport.PathSpec("1.png"))
	second := testsupport.MustEnqueue(t, store, testsupport.PathSpec("2.png"))

	a, err := store.Claim(ctx)
	if err != nil || a == nil || a.ID != first.ID {
		t.Fatalf("expected first job, got %#v %v", a, err)
	}
	if a.State != queue.StateActive || a.Attempt != 1 || a.HeartbeatAt == nil {
		t.Fatalf("unexpected claimed job: %#v", a)
	}
	b, err := store.Claim(ctx)
	if err != nil || b == nil || b.ID != second.ID {
		t.Fatalf("expected second job, got %#v %v", b, err)
	}
	none, err := store.Claim(ctx)
	if err != nil || none != nil {
		t.Fatalf("expected empty queue, got %#v %v", none, err)
	}

	if err := store.Complete(ctx, a, a.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if err := store.Fail(ctx, b, "decode error"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if err := store.Complete(ctx, b, b.ID); !errors.Is(err, queue.ErrLeaseLost) {
		t.Fatalf("expected lease lost, got %v", err)
	}

	done, _ := store.Get(ctx, a.ID)
	if done.State != queue.StateCompleted || done.ResultRef != a.ID || done.FinishedAt == nil {
		t.Fatalf("unexpected completed job: %#v", done)
	}
	failed, _ := store.Get(ctx, b.ID)
	if failed.State != queue.StateFailed || failed.Error != "decode error" || failed.ResultRef != "" {
		t.Fatalf("unexpected failed job: %#v", failed)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[queue.StateCompleted] != 1 || stats[queue.StateFailed] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestConcurrentClaimsDeliverEachJobOnce(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	const jobs = 25
	for i := 0; i < jobs; i++ {
		testsupport.MustEnqueue(t, store, testsupport.PathSpec("x.png"))
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := store.Claim(ctx)
				if err != nil {
					t.Errorf("Claim failed: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != jobs {
		t.Fatalf("expected %d jobs, got %d", jobs, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("job %s delivered %d times", id, n)
		}
	}
}

func TestReclaimStaleRequeuesAtHead(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	stale := testsupport.MustEnqueue(t, store, testsupport.PathSpec("a.png"))
	waiting := testsupport.MustEnqueue(t, store, testsupport.PathSpec("b.png"))

	claimed, err := store.Claim(ctx)
	if err != nil || claimed.ID != stale.ID {
		t.Fatalf("Claim failed: %#v %v", claimed, err)
	}

	n, err := store.ReclaimStale(ctx, time.Now().Add(-time.Minute))
	if err != nil || n != 0 {
		t.Fatalf("expected live lease to survive, got %d %v", n, err)
	}
	n, err = store.ReclaimStale(ctx, time.Now().Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("expected one reclaimed job, got %d %v", n, err)
	}

	again, err := store.Claim(ctx)
	if err != nil || again == nil || again.ID != stale.ID {
		t.Fatalf("expected reclaimed job ahead of %s, got %#v %v", waiting.ID, again, err)
	}
	if again.Attempt != 2 {
		t.Fatalf("expected attempt 2, got %d", again.Attempt)
	}
	if err := store.Heartbeat(ctx, claimed); !errors.Is(err, queue.ErrLeaseLost) {
		t.Fatalf("expected stale heartbeat to fail, got %v", err)
	}
	if err := store.Fail(ctx, claimed, "late"); !errors.Is(err, queue.ErrLeaseLost) {
		t.Fatalf("expected stale fail to be rejected, got %v", err)
	}
	if err := store.Heartbeat(ctx, again); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
}

func TestDequeueWaitsForWork(t *testing.T) {
	store, _ := newStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *queue.Job, 1)
	go func() {
		job, err := store.Dequeue(ctx)
		if err != nil {
			t.Errorf("Dequeue failed: %v", err)
		}
		got <- job
	}()
	time.Sleep(30 * time.Millisecond)
	want := testsupport.MustEnqueue(t, store, testsupport.PathSpec("a.png"))

	select {
	case job := <-got:
		if job == nil || job.ID != want.ID {
			t.Fatalf("unexpected job %#v", job)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for Dequeue")
	}
}

func TestListRemoveAndClear(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	queued := testsupport.MustEnqueue(t, store, testsupport.PathSpec("a.png"))
	testsupport.MustEnqueue(t, store, testsupport.PathSpec("b.png"))
	testsupport.MustEnqueue(t, store, testsupport.PathSpec("c.png"))

	// Claim order is FIFO, so the first job becomes active and the second completes.
	active, _ := store.Claim(ctx)
	done, _ := store.Claim(ctx)
	if err := store.Complete(ctx, done, done.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if active.ID != queued.ID {
		t.Fatalf("unexpected claim order")
	}

	all, err := store.List(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 jobs, got %d %v", len(all), err)
	}
	if all[0].ID != queued.ID {
		t.Fatalf("expected submission order, got %s first", all[0].ID)
	}
	onlyActive, err := store.List(ctx, queue.StateActive)
	if err != nil || len(onlyActive) != 1 || onlyActive[0].ID != active.ID {
		t.Fatalf("unexpected active list: %#v %v", onlyActive, err)
	}

	if _, err := store.Remove(ctx, active.ID); !errors.Is(err, queue.ErrJobActive) {
		t.Fatalf("expected ErrJobActive, got %v", err)
	}
	if removed, err := store.Remove(ctx, "nope"); err != nil || removed {
		t.Fatalf("expected no-op, got %v %v", removed, err)
	}

	cleared, err := store.ClearTerminal(ctx)
	if err != nil || cleared != 1 {
		t.Fatalf("expected 1 cleared, got %d %v", cleared, err)
	}
	remaining, _ := store.List(ctx)
	if len(remaining) != 2 {
		t.Fatalf("expected 2 remaining, got %d", len(remaining))
	}

	last, _ := store.Claim(ctx)
	if last == nil {
		t.Fatal("expected the remaining queued job to be claimable")
	}
	if removed, err := store.Remove(ctx, active.ID); err == nil && removed {
		t.Fatal("active job must not be removable")
	}
}
