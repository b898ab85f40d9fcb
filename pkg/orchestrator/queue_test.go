package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// TestWorkQueueRunsTasks tests task execution and drain on close
func TestWorkQueueRunsTasks(t *testing.T) {
	q := newWorkQueue(2, 8, zerolog.Nop())

	var executed atomic.Int32
	for i := 0; i < 5; i++ {
		if err := q.Submit("task", func(ctx context.Context) {
			executed.Add(1)
		}); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if got := executed.Load(); got != 5 {
		t.Errorf("expected 5 executed tasks, got %d", got)
	}
}

// TestWorkQueueRejectsAfterClose tests the closed-queue guard
func TestWorkQueueRejectsAfterClose(t *testing.T) {
	q := newWorkQueue(1, 4, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if err := q.Submit("late", func(ctx context.Context) {}); err == nil {
		t.Error("expected submit after close to fail")
	}

	// Closing twice is a no-op
	if err := q.Close(ctx); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

// TestWorkQueueRejectsWhenFull tests backpressure without blocking
func TestWorkQueueRejectsWhenFull(t *testing.T) {
	q := newWorkQueue(1, 1, zerolog.Nop())

	release := make(chan struct{})
	started := make(chan struct{})

	// Occupy the single worker
	if err := q.Submit("blocker", func(ctx context.Context) {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	<-started

	// Fill the queue
	if err := q.Submit("queued", func(ctx context.Context) {}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// The next submission must fail fast instead of blocking
	if err := q.Submit("overflow", func(ctx context.Context) {}); err == nil {
		t.Error("expected submit on full queue to fail")
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

// TestKeyLockSerializesPerKey tests mutual exclusion per stack key
func TestKeyLockSerializesPerKey(t *testing.T) {
	locks := newKeyLock()

	var mu sync.Mutex
	inCritical := map[string]int{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		key := "acme-dev"
		if i%2 == 0 {
			key = "acme-prod"
		}
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			locks.Lock(key)
			defer locks.Unlock(key)

			mu.Lock()
			inCritical[key]++
			if inCritical[key] > 1 {
				t.Errorf("two holders inside critical section for %s", key)
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical[key]--
			mu.Unlock()
		}(key)
	}
	wg.Wait()
}
