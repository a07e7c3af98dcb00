package engine_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/franksops/filexfer/engine"
)

func TestWorkerPool_RunsConcurrently(t *testing.T) {
	ch := make(engine.JobChannel, 3)

	var running, peak atomic.Int32
	release := make(chan struct{})
	pool := engine.NewWorkerPool(context.Background(), ch, 3, func(ctx context.Context, job engine.TransferJob) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		running.Add(-1)
	})

	for i := 0; i < 3; i++ {
		ch <- engine.TransferJob{Index: i}
	}
	close(ch)

	deadline := time.Now().Add(2 * time.Second)
	for peak.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(release)
	pool.Wait()

	if p := peak.Load(); p != 3 {
		t.Errorf("Expected 3 jobs in flight at once, got %d", p)
	}
}

func TestWorkerPool_ZeroWorkersStillDrains(t *testing.T) {
	ch := make(engine.JobChannel, 2)
	var processed atomic.Int32

	pool := engine.NewWorkerPool(context.Background(), ch, 0, func(ctx context.Context, job engine.TransferJob) {
		processed.Add(1)
	})
	ch <- engine.TransferJob{Index: 0}
	ch <- engine.TransferJob{Index: 1}
	close(ch)
	pool.Wait()

	if n := processed.Load(); n != 2 {
		t.Errorf("Expected 2 processed jobs, got %d", n)
	}
}

func TestWorkerPool_WaitDrainsChannel(t *testing.T) {
	ch := make(engine.JobChannel, 100)

	var mu sync.Mutex
	seen := make(map[int]bool)

	handler := func(ctx context.Context, job engine.TransferJob) {
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen[job.Index] = true
		mu.Unlock()
	}

	pool := engine.NewWorkerPool(context.Background(), ch, 3, handler)

	for i := 0; i < 10; i++ {
		ch <- engine.TransferJob{Index: i}
	}
	close(ch)
	pool.Wait()

	if len(seen) != 10 {
		t.Errorf("Expected 10 processed jobs, got %d", len(seen))
	}
}

func TestWorkerPool_SingleWorkerKeepsOrder(t *testing.T) {
	ch := make(engine.JobChannel, 5)
	var order []int

	pool := engine.NewWorkerPool(context.Background(), ch, 1, func(ctx context.Context, job engine.TransferJob) {
		order = append(order, job.Index)
	})

	for i := 0; i < 5; i++ {
		ch <- engine.TransferJob{Index: i}
	}
	close(ch)
	pool.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("Expected order 0..4, got %v", order)
		}
	}
}

func TestWorkerPool_StopOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(engine.JobChannel, 10)

	var processed atomic.Int32
	cancel()
	pool := engine.NewWorkerPool(ctx, ch, 2, func(ctx context.Context, job engine.TransferJob) {
		processed.Add(1)
	})

	for i := 0; i < 10; i++ {
		ch <- engine.TransferJob{Index: i}
	}
	close(ch)
	pool.Wait()

	if n := processed.Load(); n != 0 {
		t.Errorf("Expected no jobs after cancellation, got %d", n)
	}
}
