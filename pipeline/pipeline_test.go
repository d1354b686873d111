package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := NewPool(context.Background(), 3)

	var mu sync.Mutex
	seen := make(map[int]bool)
	for i := 0; i < 20; i++ {
		if err := p.Submit(func(ctx context.Context) error {
			mu.Lock()
			seen[i] = true
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	if err := p.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(seen) != 20 {
		t.Fatalf("ran %d tasks, want 20", len(seen))
	}
	submitted, completed, failed := p.Stats()
	if submitted != 20 || completed != 20 || failed != 0 {
		t.Fatalf("stats = %d/%d/%d, want 20/20/0", submitted, completed, failed)
	}
}

func TestPoolRespectsLimit(t *testing.T) {
	const limit = 2
	p := NewPool(context.Background(), limit)

	var inFlight, peak atomic.Int64
	for i := 0; i < 10; i++ {
		if err := p.Submit(func(ctx context.Context) error {
			n := inFlight.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := peak.Load(); got > limit {
		t.Fatalf("peak in flight = %d, want <= %d", got, limit)
	}
}

func TestPoolSubmitAfterWait(t *testing.T) {
	p := NewPool(context.Background(), 1)
	if err := p.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	err := p.Submit(func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("submit after wait = %v, want ErrPoolClosed", err)
	}
}

func TestPoolTaskErrorCancelsSiblings(t *testing.T) {
	p := NewPool(context.Background(), 2)
	boom := errors.New("boom")

	cancelled := make(chan struct{})
	if err := p.Submit(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			close(cancelled)
			return nil
		case <-time.After(2 * time.Second):
			return nil
		}
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := p.Submit(func(ctx context.Context) error { return boom }); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := p.Wait(); !errors.Is(err, boom) {
		t.Fatalf("wait = %v, want boom", err)
	}
	select {
	case <-cancelled:
	default:
		t.Fatalf("sibling task was not cancelled")
	}
	if _, _, failed := p.Stats(); failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
}

func TestPoolCancelStopsDispatch(t *testing.T) {
	p := NewPool(context.Background(), 1)

	started := make(chan struct{})
	if err := p.Submit(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started
	p.Cancel()

	if err := p.Submit(func(ctx context.Context) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("submit after cancel = %v, want context.Canceled", err)
	}

	done := make(chan error, 1)
	go func() { done <- p.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("wait: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("wait did not return after cancel")
	}
}

func TestPoolParentContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPool(ctx, 1)
	if err := p.Submit(func(ctx context.Context) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("submit = %v, want context.Canceled", err)
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}
