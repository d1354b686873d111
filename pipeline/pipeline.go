// Package pipeline runs per-item scrape tasks on a bounded worker pool and
// writes the enriched results to CSV and JSONL outputs.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrPoolClosed is returned when Submit is called after Wait or Cancel.
	ErrPoolClosed = errors.New("pipeline: pool closed")
)

// Task is one unit of work. A returned error cancels the pool context and
// is reported by Wait; per-item failures should be recorded by the task
// instead.
type Task func(ctx context.Context) error

// Pool runs tasks with at most limit in flight.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu     sync.Mutex // guards closed and serializes Go with Wait
	closed bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPool builds a pool bound to ctx.
func NewPool(ctx context.Context, limit int) *Pool {
	if limit <= 0 {
		limit = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	return &Pool{
		ctx:      gctx,
		cancel:   cancel,
		group:    group,
		shutdown: make(chan struct{}),
	}
}

// Submit schedules task, blocking while the pool is at its limit.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	if err := p.ctx.Err(); err != nil {
		return err
	}

	p.submitted.Add(1)
	p.group.Go(func() error {
		defer p.completed.Add(1)
		if err := p.ctx.Err(); err != nil {
			return nil
		}
		if err := task(p.ctx); err != nil {
			p.failed.Add(1)
			return err
		}
		return nil
	})
	return nil
}

// Wait closes the pool for submissions and blocks until every submitted
// task has returned.
func (p *Pool) Wait() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	err := p.group.Wait()
	p.cancel()
	p.signalShutdown()
	return err
}

// Cancel stops dispatch and cancels the context of in-flight tasks. Wait
// must still be called to join them.
func (p *Pool) Cancel() {
	p.cancel()
}

// Stats reports submitted, completed and failed task counts.
func (p *Pool) Stats() (submitted, completed, failed int64) {
	return p.submitted.Load(), p.completed.Load(), p.failed.Load()
}

// StartProgressReporting logs task counts every interval until Wait
// returns.
func (p *Pool) StartProgressReporting(interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				submitted, completed, failed := p.Stats()
				logger.Info("pool progress",
					slog.Int64("submitted", submitted),
					slog.Int64("completed", completed),
					slog.Int64("failed", failed),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pool) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}
