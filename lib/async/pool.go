// Package async provides a bounded worker pool for off-path work such as
// webhook delivery and PnL correlation.
package async

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/quantrail/sentinel/errs"
)

// Task is a unit of work executed by a pool worker.
type Task func(context.Context) error

// Pool executes tasks on a fixed number of workers and applies backpressure
// when the queue is full.
type Pool struct {
	ctx       context.Context
	cancel    context.CancelFunc
	queue     chan queued
	wg        sync.WaitGroup
	closeOnce sync.Once
	logger    *log.Logger

	// mu orders Submit's send against Close's channel close, so a
	// concurrent Submit can never send on a closed channel.
	mu     sync.RWMutex
	closed bool
}

type queued struct {
	ctx  context.Context
	task Task
}

// NewPool creates a pool with the given worker count and queue depth. A nil
// logger silences task failures.
func NewPool(workers, depth int, logger *log.Logger) (*Pool, error) {
	if workers <= 0 {
		return nil, errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("workers must be >0"))
	}
	if depth < 0 {
		depth = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		ctx:    ctx,
		cancel: cancel,
		queue:  make(chan queued, depth),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p, nil
}

// Submit schedules the task, failing fast when the pool is closed or
// saturated.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if task == nil {
		return errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("task must not be nil"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool closed"))
	}
	p.wg.Add(1)
	select {
	case <-p.ctx.Done():
		p.wg.Done()
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool closed"))
	case <-ctx.Done():
		p.wg.Done()
		return fmt.Errorf("submit context: %w", ctx.Err())
	case p.queue <- queued{ctx: ctx, task: task}:
		return nil
	default:
		p.wg.Done()
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("pool at capacity"))
	}
}

// Close stops accepting new tasks and cancels workers.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.cancel()
		close(p.queue)
		p.mu.Unlock()
	})
}

// Shutdown waits for in-flight tasks to finish or the context to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.Close()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (p *Pool) worker() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case item, ok := <-p.queue:
			if !ok {
				return
			}
			p.run(item)
			p.wg.Done()
		}
	}
}

func (p *Pool) run(item queued) {
	defer func() {
		if r := recover(); r != nil && p.logger != nil {
			p.logger.Printf("async task panic: %v", r)
		}
	}()
	ctx := item.ctx
	if ctx == nil {
		ctx = p.ctx
	}
	if err := item.task(ctx); err != nil && p.logger != nil {
		p.logger.Printf("async task: %v", err)
	}
}
