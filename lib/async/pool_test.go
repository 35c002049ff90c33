package async

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestPoolExecutesTasks(t *testing.T) {
	pool, err := NewPool(2, 8, discardLogger())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	var count atomic.Int32
	done := make(chan struct{}, 4)
	for i := 0; i < 4; i++ {
		err := pool.Submit(context.Background(), func(context.Context) error {
			count.Add(1)
			done <- struct{}{}
			return nil
		})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("task never ran")
		}
	}
	if count.Load() != 4 {
		t.Errorf("executed = %d, want 4", count.Load())
	}
}

func TestPoolRejectsAfterClose(t *testing.T) {
	pool, err := NewPool(1, 1, discardLogger())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	pool.Close()

	err = pool.Submit(context.Background(), func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected error after Close")
	}
}

func TestPoolSubmitDuringCloseDoesNotPanic(t *testing.T) {
	for i := 0; i < 50; i++ {
		pool, err := NewPool(2, 4, discardLogger())
		if err != nil {
			t.Fatalf("NewPool: %v", err)
		}

		start := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			<-start
			for j := 0; j < 20; j++ {
				// Rejection is fine once the pool is closing; a panic
				// from sending on the closed queue is not.
				_ = pool.Submit(context.Background(), func(context.Context) error { return nil })
			}
		}()

		close(start)
		pool.Close()
		<-done
	}
}

func TestPoolRejectsWhenSaturated(t *testing.T) {
	pool, err := NewPool(1, 0, discardLogger())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	block := make(chan struct{})
	defer close(block)

	// Occupy the single worker.
	first := pool.Submit(context.Background(), func(context.Context) error {
		<-block
		return nil
	})
	if first != nil {
		t.Fatalf("first submit: %v", first)
	}
	// Give the worker time to pick the task up.
	time.Sleep(20 * time.Millisecond)

	var rejected bool
	for i := 0; i < 5; i++ {
		if err := pool.Submit(context.Background(), func(context.Context) error { return nil }); err != nil {
			rejected = true
			break
		}
	}
	if !rejected {
		t.Error("expected fail-fast rejection when saturated")
	}
}

func TestPoolRejectsNilTask(t *testing.T) {
	pool, err := NewPool(1, 1, discardLogger())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	if err := pool.Submit(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil task")
	}
}

func TestPoolRejectsInvalidWorkers(t *testing.T) {
	if _, err := NewPool(0, 1, discardLogger()); err == nil {
		t.Fatal("expected error for zero workers")
	}
}

func TestPoolSurvivesPanicAndErrors(t *testing.T) {
	pool, err := NewPool(1, 4, discardLogger())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	_ = pool.Submit(context.Background(), func(context.Context) error {
		panic("boom")
	})
	_ = pool.Submit(context.Background(), func(context.Context) error {
		return errors.New("task failed")
	})

	done := make(chan struct{})
	if err := pool.Submit(context.Background(), func(context.Context) error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("Submit after panic: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
}

func TestPoolShutdownWaitsForTasks(t *testing.T) {
	pool, err := NewPool(1, 4, discardLogger())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	var finished atomic.Bool
	if err := pool.Submit(context.Background(), func(context.Context) error {
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return nil
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// Let the worker dequeue before the queue closes.
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !finished.Load() {
		t.Error("shutdown returned before in-flight task finished")
	}
}
