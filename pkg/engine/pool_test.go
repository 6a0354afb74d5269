package engine

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsEverything(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var count int64
	for i := 0; i < 100; i++ {
		if err := p.Enqueue(func() { atomic.AddInt64(&count, 1) }); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	p.WaitAll()
	if got := atomic.LoadInt64(&count); got != 100 {
		t.Fatalf("ran %d tasks, want 100", got)
	}
}

func TestPoolWaitAllBlocksUntilDone(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	var done int64
	for i := 0; i < 8; i++ {
		p.Enqueue(func() {
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&done, 1)
		})
	}
	p.WaitAll()
	if got := atomic.LoadInt64(&done); got != 8 {
		t.Fatalf("WaitAll returned with %d of 8 tasks finished", got)
	}
}

func TestPoolEnqueueAfterClose(t *testing.T) {
	p := NewPool(1)
	p.Close()
	if err := p.Enqueue(func() {}); err != ErrPoolClosed {
		t.Fatalf("err = %v, want ErrPoolClosed", err)
	}
}

func TestPoolCloseDrains(t *testing.T) {
	p := NewPool(1)
	var count int64
	for i := 0; i < 10; i++ {
		p.Enqueue(func() {
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&count, 1)
		})
	}
	p.Close()
	if got := atomic.LoadInt64(&count); got != 10 {
		t.Fatalf("Close preempted the queue: %d of 10 ran", got)
	}
}

func TestPoolWaitAllOnIdlePool(t *testing.T) {
	p := NewPool(2)
	defer p.Close()
	done := make(chan struct{})
	go func() {
		p.WaitAll()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitAll hung on an idle pool")
	}
}
