// Package engine realizes a tile plan: it downloads tiles with bounded
// concurrency and retry, reprojects them, and mosaics the results into one
// georeferenced raster.
package engine

import (
	"sync"

	"github.com/pkg/errors"
)

// Pool failure sentinels.
var (
	ErrPoolClosed = errors.New("worker pool is closed")
)

// Pool is a fixed-size worker pool with a FIFO queue. WaitAll blocks until
// every enqueued task reached a terminal state; Close drains outstanding
// work without preempting it.
type Pool struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	allDone  *sync.Cond

	queue   []func()
	pending int
	closed  bool

	wg sync.WaitGroup
}

// NewPool starts n workers (minimum 1).
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{}
	p.notEmpty = sync.NewCond(&p.mu)
	p.allDone = sync.NewCond(&p.mu)
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.notEmpty.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		task()

		p.mu.Lock()
		p.pending--
		if p.pending == 0 {
			p.allDone.Broadcast()
		}
		p.mu.Unlock()
	}
}

// Enqueue adds a task. It never blocks; the queue is unbounded. Enqueueing
// after Close fails with ErrPoolClosed.
func (p *Pool) Enqueue(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.queue = append(p.queue, task)
	p.pending++
	p.notEmpty.Signal()
	return nil
}

// WaitAll blocks until every enqueued task has finished.
func (p *Pool) WaitAll() {
	p.mu.Lock()
	for p.pending > 0 {
		p.allDone.Wait()
	}
	p.mu.Unlock()
}

// Closed reports whether Close has been called. Tasks consult it between
// expensive steps so a draining pool stops opening new connections.
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close drains the queue and stops the workers once it is empty.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.notEmpty.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}
