// Package worker runs async audit appends on a bounded pool.
//
// The pool never queues without bound: when every slot is taken, Submit either
// blocks until a slot frees up or, in reject mode, fails with sentinel.ErrBusy.
package worker

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"audittrail/pkg/platform/sentinel"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("worker pool closed")

const defaultSize = 8

type Pool struct {
	sem            *semaphore.Weighted
	size           int64
	rejectWhenBusy bool

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a pool running at most size tasks at once.
func NewPool(size int, rejectWhenBusy bool) *Pool {
	if size <= 0 {
		size = defaultSize
	}
	return &Pool{
		sem:            semaphore.NewWeighted(int64(size)),
		size:           int64(size),
		rejectWhenBusy: rejectWhenBusy,
	}
}

// Submit runs task on a pool slot. It returns once the task has started, or with
// sentinel.ErrBusy (reject mode), ctx.Err() (blocking mode) or ErrClosed.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	if p.isClosed() {
		return ErrClosed
	}

	if p.rejectWhenBusy {
		if !p.sem.TryAcquire(1) {
			return sentinel.ErrBusy
		}
	} else if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		p.sem.Release(1)
		return ErrClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		task()
	}()
	return nil
}

// Close stops accepting tasks and waits for running ones, or until ctx is done.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Size is the number of concurrent slots.
func (p *Pool) Size() int { return int(p.size) }
