// Package waitq implements the wake-all wait queue shared by the kernel's
// blocking primitives. A Queue hands waiters a generation channel; WakeAll
// closes the current generation and installs a fresh one, so every waiter
// parked before the wake observes it exactly once and late arrivals park
// on the next generation.
package waitq

import (
	"context"
	"sync"

	"github.com/ehrlich-b/kestrel/internal/interfaces"
)

// Queue is a broadcast wait queue. The zero value is not usable; call New.
type Queue struct {
	mu      sync.Mutex
	gen     chan struct{}
	waiters int
	wakes   interfaces.WakeRecorder
}

// New creates a wait queue reporting wake events to wakes.
func New(wakes interfaces.WakeRecorder) *Queue {
	if wakes == nil {
		wakes = interfaces.NopWakes{}
	}
	return &Queue{
		gen:   make(chan struct{}),
		wakes: wakes,
	}
}

// Prepare returns the current generation channel without blocking. A caller
// that must re-check its predicate after registering selects on the returned
// channel. The pattern is:
//
//	ch := q.Prepare()
//	if predicate() { q.Cancel(); ... }
//	select { case <-ch: ... }
func (q *Queue) Prepare() <-chan struct{} {
	q.mu.Lock()
	q.waiters++
	ch := q.gen
	q.mu.Unlock()
	return ch
}

// Cancel undoes a Prepare whose caller decided not to block.
func (q *Queue) Cancel() {
	q.mu.Lock()
	if q.waiters > 0 {
		q.waiters--
	}
	q.mu.Unlock()
}

// Wait blocks until the next WakeAll or until ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	ch := q.Prepare()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		q.Cancel()
		return ctx.Err()
	}
}

// WakeAll wakes every currently parked waiter.
func (q *Queue) WakeAll() {
	q.mu.Lock()
	woke := q.waiters
	q.waiters = 0
	close(q.gen)
	q.gen = make(chan struct{})
	q.mu.Unlock()

	if woke > 0 {
		q.wakes.NoteWake()
	}
}
