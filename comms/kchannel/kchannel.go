// Package kchannel provides the kernel's bounded MPMC channel. Async
// enqueue and dequeue suspend on wait queues; the Try variants are the
// non-blocking paths usable from interrupt context, which fail with Full,
// Empty or Closed rather than wait.
package kchannel

import (
	"context"
	"errors"
	"sync"

	"github.com/ehrlich-b/kestrel/internal/interfaces"
	"github.com/ehrlich-b/kestrel/internal/waitq"
)

var (
	// ErrClosed is returned once a channel has been closed.
	ErrClosed = errors.New("kchannel: closed")
	// ErrFull is returned by TryEnqueue when no space is available.
	ErrFull = errors.New("kchannel: full")
	// ErrEmpty is returned by TryDequeue when nothing is queued.
	ErrEmpty = errors.New("kchannel: empty")
)

// KChannel is a bounded multi-producer multi-consumer FIFO.
type KChannel[T any] struct {
	mu       sync.Mutex
	buf      []T
	capacity int
	closed   bool

	notFull  *waitq.Queue
	notEmpty *waitq.Queue
}

// New creates a channel holding up to capacity elements.
func New[T any](capacity int, wakes interfaces.WakeRecorder) *KChannel[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &KChannel[T]{
		capacity: capacity,
		notFull:  waitq.New(wakes),
		notEmpty: waitq.New(wakes),
	}
}

// TryEnqueue appends v without waiting.
func (k *KChannel[T]) TryEnqueue(v T) error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return ErrClosed
	}
	if len(k.buf) >= k.capacity {
		k.mu.Unlock()
		return ErrFull
	}
	k.buf = append(k.buf, v)
	k.mu.Unlock()
	k.notEmpty.WakeAll()
	return nil
}

// Enqueue appends v, waiting for space.
func (k *KChannel[T]) Enqueue(ctx context.Context, v T) error {
	for {
		err := k.TryEnqueue(v)
		if err == nil || err == ErrClosed {
			return err
		}

		ch := k.notFull.Prepare()
		k.mu.Lock()
		ready := k.closed || len(k.buf) < k.capacity
		k.mu.Unlock()
		if ready {
			k.notFull.Cancel()
			continue
		}
		select {
		case <-ch:
		case <-ctx.Done():
			k.notFull.Cancel()
			return ctx.Err()
		}
	}
}

// TryDequeue removes the oldest element without waiting. A closed channel
// drains before reporting Closed.
func (k *KChannel[T]) TryDequeue() (T, error) {
	var zero T
	k.mu.Lock()
	if len(k.buf) == 0 {
		closed := k.closed
		k.mu.Unlock()
		if closed {
			return zero, ErrClosed
		}
		return zero, ErrEmpty
	}
	v := k.buf[0]
	k.buf = k.buf[1:]
	k.mu.Unlock()
	k.notFull.WakeAll()
	return v, nil
}

// Dequeue removes the oldest element, waiting for one.
func (k *KChannel[T]) Dequeue(ctx context.Context) (T, error) {
	for {
		v, err := k.TryDequeue()
		if err == nil || err == ErrClosed {
			return v, err
		}

		ch := k.notEmpty.Prepare()
		k.mu.Lock()
		ready := k.closed || len(k.buf) > 0
		k.mu.Unlock()
		if ready {
			k.notEmpty.Cancel()
			continue
		}
		select {
		case <-ch:
		case <-ctx.Done():
			k.notEmpty.Cancel()
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Close marks the channel closed. Queued elements remain dequeueable.
func (k *KChannel[T]) Close() {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return
	}
	k.closed = true
	k.mu.Unlock()
	k.notFull.WakeAll()
	k.notEmpty.WakeAll()
}

// Len reports the number of queued elements.
func (k *KChannel[T]) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buf)
}

// Capacity reports the channel bound.
func (k *KChannel[T]) Capacity() int { return k.capacity }
