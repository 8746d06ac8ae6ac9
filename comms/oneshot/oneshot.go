// Package oneshot provides a reusable single-value rendezvous. A Reusable
// hands out one Sender per round; exactly one Send fills the slot and the
// matching Receive consumes it, after which the slot can be armed again.
// Clients keep one Reusable per outstanding request-reply exchange.
package oneshot

import (
	"context"
	"errors"
	"sync"

	"github.com/ehrlich-b/kestrel/internal/interfaces"
	"github.com/ehrlich-b/kestrel/internal/waitq"
)

var (
	// ErrSenderTaken is returned by Sender when the current round's
	// sender is already outstanding.
	ErrSenderTaken = errors.New("oneshot: sender already taken")
	// ErrSent is returned by a second Send in the same round.
	ErrSent = errors.New("oneshot: already sent")
)

type state int

const (
	stateIdle state = iota
	stateWaiting
	stateReady
)

// Reusable is a oneshot slot that can be armed once per round.
type Reusable[T any] struct {
	mu     sync.Mutex
	st     state
	taken  bool
	val    T
	notify *waitq.Queue
}

// New creates an unarmed oneshot.
func New[T any](wakes interfaces.WakeRecorder) *Reusable[T] {
	return &Reusable[T]{notify: waitq.New(wakes)}
}

// Sender is the producing half for one round.
type Sender[T any] struct {
	r    *Reusable[T]
	used bool
}

// Sender arms the slot and returns this round's sender.
func (r *Reusable[T]) Sender() (*Sender[T], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.taken {
		return nil, ErrSenderTaken
	}
	r.taken = true
	r.st = stateWaiting
	return &Sender[T]{r: r}, nil
}

// Send fills the slot. A second Send in the same round fails.
func (s *Sender[T]) Send(v T) error {
	s.r.mu.Lock()
	if s.used || s.r.st != stateWaiting {
		s.r.mu.Unlock()
		return ErrSent
	}
	s.used = true
	s.r.val = v
	s.r.st = stateReady
	s.r.mu.Unlock()
	s.r.notify.WakeAll()
	return nil
}

// Receive waits for this round's value, then rearms the slot for reuse.
func (r *Reusable[T]) Receive(ctx context.Context) (T, error) {
	for {
		r.mu.Lock()
		if r.st == stateReady {
			v := r.val
			var zero T
			r.val = zero
			r.st = stateIdle
			r.taken = false
			r.mu.Unlock()
			return v, nil
		}
		r.mu.Unlock()

		ch := r.notify.Prepare()
		r.mu.Lock()
		ready := r.st == stateReady
		r.mu.Unlock()
		if ready {
			r.notify.Cancel()
			continue
		}
		select {
		case <-ch:
		case <-ctx.Done():
			r.notify.Cancel()
			var zero T
			return zero, ctx.Err()
		}
	}
}
