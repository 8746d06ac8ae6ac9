// Package sched implements the kernel's cooperative task runtime. Tasks
// run as goroutines whose only suspension points are kernel primitives;
// every primitive reports the wakeups it performs, so Tick can tell the
// platform loop whether anything ran and whether tasks remain alive, and
// the loop can park until the next wake or timer deadline.
package sched

import (
	"context"
	"runtime"
	"sync/atomic"
)

// TickResult is what one Tick observed.
type TickResult struct {
	// WokeAny reports whether any task was made runnable since the last
	// Tick.
	WokeAny bool
	// HasRemaining reports whether live tasks remain.
	HasRemaining bool
}

// Scheduler tracks spawned tasks and wake events.
type Scheduler struct {
	tasks     atomic.Int64
	spawned   atomic.Uint64
	completed atomic.Uint64
	wakes     atomic.Uint64
	notify    chan struct{}
}

// New creates a scheduler.
func New() *Scheduler {
	return &Scheduler{notify: make(chan struct{}, 1)}
}

// NoteWake records that a blocked task was made runnable. Primitives call
// this on every handoff; the platform loop's park drains the notify
// channel, the wait-for-interrupt analogue.
func (s *Scheduler) NoteWake() {
	s.wakes.Add(1)
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// WakeSignal is the channel poked by NoteWake. The platform loop selects
// on it (with a deadline) when nothing is runnable.
func (s *Scheduler) WakeSignal() <-chan struct{} {
	return s.notify
}

// JoinHandle observes one task's completion. Discarding a handle does not
// cancel its task; cancel the task's context for that.
type JoinHandle struct {
	done chan struct{}
}

// Done returns a channel closed when the task returns.
func (j *JoinHandle) Done() <-chan struct{} { return j.done }

// Wait blocks until the task completes or ctx is done.
func (j *JoinHandle) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Spawn starts fn as a task.
func (s *Scheduler) Spawn(ctx context.Context, fn func(ctx context.Context)) *JoinHandle {
	j := &JoinHandle{done: make(chan struct{})}
	s.tasks.Add(1)
	s.spawned.Add(1)
	go func() {
		defer func() {
			s.tasks.Add(-1)
			s.completed.Add(1)
			close(j.done)
			s.NoteWake()
		}()
		fn(ctx)
	}()
	return j
}

// Tick lets ready tasks run and reports what happened. Goroutines run
// continuously underneath; the yield below only encourages freshly woken
// tasks to make progress before the result is sampled.
func (s *Scheduler) Tick() TickResult {
	for i := 0; i < 4; i++ {
		runtime.Gosched()
	}
	woke := s.wakes.Swap(0)
	return TickResult{
		WokeAny:      woke > 0,
		HasRemaining: s.tasks.Load() > 0,
	}
}

// Live reports the number of running tasks.
func (s *Scheduler) Live() int64 { return s.tasks.Load() }

// Counts reports lifetime spawn/completion totals.
func (s *Scheduler) Counts() (spawned, completed uint64) {
	return s.spawned.Load(), s.completed.Load()
}
