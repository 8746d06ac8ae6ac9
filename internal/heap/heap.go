// Package heap implements the kernel's asynchronous allocator. Allocation
// bookkeeping runs over a fixed byte region with a first-fit free list;
// frees that cannot take the heap lock are deferred onto a bounded queue
// and drained by the next lock holder or by Poll from the tick loop.
//
// The allocation path applies backpressure instead of failing: once an
// allocation does not fit, the inhibit flag stops every later allocation
// until something has been freed, so older waiters get first chance at
// newly freed space. Async allocation suspends on the heap's wait queue
// and retries after each Poll that observed a free.
package heap

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/ehrlich-b/kestrel/internal/interfaces"
	"github.com/ehrlich-b/kestrel/internal/waitq"
)

// Heap lifecycle states.
const (
	stateUninit uint32 = iota
	stateIdle
	stateLocked
)

var (
	// ErrLocked is returned by Lock when another guard is outstanding.
	ErrLocked = errors.New("heap: locked")
	// ErrOutOfMemory is returned by the non-blocking allocation paths.
	ErrOutOfMemory = errors.New("heap: out of memory")
)

// DefaultFreeQueueCapacity bounds the deferred-free queue when Settings
// does not say otherwise. Size it to at least the maximum number of
// concurrently outstanding allocations; overflowing it is fatal.
const DefaultFreeQueueCapacity = 512

// Settings configures a Heap.
type Settings struct {
	// Size is the managed region size in bytes.
	Size int
	// FreeQueueCapacity bounds the deferred-free queue (0 = default).
	FreeQueueCapacity int
	// Wakes receives wake events when Poll releases allocation waiters.
	Wakes interfaces.WakeRecorder
}

type freeReq struct {
	off    int
	layout Layout
}

// Heap is the asynchronous allocator. One instance manages one region.
type Heap struct {
	state atomic.Uint32
	list  *freeList // guarded by the Locked state

	freeQ   chan freeReq
	inhibit atomic.Bool
	sawFree atomic.Bool
	waiters *waitq.Queue

	// Counters for introspection; see Stats.
	allocs atomic.Uint64
	frees  atomic.Uint64
	defers atomic.Uint64
}

// Stats is a point-in-time snapshot of heap counters.
type Stats struct {
	Size          int
	Used          int
	Allocs        uint64
	Frees         uint64
	DeferredFrees uint64
}

// New creates a heap over a fresh region of settings.Size bytes.
func New(settings Settings) *Heap {
	cap := settings.FreeQueueCapacity
	if cap == 0 {
		cap = DefaultFreeQueueCapacity
	}
	h := &Heap{
		list:    newFreeList(settings.Size),
		freeQ:   make(chan freeReq, cap),
		waiters: waitq.New(settings.Wakes),
	}
	h.state.Store(stateIdle)
	return h
}

// Guard is an exclusive handle on the heap's allocator state. Holders must
// call Release; the heap stays Locked until they do.
type Guard struct {
	h        *Heap
	released bool
}

// Lock attempts the Idle -> Locked transition. On success the returned
// guard has already drained the deferred-free queue.
func (h *Heap) Lock() (*Guard, error) {
	if !h.state.CompareAndSwap(stateIdle, stateLocked) {
		return nil, ErrLocked
	}
	g := &Guard{h: h}
	g.drainFrees()
	return g, nil
}

// Release returns the heap to Idle. Safe to call once per guard.
func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.h.state.Store(stateIdle)
}

// drainFrees applies every queued deferred free to the allocator.
func (g *Guard) drainFrees() {
	for {
		select {
		case req := <-g.h.freeQ:
			g.h.list.free(req.off, req.layout.Size)
			g.h.frees.Add(1)
			g.h.sawFree.Store(true)
		default:
			return
		}
	}
}

// AllocRaw reserves layout from the region. Callers own the returned
// offset until they free it.
func (g *Guard) AllocRaw(layout Layout) (int, error) {
	if err := layout.check(); err != nil {
		return 0, err
	}
	off, ok := g.h.list.alloc(layout)
	if !ok {
		return 0, ErrOutOfMemory
	}
	g.h.allocs.Add(1)
	return off, nil
}

// FreeRaw returns an allocation to the region.
func (g *Guard) FreeRaw(off int, layout Layout) {
	g.h.list.free(off, layout.Size)
	g.h.frees.Add(1)
	g.h.sawFree.Store(true)
}

// release is the container drop path: free directly when the lock is
// available, otherwise defer. Deferred-queue overflow means the queue was
// sized below the number of live allocations, which is an invariant
// violation, not a recoverable error.
func (h *Heap) release(off int, layout Layout) {
	if g, err := h.Lock(); err == nil {
		g.FreeRaw(off, layout)
		g.Release()
		return
	}
	h.defers.Add(1)
	select {
	case h.freeQ <- freeReq{off: off, layout: layout}:
	default:
		panic("heap: deferred free queue overflow")
	}
}

// Poll integrates deferred frees and releases allocation backpressure.
// The platform tick loop calls this once per tick. If the heap is locked
// the poll is skipped; the lock holder drains the queue itself.
func (h *Heap) Poll() {
	g, err := h.Lock()
	if err != nil {
		return
	}
	g.Release()

	if h.sawFree.Swap(false) {
		h.inhibit.Store(false)
		h.waiters.WakeAll()
	}
}

// AllocateRaw suspends until layout can be reserved. This is the async
// allocation protocol every owned container goes through.
func (h *Heap) AllocateRaw(ctx context.Context, layout Layout) (int, error) {
	for {
		if !h.inhibit.Load() {
			g, err := h.Lock()
			if err != nil {
				// Contended, not out of space: the guard holder is mid
				// alloc/free. Inhibiting here would stall every waiter
				// until the next Poll, so yield and retry instead.
				if ctx.Err() != nil {
					return 0, ctx.Err()
				}
				runtime.Gosched()
				continue
			}
			off, aerr := g.AllocRaw(layout)
			g.Release()
			if aerr == nil {
				return off, nil
			}
			if aerr != ErrOutOfMemory {
				// A bad layout never becomes satisfiable; waiting on
				// frees would hang forever.
				return 0, aerr
			}
			// Out of space: inhibit further allocations so waiters are
			// not starved by newcomers racing for freed space.
			h.inhibit.Store(true)
		}

		// Register before re-checking inhibit; a Poll between our failed
		// attempt and the registration would otherwise be a lost wakeup.
		ch := h.waiters.Prepare()
		if !h.inhibit.Load() {
			h.waiters.Cancel()
			continue
		}
		select {
		case <-ch:
		case <-ctx.Done():
			h.waiters.Cancel()
			return 0, ctx.Err()
		}
	}
}

// Stats snapshots the heap counters. Used is only meaningful when no
// guard is outstanding.
func (h *Heap) Stats() Stats {
	return Stats{
		Size:          h.list.size,
		Used:          h.list.used,
		Allocs:        h.allocs.Load(),
		Frees:         h.frees.Load(),
		DeferredFrees: h.defers.Load(),
	}
}

// PendingFrees reports the deferred-free queue depth.
func (h *Heap) PendingFrees() int {
	return len(h.freeQ)
}
