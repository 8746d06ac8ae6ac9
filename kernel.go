// Package kestrel provides the kernel facade of an embedded-style
// multitasking OS core: a cooperative task runtime, a timer wheel, an
// asynchronous heap with backpressure, and a typed driver registry.
//
// Platform entry points build a Kernel, register driver services, and
// then drive RunTickLoop (or call Tick and ForceAdvanceTicks themselves on
// targets that own the idle loop). Everything else — sermux, Forth, the
// spawnulator — is a service spawned onto the kernel.
package kestrel

import (
	"context"
	"time"

	"github.com/ehrlich-b/kestrel/internal/constants"
	"github.com/ehrlich-b/kestrel/internal/heap"
	"github.com/ehrlich-b/kestrel/internal/logging"
	"github.com/ehrlich-b/kestrel/internal/sched"
	"github.com/ehrlich-b/kestrel/internal/wheel"
	"github.com/ehrlich-b/kestrel/registry"
)

// Settings configures a Kernel.
type Settings struct {
	// MaxDrivers bounds the registry table (default: 16).
	MaxDrivers int

	// TimerGranularity is the timer wheel tick (default: 1ms).
	TimerGranularity time.Duration

	// HeapSize is the managed allocator region size (default: 1MB).
	HeapSize int

	// HeapFreeQueueCapacity bounds the deferred-free queue (default: 512).
	HeapFreeQueueCapacity int

	// IdleSleepCap bounds the platform loop's park when no timer
	// deadline is pending (default: 100ms).
	IdleSleepCap time.Duration

	// Logger overrides the default logger.
	Logger *logging.Logger
}

// DefaultSettings returns default kernel settings
func DefaultSettings() Settings {
	return Settings{
		MaxDrivers:            constants.DefaultMaxDrivers,
		TimerGranularity:      constants.DefaultTimerGranularity,
		HeapSize:              constants.DefaultHeapSize,
		HeapFreeQueueCapacity: constants.DefaultFreeQueueCapacity,
		IdleSleepCap:          constants.DefaultIdleSleepCap,
	}
}

func (s *Settings) withDefaults() {
	d := DefaultSettings()
	if s.MaxDrivers == 0 {
		s.MaxDrivers = d.MaxDrivers
	}
	if s.TimerGranularity == 0 {
		s.TimerGranularity = d.TimerGranularity
	}
	if s.HeapSize == 0 {
		s.HeapSize = d.HeapSize
	}
	if s.HeapFreeQueueCapacity == 0 {
		s.HeapFreeQueueCapacity = d.HeapFreeQueueCapacity
	}
	if s.IdleSleepCap == 0 {
		s.IdleSleepCap = d.IdleSleepCap
	}
	if s.Logger == nil {
		s.Logger = logging.Default()
	}
}

// TickResult is re-exported from the scheduler for platform loops.
type TickResult = sched.TickResult

// Kernel owns the heap, timer wheel, scheduler, and registry. One kernel
// runs per CPU; all its tasks are cooperative.
type Kernel struct {
	settings Settings
	heap     *heap.Heap
	timer    *wheel.Wheel
	sched    *sched.Scheduler
	reg      *registry.Registry
	regSem   chan struct{} // async mutex guarding reg
	metrics  *Metrics
	logger   *logging.Logger
}

// New creates a kernel with the given settings.
func New(settings Settings) *Kernel {
	settings.withDefaults()
	s := sched.New()
	k := &Kernel{
		settings: settings,
		sched:    s,
		timer:    wheel.New(settings.TimerGranularity, s),
		heap: heap.New(heap.Settings{
			Size:              settings.HeapSize,
			FreeQueueCapacity: settings.HeapFreeQueueCapacity,
			Wakes:             s,
		}),
		reg:     registry.New(settings.MaxDrivers),
		regSem:  make(chan struct{}, 1),
		metrics: NewMetrics(),
		logger:  settings.Logger,
	}
	return k
}

// Settings returns the kernel's effective settings.
func (k *Kernel) Settings() Settings { return k.settings }

// Heap returns the kernel's allocator.
func (k *Kernel) Heap() *heap.Heap { return k.heap }

// Timer returns the kernel's timer wheel.
func (k *Kernel) Timer() *wheel.Wheel { return k.timer }

// Metrics returns the kernel's counters.
func (k *Kernel) Metrics() *Metrics { return k.metrics }

// Logger returns the kernel's logger.
func (k *Kernel) Logger() *logging.Logger { return k.logger }

// Spawn starts fn as a kernel task and returns its join handle.
// Discarding the handle does not cancel the task.
func (k *Kernel) Spawn(ctx context.Context, fn func(ctx context.Context)) *sched.JoinHandle {
	k.metrics.RecordSpawn()
	return k.sched.Spawn(ctx, fn)
}

// Sleep suspends the calling task for d of wheel time.
func (k *Kernel) Sleep(ctx context.Context, d time.Duration) error {
	return k.timer.SleepFor(ctx, d)
}

// WithRegistry runs fn with exclusive access to the driver registry.
// fn must not block on anything that needs the registry.
func (k *Kernel) WithRegistry(ctx context.Context, fn func(r *registry.Registry) error) error {
	select {
	case k.regSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() {
		<-k.regSem
		k.sched.NoteWake()
	}()
	return fn(k.reg)
}

// Tick integrates deferred frees and runs ready tasks, reporting whether
// anything woke and whether live tasks remain.
func (k *Kernel) Tick() TickResult {
	k.heap.Poll()
	res := k.sched.Tick()
	k.metrics.RecordTick(res.WokeAny)

	hs := k.heap.Stats()
	k.metrics.HeapAllocs.Store(hs.Allocs)
	k.metrics.HeapFrees.Store(hs.Frees)
	k.metrics.HeapDeferredFrees.Store(hs.DeferredFrees)
	return res
}

// ForceAdvanceTicks moves the timer wheel forward n ticks, firing due
// sleeps, and returns the wheel's report.
func (k *Kernel) ForceAdvanceTicks(n uint64) wheel.AdvanceResult {
	res := k.timer.AdvanceTicks(n)
	k.metrics.RecordTimerFires(res.Expired)
	return res
}

// RunTickLoop is the host platform loop: tick, feed real elapsed time to
// the wheel, then park until the next wake or timer deadline, capped by
// IdleSleepCap. It returns when ctx is done.
func (k *Kernel) RunTickLoop(ctx context.Context) {
	gran := k.timer.Granularity()
	last := time.Now()
	for {
		if ctx.Err() != nil {
			return
		}

		now := time.Now()
		elapsed := now.Sub(last)
		ticks := uint64(elapsed / gran)
		if ticks > 0 {
			last = last.Add(time.Duration(ticks) * gran)
		}
		adv := k.ForceAdvanceTicks(ticks)
		res := k.Tick()

		if res.WokeAny {
			continue
		}

		// Nothing immediately runnable: wait for an interrupt analogue.
		sleep := k.settings.IdleSleepCap
		if adv.HasNext {
			if d := time.Duration(adv.NextDeadline) * gran; d < sleep {
				sleep = d
			}
		}
		if sleep < gran {
			sleep = gran
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-k.sched.WakeSignal():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Timeout runs fn against the kernel clock, resolving to ErrTimeout when
// d of wheel time elapses first. The inner work's context is cancelled on
// timeout; if both complete together, the inner result wins.
func Timeout[T any](ctx context.Context, k *Kernel, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	type outcome struct {
		v   T
		err error
	}
	inner, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		v, err := fn(inner)
		done <- outcome{v: v, err: err}
	}()

	s := k.timer.Sleep(k.timer.Ticks(d))
	select {
	case out := <-done:
		return out.v, out.err
	case <-s.Done():
		// The inner future wins a same-tick race.
		select {
		case out := <-done:
			return out.v, out.err
		default:
		}
		cancel()
		var zero T
		return zero, ErrTimeout
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
