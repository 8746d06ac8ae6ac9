package kestrel

import (
	"sync/atomic"
	"time"
)

// Metrics tracks operational statistics for one kernel instance.
// All counters are updated with atomics; methods are safe to call from
// any task.
type Metrics struct {
	// Tick loop
	Ticks      atomic.Uint64 // Total Tick calls
	TicksWoke  atomic.Uint64 // Ticks that observed at least one wake
	TimerFires atomic.Uint64 // Sleeps expired by the timer wheel

	// Task lifecycle
	TasksSpawned atomic.Uint64

	// Allocator
	HeapAllocs        atomic.Uint64
	HeapFrees         atomic.Uint64
	HeapDeferredFrees atomic.Uint64

	// Serial mux
	FramesEncoded atomic.Uint64 // Outgoing frames committed to the link
	FramesDecoded atomic.Uint64 // Incoming frames dispatched to a port
	FramesDropped atomic.Uint64 // Incoming frames discarded (decode, port, space)

	// Forth
	ForthLines  atomic.Uint64 // process_line calls
	ForthErrors atomic.Uint64 // process_line failures

	// Kernel lifecycle
	StartTime atomic.Int64 // Kernel construction timestamp (UnixNano)
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordTick records one Tick call and whether it observed a wake
func (m *Metrics) RecordTick(wokeAny bool) {
	m.Ticks.Add(1)
	if wokeAny {
		m.TicksWoke.Add(1)
	}
}

// RecordTimerFires records sleeps expired by one wheel advance
func (m *Metrics) RecordTimerFires(n int) {
	if n > 0 {
		m.TimerFires.Add(uint64(n))
	}
}

// RecordSpawn records one task spawn
func (m *Metrics) RecordSpawn() {
	m.TasksSpawned.Add(1)
}

// RecordFrameEncoded records one outgoing sermux frame
func (m *Metrics) RecordFrameEncoded() {
	m.FramesEncoded.Add(1)
}

// RecordFrameDecoded records one incoming sermux frame delivered to a port
func (m *Metrics) RecordFrameDecoded() {
	m.FramesDecoded.Add(1)
}

// RecordFrameDropped records one discarded incoming frame
func (m *Metrics) RecordFrameDropped() {
	m.FramesDropped.Add(1)
}

// RecordForthLine records one Forth process_line outcome
func (m *Metrics) RecordForthLine(failed bool) {
	m.ForthLines.Add(1)
	if failed {
		m.ForthErrors.Add(1)
	}
}

// MetricsSnapshot provides a point-in-time view of all metrics
type MetricsSnapshot struct {
	Ticks             uint64
	TicksWoke         uint64
	TimerFires        uint64
	TasksSpawned      uint64
	HeapAllocs        uint64
	HeapFrees         uint64
	HeapDeferredFrees uint64
	FramesEncoded     uint64
	FramesDecoded     uint64
	FramesDropped     uint64
	ForthLines        uint64
	ForthErrors       uint64
	Uptime            time.Duration
}

// Snapshot captures the current state of all metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Ticks:             m.Ticks.Load(),
		TicksWoke:         m.TicksWoke.Load(),
		TimerFires:        m.TimerFires.Load(),
		TasksSpawned:      m.TasksSpawned.Load(),
		HeapAllocs:        m.HeapAllocs.Load(),
		HeapFrees:         m.HeapFrees.Load(),
		HeapDeferredFrees: m.HeapDeferredFrees.Load(),
		FramesEncoded:     m.FramesEncoded.Load(),
		FramesDecoded:     m.FramesDecoded.Load(),
		FramesDropped:     m.FramesDropped.Load(),
		ForthLines:        m.ForthLines.Load(),
		ForthErrors:       m.ForthErrors.Load(),
		Uptime:            time.Duration(time.Now().UnixNano() - m.StartTime.Load()),
	}
}
