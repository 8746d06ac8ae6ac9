package constants

import "time"

// Default configuration constants
const (
	// DefaultHeapSize is the default managed heap region size (1MB)
	DefaultHeapSize = 1 << 20

	// DefaultFreeQueueCapacity bounds the heap's deferred-free queue.
	// Must cover the maximum number of concurrently live allocations;
	// overflow is a fatal invariant violation.
	DefaultFreeQueueCapacity = 512

	// DefaultMaxDrivers is the default registry table size
	DefaultMaxDrivers = 16

	// DefaultTimerGranularity is the timer wheel tick duration
	DefaultTimerGranularity = time.Millisecond

	// DefaultIdleSleepCap bounds how long the platform loop sleeps when
	// no timer deadline is pending, so a deadline registered while the
	// loop is parked never waits more than one cap interval.
	DefaultIdleSleepCap = 100 * time.Millisecond

	// DefaultSermuxMaxPorts is the default port table size of the
	// serial multiplexer
	DefaultSermuxMaxPorts = 16

	// DefaultSermuxMaxFrame is the default maximum encoded frame size
	DefaultSermuxMaxFrame = 512

	// DefaultPortCapacity is the default per-port incoming ring size
	DefaultPortCapacity = 1024

	// DefaultServiceQueueDepth is the default command channel depth for
	// registered driver servers
	DefaultServiceQueueDepth = 8
)

// Timing constants for service discovery and spawn handshakes
const (
	// RegistryRetryInterval is how long clients wait between registry
	// probes while racing a server's startup.
	RegistryRetryInterval = 10 * time.Millisecond

	// DefaultSpawnTimeout bounds how long the spawn builtin waits for the
	// spawnulator's ack. A request already queued when the wait ends stays
	// queued and is still spawned.
	DefaultSpawnTimeout = 5 * time.Second
)
